package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	audithttp "github.com/greengold/nexus/internal/audit/http"
	"github.com/greengold/nexus/internal/auth"
	"github.com/greengold/nexus/internal/bookings"
	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/integrity"
	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/invoicing"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/observability"
	"github.com/greengold/nexus/internal/payroll"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/reports"
	"github.com/greengold/nexus/internal/reviews"
	"github.com/greengold/nexus/internal/settings"
	"github.com/greengold/nexus/internal/shared"
	"github.com/greengold/nexus/internal/users"
	"github.com/greengold/nexus/internal/weborders"
	"github.com/greengold/nexus/jobs"
	"github.com/greengold/nexus/report"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers are skipped.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	LedgerHandler      *ledger.Handler
	InvoicingHandler   *invoicing.Handler
	InventoryHandler   *inventory.Handler
	CustomersHandler   *customers.Handler
	WebOrdersHandler   *weborders.Handler
	PayrollHandler     *payroll.Handler
	ReportsHandler     *reports.Handler
	IntegrityHandler   *integrity.Handler
	AuditHandler       *audithttp.Handler
	UsersHandler       *users.Handler
	DocumentsHandler   *report.Handler
	BookingsHandler    *bookings.Handler
	ReviewsHandler     *reviews.Handler
	SettingsHandler    *settings.Handler
	StreamHandler      *events.StreamHandler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with nexus defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	timeout := chimw.Timeout(params.Config.RequestTimeout())
	compress := chimw.Compress(5)

	if params.AuthHandler != nil {
		r.With(timeout).Route("/auth", params.AuthHandler.MountRoutes)
	}
	r.Route("/api", func(r chi.Router) {
		// The change feed is long-lived and flushed per event.
		if params.StreamHandler != nil {
			r.With(params.RBACMiddleware.Authenticated).Method(http.MethodGet, "/stream", params.StreamHandler)
		}
		r.Group(func(r chi.Router) {
			r.Use(timeout, compress)
			r.Route("/shop", func(r chi.Router) {
				limit := 10
				if params.Config != nil && params.Config.CheckoutRateLimit > 0 {
					limit = params.Config.CheckoutRateLimit
				}
				if params.InventoryHandler != nil {
					params.InventoryHandler.MountPublicRoutes(r)
				}
				if params.ReviewsHandler != nil {
					params.ReviewsHandler.MountPublicRoutes(r)
				}
				// Anonymous writes share the checkout limit per IP.
				r.Group(func(r chi.Router) {
					r.Use(httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
					if params.WebOrdersHandler != nil {
						params.WebOrdersHandler.MountPublicRoutes(r)
					}
					if params.BookingsHandler != nil {
						params.BookingsHandler.MountPublicRoutes(r)
					}
					if params.ReviewsHandler != nil {
						params.ReviewsHandler.MountSubmitRoutes(r)
					}
				})
			})

			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.LedgerHandler != nil {
				r.Route("/ledger", params.LedgerHandler.MountRoutes)
			}
			if params.InvoicingHandler != nil {
				r.Route("/invoices", params.InvoicingHandler.MountRoutes)
			}
			if params.InventoryHandler != nil {
				r.Route("/inventory", params.InventoryHandler.MountRoutes)
			}
			if params.CustomersHandler != nil {
				r.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			if params.WebOrdersHandler != nil {
				r.Route("/web-orders", params.WebOrdersHandler.MountRoutes)
			}
			if params.PayrollHandler != nil {
				r.Route("/payroll", params.PayrollHandler.MountRoutes)
			}
			if params.BookingsHandler != nil {
				r.Route("/bookings", params.BookingsHandler.MountRoutes)
			}
			if params.ReviewsHandler != nil {
				r.Route("/reviews", params.ReviewsHandler.MountRoutes)
			}
			if params.ReportsHandler != nil {
				r.Route("/reports", params.ReportsHandler.MountRoutes)
			}
			if params.IntegrityHandler != nil {
				r.Route("/admin/integrity", params.IntegrityHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/admin/audit", params.AuditHandler.MountRoutes)
			}
			if params.DocumentsHandler != nil {
				r.Route("/documents", params.DocumentsHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/admin/users", params.UsersHandler.MountRoutes)
			}
			if params.SettingsHandler != nil {
				r.Route("/settings", params.SettingsHandler.MountRoutes)
			}
		})
	})

	return r
}
