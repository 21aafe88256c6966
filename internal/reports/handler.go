package reports

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermReportsView))
		r.Get("/dashboard", h.dashboard)
		r.Get("/receivables", h.receivables)
		r.Get("/customers/{id}/statement", h.statement)
		r.Get("/ledger.xlsx", h.exportXLSX)
		r.Get("/ledger.csv", h.exportCSV)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) receivables(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Receivables(r.Context())
	if err != nil {
		h.fail(w, "receivables", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid customer id", httpx.ErrValidation))
		return
	}
	st, err := h.service.CustomerStatement(r.Context(), id)
	if err != nil {
		h.fail(w, "customer statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	f, err := ledger.FilterFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, names, err := h.service.LedgerExport(r.Context(), f)
	if err != nil {
		h.fail(w, "export ledger", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteLedgerXLSX(&buf, entries, names, h.service.Settings()); err != nil {
		h.fail(w, "render ledger xlsx", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment("xlsx"))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := ledger.FilterFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, names, err := h.service.LedgerExport(r.Context(), f)
	if err != nil {
		h.fail(w, "export ledger", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteLedgerCSV(&buf, entries, names); err != nil {
		h.fail(w, "render ledger csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment("csv"))
	_, _ = w.Write(buf.Bytes())
}

func attachment(ext string) string {
	return fmt.Sprintf(`attachment; filename="ledger-%s.%s"`, time.Now().UTC().Format("20060102"), ext)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
