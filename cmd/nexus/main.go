package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/greengold/nexus/internal/app"
	"github.com/greengold/nexus/internal/audit"
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
	"github.com/greengold/nexus/internal/platform/cache"
	"github.com/greengold/nexus/internal/platform/db"
	"github.com/greengold/nexus/internal/platform/events"
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

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "nexus_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	metrics := observability.NewMetrics()
	business := observability.NewBusinessMetrics(metrics.Registerer())
	broker := events.NewBroker(redisClient, logger)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	// Writers bump the report cache themselves; the subscription below only
	// catches writes from other instances.
	publisher := reportCache.Invalidating(broker, logger)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	settingsStore := settings.NewStore(settings.NewRepository(pool), auditLogger, publisher, logger)
	if err := settingsStore.Load(ctx); err != nil {
		logger.Error("load settings", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	entryQueries := ledger.NewQueries(pool)
	customerQueries := customers.NewQueries(pool)

	authService := auth.NewService(auth.NewRepository(pool))
	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, idempotencyStore, publisher, business, logger)
	invoicingService := invoicing.NewService(invoicing.NewRepository(pool), invoicing.NewBuilder(settingsStore), auditLogger, idempotencyStore, publisher, business, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, publisher, logger)
	customerService := customers.NewService(customers.NewRepository(pool), entryQueries, auditLogger, publisher, logger)
	webOrderService := weborders.NewService(weborders.NewRepository(pool), weborders.Options{
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Events:      publisher,
		Receipts:    jobClient,
		Metrics:     business,
		Logger:      logger,
	})
	payrollService := payroll.NewService(payroll.NewRepository(pool), auditLogger, idempotencyStore, publisher, business, logger)
	bookingService := bookings.NewService(bookings.NewRepository(pool), auditLogger, publisher, logger)
	reviewService := reviews.NewService(reviews.NewQueries(pool), auditLogger, publisher, logger)
	integrityService := integrity.NewService(integrity.NewRepository(pool), business, logger)

	reportService := reports.NewService(entryQueries, customerQueries, settingsStore, reportCache).
		WithPending(bookingService, reviewService)
	if err := reportCache.ListenForChanges(ctx, broker, logger); err != nil {
		logger.Warn("report cache invalidation disabled", slog.Any("error", err))
	}

	documentRenderer, err := report.NewRenderer()
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}
	documentsHandler := report.NewHandler(report.HandlerConfig{
		Entries:   entryQueries,
		Customers: customerQueries,
		Settings:  settingsStore,
		Renderer:  documentRenderer,
		PDF:       report.NewClient(cfg.GotenbergURL),
		Logger:    logger,
		RBAC:      rbacMiddleware,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager, csrfManager),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		LedgerHandler:      ledger.NewHandler(logger, ledgerService, rbacMiddleware),
		InvoicingHandler:   invoicing.NewHandler(logger, invoicingService, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		CustomersHandler:   customers.NewHandler(logger, customerService, rbacMiddleware),
		WebOrdersHandler:   weborders.NewHandler(logger, webOrderService, rbacMiddleware),
		PayrollHandler:     payroll.NewHandler(logger, payrollService, rbacMiddleware),
		ReportsHandler:     reports.NewHandler(logger, reportService, rbacMiddleware),
		IntegrityHandler:   integrity.NewHandler(logger, integrityService, rbacMiddleware),
		BookingsHandler:    bookings.NewHandler(logger, bookingService, rbacMiddleware),
		ReviewsHandler:     reviews.NewHandler(logger, reviewService, rbacMiddleware),
		DocumentsHandler:   documentsHandler,
		UsersHandler:       users.NewHandler(logger, users.NewService(users.NewRepository(pool), authService, auditLogger, logger), rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		SettingsHandler:    settings.NewHandler(logger, settingsStore, rbacMiddleware),
		StreamHandler:      events.NewStreamHandler(broker, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:        cfg.AppAddr,
		Handler:     router,
		ReadTimeout: cfg.AppReadTimeout,
		// WriteTimeout stays unset for the SSE stream; non-streaming routes
		// are bounded by the request timeout middleware.
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
