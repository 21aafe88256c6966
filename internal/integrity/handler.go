package integrity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler exposes the on-demand scan.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the integrity handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers GET / under the admin prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll(shared.PermIntegrityView)).Get("/", h.scan)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Scan(r.Context())
	if err != nil {
		h.logger.Error("integrity scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
