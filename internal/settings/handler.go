package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler exposes the settings document.
type Handler struct {
	logger *slog.Logger
	store  *Store
	rbac   rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, store *Store, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, store: store, rbac: rbac}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Authenticated).Get("/", h.get)
	r.With(h.rbac.RequireAll(shared.PermSettingsEdit)).Put("/", h.put)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.store.Current())
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var body Settings
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.store.Save(r.Context(), body)
	if err != nil {
		h.logger.Error("save settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}
