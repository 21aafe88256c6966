package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

// PermissionsHandler reports what the signed-in user may do.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Authenticated).Get("/", h.listPermissions)
}

type permissionsResponse struct {
	Role        shared.Role `json:"role"`
	Permissions []string    `json:"permissions"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		Role:        actor.Role,
		Permissions: shared.PermissionsFor(actor.Role),
	})
}
