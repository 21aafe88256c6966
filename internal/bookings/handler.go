package bookings

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler wires HTTP endpoints for bookings.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the booking handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountPublicRoutes registers the storefront form.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/bookings", h.submit)
}

// MountRoutes registers the staff queue.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermBookingsView, shared.PermBookingsManage))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermBookingsManage))
		r.Patch("/{id}/status", h.setStatus)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var in Request
	if !h.decode(w, r, &in) {
		return
	}
	b, err := h.service.Submit(r.Context(), in)
	if err != nil {
		h.fail(w, "submit booking", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": b.ID, "status": b.Status})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := Filter{Status: Status(r.URL.Query().Get("status"))}
	switch f.Status {
	case "", StatusPending, StatusCompleted, StatusCancelled:
	default:
		httpx.RespondError(w, fmt.Errorf("%w: unknown status", httpx.ErrValidation))
		return
	}
	list, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list bookings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get booking", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in StatusInput
	if !h.decode(w, r, &in) {
		return
	}
	b, err := h.service.SetStatus(r.Context(), id, in.Status)
	if err != nil {
		h.fail(w, "set booking status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := bookingID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete booking", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) &&
		!errors.Is(err, httpx.ErrConflict) && !errors.Is(err, httpx.ErrForbidden) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func bookingID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid booking id", httpx.ErrValidation)
	}
	return id, nil
}
