package reviews

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

// Handler wires HTTP endpoints for reviews.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the review handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountPublicRoutes registers the storefront listing.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/reviews", h.published)
}

// MountSubmitRoutes registers the review form. Callers rate-limit it.
func (h *Handler) MountSubmitRoutes(r chi.Router) {
	r.Post("/reviews", h.submit)
}

// MountRoutes registers moderation.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAll(shared.PermReviewsModerate))
	r.Get("/", h.list)
	r.Get("/summary", h.summary)
	r.Post("/{id}/approve", h.approve)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) published(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Published(r.Context())
	if err != nil {
		h.fail(w, "list published reviews", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reviews": list})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var in Submission
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rev, err := h.service.Submit(r.Context(), in)
	if err != nil {
		h.fail(w, "submit review", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"id": rev.ID, "approved": false})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var f Filter
	switch r.URL.Query().Get("state") {
	case "":
	case "pending":
		v := false
		f.Approved = &v
	case "published":
		v := true
		f.Approved = &v
	default:
		httpx.RespondError(w, fmt.Errorf("%w: state must be pending or published", httpx.ErrValidation))
		return
	}
	list, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list reviews", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reviews": list})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context())
	if err != nil {
		h.fail(w, "review summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := reviewID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rev, err := h.service.Approve(r.Context(), id)
	if err != nil {
		h.fail(w, "approve review", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rev)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := reviewID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete review", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrForbidden) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func reviewID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid review id", httpx.ErrValidation)
	}
	return id, nil
}
