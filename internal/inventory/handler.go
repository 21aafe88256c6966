package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers staff inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/adjust", h.adjust)
	})
}

// MountPublicRoutes registers the storefront catalog.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/plants", h.publicList)
	r.Get("/plants/{id}", h.publicGet)
}

// PublicItem is what the storefront sees: no exact stock counts.
type PublicItem struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ImageURL    string          `json:"imageUrl"`
	InStock     bool            `json:"inStock"`
}

func publicItem(i Item) PublicItem {
	return PublicItem{ID: i.ID, Name: i.Name, Price: i.Price, Category: i.Category, Description: i.Description, ImageURL: i.ImageURL, InStock: i.InStock()}
}

type adjustRequest struct {
	Delta int    `json:"delta" validate:"required,ne=0"`
	Note  string `json:"note" validate:"max=500"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.List(r.Context(), ListFilter{Category: q.Get("category"), Search: q.Get("q"), ActiveOnly: q.Get("active") == "true"})
	if err != nil {
		h.fail(w, "list inventory", err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get inventory item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	item, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create inventory item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var p Patch
	if !h.decode(w, r, &p) {
		return
	}
	item, err := h.service.Update(r.Context(), id, p)
	if err != nil {
		h.fail(w, "update inventory item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete inventory item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.Adjust(r.Context(), id, req.Delta, req.Note)
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) publicList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.service.List(r.Context(), ListFilter{ActiveOnly: true, Category: q.Get("category"), Search: q.Get("q")})
	if err != nil {
		h.fail(w, "list catalog", err)
		return
	}
	out := make([]PublicItem, 0, len(items))
	for _, i := range items {
		out = append(out, publicItem(i))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plants": out})
}

func (h *Handler) publicGet(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err == nil && !item.Active {
		err = ErrItemNotFound
	}
	if err != nil {
		h.fail(w, "get catalog item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, publicItem(item))
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
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func itemID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid item id", httpx.ErrValidation)
	}
	return id, nil
}
