package weborders

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler wires the storefront checkout and the staff inbox.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the web order handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountPublicRoutes registers the unauthenticated checkout.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/checkout", h.checkout)
}

// MountRoutes registers the staff inbox.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermWebOrdersView))
		r.Get("/", h.inbox)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermWebOrdersProcess))
		r.Post("/{id}/process", h.process)
	})
}

type checkoutResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Items         []ledger.Item   `json:"items"`
}

type processResponse struct {
	Entry            ledger.EntryView     `json:"entry"`
	Customer         *customers.Customer  `json:"customer,omitempty"`
	CustomerCreated  bool                 `json:"customerCreated"`
	AlreadyProcessed bool                 `json:"alreadyProcessed"`
	Movements        []inventory.Movement `json:"movements"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	entry, err := h.service.Checkout(r.Context(), req)
	if err != nil {
		h.fail(w, "checkout", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, checkoutResponse{
		ID:            entry.ID,
		InvoiceNumber: entry.WebOrder.InvoiceNumber,
		Amount:        entry.Amount,
		Items:         entry.Items,
	})
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Inbox(r.Context())
	if err != nil {
		h.fail(w, "list web orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": ledger.NewEntryViews(entries)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get web order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger.NewEntryView(e))
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Process(r.Context(), id)
	if err != nil {
		h.fail(w, "process web order", err)
		return
	}
	moves := res.Movements
	if moves == nil {
		moves = []inventory.Movement{}
	}
	httpx.JSON(w, http.StatusOK, processResponse{
		Entry:            ledger.NewEntryView(res.Entry),
		Customer:         res.Customer,
		CustomerCreated:  res.CustomerCreated,
		AlreadyProcessed: res.AlreadyProcessed,
		Movements:        moves,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid order id", httpx.ErrValidation)
	}
	return id, nil
}
