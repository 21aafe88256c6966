package invoicing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler exposes invoice creation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the invoicing handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermLedgerEdit))
		r.Post("/", h.create)
		r.Post("/preview", h.preview)
	})
}

type previewResponse struct {
	SubTotal       decimal.Decimal   `json:"subTotal"`
	DiscountAmount decimal.Decimal   `json:"discAmt"`
	TaxAmount      decimal.Decimal   `json:"taxAmt"`
	Amount         decimal.Decimal   `json:"amount"`
	Breakdown      *ledger.Breakdown `json:"breakdown"`
	Description    string            `json:"description"`
}

type createResponse struct {
	Entry     ledger.EntryView     `json:"entry"`
	Movements []inventory.Movement `json:"movements"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !h.decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	res, err := h.service.CreateInvoice(r.Context(), req)
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	moves := res.Movements
	if moves == nil {
		moves = []inventory.Movement{}
	}
	httpx.JSON(w, http.StatusCreated, createResponse{Entry: ledger.NewEntryView(res.Entry), Movements: moves})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, breakdown, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.fail(w, "preview invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, previewResponse{
		SubTotal:       totals.SubTotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		Amount:         totals.Amount,
		Breakdown:      breakdown,
		Description:    ledger.ItemsDescription(req.Items),
	})
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
