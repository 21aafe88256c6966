package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/rbac"
	"github.com/greengold/nexus/internal/shared"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermLedgerView))
		r.Get("/entries", h.list)
		r.Get("/entries/{id}", h.get)
		r.Get("/entries/{id}/payments", h.listPayments)
		r.Get("/categories", h.categories)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermLedgerEdit))
		r.Post("/expenses", h.createExpense)
		r.Post("/income", h.createIncome)
		r.Patch("/entries/{id}", h.update)
		r.Delete("/entries/{id}", h.delete)
	})
	r.With(h.rbac.RequireAll(shared.PermPaymentsRecord)).Post("/entries/{id}/payments", h.recordPayment)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := FilterFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": NewEntryViews(entries)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewEntryView(e))
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string][]string{"income": IncomeCategories, "expense": ExpenseCategories})
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	var in ExpenseInput
	if !h.decode(w, r, &in) {
		return
	}
	e, err := h.service.CreateExpense(r.Context(), in)
	if err != nil {
		h.fail(w, "create expense", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewEntryView(e))
}

func (h *Handler) createIncome(w http.ResponseWriter, r *http.Request) {
	var in IncomeInput
	if !h.decode(w, r, &in) {
		return
	}
	e, err := h.service.CreateIncome(r.Context(), in)
	if err != nil {
		h.fail(w, "create income", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewEntryView(e))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch, err := req.Patch()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	e, err := h.service.UpdateDetails(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewEntryView(e))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in PaymentInput
	if !h.decode(w, r, &in) {
		return
	}
	in.IdempotencyKey = r.Header.Get("Idempotency-Key")
	res, err := h.service.RecordPayment(r.Context(), id, in)
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, paymentResponse{Entry: NewEntryView(res.Entry), Payment: res.Payment})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := entryID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
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

func entryID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid entry id", httpx.ErrValidation)
	}
	return id, nil
}

// FilterFromQuery reads entry filters and paging from the query string.
func FilterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	page := shared.PaginationFromQuery(q)
	f := Filter{
		Kind:   Kind(q.Get("type")),
		Origin: Origin(q.Get("origin")),
		Status: Status(q.Get("status")),
		Search: q.Get("q"),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	switch f.Kind {
	case "", KindIncome, KindExpense:
	default:
		return Filter{}, fmt.Errorf("%w: type must be income or expense", httpx.ErrValidation)
	}
	if v := q.Get("customer"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: invalid customer id", httpx.ErrValidation)
		}
		f.CustomerID = &id
	}
	if v := q.Get("inbox"); v != "" {
		inbox, err := strconv.ParseBool(v)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: inbox must be a boolean", httpx.ErrValidation)
		}
		f.InboxOnly = inbox
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		d, err := ParseDate(v, time.Time{})
		if err != nil {
			return Filter{}, err
		}
		f.From = d
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		d, err := ParseDate(v, time.Time{})
		if err != nil {
			return Filter{}, err
		}
		f.To = d
	}
	return f, nil
}
