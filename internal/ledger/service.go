package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/observability"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

const (
	idempotencyModule = "ledger.payment"
	defaultPageSize   = 50
	maxPageSize       = 200
)

// RepositoryPort abstracts ledger persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id uuid.UUID) (Entry, error)
	ListEntries(ctx context.Context, f Filter) ([]Entry, error)
	ListPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements entry bookkeeping and the payment recorder.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency shared.Idempotency
	events      events.Publisher
	metrics     *observability.BusinessMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, idem shared.Idempotency, publisher events.Publisher, metrics *observability.BusinessMetrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		events:      publisher,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ExpenseInput records money spent.
type ExpenseInput struct {
	Category    string          `json:"category" validate:"max=100"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
}

// IncomeInput records a flat, non-itemized receivable. Settled income is
// paid in full on creation through the payment recorder rules.
type IncomeInput struct {
	Category    string          `json:"category" validate:"max=100"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string          `json:"description" validate:"max=500"`
	Amount      decimal.Decimal `json:"amount"`
	CustomerID  *uuid.UUID      `json:"customerId,omitempty"`
	Settled     bool            `json:"settled"`
	Method      string          `json:"method" validate:"max=50"`
}

// PaymentInput is one receipt against an income entry.
type PaymentInput struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method" validate:"max=50"`
	Note           string          `json:"note" validate:"max=500"`
	IdempotencyKey string          `json:"-"`
}

// PaymentResult is the entry after the payment and the stored receipt.
type PaymentResult struct {
	Entry   Entry
	Payment Payment
}

// ParseDate reads a yyyy-mm-dd date, falling back when s is empty.
func ParseDate(s string, fallback time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, m, d := fallback.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be yyyy-mm-dd", httpx.ErrValidation)
	}
	return t, nil
}

// CreateExpense records a manual expense.
func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (Entry, error) {
	if err := shared.Authorize(ctx, shared.PermLedgerEdit); err != nil {
		return Entry{}, err
	}
	now := s.now()
	date, err := ParseDate(in.Date, now)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:          uuid.New(),
		Kind:        KindExpense,
		Origin:      OriginManual,
		Category:    defaultString(in.Category, CategoryOtherExpense),
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		AmountPaid:  decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertEntry(ctx, e)
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, "ledger.expense_created", e.ID, map[string]any{"amount": e.Amount.String(), "category": e.Category})
	s.publish(ctx, events.OpCreated, e.ID)
	return e, nil
}

// CreateIncome records a manual income entry.
func (s *Service) CreateIncome(ctx context.Context, in IncomeInput) (Entry, error) {
	if err := shared.Authorize(ctx, shared.PermLedgerEdit); err != nil {
		return Entry{}, err
	}
	now := s.now()
	date, err := ParseDate(in.Date, now)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:          uuid.New(),
		Kind:        KindIncome,
		Origin:      OriginManual,
		Category:    defaultString(in.Category, CategoryOtherIncome),
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		AmountPaid:  decimal.Zero,
		CustomerID:  in.CustomerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	var receipt *Payment
	if in.Settled {
		paid, err := ApplyPayment(e, e.Amount)
		if err != nil {
			return Entry{}, err
		}
		e = paid
		receipt = &Payment{
			ID:         uuid.New(),
			EntryID:    e.ID,
			Amount:     e.Amount,
			Method:     defaultString(in.Method, PaymentMethodCash),
			Note:       "settled on entry",
			RecordedBy: actorPtr(ctx),
			ReceivedAt: now,
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if e.CustomerID != nil {
			ok, err := tx.CustomerExists(ctx, *e.CustomerID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUnknownCustomer
			}
		}
		if err := tx.InsertEntry(ctx, e); err != nil {
			return err
		}
		if receipt != nil {
			return tx.InsertPayment(ctx, *receipt)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, "ledger.income_created", e.ID, map[string]any{"amount": e.Amount.String(), "settled": in.Settled})
	if receipt != nil {
		s.metrics.PaymentRecorded(string(e.Status()), receipt.Amount)
	}
	s.publish(ctx, events.OpCreated, e.ID)
	return e, nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

// List returns a page of entries matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.Status {
	case "", StatusPaid, StatusPartial, StatusUnpaid:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, f.Status)
	}
	return s.repo.ListEntries(ctx, f)
}

// UpdateDetails edits category, date or description. Amounts, items and
// payment state are never edited in place.
func (s *Service) UpdateDetails(ctx context.Context, id uuid.UUID, patch DetailsPatch) (Entry, error) {
	if err := shared.Authorize(ctx, shared.PermLedgerEdit); err != nil {
		return Entry{}, err
	}
	if patch.Category != nil {
		c := strings.TrimSpace(*patch.Category)
		patch.Category = &c
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
	}
	var updated Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)
		if patch.Empty() {
			return nil
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		updated.UpdatedAt = s.now()
		return tx.UpdateDetails(ctx, id, patch)
	})
	if err != nil {
		return Entry{}, err
	}
	if !patch.Empty() {
		s.record(ctx, "ledger.entry_updated", id, patch.columns())
		s.publish(ctx, events.OpUpdated, id)
	}
	return updated, nil
}

// Delete removes an entry that has taken no money and is not part of a
// payroll run.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := shared.Authorize(ctx, shared.PermLedgerEdit); err != nil {
		return err
	}
	var removed Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if e.IsPayroll() {
			return ErrPayrollLinked
		}
		if e.AmountPaid.IsPositive() {
			return ErrHasPayments
		}
		n, err := tx.CountPayments(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrHasPayments
		}
		removed = e
		return tx.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "ledger.entry_deleted", id, map[string]any{
		"kind":   string(removed.Kind),
		"origin": string(removed.Origin),
		"amount": removed.Amount.String(),
	})
	s.publish(ctx, events.OpDeleted, id)
	return nil
}

// RecordPayment applies a payment to an income entry. The entry row is locked
// for the duration so concurrent payments serialize and can never overpay.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, in PaymentInput) (PaymentResult, error) {
	if err := shared.Authorize(ctx, shared.PermPaymentsRecord); err != nil {
		return PaymentResult{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	claimed := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, id.String()+":"+key, idempotencyModule); err != nil {
			return PaymentResult{}, err
		}
		claimed = true
	}

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if e.IsWebOrder() {
			return ErrWebOrderPending
		}
		paid, err := ApplyPayment(e, in.Amount)
		if err != nil {
			return err
		}
		paid.UpdatedAt = s.now()
		if err := tx.UpdateAmountPaid(ctx, id, paid.AmountPaid); err != nil {
			return err
		}
		p := Payment{
			ID:         uuid.New(),
			EntryID:    id,
			Amount:     in.Amount,
			Method:     defaultString(in.Method, PaymentMethodCash),
			Note:       strings.TrimSpace(in.Note),
			RecordedBy: actorPtr(ctx),
			ReceivedAt: paid.UpdatedAt,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		result = PaymentResult{Entry: paid, Payment: p}
		return nil
	})
	if err != nil {
		if claimed {
			if derr := s.idempotency.Delete(ctx, id.String()+":"+key, idempotencyModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return PaymentResult{}, err
	}

	status := result.Entry.Status()
	s.record(ctx, "ledger.payment_recorded", id, map[string]any{
		"payment_id":  result.Payment.ID.String(),
		"amount":      in.Amount.String(),
		"amount_paid": result.Entry.AmountPaid.String(),
		"status":      string(status),
	})
	s.metrics.PaymentRecorded(string(status), in.Amount)
	s.publish(ctx, events.OpUpdated, id)
	return result, nil
}

// ListPayments returns the receipts of an entry.
func (s *Service) ListPayments(ctx context.Context, id uuid.UUID) ([]Payment, error) {
	if _, err := s.repo.GetEntry(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, id)
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "ledger_entry",
		EntityID: id.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit ledger", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, op events.Op, id uuid.UUID) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Change{Collection: events.Transactions, ID: id.String(), Op: op})
}

func actorPtr(ctx context.Context) *uuid.UUID {
	id := shared.ActorID(ctx)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func defaultString(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}
