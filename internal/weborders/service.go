package weborders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/observability"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

const checkoutModule = "weborders.checkout"

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReceiptQueue schedules the customer receipt for a reconciled order.
type ReceiptQueue interface {
	EnqueueReceipt(ctx context.Context, entryID uuid.UUID) error
}

// Service runs storefront intake and the reconciliation transition.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency shared.Idempotency
	events      events.Publisher
	receipts    ReceiptQueue
	metrics     *observability.BusinessMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// Options groups the optional collaborators of Service.
type Options struct {
	Audit       AuditPort
	Idempotency shared.Idempotency
	Events      events.Publisher
	Receipts    ReceiptQueue
	Metrics     *observability.BusinessMetrics
	Logger      *slog.Logger
}

// NewService constructs the web order service.
func NewService(repo RepositoryPort, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		audit:       opts.Audit,
		idempotency: opts.Idempotency,
		events:      opts.Events,
		receipts:    opts.Receipts,
		metrics:     opts.Metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Checkout materializes a storefront cart as an unpaid web order in the
// inbox. Stock is checked but not taken; that happens on reconciliation.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (ledger.Entry, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if len(req.Items) == 0 {
		return ledger.Entry{}, ledger.ErrEmptyCart
	}
	claimed := false
	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, checkoutModule); err != nil {
			return ledger.Entry{}, err
		}
		claimed = true
	}

	now := s.now()
	var entry ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := s.priceCart(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		totals, err := ledger.ComputeTotals(items, ledger.Rates{})
		if err != nil {
			return err
		}
		seq, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return fmt.Errorf("weborders: next invoice number: %w", err)
		}
		entry = ledger.Entry{
			ID:          uuid.New(),
			Kind:        ledger.KindIncome,
			Origin:      ledger.OriginWeb,
			Category:    ledger.CategoryWebSales,
			Date:        now,
			Description: "Web Order: " + req.Name,
			Amount:      totals.Amount,
			AmountPaid:  decimal.Zero,
			Breakdown:   ledger.BreakdownFor(totals, ledger.Rates{}),
			Items:       items,
			WebOrder: &ledger.WebOrder{
				InvoiceNumber: invoiceNumber(seq),
				Contact:       req.contact(),
				PaymentMethod: req.PaymentMethod,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		if claimed {
			if derr := s.idempotency.Delete(ctx, req.IdempotencyKey, checkoutModule); derr != nil {
				s.logger.Warn("release checkout key", slog.Any("error", derr))
			}
		}
		return ledger.Entry{}, err
	}

	s.metrics.WebOrderReceived()
	s.logger.Info("web order received",
		slog.String("entry_id", entry.ID.String()),
		slog.String("invoice_number", entry.WebOrder.InvoiceNumber),
		slog.String("amount", entry.Amount.StringFixed(2)),
	)
	s.publish(ctx, events.Change{Collection: events.Transactions, ID: entry.ID.String(), Op: events.OpCreated})
	return entry, nil
}

// priceCart resolves cart lines against the catalog in request order.
func (s *Service) priceCart(ctx context.Context, tx TxRepository, lines []CartLine) ([]ledger.Item, error) {
	wanted := make(map[uuid.UUID]int, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if l.Qty <= 0 {
			return nil, inventory.ErrInvalidQuantity
		}
		if _, seen := wanted[l.PlantID]; !seen {
			ids = append(ids, l.PlantID)
		}
		wanted[l.PlantID] += l.Qty
	}
	catalog, err := tx.LockItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		item, ok := catalog[id]
		if !ok || !item.Active {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlant, id)
		}
		if item.Stock < wanted[id] {
			return nil, fmt.Errorf("%w: %s has %d left", ErrOutOfStock, item.Name, item.Stock)
		}
	}
	items := make([]ledger.Item, 0, len(lines))
	for _, l := range lines {
		item := catalog[l.PlantID]
		id := item.ID
		items = append(items, ledger.Item{Description: item.Name, Price: item.Price, Qty: l.Qty, InventoryID: &id})
	}
	return items, nil
}

// Inbox lists web orders awaiting reconciliation, newest first.
func (s *Service) Inbox(ctx context.Context) ([]ledger.Entry, error) {
	return s.repo.ListEntries(ctx, ledger.Filter{InboxOnly: true})
}

// Get returns a single web order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.Entry, error) {
	e, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	if e.Origin != ledger.OriginWeb || e.WebOrder == nil {
		return ledger.Entry{}, ErrNotWebOrder
	}
	return e, nil
}

// Process reconciles a web order: it links or creates the customer, settles
// the balance, flips the processed flag and takes the stock, all in one
// transaction. Processing an order twice is a no-op.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (ProcessResult, error) {
	if err := shared.Authorize(ctx, shared.PermWebOrdersProcess); err != nil {
		return ProcessResult{}, err
	}
	now := s.now()
	var res ProcessResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res = ProcessResult{}
		e, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if e.Origin != ledger.OriginWeb || e.WebOrder == nil {
			return ErrNotWebOrder
		}
		if e.WebOrder.Processed {
			res = ProcessResult{Entry: e, AlreadyProcessed: true}
			return nil
		}

		cust, created, err := customers.ResolveContact(ctx, tx, e.WebOrder.Contact, now)
		if err != nil {
			return err
		}
		due := ledger.BalanceDue(e)
		e, err = ledger.ApplyPayment(e, due)
		if err != nil {
			return err
		}
		order := *e.WebOrder
		order.Processed = true
		order.ProcessedAt = &now
		e.WebOrder = &order
		e.CustomerID = &cust.ID
		e.UpdatedAt = now
		if err := e.Validate(); err != nil {
			return err
		}
		if err := tx.MarkProcessed(ctx, e); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, ledger.Payment{
			ID:         uuid.New(),
			EntryID:    e.ID,
			Amount:     due,
			Method:     order.PaymentMethod,
			Note:       "Web order " + order.InvoiceNumber,
			RecordedBy: actorPtr(ctx),
			ReceivedAt: now,
		}); err != nil {
			return err
		}
		moves, err := inventory.ApplySale(ctx, tx, inventory.SaleLines(e.Items))
		if err != nil {
			return err
		}
		res = ProcessResult{Entry: e, Customer: &cust, CustomerCreated: created, Movements: moves}
		return nil
	})
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			s.metrics.StockConflict("weborder")
		}
		return ProcessResult{}, err
	}
	if res.AlreadyProcessed {
		return res, nil
	}

	s.recordAudit(ctx, res)
	s.metrics.WebOrderProcessed()
	s.metrics.PaymentRecorded(string(ledger.StatusPaid), res.Entry.AmountPaid)
	changes := []events.Change{{Collection: events.Transactions, ID: res.Entry.ID.String(), Op: events.OpUpdated}}
	if res.CustomerCreated {
		changes = append(changes, events.Change{Collection: events.Customers, ID: res.Customer.ID.String(), Op: events.OpCreated})
	}
	for _, m := range res.Movements {
		changes = append(changes, events.Change{Collection: events.Plants, ID: m.ItemID.String(), Op: events.OpUpdated})
	}
	s.publish(ctx, changes...)
	if s.receipts != nil {
		if err := s.receipts.EnqueueReceipt(ctx, res.Entry.ID); err != nil {
			s.logger.Warn("enqueue receipt", slog.String("entry_id", res.Entry.ID.String()), slog.Any("error", err))
		}
	}
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, res ProcessResult) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   "weborder.processed",
		Entity:   "ledger_entry",
		EntityID: res.Entry.ID.String(),
		Meta: map[string]any{
			"invoice_number":   res.Entry.WebOrder.InvoiceNumber,
			"customer_id":      res.Customer.ID.String(),
			"customer_created": res.CustomerCreated,
			"amount":           res.Entry.Amount.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit web order", slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, changes ...events.Change) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, changes...)
}

func actorPtr(ctx context.Context) *uuid.UUID {
	id := shared.ActorID(ctx)
	if id == uuid.Nil {
		return nil
	}
	return &id
}
