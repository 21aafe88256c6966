package invoicing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/observability"
	"github.com/greengold/nexus/internal/platform/db"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

const idempotencyModule = "invoicing"

// TxRepository is what creating an invoice touches inside one transaction.
type TxRepository interface {
	inventory.StockWriter
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
	InsertEntry(ctx context.Context, e ledger.Entry) error
}

// RepositoryPort opens invoice transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type txRepo struct {
	*ledger.Queries
	inventory.StockWriter
}

// Repository composes the ledger and inventory statements over one pgx.Tx.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepo{Queries: ledger.NewQueries(tx), StockWriter: inventory.NewQueries(tx)})
	})
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Result is the booked invoice and the stock it consumed.
type Result struct {
	Entry     ledger.Entry         `json:"-"`
	Movements []inventory.Movement `json:"movements"`
}

// Service books invoices.
type Service struct {
	repo        RepositoryPort
	builder     Builder
	audit       AuditPort
	idempotency shared.Idempotency
	events      events.Publisher
	metrics     *observability.BusinessMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the invoicing service.
func NewService(repo RepositoryPort, builder Builder, audit AuditPort, idem shared.Idempotency, publisher events.Publisher, metrics *observability.BusinessMetrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo: repo, builder: builder, audit: audit, idempotency: idem, events: publisher,
		metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() },
	}
}

// Preview prices a request without writing anything.
func (s *Service) Preview(ctx context.Context, req Request) (ledger.Totals, *ledger.Breakdown, error) {
	return s.builder.Preview(req)
}

// CreateInvoice books the invoice and decrements stock for its catalog lines
// in one transaction. A stock shortfall aborts the whole invoice.
func (s *Service) CreateInvoice(ctx context.Context, req Request) (Result, error) {
	if err := shared.Authorize(ctx, shared.PermLedgerEdit); err != nil {
		return Result{}, err
	}
	entry, err := s.builder.Build(req, s.now())
	if err != nil {
		return Result{}, err
	}
	claimed := false
	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, idempotencyModule); err != nil {
			return Result{}, err
		}
		claimed = true
	}

	var moves []inventory.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.CustomerExists(ctx, *entry.CustomerID)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.ErrUnknownCustomer
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		moves, err = inventory.ApplySale(ctx, tx, inventory.SaleLines(entry.Items))
		return err
	})
	if err != nil {
		if claimed {
			if derr := s.idempotency.Delete(ctx, req.IdempotencyKey, idempotencyModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		if errors.Is(err, inventory.ErrInsufficientStock) {
			s.metrics.StockConflict("invoice")
		}
		return Result{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorID(ctx),
			Action:   "invoice.created",
			Entity:   "ledger_entry",
			EntityID: entry.ID.String(),
			Meta: map[string]any{
				"customer_id": entry.CustomerID.String(),
				"amount":      entry.Amount.String(),
				"lines":       len(entry.Items),
			},
		}); aerr != nil {
			s.logger.Warn("audit invoice", slog.Any("error", aerr))
		}
	}
	s.metrics.InvoiceCreated(string(ledger.OriginInvoice), entry.Amount)
	if s.events != nil {
		changes := []events.Change{{Collection: events.Transactions, ID: entry.ID.String(), Op: events.OpCreated}}
		for _, m := range moves {
			changes = append(changes, events.Change{Collection: events.Plants, ID: m.ItemID.String(), Op: events.OpUpdated})
		}
		s.events.Publish(ctx, changes...)
	}
	return Result{Entry: entry, Movements: moves}, nil
}
