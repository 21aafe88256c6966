package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/platform/db"
)

// TxRepository exposes the statements the service runs inside a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, e Entry) error
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (Entry, error)
	UpdateAmountPaid(ctx context.Context, id uuid.UUID, paid decimal.Decimal) error
	UpdateDetails(ctx context.Context, id uuid.UUID, p DetailsPatch) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	InsertPayment(ctx context.Context, p Payment) error
	CountPayments(ctx context.Context, entryID uuid.UUID) (int, error)
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
}

var _ TxRepository = (*Queries)(nil)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	*Queries
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Queries: NewQueries(pool), pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

// DetailsPatch carries the editable descriptive fields. Nil fields are left alone.
type DetailsPatch struct {
	Category    *string
	Date        *time.Time
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p DetailsPatch) Empty() bool {
	return p.Category == nil && p.Date == nil && p.Description == nil
}

func (p DetailsPatch) columns() map[string]any {
	fields := make(map[string]any, 3)
	if p.Category != nil {
		fields["category"] = *p.Category
	}
	if p.Date != nil {
		fields["entry_date"] = *p.Date
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	return fields
}

// Apply returns e with the patch applied.
func (p DetailsPatch) Apply(e Entry) Entry {
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	return e
}
