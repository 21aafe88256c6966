package weborders

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/db"
)

// TxRepository spans the ledger, customers and stock inside one transaction.
type TxRepository interface {
	inventory.StockWriter
	customers.Resolver
	InsertEntry(ctx context.Context, e ledger.Entry) error
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
	MarkProcessed(ctx context.Context, e ledger.Entry) error
	InsertPayment(ctx context.Context, p ledger.Payment) error
	NextInvoiceNumber(ctx context.Context) (int64, error)
}

// RepositoryPort is the persistence the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.Entry, error)
}

type txRepo struct {
	*ledger.Queries
	stock  *inventory.Queries
	people *customers.Queries
}

func (t txRepo) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Item, error) {
	return t.stock.LockItems(ctx, ids)
}

func (t txRepo) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	return t.stock.DecrementStock(ctx, id, qty)
}

func (t txRepo) FindByEmail(ctx context.Context, email string) (customers.Customer, error) {
	return t.people.FindByEmail(ctx, email)
}

func (t txRepo) Insert(ctx context.Context, c customers.Customer) error {
	return t.people.Insert(ctx, c)
}

// Repository reads through the ledger statements and writes across modules.
type Repository struct {
	*ledger.Queries
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Queries: ledger.NewQueries(pool), pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepo{
			Queries: ledger.NewQueries(tx),
			stock:   inventory.NewQueries(tx),
			people:  customers.NewQueries(tx),
		})
	})
}
