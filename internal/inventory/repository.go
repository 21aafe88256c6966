package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greengold/nexus/internal/platform/db"
)

// Queries runs catalog SQL against a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the catalog statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

var _ StockWriter = (*Queries)(nil)

const itemColumns = `id, name, price, stock, category, description, image_url, active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var i Item
	err := row.Scan(&i.ID, &i.Name, &i.Price, &i.Stock, &i.Category, &i.Description, &i.ImageURL, &i.Active, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

// List returns catalog items ordered by name.
func (q *Queries) List(ctx context.Context, f ListFilter) ([]Item, error) {
	var conds []string
	var args []any
	if f.ActiveOnly {
		conds = append(conds, "active")
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		args = append(args, c)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	sql := `SELECT ` + itemColumns + ` FROM plants`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := q.db.Query(ctx, sql+" ORDER BY name", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Get loads one item.
func (q *Queries) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	item, err := scanItem(q.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM plants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}

// Insert writes a new item.
func (q *Queries) Insert(ctx context.Context, i Item) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO plants (id, name, price, stock, category, description, image_url, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		i.ID, i.Name, i.Price, i.Stock, i.Category, i.Description, i.ImageURL, i.Active, i.CreatedAt)
	return err
}

// Update sets the given columns.
func (q *Queries) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := []any{id}
	for _, col := range []string{"name", "price", "category", "description", "image_url", "active"} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	tag, err := q.db.Exec(ctx, `UPDATE plants SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Delete removes an item.
func (q *Queries) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM plants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// LockItems row-locks the items in id order.
func (q *Queries) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error) {
	rows, err := q.db.Query(ctx, `SELECT `+itemColumns+` FROM plants WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]Item, len(ids))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, rows.Err()
}

// DecrementStock subtracts qty when enough stock remains.
func (q *Queries) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE plants SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AdjustStock adds delta (which may be negative) unless the result would go
// below zero, and returns the new count.
func (q *Queries) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var stock int
	err := q.db.QueryRow(ctx, `
		UPDATE plants SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`, id, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if _, gerr := q.Get(ctx, id); gerr != nil {
		return 0, gerr
	}
	return 0, ErrInsufficientStock
}

// TxRepository exposes the statements the service runs inside a transaction.
type TxRepository interface {
	StockWriter
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	Insert(ctx context.Context, i Item) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

// Repository persists the catalog in PostgreSQL.
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
