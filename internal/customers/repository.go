package customers

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

// Queries runs customer SQL against a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the customer statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const customerColumns = `id, name, email, phone, address, company, type, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var typ string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Company, &typ, &c.CreatedAt, &c.UpdatedAt)
	c.Type = Type(typ)
	return c, err
}

// List returns customers by name, optionally filtered by a search term.
func (q *Queries) List(ctx context.Context, search string) ([]Customer, error) {
	sql := `SELECT ` + customerColumns + ` FROM customers`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		args = append(args, "%"+s+"%")
		sql += ` WHERE name ILIKE $1 OR email ILIKE $1 OR company ILIKE $1`
	}
	rows, err := q.db.Query(ctx, sql+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get loads one customer.
func (q *Queries) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// FindByEmail matches case-insensitively.
func (q *Queries) FindByEmail(ctx context.Context, email string) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email <> '' AND LOWER(email) = LOWER($1)`, strings.TrimSpace(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

// Insert writes a new customer.
func (q *Queries) Insert(ctx context.Context, c Customer) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO customers (id, name, email, phone, address, company, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Company, string(c.Type), c.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// Update sets the given columns.
func (q *Queries) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := []any{id}
	for _, col := range []string{"name", "email", "phone", "address", "company", "type"} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	tag, err := q.db.Exec(ctx, `UPDATE customers SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// Delete removes a customer.
func (q *Queries) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// HasEntries reports whether any ledger entry references the customer.
func (q *Queries) HasEntries(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE customer_id = $1)`, id).Scan(&ok)
	return ok, err
}

// TxRepository exposes the statements run inside a transaction.
type TxRepository interface {
	Resolver
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasEntries(ctx context.Context, id uuid.UUID) (bool, error)
}

var _ TxRepository = (*Queries)(nil)

// Repository persists customers in PostgreSQL.
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
