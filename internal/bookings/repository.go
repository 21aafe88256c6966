package bookings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greengold/nexus/internal/platform/db"
)

// Queries runs booking SQL against a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the booking statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const bookingColumns = `id, name, phone, email, service, preferred_date, notes, status, created_at, updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	var status string
	err := row.Scan(&b.ID, &b.Name, &b.Phone, &b.Email, &b.Service, &b.PreferredDate, &b.Notes, &status, &b.CreatedAt, &b.UpdatedAt)
	b.Status = Status(status)
	return b, err
}

// List returns bookings newest first.
func (q *Queries) List(ctx context.Context, f Filter) ([]Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		sql += ` WHERE status = $1`
	}
	rows, err := q.db.Query(ctx, sql+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get loads one booking.
func (q *Queries) Get(ctx context.Context, id uuid.UUID) (Booking, error) {
	b, err := scanBooking(q.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrBookingNotFound
	}
	return b, err
}

// GetForUpdate loads and locks one booking.
func (q *Queries) GetForUpdate(ctx context.Context, id uuid.UUID) (Booking, error) {
	b, err := scanBooking(q.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrBookingNotFound
	}
	return b, err
}

// Insert writes a new booking.
func (q *Queries) Insert(ctx context.Context, b Booking) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO bookings (id, name, phone, email, service, preferred_date, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		b.ID, b.Name, b.Phone, b.Email, b.Service, b.PreferredDate, b.Notes, string(b.Status), b.CreatedAt)
	return err
}

// SetStatus changes only the status column.
func (q *Queries) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := q.db.Exec(ctx, `UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// Delete removes a booking.
func (q *Queries) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// CountPending counts requests still waiting on staff.
func (q *Queries) CountPending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE status = $1`, string(StatusPending)).Scan(&n)
	return n, err
}

// TxRepository exposes the statements run inside a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Booking, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
}

var _ TxRepository = (*Queries)(nil)

// Repository persists bookings in PostgreSQL.
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
