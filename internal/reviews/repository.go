package reviews

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/greengold/nexus/internal/platform/db"
)

// Queries runs review SQL.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the review statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const reviewColumns = `id, name, rating, body, approved, approved_at, created_at`

func scanReview(row pgx.Row) (Review, error) {
	var r Review
	err := row.Scan(&r.ID, &r.Name, &r.Rating, &r.Text, &r.Approved, &r.ApprovedAt, &r.CreatedAt)
	return r, err
}

// List returns reviews newest first.
func (q *Queries) List(ctx context.Context, f Filter) ([]Review, error) {
	sql := `SELECT ` + reviewColumns + ` FROM reviews`
	var args []any
	if f.Approved != nil {
		args = append(args, *f.Approved)
		sql += ` WHERE approved = $1`
	}
	rows, err := q.db.Query(ctx, sql+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert writes a new review.
func (q *Queries) Insert(ctx context.Context, r Review) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO reviews (id, name, rating, body, approved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Name, r.Rating, r.Text, r.Approved, r.CreatedAt)
	return err
}

// Approve publishes a review. The first approval time is kept.
func (q *Queries) Approve(ctx context.Context, id uuid.UUID, at time.Time) (Review, error) {
	r, err := scanReview(q.db.QueryRow(ctx, `
		UPDATE reviews SET approved = TRUE, approved_at = COALESCE(approved_at, $2)
		WHERE id = $1
		RETURNING `+reviewColumns, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, ErrReviewNotFound
	}
	return r, err
}

// Delete removes a review.
func (q *Queries) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// Summarize counts pending and published reviews and averages every rating.
func (q *Queries) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE NOT approved),
		       COUNT(*) FILTER (WHERE approved),
		       COALESCE(AVG(rating), 0)::float8
		FROM reviews`).Scan(&s.Pending, &s.Published, &s.AverageRating)
	return s, err
}
