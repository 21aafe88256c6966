package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/greengold/nexus/internal/platform/db"
)

// WindowParams bounds a timeline query. Unset fields match everything.
type WindowParams struct {
	FromAt pgtype.Timestamptz
	ToAt   pgtype.Timestamptz
	Actor  pgtype.Text
	Entity pgtype.Text
	Action pgtype.Text
	Limit  int32
	Offset int32
}

// PGRepository reads audit_logs.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs the audit reader.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const timelineSQL = `
SELECT a.occurred_at, COALESCE(a.actor_id::text, ''), COALESCE(u.email, ''),
       a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2)
  AND ($3::text IS NULL OR u.email ILIKE '%' || $3 || '%')
  AND ($4::text IS NULL OR a.entity = $4)
  AND ($5::text IS NULL OR a.action LIKE $5 || '%')
ORDER BY a.occurred_at DESC, a.id DESC`

// Window returns one page of rows, newest first.
func (r *PGRepository) Window(ctx context.Context, p WindowParams) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineSQL+` LIMIT $6 OFFSET $7`,
		p.FromAt, p.ToAt, p.Actor, p.Entity, p.Action, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// All returns every matching row, newest first.
func (r *PGRepository) All(ctx context.Context, p WindowParams) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineSQL, p.FromAt, p.ToAt, p.Actor, p.Entity, p.Action)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.At, &out.ActorID, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return TimelineRow{}, err
			}
		}
		if out.Actor == "" && out.ActorID == "" {
			out.Actor = "system"
		}
		return out, nil
	})
}
