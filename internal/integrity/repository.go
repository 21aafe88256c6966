package integrity

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/db"
)

// Repository loads snapshots from PostgreSQL.
type Repository struct {
	db      db.DBTX
	entries *ledger.Queries
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn, entries: ledger.NewQueries(conn)}
}

// Snapshot reads entries, run totals, receipt sums and stock levels.
func (r *Repository) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Entries, err = r.entries.ListEntries(ctx, ledger.Filter{}); err != nil {
		return Snapshot{}, err
	}
	if s.Runs, err = r.runTotals(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Payments, err = r.paymentTotals(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Stock, err = r.stockLevels(ctx); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func (r *Repository) runTotals(ctx context.Context) ([]RunTotals, error) {
	rows, err := r.db.Query(ctx, `
		SELECT pr.id, pr.month, pr.total_paid, COALESCE(SUM(l.net_pay), 0), COUNT(l.employee_id)
		FROM payroll_runs pr LEFT JOIN payroll_run_lines l ON l.run_id = pr.id
		GROUP BY pr.id, pr.month, pr.total_paid
		ORDER BY pr.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunTotals
	for rows.Next() {
		var t RunTotals
		if err := rows.Scan(&t.ID, &t.Month, &t.TotalPaid, &t.LinesSum, &t.Lines); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) paymentTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `SELECT entry_id, SUM(amount) FROM ledger_payments GROUP BY entry_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var id uuid.UUID
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		out[id] = sum
	}
	return out, rows.Err()
}

func (r *Repository) stockLevels(ctx context.Context) ([]StockLevel, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, stock FROM plants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockLevel
	for rows.Next() {
		var s StockLevel
		if err := rows.Scan(&s.ID, &s.Name, &s.Stock); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
