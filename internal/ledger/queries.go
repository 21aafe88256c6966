package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/platform/db"
)

// Queries runs ledger SQL against a pool or a transaction. Packages that
// write ledger rows inside their own transaction build one over their pgx.Tx.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the ledger statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const entryColumns = `id, kind, origin, category, entry_date, description, amount, amount_paid,
	breakdown, items, customer_id, web_order, processed, processed_at, payroll_run_id, created_at, updated_at`

// InsertEntry writes a new entry. The caller assigns the id.
func (q *Queries) InsertEntry(ctx context.Context, e Entry) error {
	breakdown, err := jsonOrNil(e.Breakdown)
	if err != nil {
		return err
	}
	items := e.Items
	if items == nil {
		items = []Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("ledger: encode items: %w", err)
	}
	webOrder, err := jsonOrNil(e.WebOrder)
	if err != nil {
		return err
	}
	var processed pgtype.Bool
	var processedAt pgtype.Timestamptz
	if e.WebOrder != nil {
		processed = pgtype.Bool{Bool: e.WebOrder.Processed, Valid: true}
		if e.WebOrder.ProcessedAt != nil {
			processedAt = pgtype.Timestamptz{Time: *e.WebOrder.ProcessedAt, Valid: true}
		}
	}
	_, err = q.db.Exec(ctx, `
		INSERT INTO ledger_entries (
			id, kind, origin, category, entry_date, description, amount, amount_paid,
			breakdown, items, customer_id, web_order, processed, processed_at, payroll_run_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`,
		e.ID, string(e.Kind), string(e.Origin), e.Category, e.Date, e.Description, e.Amount, e.AmountPaid,
		breakdown, itemsJSON, e.CustomerID, webOrder, processed, processedAt, e.PayrollRunID, e.CreatedAt,
	)
	return err
}

// GetEntry loads one entry.
func (q *Queries) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	return q.getEntry(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
}

// GetEntryForUpdate loads one entry and locks its row until the transaction ends.
func (q *Queries) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (Entry, error) {
	return q.getEntry(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id)
}

func (q *Queries) getEntry(ctx context.Context, sql string, id uuid.UUID) (Entry, error) {
	e, err := scanEntry(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

// ListEntries returns entries matching f, newest first. A zero Limit returns
// every match.
func (q *Queries) ListEntries(ctx context.Context, f Filter) ([]Entry, error) {
	where, args := filterClause(f)
	sql := `SELECT ` + entryColumns + ` FROM ledger_entries` + where + ` ORDER BY entry_date DESC, created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func filterClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Origin != "" {
		add("origin = $%d", string(f.Origin))
	}
	if f.CustomerID != nil {
		add("customer_id = $%d", *f.CustomerID)
	}
	if f.InboxOnly {
		conds = append(conds, "origin = 'web' AND processed = FALSE")
	}
	if !f.From.IsZero() {
		add("entry_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("entry_date <= $%d", f.To)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(description ILIKE $%[1]d OR category ILIKE $%[1]d)", "%"+s+"%")
	}
	switch f.Status {
	case StatusPaid:
		conds = append(conds, "kind = 'income' AND amount_paid >= amount")
	case StatusPartial:
		conds = append(conds, "kind = 'income' AND amount_paid > 0 AND amount_paid < amount")
	case StatusUnpaid:
		conds = append(conds, "kind = 'income' AND amount_paid <= 0")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateAmountPaid stores the result of ApplyPayment.
func (q *Queries) UpdateAmountPaid(ctx context.Context, id uuid.UUID, paid decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, `UPDATE ledger_entries SET amount_paid = $2, updated_at = NOW() WHERE id = $1`, id, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// MarkProcessed completes the reconciliation of a web order: links the
// customer, records the paid amount and flips the processed flag.
func (q *Queries) MarkProcessed(ctx context.Context, e Entry) error {
	if e.WebOrder == nil {
		return fmt.Errorf("ledger: entry %s has no web order", e.ID)
	}
	webOrder, err := json.Marshal(e.WebOrder)
	if err != nil {
		return fmt.Errorf("ledger: encode web order: %w", err)
	}
	var processedAt time.Time
	if e.WebOrder.ProcessedAt != nil {
		processedAt = *e.WebOrder.ProcessedAt
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE ledger_entries
		SET customer_id = $2, amount_paid = $3, web_order = $4, processed = TRUE, processed_at = $5, updated_at = NOW()
		WHERE id = $1 AND origin = 'web' AND processed = FALSE`,
		e.ID, e.CustomerID, e.AmountPaid, webOrder, processedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// UpdateDetails sets only the named columns.
func (q *Queries) UpdateDetails(ctx context.Context, id uuid.UUID, p DetailsPatch) error {
	fields := p.columns()
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := []any{id}
	for _, col := range []string{"category", "entry_date", "description"} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	tag, err := q.db.Exec(ctx, `UPDATE ledger_entries SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteEntry removes an entry.
func (q *Queries) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM ledger_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// InsertPayment writes a receipt row.
func (q *Queries) InsertPayment(ctx context.Context, p Payment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO ledger_payments (id, entry_id, amount, method, note, recorded_by, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.EntryID, p.Amount, p.Method, p.Note, p.RecordedBy, p.ReceivedAt)
	return err
}

// ListPayments returns the receipts of an entry, oldest first.
func (q *Queries) ListPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, entry_id, amount, method, note, recorded_by, received_at
		FROM ledger_payments WHERE entry_id = $1 ORDER BY received_at`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.EntryID, &p.Amount, &p.Method, &p.Note, &p.RecordedBy, &p.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPayments reports how many receipts an entry has.
func (q *Queries) CountPayments(ctx context.Context, entryID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_payments WHERE entry_id = $1`, entryID).Scan(&n)
	return n, err
}

// CustomerExists reports whether a customer row exists.
func (q *Queries) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// NextInvoiceNumber returns the next storefront invoice sequence value.
func (q *Queries) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT nextval('web_invoice_seq')`).Scan(&n)
	return n, err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e           Entry
		kind        string
		origin      string
		breakdown   []byte
		items       []byte
		webOrder    []byte
		processed   pgtype.Bool
		processedAt pgtype.Timestamptz
	)
	err := row.Scan(&e.ID, &kind, &origin, &e.Category, &e.Date, &e.Description, &e.Amount, &e.AmountPaid,
		&breakdown, &items, &e.CustomerID, &webOrder, &processed, &processedAt, &e.PayrollRunID,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Kind = Kind(kind)
	e.Origin = Origin(origin)
	if len(breakdown) > 0 {
		e.Breakdown = &Breakdown{}
		if err := json.Unmarshal(breakdown, e.Breakdown); err != nil {
			return Entry{}, fmt.Errorf("ledger: decode breakdown of %s: %w", e.ID, err)
		}
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &e.Items); err != nil {
			return Entry{}, fmt.Errorf("ledger: decode items of %s: %w", e.ID, err)
		}
	}
	if len(webOrder) > 0 {
		e.WebOrder = &WebOrder{}
		if err := json.Unmarshal(webOrder, e.WebOrder); err != nil {
			return Entry{}, fmt.Errorf("ledger: decode web order of %s: %w", e.ID, err)
		}
		// the columns are authoritative; the document copy may lag
		e.WebOrder.Processed = processed.Valid && processed.Bool
		if processedAt.Valid {
			t := processedAt.Time
			e.WebOrder.ProcessedAt = &t
		}
	}
	return e, nil
}

func jsonOrNil(v any) (any, error) {
	switch t := v.(type) {
	case *Breakdown:
		if t == nil {
			return nil, nil
		}
	case *WebOrder:
		if t == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode: %w", err)
	}
	return raw, nil
}
