package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/db"
)

// Queries runs payroll SQL against a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries binds the payroll statements to conn.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const employeeColumns = `id, name, role, email, phone, base_salary, active, hired_at, created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Name, &e.Role, &e.Email, &e.Phone, &e.BaseSalary, &e.Active, &e.HiredAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func collectEmployees(rows pgx.Rows) ([]Employee, error) {
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEmployees returns employees by name.
func (q *Queries) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	sql := `SELECT ` + employeeColumns + ` FROM employees`
	if activeOnly {
		sql += ` WHERE active`
	}
	rows, err := q.db.Query(ctx, sql+` ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	return collectEmployees(rows)
}

// GetEmployee loads one employee.
func (q *Queries) GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error) {
	e, err := scanEmployee(q.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

// EmployeesForRun loads and share-locks the employees to pay. An empty id
// list selects every active employee in name order; otherwise the given
// order is kept.
func (q *Queries) EmployeesForRun(ctx context.Context, ids []uuid.UUID) ([]Employee, error) {
	if len(ids) == 0 {
		rows, err := q.db.Query(ctx, `SELECT `+employeeColumns+` FROM employees WHERE active ORDER BY name, id FOR SHARE`)
		if err != nil {
			return nil, err
		}
		return collectEmployees(rows)
	}
	rows, err := q.db.Query(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ANY($1) ORDER BY id FOR SHARE`, ids)
	if err != nil {
		return nil, err
	}
	found, err := collectEmployees(rows)
	if err != nil {
		return nil, err
	}
	return orderEmployees(found, ids)
}

func orderEmployees(found []Employee, ids []uuid.UUID) ([]Employee, error) {
	byID := make(map[uuid.UUID]Employee, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	out := make([]Employee, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: employee %s listed twice", ErrInvalidRun, id)
		}
		seen[id] = true
		e, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
		}
		out = append(out, e)
	}
	return out, nil
}

// InsertEmployee writes a new employee.
func (q *Queries) InsertEmployee(ctx context.Context, e Employee) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO employees (id, name, role, email, phone, base_salary, active, hired_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		e.ID, e.Name, e.Role, e.Email, e.Phone, e.BaseSalary, e.Active, e.HiredAt, e.CreatedAt)
	return err
}

// UpdateEmployee replaces an employee's editable details.
func (q *Queries) UpdateEmployee(ctx context.Context, e Employee) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE employees
		SET name = $2, role = $3, email = $4, phone = $5, base_salary = $6, active = $7, hired_at = $8, updated_at = NOW()
		WHERE id = $1`,
		e.ID, e.Name, e.Role, e.Email, e.Phone, e.BaseSalary, e.Active, e.HiredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

// DeleteEmployee removes an employee and their HR records.
func (q *Queries) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

// EmployeePaid reports whether any run paid the employee.
func (q *Queries) EmployeePaid(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payroll_run_lines WHERE employee_id = $1)`, id).Scan(&ok)
	return ok, err
}

// InsertRecord writes an HR record.
func (q *Queries) InsertRecord(ctx context.Context, r HRRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO hr_records (id, employee_id, category, title, notes, days, score, record_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.EmployeeID, string(r.Category), r.Title, r.Notes, r.Days, r.Score, r.Date, r.CreatedAt)
	return err
}

// ListRecords returns an employee's file, newest first.
func (q *Queries) ListRecords(ctx context.Context, employeeID uuid.UUID) ([]HRRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, employee_id, category, title, notes, days, score, record_date, created_at
		FROM hr_records WHERE employee_id = $1
		ORDER BY record_date DESC, created_at DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HRRecord
	for rows.Next() {
		var r HRRecord
		var category string
		if err := rows.Scan(&r.ID, &r.EmployeeID, &category, &r.Title, &r.Notes, &r.Days, &r.Score, &r.Date, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Category = RecordCategory(category)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRun writes the run header and its lines.
func (q *Queries) InsertRun(ctx context.Context, r Run) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO payroll_runs (id, month, total_paid, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.Month, r.TotalPaid, r.CreatedBy, r.CreatedAt); err != nil {
		return err
	}
	for _, l := range r.Lines {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO payroll_run_lines (run_id, employee_id, employee_name, base_salary, bonus, deduction, net_pay)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, l.EmployeeID, l.EmployeeName, l.BaseSalary, l.Bonus, l.Deduction, l.NetPay); err != nil {
			return fmt.Errorf("payroll: insert line for %s: %w", l.EmployeeName, err)
		}
	}
	return nil
}

const runColumns = `r.id, r.month, r.total_paid, r.created_by, r.created_at, e.id`

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Month, &r.TotalPaid, &r.CreatedBy, &r.CreatedAt, &r.EntryID)
	return r, err
}

// ListRuns returns run headers, newest first, with the id of their expense.
func (q *Queries) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+runColumns+`
		FROM payroll_runs r LEFT JOIN ledger_entries e ON e.payroll_run_id = r.id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads a run with its lines.
func (q *Queries) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	r, err := scanRun(q.db.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM payroll_runs r LEFT JOIN ledger_entries e ON e.payroll_run_id = r.id
		WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	r.Lines, err = q.ListLines(ctx, id)
	return r, err
}

// ListLines returns a run's lines by employee name.
func (q *Queries) ListLines(ctx context.Context, runID uuid.UUID) ([]Line, error) {
	rows, err := q.db.Query(ctx, `
		SELECT employee_id, employee_name, base_salary, bonus, deduction, net_pay
		FROM payroll_run_lines WHERE run_id = $1 ORDER BY employee_name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.EmployeeID, &l.EmployeeName, &l.BaseSalary, &l.Bonus, &l.Deduction, &l.NetPay); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// TxRepository exposes the statements run inside a transaction.
type TxRepository interface {
	GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error)
	InsertEmployee(ctx context.Context, e Employee) error
	UpdateEmployee(ctx context.Context, e Employee) error
	DeleteEmployee(ctx context.Context, id uuid.UUID) error
	EmployeePaid(ctx context.Context, id uuid.UUID) (bool, error)
	InsertRecord(ctx context.Context, r HRRecord) error
	EmployeesForRun(ctx context.Context, ids []uuid.UUID) ([]Employee, error)
	InsertRun(ctx context.Context, r Run) error
	InsertEntry(ctx context.Context, e ledger.Entry) error
}

type txRepo struct {
	*Queries
	entries *ledger.Queries
}

func (t txRepo) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return t.entries.InsertEntry(ctx, e)
}

// Repository provides payroll persistence.
type Repository struct {
	*Queries
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Queries: NewQueries(pool), pool: pool}
}

// WithTx runs fn in one transaction spanning payroll and the ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, txRepo{Queries: NewQueries(tx), entries: ledger.NewQueries(tx)})
	})
}
