package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/observability"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/shared"
)

const runModule = "payroll.run"

// RepositoryPort abstracts payroll persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error)
	GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error)
	EmployeesForRun(ctx context.Context, ids []uuid.UUID) ([]Employee, error)
	ListRecords(ctx context.Context, employeeID uuid.UUID) ([]HRRecord, error)
	ListRuns(ctx context.Context) ([]Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages employees and payroll runs.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency shared.Idempotency
	events      events.Publisher
	metrics     *observability.BusinessMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the payroll service.
func NewService(repo RepositoryPort, audit AuditPort, idem shared.Idempotency, publisher events.Publisher, metrics *observability.BusinessMetrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo: repo, audit: audit, idempotency: idem, events: publisher, metrics: metrics,
		logger: logger, now: func() time.Time { return time.Now().UTC() },
	}
}

// ListEmployees returns the staff register.
func (s *Service) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	return s.repo.ListEmployees(ctx, activeOnly)
}

// GetEmployee returns one employee.
func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error) {
	return s.repo.GetEmployee(ctx, id)
}

func (s *Service) employeeFrom(in EmployeeInput, base Employee) (Employee, error) {
	base.Name = strings.TrimSpace(in.Name)
	base.Role = strings.TrimSpace(in.Role)
	base.Email = strings.ToLower(strings.TrimSpace(in.Email))
	base.Phone = strings.TrimSpace(in.Phone)
	base.BaseSalary = in.BaseSalary
	if in.Active != nil {
		base.Active = *in.Active
	}
	base.HiredAt = nil
	if in.HiredAt != "" {
		t, err := time.Parse("2006-01-02", in.HiredAt)
		if err != nil {
			return Employee{}, fmt.Errorf("%w: hiredAt must be YYYY-MM-DD", ErrInvalidEmployee)
		}
		base.HiredAt = &t
	}
	return base, base.Validate()
}

// CreateEmployee adds an employee, active unless stated otherwise.
func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (Employee, error) {
	if err := shared.Authorize(ctx, shared.PermEmployeesEdit); err != nil {
		return Employee{}, err
	}
	now := s.now()
	e, err := s.employeeFrom(in, Employee{ID: uuid.New(), Active: true, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return Employee{}, err
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertEmployee(ctx, e)
	}); err != nil {
		return Employee{}, err
	}
	s.publish(ctx, events.Change{Collection: events.Employees, ID: e.ID.String(), Op: events.OpCreated})
	return e, nil
}

// UpdateEmployee replaces an employee's details. Past runs keep the name and
// salary they were paid with.
func (s *Service) UpdateEmployee(ctx context.Context, id uuid.UUID, in EmployeeInput) (Employee, error) {
	if err := shared.Authorize(ctx, shared.PermEmployeesEdit); err != nil {
		return Employee{}, err
	}
	var out Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		next, err := s.employeeFrom(in, cur)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		if err := tx.UpdateEmployee(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return Employee{}, err
	}
	s.publish(ctx, events.Change{Collection: events.Employees, ID: id.String(), Op: events.OpUpdated})
	return out, nil
}

// DeleteEmployee removes an employee who was never paid.
func (s *Service) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	if err := shared.Authorize(ctx, shared.PermEmployeesEdit); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		paid, err := tx.EmployeePaid(ctx, id)
		if err != nil {
			return err
		}
		if paid {
			return ErrEmployeePaid
		}
		return tx.DeleteEmployee(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.Change{Collection: events.Employees, ID: id.String(), Op: events.OpDeleted})
	return nil
}

// AddRecord files an HR record against an employee.
func (s *Service) AddRecord(ctx context.Context, employeeID uuid.UUID, in RecordInput) (HRRecord, error) {
	if err := shared.Authorize(ctx, shared.PermEmployeesEdit); err != nil {
		return HRRecord{}, err
	}
	now := s.now()
	date, err := ledger.ParseDate(in.Date, now)
	if err != nil {
		return HRRecord{}, err
	}
	rec := HRRecord{
		ID:         uuid.New(),
		EmployeeID: employeeID,
		Category:   RecordCategory(in.Category),
		Title:      strings.TrimSpace(in.Title),
		Notes:      strings.TrimSpace(in.Notes),
		Days:       in.Days,
		Score:      in.Score,
		Date:       date,
		CreatedAt:  now,
	}
	switch rec.Category {
	case RecordLeave, RecordKPI, RecordComplaint, RecordNote:
	default:
		return HRRecord{}, fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, in.Category)
	}
	if rec.Title == "" {
		return HRRecord{}, fmt.Errorf("%w: title is required", ErrInvalidRecord)
	}
	if rec.Days < 0 {
		return HRRecord{}, fmt.Errorf("%w: days must not be negative", ErrInvalidRecord)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetEmployee(ctx, employeeID); err != nil {
			return err
		}
		return tx.InsertRecord(ctx, rec)
	})
	if err != nil {
		return HRRecord{}, err
	}
	s.publish(ctx, events.Change{Collection: events.Employees, ID: employeeID.String(), Op: events.OpUpdated})
	return rec, nil
}

// ListRecords returns an employee's HR file.
func (s *Service) ListRecords(ctx context.Context, employeeID uuid.UUID) ([]HRRecord, error) {
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, employeeID)
}

// Preview computes a run without writing it.
func (s *Service) Preview(ctx context.Context, req RunRequest) (Run, error) {
	if err := validateMonth(req.Month); err != nil {
		return Run{}, err
	}
	employees, err := s.repo.EmployeesForRun(ctx, req.EmployeeIDs)
	if err != nil {
		return Run{}, err
	}
	lines, total, err := ComputeRun(employees, req.Adjustments)
	if err != nil {
		return Run{}, err
	}
	return Run{Month: req.Month, TotalPaid: total, Lines: lines}, nil
}

// Run posts a payroll run and its paired expense entry in one transaction.
func (s *Service) Run(ctx context.Context, req RunRequest) (Run, error) {
	if err := shared.Authorize(ctx, shared.PermPayrollRun); err != nil {
		return Run{}, err
	}
	if err := validateMonth(req.Month); err != nil {
		return Run{}, err
	}
	claimed := false
	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, runModule); err != nil {
			return Run{}, err
		}
		claimed = true
	}

	now := s.now()
	var run Run
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		employees, err := tx.EmployeesForRun(ctx, req.EmployeeIDs)
		if err != nil {
			return err
		}
		lines, total, err := ComputeRun(employees, req.Adjustments)
		if err != nil {
			return err
		}
		if !total.IsPositive() {
			return fmt.Errorf("%w: total pay must be greater than zero", ErrInvalidRun)
		}
		run = Run{ID: uuid.New(), Month: req.Month, TotalPaid: total, Lines: lines, CreatedBy: actorPtr(ctx), CreatedAt: now}
		entry := expenseFor(run, now)
		if err := entry.Validate(); err != nil {
			return err
		}
		if err := tx.InsertRun(ctx, run); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		run.EntryID = &entry.ID
		return nil
	})
	if err != nil {
		if claimed {
			if derr := s.idempotency.Delete(ctx, req.IdempotencyKey, runModule); derr != nil {
				s.logger.Warn("release payroll key", slog.Any("error", derr))
			}
		}
		return Run{}, err
	}

	if s.audit != nil {
		if aerr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  shared.ActorID(ctx),
			Action:   "payroll.run",
			Entity:   "payroll_run",
			EntityID: run.ID.String(),
			Meta: map[string]any{
				"month":      run.Month,
				"total_paid": run.TotalPaid.String(),
				"employees":  len(run.Lines),
				"entry_id":   run.EntryID.String(),
			},
		}); aerr != nil {
			s.logger.Warn("audit payroll run", slog.Any("error", aerr))
		}
	}
	s.metrics.PayrollRun(run.TotalPaid)
	s.publish(ctx,
		events.Change{Collection: events.PayrollHistory, ID: run.ID.String(), Op: events.OpCreated},
		events.Change{Collection: events.Transactions, ID: run.EntryID.String(), Op: events.OpCreated},
	)
	return run, nil
}

// ListRuns returns run headers.
func (s *Service) ListRuns(ctx context.Context) ([]Run, error) {
	return s.repo.ListRuns(ctx)
}

// GetRun returns a run with its lines.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	return s.repo.GetRun(ctx, id)
}

func expenseFor(run Run, now time.Time) ledger.Entry {
	runID := run.ID
	return ledger.Entry{
		ID:           uuid.New(),
		Kind:         ledger.KindExpense,
		Origin:       ledger.OriginPayroll,
		Category:     ledger.CategorySalariesWages,
		Date:         now,
		Description:  "Payroll Run: " + monthLabel(run.Month),
		Amount:       run.TotalPaid,
		AmountPaid:   decimal.Zero,
		PayrollRunID: &runID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func validateMonth(month string) error {
	if _, err := time.Parse("2006-01", month); err != nil {
		return fmt.Errorf("%w: month must be YYYY-MM", ErrInvalidRun)
	}
	return nil
}

// monthLabel renders "2024-05" as "May 2024".
func monthLabel(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return t.Format("January 2006")
}

func (s *Service) publish(ctx context.Context, changes ...events.Change) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, changes...)
}

func actorPtr(ctx context.Context) *uuid.UUID {
	id := shared.ActorID(ctx)
	if id == uuid.Nil {
		return nil
	}
	return &id
}
