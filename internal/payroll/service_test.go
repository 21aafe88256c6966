package payroll

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

type state struct {
	employees map[uuid.UUID]Employee
	records   []HRRecord
	runs      map[uuid.UUID]Run
	entries   map[uuid.UUID]ledger.Entry
}

func (s state) clone() state {
	out := state{
		employees: map[uuid.UUID]Employee{},
		records:   append([]HRRecord(nil), s.records...),
		runs:      map[uuid.UUID]Run{},
		entries:   map[uuid.UUID]ledger.Entry{},
	}
	for k, v := range s.employees {
		out.employees[k] = v
	}
	for k, v := range s.runs {
		out.runs[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	return out
}

type memoryRepo struct {
	mu        sync.Mutex
	state     state
	failEntry error
}

type memoryTx struct {
	state     *state
	failEntry error
}

func newMemoryRepo(employees ...Employee) *memoryRepo {
	r := &memoryRepo{state: state{
		employees: map[uuid.UUID]Employee{},
		runs:      map[uuid.UUID]Run{},
		entries:   map[uuid.UUID]ledger.Entry{},
	}}
	for _, e := range employees {
		r.state.employees[e.ID] = e
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged, failEntry: r.failEntry}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) ListEmployees(ctx context.Context, activeOnly bool) ([]Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).sorted(activeOnly), nil
}

func (r *memoryRepo) GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).GetEmployee(ctx, id)
}

func (r *memoryRepo) EmployeesForRun(ctx context.Context, ids []uuid.UUID) ([]Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (&memoryTx{state: &r.state}).EmployeesForRun(ctx, ids)
}

func (r *memoryRepo) ListRecords(ctx context.Context, employeeID uuid.UUID) ([]HRRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HRRecord
	for _, rec := range r.state.records {
		if rec.EmployeeID == employeeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListRuns(ctx context.Context) ([]Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Run
	for _, run := range r.state.runs {
		out = append(out, run)
	}
	return out, nil
}

func (r *memoryRepo) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.state.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (tx *memoryTx) sorted(activeOnly bool) []Employee {
	var out []Employee
	for _, e := range tx.state.employees {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (tx *memoryTx) GetEmployee(ctx context.Context, id uuid.UUID) (Employee, error) {
	e, ok := tx.state.employees[id]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, nil
}

func (tx *memoryTx) InsertEmployee(ctx context.Context, e Employee) error {
	tx.state.employees[e.ID] = e
	return nil
}

func (tx *memoryTx) UpdateEmployee(ctx context.Context, e Employee) error {
	if _, ok := tx.state.employees[e.ID]; !ok {
		return ErrEmployeeNotFound
	}
	tx.state.employees[e.ID] = e
	return nil
}

func (tx *memoryTx) DeleteEmployee(ctx context.Context, id uuid.UUID) error {
	if _, ok := tx.state.employees[id]; !ok {
		return ErrEmployeeNotFound
	}
	delete(tx.state.employees, id)
	return nil
}

func (tx *memoryTx) EmployeePaid(ctx context.Context, id uuid.UUID) (bool, error) {
	for _, run := range tx.state.runs {
		for _, l := range run.Lines {
			if l.EmployeeID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertRecord(ctx context.Context, r HRRecord) error {
	tx.state.records = append(tx.state.records, r)
	return nil
}

func (tx *memoryTx) EmployeesForRun(ctx context.Context, ids []uuid.UUID) ([]Employee, error) {
	if len(ids) == 0 {
		return tx.sorted(true), nil
	}
	found := make([]Employee, 0, len(ids))
	for _, id := range ids {
		if e, ok := tx.state.employees[id]; ok {
			found = append(found, e)
		}
	}
	return orderEmployees(found, ids)
}

func (tx *memoryTx) InsertRun(ctx context.Context, r Run) error {
	tx.state.runs[r.ID] = r
	return nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, e ledger.Entry) error {
	if tx.failEntry != nil {
		return tx.failEntry
	}
	tx.state.entries[e.ID] = e
	return nil
}

type recordingEvents struct {
	mu      sync.Mutex
	changes []events.Change
}

func (e *recordingEvents) Publish(ctx context.Context, changes ...events.Change) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, changes...)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[module+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+key)
	return nil
}

func hr() context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleHR})
}

type fixture struct {
	repo    *memoryRepo
	events  *recordingEvents
	idem    *memoryIdempotency
	service *Service
	kofi    Employee
	esi     Employee
}

func newFixture() *fixture {
	kofi := employee("Kofi", 1000)
	esi := employee("Esi", 1500)
	repo := newMemoryRepo(kofi, esi)
	ev := &recordingEvents{}
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := NewService(repo, nil, idem, ev, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 31, 17, 0, 0, 0, time.UTC) }
	return &fixture{repo: repo, events: ev, idem: idem, service: svc, kofi: kofi, esi: esi}
}

func (f *fixture) scenario() RunRequest {
	return RunRequest{
		Month:       "2024-05",
		EmployeeIDs: []uuid.UUID{f.kofi.ID, f.esi.ID},
		Adjustments: []Adjustment{
			{EmployeeID: f.kofi.ID, Bonus: decimal.NewFromInt(100)},
			{EmployeeID: f.esi.ID, Deduction: decimal.NewFromInt(50)},
		},
	}
}

func TestRunPostsRunAndExpenseTogether(t *testing.T) {
	f := newFixture()
	run, err := f.service.Run(hr(), f.scenario())
	require.NoError(t, err)
	require.True(t, run.TotalPaid.Equal(decimal.NewFromInt(2550)))
	require.Len(t, run.Lines, 2)

	require.Len(t, f.repo.state.runs, 1)
	require.Len(t, f.repo.state.entries, 1)
	entry := f.repo.state.entries[*run.EntryID]
	require.Equal(t, ledger.KindExpense, entry.Kind)
	require.Equal(t, ledger.OriginPayroll, entry.Origin)
	require.Equal(t, ledger.CategorySalariesWages, entry.Category)
	require.Equal(t, "Payroll Run: May 2024", entry.Description)
	require.True(t, entry.Amount.Equal(run.TotalPaid))
	require.Equal(t, run.ID, *entry.PayrollRunID)
	require.True(t, entry.IsPayroll())
	require.Len(t, f.events.changes, 2)
}

func TestRunRollsBackWhenEntryFails(t *testing.T) {
	f := newFixture()
	f.repo.failEntry = errors.New("connection reset")
	req := f.scenario()
	req.IdempotencyKey = "may"

	_, err := f.service.Run(hr(), req)
	require.Error(t, err)
	require.Empty(t, f.repo.state.runs)
	require.Empty(t, f.repo.state.entries)
	require.Empty(t, f.events.changes)
	require.Empty(t, f.idem.keys)
}

func TestRunIdempotencyKey(t *testing.T) {
	f := newFixture()
	req := f.scenario()
	req.IdempotencyKey = "may"
	_, err := f.service.Run(hr(), req)
	require.NoError(t, err)
	_, err = f.service.Run(hr(), req)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, f.repo.state.runs, 1)
}

func TestRunDefaultsToActiveEmployees(t *testing.T) {
	f := newFixture()
	gone := employee("Abena", 800)
	gone.Active = false
	f.repo.state.employees[gone.ID] = gone

	run, err := f.service.Run(hr(), RunRequest{Month: "2024-06"})
	require.NoError(t, err)
	require.Len(t, run.Lines, 2)
	require.Equal(t, "Esi", run.Lines[0].EmployeeName)
	require.True(t, run.TotalPaid.Equal(decimal.NewFromInt(2500)))
}

func TestRunRejects(t *testing.T) {
	f := newFixture()
	_, err := f.service.Run(hr(), RunRequest{Month: "May"})
	require.ErrorIs(t, err, ErrInvalidRun)

	_, err = f.service.Run(hr(), RunRequest{Month: "2024-05", EmployeeIDs: []uuid.UUID{uuid.New()}})
	require.ErrorIs(t, err, ErrEmployeeNotFound)

	_, err = f.service.Run(hr(), RunRequest{Month: "2024-05", EmployeeIDs: []uuid.UUID{f.kofi.ID, f.kofi.ID}})
	require.ErrorIs(t, err, ErrInvalidRun)

	_, err = f.service.Run(hr(), RunRequest{Month: "2024-05", EmployeeIDs: []uuid.UUID{f.kofi.ID}, Adjustments: []Adjustment{{EmployeeID: f.kofi.ID, Deduction: decimal.NewFromInt(1000)}}})
	require.ErrorIs(t, err, ErrInvalidRun)

	accountant := shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleAccountant})
	_, err = f.service.Run(accountant, f.scenario())
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Empty(t, f.repo.state.runs)
}

func TestPreviewWritesNothing(t *testing.T) {
	f := newFixture()
	run, err := f.service.Preview(context.Background(), f.scenario())
	require.NoError(t, err)
	require.True(t, run.TotalPaid.Equal(decimal.NewFromInt(2550)))
	require.Empty(t, f.repo.state.runs)
}

func TestDeleteEmployeeGuardsHistory(t *testing.T) {
	f := newFixture()
	_, err := f.service.Run(hr(), f.scenario())
	require.NoError(t, err)
	require.ErrorIs(t, f.service.DeleteEmployee(hr(), f.kofi.ID), ErrEmployeePaid)

	fresh, err := f.service.CreateEmployee(hr(), EmployeeInput{Name: "Yaw", BaseSalary: decimal.NewFromInt(900)})
	require.NoError(t, err)
	require.True(t, fresh.Active)
	require.NoError(t, f.service.DeleteEmployee(hr(), fresh.ID))
}

func TestEmployeeValidation(t *testing.T) {
	f := newFixture()
	_, err := f.service.CreateEmployee(hr(), EmployeeInput{Name: " ", BaseSalary: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrInvalidEmployee)
	_, err = f.service.CreateEmployee(hr(), EmployeeInput{Name: "Yaw", BaseSalary: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, ErrInvalidEmployee)
}

func TestRecords(t *testing.T) {
	f := newFixture()
	rec, err := f.service.AddRecord(hr(), f.kofi.ID, RecordInput{Category: "leave", Title: "Annual leave", Days: 5, Date: "2024-04-02"})
	require.NoError(t, err)
	require.Equal(t, RecordLeave, rec.Category)

	_, err = f.service.AddRecord(hr(), f.kofi.ID, RecordInput{Category: "gossip", Title: "x"})
	require.ErrorIs(t, err, ErrInvalidRecord)
	_, err = f.service.AddRecord(hr(), uuid.New(), RecordInput{Category: "note", Title: "x"})
	require.ErrorIs(t, err, ErrEmployeeNotFound)

	recs, err := f.service.ListRecords(context.Background(), f.kofi.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}
