package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

type memoryState struct {
	entries   map[uuid.UUID]Entry
	payments  []Payment
	customers map[uuid.UUID]bool
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		entries:   make(map[uuid.UUID]Entry, len(s.entries)),
		payments:  append([]Payment(nil), s.payments...),
		customers: make(map[uuid.UUID]bool, len(s.customers)),
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	for k, v := range s.customers {
		out.customers[k] = v
	}
	return out
}

type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{entries: map[uuid.UUID]Entry{}, customers: map[uuid.UUID]bool{}}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, f Filter) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.state.entries {
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.Status != "" && e.Status() != f.Status {
			continue
		}
		if f.InboxOnly && !e.IsWebOrder() {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, entryID uuid.UUID) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.state.payments {
		if p.EntryID == entryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, e Entry) error {
	tx.state.entries[e.ID] = e
	return nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (Entry, error) {
	e, ok := tx.state.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (tx *memoryTx) UpdateAmountPaid(ctx context.Context, id uuid.UUID, paid decimal.Decimal) error {
	e, ok := tx.state.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.AmountPaid = paid
	tx.state.entries[id] = e
	return nil
}

func (tx *memoryTx) UpdateDetails(ctx context.Context, id uuid.UUID, p DetailsPatch) error {
	e, ok := tx.state.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	tx.state.entries[id] = p.Apply(e)
	return nil
}

func (tx *memoryTx) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	delete(tx.state.entries, id)
	return nil
}

func (tx *memoryTx) InsertPayment(ctx context.Context, p Payment) error {
	tx.state.payments = append(tx.state.payments, p)
	return nil
}

func (tx *memoryTx) CountPayments(ctx context.Context, entryID uuid.UUID) (int, error) {
	n := 0
	for _, p := range tx.state.payments {
		if p.EntryID == entryID {
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return tx.state.customers[id], nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type recordingEvents struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *recordingEvents) Publish(ctx context.Context, changes ...events.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, changes...)
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+":"+key)
	return nil
}

func asRole(role shared.Role) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: role})
}

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	audit  *recordingAudit
	events *recordingEvents
	idem   *memoryIdempotency
}

func newFixture() fixture {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	ev := &recordingEvents{}
	idem := &memoryIdempotency{}
	return fixture{svc: NewService(repo, audit, idem, ev, nil, nil), repo: repo, audit: audit, events: ev, idem: idem}
}

func (f fixture) seedIncome(t *testing.T, amount string) Entry {
	t.Helper()
	e, err := f.svc.CreateIncome(asRole(shared.RoleAccountant), IncomeInput{Description: "Landscaping", Amount: dec(amount)})
	require.NoError(t, err)
	return e
}

func TestRecordPaymentPartialThenPaid(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	e := f.seedIncome(t, "189")
	require.Equal(t, StatusUnpaid, e.Status())

	res, err := f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("100"), Method: PaymentMethodMobile})
	require.NoError(t, err)
	require.True(t, res.Entry.AmountPaid.Equal(dec("100")))
	require.Equal(t, StatusPartial, res.Entry.Status())
	require.True(t, BalanceDue(res.Entry).Equal(dec("89")))

	res, err = f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("89")})
	require.NoError(t, err)
	require.True(t, res.Entry.AmountPaid.Equal(dec("189")))
	require.Equal(t, StatusPaid, res.Entry.Status())

	payments, err := f.svc.ListPayments(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, PaymentMethodMobile, payments[0].Method)
	require.Equal(t, PaymentMethodCash, payments[1].Method)

	_, err = f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("0.01")})
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestRecordPaymentFailureLeavesEntryUntouched(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	e := f.seedIncome(t, "50")

	_, err := f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("60")})
	require.ErrorIs(t, err, ErrOverpayment)
	require.True(t, errors.Is(err, httpx.ErrValidation))

	stored, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.IsZero())
	payments, err := f.svc.ListPayments(ctx, e.ID)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestRecordPaymentRequiresPermission(t *testing.T) {
	f := newFixture()
	e := f.seedIncome(t, "50")

	_, err := f.svc.RecordPayment(asRole(shared.RoleStaff), e.ID, PaymentInput{Amount: dec("10")})
	require.ErrorIs(t, err, httpx.ErrForbidden)
	_, err = f.svc.RecordPayment(context.Background(), e.ID, PaymentInput{Amount: dec("10")})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestRecordPaymentIdempotencyKey(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	e := f.seedIncome(t, "100")

	_, err := f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("30"), IdempotencyKey: "k1"})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("30"), IdempotencyKey: "k1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	// a failed attempt releases its key
	_, err = f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("500"), IdempotencyKey: "k2"})
	require.ErrorIs(t, err, ErrOverpayment)
	_, err = f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("70"), IdempotencyKey: "k2"})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, stored.Status())
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	e := f.seedIncome(t, "100")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("30")}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, succeeded)
	stored, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.Equal(dec("90")))
}

func TestRecordPaymentRejectsInboxAndExpenses(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)

	web := Entry{
		ID: uuid.New(), Kind: KindIncome, Origin: OriginWeb, Category: CategoryWebSales,
		Amount: dec("40"), AmountPaid: decimal.Zero, WebOrder: &WebOrder{InvoiceNumber: "INV-000007"},
	}
	f.repo.state.entries[web.ID] = web
	_, err := f.svc.RecordPayment(ctx, web.ID, PaymentInput{Amount: dec("40")})
	require.ErrorIs(t, err, ErrWebOrderPending)

	exp, err := f.svc.CreateExpense(ctx, ExpenseInput{Category: "Utilities", Amount: dec("12.50")})
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, exp.ID, PaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrNotReceivable)

	_, err = f.svc.RecordPayment(ctx, uuid.New(), PaymentInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCreateIncomeSettledAndCustomer(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	customer := uuid.New()

	_, err := f.svc.CreateIncome(ctx, IncomeInput{Amount: dec("10"), CustomerID: &customer})
	require.ErrorIs(t, err, ErrUnknownCustomer)

	f.repo.state.customers[customer] = true
	e, err := f.svc.CreateIncome(ctx, IncomeInput{Amount: dec("75"), CustomerID: &customer, Settled: true, Method: PaymentMethodTransfer})
	require.NoError(t, err)
	require.Equal(t, CategoryOtherIncome, e.Category)
	require.Equal(t, StatusPaid, e.Status())

	payments, err := f.svc.ListPayments(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.True(t, payments[0].Amount.Equal(dec("75")))
}

func TestCreateExpenseValidation(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)

	_, err := f.svc.CreateExpense(ctx, ExpenseInput{Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidEntry)
	_, err = f.svc.CreateExpense(ctx, ExpenseInput{Amount: dec("5"), Date: "03/01/2026"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	e, err := f.svc.CreateExpense(ctx, ExpenseInput{Amount: dec("5"), Date: "2026-03-01"})
	require.NoError(t, err)
	require.Equal(t, CategoryOtherExpense, e.Category)
	require.Equal(t, "2026-03-01", e.Date.Format("2006-01-02"))
	require.Empty(t, e.Status())
}

func TestDeleteGuards(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)

	paid := f.seedIncome(t, "20")
	_, err := f.svc.RecordPayment(ctx, paid.ID, PaymentInput{Amount: dec("5")})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.Delete(ctx, paid.ID), ErrHasPayments)

	run := uuid.New()
	payroll := Entry{ID: uuid.New(), Kind: KindExpense, Origin: OriginPayroll, Category: CategorySalariesWages, Amount: dec("100"), PayrollRunID: &run}
	f.repo.state.entries[payroll.ID] = payroll
	require.ErrorIs(t, f.svc.Delete(ctx, payroll.ID), ErrPayrollLinked)

	open := f.seedIncome(t, "20")
	require.NoError(t, f.svc.Delete(ctx, open.ID))
	_, err = f.svc.Get(ctx, open.ID)
	require.ErrorIs(t, err, ErrEntryNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, open.ID), httpx.ErrNotFound)
}

func TestUpdateDetailsOnlyTouchesDescriptiveFields(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	e := f.seedIncome(t, "20")

	cat := "Installation"
	updated, err := f.svc.UpdateDetails(ctx, e.ID, DetailsPatch{Category: &cat})
	require.NoError(t, err)
	require.Equal(t, "Installation", updated.Category)
	require.True(t, updated.Amount.Equal(dec("20")))

	blank := "  "
	_, err = f.svc.UpdateDetails(ctx, e.ID, DetailsPatch{Category: &blank})
	require.ErrorIs(t, err, ErrInvalidEntry)

	stored, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, "Installation", stored.Category)
}

func TestWritesAuditAndPublish(t *testing.T) {
	f := newFixture()
	ctx := asRole(shared.RoleAccountant)
	e := f.seedIncome(t, "20")
	_, err := f.svc.RecordPayment(ctx, e.ID, PaymentInput{Amount: dec("20")})
	require.NoError(t, err)

	require.Len(t, f.audit.logs, 2)
	require.Equal(t, "ledger.payment_recorded", f.audit.logs[1].Action)
	require.Equal(t, "Paid", f.audit.logs[1].Meta["status"])
	require.Len(t, f.events.changes, 2)
	require.Equal(t, events.Transactions, f.events.changes[1].Collection)
	require.Equal(t, events.OpUpdated, f.events.changes[1].Op)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	_, err := f.svc.List(context.Background(), Filter{Status: "Overdue"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}
