package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/events"
	"github.com/greengold/nexus/internal/settings"
)

type fakeLedger struct {
	mu       sync.Mutex
	entries  []ledger.Entry
	payments map[uuid.UUID][]ledger.Payment
	calls    atomic.Int32
}

func (f *fakeLedger) ListEntries(ctx context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Entry
	for _, e := range f.entries {
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.CustomerID != nil && (e.CustomerID == nil || *e.CustomerID != *filter.CustomerID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeLedger) ListPayments(ctx context.Context, id uuid.UUID) ([]ledger.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[id], nil
}

type fakeCustomers struct {
	list []customers.Customer
}

func (f fakeCustomers) List(ctx context.Context, search string) ([]customers.Customer, error) {
	return f.list, nil
}

func (f fakeCustomers) Get(ctx context.Context, id uuid.UUID) (customers.Customer, error) {
	for _, c := range f.list {
		if c.ID == id {
			return c, nil
		}
	}
	return customers.Customer{}, customers.ErrCustomerNotFound
}

type fixture struct {
	ledger  *fakeLedger
	ama     customers.Customer
	service *Service
	redis   *miniredis.Miniredis
	cache   *Cache
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ama := customers.Customer{ID: uuid.New(), Name: "Ama Mensah", Email: "ama@example.com"}
	amaID := ama.ID
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	partial := ledger.Entry{ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginManual, Category: "Installation", Date: day, Description: "Garden install", Amount: d("189"), AmountPaid: d("100"), CustomerID: &amaID}
	unpaid := ledger.Entry{ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginManual, Category: "Proceeds", Date: day.AddDate(0, 0, 1), Description: "Hedge trim", Amount: d("50"), CustomerID: &amaID}
	paid := ledger.Entry{ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginManual, Category: "Proceeds", Date: day, Description: "Cash sale", Amount: d("20"), AmountPaid: d("20")}
	inbox := ledger.Entry{ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginWeb, Category: "Sales", Date: day, Description: "Web Order: Kojo", Amount: d("75"),
		WebOrder: &ledger.WebOrder{InvoiceNumber: "INV-000001", Contact: ledger.Contact{Name: "Kojo"}}}
	rent := ledger.Entry{ID: uuid.New(), Kind: ledger.KindExpense, Origin: ledger.OriginManual, Category: "Property", Date: day, Description: "Rent", Amount: d("60")}

	fl := &fakeLedger{
		entries:  []ledger.Entry{partial, unpaid, paid, inbox, rent},
		payments: map[uuid.UUID][]ledger.Payment{partial.ID: {{ID: uuid.New(), EntryID: partial.ID, Amount: d("100"), Method: "Cash"}}},
	}
	cache := NewCache(client, time.Minute)
	svc := NewService(fl, fakeCustomers{list: []customers.Customer{ama}}, settings.Static(settings.Defaults()), cache)
	return &fixture{ledger: fl, ama: ama, service: svc, redis: mr, cache: cache}
}

func TestDashboardSummarizes(t *testing.T) {
	f := newFixture(t)
	dash, err := f.service.Dashboard(context.Background())
	require.NoError(t, err)
	require.True(t, dash.Income.Equal(d("259")))
	require.True(t, dash.Collected.Equal(d("120")))
	require.True(t, dash.Receivable.Equal(d("139")))
	require.True(t, dash.Expenses.Equal(d("60")))
	require.True(t, dash.Net.Equal(d("60")))
	require.Equal(t, 1, dash.PendingWebOrders)
	require.Len(t, dash.OpenInvoices, 2)
	require.Equal(t, "Garden install", dash.OpenInvoices[0].Description)
	require.Equal(t, "Ama Mensah", dash.OpenInvoices[0].CustomerName)
	require.Equal(t, "GHS", dash.Currency)
}

func TestDashboardIsCachedUntilBumped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Dashboard(ctx)
	require.NoError(t, err)
	_, err = f.service.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(1), f.ledger.calls.Load())

	require.NoError(t, f.cache.Bump(ctx))
	_, err = f.service.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.ledger.calls.Load())
}

func TestDashboardWithoutRedis(t *testing.T) {
	f := newFixture(t)
	f.service.cache = NewCache(nil, 0)
	dash, err := f.service.Dashboard(context.Background())
	require.NoError(t, err)
	require.True(t, dash.Receivable.Equal(d("139")))
}

func TestReceivablesLargestFirst(t *testing.T) {
	f := newFixture(t)
	rec, err := f.service.Receivables(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.Rows, 2)
	require.True(t, rec.Rows[0].BalanceDue.Equal(d("89")))
	require.True(t, rec.Rows[1].BalanceDue.Equal(d("50")))
	require.True(t, rec.Total.Equal(d("139")))
	require.Equal(t, ledger.StatusPartial, rec.Rows[0].Status)
}

func TestCustomerStatement(t *testing.T) {
	f := newFixture(t)
	st, err := f.service.CustomerStatement(context.Background(), f.ama.ID)
	require.NoError(t, err)
	require.Len(t, st.Lines, 2)
	require.True(t, st.Invoiced.Equal(d("239")))
	require.True(t, st.Paid.Equal(d("100")))
	require.True(t, st.TotalDue.Equal(d("139")))
	for _, l := range st.Lines {
		require.NotNil(t, l.Payments)
	}

	_, err = f.service.CustomerStatement(context.Background(), uuid.New())
	require.ErrorIs(t, err, customers.ErrCustomerNotFound)
}

func TestLedgerExports(t *testing.T) {
	f := newFixture(t)
	entries, names, err := f.service.LedgerExport(context.Background(), ledger.Filter{})
	require.NoError(t, err)

	var csvBuf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&csvBuf, entries, names))
	records, err := csv.NewReader(&csvBuf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(entries)+1)
	require.Equal(t, "Balance Due", records[0][8])
	require.Equal(t, "Ama Mensah", records[1][5])
	require.Equal(t, "89.00", records[1][8])
	require.Equal(t, "Kojo", records[4][5])

	var xlsxBuf bytes.Buffer
	require.NoError(t, WriteLedgerXLSX(&xlsxBuf, entries, names, settings.Defaults()))
	book, err := excelize.OpenReader(&xlsxBuf)
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	rows, err := book.GetRows(ledgerSheet)
	require.NoError(t, err)
	require.Equal(t, "Green Gold Gardens ledger (GHS)", rows[0][0])
	require.Equal(t, "Date", rows[2][0])
	require.Equal(t, "Garden install", rows[3][4])
}

type countStub int

func (c countStub) CountPending(ctx context.Context) (int, error) { return int(c), nil }

func TestDashboardCountsStorefrontBacklog(t *testing.T) {
	f := newFixture(t)
	f.service.WithPending(countStub(3), countStub(2))
	dash, err := f.service.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, dash.PendingBookings)
	require.Equal(t, 2, dash.PendingReviews)
}

type forwardStub struct {
	got []events.Change
}

func (p *forwardStub) Publish(ctx context.Context, changes ...events.Change) {
	p.got = append(p.got, changes...)
}

func TestInvalidatingPublisherBumpsBeforeReturning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	next := &forwardStub{}
	pub := f.cache.Invalidating(next, nil)

	before, err := f.service.Dashboard(ctx)
	require.NoError(t, err)
	require.True(t, before.Collected.Equal(d("120")))

	// a payment lands and its writer publishes after commit
	f.ledger.mu.Lock()
	f.ledger.entries[0].AmountPaid = d("189")
	f.ledger.mu.Unlock()
	pub.Publish(ctx, events.Change{Collection: events.Transactions, ID: f.ledger.entries[0].ID.String(), Op: events.OpUpdated})

	after, err := f.service.Dashboard(ctx)
	require.NoError(t, err)
	require.True(t, after.Collected.Equal(d("209")))
	require.Len(t, next.got, 1)

	// collections that do not feed reports leave the cache alone
	calls := f.ledger.calls.Load()
	pub.Publish(ctx, events.Change{Collection: events.Plants, ID: uuid.NewString(), Op: events.OpUpdated})
	_, err = f.service.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, calls, f.ledger.calls.Load())
	require.Len(t, next.got, 2)
}
