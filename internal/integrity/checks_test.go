package integrity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/observability"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cleanSnapshot() Snapshot {
	runID := uuid.New()
	customer := uuid.New()
	invoice := ledger.Entry{
		ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginInvoice,
		Amount: d("190"), AmountPaid: d("50"), CustomerID: &customer,
		Items:     []ledger.Item{{Description: "Bonsai", Price: d("100"), Qty: 2}},
		Breakdown: &ledger.Breakdown{SubTotal: d("200"), DiscountAmount: d("20"), TaxAmount: d("10")},
	}
	now := time.Now()
	web := ledger.Entry{
		ID: uuid.New(), Kind: ledger.KindIncome, Origin: ledger.OriginWeb,
		Amount: d("40"), AmountPaid: d("40"), CustomerID: &customer,
		Items:     []ledger.Item{{Description: "Fern", Price: d("20"), Qty: 2}},
		Breakdown: &ledger.Breakdown{SubTotal: d("40")},
		WebOrder:  &ledger.WebOrder{InvoiceNumber: "INV-000001", Processed: true, ProcessedAt: &now},
	}
	payroll := ledger.Entry{
		ID: uuid.New(), Kind: ledger.KindExpense, Origin: ledger.OriginPayroll,
		Amount: d("2550"), PayrollRunID: &runID,
	}
	return Snapshot{
		Entries:  []ledger.Entry{invoice, web, payroll},
		Runs:     []RunTotals{{ID: runID, Month: "2024-05", TotalPaid: d("2550"), LinesSum: d("2550"), Lines: 2}},
		Payments: map[uuid.UUID]decimal.Decimal{invoice.ID: d("50"), web.ID: d("40")},
		Stock:    []StockLevel{{ID: uuid.New(), Name: "Bonsai", Stock: 3}},
	}
}

func TestRunCleanSnapshot(t *testing.T) {
	report := Run(cleanSnapshot(), time.Now())
	assert.True(t, report.Clean(), "%+v", report.Findings)
	assert.Len(t, report.Counts, len(AllChecks))
	assert.NotNil(t, report.Findings)
}

func TestRunFindsDrift(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Snapshot)
		check  string
	}{
		{"run total differs from lines", func(s *Snapshot) { s.Runs[0].LinesSum = d("2500") }, CheckRunTotal},
		{"run without entry", func(s *Snapshot) { s.Entries = s.Entries[:2] }, CheckRunEntry},
		{"run entry amount differs", func(s *Snapshot) { s.Entries[2].Amount = d("2000") }, CheckRunEntry},
		{"amount disagrees with breakdown", func(s *Snapshot) { s.Entries[0].Amount = d("200") }, CheckBreakdown},
		{"lines disagree with subtotal", func(s *Snapshot) { s.Entries[0].Items[0].Qty = 3 }, CheckBreakdown},
		{"overpaid", func(s *Snapshot) {
			s.Entries[1].AmountPaid = d("41")
			s.Payments[s.Entries[1].ID] = d("41")
		}, CheckPaidRange},
		{"receipts disagree", func(s *Snapshot) { s.Payments[s.Entries[0].ID] = d("30") }, CheckPaymentsSum},
		{"processed order without customer", func(s *Snapshot) { s.Entries[1].CustomerID = nil }, CheckWebOrderContact},
		{"negative stock", func(s *Snapshot) { s.Stock[0].Stock = -1 }, CheckNegativeStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := cleanSnapshot()
			tc.mutate(&s)
			report := Run(s, time.Now())
			require.Len(t, report.Findings, 1, "%+v", report.Findings)
			assert.Equal(t, tc.check, report.Findings[0].Check)
			assert.Equal(t, 1, report.Counts[tc.check])
			assert.NotEmpty(t, report.Findings[0].Detail)
		})
	}
}

func TestRunSkipsPaymentsCheckWithoutData(t *testing.T) {
	s := cleanSnapshot()
	s.Payments = nil
	assert.True(t, Run(s, time.Now()).Clean())
}

type stubSource struct {
	snap Snapshot
	err  error
}

func (s stubSource) Snapshot(context.Context) (Snapshot, error) { return s.snap, s.err }

func TestServiceScanPublishesCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewBusinessMetrics(reg)
	snap := cleanSnapshot()
	snap.Stock[0].Stock = -2

	svc := NewService(stubSource{snap: snap}, metrics, nil)
	report, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Findings, 1)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "nexus_integrity_findings" {
			continue
		}
		for _, m := range mf.GetMetric() {
			values[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, values[CheckNegativeStock])
	assert.Equal(t, 0.0, values[CheckRunTotal])
}

func TestServiceScanPropagatesLoadError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewService(stubSource{err: boom}, nil, nil).Scan(context.Background())
	assert.ErrorIs(t, err, boom)
}
