// Package integrity cross-checks records that must agree with each other and
// reports any drift it finds.
package integrity

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/ledger"
)

// Check names, also used as metric labels.
const (
	CheckRunTotal        = "payroll_run_total"
	CheckRunEntry        = "payroll_run_entry"
	CheckBreakdown       = "itemized_amount"
	CheckPaidRange       = "amount_paid_range"
	CheckPaymentsSum     = "payments_sum"
	CheckWebOrderContact = "processed_web_order_customer"
	CheckNegativeStock   = "negative_stock"
)

// AllChecks lists every check in report order.
var AllChecks = []string{
	CheckRunTotal, CheckRunEntry, CheckBreakdown, CheckPaidRange,
	CheckPaymentsSum, CheckWebOrderContact, CheckNegativeStock,
}

// RunTotals is a payroll run header next to the sum of its lines.
type RunTotals struct {
	ID        uuid.UUID
	Month     string
	TotalPaid decimal.Decimal
	LinesSum  decimal.Decimal
	Lines     int
}

// StockLevel is a catalog item's current count.
type StockLevel struct {
	ID    uuid.UUID
	Name  string
	Stock int
}

// Snapshot is everything the checks look at.
type Snapshot struct {
	Entries  []ledger.Entry
	Runs     []RunTotals
	Payments map[uuid.UUID]decimal.Decimal
	Stock    []StockLevel
}

// Finding is one inconsistency.
type Finding struct {
	Check    string    `json:"check"`
	EntityID uuid.UUID `json:"entityId"`
	Detail   string    `json:"detail"`
}

// Report is the result of a scan.
type Report struct {
	CheckedAt time.Time      `json:"checkedAt"`
	Findings  []Finding      `json:"findings"`
	Counts    map[string]int `json:"counts"`
}

// Clean reports whether nothing was found.
func (r Report) Clean() bool { return len(r.Findings) == 0 }

// Run applies every check to the snapshot.
func Run(s Snapshot, now time.Time) Report {
	var out []Finding
	add := func(check string, id uuid.UUID, format string, args ...any) {
		out = append(out, Finding{Check: check, EntityID: id, Detail: fmt.Sprintf(format, args...)})
	}

	payrollEntries := make(map[uuid.UUID]ledger.Entry)
	for _, e := range s.Entries {
		if e.PayrollRunID != nil {
			payrollEntries[*e.PayrollRunID] = e
		}
		if e.AmountPaid.IsNegative() || e.AmountPaid.GreaterThan(e.Amount) {
			add(CheckPaidRange, e.ID, "amount paid %s outside [0, %s]", e.AmountPaid.StringFixed(2), e.Amount.StringFixed(2))
		}
		if b := e.Breakdown; b != nil {
			want := b.SubTotal.Sub(b.DiscountAmount).Add(b.TaxAmount)
			if !want.Equal(e.Amount) {
				add(CheckBreakdown, e.ID, "amount %s but breakdown gives %s", e.Amount.StringFixed(2), want.StringFixed(2))
			}
			sum := decimal.Zero
			for _, it := range e.Items {
				sum = sum.Add(it.LineTotal())
			}
			if !sum.Equal(b.SubTotal) {
				add(CheckBreakdown, e.ID, "subtotal %s but lines sum to %s", b.SubTotal.StringFixed(2), sum.StringFixed(2))
			}
		}
		if e.IsIncome() && s.Payments != nil {
			paid := s.Payments[e.ID]
			if !paid.Equal(e.AmountPaid) {
				add(CheckPaymentsSum, e.ID, "amount paid %s but receipts sum to %s", e.AmountPaid.StringFixed(2), paid.StringFixed(2))
			}
		}
		if e.Origin == ledger.OriginWeb && e.WebOrder != nil && e.WebOrder.Processed && e.CustomerID == nil {
			add(CheckWebOrderContact, e.ID, "processed web order %s has no customer", e.WebOrder.InvoiceNumber)
		}
	}

	for _, r := range s.Runs {
		if !r.TotalPaid.Equal(r.LinesSum) {
			add(CheckRunTotal, r.ID, "run %s total %s but lines sum to %s", r.Month, r.TotalPaid.StringFixed(2), r.LinesSum.StringFixed(2))
		}
		e, ok := payrollEntries[r.ID]
		switch {
		case !ok:
			add(CheckRunEntry, r.ID, "run %s has no expense entry", r.Month)
		case !e.Amount.Equal(r.TotalPaid):
			add(CheckRunEntry, r.ID, "run %s total %s but expense is %s", r.Month, r.TotalPaid.StringFixed(2), e.Amount.StringFixed(2))
		}
	}

	for _, item := range s.Stock {
		if item.Stock < 0 {
			add(CheckNegativeStock, item.ID, "%s stock is %d", item.Name, item.Stock)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Check < out[j].Check })
	counts := make(map[string]int, len(AllChecks))
	for _, c := range AllChecks {
		counts[c] = 0
	}
	for _, f := range out {
		counts[f.Check]++
	}
	if out == nil {
		out = []Finding{}
	}
	return Report{CheckedAt: now, Findings: out, Counts: counts}
}
