package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
)

// Classify derives the payment status from the amount and what has been paid.
func Classify(amount, paid decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return StatusPaid
	case paid.GreaterThan(decimal.Zero):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// BalanceDue is the outstanding amount of an income entry. It is the only
// place the balance is computed; customer and report totals sum it.
func BalanceDue(e Entry) decimal.Decimal {
	if e.Kind != KindIncome {
		return decimal.Zero
	}
	due := e.Amount.Sub(e.AmountPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// ApplyPayment returns e with p added to AmountPaid. Payments must be positive,
// in whole cents, and no larger than the balance due.
func ApplyPayment(e Entry, p decimal.Decimal) (Entry, error) {
	if e.Kind != KindIncome {
		return e, ErrNotReceivable
	}
	if !money.Positive(p) || !money.HasCents(p) {
		return e, ErrInvalidPayment
	}
	due := BalanceDue(e)
	if p.GreaterThan(due) {
		return e, fmt.Errorf("%w: paying %s against %s due", ErrOverpayment, p.StringFixed(2), due.StringFixed(2))
	}
	e.AmountPaid = e.AmountPaid.Add(p)
	return e, nil
}

// OutstandingByCustomer sums BalanceDue per customer.
func OutstandingByCustomer(entries []Entry) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if e.CustomerID == nil {
			continue
		}
		key := e.CustomerID.String()
		out[key] = out[key].Add(BalanceDue(e))
	}
	return out
}

// Summary aggregates a set of entries.
type Summary struct {
	Income     decimal.Decimal `json:"income"`
	Collected  decimal.Decimal `json:"collected"`
	Receivable decimal.Decimal `json:"receivable"`
	Expenses   decimal.Decimal `json:"expenses"`
	Net        decimal.Decimal `json:"net"`
}

// Summarize totals income, collections, receivables and expenses. Web orders
// still in the inbox are not yet income.
func Summarize(entries []Entry) Summary {
	s := Summary{Income: decimal.Zero, Collected: decimal.Zero, Receivable: decimal.Zero, Expenses: decimal.Zero}
	for _, e := range entries {
		switch {
		case e.Kind == KindExpense:
			s.Expenses = s.Expenses.Add(e.Amount)
		case e.IsWebOrder():
			continue
		default:
			s.Income = s.Income.Add(e.Amount)
			s.Collected = s.Collected.Add(e.AmountPaid)
			s.Receivable = s.Receivable.Add(BalanceDue(e))
		}
	}
	s.Net = s.Collected.Sub(s.Expenses)
	return s
}
