package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
)

// Validate checks the entry against the rules of its variant. It runs at the
// write boundary, before anything is persisted.
func (e Entry) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(e.Category) == "" {
		return invalid("category is required")
	}
	if e.Date.IsZero() {
		return invalid("date is required")
	}
	if !money.Positive(e.Amount) || !money.HasCents(e.Amount) {
		return invalid("amount must be a positive amount in whole cents")
	}
	if e.AmountPaid.IsNegative() || e.AmountPaid.GreaterThan(e.Amount) {
		return invalid("amount paid must lie between 0 and the amount")
	}

	switch e.Kind {
	case KindExpense:
		if err := e.validateExpense(); err != nil {
			return invalid("%s", err)
		}
	case KindIncome:
		if err := e.validateIncome(); err != nil {
			return invalid("%s", err)
		}
	default:
		return invalid("kind must be income or expense")
	}

	if e.Breakdown != nil {
		if err := e.validateBreakdown(); err != nil {
			return invalid("%s", err)
		}
	}
	return nil
}

func (e Entry) validateExpense() error {
	switch e.Origin {
	case OriginManual:
		if e.PayrollRunID != nil {
			return fmt.Errorf("manual expenses cannot reference a payroll run")
		}
	case OriginPayroll:
		if e.PayrollRunID == nil {
			return fmt.Errorf("payroll expenses must reference their run")
		}
	default:
		return fmt.Errorf("expenses originate manually or from payroll")
	}
	if !e.AmountPaid.IsZero() {
		return fmt.Errorf("expenses do not track payments")
	}
	if len(e.Items) > 0 || e.Breakdown != nil {
		return fmt.Errorf("expenses are flat amounts")
	}
	if e.CustomerID != nil || e.WebOrder != nil {
		return fmt.Errorf("expenses have no customer")
	}
	return nil
}

func (e Entry) validateIncome() error {
	if e.PayrollRunID != nil {
		return fmt.Errorf("income cannot reference a payroll run")
	}
	switch e.Origin {
	case OriginManual:
		if e.WebOrder != nil {
			return fmt.Errorf("manual income has no web order")
		}
	case OriginInvoice:
		if e.Breakdown == nil {
			return fmt.Errorf("invoices are itemized")
		}
		if e.CustomerID == nil {
			return fmt.Errorf("invoices need a customer")
		}
		if e.WebOrder != nil {
			return fmt.Errorf("invoices have no web order")
		}
	case OriginWeb:
		if e.WebOrder == nil {
			return fmt.Errorf("web entries need their order details")
		}
		if e.WebOrder.Processed && e.CustomerID == nil {
			return fmt.Errorf("processed web orders need a customer")
		}
		if !e.WebOrder.Processed && !e.AmountPaid.IsZero() {
			return fmt.Errorf("web orders are unpaid until processed")
		}
	default:
		return fmt.Errorf("income originates manually, from an invoice, or from the web shop")
	}
	if len(e.Items) > 0 && e.Breakdown == nil {
		return fmt.Errorf("itemized income needs a breakdown")
	}
	return nil
}

func (e Entry) validateBreakdown() error {
	b := e.Breakdown
	if len(e.Items) == 0 {
		return fmt.Errorf("breakdown requires items")
	}
	sub := decimal.Zero
	for _, item := range e.Items {
		sub = sub.Add(item.LineTotal())
	}
	if !sub.Equal(b.SubTotal) {
		return fmt.Errorf("subtotal %s does not match lines %s", b.SubTotal.StringFixed(2), sub.StringFixed(2))
	}
	want := b.SubTotal.Sub(b.DiscountAmount).Add(b.TaxAmount)
	if !want.Equal(e.Amount) {
		return fmt.Errorf("amount %s does not equal subtotal - discount + tax (%s)", e.Amount.StringFixed(2), want.StringFixed(2))
	}
	return nil
}
