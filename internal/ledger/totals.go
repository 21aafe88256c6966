package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/platform/httpx"
)

// ComputeTotals prices lines:
//
//	subTotal = Σ price×qty
//	discount = subTotal × discountRate / 100
//	tax      = subTotal × taxRate / 100 (or (subTotal − discount) when TaxOnNet)
//	amount   = subTotal − discount + tax
func ComputeTotals(items []Item, rates Rates) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrEmptyCart
	}
	if !money.ValidRate(rates.DiscountRate) {
		return Totals{}, fmt.Errorf("%w: discount rate must be between 0 and 100", httpx.ErrValidation)
	}
	if !money.ValidRate(rates.TaxRate) {
		return Totals{}, fmt.Errorf("%w: tax rate must be between 0 and 100", httpx.ErrValidation)
	}
	sub := decimal.Zero
	for i, item := range items {
		if err := validateItem(i, item); err != nil {
			return Totals{}, err
		}
		sub = sub.Add(item.LineTotal())
	}
	discount := money.Percent(sub, rates.DiscountRate)
	taxBase := sub
	if rates.TaxOnNet {
		taxBase = sub.Sub(discount)
	}
	tax := money.Percent(taxBase, rates.TaxRate)
	amount := sub.Sub(discount).Add(tax)
	if !money.Positive(amount) {
		return Totals{}, ErrZeroTotal
	}
	return Totals{SubTotal: sub, DiscountAmount: discount, TaxAmount: tax, Amount: amount}, nil
}

func validateItem(i int, item Item) error {
	if strings.TrimSpace(item.Description) == "" {
		return fmt.Errorf("%w: line %d needs a description", httpx.ErrValidation, i+1)
	}
	if item.Qty <= 0 {
		return fmt.Errorf("%w: line %d quantity must be positive", httpx.ErrValidation, i+1)
	}
	if item.Price.IsNegative() || !money.HasCents(item.Price) {
		return fmt.Errorf("%w: line %d price must be a non-negative amount in whole cents", httpx.ErrValidation, i+1)
	}
	return nil
}

// BreakdownFor records the totals and rates on an entry.
func BreakdownFor(t Totals, rates Rates) *Breakdown {
	return &Breakdown{
		SubTotal:       t.SubTotal,
		DiscountName:   rates.DiscountName,
		DiscountRate:   rates.DiscountRate,
		DiscountAmount: t.DiscountAmount,
		TaxName:        rates.TaxName,
		TaxRate:        rates.TaxRate,
		TaxAmount:      t.TaxAmount,
		TaxOnNet:       rates.TaxOnNet,
	}
}

// ItemsDescription is the entry description for a set of lines.
func ItemsDescription(items []Item) string {
	if len(items) == 1 {
		return strings.TrimSpace(items[0].Description)
	}
	return fmt.Sprintf("Multiple Items (%d)", len(items))
}
