// Package invoicing turns a cart of lines into an itemized income entry and
// books it together with the matching stock decrement.
package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/settings"
)

// SettingsSource supplies the current business settings.
type SettingsSource interface {
	Current() settings.Settings
}

// Request is an invoice as submitted by staff. Omitted rates fall back to
// the configured defaults.
type Request struct {
	CustomerID     uuid.UUID        `json:"customerId" validate:"required"`
	Date           string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Category       string           `json:"category" validate:"max=100"`
	Items          []ledger.Item    `json:"items" validate:"required,min=1,max=200"`
	DiscountRate   *decimal.Decimal `json:"discountRate,omitempty"`
	TaxRate        *decimal.Decimal `json:"taxRate,omitempty"`
	IdempotencyKey string           `json:"-"`
}

// Builder prices requests using the current settings.
type Builder struct {
	settings SettingsSource
}

// NewBuilder constructs a Builder.
func NewBuilder(src SettingsSource) Builder {
	return Builder{settings: src}
}

// Rates resolves the rates for req.
func (b Builder) Rates(req Request) ledger.Rates {
	s := b.settings.Current()
	rates := ledger.Rates{
		DiscountName: s.DiscountName,
		DiscountRate: s.DiscountRate,
		TaxName:      s.TaxName,
		TaxRate:      s.TaxRate,
		TaxOnNet:     s.TaxBasis == settings.TaxOnNet,
	}
	if req.DiscountRate != nil {
		rates.DiscountRate = *req.DiscountRate
	}
	if req.TaxRate != nil {
		rates.TaxRate = *req.TaxRate
	}
	return rates
}

// Preview prices the lines without building an entry.
func (b Builder) Preview(req Request) (ledger.Totals, *ledger.Breakdown, error) {
	rates := b.Rates(req)
	totals, err := ledger.ComputeTotals(cleanItems(req.Items), rates)
	if err != nil {
		return ledger.Totals{}, nil, err
	}
	return totals, ledger.BreakdownFor(totals, rates), nil
}

// Build returns the unpaid invoice entry for req.
func (b Builder) Build(req Request, now time.Time) (ledger.Entry, error) {
	if req.CustomerID == uuid.Nil {
		return ledger.Entry{}, fmt.Errorf("%w: customer is required", httpx.ErrValidation)
	}
	date, err := ledger.ParseDate(req.Date, now)
	if err != nil {
		return ledger.Entry{}, err
	}
	items := cleanItems(req.Items)
	rates := b.Rates(req)
	totals, err := ledger.ComputeTotals(items, rates)
	if err != nil {
		return ledger.Entry{}, err
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = ledger.CategorySalesOfGoods
	}
	customer := req.CustomerID
	e := ledger.Entry{
		ID:          uuid.New(),
		Kind:        ledger.KindIncome,
		Origin:      ledger.OriginInvoice,
		Category:    category,
		Date:        date,
		Description: ledger.ItemsDescription(items),
		Amount:      totals.Amount,
		AmountPaid:  decimal.Zero,
		Breakdown:   ledger.BreakdownFor(totals, rates),
		Items:       items,
		CustomerID:  &customer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func cleanItems(items []ledger.Item) []ledger.Item {
	out := make([]ledger.Item, len(items))
	for i, it := range items {
		it.Description = strings.TrimSpace(it.Description)
		out[i] = it
	}
	return out
}
