package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalsTaxOnSubtotal(t *testing.T) {
	items := []Item{{Description: "Areca palm", Price: dec("100"), Qty: 2}}
	got, err := ComputeTotals(items, Rates{DiscountRate: dec("10"), TaxRate: dec("5")})
	require.NoError(t, err)
	require.True(t, got.SubTotal.Equal(dec("200")))
	require.True(t, got.DiscountAmount.Equal(dec("20")))
	require.True(t, got.TaxAmount.Equal(dec("10")))
	require.True(t, got.Amount.Equal(dec("190")))
}

func TestComputeTotalsTaxOnNet(t *testing.T) {
	items := []Item{{Description: "Areca palm", Price: dec("100"), Qty: 2}}
	got, err := ComputeTotals(items, Rates{DiscountRate: dec("10"), TaxRate: dec("5"), TaxOnNet: true})
	require.NoError(t, err)
	require.True(t, got.SubTotal.Equal(dec("200")))
	require.True(t, got.DiscountAmount.Equal(dec("20")))
	require.True(t, got.TaxAmount.Equal(dec("9")))
	require.True(t, got.Amount.Equal(dec("189")))
}

func TestComputeTotalsRounding(t *testing.T) {
	items := []Item{
		{Description: "Fern", Price: dec("33.33"), Qty: 1},
		{Description: "Pot", Price: dec("12.05"), Qty: 3},
	}
	got, err := ComputeTotals(items, Rates{DiscountRate: dec("7.5"), TaxRate: dec("12.5")})
	require.NoError(t, err)
	// 33.33 + 36.15 = 69.48; 7.5% = 5.211 -> 5.21; 12.5% = 8.685 -> 8.69
	require.True(t, got.SubTotal.Equal(dec("69.48")))
	require.True(t, got.DiscountAmount.Equal(dec("5.21")))
	require.True(t, got.TaxAmount.Equal(dec("8.69")))
	require.True(t, got.Amount.Equal(dec("72.96")))
}

func TestComputeTotalsRejects(t *testing.T) {
	ok := Item{Description: "Fern", Price: dec("10"), Qty: 1}
	cases := map[string]struct {
		items []Item
		rates Rates
		want  error
	}{
		"empty":        {items: nil, want: ErrEmptyCart},
		"zero qty":     {items: []Item{{Description: "Fern", Price: dec("10")}}},
		"negative":     {items: []Item{{Description: "Fern", Price: dec("-1"), Qty: 1}}},
		"no desc":      {items: []Item{{Price: dec("1"), Qty: 1}}},
		"free":         {items: []Item{{Description: "Seed", Price: decimal.Zero, Qty: 3}}, want: ErrZeroTotal},
		"tax over 100": {items: []Item{ok}, rates: Rates{TaxRate: dec("101")}},
		"discount":     {items: []Item{ok}, rates: Rates{DiscountRate: dec("-1")}},
		"full off":     {items: []Item{ok}, rates: Rates{DiscountRate: dec("100")}, want: ErrZeroTotal},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ComputeTotals(tc.items, tc.rates)
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestItemsDescription(t *testing.T) {
	require.Equal(t, "Snake plant", ItemsDescription([]Item{{Description: " Snake plant "}}))
	require.Equal(t, "Multiple Items (3)", ItemsDescription(make([]Item, 3)))
}

func TestValidateVariants(t *testing.T) {
	run := uuid.New()
	customer := uuid.New()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []Item{{Description: "Areca palm", Price: dec("100"), Qty: 2}}
	rates := Rates{DiscountRate: dec("10"), TaxRate: dec("5")}
	totals, err := ComputeTotals(items, rates)
	require.NoError(t, err)

	invoice := Entry{
		Kind: KindIncome, Origin: OriginInvoice, Category: CategorySalesOfGoods, Date: day,
		Amount: totals.Amount, AmountPaid: decimal.Zero, Items: items,
		Breakdown: BreakdownFor(totals, rates), CustomerID: &customer,
	}
	require.NoError(t, invoice.Validate())

	tampered := invoice
	tampered.Amount = dec("200")
	require.ErrorIs(t, tampered.Validate(), ErrInvalidEntry)

	payroll := Entry{Kind: KindExpense, Origin: OriginPayroll, Category: CategorySalariesWages, Date: day, Amount: dec("2550"), PayrollRunID: &run}
	require.NoError(t, payroll.Validate())

	orphan := payroll
	orphan.PayrollRunID = nil
	require.ErrorIs(t, orphan.Validate(), ErrInvalidEntry)

	paidExpense := Entry{Kind: KindExpense, Origin: OriginManual, Category: "Utilities", Date: day, Amount: dec("10"), AmountPaid: dec("10")}
	require.ErrorIs(t, paidExpense.Validate(), ErrInvalidEntry)

	web := Entry{
		Kind: KindIncome, Origin: OriginWeb, Category: CategoryWebSales, Date: day,
		Amount: dec("50"), AmountPaid: dec("50"), WebOrder: &WebOrder{InvoiceNumber: "INV-000001"},
	}
	require.ErrorIs(t, web.Validate(), ErrInvalidEntry, "inbox orders are unpaid")

	overpaid := Entry{Kind: KindIncome, Origin: OriginManual, Category: "Other Income", Date: day, Amount: dec("10"), AmountPaid: dec("11")}
	require.ErrorIs(t, overpaid.Validate(), ErrInvalidEntry)
}
