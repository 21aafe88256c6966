// Package ledger holds the bookkeeping entries of the nursery: income
// (invoices, web orders, manual receipts) and expenses (including payroll).
//
// An entry's payment status is never stored. It is derived from Amount and
// AmountPaid by Classify, and AmountPaid only changes through ApplyPayment.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind separates receivables from spending.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Origin records which workflow produced the entry.
type Origin string

const (
	OriginManual  Origin = "manual"
	OriginInvoice Origin = "invoice"
	OriginWeb     Origin = "web"
	OriginPayroll Origin = "payroll"
)

// Status is the derived payment state of an income entry.
type Status string

const (
	StatusUnpaid  Status = "Unpaid"
	StatusPartial Status = "Partial"
	StatusPaid    Status = "Paid"
)

// Default categories and payment method labels.
const (
	CategorySalesOfGoods  = "Sales of Goods"
	CategoryWebSales      = "Sales"
	CategoryOtherIncome   = "Other Income"
	CategoryOtherExpense  = "Other"
	CategorySalariesWages = "Salaries & Wages"
	PaymentMethodMobile   = "Mobile Money"
	PaymentMethodCard     = "Card"
	PaymentMethodCash     = "Cash"
	PaymentMethodTransfer = "Bank Transfer"
)

// IncomeCategories are offered when recording income.
var IncomeCategories = []string{
	"Sales of Goods", "Sales of Service", "Proceeds", "Consultation Fee", "Installation", "Other Income",
}

// ExpenseCategories are offered when recording spending.
var ExpenseCategories = []string{
	"Operational Expenses", "Utilities", "Fines", "Property", "Transportation", "Food & Water",
	"Salaries", "Maintenance", "Marketing", "Restocking", "Other",
}

// Item is one invoice line.
type Item struct {
	Description string          `json:"desc"`
	Price       decimal.Decimal `json:"price"`
	Qty         int             `json:"qty"`
	InventoryID *uuid.UUID      `json:"inventoryId,omitempty"`
}

// LineTotal is price × qty.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// Breakdown keeps the arithmetic behind an itemized amount.
type Breakdown struct {
	SubTotal       decimal.Decimal `json:"subTotal"`
	DiscountName   string          `json:"discountName"`
	DiscountRate   decimal.Decimal `json:"discountRate"`
	DiscountAmount decimal.Decimal `json:"discAmt"`
	TaxName        string          `json:"taxName"`
	TaxRate        decimal.Decimal `json:"taxRate"`
	TaxAmount      decimal.Decimal `json:"taxAmt"`
	TaxOnNet       bool            `json:"taxOnNet,omitempty"`
}

// Contact is what a storefront customer typed at checkout.
type Contact struct {
	Name    string `json:"customerName"`
	Email   string `json:"customerEmail"`
	Phone   string `json:"customerPhone"`
	Address string `json:"customerAddress"`
}

// WebOrder holds the storefront part of a web-originated entry.
type WebOrder struct {
	InvoiceNumber string     `json:"invoiceNumber"`
	Contact       Contact    `json:"contact"`
	PaymentMethod string     `json:"paymentMethod"`
	Processed     bool       `json:"processed"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
}

// Entry is a ledger record. Which optional parts may be set depends on Kind
// and Origin; Validate enforces the combinations.
type Entry struct {
	ID           uuid.UUID
	Kind         Kind
	Origin       Origin
	Category     string
	Date         time.Time
	Description  string
	Amount       decimal.Decimal
	AmountPaid   decimal.Decimal
	Breakdown    *Breakdown
	Items        []Item
	CustomerID   *uuid.UUID
	WebOrder     *WebOrder
	PayrollRunID *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsIncome reports whether the entry is a receivable.
func (e Entry) IsIncome() bool { return e.Kind == KindIncome }

// Itemized reports whether the amount was built from lines.
func (e Entry) Itemized() bool { return e.Breakdown != nil }

// IsWebOrder reports whether the entry still waits in the web-order inbox.
func (e Entry) IsWebOrder() bool {
	return e.Origin == OriginWeb && e.WebOrder != nil && !e.WebOrder.Processed
}

// IsPayroll reports whether the entry is the expense side of a payroll run.
func (e Entry) IsPayroll() bool { return e.Origin == OriginPayroll }

// Status derives the payment state; expenses have none.
func (e Entry) Status() Status {
	if e.Kind != KindIncome {
		return ""
	}
	return Classify(e.Amount, e.AmountPaid)
}

// Payment is a receipt recorded against an income entry.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	EntryID    uuid.UUID       `json:"entryId"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Note       string          `json:"note"`
	RecordedBy *uuid.UUID      `json:"recordedBy,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Filter narrows entry listings.
type Filter struct {
	Kind       Kind
	Origin     Origin
	Status     Status
	CustomerID *uuid.UUID
	InboxOnly  bool
	From       time.Time
	To         time.Time
	Search     string
	Limit      int
	Offset     int
}

// Totals is the result of pricing a set of lines.
type Totals struct {
	SubTotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Amount         decimal.Decimal
}

// Rates are the percentages applied when pricing lines.
type Rates struct {
	DiscountName string
	DiscountRate decimal.Decimal
	TaxName      string
	TaxRate      decimal.Decimal
	TaxOnNet     bool
}
