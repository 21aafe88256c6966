package report

import (
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/settings"
	"github.com/greengold/nexus/web"
)

// ErrNotIncome rejects documents for expenses.
var ErrNotIncome = fmt.Errorf("%w: documents are issued for income entries only", httpx.ErrValidation)

// Company is the letterhead block.
type Company struct {
	Name         string
	Address      string
	Phone        string
	Email        string
	BankName     string
	BankAccount  string
	PaymentTerms string
}

// Party is who the document is addressed to.
type Party struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// Line is one formatted item row.
type Line struct {
	Description string
	Qty         string
	Price       string
	Total       string
}

// TotalRow is one formatted row of the totals block.
type TotalRow struct {
	Label string
	Value string
	Grand bool
}

// Document is the printable view of an income entry: an invoice while money
// is owed, a receipt once paid in full.
type Document struct {
	Title              string
	Number             string
	Date               string
	Status             string
	Description        string
	Company            Company
	BillTo             *Party
	Lines              []Line
	Totals             []TotalRow
	ShowPaymentDetails bool
}

// NewDocument builds the view model for e. customer may be nil.
func NewDocument(e ledger.Entry, customer *customers.Customer, s settings.Settings) (Document, error) {
	if !e.IsIncome() {
		return Document{}, ErrNotIncome
	}
	sym := s.CurrencySymbol
	status := e.Status()
	doc := Document{
		Title:       "Invoice",
		Number:      documentNumber(e),
		Date:        e.Date.Format("2 January 2006"),
		Status:      string(status),
		Description: e.Description,
		Company: Company{
			Name: s.CompanyName, Address: s.CompanyAddress, Phone: s.CompanyPhone, Email: s.CompanyEmail,
			BankName: s.BankName, BankAccount: s.BankAccount, PaymentTerms: s.PaymentTerms,
		},
		BillTo: billTo(e, customer),
	}
	if status == ledger.StatusPaid {
		doc.Title = "Receipt"
	}
	for _, it := range e.Items {
		doc.Lines = append(doc.Lines, Line{
			Description: it.Description,
			Qty:         strconv.Itoa(it.Qty),
			Price:       money.Format(it.Price, sym),
			Total:       money.Format(it.LineTotal(), sym),
		})
	}
	if bd := e.Breakdown; bd != nil {
		doc.Totals = append(doc.Totals, TotalRow{Label: "Subtotal", Value: money.Format(bd.SubTotal, sym)})
		if bd.DiscountAmount.IsPositive() {
			doc.Totals = append(doc.Totals, TotalRow{Label: labelWithRate(bd.DiscountName, bd.DiscountRate), Value: "-" + money.Format(bd.DiscountAmount, sym)})
		}
		if bd.TaxAmount.IsPositive() {
			doc.Totals = append(doc.Totals, TotalRow{Label: labelWithRate(bd.TaxName, bd.TaxRate), Value: money.Format(bd.TaxAmount, sym)})
		}
	}
	doc.Totals = append(doc.Totals, TotalRow{Label: "Total", Value: money.Format(e.Amount, sym), Grand: true})
	if e.AmountPaid.IsPositive() {
		doc.Totals = append(doc.Totals, TotalRow{Label: "Paid", Value: money.Format(e.AmountPaid, sym)})
	}
	if due := ledger.BalanceDue(e); due.IsPositive() {
		doc.Totals = append(doc.Totals, TotalRow{Label: "Balance due", Value: money.Format(due, sym), Grand: true})
		doc.ShowPaymentDetails = true
	}
	return doc, nil
}

func documentNumber(e ledger.Entry) string {
	if e.WebOrder != nil && e.WebOrder.InvoiceNumber != "" {
		return e.WebOrder.InvoiceNumber
	}
	return strings.ToUpper(e.ID.String()[:8])
}

func billTo(e ledger.Entry, c *customers.Customer) *Party {
	if c != nil {
		name := c.Name
		if c.Company != "" {
			name = c.Name + ", " + c.Company
		}
		return &Party{Name: name, Email: c.Email, Phone: c.Phone, Address: c.Address}
	}
	if e.WebOrder != nil && e.WebOrder.Contact.Name != "" {
		ct := e.WebOrder.Contact
		return &Party{Name: ct.Name, Email: ct.Email, Phone: ct.Phone, Address: ct.Address}
	}
	return nil
}

// labelWithRate renders "VAT (15%)" from a percentage rate.
func labelWithRate(name string, rate decimal.Decimal) string {
	if name == "" {
		name = "Adjustment"
	}
	if rate.IsZero() {
		return name
	}
	return fmt.Sprintf("%s (%s%%)", name, rate.String())
}

// Renderer turns documents into HTML.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded document template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/entry.html")
	if err != nil {
		return nil, fmt.Errorf("report: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// HTML writes doc as a standalone HTML page.
func (r *Renderer) HTML(w io.Writer, doc Document) error {
	return r.tmpl.ExecuteTemplate(w, "entry.html", doc)
}
