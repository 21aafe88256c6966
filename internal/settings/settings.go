// Package settings owns the business profile and default rates used when
// invoices are built and reports are printed. The values are loaded once at
// startup, replaced atomically on save, and passed explicitly to consumers.
package settings

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/platform/httpx"
)

// TaxBasis selects what the tax rate is applied to.
type TaxBasis string

const (
	// TaxOnSubtotal taxes the pre-discount subtotal.
	TaxOnSubtotal TaxBasis = "subtotal"
	// TaxOnNet taxes the subtotal after the discount.
	TaxOnNet TaxBasis = "net"
)

// Settings is the business profile.
type Settings struct {
	CompanyName    string          `json:"company_name"`
	CompanyAddress string          `json:"company_address"`
	CompanyPhone   string          `json:"company_phone"`
	CompanyEmail   string          `json:"company_email"`
	BankName       string          `json:"bank_name"`
	BankAccount    string          `json:"bank_account"`
	PaymentTerms   string          `json:"payment_terms"`
	TaxName        string          `json:"tax_name"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	DiscountName   string          `json:"discount_name"`
	DiscountRate   decimal.Decimal `json:"discount_rate"`
	TaxBasis       TaxBasis        `json:"tax_basis"`
	Currency       string          `json:"currency"`
	CurrencySymbol string          `json:"currency_symbol"`
}

// Defaults returns the profile used before anything has been saved.
func Defaults() Settings {
	return Settings{
		CompanyName:    "Green Gold Gardens",
		CompanyAddress: "Accra, Ghana",
		PaymentTerms:   "Payment due upon receipt.",
		TaxName:        "VAT",
		TaxRate:        decimal.Zero,
		DiscountName:   "Discount",
		DiscountRate:   decimal.Zero,
		TaxBasis:       TaxOnSubtotal,
		Currency:       "GHS",
		CurrencySymbol: "GH₵",
	}
}

// Normalize fills blanks with defaults and trims text fields.
func (s Settings) Normalize() Settings {
	def := Defaults()
	trim := func(v, fallback string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return fallback
		}
		return v
	}
	s.CompanyName = trim(s.CompanyName, def.CompanyName)
	s.CompanyAddress = strings.TrimSpace(s.CompanyAddress)
	s.CompanyPhone = strings.TrimSpace(s.CompanyPhone)
	s.CompanyEmail = strings.TrimSpace(s.CompanyEmail)
	s.BankName = strings.TrimSpace(s.BankName)
	s.BankAccount = strings.TrimSpace(s.BankAccount)
	s.PaymentTerms = trim(s.PaymentTerms, def.PaymentTerms)
	s.TaxName = trim(s.TaxName, def.TaxName)
	s.DiscountName = trim(s.DiscountName, def.DiscountName)
	s.Currency = strings.ToUpper(trim(s.Currency, def.Currency))
	s.CurrencySymbol = trim(s.CurrencySymbol, def.CurrencySymbol)
	if s.TaxBasis == "" {
		s.TaxBasis = def.TaxBasis
	}
	return s
}

// Validate checks rates and enums.
func (s Settings) Validate() error {
	if !money.ValidRate(s.TaxRate) {
		return fmt.Errorf("%w: tax rate must be between 0 and 100", httpx.ErrValidation)
	}
	if !money.ValidRate(s.DiscountRate) {
		return fmt.Errorf("%w: discount rate must be between 0 and 100", httpx.ErrValidation)
	}
	switch s.TaxBasis {
	case TaxOnSubtotal, TaxOnNet:
	default:
		return fmt.Errorf("%w: tax basis must be subtotal or net", httpx.ErrValidation)
	}
	if len(s.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", httpx.ErrValidation)
	}
	// These end up in mail headers, document titles and table cells.
	for name, v := range map[string]string{
		"company name": s.CompanyName, "company phone": s.CompanyPhone, "company email": s.CompanyEmail,
		"bank name": s.BankName, "bank account": s.BankAccount, "tax name": s.TaxName,
		"discount name": s.DiscountName, "currency symbol": s.CurrencySymbol,
	} {
		if strings.ContainsFunc(v, unicode.IsControl) {
			return fmt.Errorf("%w: %s must be a single line", httpx.ErrValidation, name)
		}
	}
	return nil
}
