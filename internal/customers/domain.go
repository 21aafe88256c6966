// Package customers keeps the customer book. Balances are never stored; they
// are summed from ledger entries on read.
package customers

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/platform/httpx"
)

var validate = validator.New()

// Type distinguishes private buyers from businesses.
type Type string

const (
	TypeIndividual Type = "Individual"
	TypeBusiness   Type = "Business"
)

// Customer is a buyer known to the nursery.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Company   string    `json:"company"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WithBalance pairs a customer with their outstanding balance.
type WithBalance struct {
	Customer
	Balance decimal.Decimal `json:"balance"`
}

// Normalize trims fields and lower-cases the email.
func (c Customer) Normalize() Customer {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.Company = strings.TrimSpace(c.Company)
	if c.Type == "" {
		c.Type = TypeIndividual
	}
	return c
}

// Validate checks a normalized customer.
func (c Customer) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCustomer)
	}
	if c.Type != TypeIndividual && c.Type != TypeBusiness {
		return fmt.Errorf("%w: type must be Individual or Business", ErrInvalidCustomer)
	}
	if c.Email != "" {
		if err := validate.Var(c.Email, "email"); err != nil {
			return fmt.Errorf("%w: email is not valid", ErrInvalidCustomer)
		}
	}
	return nil
}

// Input is the create/update body.
type Input struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=500"`
	Company string `json:"company" validate:"max=200"`
	Type    Type   `json:"type" validate:"omitempty,oneof=Individual Business"`
}

var (
	// ErrCustomerNotFound is returned for unknown ids.
	ErrCustomerNotFound = fmt.Errorf("customer %w", httpx.ErrNotFound)
	// ErrInvalidCustomer wraps validation failures.
	ErrInvalidCustomer = fmt.Errorf("%w: invalid customer", httpx.ErrValidation)
	// ErrDuplicateEmail rejects a second customer with the same email.
	ErrDuplicateEmail = fmt.Errorf("%w: a customer with this email already exists", httpx.ErrDuplicate)
	// ErrHasEntries protects customers that are referenced by the ledger.
	ErrHasEntries = fmt.Errorf("%w: customer has ledger entries", httpx.ErrConflict)
)
