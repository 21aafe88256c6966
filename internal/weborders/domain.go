// Package weborders takes storefront checkouts into the ledger inbox and
// reconciles them into ordinary, paid income entries.
package weborders

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/customers"
	"github.com/greengold/nexus/internal/inventory"
	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
)

// CartLine is one catalog line of a checkout. Prices always come from the
// catalog.
type CartLine struct {
	PlantID uuid.UUID `json:"plantId" validate:"required"`
	Qty     int       `json:"qty" validate:"required,gt=0,lte=1000"`
}

// CheckoutRequest is the public checkout form.
type CheckoutRequest struct {
	Name           string     `json:"customerName" validate:"required,max=200"`
	Email          string     `json:"customerEmail" validate:"required,email,max=320"`
	Phone          string     `json:"customerPhone" validate:"max=50"`
	Address        string     `json:"customerAddress" validate:"max=500"`
	PaymentMethod  string     `json:"paymentMethod" validate:"required,oneof='Mobile Money' Card"`
	Items          []CartLine `json:"items" validate:"required,min=1,max=100,dive"`
	IdempotencyKey string     `json:"-"`
}

func (r CheckoutRequest) contact() ledger.Contact {
	return ledger.Contact{Name: r.Name, Email: r.Email, Phone: r.Phone, Address: r.Address}
}

// ProcessResult reports a reconciliation. AlreadyProcessed marks a replay,
// which changes nothing.
type ProcessResult struct {
	Entry            ledger.Entry
	Customer         *customers.Customer
	CustomerCreated  bool
	AlreadyProcessed bool
	Movements        []inventory.Movement
}

var (
	// ErrNotWebOrder rejects reconciling entries that did not come from the shop.
	ErrNotWebOrder = fmt.Errorf("%w: entry is not a web order", httpx.ErrValidation)
	// ErrUnknownPlant rejects carts naming missing or hidden catalog items.
	ErrUnknownPlant = fmt.Errorf("%w: plant is not available", httpx.ErrValidation)
	// ErrOutOfStock rejects carts asking for more than the shelf holds.
	ErrOutOfStock = fmt.Errorf("%w: out of stock", inventory.ErrInsufficientStock)
)

func invoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}
