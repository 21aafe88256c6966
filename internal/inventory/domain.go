// Package inventory keeps the plant catalog and its stock counts. Stock only
// moves through ApplySale and Adjust, both of which refuse to go below zero.
package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/greengold/nexus/internal/money"
	"github.com/greengold/nexus/internal/platform/httpx"
)

// Item is a catalog entry.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ImageURL    string          `json:"imageUrl"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// InStock reports whether at least one unit is available.
func (i Item) InStock() bool { return i.Stock > 0 }

// Validate checks the editable fields.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if i.Price.IsNegative() || !money.HasCents(i.Price) {
		return fmt.Errorf("%w: price must be a non-negative amount in whole cents", ErrInvalidItem)
	}
	if i.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidItem)
	}
	return nil
}

// Line is a quantity of one catalog item leaving stock.
type Line struct {
	ItemID uuid.UUID
	Qty    int
}

// Movement reports one decrement made by ApplySale.
type Movement struct {
	ItemID    uuid.UUID `json:"itemId"`
	Name      string    `json:"name"`
	Qty       int       `json:"qty"`
	Remaining int       `json:"remaining"`
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	ActiveOnly bool
	Category   string
	Search     string
}

// Patch carries editable fields; nil fields are left alone. Stock is not
// editable here, only through Adjust.
type Patch struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,max=100"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    *string          `json:"imageUrl,omitempty" validate:"omitempty,url,max=1000"`
	Active      *bool            `json:"active,omitempty"`
}

func (p Patch) apply(i Item) Item {
	if p.Name != nil {
		i.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		i.Price = *p.Price
	}
	if p.Category != nil {
		i.Category = strings.TrimSpace(*p.Category)
	}
	if p.Description != nil {
		i.Description = *p.Description
	}
	if p.ImageURL != nil {
		i.ImageURL = *p.ImageURL
	}
	if p.Active != nil {
		i.Active = *p.Active
	}
	return i
}

func (p Patch) columns(i Item) map[string]any {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = i.Name
	}
	if p.Price != nil {
		fields["price"] = i.Price
	}
	if p.Category != nil {
		fields["category"] = i.Category
	}
	if p.Description != nil {
		fields["description"] = i.Description
	}
	if p.ImageURL != nil {
		fields["image_url"] = i.ImageURL
	}
	if p.Active != nil {
		fields["active"] = i.Active
	}
	return fields
}

var (
	// ErrItemNotFound is returned for unknown catalog ids.
	ErrItemNotFound = fmt.Errorf("inventory item %w", httpx.ErrNotFound)
	// ErrInsufficientStock aborts any operation that would take stock below zero.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", httpx.ErrConflict)
	// ErrInvalidItem wraps catalog validation failures.
	ErrInvalidItem = fmt.Errorf("%w: invalid inventory item", httpx.ErrValidation)
	// ErrInvalidQuantity rejects zero or negative sale quantities and zero adjustments.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", httpx.ErrValidation)
)
