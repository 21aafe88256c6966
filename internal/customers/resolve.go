package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/ledger"
)

// Resolver is what ResolveContact needs from the store.
type Resolver interface {
	FindByEmail(ctx context.Context, email string) (Customer, error)
	Insert(ctx context.Context, c Customer) error
}

// ResolveContact returns the customer whose email matches the contact,
// creating one when none exists. It runs in the caller's transaction so the
// customer only persists if the surrounding operation commits.
func ResolveContact(ctx context.Context, r Resolver, contact ledger.Contact, now time.Time) (Customer, bool, error) {
	candidate := Customer{
		Name:    contact.Name,
		Email:   contact.Email,
		Phone:   contact.Phone,
		Address: contact.Address,
		Type:    TypeIndividual,
	}.Normalize()
	if candidate.Email == "" {
		return Customer{}, false, fmt.Errorf("%w: order has no customer email", ErrInvalidCustomer)
	}
	existing, err := r.FindByEmail(ctx, candidate.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return Customer{}, false, err
	}
	if err := candidate.Validate(); err != nil {
		return Customer{}, false, err
	}
	candidate.ID = uuid.New()
	candidate.CreatedAt = now
	candidate.UpdatedAt = now
	if err := r.Insert(ctx, candidate); err != nil {
		return Customer{}, false, err
	}
	return candidate, true, nil
}
