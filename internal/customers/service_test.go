package customers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/ledger"
	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	customers map[uuid.UUID]Customer
	used      map[uuid.UUID]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: map[uuid.UUID]Customer{}, used: map[uuid.UUID]bool{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, r)
}

func (r *memoryRepo) List(ctx context.Context, search string) ([]Customer, error) {
	var out []Customer
	for _, c := range r.customers {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (Customer, error) {
	for _, c := range r.customers {
		if c.Email != "" && strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return Customer{}, ErrCustomerNotFound
}

func (r *memoryRepo) Insert(ctx context.Context, c Customer) error {
	r.customers[c.ID] = c
	return nil
}

func (r *memoryRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	c, ok := r.customers[id]
	if !ok {
		return ErrCustomerNotFound
	}
	c.Name = fields["name"].(string)
	c.Email = fields["email"].(string)
	r.customers[id] = c
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.customers[id]; !ok {
		return ErrCustomerNotFound
	}
	delete(r.customers, id)
	return nil
}

func (r *memoryRepo) HasEntries(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.used[id], nil
}

type stubEntries []ledger.Entry

func (s stubEntries) ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range s {
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.CustomerID != nil && (e.CustomerID == nil || *e.CustomerID != *f.CustomerID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func editor() context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleAccountant})
}

func TestCreateRejectsDuplicateEmailIgnoringCase(t *testing.T) {
	svc := NewService(newMemoryRepo(), stubEntries(nil), nil, nil, nil)

	c, err := svc.Create(editor(), Input{Name: "Ama Mensah", Email: "Ama@Example.com"})
	require.NoError(t, err)
	require.Equal(t, "ama@example.com", c.Email)
	require.Equal(t, TypeIndividual, c.Type)

	_, err = svc.Create(editor(), Input{Name: "Ama M.", Email: "AMA@example.COM"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	require.ErrorIs(t, err, httpx.ErrDuplicate)

	_, err = svc.Create(editor(), Input{Name: " "})
	require.ErrorIs(t, err, ErrInvalidCustomer)
}

func TestBalancesDeriveFromLedger(t *testing.T) {
	repo := newMemoryRepo()
	alice := Customer{ID: uuid.New(), Name: "Alice", Type: TypeIndividual}
	bob := Customer{ID: uuid.New(), Name: "Bob", Type: TypeBusiness}
	repo.customers[alice.ID] = alice
	repo.customers[bob.ID] = bob

	entries := stubEntries{
		{ID: uuid.New(), Kind: ledger.KindIncome, Amount: decimal.NewFromInt(189), AmountPaid: decimal.NewFromInt(100), CustomerID: &alice.ID, Date: time.Now()},
		{ID: uuid.New(), Kind: ledger.KindIncome, Amount: decimal.NewFromInt(50), AmountPaid: decimal.Zero, CustomerID: &alice.ID, Date: time.Now()},
		{ID: uuid.New(), Kind: ledger.KindIncome, Amount: decimal.NewFromInt(20), AmountPaid: decimal.NewFromInt(20), CustomerID: &bob.ID, Date: time.Now()},
	}
	svc := NewService(repo, entries, nil, nil, nil)

	list, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, c := range list {
		switch c.ID {
		case alice.ID:
			require.True(t, c.Balance.Equal(decimal.NewFromInt(139)))
		case bob.ID:
			require.True(t, c.Balance.IsZero())
		}
	}

	detail, err := svc.Get(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, detail.Entries, 2)
	require.True(t, detail.Balance.Equal(decimal.NewFromInt(139)))
}

func TestDeleteRejectedWithEntries(t *testing.T) {
	repo := newMemoryRepo()
	c := Customer{ID: uuid.New(), Name: "Kofi", Type: TypeIndividual}
	repo.customers[c.ID] = c
	repo.used[c.ID] = true
	svc := NewService(repo, stubEntries(nil), nil, nil, nil)

	require.ErrorIs(t, svc.Delete(editor(), c.ID), ErrHasEntries)
	repo.used[c.ID] = false
	require.NoError(t, svc.Delete(editor(), c.ID))
	require.ErrorIs(t, svc.Delete(editor(), c.ID), ErrCustomerNotFound)
}

func TestResolveContact(t *testing.T) {
	repo := newMemoryRepo()
	existing := Customer{ID: uuid.New(), Name: "Esi", Email: "esi@example.com", Type: TypeIndividual}
	repo.customers[existing.ID] = existing
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	got, created, err := ResolveContact(context.Background(), repo, ledger.Contact{Name: "Esi B", Email: "ESI@example.com"}, now)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, existing.ID, got.ID)

	got, created, err = ResolveContact(context.Background(), repo, ledger.Contact{Name: "Yaw", Email: "yaw@example.com", Phone: "024"}, now)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "yaw@example.com", got.Email)
	require.Equal(t, now, got.CreatedAt)
	require.Len(t, repo.customers, 2)

	_, _, err = ResolveContact(context.Background(), repo, ledger.Contact{Name: "No Mail"}, now)
	require.ErrorIs(t, err, ErrInvalidCustomer)
}
