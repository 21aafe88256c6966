package settings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/greengold/nexus/internal/platform/httpx"
	"github.com/greengold/nexus/internal/shared"
)

type memoryRepo struct {
	saved *Settings
}

func (m *memoryRepo) Load(ctx context.Context) (Settings, bool, error) {
	if m.saved == nil {
		return Settings{}, false, nil
	}
	return *m.saved, true, nil
}

func (m *memoryRepo) Save(ctx context.Context, s Settings) error {
	m.saved = &s
	return nil
}

func adminCtx() context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleAdmin})
}

func TestLoadKeepsDefaultsWhenNothingSaved(t *testing.T) {
	store := NewStore(&memoryRepo{}, nil, nil, nil)
	require.NoError(t, store.Load(context.Background()))
	cur := store.Current()
	require.Equal(t, "Green Gold Gardens", cur.CompanyName)
	require.Equal(t, "VAT", cur.TaxName)
	require.Equal(t, TaxOnSubtotal, cur.TaxBasis)
	require.Equal(t, "Payment due upon receipt.", cur.PaymentTerms)
}

func TestSavePersistsAndSwapsSnapshot(t *testing.T) {
	repo := &memoryRepo{}
	store := NewStore(repo, nil, nil, nil)
	before := store.Current()

	saved, err := store.Save(adminCtx(), Settings{CompanyName: "  GGG Ltd ", TaxRate: decimal.NewFromInt(15), TaxBasis: TaxOnNet})
	require.NoError(t, err)
	require.Equal(t, "GGG Ltd", saved.CompanyName)
	require.Equal(t, "GHS", saved.Currency)
	require.True(t, store.Current().TaxRate.Equal(decimal.NewFromInt(15)))
	require.NotNil(t, repo.saved)

	// snapshots handed out earlier are unaffected
	require.Equal(t, "Green Gold Gardens", before.CompanyName)

	reloaded := NewStore(repo, nil, nil, nil)
	require.NoError(t, reloaded.Load(context.Background()))
	require.Equal(t, TaxOnNet, reloaded.Current().TaxBasis)
}

func TestSaveRejectsInvalidRates(t *testing.T) {
	store := NewStore(&memoryRepo{}, nil, nil, nil)
	_, err := store.Save(adminCtx(), Settings{TaxRate: decimal.NewFromInt(120)})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = store.Save(adminCtx(), Settings{DiscountRate: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = store.Save(adminCtx(), Settings{TaxBasis: "gross"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestSaveRequiresPermission(t *testing.T) {
	store := NewStore(&memoryRepo{}, nil, nil, nil)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{UserID: uuid.New(), Role: shared.RoleStaff})
	_, err := store.Save(ctx, Defaults())
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestSaveRejectsMultiLineHeaderFields(t *testing.T) {
	store := NewStore(&memoryRepo{}, nil, nil, nil)
	cases := map[string]Settings{
		"company name":  {CompanyName: "Green Gold\r\nBcc: someone@example.com"},
		"company email": {CompanyEmail: "shop@greengold.example\nX-Extra: 1"},
		"tax name":      {TaxName: "VAT\r"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Save(adminCtx(), in)
			require.ErrorIs(t, err, httpx.ErrValidation)
		})
	}
	// addresses may span lines
	_, err := store.Save(adminCtx(), Settings{CompanyAddress: "12 Garden Rd\nAccra"})
	require.NoError(t, err)
}
