package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPercentRoundsToCent(t *testing.T) {
	require.True(t, Percent(d("200"), d("5")).Equal(d("10")))
	require.True(t, Percent(d("33.33"), d("12.5")).Equal(d("4.17")))
	require.True(t, Percent(d("0.05"), d("50")).Equal(d("0.03")))
}

func TestValidRate(t *testing.T) {
	require.True(t, ValidRate(d("0")))
	require.True(t, ValidRate(d("100")))
	require.False(t, ValidRate(d("-1")))
	require.False(t, ValidRate(d("100.01")))
}

func TestFormat(t *testing.T) {
	require.Equal(t, "GH₵1,234.50", Format(d("1234.5"), "GH₵"))
	require.Equal(t, "GH₵0.00", Format(decimal.Zero, "GH₵"))
	require.Equal(t, "-GH₵12.05", Format(d("-12.049"), "GH₵"))
}

func TestHasCents(t *testing.T) {
	require.True(t, HasCents(d("10.25")))
	require.False(t, HasCents(d("10.255")))
}

func TestParse(t *testing.T) {
	v, err := Parse(" 19.99 ")
	require.NoError(t, err)
	require.True(t, v.Equal(d("19.99")))
	_, err = Parse("abc")
	require.Error(t, err)
}
