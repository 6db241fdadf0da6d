package valuation

import (
	"context"
	"testing"

	"github.com/orbit-yield/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPriceSource serves fixed prices; symbols not in the map are misses
type stubPriceSource struct {
	prices map[string]string
	err    error
}

func (s *stubPriceSource) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	if p, ok := s.prices[symbol]; ok {
		return decimal.RequireFromString(p), nil
	}
	return decimal.Zero, ErrPriceNotFound
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(&stubPriceSource{prices: map[string]string{
		"USDC": "1.0",
		"ETH":  "2500",
	}})
	ctx := context.Background()

	t.Run("six decimal USDC", func(t *testing.T) {
		v, err := n.Normalize(ctx, "1000000", 6, "USDC")
		require.NoError(t, err)
		assert.True(t, v.Amount.Equal(decimal.NewFromInt(1)), "amount = %s", v.Amount)
		assert.True(t, v.Value.Equal(decimal.NewFromInt(1)), "value = %s", v.Value)
		assert.Nil(t, v.Warning)
	})

	t.Run("eighteen decimal ETH", func(t *testing.T) {
		v, err := n.Normalize(ctx, "1500000000000000000", 18, "ETH")
		require.NoError(t, err)
		assert.True(t, v.Amount.Equal(decimal.RequireFromString("1.5")))
		assert.True(t, v.Value.Equal(decimal.NewFromInt(3750)))
	})

	t.Run("zero raw amount", func(t *testing.T) {
		for _, decimals := range []int{0, 6, 18} {
			v, err := n.Normalize(ctx, "0", decimals, "USDC")
			require.NoError(t, err)
			assert.True(t, v.Amount.IsZero())
			assert.True(t, v.Value.IsZero())
		}
	})

	t.Run("zero decimals is valid", func(t *testing.T) {
		v, err := n.Normalize(ctx, "42", 0, "USDC")
		require.NoError(t, err)
		assert.True(t, v.Amount.Equal(decimal.NewFromInt(42)))
	})

	t.Run("amount beyond float64 precision stays exact", func(t *testing.T) {
		// 123456789012345678901234567890 with 18 decimals
		v, err := n.Normalize(ctx, "123456789012345678901234567890", 18, "USDC")
		require.NoError(t, err)
		assert.Equal(t, "123456789012.34567890123456789", v.Amount.String())
	})
}

func TestNormalize_MissingPrice(t *testing.T) {
	n := NewNormalizer(&stubPriceSource{prices: map[string]string{}})

	v, err := n.Normalize(context.Background(), "2000000", 6, "UNKNOWN")
	require.NoError(t, err, "missing price must not abort the operation")
	assert.True(t, v.Amount.Equal(decimal.NewFromInt(2)))
	// Documented fallback: price defaults to 1, surfaced as a warning
	assert.True(t, v.Value.Equal(decimal.NewFromInt(2)))
	assert.True(t, v.PriceUsed.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, v.Warning)
	assert.Equal(t, errors.CodePriceUnavailable, v.Warning.Code)
}

func TestNormalize_LookupFailure(t *testing.T) {
	n := NewNormalizer(&stubPriceSource{err: errors.NewUpstreamUnavailableError("prices", nil)})

	v, err := n.Normalize(context.Background(), "1000000", 6, "USDC")
	require.NoError(t, err, "price lookup failure must not fail normalization")
	require.NotNil(t, v.Warning)
	assert.True(t, v.PriceUsed.Equal(decimal.NewFromInt(1)))
}

func TestNormalize_InvalidInput(t *testing.T) {
	n := NewNormalizer(&stubPriceSource{})
	ctx := context.Background()

	cases := []struct {
		name     string
		raw      string
		decimals int
	}{
		{"empty raw", "", 6},
		{"non-numeric raw", "12.5", 6},
		{"negative raw", "-100", 6},
		{"negative decimals", "100", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(ctx, tc.raw, tc.decimals, "USDC")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))
		})
	}
}
