package ratemath

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/orbit-yield/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPRToAPY(t *testing.T) {
	// 10% APR compounded daily is about 10.5156% APY
	apy, err := APRToAPY(10, DefaultCompounding)
	require.NoError(t, err)
	assert.InDelta(t, 10.5156, apy, 0.0001)

	// Zero rate stays zero
	apy, err = APRToAPY(0, DefaultCompounding)
	require.NoError(t, err)
	assert.Zero(t, apy)
}

func TestAPYToAPR(t *testing.T) {
	apr, err := APYToAPR(10.5156, DefaultCompounding)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, apr, 0.0001)
}

func TestRateConversion_RejectsNegative(t *testing.T) {
	_, err := APRToAPY(-1, DefaultCompounding)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidArgument))

	_, err = APYToAPR(-0.5, DefaultCompounding)
	require.Error(t, err)

	_, err = EstimatedEarnings(-100, 10, 30)
	require.Error(t, err)

	_, err = EstimatedEarnings(100, -10, 30)
	require.Error(t, err)

	_, err = APRToAPY(5, 0)
	require.Error(t, err)
}

func TestEstimatedEarnings(t *testing.T) {
	// A full year at the quoted APY earns exactly that percentage
	earnings, err := EstimatedEarnings(1000, 18, 365)
	require.NoError(t, err)
	assert.InDelta(t, 180, earnings, 0.01)

	// Zero duration earns nothing
	earnings, err = EstimatedEarnings(1000, 18, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, earnings, 1e-9)

	// Zero amount earns nothing
	earnings, err = EstimatedEarnings(0, 18, 365)
	require.NoError(t, err)
	assert.Zero(t, earnings)
}

// Round-trip property: apyToApr(aprToApy(x)) == x within 1e-6 relative
// tolerance for x in [0, 1000].
func TestRateConversionRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("apr→apy→apr round-trips", prop.ForAll(
		func(apr float64) bool {
			apy, err := APRToAPY(apr, DefaultCompounding)
			if err != nil {
				return false
			}
			back, err := APYToAPR(apy, DefaultCompounding)
			if err != nil {
				return false
			}
			if apr == 0 {
				return math.Abs(back) < 1e-9
			}
			return math.Abs(back-apr)/apr < 1e-6
		},
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}

func TestBasisPointConversion(t *testing.T) {
	assert.Equal(t, 18.0, BasisPointsToPercent(1800))
	assert.Equal(t, int64(1800), PercentToBasisPoints(18.0))
	assert.Equal(t, int64(950), PercentToBasisPoints(BasisPointsToPercent(950)))
}
