package v3math

import (
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/daoleno/uniswapv3-sdk/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairScope/internal/model"
)

func TestActiveTick(t *testing.T) {
	tests := []struct {
		tick, spacing, want int32
	}{
		{1002, 10, 1000},
		{-1002, 10, -1010},
		{1000, 10, 1000},
		{-1000, 10, -1000},
		{0, 60, 0},
		{-1, 60, -60},
		{59, 60, 0},
	}
	for _, tt := range tests {
		got := ActiveTick(tt.tick, tt.spacing)
		assert.Equal(t, tt.want, got, "ActiveTick(%d, %d)", tt.tick, tt.spacing)
		assert.Equal(t, got, ActiveTick(got, tt.spacing), "idempotent for %d", tt.tick)
		assert.LessOrEqual(t, got, tt.tick)
	}
}

func TestDeltas(t *testing.T) {
	liquidity := big.NewInt(1_000_000_000_000_000_000)
	expected0 := decimal.RequireFromString("4987272070749096.1335")
	expected1 := decimal.RequireFromString("5012269623051203.5007")
	tolerance := decimal.NewFromInt(1_000_000_000)

	delta0 := Delta0(liquidity, 100, 0)
	require.True(t, delta0.IsPositive())
	assert.True(t, delta0.Sub(expected0).Abs().LessThan(tolerance), "delta0 = %s", delta0)

	delta1 := Delta1(liquidity, 0, 100)
	require.True(t, delta1.IsPositive())
	assert.True(t, delta1.Sub(expected1).Abs().LessThan(tolerance), "delta1 = %s", delta1)

	assert.True(t, Delta0(liquidity, 0, 100).IsNegative())
	assert.True(t, Delta1(liquidity, 100, 0).IsNegative())
}

func TestDeltaAntisymmetry(t *testing.T) {
	liquidity, ok := new(big.Int).SetString("25644347264742834619", 10)
	require.True(t, ok)

	pairs := [][2]int32{{0, 100}, {201000, 201030}, {-500, 730}, {-887270, -887200}, {887000, 887270}}
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		assert.True(t, Delta0(liquidity, a, b).Equal(Delta0(liquidity, b, a).Neg()), "delta0 %d %d", a, b)
		assert.True(t, Delta1(liquidity, a, b).Equal(Delta1(liquidity, b, a).Neg()), "delta1 %d %d", a, b)
	}
}

func TestLiquidityRoundTrip(t *testing.T) {
	liquidity := big.NewInt(1_000_000_000_000_000_000)

	fromDelta1, err := LiquidityFromDelta1(Delta1(liquidity, 0, 100), 0, 100)
	require.NoError(t, err)
	assert.Equal(t, liquidity.String(), fromDelta1.String())

	fromDelta0, err := LiquidityFromDelta0(Delta0(liquidity, 100, 0), 100, 0)
	require.NoError(t, err)
	assert.Equal(t, liquidity.String(), fromDelta0.String())

	// Eight significant digits of input still land within 1e12.
	approx, err := LiquidityFromDelta1(decimal.RequireFromString("5.0122696e15"), 0, 100)
	require.NoError(t, err)
	diff := new(big.Int).Sub(liquidity, approx)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(1_000_000_000_000)), 0)

	_, err = LiquidityFromDelta0(decimal.NewFromInt(1), 10, 10)
	require.Error(t, err)
}

func TestTickToPrice(t *testing.T) {
	price := TickToPrice(200311, 6, 18)
	assert.InDelta(t, 2000.04, price.Price0.InexactFloat64(), 0.01)
	assert.InDelta(t, 0.0005, price.Price1.InexactFloat64(), 0.000001)
}

func TestDecimals(t *testing.T) {
	stripped := StripDecimals(decimal.RequireFromString("1.23"), 8)
	assert.True(t, stripped.Equal(decimal.NewFromInt(123_000_000)))

	applied := ApplyDecimals(decimal.NewFromInt(123_000_000), 8)
	assert.True(t, applied.Equal(decimal.RequireFromString("1.23")))
}

func TestDecimalToBigInt(t *testing.T) {
	assert.Equal(t, "1000001", DecimalToBigInt(decimal.RequireFromString("1000000.89")).String())
	assert.Equal(t, "-3", DecimalToBigInt(decimal.RequireFromString("-2.5")).String())

	scientific, err := ParseDecimalToBigInt("1.23e+26")
	require.NoError(t, err)
	assert.Equal(t, "123000000000000000000000000", scientific.String())

	huge, err := ParseDecimalToBigInt("7e120")
	require.NoError(t, err)
	assert.Equal(t, "7"+strings.Repeat("0", 120), huge.String())

	_, err = ParseDecimalToBigInt("abc")
	require.Error(t, err)
}

func TestSqrtPX96ToTick(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	tick, err := SqrtPX96ToTick(q96)
	require.NoError(t, err)
	assert.Equal(t, int32(0), tick)

	tick, err = SqrtPX96ToTick(floatTimesQ96(math.Pow(1.0001, 50)))
	require.NoError(t, err)
	assert.Equal(t, int32(100), tick)

	tick, err = SqrtPX96ToTick(floatTimesQ96(math.Pow(1.0001, -50)))
	require.NoError(t, err)
	assert.Equal(t, int32(-100), tick)

	_, err = SqrtPX96ToTick(big.NewInt(0))
	require.Error(t, err)
}

func TestSqrtPX96ToTickMatchesSDK(t *testing.T) {
	assert.Equal(t, int32(utils.MinTick), model.MinTick)
	assert.Equal(t, int32(utils.MaxTick), model.MaxTick)

	for _, want := range []int{-887000, -201030, -60, -1, 0, 1, 59, 200311, 201015, 887000} {
		ratio, err := utils.GetSqrtRatioAtTick(want)
		require.NoError(t, err)

		got, err := SqrtPX96ToTick(ratio)
		require.NoError(t, err)
		assert.Equal(t, int32(want), got, "tick %d", want)
	}
}

func TestComputePositionValue(t *testing.T) {
	liquidity, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	position := model.Position{
		LowerTick: 201000,
		UpperTick: 201030,
		Decimals0: 6,
		Decimals1: 18,
		Liquidity: liquidity,
	}

	assert.True(t, ComputePositionValue(position, 200990).OutOfRange())
	assert.True(t, ComputePositionValue(position, 201030).OutOfRange())
	assert.True(t, ComputePositionValue(position, 201100).OutOfRange())

	value, inRange := ComputePositionValue(position, 201015).Token0()
	require.True(t, inRange)
	assert.Greater(t, value, 0.0)
	assert.False(t, math.IsInf(value, 0))

	// Lower bound is inclusive.
	_, inRange = ComputePositionValue(position, 201000).Token0()
	assert.True(t, inRange)
}

func TestComputePositionValueFromEntryAmounts(t *testing.T) {
	liquidity, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	base := model.Position{
		LowerTick: 201000,
		UpperTick: 201030,
		Decimals0: 6,
		Decimals1: 18,
		Liquidity: liquidity,
	}
	bare, inRange := ComputePositionValue(base, 201015).Token0()
	require.True(t, inRange)

	cases := []struct {
		name  string
		start int32
	}{
		{"inside", 201007},
		{"below range", 200900},
		{"above range", 201100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := base
			pos.StartAtTick = tc.start
			raw0, raw1 := Amounts(liquidity, tc.start, pos.LowerTick, pos.UpperTick)
			pos.Amount0 = ApplyDecimals(raw0, pos.Decimals0)
			pos.Amount1 = ApplyDecimals(raw1, pos.Decimals1)

			got, inRange := ComputePositionValue(pos, 201015).Token0()
			require.True(t, inRange)
			assert.InDelta(t, bare, got, bare*1e-12)
		})
	}

	// Extra entry holdings are carried through.
	pos := base
	pos.StartAtTick = 201007
	raw0, raw1 := Amounts(liquidity, pos.StartAtTick, pos.LowerTick, pos.UpperTick)
	pos.Amount0 = ApplyDecimals(raw0, pos.Decimals0).Add(decimal.NewFromInt(5))
	pos.Amount1 = ApplyDecimals(raw1, pos.Decimals1)
	got, _ := ComputePositionValue(pos, 201015).Token0()
	assert.InDelta(t, bare+5, got, 1e-6)
}

func TestSqrtPriceCacheIsBounded(t *testing.T) {
	saved := sqrtCache
	sqrtCache = newSqrtCache(64)
	t.Cleanup(func() { sqrtCache = saved })

	first := SqrtPrice(-500)
	for tick := int32(0); tick < 200; tick++ {
		SqrtPrice(tick)
	}
	assert.LessOrEqual(t, sqrtCache.Len(), 64)
	assert.False(t, sqrtCache.Contains(-500))

	// Evicted entries are recomputed to the same value.
	assert.True(t, first.Equal(SqrtPrice(-500)))
}

func floatTimesQ96(f float64) *big.Int {
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	out, _ := new(big.Float).Mul(big.NewFloat(f), q96).Int(nil)
	return out
}
