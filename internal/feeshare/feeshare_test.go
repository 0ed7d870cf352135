package feeshare

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flairScope/internal/metrics"
	"flairScope/internal/model"
	"flairScope/internal/v3math"
)

const spacing int32 = 10

func bigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

// denseTicks builds one processed tick per bucket in [from, to] with the
// liquidity picked by liq.
func denseTicks(from, to int32, liq func(idx int32) *big.Int) []model.ProcessedTick {
	var out []model.ProcessedTick
	for idx := from; idx <= to; idx += spacing {
		out = append(out, model.ProcessedTick{
			Tick:            model.Tick{TickIdx: idx, LiquidityGross: big.NewInt(0), LiquidityNet: big.NewInt(0)},
			LiquidityActive: liq(idx),
		})
	}
	return out
}

func flat(l *big.Int) func(int32) *big.Int {
	return func(int32) *big.Int { return l }
}

func testPosition(lower, upper int32, liquidity *big.Int) model.Position {
	return model.Position{
		LowerTick:   lower,
		UpperTick:   upper,
		Liquidity:   liquidity,
		PoolAddress: "0xpool",
	}
}

// sellToken0 is a zeroForOne swap that ended at tick and paid out amount1.
func sellToken0(tick int32, out decimal.Decimal) model.SwapEvent {
	return model.SwapEvent{
		PoolAddress: "0xpool",
		BlockNumber: 100,
		Tick:        tick,
		Amount0:     decimal.NewFromInt(1000),
		Amount1:     out.Neg(),
	}
}

// sellToken1 is a oneForZero swap that ended at tick and paid out amount0.
func sellToken1(tick int32, out decimal.Decimal) model.SwapEvent {
	return model.SwapEvent{
		PoolAddress: "0xpool",
		BlockNumber: 100,
		Tick:        tick,
		Amount0:     out.Neg(),
		Amount1:     decimal.NewFromInt(1000),
	}
}

func TestSingleBucketSwapSharesLiquidityRatio(t *testing.T) {
	posLiquidity := bigInt("1000000000000000000")
	bucketLiquidity := bigInt("4000000000000000000")
	ticks := denseTicks(-50, 150, flat(bucketLiquidity))
	position := testPosition(0, 100, posLiquidity)

	// The swap drains bucket 0 exactly from tick 10 down to tick 5.
	swap := sellToken0(5, v3math.Delta1(bucketLiquidity, 5, 10))
	want := decimal.NewFromBigInt(posLiquidity, 0).DivRound(decimal.NewFromBigInt(bucketLiquidity, 0), precision).InexactFloat64()

	estimated, err := EstimateFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)
	assert.Equal(t, want, estimated.FeeShare0)
	assert.Zero(t, estimated.FeeShare1)

	exact, err := ExactFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)
	assert.Equal(t, want, exact.FeeShare0)
	assert.Zero(t, exact.FeeShare1)
	assert.Zero(t, exact.ApproximatedSteps)
}

func TestExactOneForZeroWalksDown(t *testing.T) {
	posLiquidity := bigInt("1000000000000000000")
	bucketLiquidity := bigInt("2000000000000000000")
	ticks := denseTicks(-50, 150, flat(bucketLiquidity))
	position := testPosition(10, 20, posLiquidity)

	swap := sellToken1(15, v3math.Delta0(bucketLiquidity, 15, 10))

	res, err := ExactFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)
	assert.Zero(t, res.FeeShare0)
	assert.InDelta(t, 0.5, res.FeeShare1, 1e-15)
}

func TestExactSplitsAcrossBuckets(t *testing.T) {
	posLiquidity := bigInt("1000000000000000000")
	low := bigInt("4000000000000000000")
	high := bigInt("2000000000000000000")
	ticks := denseTicks(-50, 150, func(idx int32) *big.Int {
		if idx >= 10 {
			return high
		}
		return low
	})
	position := testPosition(10, 20, posLiquidity)

	first := v3math.Delta1(low, 5, 10)
	second := v3math.Delta1(high, 10, 20)
	swap := sellToken0(5, first.Add(second))

	estimated, err := EstimateFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)
	assert.Zero(t, estimated.FeeShare0, "post-swap tick is outside the position")

	exact, err := ExactFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)
	want := second.DivRound(first.Add(second), precision).InexactFloat64() * 0.5
	assert.InDelta(t, want, exact.FeeShare0, 1e-12)
	assert.Greater(t, exact.FeeShare0, 0.0)
	assert.Less(t, exact.FeeShare0, 0.5)
}

func TestOutOfRangePositionEarnsNothing(t *testing.T) {
	liquidity := bigInt("3000000000000000000")
	ticks := denseTicks(-50, 150, flat(liquidity))
	position := testPosition(200, 300, bigInt("1000000000000000000"))
	swaps := []model.SwapEvent{
		sellToken0(5, v3math.Delta1(liquidity, 5, 10)),
		sellToken1(45, v3math.Delta0(liquidity, 45, 40)),
	}

	for _, strategy := range []Strategy{Estimated{}, NewExact(nil, nil)} {
		res, err := strategy.FeeShare(ticks, swaps, position, spacing)
		require.NoError(t, err, strategy.Name())
		assert.Zero(t, res.FeeShare0, strategy.Name())
		assert.Zero(t, res.FeeShare1, strategy.Name())
	}
}

func TestMissingBucketIsDataIntegrityError(t *testing.T) {
	liquidity := bigInt("3000000000000000000")
	ticks := denseTicks(100, 200, flat(liquidity))
	position := testPosition(0, 100, bigInt("1000000000000000000"))
	swaps := []model.SwapEvent{sellToken0(5, decimal.NewFromInt(10))}

	_, err := EstimateFeeShare(ticks, swaps, position, spacing)
	require.ErrorIs(t, err, model.ErrDataIntegrity)

	_, err = ExactFeeShare(ticks, swaps, position, spacing)
	require.ErrorIs(t, err, model.ErrDataIntegrity)
}

func TestZeroLiquidityWindowFailsFast(t *testing.T) {
	ticks := denseTicks(-50, 150, flat(big.NewInt(0)))
	position := testPosition(0, 100, bigInt("1000000000000000000"))

	for _, swap := range []model.SwapEvent{
		sellToken0(5, decimal.NewFromInt(10)),
		sellToken1(45, decimal.NewFromInt(10)),
	} {
		_, err := EstimateFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
		require.ErrorIs(t, err, model.ErrDataIntegrity)
		assert.Contains(t, err.Error(), "zero active liquidity")

		_, err = ExactFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
		require.ErrorIs(t, err, model.ErrDataIntegrity)
		assert.Contains(t, err.Error(), "zero active liquidity")
	}
}

func TestExactCrossesEmptyBucket(t *testing.T) {
	posLiquidity := bigInt("1000000000000000000")
	liquidity := bigInt("4000000000000000000")
	ticks := denseTicks(-50, 150, func(idx int32) *big.Int {
		if idx == 10 {
			return big.NewInt(0)
		}
		return liquidity
	})
	position := testPosition(20, 30, posLiquidity)

	// Ended in the empty bucket; all output came from bucket 20.
	swap := sellToken0(15, v3math.Delta1(liquidity, 20, 30))

	res, err := ExactFeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, res.FeeShare0, 1e-15)
	assert.Zero(t, res.ApproximatedSteps)
}

func TestExactCountsPrecisionLoss(t *testing.T) {
	liquidity := bigInt("4000000000000000000")
	// Only bucket 0 is known; bucket 10 falls back to it.
	ticks := []model.ProcessedTick{{
		Tick:            model.Tick{TickIdx: 0, LiquidityGross: big.NewInt(0), LiquidityNet: big.NewInt(0)},
		LiquidityActive: liquidity,
	}}
	position := testPosition(0, 100, bigInt("1000000000000000000"))
	swap := sellToken0(5, v3math.Delta1(liquidity, 5, 10).Add(v3math.Delta1(liquidity, 10, 20)))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	res, err := NewExact(zap.NewNop(), m).FeeShare(ticks, []model.SwapEvent{swap}, position, spacing)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ApproximatedSteps)
	assert.InDelta(t, 0.25, res.FeeShare0, 1e-15)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PrecisionLossSteps.WithLabelValues("0xpool")))
}

func TestVolumeWeightingAcrossSwaps(t *testing.T) {
	liquidity := bigInt("4000000000000000000")
	ticks := denseTicks(-50, 150, flat(liquidity))
	position := testPosition(0, 10, bigInt("1000000000000000000"))

	inRange := sellToken0(5, v3math.Delta1(liquidity, 5, 10))
	inRange.Amount0 = decimal.NewFromInt(300)
	outside := sellToken0(25, v3math.Delta1(liquidity, 25, 30))
	outside.Amount0 = decimal.NewFromInt(100)

	// Exact weighs both swaps; only the first one touched the position.
	res, err := ExactFeeShare(ticks, []model.SwapEvent{inRange, outside}, position, spacing)
	require.NoError(t, err)
	assert.InDelta(t, 0.25*300/400, res.FeeShare0, 1e-15)

	// Estimated only averages over swaps that ended inside the range.
	est, err := EstimateFeeShare(ticks, []model.SwapEvent{inRange, outside}, position, spacing)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, est.FeeShare0, 1e-15)
}

func TestByName(t *testing.T) {
	s, err := ByName("estimate", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NameEstimate, s.Name())

	s, err = ByName("EXACT", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NameExact, s.Name())

	_, err = ByName("median", nil, nil)
	require.Error(t, err)
}
