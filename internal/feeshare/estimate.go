package feeshare

import (
	"github.com/shopspring/decimal"

	"flairScope/internal/model"
	"flairScope/internal/v3math"
)

const precision = v3math.Precision

// Estimated prices every swap at the liquidity of the bucket holding
// its post-swap tick.
type Estimated struct{}

func (Estimated) Name() string { return NameEstimate }

func (Estimated) FeeShare(ticks []model.ProcessedTick, swaps []model.SwapEvent, position model.Position, tickSpacing int32) (model.FeeShareResult, error) {
	return EstimateFeeShare(ticks, swaps, position, tickSpacing)
}

// EstimateFeeShare returns the position's volume-weighted share of the
// block's token0 and token1 fees over the swaps that ended inside its
// range.
func EstimateFeeShare(ticks []model.ProcessedTick, swaps []model.SwapEvent, position model.Position, tickSpacing int32) (model.FeeShareResult, error) {
	posLiquidity := decimal.NewFromBigInt(position.Liquidity, 0)

	var acc weighted
	for _, swap := range swaps {
		if !position.InRange(swap.Tick) {
			continue
		}

		bucket := v3math.ActiveTick(swap.Tick, tickSpacing)
		liquidity, _, ok := liquidityAt(ticks, bucket)
		if !ok {
			return model.FeeShareResult{}, missingBucket(swap, bucket)
		}
		if liquidity.Sign() == 0 {
			return model.FeeShareResult{}, zeroLiquidity(swap, bucket)
		}

		share := posLiquidity.DivRound(decimal.NewFromBigInt(liquidity, 0), precision)
		acc.add(swap, share)
	}
	return acc.result(), nil
}
