package feeshare

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flairScope/internal/metrics"
	"flairScope/internal/model"
	"flairScope/internal/v3math"
)

// Exact replays every swap backward across the tick buckets it crossed and
// credits the position per bucket. Steps that had to reuse the previous
// bucket's liquidity are logged and counted.
type Exact struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewExact(logger *zap.Logger, m *metrics.Metrics) Exact {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Exact{logger: logger, metrics: m}
}

func (Exact) Name() string { return NameExact }

func (e Exact) FeeShare(ticks []model.ProcessedTick, swaps []model.SwapEvent, position model.Position, tickSpacing int32) (model.FeeShareResult, error) {
	logger := e.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	res, err := exactFeeShare(ticks, swaps, position, tickSpacing, func(swap model.SwapEvent, bucket int32) {
		logger.Debug("tick liquidity missing on swap path, reusing last known value",
			zap.String("pool", swap.PoolAddress),
			zap.Uint64("block", swap.BlockNumber),
			zap.Int32("bucket", bucket),
		)
	})
	if err != nil {
		return res, err
	}
	if res.ApproximatedSteps > 0 {
		e.metrics.PrecisionLoss(position.PoolAddress, res.ApproximatedSteps)
	}
	return res, nil
}

// ExactFeeShare is Exact without logging or metrics.
func ExactFeeShare(ticks []model.ProcessedTick, swaps []model.SwapEvent, position model.Position, tickSpacing int32) (model.FeeShareResult, error) {
	return exactFeeShare(ticks, swaps, position, tickSpacing, nil)
}

type approxFunc func(swap model.SwapEvent, bucket int32)

// dust is the unconsumed remainder treated as a fully settled swap.
var dust = decimal.New(1, -(precision - 8))

func exactFeeShare(ticks []model.ProcessedTick, swaps []model.SwapEvent, position model.Position, tickSpacing int32, onApprox approxFunc) (model.FeeShareResult, error) {
	if tickSpacing <= 0 {
		return model.FeeShareResult{}, fmt.Errorf("tick spacing must be positive, got %d", tickSpacing)
	}

	var acc weighted
	approximated := 0
	for _, swap := range swaps {
		share, steps, err := walkSwap(ticks, swap, position, tickSpacing, onApprox)
		if err != nil {
			return model.FeeShareResult{}, err
		}
		approximated += steps
		acc.add(swap, share)
	}

	res := acc.result()
	res.ApproximatedSteps = approximated
	return res, nil
}

// walkSwap returns the position's share of one swap and the number of
// steps that reused stale liquidity.
//
// A zeroForOne swap pushed the price down, so the path is rebuilt upward
// from the post-swap tick; the other direction is rebuilt downward. Each
// step covers one bucket [b, b+spacing) at that bucket's liquidity and
// consumes the matching slice of the swap's output amount. Empty buckets
// are crossed for free, but a walk with no liquidity left ahead fails.
func walkSwap(ticks []model.ProcessedTick, swap model.SwapEvent, position model.Position, tickSpacing int32, onApprox approxFunc) (decimal.Decimal, int, error) {
	zeroForOne := swap.ZeroForOne()

	var total decimal.Decimal
	if zeroForOne {
		total = swap.Amount1.Neg()
	} else {
		total = swap.Amount0.Neg()
	}
	if !total.IsPositive() {
		return decimal.Zero, 0, nil
	}

	bucket := v3math.ActiveTick(swap.Tick, tickSpacing)
	liquidity, _, ok := liquidityAt(ticks, bucket)
	if !ok {
		return decimal.Zero, 0, missingBucket(swap, bucket)
	}

	posLiquidity := decimal.NewFromBigInt(position.Liquidity, 0)
	remaining := decimal.NewFromInt(1)
	share := decimal.Zero
	approximated := 0

	current := swap.Tick
	maxSteps := int((int64(model.MaxTick)-int64(model.MinTick))/int64(tickSpacing)) + 1

	for step := 0; remaining.GreaterThan(dust); step++ {
		if step > 0 {
			if zeroForOne {
				current = bucket + tickSpacing
				bucket += tickSpacing
			} else {
				current = bucket
				bucket -= tickSpacing
			}
			if next, exact, _ := liquidityAt(ticks, bucket); exact {
				liquidity = next
			} else {
				approximated++
				if onApprox != nil {
					onApprox(swap, bucket)
				}
			}
		}
		if liquidity.Sign() == 0 && !liquidityAhead(ticks, bucket, zeroForOne) {
			return decimal.Zero, 0, zeroLiquidity(swap, bucket)
		}
		if step > maxSteps {
			return decimal.Zero, 0, fmt.Errorf("%w: swap at block %d did not settle within %d steps",
				model.ErrDataIntegrity, swap.BlockNumber, maxSteps)
		}

		target := bucket
		if zeroForOne {
			target = bucket + tickSpacing
		}
		if target > model.MaxTick || target < model.MinTick {
			return decimal.Zero, 0, fmt.Errorf("%w: swap at block %d walked past tick bounds at %d",
				model.ErrDataIntegrity, swap.BlockNumber, target)
		}

		consumed := stepAmount(liquidity, current, target, zeroForOne, position)
		fraction := consumed.DivRound(total, precision)
		if fraction.GreaterThan(remaining) {
			fraction = remaining
		}
		if !fraction.IsPositive() {
			continue
		}
		remaining = remaining.Sub(fraction)

		if position.InRange(bucket) {
			share = share.Add(posLiquidity.DivRound(decimal.NewFromBigInt(liquidity, 0), precision).Mul(fraction))
		}
	}
	return share, approximated, nil
}

// stepAmount is the human amount of the swap's output token released
// while the price crossed from current to target.
func stepAmount(liquidity *big.Int, current, target int32, zeroForOne bool, position model.Position) decimal.Decimal {
	if zeroForOne {
		return v3math.ApplyDecimals(v3math.Delta1(liquidity, current, target), position.Decimals1)
	}
	return v3math.ApplyDecimals(v3math.Delta0(liquidity, current, target), position.Decimals0)
}
