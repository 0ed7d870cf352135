// Package feeshare attributes one block's swap fees to a liquidity
// position. Two strategies share one signature: Estimated prices every
// swap at the liquidity of its final tick bucket, Exact walks each swap
// back across the buckets it traversed.
package feeshare

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"flairScope/internal/metrics"
	"flairScope/internal/model"
)

// Strategy computes a position's share of one block's fees.
// ticks must be sorted ascending and swaps must belong to a single block.
type Strategy interface {
	Name() string
	FeeShare(ticks []model.ProcessedTick, swaps []model.SwapEvent, position model.Position, tickSpacing int32) (model.FeeShareResult, error)
}

const (
	NameEstimate = "estimate"
	NameExact    = "exact"
)

// ByName resolves a strategy from its CLI name.
func ByName(name string, logger *zap.Logger, m *metrics.Metrics) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameEstimate, "estimated":
		return Estimated{}, nil
	case NameExact, "":
		return NewExact(logger, m), nil
	default:
		return nil, fmt.Errorf("unknown fee share strategy %q", name)
	}
}

// liquidityAt returns the active liquidity of the last tick at or below
// bucket, and whether that tick sits exactly on bucket.
func liquidityAt(ticks []model.ProcessedTick, bucket int32) (*big.Int, bool, bool) {
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].TickIdx > bucket })
	if i == 0 {
		return nil, false, false
	}
	t := ticks[i-1]
	if t.LiquidityActive == nil {
		return nil, false, false
	}
	return t.LiquidityActive, t.TickIdx == bucket, true
}

// liquidityAhead reports whether any tick past bucket in the walk
// direction carries non-zero active liquidity.
func liquidityAhead(ticks []model.ProcessedTick, bucket int32, up bool) bool {
	for _, t := range ticks {
		if t.LiquidityActive == nil || t.LiquidityActive.Sign() == 0 {
			continue
		}
		if (up && t.TickIdx > bucket) || (!up && t.TickIdx < bucket) {
			return true
		}
	}
	return false
}

// weighted accumulates per-swap shares weighted by the fee-token amount.
type weighted struct {
	num0, den0 decimal.Decimal
	num1, den1 decimal.Decimal
}

func (w *weighted) add(swap model.SwapEvent, share decimal.Decimal) {
	switch {
	case swap.Amount0.IsPositive():
		w.num0 = w.num0.Add(share.Mul(swap.Amount0))
		w.den0 = w.den0.Add(swap.Amount0)
	case swap.Amount1.IsPositive():
		w.num1 = w.num1.Add(share.Mul(swap.Amount1))
		w.den1 = w.den1.Add(swap.Amount1)
	}
}

func (w *weighted) result() model.FeeShareResult {
	var res model.FeeShareResult
	if !w.den0.IsZero() {
		res.FeeShare0 = w.num0.DivRound(w.den0, precision).InexactFloat64()
	}
	if !w.den1.IsZero() {
		res.FeeShare1 = w.num1.DivRound(w.den1, precision).InexactFloat64()
	}
	return res
}

func missingBucket(swap model.SwapEvent, bucket int32) error {
	return fmt.Errorf("%w: no tick liquidity at or below bucket %d for swap at block %d (tick window too narrow)",
		model.ErrDataIntegrity, bucket, swap.BlockNumber)
}

func zeroLiquidity(swap model.SwapEvent, bucket int32) error {
	return fmt.Errorf("%w: zero active liquidity at bucket %d for swap at block %d",
		model.ErrDataIntegrity, bucket, swap.BlockNumber)
}
