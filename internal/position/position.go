// Package position builds constant-liquidity position records, either
// hypothetical ones opened at a block or real ones replayed from a
// position-manager token's liquidity history.
package position

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"flairScope/internal/model"
	"flairScope/internal/v3math"
)

// TickSource reports the pool tick at the end of a block.
type TickSource interface {
	PoolTickAt(ctx context.Context, pool string, block uint64) (int32, error)
}

// StartInRange opens a position around the active bucket at
// period.FromBlock. lowerRange and upperRange count tick-spacing steps
// below and above the active bucket. amount is in human units of token1
// when useToken1 is set, token0 otherwise.
func StartInRange(ctx context.Context, src TickSource, period model.Period, pool model.Pool, lowerRange, upperRange int32, amount decimal.Decimal, useToken1 bool) (model.Position, error) {
	if lowerRange < 0 || upperRange <= 0 {
		return model.Position{}, fmt.Errorf("%w: in-range widths %d/%d", model.ErrInvalidPosition, lowerRange, upperRange)
	}
	if !amount.IsPositive() {
		return model.Position{}, fmt.Errorf("%w: amount must be positive", model.ErrInvalidPosition)
	}

	tick, err := src.PoolTickAt(ctx, pool.Address, period.FromBlock)
	if err != nil {
		return model.Position{}, fmt.Errorf("pool tick at %d: %w", period.FromBlock, err)
	}
	active := v3math.ActiveTick(tick, pool.TickSpacing)
	lower := active - lowerRange*pool.TickSpacing
	upper := active + upperRange*pool.TickSpacing

	pos := newPosition(period, pool, tick, lower, upper)

	if useToken1 {
		if tick == lower {
			return model.Position{}, fmt.Errorf("%w: tick %d sits on the lower bound, token1 alone needs infinite liquidity", model.ErrInvalidPosition, tick)
		}
		liquidity, err := v3math.LiquidityFromDelta1(v3math.StripDecimals(amount, pool.Decimals1), lower, tick)
		if err != nil {
			return model.Position{}, err
		}
		pos.Liquidity = liquidity
		pos.Amount1 = amount
		pos.Amount0 = v3math.ApplyDecimals(v3math.Delta0(liquidity, upper, tick), pool.Decimals0)
	} else {
		liquidity, err := v3math.LiquidityFromDelta0(v3math.StripDecimals(amount, pool.Decimals0), upper, tick)
		if err != nil {
			return model.Position{}, err
		}
		pos.Liquidity = liquidity
		pos.Amount0 = amount
		pos.Amount1 = v3math.ApplyDecimals(v3math.Delta1(liquidity, lower, tick), pool.Decimals1)
	}

	if err := pos.Validate(pool.TickSpacing); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

// StartOutOfRange opens a single-sided position rangeWidth buckets wide.
// A positive outRange places it that many buckets above the active
// bucket, funded with token0. Otherwise its upper bound sits outRange
// buckets from the active bucket and it is funded with token1.
func StartOutOfRange(ctx context.Context, src TickSource, period model.Period, pool model.Pool, rangeWidth, outRange int32, amount decimal.Decimal) (model.Position, error) {
	if rangeWidth <= 0 {
		return model.Position{}, fmt.Errorf("%w: range width %d", model.ErrInvalidPosition, rangeWidth)
	}
	if !amount.IsPositive() {
		return model.Position{}, fmt.Errorf("%w: amount must be positive", model.ErrInvalidPosition)
	}

	tick, err := src.PoolTickAt(ctx, pool.Address, period.FromBlock)
	if err != nil {
		return model.Position{}, fmt.Errorf("pool tick at %d: %w", period.FromBlock, err)
	}
	active := v3math.ActiveTick(tick, pool.TickSpacing)

	var pos model.Position
	if outRange > 0 {
		lower := active + outRange*pool.TickSpacing
		upper := lower + rangeWidth*pool.TickSpacing
		pos = newPosition(period, pool, tick, lower, upper)

		liquidity, err := v3math.LiquidityFromDelta0(v3math.StripDecimals(amount, pool.Decimals0), upper, lower)
		if err != nil {
			return model.Position{}, err
		}
		pos.Liquidity = liquidity
		pos.Amount0 = amount
	} else {
		upper := active + outRange*pool.TickSpacing
		lower := upper - rangeWidth*pool.TickSpacing
		pos = newPosition(period, pool, tick, lower, upper)

		liquidity, err := v3math.LiquidityFromDelta1(v3math.StripDecimals(amount, pool.Decimals1), lower, upper)
		if err != nil {
			return model.Position{}, err
		}
		pos.Liquidity = liquidity
		pos.Amount1 = amount
	}

	if err := pos.Validate(pool.TickSpacing); err != nil {
		return model.Position{}, err
	}
	return pos, nil
}

// FromLiquidityHistory replays IncreaseLiquidity/DecreaseLiquidity events
// into constant-liquidity records. A record closes the block before the
// next change; the one still open at the end of history is unbounded.
func FromLiquidityHistory(ctx context.Context, src TickSource, pool model.Pool, lowerTick, upperTick int32, history []model.LiquidityChange) ([]model.Position, error) {
	events := append([]model.LiquidityChange(nil), history...)
	model.SortLiquidityChanges(events)

	type segment struct {
		from      uint64
		to        model.BlockBound
		liquidity *big.Int
	}

	var segments []segment
	liquidity := new(big.Int)
	for i, ev := range events {
		if ev.LiquidityDelta == nil {
			continue
		}
		liquidity.Add(liquidity, ev.LiquidityDelta)
		if liquidity.Sign() < 0 {
			return nil, fmt.Errorf("%w: liquidity of token %s below zero at block %d", model.ErrDataIntegrity, ev.TokenID, ev.BlockNumber)
		}

		// Several changes in one block collapse into the last one.
		if i+1 < len(events) && events[i+1].BlockNumber == ev.BlockNumber {
			continue
		}
		if n := len(segments); n > 0 && segments[n-1].to.IsUnbounded() {
			end := ev.BlockNumber
			if end > segments[n-1].from {
				end--
			}
			segments[n-1].to = model.UpTo(end)
		}
		if liquidity.Sign() > 0 {
			segments = append(segments, segment{
				from:      ev.BlockNumber,
				to:        model.Unbounded(),
				liquidity: new(big.Int).Set(liquidity),
			})
		}
	}

	positions := make([]model.Position, 0, len(segments))
	for _, seg := range segments {
		tick, err := src.PoolTickAt(ctx, pool.Address, seg.from)
		if err != nil {
			return nil, fmt.Errorf("pool tick at %d: %w", seg.from, err)
		}
		pos := newPosition(model.Period{FromBlock: seg.from, ToBlock: seg.to}, pool, tick, lowerTick, upperTick)
		pos.Liquidity = seg.liquidity

		raw0, raw1 := v3math.Amounts(seg.liquidity, tick, lowerTick, upperTick)
		pos.Amount0 = v3math.ApplyDecimals(raw0, pool.Decimals0)
		pos.Amount1 = v3math.ApplyDecimals(raw1, pool.Decimals1)

		if err := pos.Validate(pool.TickSpacing); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func newPosition(period model.Period, pool model.Pool, tick, lower, upper int32) model.Position {
	return model.Position{
		Period:      period,
		StartAtTick: tick,
		LowerTick:   lower,
		UpperTick:   upper,
		Decimals0:   pool.Decimals0,
		Decimals1:   pool.Decimals1,
		Amount0:     decimal.Zero,
		Amount1:     decimal.Zero,
		PoolAddress: pool.Address,
	}
}
