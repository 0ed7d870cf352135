// Package ticks rebuilds the active-liquidity curve around a pool's
// current tick from the sparse set of initialized ticks.
package ticks

import (
	"fmt"
	"math/big"

	"flairScope/internal/model"
)

// Reconstruct walks outward from active until the farthest initialized
// tick on each side and returns the processed ticks in ascending order.
func Reconstruct(active model.ProcessedTick, sparse []model.Tick, tickSpacing int32) ([]model.ProcessedTick, error) {
	lower, upper := active.TickIdx, active.TickIdx
	for _, t := range sparse {
		if t.TickIdx < lower {
			lower = t.TickIdx
		}
		if t.TickIdx > upper {
			upper = t.TickIdx
		}
	}
	return ReconstructWindow(active, sparse, tickSpacing, lower, upper)
}

// ReconstructWindow is Reconstruct over the explicit window
// [lowerBound, upperBound]. The active tick keeps its input liquidity.
func ReconstructWindow(active model.ProcessedTick, sparse []model.Tick, tickSpacing, lowerBound, upperBound int32) ([]model.ProcessedTick, error) {
	if tickSpacing <= 0 {
		return nil, fmt.Errorf("tick spacing must be positive, got %d", tickSpacing)
	}
	if active.TickIdx%tickSpacing != 0 {
		return nil, fmt.Errorf("active tick %d not aligned to spacing %d", active.TickIdx, tickSpacing)
	}
	if active.LiquidityActive == nil {
		return nil, fmt.Errorf("%w: active tick %d has no liquidity", model.ErrDataIntegrity, active.TickIdx)
	}
	if active.LiquidityActive.Sign() < 0 {
		return nil, fmt.Errorf("%w: active tick %d has negative liquidity", model.ErrDataIntegrity, active.TickIdx)
	}

	byIdx := make(map[int32]model.Tick, len(sparse))
	for _, t := range sparse {
		byIdx[t.TickIdx] = t
	}

	center := model.ProcessedTick{
		Tick:            active.Tick.Clone(),
		LiquidityActive: new(big.Int).Set(active.LiquidityActive),
	}
	if active.LiquidityNet == nil && active.LiquidityGross == nil {
		if t, ok := byIdx[active.TickIdx]; ok {
			center.Tick = t.Clone()
		}
	}

	down, err := walkDown(center, byIdx, tickSpacing, stepsBetween(lowerBound, center.TickIdx, tickSpacing))
	if err != nil {
		return nil, err
	}
	up, err := walkUp(center, byIdx, tickSpacing, stepsBetween(center.TickIdx, upperBound, tickSpacing))
	if err != nil {
		return nil, err
	}

	out := make([]model.ProcessedTick, 0, len(down)+1+len(up))
	for i := len(down) - 1; i >= 0; i-- {
		out = append(out, down[i])
	}
	out = append(out, center)
	out = append(out, up...)
	return out, nil
}

func stepsBetween(low, high, tickSpacing int32) int {
	if high <= low {
		return 0
	}
	return int((int64(high) - int64(low)) / int64(tickSpacing))
}

func walkUp(center model.ProcessedTick, byIdx map[int32]model.Tick, tickSpacing int32, steps int) ([]model.ProcessedTick, error) {
	maxSteps := int((int64(model.MaxTick) - int64(center.TickIdx)) / int64(tickSpacing))
	steps = min(steps, maxSteps)

	out := make([]model.ProcessedTick, 0, steps)
	prev := center
	for i := 1; i <= steps; i++ {
		cur := model.ProcessedTick{
			Tick:            model.Tick{TickIdx: center.TickIdx + int32(i)*tickSpacing}.Clone(),
			LiquidityActive: new(big.Int).Set(prev.LiquidityActive),
		}
		if t, ok := byIdx[cur.TickIdx]; ok {
			cur.Tick = t.Clone()
			if err := addDelta(cur.LiquidityActive, cur.LiquidityNet); err != nil {
				return nil, fmt.Errorf("%w: ascending to tick %d: %v", model.ErrDataIntegrity, cur.TickIdx, err)
			}
		}
		out = append(out, cur)
		prev = cur
	}
	return out, nil
}

func walkDown(center model.ProcessedTick, byIdx map[int32]model.Tick, tickSpacing int32, steps int) ([]model.ProcessedTick, error) {
	maxSteps := int((int64(center.TickIdx) - int64(model.MinTick)) / int64(tickSpacing))
	steps = min(steps, maxSteps)

	out := make([]model.ProcessedTick, 0, steps)
	prev := center
	for i := 1; i <= steps; i++ {
		cur := model.ProcessedTick{
			Tick:            model.Tick{TickIdx: center.TickIdx - int32(i)*tickSpacing}.Clone(),
			LiquidityActive: new(big.Int).Set(prev.LiquidityActive),
		}
		if t, ok := byIdx[cur.TickIdx]; ok {
			cur.Tick = t.Clone()
		}
		if prev.LiquidityNet.Sign() != 0 {
			if err := addDelta(cur.LiquidityActive, new(big.Int).Neg(prev.LiquidityNet)); err != nil {
				return nil, fmt.Errorf("%w: descending to tick %d: %v", model.ErrDataIntegrity, cur.TickIdx, err)
			}
		}
		out = append(out, cur)
		prev = cur
	}
	return out, nil
}

// addDelta adds delta to liquidity in place and refuses to go negative.
func addDelta(liquidity, delta *big.Int) error {
	liquidity.Add(liquidity, delta)
	if liquidity.Sign() < 0 {
		return fmt.Errorf("liquidity underflow (%s)", liquidity)
	}
	return nil
}
