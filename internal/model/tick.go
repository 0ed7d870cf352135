package model

import "math/big"

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Tick is an initialized tick as reported by the pool.
// LiquidityNet is applied to active liquidity when price crosses the tick upward.
type Tick struct {
	TickIdx        int32    `json:"tick_idx"`
	LiquidityGross *big.Int `json:"liquidity_gross"`
	LiquidityNet   *big.Int `json:"liquidity_net"`
}

// ProcessedTick is a tick with the active liquidity in effect while price sits on it.
type ProcessedTick struct {
	Tick
	LiquidityActive *big.Int `json:"liquidity_active"`
}

// Clone returns a deep copy so callers can mutate the big.Int fields safely.
func (t Tick) Clone() Tick {
	return Tick{
		TickIdx:        t.TickIdx,
		LiquidityGross: cloneInt(t.LiquidityGross),
		LiquidityNet:   cloneInt(t.LiquidityNet),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
