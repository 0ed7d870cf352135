package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Position is one constant-liquidity record of a liquidity position.
// Amount0 and Amount1 are the token amounts at entry, in human units.
type Position struct {
	Period      Period          `json:"period"`
	StartAtTick int32           `json:"start_at_tick"`
	LowerTick   int32           `json:"lower_tick"`
	UpperTick   int32           `json:"upper_tick"`
	Decimals0   uint8           `json:"decimals0"`
	Decimals1   uint8           `json:"decimals1"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	Liquidity   *big.Int        `json:"liquidity"`
	PoolAddress string          `json:"pool_address"`
}

// InRange reports whether tick lies in [LowerTick, UpperTick).
func (p Position) InRange(tick int32) bool {
	return tick >= p.LowerTick && tick < p.UpperTick
}

// Validate checks the range and liquidity against the pool tick spacing.
func (p Position) Validate(tickSpacing int32) error {
	if p.LowerTick >= p.UpperTick {
		return fmt.Errorf("%w: lower tick %d must be below upper tick %d", ErrInvalidPosition, p.LowerTick, p.UpperTick)
	}
	if p.LowerTick < MinTick || p.UpperTick > MaxTick {
		return fmt.Errorf("%w: range [%d, %d) outside tick bounds", ErrInvalidPosition, p.LowerTick, p.UpperTick)
	}
	if tickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing %d", ErrInvalidPosition, tickSpacing)
	}
	if p.LowerTick%tickSpacing != 0 || p.UpperTick%tickSpacing != 0 {
		return fmt.Errorf("%w: range [%d, %d) not aligned to spacing %d", ErrInvalidPosition, p.LowerTick, p.UpperTick, tickSpacing)
	}
	if p.Liquidity == nil || p.Liquidity.Sign() <= 0 {
		return fmt.Errorf("%w: liquidity must be positive", ErrInvalidPosition)
	}
	return nil
}

// PositionValue is the token0 value of a position at a tick.
// The zero value is OutOfRange.
type PositionValue struct {
	token0  float64
	inRange bool
}

func InRangeValue(token0 float64) PositionValue {
	return PositionValue{token0: token0, inRange: true}
}

func OutOfRange() PositionValue {
	return PositionValue{}
}

func (v PositionValue) OutOfRange() bool {
	return !v.inRange
}

// Token0 returns the value and false when the position is out of range.
func (v PositionValue) Token0() (float64, bool) {
	return v.token0, v.inRange
}
