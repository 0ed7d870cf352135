package v3math

import (
	"github.com/shopspring/decimal"

	"flairScope/internal/model"
)

// ComputePositionValue returns the position value in token0 at currentTick,
// or OutOfRange when the tick is outside [LowerTick, UpperTick).
//
// Amount0/Amount1 are read as the holdings at StartAtTick and moved to
// currentTick along the position's liquidity. A start outside the range is
// clamped to the nearer bound, where the holdings are single-sided. Records
// without entry amounts are valued from liquidity alone.
func ComputePositionValue(position model.Position, currentTick int32) model.PositionValue {
	if !position.InRange(currentTick) || position.Liquidity == nil {
		return model.OutOfRange()
	}

	var amount0, amount1 decimal.Decimal
	if position.Amount0.IsZero() && position.Amount1.IsZero() {
		raw0, raw1 := Amounts(position.Liquidity, currentTick, position.LowerTick, position.UpperTick)
		amount0 = ApplyDecimals(raw0, position.Decimals0)
		amount1 = ApplyDecimals(raw1, position.Decimals1)
	} else {
		start := position.StartAtTick
		if start < position.LowerTick {
			start = position.LowerTick
		}
		if start > position.UpperTick {
			start = position.UpperTick
		}
		amount0 = position.Amount0.Add(ApplyDecimals(Delta0(position.Liquidity, start, currentTick), position.Decimals0))
		amount1 = position.Amount1.Add(ApplyDecimals(Delta1(position.Liquidity, start, currentTick), position.Decimals1))
	}
	price := TickToPrice(currentTick, position.Decimals0, position.Decimals1)

	return model.InRangeValue(amount0.Add(amount1.Mul(price.Price0)).InexactFloat64())
}
