// Package v3math converts between ticks, prices, liquidity and token
// amounts of a concentrated-liquidity pool. Every value goes through
// shopspring/decimal at Precision places; float64 only appears at the
// edges where callers ask for it.
package v3math

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"flairScope/internal/model"
)

var q96 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)

// ActiveTick returns the spacing-aligned tick at or below tick.
func ActiveTick(tick, tickSpacing int32) int32 {
	q := tick / tickSpacing
	if tick%tickSpacing != 0 && (tick < 0) != (tickSpacing < 0) {
		q--
	}
	return q * tickSpacing
}

// Delta0 is the raw token0 amount implied by moving the price from
// fromTick to toTick at constant liquidity.
func Delta0(liquidity *big.Int, fromTick, toTick int32) decimal.Decimal {
	return decimal.NewFromBigInt(liquidity, 0).Mul(SqrtPrice(-toTick).Sub(SqrtPrice(-fromTick)))
}

// Delta1 is the raw token1 amount implied by moving the price from
// fromTick to toTick at constant liquidity.
func Delta1(liquidity *big.Int, fromTick, toTick int32) decimal.Decimal {
	return decimal.NewFromBigInt(liquidity, 0).Mul(SqrtPrice(toTick).Sub(SqrtPrice(fromTick)))
}

// LiquidityFromDelta0 inverts Delta0 for the same tick pair. The result
// can be negative when delta0 and the tick order disagree.
func LiquidityFromDelta0(delta0 decimal.Decimal, fromTick, toTick int32) (*big.Int, error) {
	denom := SqrtPrice(-toTick).Sub(SqrtPrice(-fromTick))
	if denom.IsZero() {
		return nil, fmt.Errorf("liquidity from delta0: empty tick range [%d, %d]", fromTick, toTick)
	}
	return DecimalToBigInt(delta0.DivRound(denom, Precision)), nil
}

// LiquidityFromDelta1 inverts Delta1 for the same tick pair.
func LiquidityFromDelta1(delta1 decimal.Decimal, fromTick, toTick int32) (*big.Int, error) {
	denom := SqrtPrice(toTick).Sub(SqrtPrice(fromTick))
	if denom.IsZero() {
		return nil, fmt.Errorf("liquidity from delta1: empty tick range [%d, %d]", fromTick, toTick)
	}
	return DecimalToBigInt(delta1.DivRound(denom, Precision)), nil
}

// Amounts returns the raw token amounts held by liquidity over
// [lowerTick, upperTick) while the pool sits at tick.
func Amounts(liquidity *big.Int, tick, lowerTick, upperTick int32) (decimal.Decimal, decimal.Decimal) {
	switch {
	case tick < lowerTick:
		return Delta0(liquidity, upperTick, lowerTick), decimal.Zero
	case tick >= upperTick:
		return decimal.Zero, Delta1(liquidity, lowerTick, upperTick)
	default:
		return Delta0(liquidity, upperTick, tick), Delta1(liquidity, lowerTick, tick)
	}
}

// TickPrice holds both directions of a pool price in human units.
// Price0 is token0 per token1, Price1 is token1 per token0.
type TickPrice struct {
	Price0 decimal.Decimal
	Price1 decimal.Decimal
}

func TickToPrice(tick int32, decimals0, decimals1 uint8) TickPrice {
	price1 := Price(tick).Shift(int32(decimals0) - int32(decimals1))
	return TickPrice{
		Price0: one.DivRound(price1, Precision),
		Price1: price1,
	}
}

// SqrtPX96ToTick returns round(2 * log_1.0001(sqrtPriceX96 / 2^96)).
func SqrtPX96ToTick(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, fmt.Errorf("sqrt price must be positive")
	}
	ratio := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96, Precision+10)

	// float64 only seeds the search; the decimal bounds decide the result.
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(q96.BigInt())).Float64()
	tick := int64(0)
	if f > 0 && !math.IsInf(f, 0) {
		tick = int64(math.Round(2 * math.Log(f) / math.Log(1.0001)))
	}
	tick = max(int64(model.MinTick)-1, min(tick, int64(model.MaxTick)+1))

	for i := 0; i < 64; i++ {
		switch {
		case ratio.LessThan(quarterPow(2*tick - 1)):
			tick--
		case ratio.GreaterThanOrEqual(quarterPow(2*tick + 1)):
			tick++
		default:
			if tick < int64(model.MinTick) || tick > int64(model.MaxTick) {
				return 0, fmt.Errorf("tick %d out of bounds", tick)
			}
			return int32(tick), nil
		}
	}
	return 0, fmt.Errorf("sqrt price %s did not converge to a tick", sqrtPriceX96)
}

// ApplyDecimals converts a raw token amount into human units.
func ApplyDecimals(raw decimal.Decimal, decimals uint8) decimal.Decimal {
	return raw.Shift(-int32(decimals))
}

// StripDecimals converts a human amount into raw token units.
func StripDecimals(amount decimal.Decimal, decimals uint8) decimal.Decimal {
	return amount.Shift(int32(decimals))
}

// DecimalToBigInt rounds half away from zero.
func DecimalToBigInt(d decimal.Decimal) *big.Int {
	return d.Round(0).BigInt()
}

// ParseDecimalToBigInt accepts plain and scientific notation ("1.23e+26").
func ParseDecimalToBigInt(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return DecimalToBigInt(d), nil
}
