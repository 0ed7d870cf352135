package dex

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"flairScope/internal/model"
)

var (
	minSqrtRatio = uint256.NewInt(4295128739)
	maxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
	maxUint256   = new(uint256.Int).SetAllOne()
	q128         = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	roundMask    = uint256.NewInt(0xffffffff)

	oddTickRatio = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")

	// sqrt(1.0001^-2^i) in Q128.128 for i = 1..19.
	tickRatioFactors = [...]*uint256.Int{
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
)

// sqrtRatioAtTick is the pool's own fixed-point sqrt(1.0001^tick) * 2^96,
// rounded up, bit for bit.
func sqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < model.MinTick || tick > model.MaxTick {
		return nil, fmt.Errorf("tick %d out of bounds", tick)
	}
	abs := int64(tick)
	if abs < 0 {
		abs = -abs
	}

	ratio := new(uint256.Int).Set(q128)
	if abs&1 != 0 {
		ratio.Set(oddTickRatio)
	}
	for i, factor := range tickRatioFactors {
		if abs&(2<<i) != 0 {
			ratio.Mul(ratio, factor).Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	rem := new(uint256.Int).And(ratio, roundMask)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// checkSlot0 verifies that sqrtPriceX96 lies within [ratio(tick), ratio(tick+1)].
// The upper end is inclusive: a swap that stops exactly on an initialized
// tick while moving down leaves the tick one below the price's tick.
func checkSlot0(sqrtPriceX96 *big.Int, tick int32) error {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() < 0 {
		return fmt.Errorf("%w: slot0 sqrtPriceX96 missing or negative", model.ErrDataIntegrity)
	}
	price, overflow := uint256.FromBig(sqrtPriceX96)
	if overflow || price.Lt(minSqrtRatio) || !price.Lt(maxSqrtRatio) {
		return fmt.Errorf("%w: slot0 sqrtPriceX96 %s out of bounds", model.ErrDataIntegrity, sqrtPriceX96)
	}
	if tick >= model.MaxTick {
		return fmt.Errorf("%w: slot0 tick %d out of bounds", model.ErrDataIntegrity, tick)
	}
	lower, err := sqrtRatioAtTick(tick)
	if err != nil {
		return fmt.Errorf("%w: slot0 %v", model.ErrDataIntegrity, err)
	}
	upper, err := sqrtRatioAtTick(tick + 1)
	if err != nil {
		return fmt.Errorf("%w: slot0 %v", model.ErrDataIntegrity, err)
	}
	if price.Lt(lower) || price.Gt(upper) {
		return fmt.Errorf("%w: slot0 tick %d does not match sqrtPriceX96 %s",
			model.ErrDataIntegrity, tick, sqrtPriceX96)
	}
	return nil
}
