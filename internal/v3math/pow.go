package v3math

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept by every rounded
// operation in this package.
const Precision int32 = 40

var (
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	tickBase = decimal.RequireFromString("1.0001")

	rootsOnce sync.Once
	sqrtBase  decimal.Decimal // 1.0001^(1/2)
	quartBase decimal.Decimal // 1.0001^(1/4)

	sqrtCache = newSqrtCache(sqrtCacheSize)
)

// sqrtCacheSize covers a few thousand buckets on each side of the active
// tick even on spacing-1 pools.
const sqrtCacheSize = 1 << 14

func newSqrtCache(size int) *lru.Cache[int32, decimal.Decimal] {
	cache, err := lru.New[int32, decimal.Decimal](size)
	if err != nil {
		panic(err)
	}
	return cache
}

func roots() (decimal.Decimal, decimal.Decimal) {
	rootsOnce.Do(func() {
		sqrtBase = sqrt(tickBase)
		quartBase = sqrt(sqrtBase)
	})
	return sqrtBase, quartBase
}

// sqrt is Newton's iteration at Precision+10 places.
func sqrt(a decimal.Decimal) decimal.Decimal {
	work := Precision + 10
	epsilon := decimal.New(1, -work+2)
	x := a
	if x.LessThan(one) {
		x = one
	}
	for i := 0; i < 200; i++ {
		next := x.Add(a.DivRound(x, work)).DivRound(two, work)
		if next.Sub(x).Abs().LessThan(epsilon) {
			return next.Round(Precision + 5)
		}
		x = next
	}
	return x.Round(Precision + 5)
}

// powInt raises base to n by squaring, rounding each product.
func powInt(base decimal.Decimal, n int64) decimal.Decimal {
	if n == 0 {
		return one
	}
	negative := n < 0
	if negative {
		n = -n
	}

	work := Precision + 10
	result := one
	b := base
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(b).Round(work)
		}
		n >>= 1
		if n > 0 {
			b = b.Mul(b).Round(work)
		}
	}
	if negative {
		return one.DivRound(result, work)
	}
	return result
}

// SqrtPrice returns 1.0001^(tick/2).
func SqrtPrice(tick int32) decimal.Decimal {
	if cached, ok := sqrtCache.Get(tick); ok {
		return cached
	}
	base, _ := roots()
	value := powInt(base, int64(tick))
	sqrtCache.Add(tick, value)
	return value
}

// Price returns 1.0001^tick.
func Price(tick int32) decimal.Decimal {
	return powInt(tickBase, int64(tick))
}

// quarterPow returns 1.0001^(k/4).
func quarterPow(k int64) decimal.Decimal {
	_, base := roots()
	return powInt(base, k)
}
