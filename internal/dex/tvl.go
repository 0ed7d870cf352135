package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flairScope/internal/model"
)

const (
	TVLAtBlock  = "block"
	TVLAtLatest = "latest"
)

// TVL is what the pool holds of each token, in human units. Source is
// TVLAtLatest when the node could not serve the historical balance.
type TVL struct {
	Token0 decimal.Decimal
	Token1 decimal.Decimal
	Source string
}

// TVLAt reads both token balances of the pool at block and falls back to
// the latest block when the historical call fails.
func (r *PoolReader) TVLAt(ctx context.Context, pool model.Pool, block uint64) (TVL, error) {
	owner, err := parseAddress(pool.Address)
	if err != nil {
		return TVL{}, err
	}
	token0, err := parseAddress(pool.Token0)
	if err != nil {
		return TVL{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := parseAddress(pool.Token1)
	if err != nil {
		return TVL{}, fmt.Errorf("token1: %w", err)
	}

	bal0, err0 := r.balanceOf(ctx, token0, owner, blockArg(block))
	bal1, err1 := r.balanceOf(ctx, token1, owner, blockArg(block))
	source := TVLAtBlock
	if err0 != nil || err1 != nil {
		bal0, err0 = r.balanceOf(ctx, token0, owner, nil)
		bal1, err1 = r.balanceOf(ctx, token1, owner, nil)
		source = TVLAtLatest
	}
	if err0 != nil {
		return TVL{}, fmt.Errorf("pool %s token0 balance: %w", pool.Address, err0)
	}
	if err1 != nil {
		return TVL{}, fmt.Errorf("pool %s token1 balance: %w", pool.Address, err1)
	}

	return TVL{
		Token0: decimal.NewFromBigInt(bal0, -int32(pool.Decimals0)),
		Token1: decimal.NewFromBigInt(bal1, -int32(pool.Decimals1)),
		Source: source,
	}, nil
}

func (r *PoolReader) balanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := erc20StringABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, token, parsed, block, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
