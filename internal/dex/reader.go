package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"flairScope/internal/model"
)

// Slot0 holds the slot0 fields the snapshot collector uses.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

// PoolReader reads pool state at historical blocks. Block 0 reads latest.
type PoolReader struct {
	caller  Caller
	poolABI abi.ABI
}

func NewPoolReader(caller Caller) (*PoolReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &PoolReader{caller: caller, poolABI: poolABI}, nil
}

func (r *PoolReader) Slot0At(ctx context.Context, pool string, block uint64) (Slot0, error) {
	addr, err := parseAddress(pool)
	if err != nil {
		return Slot0{}, err
	}
	values, err := callMethod(ctx, r.caller, addr, r.poolABI, blockArg(block), "slot0")
	if err != nil {
		return Slot0{}, err
	}
	if len(values) < 2 {
		return Slot0{}, fmt.Errorf("slot0: unexpected values: %d", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 tick: %w", err)
	}
	if err := checkSlot0(sqrt, tick); err != nil {
		return Slot0{}, fmt.Errorf("pool %s block %d: %w", pool, block, err)
	}
	return Slot0{SqrtPriceX96: sqrt, Tick: tick}, nil
}

func (r *PoolReader) LiquidityAt(ctx context.Context, pool string, block uint64) (*big.Int, error) {
	addr, err := parseAddress(pool)
	if err != nil {
		return nil, err
	}
	values, err := callMethod(ctx, r.caller, addr, r.poolABI, blockArg(block), "liquidity")
	if err != nil {
		return nil, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	if err := checkUint128(liquidity); err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	return liquidity, nil
}

// TickAt reads ticks(idx). The bool reports whether the tick is initialized.
func (r *PoolReader) TickAt(ctx context.Context, pool string, idx int32, block uint64) (model.Tick, bool, error) {
	addr, err := parseAddress(pool)
	if err != nil {
		return model.Tick{}, false, err
	}
	values, err := callMethod(ctx, r.caller, addr, r.poolABI, blockArg(block), "ticks", big.NewInt(int64(idx)))
	if err != nil {
		return model.Tick{}, false, fmt.Errorf("tick %d: %w", idx, err)
	}
	if len(values) < 8 {
		return model.Tick{}, false, fmt.Errorf("tick %d: unexpected values: %d", idx, len(values))
	}
	gross, err := asBigInt(values[0])
	if err != nil {
		return model.Tick{}, false, fmt.Errorf("tick %d gross: %w", idx, err)
	}
	if err := checkUint128(gross); err != nil {
		return model.Tick{}, false, fmt.Errorf("tick %d gross: %w", idx, err)
	}
	net, err := asBigInt(values[1])
	if err != nil {
		return model.Tick{}, false, fmt.Errorf("tick %d net: %w", idx, err)
	}
	if err := checkInt128(net); err != nil {
		return model.Tick{}, false, fmt.Errorf("tick %d net: %w", idx, err)
	}
	initialized, _ := values[7].(bool)
	return model.Tick{TickIdx: idx, LiquidityGross: gross, LiquidityNet: net}, initialized, nil
}

// PoolTickAt returns the slot0 tick at the block.
func (r *PoolReader) PoolTickAt(ctx context.Context, pool string, block uint64) (int32, error) {
	slot0, err := r.Slot0At(ctx, pool, block)
	if err != nil {
		return 0, err
	}
	return slot0.Tick, nil
}

// GetPoolAddress resolves a pool through the factory. The zero address means
// no such pool exists.
func GetPoolAddress(ctx context.Context, caller Caller, factory, token0, token1 string, fee uint32) (string, error) {
	factoryAddr, err := parseAddress(factory)
	if err != nil {
		return "", fmt.Errorf("factory: %w", err)
	}
	a, err := parseAddress(token0)
	if err != nil {
		return "", err
	}
	b, err := parseAddress(token1)
	if err != nil {
		return "", err
	}
	parsed, err := FactoryABI()
	if err != nil {
		return "", fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, caller, factoryAddr, parsed, nil, "getPool", a, b, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return "", err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return "", fmt.Errorf("getPool: %w", err)
	}
	if pool == (common.Address{}) {
		return "", fmt.Errorf("getPool %s/%s/%d: %w", token0, token1, fee, model.ErrNotFound)
	}
	return model.AddressKey(pool.Hex()), nil
}
