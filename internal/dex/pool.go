package dex

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flairScope/internal/model"
)

// TokenMeta is the ERC20 metadata a pool needs.
type TokenMeta struct {
	Decimals uint8
	Symbol   string
}

// TokenCache caches token metadata by address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]TokenMeta
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]TokenMeta)}
}

func (c *TokenCache) Get(address common.Address) (TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenCache) Set(address common.Address, meta TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchPool loads the immutable pool identity and both tokens' decimals and
// symbols. Decimals are required; a missing symbol falls back to the address.
func FetchPool(ctx context.Context, caller Caller, address string, tokens *TokenCache, logger *zap.Logger) (model.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = NewTokenCache()
	}
	pool, err := parseAddress(address)
	if err != nil {
		return model.Pool{}, err
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.Pool{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, caller, pool, poolABI, nil, "token0")
	if err != nil {
		return model.Pool{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, nil, "token1")
	if err != nil {
		return model.Pool{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("token1: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, nil, "fee")
	if err != nil {
		return model.Pool{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("fee: %w", err)
	}
	fee, err := uint24FromBig(feeInt)
	if err != nil {
		return model.Pool{}, fmt.Errorf("fee: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, poolABI, nil, "tickSpacing")
	if err != nil {
		return model.Pool{}, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("tick spacing: %w", err)
	}
	spacing, err := int24FromBig(spacingInt)
	if err != nil {
		return model.Pool{}, fmt.Errorf("tick spacing: %w", err)
	}
	if spacing <= 0 {
		return model.Pool{}, fmt.Errorf("tick spacing: must be positive, got %d", spacing)
	}

	meta0, err := tokenMeta(ctx, caller, token0, tokens, logger)
	if err != nil {
		return model.Pool{}, fmt.Errorf("token0 %s: %w", token0.Hex(), err)
	}
	meta1, err := tokenMeta(ctx, caller, token1, tokens, logger)
	if err != nil {
		return model.Pool{}, fmt.Errorf("token1 %s: %w", token1.Hex(), err)
	}

	return model.Pool{
		Address:     model.AddressKey(pool.Hex()),
		Token0:      model.AddressKey(token0.Hex()),
		Token1:      model.AddressKey(token1.Hex()),
		FeeTier:     fee,
		Decimals0:   meta0.Decimals,
		Decimals1:   meta1.Decimals,
		TickSpacing: spacing,
		Name:        model.PoolName(meta0.Symbol, meta1.Symbol, fee),
	}, nil
}

func tokenMeta(ctx context.Context, caller Caller, token common.Address, cache *TokenCache, logger *zap.Logger) (TokenMeta, error) {
	if meta, ok := cache.Get(token); ok {
		return meta, nil
	}
	meta, err := FetchTokenMeta(ctx, caller, token, logger)
	if err != nil {
		return TokenMeta{}, err
	}
	cache.Set(token, meta)
	return meta, nil
}

// FetchTokenMeta loads decimals and symbol via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (TokenMeta, error) {
	stringABI, err := erc20StringABI.get()
	if err != nil {
		return TokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return TokenMeta{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, nil, "decimals")
	if err != nil {
		return TokenMeta{}, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return TokenMeta{}, fmt.Errorf("decimals: %w", err)
	}
	meta := TokenMeta{Decimals: decimals, Symbol: token.Hex()}

	if values, err := callMethod(ctx, caller, token, stringABI, nil, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok && symbol != "" {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, nil, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok && symbol != "" {
			meta.Symbol = symbol
		}
	} else if logger != nil {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	return meta, nil
}
