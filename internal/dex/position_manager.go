package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"flairScope/internal/model"
)

// PositionManager reads nonfungible position manager tokens.
type PositionManager struct {
	caller   Caller
	logs     LogFilterer
	address  common.Address
	parsed   abi.ABI
	increase abi.Event
	decrease abi.Event
}

func NewPositionManager(caller Caller, logs LogFilterer, address string) (*PositionManager, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("position manager: %w", err)
	}
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	return &PositionManager{
		caller:   caller,
		logs:     logs,
		address:  addr,
		parsed:   parsed,
		increase: parsed.Events["IncreaseLiquidity"],
		decrease: parsed.Events["DecreaseLiquidity"],
	}, nil
}

// Position returns the token's pool identity, range and current liquidity.
func (m *PositionManager) Position(ctx context.Context, tokenID *big.Int) (model.PositionInfo, error) {
	values, err := callMethod(ctx, m.caller, m.address, m.parsed, nil, "positions", tokenID)
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("position %s: %w", tokenID, err)
	}
	if len(values) < 8 {
		return model.PositionInfo{}, fmt.Errorf("position %s: unexpected values: %d", tokenID, len(values))
	}
	token0, err := asAddress(values[2])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("token1: %w", err)
	}
	feeInt, err := asBigInt(values[4])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("fee: %w", err)
	}
	fee, err := uint24FromBig(feeInt)
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("fee: %w", err)
	}
	bounds := [2]int32{}
	for i, v := range values[5:7] {
		raw, err := asBigInt(v)
		if err != nil {
			return model.PositionInfo{}, fmt.Errorf("tick bound: %w", err)
		}
		if bounds[i], err = int24FromBig(raw); err != nil {
			return model.PositionInfo{}, fmt.Errorf("tick bound: %w", err)
		}
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return model.PositionInfo{}, fmt.Errorf("liquidity: %w", err)
	}
	if err := checkUint128(liquidity); err != nil {
		return model.PositionInfo{}, fmt.Errorf("liquidity: %w", err)
	}
	if token0 == (common.Address{}) {
		return model.PositionInfo{}, fmt.Errorf("position %s: %w", tokenID, model.ErrNotFound)
	}
	return model.PositionInfo{
		TokenID:   tokenID.String(),
		Token0:    model.AddressKey(token0.Hex()),
		Token1:    model.AddressKey(token1.Hex()),
		FeeTier:   fee,
		TickLower: bounds[0],
		TickUpper: bounds[1],
		Liquidity: liquidity,
	}, nil
}

// LiquidityChanges returns the token's IncreaseLiquidity and DecreaseLiquidity
// events in [fromBlock, toBlock], ordered by block and log index. Decreases
// carry a negative delta.
func (m *PositionManager) LiquidityChanges(ctx context.Context, tokenID *big.Int, fromBlock, toBlock uint64) ([]model.LiquidityChange, error) {
	if m.logs == nil {
		return nil, fmt.Errorf("log filterer is nil")
	}
	topics := [][]common.Hash{
		{m.increase.ID, m.decrease.ID},
		{common.BigToHash(tokenID)},
	}
	logs, err := m.logs.FilterLogs(ctx, fromBlock, toBlock, []common.Address{m.address}, topics)
	if err != nil {
		return nil, fmt.Errorf("filter liquidity logs %d-%d: %w", fromBlock, toBlock, err)
	}
	out := make([]model.LiquidityChange, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		change, err := m.DecodeLiquidityChange(log)
		if err != nil {
			return nil, fmt.Errorf("block %d log %d: %w", log.BlockNumber, log.Index, err)
		}
		out = append(out, change)
	}
	model.SortLiquidityChanges(out)
	return out, nil
}

func (m *PositionManager) DecodeLiquidityChange(log types.Log) (model.LiquidityChange, error) {
	if len(log.Topics) != 2 {
		return model.LiquidityChange{}, fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
	}
	var event abi.Event
	switch log.Topics[0] {
	case m.increase.ID:
		event = m.increase
	case m.decrease.ID:
		event = m.decrease
	default:
		return model.LiquidityChange{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.LiquidityChange{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != 3 {
		return model.LiquidityChange{}, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	amounts := make([]*big.Int, 3)
	for i, v := range values {
		if amounts[i], err = asBigInt(v); err != nil {
			return model.LiquidityChange{}, fmt.Errorf("%s: %w", event.Name, err)
		}
	}
	delta := amounts[0]
	if event.ID == m.decrease.ID {
		delta.Neg(delta)
	}
	return model.LiquidityChange{
		TokenID:        log.Topics[1].Big().String(),
		BlockNumber:    log.BlockNumber,
		TxHash:         log.TxHash.Hex(),
		LogIndex:       uint64(log.Index),
		LiquidityDelta: delta,
		Amount0:        amounts[1],
		Amount1:        amounts[2],
	}, nil
}
