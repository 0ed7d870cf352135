package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"flairScope/internal/model"
)

// SwapDecoder turns pool Swap logs into SwapEvents scaled by token decimals.
type SwapDecoder struct {
	event abi.Event
	pool  model.Pool
}

func NewSwapDecoder(pool model.Pool) (*SwapDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	event, ok := poolABI.Events["Swap"]
	if !ok {
		return nil, fmt.Errorf("pool abi has no Swap event")
	}
	return &SwapDecoder{event: event, pool: pool}, nil
}

// Topic is the Swap event signature hash.
func (d *SwapDecoder) Topic() common.Hash {
	return d.event.ID
}

func (d *SwapDecoder) Decode(log types.Log) (model.SwapEvent, error) {
	if len(log.Topics) != 3 {
		return model.SwapEvent{}, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != d.event.ID {
		return model.SwapEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}
	if !strings.EqualFold(log.Address.Hex(), d.pool.Address) {
		return model.SwapEvent{}, fmt.Errorf("log from %s, decoder bound to %s", log.Address.Hex(), d.pool.Address)
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("unpack swap: %w", err)
	}
	if len(values) != 5 {
		return model.SwapEvent{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}
	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("amount0: %w", err)
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("amount1: %w", err)
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SwapEvent{}, fmt.Errorf("tick: %w", err)
	}

	return model.SwapEvent{
		PoolAddress: model.AddressKey(d.pool.Address),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Tick:        tick,
		Amount0:     decimal.NewFromBigInt(amount0, -int32(d.pool.Decimals0)),
		Amount1:     decimal.NewFromBigInt(amount1, -int32(d.pool.Decimals1)),
	}, nil
}
