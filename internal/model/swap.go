package model

import "github.com/shopspring/decimal"

// SwapEvent is a decoded pool swap. Amounts are signed and human-scaled:
// a positive amount flowed into the pool. Tick is the pool tick after the swap.
type SwapEvent struct {
	PoolAddress string          `json:"pool_address"`
	BlockNumber uint64          `json:"block_number"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Tick        int32           `json:"tick"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
}

// ZeroForOne reports whether token0 was sold into the pool.
func (s SwapEvent) ZeroForOne() bool {
	return s.Amount0.IsPositive()
}

// DirtyBlocks returns the sorted, de-duplicated blocks that contain swaps,
// and the swaps grouped by block.
func DirtyBlocks(swaps []SwapEvent) ([]uint64, map[uint64][]SwapEvent) {
	byBlock := make(map[uint64][]SwapEvent)
	for _, swap := range swaps {
		byBlock[swap.BlockNumber] = append(byBlock[swap.BlockNumber], swap)
	}
	blocks := make([]uint64, 0, len(byBlock))
	for block := range byBlock {
		blocks = append(blocks, block)
	}
	sortBlocks(blocks)
	return blocks, byBlock
}
