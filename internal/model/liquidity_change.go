package model

import (
	"math/big"
	"sort"
)

// LiquidityChange is one IncreaseLiquidity/DecreaseLiquidity event of a
// position-manager token. LiquidityDelta is negative for decreases.
type LiquidityChange struct {
	TokenID        string   `json:"token_id"`
	BlockNumber    uint64   `json:"block_number"`
	TxHash         string   `json:"tx_hash"`
	LogIndex       uint64   `json:"log_index"`
	LiquidityDelta *big.Int `json:"liquidity_delta"`
	Amount0        *big.Int `json:"amount0"`
	Amount1        *big.Int `json:"amount1"`
}

// SortLiquidityChanges orders events by block then log index.
func SortLiquidityChanges(events []LiquidityChange) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

// PositionInfo is the on-chain description of a position-manager token.
type PositionInfo struct {
	TokenID   string   `json:"token_id"`
	Token0    string   `json:"token0"`
	Token1    string   `json:"token1"`
	FeeTier   uint32   `json:"fee_tier"`
	TickLower int32    `json:"tick_lower"`
	TickUpper int32    `json:"tick_upper"`
	Liquidity *big.Int `json:"liquidity"`
}
