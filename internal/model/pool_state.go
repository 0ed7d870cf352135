package model

import (
	"math/big"
	"sort"
)

// PoolState is the pool snapshot at the end of a dirty block.
// FeesToken0/1 are the fees collected in that block and TVLToken0/1 the
// token balances held by the pool, all in human units.
// Token0Price is the price of token1 expressed in token0.
type PoolState struct {
	PoolAddress  string   `json:"pool_address"`
	BlockNumber  uint64   `json:"block_number"`
	Tick         int32    `json:"tick"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96,omitempty"`
	Liquidity    *big.Int `json:"liquidity"`
	Token0Price  float64  `json:"token0_price"`
	Token1Price  float64  `json:"token1_price"`
	FeesToken0   float64  `json:"fees_token0"`
	FeesToken1   float64  `json:"fees_token1"`
	TVLToken0    float64  `json:"tvl_token0"`
	TVLToken1    float64  `json:"tvl_token1"`
}

// TickSnapshot is the reconstructed tick list of one pool at one block.
type TickSnapshot struct {
	PoolAddress string          `json:"pool_address"`
	BlockNumber uint64          `json:"block_number"`
	Ticks       []ProcessedTick `json:"ticks"`
}

// SortTicks orders ticks ascending by index.
func SortTicks(ticks []ProcessedTick) {
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].TickIdx < ticks[j].TickIdx })
}

func sortBlocks(blocks []uint64) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
}
