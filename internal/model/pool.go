package model

import (
	"fmt"
	"strings"
)

// Pool is the immutable identity of a concentrated-liquidity pool.
type Pool struct {
	Address     string `json:"address"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	FeeTier     uint32 `json:"fee_tier"`
	Decimals0   uint8  `json:"decimals0"`
	Decimals1   uint8  `json:"decimals1"`
	TickSpacing int32  `json:"tick_spacing"`
	Name        string `json:"name,omitempty"`
}

// PoolName builds the display name used when a pool is initialized.
func PoolName(symbol0, symbol1 string, feeTier uint32) string {
	return fmt.Sprintf("%s-%s-%d", symbol0, symbol1, feeTier)
}

// AddressKey normalizes an address for map keys and storage lookups.
func AddressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
