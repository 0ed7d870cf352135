package model

import (
	"encoding/json"
	"fmt"
)

// BlockBound is the closing block of a period. The zero value is Unbounded.
type BlockBound struct {
	block   uint64
	bounded bool
}

// Unbounded returns a bound with no upper limit.
func Unbounded() BlockBound {
	return BlockBound{}
}

// UpTo returns a bound closing at block (inclusive).
func UpTo(block uint64) BlockBound {
	return BlockBound{block: block, bounded: true}
}

func (b BlockBound) IsUnbounded() bool {
	return !b.bounded
}

// Block returns the closing block and whether the bound is set.
func (b BlockBound) Block() (uint64, bool) {
	return b.block, b.bounded
}

// Clamp returns the bound limited to limit.
func (b BlockBound) Clamp(limit uint64) uint64 {
	if b.bounded && b.block < limit {
		return b.block
	}
	return limit
}

func (b BlockBound) String() string {
	if !b.bounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d", b.block)
}

func (b BlockBound) MarshalJSON() ([]byte, error) {
	if !b.bounded {
		return []byte("null"), nil
	}
	return json.Marshal(b.block)
}

func (b *BlockBound) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = Unbounded()
		return nil
	}
	var block uint64
	if err := json.Unmarshal(data, &block); err != nil {
		return fmt.Errorf("parse block bound: %w", err)
	}
	*b = UpTo(block)
	return nil
}

// Period is the block range a position is active for.
type Period struct {
	FromBlock uint64     `json:"from_block"`
	ToBlock   BlockBound `json:"to_block"`
}
