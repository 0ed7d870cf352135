package model

// FeeShareResult is the fraction of one block's token0/token1 fees that
// belongs to a position. ApproximatedSteps counts swap-path steps that
// reused the last known liquidity because no tick entry matched.
type FeeShareResult struct {
	FeeShare0         float64 `json:"fee_share0"`
	FeeShare1         float64 `json:"fee_share1"`
	ApproximatedSteps int     `json:"approximated_steps,omitempty"`
}

// FLAIRResult is the accumulated outcome of one aggregation run.
type FLAIRResult struct {
	Flair             float64 `json:"flair"`
	Fee0              float64 `json:"fee0"`
	Fee1              float64 `json:"fee1"`
	PoolFee0          float64 `json:"pool_fee0"`
	PoolFee1          float64 `json:"pool_fee1"`
	Blocks            int     `json:"blocks"`
	ApproximatedSteps int     `json:"approximated_steps"`
}

// Add folds another result into r. Used when a position history is split
// into several constant-liquidity records.
func (r *FLAIRResult) Add(other FLAIRResult) {
	r.Flair += other.Flair
	r.Fee0 += other.Fee0
	r.Fee1 += other.Fee1
	r.PoolFee0 += other.PoolFee0
	r.PoolFee1 += other.PoolFee1
	r.Blocks += other.Blocks
	r.ApproximatedSteps += other.ApproximatedSteps
}

// BlockRow is the per-block export row emitted while computing FLAIR.
type BlockRow struct {
	BlockNumber         uint64   `json:"block_number"`
	Flair               float64  `json:"flair"`
	TotalFee0           float64  `json:"total_fee0"`
	TotalFee1           float64  `json:"total_fee1"`
	PoolFee0            float64  `json:"pool_fee0"`
	PoolFee1            float64  `json:"pool_fee1"`
	PositionValueToken0 *float64 `json:"position_value_token0"`
	Token0Price         float64  `json:"token0_price"`
}
