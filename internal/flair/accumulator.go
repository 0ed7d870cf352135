package flair

import (
	"time"

	"flairScope/internal/model"
	"flairScope/internal/v3math"
)

// DefaultBlockInterval is the post-merge slot time.
const DefaultBlockInterval = 12 * time.Second

// Accumulator holds the running totals of one aggregation run. It is
// owned by a single goroutine.
type Accumulator struct {
	position model.Position
	dt       float64
	result   model.FLAIRResult
}

func NewAccumulator(position model.Position, blockInterval time.Duration) *Accumulator {
	if blockInterval <= 0 {
		blockInterval = DefaultBlockInterval
	}
	return &Accumulator{
		position: position,
		dt:       blockInterval.Seconds(),
	}
}

// AddBlock folds one dirty block into the totals and returns the export row.
// The FLAIR term is skipped while the position is out of range.
func (a *Accumulator) AddBlock(state model.PoolState, share model.FeeShareResult) model.BlockRow {
	fee0 := state.FeesToken0 * share.FeeShare0
	fee1 := state.FeesToken1 * share.FeeShare1

	a.result.Fee0 += fee0
	a.result.Fee1 += fee1
	a.result.PoolFee0 += state.FeesToken0
	a.result.PoolFee1 += state.FeesToken1
	a.result.Blocks++
	a.result.ApproximatedSteps += share.ApproximatedSteps

	row := model.BlockRow{
		BlockNumber: state.BlockNumber,
		Token0Price: state.Token0Price,
	}

	value := v3math.ComputePositionValue(a.position, state.Tick)
	if v, ok := value.Token0(); ok && v > 0 {
		instantFee0 := fee0 + fee1*state.Token0Price
		a.result.Flair += a.dt * instantFee0 / v
		row.PositionValueToken0 = &v
	}

	row.Flair = a.result.Flair
	row.TotalFee0 = a.result.Fee0
	row.TotalFee1 = a.result.Fee1
	row.PoolFee0 = a.result.PoolFee0
	row.PoolFee1 = a.result.PoolFee1
	return row
}

func (a *Accumulator) Result() model.FLAIRResult {
	return a.result
}
