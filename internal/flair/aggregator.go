// Package flair integrates per-block fee shares of a position into the
// FLAIR yield metric.
package flair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flairScope/internal/feeshare"
	"flairScope/internal/metrics"
	"flairScope/internal/model"
)

const DefaultBatchSize = 2000

// DataSource serves the indexed snapshots the aggregator reads.
type DataSource interface {
	GetPool(ctx context.Context, address string) (model.Pool, error)
	LastIndexedBlock(ctx context.Context, pool string) (uint64, error)
	GetSwapsInRange(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.SwapEvent, error)
	GetPoolStateBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.PoolState, error)
	GetTicksBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) (map[uint64][]model.ProcessedTick, error)
}

// Config controls aggregation behavior.
type Config struct {
	// BatchSize is the number of dirty blocks loaded per snapshot fetch.
	BatchSize int
	// LastIndexedBlock caps unbounded periods. Zero asks the data source.
	LastIndexedBlock uint64
	BlockInterval    time.Duration
	// OnBlock receives every processed row in ascending block order.
	OnBlock func(model.BlockRow) error
	Metrics *metrics.Metrics
}

// Aggregator runs the per-block FLAIR loop for one position at a time.
type Aggregator struct {
	cfg      Config
	source   DataSource
	strategy feeshare.Strategy
	logger   *zap.Logger
}

func NewAggregator(cfg Config, source DataSource, strategy feeshare.Strategy, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = DefaultBlockInterval
	}
	return &Aggregator{
		cfg:      cfg,
		source:   source,
		strategy: strategy,
		logger:   logger,
	}
}

// ComputeFLAIR runs a one-off aggregation with default settings.
func ComputeFLAIR(ctx context.Context, source DataSource, strategy feeshare.Strategy, position model.Position, batchSize int) (model.FLAIRResult, error) {
	return NewAggregator(Config{BatchSize: batchSize}, source, strategy, nil).Compute(ctx, position)
}

// Compute walks every dirty block of the position's period in ascending
// order. Any missing snapshot aborts the run.
func (a *Aggregator) Compute(ctx context.Context, position model.Position) (model.FLAIRResult, error) {
	if a.source == nil {
		return model.FLAIRResult{}, fmt.Errorf("data source is nil")
	}
	if a.strategy == nil {
		return model.FLAIRResult{}, fmt.Errorf("fee share strategy is nil")
	}

	pool, err := a.source.GetPool(ctx, position.PoolAddress)
	if err != nil {
		return model.FLAIRResult{}, fmt.Errorf("load pool %s: %w", position.PoolAddress, err)
	}
	if err := position.Validate(pool.TickSpacing); err != nil {
		return model.FLAIRResult{}, err
	}

	lastIndexed := a.cfg.LastIndexedBlock
	if lastIndexed == 0 {
		lastIndexed, err = a.source.LastIndexedBlock(ctx, pool.Address)
		if err != nil {
			return model.FLAIRResult{}, fmt.Errorf("last indexed block: %w", err)
		}
	}

	startBlock := position.Period.FromBlock
	endBlock := position.Period.ToBlock.Clamp(lastIndexed)
	if startBlock > endBlock {
		a.logger.Info("no indexed data for period",
			zap.String("pool", pool.Address),
			zap.Uint64("from", startBlock),
			zap.Uint64("to", endBlock),
		)
		return model.FLAIRResult{}, nil
	}

	swaps, err := a.source.GetSwapsInRange(ctx, pool.Address, startBlock, endBlock)
	if err != nil {
		return model.FLAIRResult{}, fmt.Errorf("load swaps: %w", err)
	}
	blocks, swapsByBlock := model.DirtyBlocks(swaps)

	a.logger.Info("flair start",
		zap.String("pool", pool.Address),
		zap.String("strategy", a.strategy.Name()),
		zap.Uint64("from", startBlock),
		zap.Uint64("to", endBlock),
		zap.Int("dirty_blocks", len(blocks)),
	)

	acc := NewAccumulator(position, a.cfg.BlockInterval)
	for i := 0; i < len(blocks); i += a.cfg.BatchSize {
		chunk := blocks[i:min(i+a.cfg.BatchSize, len(blocks))]
		states, ticksByBlock, err := a.fetchBatch(ctx, pool.Address, chunk[0], chunk[len(chunk)-1])
		if err != nil {
			return model.FLAIRResult{}, err
		}

		for _, block := range chunk {
			if err := ctx.Err(); err != nil {
				return model.FLAIRResult{}, err
			}

			state, ok := states[block]
			if !ok {
				a.cfg.Metrics.IntegrityError()
				return model.FLAIRResult{}, fmt.Errorf("%w: no pool state at block %d", model.ErrDataIntegrity, block)
			}

			blockTicks := ticksByBlock[block]
			model.SortTicks(blockTicks)

			share, err := a.strategy.FeeShare(blockTicks, swapsByBlock[block], position, pool.TickSpacing)
			if err != nil {
				if errors.Is(err, model.ErrDataIntegrity) {
					a.cfg.Metrics.IntegrityError()
				}
				return model.FLAIRResult{}, fmt.Errorf("block %d: %w", block, err)
			}

			row := acc.AddBlock(state, share)
			a.cfg.Metrics.BlockProcessed()
			if a.cfg.OnBlock != nil {
				if err := a.cfg.OnBlock(row); err != nil {
					return model.FLAIRResult{}, fmt.Errorf("write row for block %d: %w", block, err)
				}
			}
		}

		a.logger.Debug("flair batch done",
			zap.Uint64("from", chunk[0]),
			zap.Uint64("to", chunk[len(chunk)-1]),
			zap.Int("blocks", len(chunk)),
		)
	}

	result := acc.Result()
	a.logger.Info("flair complete",
		zap.String("pool", pool.Address),
		zap.Float64("flair", result.Flair),
		zap.Float64("fee0", result.Fee0),
		zap.Float64("fee1", result.Fee1),
		zap.Int("blocks", result.Blocks),
		zap.Int("approximated_steps", result.ApproximatedSteps),
	)
	return result, nil
}

// fetchBatch loads pool states and ticks for [fromBlock, toBlock] concurrently.
func (a *Aggregator) fetchBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) (map[uint64]model.PoolState, map[uint64][]model.ProcessedTick, error) {
	timer := a.cfg.Metrics.FetchTimer()
	defer timer.ObserveDuration()

	var (
		states []model.PoolState
		ticks  map[uint64][]model.ProcessedTick
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		states, err = a.source.GetPoolStateBatch(gctx, pool, fromBlock, toBlock)
		if err != nil {
			return fmt.Errorf("load pool states %d-%d: %w", fromBlock, toBlock, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ticks, err = a.source.GetTicksBatch(gctx, pool, fromBlock, toBlock)
		if err != nil {
			return fmt.Errorf("load ticks %d-%d: %w", fromBlock, toBlock, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	byBlock := make(map[uint64]model.PoolState, len(states))
	for _, state := range states {
		byBlock[state.BlockNumber] = state
	}
	if ticks == nil {
		ticks = make(map[uint64][]model.ProcessedTick)
	}
	return byBlock, ticks, nil
}
