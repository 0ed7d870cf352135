package indexer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flairScope/internal/dex"
	"flairScope/internal/metrics"
	"flairScope/internal/model"
	"flairScope/internal/ticks"
	"flairScope/internal/v3math"
)

const snapshotJob = "snapshots"

var feeTierScale = decimal.NewFromInt(1_000_000)

// SwapSource serves the swaps stored by the indexer.
type SwapSource interface {
	GetSwapsInRange(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.SwapEvent, error)
}

// SnapshotSink persists pool states and tick snapshots.
type SnapshotSink interface {
	UpsertPoolStates(ctx context.Context, states []model.PoolState) error
	UpsertTickSnapshots(ctx context.Context, snapshots []model.TickSnapshot) error
}

// PoolStateReader reads pool state at a historical block. dex.PoolReader
// implements it.
type PoolStateReader interface {
	Slot0At(ctx context.Context, pool string, block uint64) (dex.Slot0, error)
	LiquidityAt(ctx context.Context, pool string, block uint64) (*big.Int, error)
	TickAt(ctx context.Context, pool string, idx int32, block uint64) (model.Tick, bool, error)
	TVLAt(ctx context.Context, pool model.Pool, block uint64) (dex.TVL, error)
}

// SnapshotConfig holds runtime settings for the snapshot collector.
// LowerRange and UpperRange are the number of tick-spacing buckets kept on
// each side of the active tick beyond the swapped-through range.
type SnapshotConfig struct {
	FromBlock   uint64
	ToBlock     uint64
	LowerRange  int32
	UpperRange  int32
	Concurrency int
	BatchSize   int
	Retry       RetryPolicy
	Resume      bool
}

// Collector snapshots pool state, token balances and active-liquidity ticks
// at every block that holds a stored swap.
type Collector struct {
	cfg     SnapshotConfig
	pool    model.Pool
	swaps   SwapSource
	reader  PoolStateReader
	sink    SnapshotSink
	state   StateStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type blockSnapshot struct {
	state model.PoolState
	ticks model.TickSnapshot
}

// NewCollector builds a Collector. state may be nil.
func NewCollector(cfg SnapshotConfig, pool model.Pool, swaps SwapSource, reader PoolStateReader, sink SnapshotSink, state StateStore, m *metrics.Metrics, logger *zap.Logger) (*Collector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if swaps == nil || reader == nil || sink == nil {
		return nil, fmt.Errorf("collector needs a swap source, a pool reader and a sink")
	}
	if pool.TickSpacing <= 0 {
		return nil, fmt.Errorf("pool %s: tick spacing must be positive", pool.Address)
	}
	if cfg.FromBlock > cfg.ToBlock {
		return nil, fmt.Errorf("invalid block range: from %d > to %d", cfg.FromBlock, cfg.ToBlock)
	}
	if cfg.LowerRange < 0 || cfg.UpperRange < 0 {
		return nil, fmt.Errorf("tick ranges must not be negative")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Collector{
		cfg:     cfg,
		pool:    pool,
		swaps:   swaps,
		reader:  reader,
		sink:    sink,
		state:   state,
		metrics: m,
		logger:  logger.With(zap.String("pool", pool.Address)),
	}, nil
}

// Run collects and persists snapshots in ascending block order and returns
// how many blocks were stored.
func (c *Collector) Run(ctx context.Context) (int, error) {
	swaps, err := c.swaps.GetSwapsInRange(ctx, c.pool.Address, c.cfg.FromBlock, c.cfg.ToBlock)
	if err != nil {
		return 0, fmt.Errorf("load swaps: %w", err)
	}
	blocks, byBlock := model.DirtyBlocks(swaps)

	stateName := StateName(snapshotJob, c.pool.Address)
	if c.cfg.Resume && c.state != nil {
		last, ok, err := c.state.LoadState(ctx, stateName)
		if err != nil {
			return 0, fmt.Errorf("load state: %w", err)
		}
		if ok {
			skip := 0
			for skip < len(blocks) && blocks[skip] <= last {
				skip++
			}
			blocks = blocks[skip:]
			c.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Int("skipped", skip))
		}
	}

	c.logger.Info("collect snapshots",
		zap.Int("blocks", len(blocks)),
		zap.Uint64("from", c.cfg.FromBlock),
		zap.Uint64("to", c.cfg.ToBlock),
	)

	stored := 0
	for start := 0; start < len(blocks); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		chunk := blocks[start:end]

		results := make([]blockSnapshot, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for i, block := range chunk {
			i, block := i, block
			g.Go(func() error {
				snap, err := c.collectBlock(gctx, block, byBlock[block])
				if err != nil {
					return fmt.Errorf("block %d: %w", block, err)
				}
				results[i] = snap
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stored, err
		}

		states := make([]model.PoolState, len(results))
		snapshots := make([]model.TickSnapshot, len(results))
		for i, r := range results {
			states[i] = r.state
			snapshots[i] = r.ticks
		}
		if err := c.sink.UpsertPoolStates(ctx, states); err != nil {
			return stored, fmt.Errorf("store pool states: %w", err)
		}
		if err := c.sink.UpsertTickSnapshots(ctx, snapshots); err != nil {
			return stored, fmt.Errorf("store tick snapshots: %w", err)
		}
		if c.state != nil {
			if err := c.state.SaveState(ctx, stateName, chunk[len(chunk)-1]); err != nil {
				return stored, fmt.Errorf("save state: %w", err)
			}
		}
		for range results {
			c.metrics.SnapshotStored()
		}
		stored += len(results)

		c.logger.Info("snapshot batch stored",
			zap.Uint64("from", chunk[0]),
			zap.Uint64("to", chunk[len(chunk)-1]),
			zap.Int("stored", stored),
			zap.Int("total", len(blocks)),
		)
	}
	return stored, nil
}

func (c *Collector) collectBlock(ctx context.Context, block uint64, swaps []model.SwapEvent) (blockSnapshot, error) {
	address := c.pool.Address
	spacing := c.pool.TickSpacing

	var slot0 dex.Slot0
	err := c.cfg.Retry.Do(ctx, c.logger, "slot0 read failed", func(ctx context.Context) error {
		var err error
		slot0, err = c.reader.Slot0At(ctx, address, block)
		return err
	}, zap.Uint64("block", block))
	if err != nil {
		return blockSnapshot{}, err
	}

	var liquidity *big.Int
	err = c.cfg.Retry.Do(ctx, c.logger, "liquidity read failed", func(ctx context.Context) error {
		var err error
		liquidity, err = c.reader.LiquidityAt(ctx, address, block)
		return err
	}, zap.Uint64("block", block))
	if err != nil {
		return blockSnapshot{}, err
	}

	var tvl dex.TVL
	err = c.cfg.Retry.Do(ctx, c.logger, "tvl read failed", func(ctx context.Context) error {
		var err error
		tvl, err = c.reader.TVLAt(ctx, c.pool, block)
		return err
	}, zap.Uint64("block", block))
	if err != nil {
		return blockSnapshot{}, err
	}
	if tvl.Source == dex.TVLAtLatest {
		c.logger.Warn("historical balances unavailable, tvl read at latest block", zap.Uint64("block", block))
	}

	active := v3math.ActiveTick(slot0.Tick, spacing)
	lower, upper := TickWindow(active, swaps, spacing, c.cfg.LowerRange, c.cfg.UpperRange)

	var sparse []model.Tick
	for idx := lower; idx <= upper; idx += spacing {
		var (
			tick        model.Tick
			initialized bool
		)
		err := c.cfg.Retry.Do(ctx, c.logger, "tick read failed", func(ctx context.Context) error {
			var err error
			tick, initialized, err = c.reader.TickAt(ctx, address, idx, block)
			return err
		}, zap.Uint64("block", block), zap.Int32("tick", idx))
		if err != nil {
			return blockSnapshot{}, err
		}
		if initialized {
			sparse = append(sparse, tick)
		}
	}

	processed, err := ticks.ReconstructWindow(
		model.ProcessedTick{Tick: model.Tick{TickIdx: active}, LiquidityActive: liquidity},
		sparse, spacing, lower, upper,
	)
	if err != nil {
		return blockSnapshot{}, fmt.Errorf("reconstruct ticks: %w", err)
	}

	fee0, fee1 := BlockFees(swaps, c.pool.FeeTier)
	price := v3math.TickToPrice(slot0.Tick, c.pool.Decimals0, c.pool.Decimals1)
	return blockSnapshot{
		state: model.PoolState{
			PoolAddress:  address,
			BlockNumber:  block,
			Tick:         slot0.Tick,
			SqrtPriceX96: slot0.SqrtPriceX96,
			Liquidity:    liquidity,
			Token0Price:  price.Price0.InexactFloat64(),
			Token1Price:  price.Price1.InexactFloat64(),
			FeesToken0:   fee0,
			FeesToken1:   fee1,
			TVLToken0:    tvl.Token0.InexactFloat64(),
			TVLToken1:    tvl.Token1.InexactFloat64(),
		},
		ticks: model.TickSnapshot{
			PoolAddress: address,
			BlockNumber: block,
			Ticks:       processed,
		},
	}, nil
}

// TickWindow returns the absolute, spacing-aligned tick window to snapshot:
// lowerRange buckets below and upperRange buckets above whichever reaches
// farther, the active bucket or the buckets the block's swaps ended in.
func TickWindow(active int32, swaps []model.SwapEvent, spacing, lowerRange, upperRange int32) (int32, int32) {
	minBucket, maxBucket := active, active
	for _, swap := range swaps {
		bucket := v3math.ActiveTick(swap.Tick, spacing)
		if bucket < minBucket {
			minBucket = bucket
		}
		if bucket > maxBucket {
			maxBucket = bucket
		}
	}
	lower := minBucket - lowerRange*spacing
	upper := maxBucket + upperRange*spacing

	minAligned := -v3math.ActiveTick(model.MaxTick, spacing)
	maxAligned := v3math.ActiveTick(model.MaxTick, spacing)
	if lower < minAligned {
		lower = minAligned
	}
	if upper > maxAligned {
		upper = maxAligned
	}
	return lower, upper
}

// BlockFees approximates the fees a block's swaps paid: feeTier/1e6 of the
// input amount, charged in the token that entered the pool.
func BlockFees(swaps []model.SwapEvent, feeTier uint32) (float64, float64) {
	rate := decimal.NewFromInt(int64(feeTier)).Div(feeTierScale)
	fee0, fee1 := decimal.Zero, decimal.Zero
	for _, swap := range swaps {
		if swap.Amount0.IsPositive() {
			fee0 = fee0.Add(swap.Amount0.Mul(rate))
		} else {
			fee1 = fee1.Add(swap.Amount1.Mul(rate))
		}
	}
	return fee0.InexactFloat64(), fee1.InexactFloat64()
}
