package indexer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"flairScope/internal/dex"
	"flairScope/internal/metrics"
	"flairScope/internal/model"
)

const swapJob = "swaps"

// SwapSink receives decoded swaps. storage.Store implements it.
type SwapSink interface {
	UpsertSwaps(ctx context.Context, swaps []model.SwapEvent) error
}

// Archive optionally keeps a copy of every decoded swap, e.g. a JSONL file.
type Archive interface {
	PutBatch(records []model.SwapEvent) error
}

// ChainReader is the subset of the chain client the swap indexer needs.
type ChainReader interface {
	dex.LogFilterer
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// RunConfig holds runtime settings for the swap indexer.
type RunConfig struct {
	FromBlock uint64
	ToBlock   uint64 // 0 means the chain head
	BatchSize uint64
	Retry     RetryPolicy
	Resume    bool
}

// Runner streams one pool's Swap logs from the chain into a SwapSink.
type Runner struct {
	cfg     RunConfig
	pool    model.Pool
	chain   ChainReader
	decoder *dex.SwapDecoder
	sink    SwapSink
	state   StateStore
	archive Archive
	metrics *metrics.Metrics
	logger  *zap.Logger
	seen    map[string]struct{}
}

// NewRunner builds a Runner. state and archive may be nil.
func NewRunner(cfg RunConfig, pool model.Pool, chainReader ChainReader, sink SwapSink, state StateStore, archive Archive, m *metrics.Metrics, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chainReader == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("swap sink is nil")
	}
	if cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	decoder, err := dex.NewSwapDecoder(pool)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		pool:    pool,
		chain:   chainReader,
		decoder: decoder,
		sink:    sink,
		state:   state,
		archive: archive,
		metrics: m,
		logger:  logger.With(zap.String("pool", pool.Address)),
		seen:    make(map[string]struct{}),
	}, nil
}

// Run indexes [FromBlock, ToBlock] and returns the number of swaps stored.
func (r *Runner) Run(ctx context.Context) (int, error) {
	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		err := r.cfg.Retry.Do(ctx, r.logger, "latest block fetch failed", func(ctx context.Context) error {
			var err error
			to, err = r.chain.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
	}

	stateName := StateName(swapJob, r.pool.Address)
	if r.cfg.Resume && r.state != nil {
		last, ok, err := r.state.LoadState(ctx, stateName)
		if err != nil {
			return 0, fmt.Errorf("load state: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return 0, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	address := common.HexToAddress(r.pool.Address)
	topics := [][]common.Hash{{r.decoder.Topic()}}
	total := 0
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var logs []types.Log
		err := r.cfg.Retry.Do(ctx, r.logger, "filter logs failed", func(ctx context.Context) error {
			var err error
			logs, err = r.chain.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{address}, topics)
			return err
		}, zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		if err != nil {
			return total, fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		swaps := make([]model.SwapEvent, 0, len(logs))
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}
			swap, err := r.decoder.Decode(log)
			if err != nil {
				return total, fmt.Errorf("decode block %d log %d: %w", log.BlockNumber, log.Index, err)
			}
			swaps = append(swaps, swap)
		}

		if err := r.sink.UpsertSwaps(ctx, swaps); err != nil {
			return total, fmt.Errorf("store swaps: %w", err)
		}
		if r.archive != nil {
			if err := r.archive.PutBatch(swaps); err != nil {
				return total, fmt.Errorf("archive swaps: %w", err)
			}
		}
		if r.state != nil {
			if err := r.state.SaveState(ctx, stateName, blockRange.To); err != nil {
				return total, fmt.Errorf("save state: %w", err)
			}
		}
		total += len(swaps)
		r.metrics.SwapsStored(len(swaps))

		r.logger.Info("batch complete",
			zap.Int("swaps", len(swaps)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return total, nil
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
