package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flairScope/internal/chain"
	"flairScope/internal/config"
	"flairScope/internal/dex"
	"flairScope/internal/feeshare"
	"flairScope/internal/flair"
	"flairScope/internal/indexer"
	"flairScope/internal/model"
	"flairScope/internal/position"
	"flairScope/internal/storage"
)

func newBenchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Compute FLAIR for real position-manager tokens from their liquidity history",
		Long: "Replays IncreaseLiquidity/DecreaseLiquidity events of each token into\n" +
			"constant-liquidity segments, computes FLAIR for each and logs the combined\n" +
			"result. Every pool must be indexed and snapshotted over the same blocks.",
		RunE: runBenchmark,
	}
	addCommonFlags(cmd.Flags())
	addRetryFlags(cmd.Flags())
	addFLAIRFlags(cmd)
	cmd.Flags().String("rpc", "", "archive RPC URL")
	cmd.Flags().StringSlice("token-id", nil, "position-manager token ids (repeat or comma separate)")
	cmd.Flags().String("factory", "0x1F98431c8aD98523631AE4a59f267346ea31F984", "V3 factory address")
	cmd.Flags().String("position-manager", "0xC36442b4a4522E871399CD717aBDD847Ab11FE88", "nonfungible position manager address")
	cmd.Flags().Uint64("from", 0, "first block to scan for liquidity events")
	cmd.Flags().Uint64("to", 0, "last block to scan and compute")
	cmd.Flags().Uint64("log-batch-size", 10000, "blocks per eth_getLogs call")
	return cmd
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadBenchmark(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	tokenIDs := make([]*big.Int, 0, len(cfg.TokenIDs))
	for _, raw := range cfg.TokenIDs {
		tokenID, ok := new(big.Int).SetString(raw, 10)
		if !ok || tokenID.Sign() < 0 {
			return fmt.Errorf("token-id: invalid value %q", raw)
		}
		tokenIDs = append(tokenIDs, tokenID)
	}

	rt, err := newApp(cfg.Common)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := rt.ctx

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	manager, err := dex.NewPositionManager(chainClient, chainClient, cfg.PositionManager)
	if err != nil {
		return err
	}
	reader, err := dex.NewPoolReader(chainClient)
	if err != nil {
		return err
	}
	strategy, err := feeshare.ByName(cfg.Strategy, rt.logger, rt.metrics)
	if err != nil {
		return err
	}

	var shared storage.RowSink
	if cfg.Out != "" {
		if shared, err = storage.OpenRowSink(cfg.Out); err != nil {
			return err
		}
	}
	closeShared := func() error {
		if shared == nil {
			return nil
		}
		sink := shared
		shared = nil
		return sink.Close()
	}
	defer func() { _ = closeShared() }()

	run := benchmarkRun{
		rt:       rt,
		cfg:      cfg,
		chain:    chainClient,
		manager:  manager,
		reader:   reader,
		strategy: strategy,
		shared:   shared,
		tokens:   dex.NewTokenCache(),
	}
	var total model.FLAIRResult
	segments := 0
	for _, tokenID := range tokenIDs {
		result, n, err := run.token(tokenID)
		if err != nil {
			return fmt.Errorf("token %s: %w", tokenID, err)
		}
		total.Add(result)
		segments += n
	}
	if err := closeShared(); err != nil {
		return fmt.Errorf("close %s: %w", cfg.Out, err)
	}

	rt.logger.Info("benchmark complete",
		zap.String("strategy", strategy.Name()),
		zap.Int("tokens", len(tokenIDs)),
		zap.Int("segments", segments),
		zap.Float64("flair", total.Flair),
		zap.Float64("fee0", total.Fee0),
		zap.Float64("fee1", total.Fee1),
		zap.Float64("pool_fee0", total.PoolFee0),
		zap.Float64("pool_fee1", total.PoolFee1),
		zap.Int("blocks", total.Blocks),
		zap.Int("approximated_steps", total.ApproximatedSteps),
	)
	return nil
}

// benchmarkRun holds what every token of one benchmark invocation shares.
type benchmarkRun struct {
	rt       *app
	cfg      config.BenchmarkConfig
	chain    *chain.Client
	manager  *dex.PositionManager
	reader   *dex.PoolReader
	strategy feeshare.Strategy
	shared   storage.RowSink
	tokens   *dex.TokenCache
}

// token computes FLAIR over every segment of one position-manager token and
// returns the summed result with the number of segments it covered.
func (b benchmarkRun) token(tokenID *big.Int) (model.FLAIRResult, int, error) {
	ctx := b.rt.ctx
	logger := b.rt.logger.With(zap.String("token_id", tokenID.String()))

	info, err := b.manager.Position(ctx, tokenID)
	if err != nil {
		return model.FLAIRResult{}, 0, err
	}
	poolAddress, err := dex.GetPoolAddress(ctx, b.chain, b.cfg.Factory, info.Token0, info.Token1, info.FeeTier)
	if err != nil {
		return model.FLAIRResult{}, 0, err
	}

	pool, err := b.rt.store.GetPool(ctx, poolAddress)
	if errors.Is(err, model.ErrNotFound) {
		pool, err = dex.FetchPool(ctx, b.chain, poolAddress, b.tokens, logger)
		if err == nil {
			err = b.rt.store.UpsertPools(ctx, []model.Pool{pool})
		}
	}
	if err != nil {
		return model.FLAIRResult{}, 0, fmt.Errorf("pool %s: %w", poolAddress, err)
	}
	logger = logger.With(zap.String("pool", pool.Address))

	history, err := indexer.FetchLiquidityHistory(ctx, b.manager, tokenID, b.cfg.FromBlock, b.cfg.ToBlock, b.cfg.LogBatchSize, retryPolicy(b.cfg.Retry), logger)
	if err != nil {
		return model.FLAIRResult{}, 0, err
	}
	segments, err := position.FromLiquidityHistory(ctx, b.reader, pool, info.TickLower, info.TickUpper, history)
	if err != nil {
		return model.FLAIRResult{}, 0, err
	}
	if len(segments) == 0 {
		logger.Info("no liquidity in range", zap.Uint64("from", b.cfg.FromBlock), zap.Uint64("to", b.cfg.ToBlock))
		return model.FLAIRResult{}, 0, nil
	}

	lastIndexed, err := b.rt.store.LastIndexedBlock(ctx, pool.Address)
	if err != nil {
		return model.FLAIRResult{}, 0, err
	}
	if lastIndexed > b.cfg.ToBlock {
		lastIndexed = b.cfg.ToBlock
	}

	var total model.FLAIRResult
	for i, segment := range segments {
		result, err := computeSegment(b.rt, b.cfg.FLAIR, b.strategy, segment, lastIndexed, b.shared)
		if err != nil {
			return model.FLAIRResult{}, 0, fmt.Errorf("segment %d: %w", i, err)
		}
		total.Add(result)
		logger.Info("segment computed",
			zap.Int("segment", i),
			zap.Uint64("from", segment.Period.FromBlock),
			zap.Stringer("to", segment.Period.ToBlock),
			zap.String("liquidity", segment.Liquidity.String()),
			zap.Float64("flair", result.Flair),
			zap.Float64("fee0", result.Fee0),
			zap.Float64("fee1", result.Fee1),
		)
	}
	logger.Info("token computed",
		zap.Int("segments", len(segments)),
		zap.Float64("flair", total.Flair),
		zap.Float64("fee0", total.Fee0),
		zap.Float64("fee1", total.Fee1),
	)
	return total, len(segments), nil
}

// computeSegment runs the aggregator for one constant-liquidity segment.
// Rows go to shared when set, otherwise to the segment's default path.
func computeSegment(rt *app, cfg config.FLAIR, strategy feeshare.Strategy, segment model.Position, lastIndexed uint64, shared storage.RowSink) (model.FLAIRResult, error) {
	sink := shared
	if sink == nil {
		path := storage.DefaultRowPath(segment.PoolAddress, segment.Period.FromBlock, segment.Period.ToBlock.Clamp(lastIndexed), segment.Liquidity.String())
		var err error
		if sink, err = storage.OpenRowSink(path); err != nil {
			return model.FLAIRResult{}, err
		}
	}

	aggregator := flair.NewAggregator(flair.Config{
		BatchSize:        cfg.BatchSize,
		LastIndexedBlock: lastIndexed,
		BlockInterval:    cfg.BlockInterval,
		OnBlock:          sink.Write,
		Metrics:          rt.metrics,
	}, rt.store, strategy, rt.logger)

	result, err := aggregator.Compute(rt.ctx, segment)
	if shared == nil {
		closeErr := sink.Close()
		if err == nil {
			err = closeErr
		}
	}
	return result, err
}
