package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flairScope/internal/config"
	"flairScope/internal/feeshare"
	"flairScope/internal/flair"
	"flairScope/internal/model"
	"flairScope/internal/position"
	"flairScope/internal/storage"
)

func addFLAIRFlags(cmd *cobra.Command) {
	cmd.Flags().String("strategy", feeshare.NameExact, "fee-share strategy (exact, estimate)")
	cmd.Flags().Int("batch-size", flair.DefaultBatchSize, "dirty blocks loaded per snapshot fetch")
	cmd.Flags().Duration("block-interval", flair.DefaultBlockInterval, "time credited per in-range block")
	cmd.Flags().String("out", "", "row export path (.csv or .jsonl); empty uses csv/flair/<pool>/...")
}

func newComputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute FLAIR for a synthetic position over indexed snapshots",
		RunE:  runCompute,
	}
	addCommonFlags(cmd.Flags())
	addFLAIRFlags(cmd)
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("from", 0, "first block of the position")
	cmd.Flags().Uint64("to", 0, "last block of the position, 0 means up to the last snapshot")
	cmd.Flags().String("mode", config.ModeInRange, "position shape (in-range, out-of-range)")
	cmd.Flags().String("amount", "", "deposit amount in human units")
	cmd.Flags().Bool("token1", false, "fund an in-range position with token1 instead of token0")
	cmd.Flags().Int32("lower-range", 1, "in-range: buckets below the active bucket")
	cmd.Flags().Int32("upper-range", 1, "in-range: buckets above the active bucket")
	cmd.Flags().Int32("range-width", 1, "out-of-range: width in buckets")
	cmd.Flags().Int32("out-range", 1, "out-of-range: bucket offset, positive above the price")
	return cmd
}

func runCompute(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadCompute(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	rt, err := newApp(cfg.Common)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := rt.ctx

	pool, err := rt.store.GetPool(ctx, cfg.Pool)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("pool %s is not initialized, run `flair pool` first: %w", cfg.Pool, err)
	}
	if err != nil {
		return err
	}

	period := model.Period{FromBlock: cfg.FromBlock, ToBlock: model.Unbounded()}
	if cfg.ToBlock != 0 {
		period.ToBlock = model.UpTo(cfg.ToBlock)
	}

	var pos model.Position
	switch cfg.Mode {
	case config.ModeOutOfRange:
		pos, err = position.StartOutOfRange(ctx, rt.store, period, pool, cfg.RangeWidth, cfg.OutRange, cfg.Amount)
	default:
		pos, err = position.StartInRange(ctx, rt.store, period, pool, cfg.LowerRange, cfg.UpperRange, cfg.Amount, cfg.UseToken1)
	}
	if err != nil {
		return fmt.Errorf("build position: %w", err)
	}

	strategy, err := feeshare.ByName(cfg.Strategy, rt.logger, rt.metrics)
	if err != nil {
		return err
	}

	lastIndexed, err := rt.store.LastIndexedBlock(ctx, pool.Address)
	if err != nil {
		return err
	}
	out := cfg.Out
	if out == "" {
		out = storage.DefaultRowPath(pool.Address, period.FromBlock, period.ToBlock.Clamp(lastIndexed), pos.Liquidity.String())
	}
	sink, err := storage.OpenRowSink(out)
	if err != nil {
		return err
	}

	aggregator := flair.NewAggregator(flair.Config{
		BatchSize:        cfg.BatchSize,
		LastIndexedBlock: lastIndexed,
		BlockInterval:    cfg.BlockInterval,
		OnBlock:          sink.Write,
		Metrics:          rt.metrics,
	}, rt.store, strategy, rt.logger)

	result, err := aggregator.Compute(ctx, pos)
	closeErr := sink.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", out, closeErr)
	}

	rt.logger.Info("flair computed",
		zap.String("pool", pool.Address),
		zap.String("strategy", strategy.Name()),
		zap.Int32("lower_tick", pos.LowerTick),
		zap.Int32("upper_tick", pos.UpperTick),
		zap.String("liquidity", pos.Liquidity.String()),
		zap.String("amount0", pos.Amount0.String()),
		zap.String("amount1", pos.Amount1.String()),
		zap.Float64("flair", result.Flair),
		zap.Float64("fee0", result.Fee0),
		zap.Float64("fee1", result.Fee1),
		zap.Int("blocks", result.Blocks),
		zap.Int("approximated_steps", result.ApproximatedSteps),
		zap.String("out", out),
	)
	return nil
}
