package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flairScope/internal/chain"
	"flairScope/internal/config"
	"flairScope/internal/dex"
	"flairScope/internal/indexer"
	"flairScope/internal/model"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Store pool state and active-liquidity ticks for every block with a swap",
		Long: "Reads slot0, liquidity and ticks(i) at each block that holds an indexed swap.\n" +
			"Historical reads need an archive RPC node.",
		RunE: runSnapshot,
	}
	addCommonFlags(cmd.Flags())
	addRetryFlags(cmd.Flags())
	cmd.Flags().String("rpc", "", "archive RPC URL")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive)")
	cmd.Flags().Int32("lower-range", 2, "tick-spacing buckets kept below the swapped range")
	cmd.Flags().Int32("upper-range", 2, "tick-spacing buckets kept above the swapped range")
	cmd.Flags().Int("concurrency", 8, "blocks fetched in parallel")
	cmd.Flags().Int("batch-size", 200, "blocks persisted per batch")
	cmd.Flags().Bool("resume", true, "skip blocks up to the last checkpoint")
	cmd.Flags().String("state-file", "", "checkpoint file; empty keeps checkpoints in the store")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSnapshot(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	rt, err := newApp(cfg.Common)
	if err != nil {
		return err
	}
	defer rt.close()

	pool, err := rt.store.GetPool(rt.ctx, cfg.Pool)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("pool %s is not initialized, run `flair pool` first: %w", cfg.Pool, err)
	}
	if err != nil {
		return err
	}

	chainClient, err := chain.NewClient(rt.ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reader, err := dex.NewPoolReader(chainClient)
	if err != nil {
		return err
	}

	collector, err := indexer.NewCollector(indexer.SnapshotConfig{
		FromBlock:   cfg.FromBlock,
		ToBlock:     cfg.ToBlock,
		LowerRange:  cfg.LowerRange,
		UpperRange:  cfg.UpperRange,
		Concurrency: cfg.Concurrency,
		BatchSize:   cfg.BatchSize,
		Retry:       retryPolicy(cfg.Retry),
		Resume:      cfg.Resume,
	}, pool, rt.store, reader, rt.store, stateStore(cfg.StateFile, rt.store), rt.metrics, rt.logger)
	if err != nil {
		return err
	}

	stored, err := collector.Run(rt.ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("snapshots complete", zap.String("pool", pool.Address), zap.Int("blocks", stored))
	return nil
}
