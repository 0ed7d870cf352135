package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flairScope/internal/chain"
	"flairScope/internal/config"
	"flairScope/internal/indexer"
	"flairScope/internal/model"
	"flairScope/internal/storage"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Stream a pool's Swap logs into the store",
		RunE:  runIndex,
	}
	addCommonFlags(cmd.Flags())
	addRetryFlags(cmd.Flags())
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("pool", "", "pool address (run `flair pool` first)")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs call")
	cmd.Flags().Bool("resume", true, "continue after the last checkpoint")
	cmd.Flags().String("state-file", "", "checkpoint file; empty keeps checkpoints in the store")
	cmd.Flags().String("archive", "", "optional JSONL file receiving every decoded swap")
	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadIndex(configFile(cmd), cmd.Flags())
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

	var archive indexer.Archive
	if cfg.Archive != "" {
		archive = storage.NewJSONLFile[model.SwapEvent](cfg.Archive)
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock: cfg.FromBlock,
		ToBlock:   cfg.ToBlock,
		BatchSize: cfg.BatchSize,
		Retry:     retryPolicy(cfg.Retry),
		Resume:    cfg.Resume,
	}, pool, chainClient, rt.store, stateStore(cfg.StateFile, rt.store), archive, rt.metrics, rt.logger)
	if err != nil {
		return err
	}

	rt.logger.Info("indexer start",
		zap.String("pool", pool.Address),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("archive", cfg.Archive),
	)
	stored, err := runner.Run(rt.ctx)
	if err != nil {
		return err
	}
	rt.logger.Info("indexer complete", zap.Int("swaps", stored))
	return nil
}
