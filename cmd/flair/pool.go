package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flairScope/internal/chain"
	"flairScope/internal/config"
	"flairScope/internal/dex"
	"flairScope/internal/model"
)

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Read a pool's tokens, fee tier and tick spacing from chain and store them",
		RunE:  runPool,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("pool", "", "pool address")
	return cmd
}

func runPool(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadPool(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	rt, err := newApp(cfg.Common)
	if err != nil {
		return err
	}
	defer rt.close()

	chainClient, err := chain.NewClient(rt.ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(rt.ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	ok, err := chainClient.HasCode(rt.ctx, cfg.Pool, 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pool %s: no contract code on chain %s", cfg.Pool, chainID)
	}

	pool, err := dex.FetchPool(rt.ctx, chainClient, cfg.Pool, dex.NewTokenCache(), rt.logger)
	if err != nil {
		return fmt.Errorf("fetch pool %s: %w", cfg.Pool, err)
	}
	if err := rt.store.UpsertPools(rt.ctx, []model.Pool{pool}); err != nil {
		return err
	}

	rt.logger.Info("pool stored",
		zap.String("pool", pool.Address),
		zap.Stringer("chain_id", chainID),
		zap.String("name", pool.Name),
		zap.Uint32("fee_tier", pool.FeeTier),
		zap.Int32("tick_spacing", pool.TickSpacing),
		zap.Uint8("decimals0", pool.Decimals0),
		zap.Uint8("decimals1", pool.Decimals1),
	)
	return nil
}
