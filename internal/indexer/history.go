package indexer

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"flairScope/internal/model"
)

// LiquidityChangeSource lists a position token's liquidity events in an
// inclusive block range. dex.PositionManager implements it.
type LiquidityChangeSource interface {
	LiquidityChanges(ctx context.Context, tokenID *big.Int, fromBlock, toBlock uint64) ([]model.LiquidityChange, error)
}

// FetchLiquidityHistory collects a token's liquidity events over
// [fromBlock, toBlock] in batchSize windows, ordered by block and log index.
func FetchLiquidityHistory(ctx context.Context, source LiquidityChangeSource, tokenID *big.Int, fromBlock, toBlock, batchSize uint64, retry RetryPolicy, logger *zap.Logger) ([]model.LiquidityChange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ranges, err := SplitRange(fromBlock, toBlock, batchSize)
	if err != nil {
		return nil, err
	}

	var history []model.LiquidityChange
	for _, blockRange := range ranges {
		var changes []model.LiquidityChange
		err := retry.Do(ctx, logger, "liquidity log fetch failed", func(ctx context.Context) error {
			var err error
			changes, err = source.LiquidityChanges(ctx, tokenID, blockRange.From, blockRange.To)
			return err
		}, zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", tokenID, err)
		}
		history = append(history, changes...)
	}
	model.SortLiquidityChanges(history)

	logger.Info("liquidity history loaded",
		zap.String("token_id", tokenID.String()),
		zap.Int("events", len(history)),
	)
	return history, nil
}
