package storage

import (
	"context"

	"flairScope/internal/model"
)

// Store persists pools, swaps and per-block snapshots and serves them back
// to the FLAIR aggregator. Addresses are compared lowercase.
type Store interface {
	Migrate(ctx context.Context) error
	Close() error

	UpsertPools(ctx context.Context, pools []model.Pool) error
	GetPool(ctx context.Context, address string) (model.Pool, error)

	UpsertSwaps(ctx context.Context, swaps []model.SwapEvent) error
	GetSwapsInRange(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.SwapEvent, error)

	UpsertPoolStates(ctx context.Context, states []model.PoolState) error
	UpsertTickSnapshots(ctx context.Context, snapshots []model.TickSnapshot) error
	GetPoolStateBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.PoolState, error)
	GetTicksBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) (map[uint64][]model.ProcessedTick, error)
	LastIndexedBlock(ctx context.Context, pool string) (uint64, error)
	PoolTickAt(ctx context.Context, pool string, block uint64) (int32, error)

	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}
