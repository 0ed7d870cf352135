package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"flairScope/internal/model"
	"flairScope/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store provides Postgres persistence for pools, swaps and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, token0, token1, fee_tier, decimals0, decimals1, tick_spacing, name, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee_tier = EXCLUDED.fee_tier,
				decimals0 = EXCLUDED.decimals0,
				decimals1 = EXCLUDED.decimals1,
				tick_spacing = EXCLUDED.tick_spacing,
				name = EXCLUDED.name,
				updated_at = now()
		`,
			model.AddressKey(pool.Address),
			model.AddressKey(pool.Token0),
			model.AddressKey(pool.Token1),
			int64(pool.FeeTier),
			int16(pool.Decimals0),
			int16(pool.Decimals1),
			pool.TickSpacing,
			pool.Name,
		)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) GetPool(ctx context.Context, address string) (model.Pool, error) {
	var (
		pool      model.Pool
		feeTier   int64
		decimals0 int16
		decimals1 int16
	)
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, token0, token1, fee_tier, decimals0, decimals1, tick_spacing, name
		FROM pools WHERE pool_address = $1
	`, model.AddressKey(address))
	err := row.Scan(&pool.Address, &pool.Token0, &pool.Token1, &feeTier, &decimals0, &decimals1, &pool.TickSpacing, &pool.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("pool %s: %w", address, model.ErrNotFound)
		}
		return model.Pool{}, err
	}
	pool.FeeTier = uint32(feeTier)
	pool.Decimals0 = uint8(decimals0)
	pool.Decimals1 = uint8(decimals1)
	return pool, nil
}

// UpsertSwaps stores swaps keyed by (pool, block, tx, log index).
func (s *Store) UpsertSwaps(ctx context.Context, swaps []model.SwapEvent) error {
	if len(swaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, swap := range swaps {
		batch.Queue(`
			INSERT INTO swaps (pool_address, block_number, tx_hash, log_index, tick, amount0, amount1)
			VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7::text::numeric)
			ON CONFLICT (pool_address, block_number, tx_hash, log_index)
			DO UPDATE SET
				tick = EXCLUDED.tick,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1
		`,
			model.AddressKey(swap.PoolAddress),
			int64(swap.BlockNumber),
			swap.TxHash,
			int64(swap.LogIndex),
			swap.Tick,
			swap.Amount0.String(),
			swap.Amount1.String(),
		)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) GetSwapsInRange(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.SwapEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, block_number, tx_hash, log_index, tick, amount0::text, amount1::text
		FROM swaps
		WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number, log_index
	`, model.AddressKey(pool), int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SwapEvent
	for rows.Next() {
		var (
			swap             model.SwapEvent
			block, logIndex  int64
			amount0, amount1 string
		)
		if err := rows.Scan(&swap.PoolAddress, &block, &swap.TxHash, &logIndex, &swap.Tick, &amount0, &amount1); err != nil {
			return nil, err
		}
		swap.BlockNumber = uint64(block)
		swap.LogIndex = uint64(logIndex)
		if swap.Amount0, err = decimal.NewFromString(amount0); err != nil {
			return nil, fmt.Errorf("swap amount0 at block %d: %w", block, err)
		}
		if swap.Amount1, err = decimal.NewFromString(amount1); err != nil {
			return nil, fmt.Errorf("swap amount1 at block %d: %w", block, err)
		}
		out = append(out, swap)
	}
	return out, rows.Err()
}

// UpsertPoolStates stores one snapshot per (pool, block).
func (s *Store) UpsertPoolStates(ctx context.Context, states []model.PoolState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range states {
		batch.Queue(`
			INSERT INTO pool_states (
				pool_address, block_number, tick, sqrt_price_x96, liquidity,
				token0_price, token1_price, fees_token0, fees_token1, tvl_token0, tvl_token1
			) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (pool_address, block_number)
			DO UPDATE SET
				tick = EXCLUDED.tick,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				liquidity = EXCLUDED.liquidity,
				token0_price = EXCLUDED.token0_price,
				token1_price = EXCLUDED.token1_price,
				fees_token0 = EXCLUDED.fees_token0,
				fees_token1 = EXCLUDED.fees_token1,
				tvl_token0 = EXCLUDED.tvl_token0,
				tvl_token1 = EXCLUDED.tvl_token1
		`,
			model.AddressKey(st.PoolAddress),
			int64(st.BlockNumber),
			st.Tick,
			bigString(st.SqrtPriceX96),
			bigString(st.Liquidity),
			st.Token0Price,
			st.Token1Price,
			st.FeesToken0,
			st.FeesToken1,
			st.TVLToken0,
			st.TVLToken1,
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertTickSnapshots replaces the tick rows of every (pool, block) given.
func (s *Store) UpsertTickSnapshots(ctx context.Context, snapshots []model.TickSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		pool := model.AddressKey(snap.PoolAddress)
		batch.Queue(`DELETE FROM tick_snapshots WHERE pool_address = $1 AND block_number = $2`, pool, int64(snap.BlockNumber))
		for _, t := range snap.Ticks {
			batch.Queue(`
				INSERT INTO tick_snapshots (
					pool_address, block_number, tick_idx, liquidity_gross, liquidity_net, liquidity_active
				) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric)
			`,
				pool,
				int64(snap.BlockNumber),
				t.TickIdx,
				bigString(t.LiquidityGross),
				bigString(t.LiquidityNet),
				bigString(t.LiquidityActive),
			)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetPoolStateBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) ([]model.PoolState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, block_number, tick, sqrt_price_x96::text, liquidity::text,
			token0_price, token1_price, fees_token0, fees_token1, tvl_token0, tvl_token1
		FROM pool_states
		WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number
	`, model.AddressKey(pool), int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PoolState
	for rows.Next() {
		var (
			st                   model.PoolState
			block                int64
			sqrtPrice, liquidity string
		)
		if err := rows.Scan(&st.PoolAddress, &block, &st.Tick, &sqrtPrice, &liquidity,
			&st.Token0Price, &st.Token1Price, &st.FeesToken0, &st.FeesToken1,
			&st.TVLToken0, &st.TVLToken1); err != nil {
			return nil, err
		}
		st.BlockNumber = uint64(block)
		if st.SqrtPriceX96, err = parseBig(sqrtPrice); err != nil {
			return nil, fmt.Errorf("pool state %d sqrt price: %w", block, err)
		}
		if st.Liquidity, err = parseBig(liquidity); err != nil {
			return nil, fmt.Errorf("pool state %d liquidity: %w", block, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetTicksBatch(ctx context.Context, pool string, fromBlock, toBlock uint64) (map[uint64][]model.ProcessedTick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, tick_idx, liquidity_gross::text, liquidity_net::text, liquidity_active::text
		FROM tick_snapshots
		WHERE pool_address = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number, tick_idx
	`, model.AddressKey(pool), int64(fromBlock), int64(toBlock))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]model.ProcessedTick)
	for rows.Next() {
		var (
			block              int64
			idx                int32
			gross, net, active string
		)
		if err := rows.Scan(&block, &idx, &gross, &net, &active); err != nil {
			return nil, err
		}
		t := model.ProcessedTick{Tick: model.Tick{TickIdx: idx}}
		if t.LiquidityGross, err = parseBig(gross); err != nil {
			return nil, fmt.Errorf("tick %d at %d: %w", idx, block, err)
		}
		if t.LiquidityNet, err = parseBig(net); err != nil {
			return nil, fmt.Errorf("tick %d at %d: %w", idx, block, err)
		}
		if t.LiquidityActive, err = parseBig(active); err != nil {
			return nil, fmt.Errorf("tick %d at %d: %w", idx, block, err)
		}
		out[uint64(block)] = append(out[uint64(block)], t)
	}
	return out, rows.Err()
}

// LastIndexedBlock returns the newest snapshot block of pool, 0 when none.
func (s *Store) LastIndexedBlock(ctx context.Context, pool string) (uint64, error) {
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(block_number), 0) FROM pool_states WHERE pool_address = $1`, model.AddressKey(pool))
	if err := row.Scan(&block); err != nil {
		return 0, err
	}
	return uint64(block), nil
}

// PoolTickAt returns the tick of the newest snapshot at or before block.
func (s *Store) PoolTickAt(ctx context.Context, pool string, block uint64) (int32, error) {
	var tick int32
	row := s.pool.QueryRow(ctx, `
		SELECT tick FROM pool_states
		WHERE pool_address = $1 AND block_number <= $2
		ORDER BY block_number DESC LIMIT 1
	`, model.AddressKey(pool), int64(block))
	if err := row.Scan(&tick); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("pool %s tick at %d: %w", pool, block, model.ErrNotFound)
		}
		return 0, err
	}
	return tick, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
