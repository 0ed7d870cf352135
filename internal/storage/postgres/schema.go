package postgres

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pools (
		pool_address TEXT PRIMARY KEY,
		token0 TEXT NOT NULL,
		token1 TEXT NOT NULL,
		fee_tier BIGINT NOT NULL,
		decimals0 SMALLINT NOT NULL,
		decimals1 SMALLINT NOT NULL,
		tick_spacing INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS swaps (
		pool_address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		tick INTEGER NOT NULL,
		amount0 NUMERIC NOT NULL,
		amount1 NUMERIC NOT NULL,
		PRIMARY KEY (pool_address, block_number, tx_hash, log_index)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_states (
		pool_address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tick INTEGER NOT NULL,
		sqrt_price_x96 NUMERIC(78, 0) NOT NULL,
		liquidity NUMERIC(78, 0) NOT NULL,
		token0_price DOUBLE PRECISION NOT NULL,
		token1_price DOUBLE PRECISION NOT NULL,
		fees_token0 DOUBLE PRECISION NOT NULL,
		fees_token1 DOUBLE PRECISION NOT NULL,
		tvl_token0 DOUBLE PRECISION NOT NULL DEFAULT 0,
		tvl_token1 DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (pool_address, block_number)
	)`,
	`ALTER TABLE pool_states ADD COLUMN IF NOT EXISTS tvl_token0 DOUBLE PRECISION NOT NULL DEFAULT 0`,
	`ALTER TABLE pool_states ADD COLUMN IF NOT EXISTS tvl_token1 DOUBLE PRECISION NOT NULL DEFAULT 0`,
	`CREATE TABLE IF NOT EXISTS tick_snapshots (
		pool_address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tick_idx INTEGER NOT NULL,
		liquidity_gross NUMERIC(78, 0) NOT NULL,
		liquidity_net NUMERIC(78, 0) NOT NULL,
		liquidity_active NUMERIC(78, 0) NOT NULL,
		PRIMARY KEY (pool_address, block_number, tick_idx)
	)`,
	`CREATE TABLE IF NOT EXISTS indexer_state (
		name TEXT PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
