package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammcore/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pools (
		chain_id BIGINT NOT NULL,
		pool_key TEXT NOT NULL,
		manager TEXT NOT NULL,
		token0 TEXT NOT NULL,
		token1 TEXT NOT NULL,
		fee_tier INTEGER NOT NULL,
		first_seen_block BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, pool_key)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_window_metrics (
		chain_id BIGINT NOT NULL,
		pool_key TEXT NOT NULL,
		window_size_seconds BIGINT NOT NULL,
		window_start_ts TIMESTAMPTZ NOT NULL,
		window_end_ts TIMESTAMPTZ NOT NULL,
		swap_count BIGINT NOT NULL,
		liquidity_count BIGINT NOT NULL,
		volume0 NUMERIC NOT NULL,
		volume1 NUMERIC NOT NULL,
		fee0 NUMERIC NOT NULL,
		fee1 NUMERIC NOT NULL,
		fee_rate0 NUMERIC,
		fee_rate1 NUMERIC,
		tvl0 NUMERIC,
		tvl1 NUMERIC,
		apr NUMERIC,
		fee_method TEXT NOT NULL,
		tvl_method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, pool_key, window_size_seconds, window_start_ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pool_window_metrics_start ON pool_window_metrics(window_start_ts DESC)`,
	`CREATE TABLE IF NOT EXISTS aggregator_state (
		name TEXT PRIMARY KEY,
		last_processed_block BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Store provides Postgres persistence for pool metrics.
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

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables the aggregator writes to.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// UpsertPools inserts or updates pool registry records.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_key, manager, token0, token1, fee_tier, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_key)
			DO UPDATE SET
				manager = EXCLUDED.manager,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.PoolKey,
			pool.Manager,
			pool.Token0,
			pool.Token1,
			int32(pool.FeeTier),
			int64(pool.FirstSeenBlock),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_key, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, liquidity_count, volume0, volume1, fee0, fee1, fee_rate0, fee_rate1,
				tvl0, tvl1, apr, fee_method, tvl_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			ON CONFLICT (chain_id, pool_key, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				liquidity_count = EXCLUDED.liquidity_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				tvl0 = EXCLUDED.tvl0,
				tvl1 = EXCLUDED.tvl1,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				tvl_method = EXCLUDED.tvl_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolKey,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.LiquidityCount),
			m.Volume0,
			m.Volume1,
			m.Fee0,
			m.Fee1,
			m.FeeRate0,
			m.FeeRate1,
			m.TVL0,
			m.TVL1,
			m.APR,
			m.FeeMethod,
			m.TVLMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadProgress returns the last processed block recorded under name.
func (s *Store) LoadProgress(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM aggregator_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveProgress upserts the last processed block for name.
func (s *Store) SaveProgress(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregator_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
