package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ammcore/internal/model"
	"ammcore/internal/storage"
)

const (
	feeMethodExact     = "exact_from_event"
	tvlMethodReserves  = "event_reserves"
	tvlMethodNone      = "unavailable"
	defaultBatchSize   = 1000
	defaultRetryBudget = 3
)

// Store is the sink for aggregated pools and window metrics.
type Store interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom restarts aggregation at this block, ignoring saved progress.
	RecomputeFrom uint64
	StateStore    StateStore
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Aggregator folds typed pool events into per-pool window metrics.
type Aggregator struct {
	cfg          Config
	store        Store
	decimals     DecimalsSource
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
	lastBlock    uint64
}

// NewAggregator builds an aggregator. A nil decimals source formats amounts
// in base units.
func NewAggregator(cfg Config, store Store, decimals DecimalsSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultRetryBudget
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		decimals:     decimals,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run aggregates a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}

	startBlock, err := a.loadStartBlock(ctx)
	if err != nil {
		return err
	}
	a.lastBlock = startBlock

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 64)
	var total, flushed, skipped, failed int

	flush := func(acc *Accumulator) {
		metrics, pool := a.flushAccumulator(ctx, acc)
		if metrics != nil {
			batch = append(batch, *metrics)
			flushed++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}

	err = storage.ScanJSONL(inputPath, func(line []byte) error {
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}
		if record.BlockNumber <= startBlock || !record.IsPoolEvent() {
			skipped++
			return nil
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		end := start + a.cfg.WindowSeconds

		key := strings.ToLower(record.PoolKey)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			flush(acc)
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, start, end)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.PoolKey), zap.String("event", record.EventName))
			return nil
		}
		if record.BlockNumber > a.lastBlock {
			a.lastBlock = record.BlockNumber
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return err
			}
			batch = batch[:0]
			pools = pools[:0]
			return a.saveState(ctx)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		flush(acc)
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flushBatches(ctx, batch, pools); err != nil {
		return err
	}
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", flushed),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("last_block", a.lastBlock),
	)
	return nil
}

func (a *Aggregator) loadStartBlock(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the highest block below every still-open window, so a
// restart re-reads the events of windows that were not yet written.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	safe := a.lastBlock
	for _, acc := range a.accumulators {
		if acc != nil && acc.FirstBlock > 0 && acc.FirstBlock-1 < safe {
			safe = acc.FirstBlock - 1
		}
	}
	return withRetry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, a.logger, "save state", func(ctx context.Context) error {
		return a.cfg.StateStore.Save(ctx, safe)
	})
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		err := withRetry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, a.logger, "upsert pools", func(ctx context.Context) error {
			return a.store.UpsertPools(ctx, pools)
		})
		if err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		err := withRetry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, a.logger, "upsert window metrics", func(ctx context.Context) error {
			return a.store.UpsertWindowMetrics(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}
	meta := acc.PoolMeta
	if meta.Token0 == "" || meta.Token1 == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolKey))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)
	decimals0 := a.tokenDecimals(ctx, meta.Token0)
	decimals1 := a.tokenDecimals(ctx, meta.Token1)

	tvlMethod := tvlMethodNone
	var tvl0, tvl1 *string
	if acc.Reserve0 != nil && acc.Reserve1 != nil {
		tvlMethod = tvlMethodReserves
		v0 := formatTokenAmount(acc.Reserve0, decimals0)
		v1 := formatTokenAmount(acc.Reserve1, decimals1)
		tvl0, tvl1 = &v0, &v1
	}

	feeRate0, feeRate1 := computeFeeRates(acc.Fee0, acc.Fee1, acc.Reserve0, acc.Reserve1)
	apr := computeAPR(acc.Fee0, acc.Fee1, acc.Reserve0, acc.Reserve1, a.cfg.WindowSeconds)

	return &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolKey:        acc.PoolKey,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		LiquidityCount: acc.LiquidityCount,
		Volume0:        formatTokenAmount(acc.Volume0, decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		TVL0:           tvl0,
		TVL1:           tvl1,
		APR:            apr,
		FeeMethod:      feeMethodExact,
		TVLMethod:      tvlMethod,
	}, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := strings.ToLower(acc.PoolKey)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		PoolKey:        acc.PoolKey,
		Manager:        acc.Manager,
		Token0:         acc.PoolMeta.Token0,
		Token1:         acc.PoolMeta.Token1,
		FeeTier:        acc.PoolMeta.FeeTier,
		FirstSeenBlock: acc.FirstBlock,
	}

	if existing, ok := a.poolSeen[key]; ok && existing.FirstSeenBlock <= pool.FirstSeenBlock {
		return nil
	}
	a.poolSeen[key] = pool
	return &pool
}

func (a *Aggregator) tokenDecimals(ctx context.Context, token string) uint8 {
	if a.decimals == nil {
		return 0
	}
	decimals, err := a.decimals.Decimals(ctx, token)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", token), zap.Error(err))
		return 0
	}
	return decimals
}
