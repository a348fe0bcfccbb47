package aggregate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ammcore/internal/model"
	"ammcore/internal/storage"
)

const (
	testPool   = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	testToken0 = "0x1000000000000000000000000000000000000001"
	testToken1 = "0x2000000000000000000000000000000000000002"
)

type memoryStore struct {
	pools      []model.Pool
	metrics    []model.PoolWindowMetrics
	failWrites int
}

func (m *memoryStore) UpsertPools(ctx context.Context, pools []model.Pool) error {
	m.pools = append(m.pools, pools...)
	return nil
}

func (m *memoryStore) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if m.failWrites > 0 {
		m.failWrites--
		return errors.New("connection reset")
	}
	m.metrics = append(m.metrics, metrics...)
	return nil
}

type staticDecimals map[string]uint8

func (s staticDecimals) Decimals(ctx context.Context, token string) (uint8, error) {
	d, ok := s[token]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return d, nil
}

func poolEvent(block, ts uint64, name string, decoded interface{}, reserve0, reserve1 string) model.TypedEvent {
	return model.TypedEvent{
		ChainID:     31337,
		BlockNumber: block,
		Address:     "0x5000000000000000000000000000000000000005",
		EventName:   name,
		Timestamp:   ts,
		PoolKey:     testPool,
		Decoded:     decoded,
		PoolMeta: &model.PoolMeta{
			Token0: testToken0, Token1: testToken1, FeeTier: 3000,
			Reserve0: reserve0, Reserve1: reserve1,
		},
	}
}

func swapEvent(block, ts uint64, tokenIn, amountIn, fee, reserve0, reserve1 string) model.TypedEvent {
	return poolEvent(block, ts, "Swap", model.SwapEventData{
		PoolKey: testPool, TokenIn: tokenIn, AmountIn: amountIn, AmountOut: "1", Fee: fee,
		Reserve0: reserve0, Reserve1: reserve1,
	}, reserve0, reserve1)
}

func writeEvents(t *testing.T, events ...model.TypedEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	w, err := storage.NewJSONLWriter(path, false)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestAggregatorWindowsAndExactFees(t *testing.T) {
	input := writeEvents(t,
		poolEvent(2, 60, "PoolCreated", model.PoolCreatedEventData{PoolKey: testPool}, "", ""),
		poolEvent(3, 61, "LiquidityAdded", model.LiquidityEventData{PoolKey: testPool}, "100000", "100000"),
		swapEvent(4, 100, testToken0, "1000", "3", "101000", "99013"),
		swapEvent(5, 110, testToken1, "500", "2", "100496", "99513"),
		swapEvent(6, 400, testToken0, "2000", "6", "102496", "97573"),
		model.TypedEvent{ChainID: 31337, BlockNumber: 7, EventName: "Paused", Timestamp: 401},
	)

	store := &memoryStore{}
	statePath := filepath.Join(t.TempDir(), "state.json")
	agg := NewAggregator(Config{
		WindowSeconds: 300,
		StateStore:    &FileStateStore{Path: statePath},
	}, store, nil, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.pools) != 1 || store.pools[0].FirstSeenBlock != 2 || store.pools[0].FeeTier != 3000 {
		t.Fatalf("unexpected pools: %+v", store.pools)
	}
	if len(store.metrics) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(store.metrics))
	}
	first := store.metrics[0]
	if !first.WindowStart.Equal(time.Unix(0, 0).UTC()) {
		first, store.metrics[1] = store.metrics[1], first
	}
	if first.SwapCount != 2 || first.LiquidityCount != 1 {
		t.Fatalf("counts: %+v", first)
	}
	if first.Volume0 != "1000" || first.Volume1 != "500" || first.Fee0 != "3" || first.Fee1 != "2" {
		t.Fatalf("volume/fees: %+v", first)
	}
	if first.TVL0 == nil || *first.TVL0 != "100496" || first.TVLMethod != tvlMethodReserves {
		t.Fatalf("tvl: %+v", first)
	}
	if first.APR == nil || first.FeeMethod != feeMethodExact {
		t.Fatalf("apr missing: %+v", first)
	}

	second := store.metrics[1]
	if second.SwapCount != 1 || second.Volume1 != "0" || second.FeeRate1 != nil && *second.FeeRate1 != "0.000000000000000000" {
		t.Fatalf("second window: %+v", second)
	}

	last, ok, err := (&FileStateStore{Path: statePath}).Load(context.Background())
	if err != nil || !ok || last != 6 {
		t.Fatalf("state = %d ok=%v err=%v", last, ok, err)
	}

	rerun := NewAggregator(Config{WindowSeconds: 300, StateStore: &FileStateStore{Path: statePath}}, &memoryStore{}, nil, nil)
	if err := rerun.Run(context.Background(), input); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if n := len(rerun.store.(*memoryStore).metrics); n != 0 {
		t.Fatalf("rerun re-aggregated %d windows", n)
	}
}

func TestAggregatorFormatsWithDecimals(t *testing.T) {
	input := writeEvents(t,
		swapEvent(4, 100, testToken0, "1500000", "4500", "101500000", "99000"),
	)
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 60}, store, staticDecimals{testToken0: 6}, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}
	m := store.metrics[0]
	if m.Volume0 != "1.500000" || m.Fee0 != "0.004500" {
		t.Fatalf("decimals not applied: %+v", m)
	}
	if m.Volume1 != "0" || *m.TVL1 != "99000" {
		t.Fatalf("unknown token should stay in base units: %+v", m)
	}
	if m.APR == nil || m.FeeRate1 == nil || *m.FeeRate1 != "0.000000000000000000" {
		t.Fatalf("one-sided fees still yield a pool apr: %+v", m)
	}
}

func TestAggregatorRetriesStoreWrites(t *testing.T) {
	input := writeEvents(t, swapEvent(4, 100, testToken0, "10", "1", "110", "91"))
	store := &memoryStore{failWrites: 2}
	agg := NewAggregator(Config{WindowSeconds: 60, MaxRetries: 2, RetryBackoff: time.Millisecond}, store, nil, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.metrics) != 1 {
		t.Fatalf("expected write after retries")
	}

	store = &memoryStore{failWrites: 5}
	agg = NewAggregator(Config{WindowSeconds: 60, MaxRetries: 1, RetryBackoff: time.Millisecond}, store, nil, nil)
	if err := agg.Run(context.Background(), input); err == nil {
		t.Fatalf("expected error once retries are exhausted")
	}
}

func TestAccumulatorRejectsForeignToken(t *testing.T) {
	input := writeEvents(t, swapEvent(4, 100, "0x3000000000000000000000000000000000000003", "10", "1", "1", "1"))
	store := &memoryStore{}
	agg := NewAggregator(Config{WindowSeconds: 60}, store, nil, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.metrics) != 1 || store.metrics[0].SwapCount != 0 {
		t.Fatalf("foreign token swap should be dropped: %+v", store.metrics)
	}
}

func TestComputeAPR(t *testing.T) {
	// 1% yield per side over one day.
	apr := computeAPR(bigInt(1), bigInt(2), bigInt(100), bigInt(200), 86400)
	if apr == nil || *apr != "3.650000000000000000" {
		t.Fatalf("apr = %v", apr)
	}
	if computeAPR(bigInt(1), bigInt(1), bigInt(0), bigInt(1), 86400) != nil {
		t.Fatalf("zero reserve should yield no apr")
	}
}
