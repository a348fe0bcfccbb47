package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"ammcore/internal/amm"
)

func TestObserveCallLabelsOutcomeByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.ObserveCall("swap", time.Now(), nil)
	rec.ObserveCall("swap", time.Now(), fmt.Errorf("swap: %w", amm.ErrSlippageExceeded))
	rec.ObserveCall("swap", time.Now(), fmt.Errorf("swap: %w", amm.ErrSlippageExceeded))
	rec.ObserveCall("swap", time.Now(), errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(rec.CallsTotal.WithLabelValues("swap", "ok")))
	require.Equal(t, 2.0, testutil.ToFloat64(rec.CallsTotal.WithLabelValues("swap", "slippage_exceeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(rec.CallsTotal.WithLabelValues("swap", "unknown")))
	require.Equal(t, 1, testutil.CollectAndCount(rec.CallLatency))
}

func TestObserveSwapAccumulates(t *testing.T) {
	rec := New(nil)
	key := amm.PoolKey{1}

	rec.ObserveSwap(key, "0xabc", 100, 0.3)
	rec.ObserveSwap(key, "0xabc", 50, 0.15)
	rec.ObservePoolCreated()

	require.InDelta(t, 150.0, testutil.ToFloat64(rec.SwapVolume.WithLabelValues(key.Hex(), "0xabc")), 1e-9)
	require.InDelta(t, 0.45, testutil.ToFloat64(rec.SwapFees.WithLabelValues(key.Hex(), "0xabc")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(rec.PoolsCreated))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	rec.ObserveCall("swap", time.Now(), nil)
	rec.ObserveSwap(amm.PoolKey{}, "0x0", 1, 1)
	rec.ObservePoolCreated()
}
