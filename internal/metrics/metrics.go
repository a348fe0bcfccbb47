package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ammcore/internal/amm"
)

// Recorder holds the router metrics.
type Recorder struct {
	CallsTotal   *prometheus.CounterVec
	CallLatency  *prometheus.HistogramVec
	SwapVolume   *prometheus.CounterVec
	SwapFees     *prometheus.CounterVec
	PoolsCreated prometheus.Counter
}

// New registers the router metrics on reg. A nil reg uses a private registry,
// which keeps repeated construction in tests from colliding.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Recorder{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "calls_total",
				Help:      "Routed calls by operation and outcome kind",
			},
			[]string{"op", "outcome"},
		),
		CallLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "call_latency_seconds",
				Help:      "Routed call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		SwapVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "swap_volume_total",
				Help:      "Swap input volume in base units",
			},
			[]string{"pool", "token"},
		),
		SwapFees: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "swap_fees_total",
				Help:      "Protocol fees recorded by routed swaps in base units",
			},
			[]string{"pool", "token"},
		),
		PoolsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "router",
				Name:      "pools_created_total",
				Help:      "Pools created through the router",
			},
		),
	}
}

// ObserveCall records the outcome and latency of one routed call.
func (r *Recorder) ObserveCall(op string, started time.Time, err error) {
	if r == nil {
		return
	}
	r.CallsTotal.WithLabelValues(op, amm.KindOf(err)).Inc()
	r.CallLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveSwap records the volume and fee of a settled swap. Amounts beyond
// float64 precision are approximated.
func (r *Recorder) ObserveSwap(pool amm.PoolKey, tokenIn string, amountIn, fee float64) {
	if r == nil {
		return
	}
	r.SwapVolume.WithLabelValues(pool.Hex(), tokenIn).Add(amountIn)
	r.SwapFees.WithLabelValues(pool.Hex(), tokenIn).Add(fee)
}

// ObservePoolCreated counts a new pool.
func (r *Recorder) ObservePoolCreated() {
	if r == nil {
		return
	}
	r.PoolsCreated.Inc()
}
