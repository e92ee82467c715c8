// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values of amm_swaps_total.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds the swap engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	swaps         *prometheus.CounterVec
	volumeIn      *prometheus.CounterVec
	duration      prometheus.Histogram
	poolLiquidity *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		swaps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_swaps_total",
				Help: "Total number of swap attempts by result and error code",
			},
			[]string{"result", "code"},
		),
		volumeIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "amm_swap_volume_in_total",
				Help: "Input token amount of executed swaps",
			},
			[]string{"pool", "side"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "amm_swap_duration_seconds",
				Help:    "Duration of one swap unit of work",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		poolLiquidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "amm_pool_reserve",
				Help: "Vault balance observed after the last swap",
			},
			[]string{"pool", "side"},
		),
	}
	reg.MustRegister(m.swaps, m.volumeIn, m.duration, m.poolLiquidity)
	return m
}

// ObserveSwap records one finished swap attempt.
func (m *Metrics) ObserveSwap(result, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(result, code).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// AddVolume records the input amount of an executed swap.
func (m *Metrics) AddVolume(pool string, isX bool, amountIn uint64) {
	if m == nil {
		return
	}
	m.volumeIn.WithLabelValues(pool, side(isX)).Add(float64(amountIn))
}

// SetReserves records vault balances of a pool.
func (m *Metrics) SetReserves(pool string, vaultX, vaultY uint64) {
	if m == nil {
		return
	}
	m.poolLiquidity.WithLabelValues(pool, "x").Set(float64(vaultX))
	m.poolLiquidity.WithLabelValues(pool, "y").Set(float64(vaultY))
}

func side(isX bool) string {
	if isX {
		return "x"
	}
	return "y"
}
