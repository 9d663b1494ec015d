// Package metrics exposes the node's runtime state to Prometheus:
// adaptive performance figures, safety-monitor alert counts, and
// mempool occupancy — the three collaborator surfaces named for the
// metrics exporter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ccchain/ccchain/internal/adaptive"
	"github.com/ccchain/ccchain/internal/safety"
)

// MempoolStats is the snapshot a Mempool exposes to the exporter.
type MempoolStats struct {
	Count     int
	Capacity  int
	TotalFees uint64
}

// MempoolSource is satisfied by *mempool.Mempool for stats collection
// without metrics importing mempool's full admission API.
type MempoolSource interface {
	Count() int
}

// Registry bundles every collector the node registers with a
// Prometheus registerer, plus the hooks that keep them current.
type Registry struct {
	blockTime        prometheus.Gauge
	tps              prometheus.Gauge
	confirmationTime prometheus.Gauge
	gasLimit         prometheus.Gauge
	baseFee          prometheus.Gauge
	mempoolSize      prometheus.Gauge
	safetyAlerts     *prometheus.CounterVec

	perf    *adaptive.PerformanceMonitor
	mempool MempoolSource
}

// New registers every collector with reg and wires perf/mempool as the
// sources Refresh reads when it sets the gauges.
func New(reg prometheus.Registerer, perf *adaptive.PerformanceMonitor, mempool MempoolSource) *Registry {
	r := &Registry{
		blockTime:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccchain_mean_block_time_seconds", Help: "Mean block production time over the rolling window."}),
		tps:              prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccchain_tps", Help: "Transactions per second over the rolling block window."}),
		confirmationTime: prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccchain_mean_confirmation_seconds", Help: "Mean transaction confirmation latency over the rolling window."}),
		gasLimit:         prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccchain_gas_limit", Help: "Current adaptive gas limit."}),
		baseFee:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccchain_base_fee", Help: "Current adaptive base fee."}),
		mempoolSize:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "ccchain_mempool_size", Help: "Number of transactions currently pooled."}),
		safetyAlerts:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ccchain_safety_alerts_total", Help: "Safety alerts raised, by type and severity."}, []string{"type", "severity"}),
		perf:             perf,
		mempool:          mempool,
	}
	reg.MustRegister(r.blockTime, r.tps, r.confirmationTime, r.gasLimit, r.baseFee, r.mempoolSize, r.safetyAlerts)
	return r
}

// Refresh samples the current performance/mempool state into the
// gauges; callers invoke this periodically (or before a scrape) since
// Prometheus gauges don't pull on their own from non-collector sources.
func (r *Registry) Refresh(params adaptive.Params) {
	r.blockTime.Set(r.perf.MeanBlockTime().Seconds())
	r.tps.Set(r.perf.TPS())
	r.confirmationTime.Set(r.perf.MeanConfirmationTime().Seconds())
	r.gasLimit.Set(float64(params.GasLimit))
	r.baseFee.Set(float64(params.BaseFee))
	r.mempoolSize.Set(float64(r.mempool.Count()))
}

// ObserveAlert records one safety alert in the counter vector.
func (r *Registry) ObserveAlert(a safety.Alert) {
	r.safetyAlerts.WithLabelValues(a.Type.String(), a.Severity.String()).Inc()
}

// WatchAlerts drains mon's alert channel into ObserveAlert until
// stopCh closes, the same channel-drain idiom the node's other
// background loops use.
func (r *Registry) WatchAlerts(mon *safety.Monitor, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case a := <-mon.AlertCh():
			r.ObserveAlert(a)
		}
	}
}

// PerformanceMetrics returns a point-in-time snapshot matching the
// node's performance_metrics() collaborator contract.
func (r *Registry) PerformanceMetrics() (meanBlockTime, meanConfirmation time.Duration, tps float64) {
	return r.perf.MeanBlockTime(), r.perf.MeanConfirmationTime(), r.perf.TPS()
}

// MempoolStats matches the node's mempool_stats() collaborator
// contract.
func (r *Registry) MempoolStats() MempoolStats {
	return MempoolStats{Count: r.mempool.Count()}
}
