// Package metrics exports the pipeline's operational surface as Prometheus
// instrumentation: per-stage packet throughput, current bitrate, restart
// counts, and abort state.
//
// This generalizes the teacher's own pipe/metric.go Counter/Metric pair
// (message and sample counters with a String() summary) from audio sample
// counts to TS packet counts, and exports the result instead of only
// holding it in memory for an in-process summary.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups every collector this package registers, so a caller can
// register them all against a *prometheus.Registry in one call and dispose
// of them together in tests.
type Registry struct {
	PacketsProcessed *prometheus.CounterVec
	Bitrate          *prometheus.GaugeVec
	Restarts         *prometheus.CounterVec
	Aborting         *prometheus.GaugeVec
}

// NewRegistry constructs a Registry with the given namespace (typically
// "tsp") and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer, namespace string) *Registry {
	m := &Registry{
		PacketsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_processed_total",
			Help:      "Total packets passed by a stage via passPackets.",
		}, []string{"stage"}),
		Bitrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bitrate_bps",
			Help:      "Latest bitrate propagated into a stage's window, in bits per second.",
		}, []string{"stage"}),
		Restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_restarts_total",
			Help:      "Total restart requests serviced for a stage, labeled by outcome.",
		}, []string{"stage", "outcome"}),
		Aborting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_aborting",
			Help:      "1 if a stage has begun aborting, 0 otherwise.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.PacketsProcessed, m.Bitrate, m.Restarts, m.Aborting)
	return m
}

// ObservePassPackets records one passPackets call's effect on stage.
func (m *Registry) ObservePassPackets(stage string, count int, bitrate int64) {
	if count > 0 {
		m.PacketsProcessed.WithLabelValues(stage).Add(float64(count))
	}
	m.Bitrate.WithLabelValues(stage).Set(float64(bitrate))
}

// ObserveRestart records a restart's outcome ("ok", "fallback", or "failed").
func (m *Registry) ObserveRestart(stage, outcome string) {
	m.Restarts.WithLabelValues(stage, outcome).Inc()
}

// SetAborting records a stage's current aborting state.
func (m *Registry) SetAborting(stage string, aborting bool) {
	v := 0.0
	if aborting {
		v = 1.0
	}
	m.Aborting.WithLabelValues(stage).Set(v)
}
