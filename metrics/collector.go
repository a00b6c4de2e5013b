// Package metrics provides the replay CLI's Prometheus collector, trimmed
// down from the teacher's much larger trading-venue collector
// (metrics/prometheus.go) to the handful of gauges/counters that matter for
// an order-book reconstructor: snapshots emitted, reconciliation outcomes,
// and phase transitions. The core package (internal/...) never imports
// this — metrics are strictly a replay-CLI concern (§1 "external
// collaborator").
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every metric the replay CLI reports.
type Collector struct {
	SnapshotsEmitted    *prometheus.CounterVec
	ReconcileMatched    *prometheus.CounterVec
	ReconcileUnmatched  *prometheus.GaugeVec
	PhaseTransitions    *prometheus.CounterVec
	TicksProcessed      *prometheus.CounterVec
	TicksRejected       *prometheus.CounterVec
}

var (
	collector     *Collector
	collectorOnce sync.Once
)

// GetCollector returns the process-wide singleton collector, registered
// against the default Prometheus registry on first call.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{
		SnapshotsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobcore",
				Subsystem: "snapshot",
				Name:      "emitted_total",
				Help:      "Snapshots emitted by the builder, by security id and phase",
			},
			[]string{"security_id", "phase"},
		),
		ReconcileMatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobcore",
				Subsystem: "reconcile",
				Name:      "matched_total",
				Help:      "Exchange snapshots matched against a rebuilt snapshot",
			},
			[]string{"security_id"},
		),
		ReconcileUnmatched: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lobcore",
				Subsystem: "reconcile",
				Name:      "unmatched",
				Help:      "Exchange snapshots still pending a matching rebuilt snapshot",
			},
			[]string{"security_id"},
		),
		PhaseTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobcore",
				Subsystem: "session",
				Name:      "phase_transitions_total",
				Help:      "Phase transitions observed, by security id and new phase",
			},
			[]string{"security_id", "phase"},
		),
		TicksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobcore",
				Subsystem: "session",
				Name:      "ticks_processed_total",
				Help:      "Messages successfully dispatched through OnMessage, by kind",
			},
			[]string{"security_id", "kind"},
		),
		TicksRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lobcore",
				Subsystem: "session",
				Name:      "ticks_rejected_total",
				Help:      "Messages that returned an error from OnMessage, by kind",
			},
			[]string{"security_id", "kind"},
		),
	}

	prometheus.MustRegister(c.SnapshotsEmitted)
	prometheus.MustRegister(c.ReconcileMatched)
	prometheus.MustRegister(c.ReconcileUnmatched)
	prometheus.MustRegister(c.PhaseTransitions)
	prometheus.MustRegister(c.TicksProcessed)
	prometheus.MustRegister(c.TicksRejected)

	return c
}
