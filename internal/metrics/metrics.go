// Package metrics exposes prometheus collectors for the sync engine.
// All methods are safe on a nil receiver so components can run without
// telemetry wired in (tests, one-off tools).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks per-account synchronization activity.
type SyncMetrics struct {
	documentsIndexed *prometheus.CounterVec
	parseFailures    *prometheus.CounterVec
	indexFailures    *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	phaseTransitions *prometheus.CounterVec
}

// NewSyncMetrics creates the collectors and registers them with reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		documentsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsift",
			Name:      "documents_indexed_total",
			Help:      "Documents upserted into the store, per account.",
		}, []string{"account"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsift",
			Name:      "parse_failures_total",
			Help:      "Messages skipped because normalization failed.",
		}, []string{"account"}),
		indexFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsift",
			Name:      "index_failures_total",
			Help:      "Documents skipped because the store upsert failed.",
		}, []string{"account"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsift",
			Name:      "reconnects_total",
			Help:      "Connection teardowns followed by a scheduled reconnect.",
		}, []string{"account"}),
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailsift",
			Name:      "phase_transitions_total",
			Help:      "Worker lifecycle phase transitions.",
		}, []string{"account", "phase"}),
	}
	reg.MustRegister(
		m.documentsIndexed,
		m.parseFailures,
		m.indexFailures,
		m.reconnects,
		m.phaseTransitions,
	)
	return m
}

// DocumentIndexed records one successful upsert for the account.
func (m *SyncMetrics) DocumentIndexed(account string) {
	if m == nil {
		return
	}
	m.documentsIndexed.WithLabelValues(account).Inc()
}

// ParseFailure records one skipped message for the account.
func (m *SyncMetrics) ParseFailure(account string) {
	if m == nil {
		return
	}
	m.parseFailures.WithLabelValues(account).Inc()
}

// IndexFailure records one failed upsert for the account.
func (m *SyncMetrics) IndexFailure(account string) {
	if m == nil {
		return
	}
	m.indexFailures.WithLabelValues(account).Inc()
}

// Reconnect records one reconnect cycle for the account.
func (m *SyncMetrics) Reconnect(account string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(account).Inc()
}

// PhaseTransition records a lifecycle transition for the account.
func (m *SyncMetrics) PhaseTransition(account, phase string) {
	if m == nil {
		return
	}
	m.phaseTransitions.WithLabelValues(account, phase).Inc()
}
