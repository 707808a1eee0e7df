package observ

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the compliance core's Prometheus collectors. Methods are
// safe on a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	// Copy decisions by reason, "none" when no rule fired
	CopyDecisions *prometheus.CounterVec

	// Sends refused before delivery, by error code
	SendsRejected *prometheus.CounterVec

	// Exchange status changes
	ExchangeTransitions *prometheus.CounterVec

	// Copies removed by the retention sweep
	RetentionDeleted prometheus.Counter

	// Per-tenant sweep latency
	SweepLatency prometheus.Histogram

	// Audit events the sinks failed to accept, by sink
	AuditDropped *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Tests pass
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CopyDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerguard_copy_decisions_total",
			Help: "Outbound message copy decisions by reason",
		}, []string{"reason"}),

		SendsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerguard_sends_rejected_total",
			Help: "Messages refused before delivery by error code",
		}, []string{"code"}),

		ExchangeTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerguard_exchange_transitions_total",
			Help: "Exchange request status changes",
		}, []string{"from", "to"}),

		RetentionDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "brokerguard_retention_deleted_total",
			Help: "Broker message copies deleted by the retention sweep",
		}),

		SweepLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "brokerguard_sweep_tenant_duration_seconds",
			Help:    "Duration of one tenant's deadline and retention sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		AuditDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "brokerguard_audit_dropped_total",
			Help: "Audit events a sink failed to accept",
		}, []string{"sink"}),
	}
}

func (m *Metrics) IncCopyDecision(reason string) {
	if m != nil {
		m.CopyDecisions.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncSendRejected(code string) {
	if m != nil {
		m.SendsRejected.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncTransition(from, to string) {
	if m != nil {
		m.ExchangeTransitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) AddRetentionDeleted(n int64) {
	if m != nil && n > 0 {
		m.RetentionDeleted.Add(float64(n))
	}
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m != nil {
		m.SweepLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncAuditDropped(sink string) {
	if m != nil {
		m.AuditDropped.WithLabelValues(sink).Inc()
	}
}
