package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medicos-health/medigate/internal/service"
)

// Metrics holds all Prometheus metrics for the gateway. It implements
// service.StatsRecorder so the dispatcher can record outcomes without
// depending on this package.
type Metrics struct {
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	PolicyDecisions  *prometheus.CounterVec
	RejectionsTotal  prometheus.Counter
	AuditDropsGetter func() uint64
}

var _ service.StatsRecorder = (*Metrics)(nil)

// NewMetrics creates and registers all metrics with the given registry.
// auditDrops reports the current audit backpressure drop count; pass nil
// when no async audit pipeline is configured.
func NewMetrics(reg prometheus.Registerer, auditDrops func() uint64) *Metrics {
	m := &Metrics{
		CallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medigate",
				Name:      "calls_total",
				Help:      "Total number of tool calls dispatched",
			},
			[]string{"tool", "outcome"},
		),
		CallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "medigate",
				Name:      "call_duration_seconds",
				Help:      "Tool call dispatch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		PolicyDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medigate",
				Name:      "policy_decisions_total",
				Help:      "Total policy decisions by outcome",
			},
			[]string{"decision"},
		),
		RejectionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "medigate",
				Name:      "rejections_total",
				Help:      "Total calls rejected before dispatch (unknown tool)",
			},
		),
		AuditDropsGetter: auditDrops,
	}

	if auditDrops != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "medigate",
				Name:      "audit_drops_total",
				Help:      "Audit records dropped due to backpressure",
			},
			func() float64 { return float64(auditDrops()) },
		)
	}

	return m
}

func (m *Metrics) RecordOutcome(tool, outcome string) {
	m.CallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) RecordPolicyDecision(decision string) {
	m.PolicyDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordRejection() {
	m.RejectionsTotal.Inc()
}

func (m *Metrics) ObserveDispatch(tool string, d time.Duration) {
	m.CallDuration.WithLabelValues(tool).Observe(d.Seconds())
}
