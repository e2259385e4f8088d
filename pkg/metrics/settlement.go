package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics is the operator-visible channel for outcomes the
// provider never sees: the webhook endpoint always acks, so duplicate
// deliveries and internal reconciliation failures surface here.
type SettlementMetrics struct {
	reconcileOutcome *prometheus.CounterVec
	webhookDelivery  *prometheus.CounterVec
	submitResult     *prometheus.CounterVec
	pollDuration     *prometheus.HistogramVec
	pollFailure      *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	reconcileOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_outcome_total",
		Help: "Reconciliation outcomes by result.",
	}, []string{"outcome"})
	webhookDelivery := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_total",
		Help: "Provider webhook deliveries by disposition.",
	}, []string{"disposition"})
	submitResult := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_submit_total",
		Help: "Upstream submission attempts by result.",
	}, []string{"result"})
	pollDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poll_sweep_duration_seconds",
		Help:    "Duration of poll fallback sweeps in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	pollFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_sweep_failure_total",
		Help: "Failed poll fallback sweeps.",
	}, []string{"job"})
	reg.MustRegister(reconcileOutcome, webhookDelivery, submitResult, pollDuration, pollFailure)
	return &SettlementMetrics{
		reconcileOutcome: reconcileOutcome,
		webhookDelivery:  webhookDelivery,
		submitResult:     submitResult,
		pollDuration:     pollDuration,
		pollFailure:      pollFailure,
	}
}

// IncReconcileOutcome counts one reconciliation by outcome label.
func (m *SettlementMetrics) IncReconcileOutcome(outcome string) {
	if m == nil || m.reconcileOutcome == nil {
		return
	}
	m.reconcileOutcome.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWebhookDelivery counts one webhook delivery by disposition.
func (m *SettlementMetrics) IncWebhookDelivery(disposition string) {
	if m == nil || m.webhookDelivery == nil {
		return
	}
	m.webhookDelivery.WithLabelValues(normalizeLabel(disposition)).Inc()
}

// IncSubmitResult counts one upstream submission attempt result.
func (m *SettlementMetrics) IncSubmitResult(result string) {
	if m == nil || m.submitResult == nil {
		return
	}
	m.submitResult.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePollDuration records the duration of the named sweep.
func (m *SettlementMetrics) ObservePollDuration(job string, duration time.Duration) {
	if m == nil || m.pollDuration == nil {
		return
	}
	m.pollDuration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncPollFailure counts one failed sweep for the named job.
func (m *SettlementMetrics) IncPollFailure(job string) {
	if m == nil || m.pollFailure == nil {
		return
	}
	m.pollFailure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
