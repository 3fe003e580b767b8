package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics records counters for the billing and generation hot paths.
type APIMetrics struct {
	quotaConsumes   *prometheus.CounterVec
	paymentVerifies *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec
}

// NewAPIMetrics registers the API metrics on the provided registerer.
func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	if reg == nil {
		return &APIMetrics{}
	}
	quotaConsumes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_consume_total",
		Help: "Quota consumption attempts by subject type and outcome.",
	}, []string{"subject_type", "outcome"})
	paymentVerifies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verify_total",
		Help: "Payment verifications by provider and outcome.",
	}, []string{"provider", "outcome"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_event_total",
		Help: "Webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})
	analysisLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_duration_seconds",
		Help:    "Duration of image analysis requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(quotaConsumes, paymentVerifies, webhookEvents, analysisLatency)
	return &APIMetrics{
		quotaConsumes:   quotaConsumes,
		paymentVerifies: paymentVerifies,
		webhookEvents:   webhookEvents,
		analysisLatency: analysisLatency,
	}
}

// IncQuotaConsume increments the quota consumption counter.
func (m *APIMetrics) IncQuotaConsume(subjectType, outcome string) {
	if m == nil || m.quotaConsumes == nil {
		return
	}
	m.quotaConsumes.WithLabelValues(normalizeLabel(subjectType), normalizeLabel(outcome)).Inc()
}

// IncPaymentVerify increments the payment verification counter.
func (m *APIMetrics) IncPaymentVerify(provider, outcome string) {
	if m == nil || m.paymentVerifies == nil {
		return
	}
	m.paymentVerifies.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncWebhookEvent increments the webhook event counter.
func (m *APIMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveAnalysis records the duration of an analysis request.
func (m *APIMetrics) ObserveAnalysis(outcome string, duration time.Duration) {
	if m == nil || m.analysisLatency == nil {
		return
	}
	m.analysisLatency.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
