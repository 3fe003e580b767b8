package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAPIMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewAPIMetrics(reg)
	metrics.IncQuotaConsume("user", "allowed")
	metrics.IncPaymentVerify("razorpay", "verified")
	metrics.IncWebhookEvent("checkout.session.completed", "processed")
	metrics.ObserveAnalysis("success", 250*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "quota_consume_total", "subject_type", "user"); err != nil {
		t.Fatalf("fetch quota: %v", err)
	} else if got != 1 {
		t.Fatalf("expected quota=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "payment_verify_total", "provider", "razorpay"); err != nil {
		t.Fatalf("fetch payment: %v", err)
	} else if got != 1 {
		t.Fatalf("expected payment=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "webhook_event_total", "event_type", "checkout.session.completed"); err != nil {
		t.Fatalf("fetch webhook: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "analysis_duration_seconds", "outcome", "success"); err != nil {
		t.Fatalf("fetch analysis: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected analysis sum > 0, got %f", got)
	}
}

func TestAPIMetricsNilSafe(t *testing.T) {
	var metrics *APIMetrics
	metrics.IncQuotaConsume("user", "allowed")
	metrics.IncPaymentVerify("stripe", "verified")
	metrics.IncWebhookEvent("", "")
	metrics.ObserveAnalysis("failed", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
