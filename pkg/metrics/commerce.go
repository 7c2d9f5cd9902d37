package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics records webhook and wallet operation outcomes.
type CommerceMetrics struct {
	webhookDuration *prometheus.HistogramVec
	webhookHandled  *prometheus.CounterVec
	webhookFailed   *prometheus.CounterVec
	walletOps       *prometheus.CounterVec
}

// NewCommerceMetrics registers the commerce metrics on the provided registerer.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of payment webhook processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	webhookHandled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_handled_total",
		Help: "Payment webhook events processed successfully.",
	}, []string{"event_type"})
	webhookFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failed_total",
		Help: "Payment webhook events that ended in error.",
	}, []string{"event_type"})
	walletOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_operations_total",
		Help: "Wallet ledger operations by type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(webhookDuration, webhookHandled, webhookFailed, walletOps)
	return &CommerceMetrics{
		webhookDuration: webhookDuration,
		webhookHandled:  webhookHandled,
		webhookFailed:   webhookFailed,
		walletOps:       walletOps,
	}
}

// ObserveWebhook records the duration for the named event type.
func (m *CommerceMetrics) ObserveWebhook(eventType string, duration time.Duration) {
	if m == nil || m.webhookDuration == nil {
		return
	}
	m.webhookDuration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncWebhookHandled increments the processed counter for the event type.
func (m *CommerceMetrics) IncWebhookHandled(eventType string) {
	if m == nil || m.webhookHandled == nil {
		return
	}
	m.webhookHandled.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncWebhookFailed increments the failure counter for the event type.
func (m *CommerceMetrics) IncWebhookFailed(eventType string) {
	if m == nil || m.webhookFailed == nil {
		return
	}
	m.webhookFailed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncWalletOp increments the wallet counter for a transaction type + outcome.
func (m *CommerceMetrics) IncWalletOp(txnType, outcome string) {
	if m == nil || m.walletOps == nil {
		return
	}
	m.walletOps.WithLabelValues(normalizeLabel(txnType), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
