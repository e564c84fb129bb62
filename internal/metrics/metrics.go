// Package metrics exposes Prometheus instrumentation for the advice
// service. A nil *Collector is valid and records nothing, so tests and
// the one-shot CLI paths can skip registration entirely.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every metric the service records.
type Collector struct {
	AdviceRequestsTotal *prometheus.CounterVec
	AdviceDuration      *prometheus.HistogramVec
	ModelErrorsTotal    *prometheus.CounterVec
	FallbacksTotal      *prometheus.CounterVec

	HTTPRequestsTotal *prometheus.CounterVec
	SMSMessagesTotal  *prometheus.CounterVec

	RequestBudgetUsed prometheus.Gauge
}

// NewCollector registers all metrics under the given namespace on the
// default registry. Call it once per process.
func NewCollector(namespace string) *Collector {
	return &Collector{
		AdviceRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "advice_requests_total",
				Help:      "Advice requests handled, by surface and outcome",
			},
			[]string{"surface", "outcome"},
		),

		AdviceDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "advice_duration_seconds",
				Help:      "End-to-end advice request duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"surface"},
		),

		ModelErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_errors_total",
				Help:      "Failed model calls by error kind",
			},
			[]string{"kind"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Canned answers substituted for model output, by surface",
			},
			[]string{"surface"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		SMSMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sms_messages_total",
				Help:      "SMS messages by direction",
			},
			[]string{"direction"},
		),

		RequestBudgetUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "request_budget_used",
				Help:      "Model calls made against the daily budget",
			},
		),
	}
}

// ObserveAdvice records one completed advice request.
func (c *Collector) ObserveAdvice(surface, outcome string, d time.Duration, fallback bool) {
	if c == nil {
		return
	}
	c.AdviceRequestsTotal.WithLabelValues(surface, outcome).Inc()
	c.AdviceDuration.WithLabelValues(surface).Observe(d.Seconds())
	if fallback {
		c.FallbacksTotal.WithLabelValues(surface).Inc()
	}
}

// ModelError records one failed model call.
func (c *Collector) ModelError(kind string) {
	if c == nil {
		return
	}
	c.ModelErrorsTotal.WithLabelValues(kind).Inc()
}

// SetBudgetUsed reports the current daily request count.
func (c *Collector) SetBudgetUsed(n int64) {
	if c == nil {
		return
	}
	c.RequestBudgetUsed.Set(float64(n))
}

// HTTPRequest records one handled HTTP request.
func (c *Collector) HTTPRequest(endpoint, method, status string) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// SMSMessage records one inbound or outbound text message.
func (c *Collector) SMSMessage(direction string) {
	if c == nil {
		return
	}
	c.SMSMessagesTotal.WithLabelValues(direction).Inc()
}
