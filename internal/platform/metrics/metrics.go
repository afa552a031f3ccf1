// Package metrics defines the Prometheus collectors shared by the gateway and the processor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "settlement"

// Close outcomes
const (
	OutcomeClosed           = "closed"
	OutcomeReplayed         = "replayed"
	OutcomeValidationFailed = "validation_failed"
	OutcomeConflict         = "conflict"
	OutcomeInternalError    = "internal_error"
)

// Outbox publication results
const (
	PublishSucceeded = "succeeded"
	PublishRetried   = "retried"
	PublishFailed    = "failed"
)

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes reg in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// CloseMetrics records settlement close attempts. A nil *CloseMetrics is a no-op.
type CloseMetrics struct {
	outcomes  *prometheus.CounterVec
	transfers prometheus.Histogram
	duration  *prometheus.HistogramVec
}

func NewCloseMetrics(reg prometheus.Registerer) *CloseMetrics {
	m := &CloseMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "close_attempts_total",
			Help:      "Settlement close attempts by outcome.",
		}, []string{"outcome"}),
		transfers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "close_transfers",
			Help:      "Number of transfers produced per closed settlement.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "close_duration_seconds",
			Help:      "Time spent in a close attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.outcomes, m.transfers, m.duration)
	return m
}

// ObserveClose records one close attempt. transfers is only recorded for fresh closes.
func (m *CloseMetrics) ObserveClose(outcome string, transfers int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if outcome == OutcomeClosed {
		m.transfers.Observe(float64(transfers))
	}
}

// OutboxMetrics records outbox publication results. A nil *OutboxMetrics is a no-op.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	batch     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	m := &OutboxMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox messages handled by result.",
		}, []string{"result"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_size",
			Help:      "Pending messages fetched per poll.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.published, m.batch)
	return m
}

func (m *OutboxMetrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(result).Inc()
}

func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.batch.Observe(float64(size))
}

// HTTPMetrics records gateway requests. A nil *HTTPMetrics is a no-op.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(m.requests, m.latency)
	return m
}

func (m *HTTPMetrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
