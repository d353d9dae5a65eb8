// Package metrics 汇总 Webhook、意图解析与外部调用的 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwallet_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"handler", "method", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatwallet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"handler", "method"},
	)

	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwallet_intents_total",
			Help: "Resolved intents by kind and source.",
		},
		[]string{"kind", "source"},
	)

	inboxMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatwallet_inbox_messages_total",
			Help: "Inbound chat messages by processing outcome.",
		},
		[]string{"outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatwallet_upstream_duration_seconds",
			Help:    "Latency of calls to external services.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "outcome"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDuration,
		intentsTotal,
		inboxMessagesTotal,
		upstreamDuration,
	)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveIntent counts a resolved intent.
func ObserveIntent(kind, source string) {
	intentsTotal.WithLabelValues(kind, source).Inc()
}

// ObserveInboxMessage counts a processed inbound message.
func ObserveInboxMessage(outcome string) {
	inboxMessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records one call to an external dependency.
func ObserveUpstream(target string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamDuration.WithLabelValues(target, outcome).Observe(duration.Seconds())
}

// Registry exposes the collector registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
