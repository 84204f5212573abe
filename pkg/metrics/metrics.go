// Package metrics exposes Prometheus counters for routing, handlers, LLM
// calls and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	routeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_route_total",
			Help: "Requests routed, by final service and routing method",
		},
		[]string{"service", "method", "fallback"},
	)

	handlerResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_handler_results_total",
			Help: "Handler results by service and outcome",
		},
		[]string{"service", "success"},
	)

	llmCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_llm_calls_total",
			Help: "LLM completion calls by adapter and outcome",
		},
		[]string{"adapter", "outcome"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackbot_llm_call_duration_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackbot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Recorder forwards router telemetry to the package counters.
type Recorder struct{}

// RecordRoute counts one routing decision.
func (Recorder) RecordRoute(service, method string, fallback bool) {
	routeTotal.WithLabelValues(service, method, strconv.FormatBool(fallback)).Inc()
}

// RecordResult counts one handler result.
func (Recorder) RecordResult(service string, success bool) {
	handlerResults.WithLabelValues(service, strconv.FormatBool(success)).Inc()
}

// ObserveLLMCall records a completion call. Its signature matches
// adapter.Observer.
func ObserveLLMCall(adapter, outcome string, elapsed time.Duration) {
	llmCalls.WithLabelValues(adapter, outcome).Inc()
	llmDuration.WithLabelValues(adapter).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route string, statusCode int, elapsed time.Duration) {
	status := "unknown"
	switch {
	case statusCode >= 200 && statusCode < 300:
		status = "2xx"
	case statusCode >= 300 && statusCode < 400:
		status = "3xx"
	case statusCode >= 400 && statusCode < 500:
		status = "4xx"
	case statusCode >= 500:
		status = "5xx"
	}
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
