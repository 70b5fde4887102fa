// Package metrics provides Prometheus collectors for gateway traffic, provider
// calls and routing decisions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	costTotal        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	rateLimited      *prometheus.CounterVec
}

// New creates a metrics collector with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		providerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_provider_requests_total",
			Help: "Total number of provider completion calls",
		}, []string{"provider", "model", "status"}),
		providerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_provider_request_duration_seconds",
			Help:    "Duration of provider completion calls in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		}, []string{"provider", "model"}),
		tokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Total number of tokens processed",
		}, []string{"provider", "model", "type"}), // type: input, output
		costTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_cost_total",
			Help: "Accumulated request cost",
		}, []string{"provider", "model"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_response_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_routing_decisions_total",
			Help: "Model selection decisions by outcome",
		}, []string{"outcome"}),
		decisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_routing_decision_duration_seconds",
			Help:    "Time spent selecting a model",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		}, []string{"scope"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordProviderCall records one provider completion call.
func (m *Metrics) RecordProviderCall(provider, model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, model, statusLabel(err == nil)).Inc()
	m.providerDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// RecordUsage records token counts and cost of a completed request.
func (m *Metrics) RecordUsage(provider, model string, inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	m.tokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	if cost > 0 {
		m.costTotal.WithLabelValues(provider, model).Add(cost)
	}
}

func (m *Metrics) RecordHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordDecision records a routing decision. outcome is selected, fallback or error.
func (m *Metrics) RecordDecision(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
	m.decisionDuration.Observe(d.Seconds())
}

// RecordRateLimited counts a rejection. scope is client, user or provider.
func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
