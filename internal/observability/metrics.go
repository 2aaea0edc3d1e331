package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "ghe_token_broker"

// Metrics holds the broker's Prometheus collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	tokensMinted  *prometheus.CounterVec
	verifications *prometheus.CounterVec
	upstreamCalls *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Requests that ended in an error, by error code.",
		}, []string{"path", "method", "code"}),
		tokensMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_minted_total",
			Help:      "Tokens minted, by kind.",
		}, []string{"kind"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Token verifications, by outcome.",
		}, []string{"outcome"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Calls to the identity provider, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.errors,
		m.tokensMinted,
		m.verifications,
		m.upstreamCalls,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest observes a finished HTTP request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordMint counts a minted token.
func (m *Metrics) RecordMint(kind string) {
	if m == nil {
		return
	}
	m.tokensMinted.WithLabelValues(kind).Inc()
}

// RecordVerification counts a verification outcome.
func (m *Metrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// RecordUpstream counts an identity provider call.
func (m *Metrics) RecordUpstream(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(endpoint, outcome).Inc()
}

// TokensMinted exposes the minted-token counter.
func (m *Metrics) TokensMinted() *prometheus.CounterVec {
	return m.tokensMinted
}

// Verifications exposes the verification counter.
func (m *Metrics) Verifications() *prometheus.CounterVec {
	return m.verifications
}

// UpstreamCalls exposes the identity provider call counter.
func (m *Metrics) UpstreamCalls() *prometheus.CounterVec {
	return m.upstreamCalls
}
