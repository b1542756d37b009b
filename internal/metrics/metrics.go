// Package metrics defines the Prometheus collectors of the dashboard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeStale   = "stale"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Fetches      *prometheus.CounterVec
	FetchLatency *prometheus.HistogramVec
	Requests     *prometheus.CounterVec
	Latency      *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_gateway_fetches_total",
			Help: "Gateway fetches issued by each view, by outcome.",
		}, []string{"view", "outcome"}),
		FetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_gateway_fetch_duration_seconds",
			Help:    "Duration of gateway fetches by view.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"view"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Operator HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "Operator HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_recording_cache_lookups_total",
			Help: "Recording cache lookups by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.Fetches, m.FetchLatency, m.Requests, m.Latency, m.CacheLookups} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveFetch records the outcome and duration of one gateway fetch.
func (m *Metrics) ObserveFetch(view, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(view, outcome).Inc()
	m.FetchLatency.WithLabelValues(view).Observe(d.Seconds())
}

// ObserveRequest records one operator HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, statusLabel(code)).Inc()
	m.Latency.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveCache records a recording cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
