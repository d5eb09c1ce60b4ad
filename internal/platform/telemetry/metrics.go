// Package telemetry exposes Prometheus collectors for the dashboard client
// and the sandbox API. A nil *Metrics is valid and records nothing, so
// components take it as an optional dependency.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by ObserveFetch.
const (
	FetchApplied   = "applied"
	FetchFailed    = "failed"
	FetchDiscarded = "discarded"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	clientCalls    *prometheus.CounterVec
	clientDuration *prometheus.HistogramVec
	fetches        *prometheus.CounterVec
	sessionEvents  *prometheus.CounterVec
}

// New builds collectors under namespace on a private registry. Go runtime and
// process collectors are included.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		clientCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_client_calls_total",
				Help:      "Remote API calls by operation and result",
			},
			[]string{"op", "result"},
		),
		clientDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_client_call_duration_seconds",
				Help:      "Duration of remote API calls in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collection_fetches_total",
				Help:      "Page fetch resolutions by collection and outcome",
			},
			[]string{"collection", "outcome"},
		),
		sessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_events_total",
				Help:      "Session transitions by kind",
			},
			[]string{"event"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.clientCalls,
		m.clientDuration,
		m.fetches,
		m.sessionEvents,
	)
	return m
}

// Registry returns the registry backing m, for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveClientCall records one remote call. result is "ok" or an error kind.
func (m *Metrics) ObserveClientCall(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.clientCalls.WithLabelValues(op, result).Inc()
	m.clientDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveFetch(collection, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(collection, outcome).Inc()
}

func (m *Metrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

// RegisterGaugeFunc adds a gauge sampled from fn at scrape time.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}
