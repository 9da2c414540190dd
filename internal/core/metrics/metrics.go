// Package metrics provides Prometheus instrumentation for ratekeeper.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only ratekeeper metrics appear on the /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/ratekeeper/internal/rules"
)

// Metrics holds all Prometheus collectors used by ratekeeper.
type Metrics struct {
	Registry *prometheus.Registry

	QuotesTotal         *prometheus.CounterVec
	QuoteDuration       *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
}

// New creates and registers all ratekeeper metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratekeeper_quotes_total",
			Help: "Total number of quotes priced, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		QuoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratekeeper_quote_duration_seconds",
			Help:    "Quote pricing latency in seconds, rule lookup included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratekeeper_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratekeeper_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratekeeper_grpc_requests_total",
			Help: "Total number of gRPC requests.",
		}, []string{"method", "status"}),

		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratekeeper_grpc_request_duration_seconds",
			Help:    "gRPC request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		m.QuotesTotal,
		m.QuoteDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
	)

	return m
}

// CacheStatsSource reports compile cache counters; *rules.Engine implements it.
type CacheStatsSource interface {
	Stats() rules.CacheStats
}

// RegisterCache exposes compile cache counters, read at scrape time.
func (m *Metrics) RegisterCache(src CacheStatsSource) {
	m.Registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ratekeeper_compile_cache_hits_total",
			Help: "Compiled rule documents served from cache.",
		}, func() float64 { return float64(src.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ratekeeper_compile_cache_misses_total",
			Help: "Rule documents compiled on a cache miss.",
		}, func() float64 { return float64(src.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ratekeeper_compile_cache_entries",
			Help: "Compiled rule documents currently cached.",
		}, func() float64 { return float64(src.Stats().Entries) }),
	)
}

// RecordQuote records one priced quote. outcome is "ok" or an error class.
func (m *Metrics) RecordQuote(kind, outcome string, d time.Duration) {
	m.QuotesTotal.WithLabelValues(kind, outcome).Inc()
	m.QuoteDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordHTTP records one HTTP request against its route pattern.
func (m *Metrics) RecordHTTP(method, route string, code int, d time.Duration) {
	s := strconv.Itoa(code)
	m.HTTPRequestsTotal.WithLabelValues(method, route, s).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, s).Observe(d.Seconds())
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records
// request count and latency for each method.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		code := status.Code(err).String()
		m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
		m.GRPCRequestDuration.WithLabelValues(method, code).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
