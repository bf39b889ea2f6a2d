package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks API traffic by matched route. It implements
// middleware.HTTPRecorder.
type HTTPMetrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	ResponseSize *prometheus.HistogramVec
	InFlight     prometheus.Gauge
}

// NewHTTPMetrics creates and registers the API traffic metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iconforge_http_requests_total",
			Help: "Total number of API requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		// generate endpoints block on the provider, so buckets reach minutes
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iconforge_http_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor4, BucketCount10),
		}, []string{"method", "route"}),

		ResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iconforge_http_response_size_bytes",
			Help:    "API response body size in bytes.",
			Buckets: prometheus.ExponentialBuckets(BucketStart100B, BucketFactor10, BucketCount6),
		}, []string{"method", "route"}),

		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iconforge_http_requests_in_flight",
			Help: "Number of API requests currently being served.",
		}),
	}

	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
		}
	}
	return m, nil
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Requests, m.Duration, m.ResponseSize, m.InFlight}
}

// RequestStarted marks a request as in flight
func (m *HTTPMetrics) RequestStarted() {
	m.InFlight.Inc()
}

// RequestFinished records a completed request
func (m *HTTPMetrics) RequestFinished(method, route string, status int, duration time.Duration, size int64) {
	m.InFlight.Dec()
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, route).Observe(float64(size))
}
