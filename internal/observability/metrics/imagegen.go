// Package metrics provides custom Prometheus metrics for the IconForge components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageGenMetrics contains all Prometheus metrics related to image generation.
// It implements imagegen.MetricsRecorder, generation.MetricsRecorder and
// iconset.MetricsRecorder.
type ImageGenMetrics struct {
	Generations      *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ProviderDuration prometheus.Histogram
	ProviderErrors   *prometheus.CounterVec
	IconSets         prometheus.Counter
}

// NewImageGenMetrics creates a new instance of ImageGenMetrics.
// It returns an error if metric registration fails.
func NewImageGenMetrics(registry *prometheus.Registry) (*ImageGenMetrics, error) {
	m := &ImageGenMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register image generation metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for ImageGenMetrics.
func (m *ImageGenMetrics) initMetrics() {
	m.Generations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iconforge_generations_total",
		Help: "Total number of recorded image generations by status.",
	}, []string{"status"})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iconforge_cache_hits_total",
		Help: "Total number of result cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iconforge_cache_misses_total",
		Help: "Total number of result cache misses.",
	})

	m.ProviderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "iconforge_provider_duration_seconds",
		Help:    "Duration of image provider calls in seconds.",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12),
	})

	m.ProviderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iconforge_provider_errors_total",
		Help: "Total number of image provider errors by error category.",
	}, []string{"category"})

	m.IconSets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iconforge_icon_sets_total",
		Help: "Total number of completed icon sets.",
	})
}

// RecordCacheHit increases the cache hit counter by one.
func (m *ImageGenMetrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss increases the cache miss counter by one.
func (m *ImageGenMetrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// ObserveProviderDuration records the duration of a provider call.
func (m *ImageGenMetrics) ObserveProviderDuration(d time.Duration) {
	m.ProviderDuration.Observe(d.Seconds())
}

// RecordProviderError counts a provider failure.
func (m *ImageGenMetrics) RecordProviderError(category string) {
	m.ProviderErrors.WithLabelValues(category).Inc()
}

// RecordGeneration counts a recorded generation.
func (m *ImageGenMetrics) RecordGeneration(status string) {
	m.Generations.WithLabelValues(status).Inc()
}

// RecordIconSet counts a completed icon set.
func (m *ImageGenMetrics) RecordIconSet() {
	m.IconSets.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *ImageGenMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Generations.Collect(ch)
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.ProviderDuration
	m.ProviderErrors.Collect(ch)
	ch <- m.IconSets
}

// Describe implements the prometheus.Collector interface.
func (m *ImageGenMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Generations.Describe(ch)
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.ProviderDuration.Desc()
	m.ProviderErrors.Describe(ch)
	ch <- m.IconSets.Desc()
}
