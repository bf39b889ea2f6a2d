package imagegen

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// MetricsRecorder receives generator measurements. Implemented by
// observability/metrics.ImageGenMetrics.
type MetricsRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	ObserveProviderDuration(d time.Duration)
	RecordProviderError(category string)
}

// Generator validates params, consults the result cache and calls the provider
type Generator struct {
	provider Provider
	cache    ResultCache
	ttl      time.Duration
	metrics  MetricsRecorder
	log      logger.Logger
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithCache sets the result cache and entry TTL
func WithCache(c ResultCache, ttl time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.cache = c
		g.ttl = ttl
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) GeneratorOption {
	return func(g *Generator) {
		g.metrics = m
	}
}

type skipCacheKey struct{}

// SkipCache marks ctx so the generator always calls the provider. The result
// is still stored in the cache.
func SkipCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCacheKey{}, true)
}

func cacheSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipCacheKey{}).(bool)
	return skip
}

// NewGenerator creates a Generator. Without WithCache nothing is cached.
func NewGenerator(provider Provider, log logger.Logger, opts ...GeneratorOption) *Generator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	g := &Generator{
		provider: provider,
		cache:    NoopCache{},
		ttl:      DefaultCacheTTL,
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cache == nil {
		g.cache = NoopCache{}
	}
	return g
}

// Generate returns an image for params. Validation errors are returned as is;
// every other failure is an image provider error prefixed "Replicate API Error: ".
func (g *Generator) Generate(ctx context.Context, params Params) (GeneratedImage, error) {
	start := time.Now()
	params = params.WithDefaults()

	if err := params.Validate(); err != nil {
		g.log.Error("error generating image",
			logger.Error(err),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()))
		return GeneratedImage{}, err
	}

	key := CacheKey(params)
	if !cacheSkipped(ctx) {
		if img, ok := g.cache.Get(ctx, key); ok {
			g.log.Info("cache hit for image generation",
				logger.String("cache_key", key),
				logger.Int64("duration_ms", time.Since(start).Milliseconds()))
			if g.metrics != nil {
				g.metrics.RecordCacheHit()
			}
			return img, nil
		}
		if g.metrics != nil {
			g.metrics.RecordCacheMiss()
		}
	}

	providerStart := time.Now()
	img, err := g.provider.Generate(ctx, params)
	if g.metrics != nil {
		g.metrics.ObserveProviderDuration(time.Since(providerStart))
	}
	if err != nil {
		g.log.Error("error generating image",
			logger.Error(err),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()))
		if g.metrics != nil {
			g.metrics.RecordProviderError(string(errors.CategoryOf(err)))
		}
		return GeneratedImage{}, wrapProviderError(err)
	}

	g.cache.Set(ctx, key, img, g.ttl)

	g.log.Info("image generated successfully",
		logger.Int64("duration_ms", time.Since(start).Milliseconds()),
		logger.String("image_url", logger.Truncate(img.URL, 100)))

	return img, nil
}

// wrapProviderError prefixes the cause. Rate limit errors keep their category so
// callers can tell the user to slow down.
func wrapProviderError(err error) error {
	category := errors.CategoryImageProvider
	if errors.IsCategory(err, errors.CategoryLimit) {
		category = errors.CategoryLimit
	}
	return errors.New(fmt.Errorf("Replicate API Error: %w", err)).
		Component("imagegen").
		Category(category).
		Context("cause_category", string(errors.CategoryOf(err))).
		Build()
}
