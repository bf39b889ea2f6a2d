package imagegen

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/logger"
)

// DefaultCacheTTL is how long a generated image URL is reused for the same prompt
const DefaultCacheTTL = time.Hour

// ResultCache stores generated images by cache key. Implementations must treat
// failures as misses; callers never fail a generation because of the cache.
type ResultCache interface {
	Get(ctx context.Context, key string) (GeneratedImage, bool)
	Set(ctx context.Context, key string, img GeneratedImage, ttl time.Duration)
	Close() error
}

// NoopCache never stores anything
type NoopCache struct{}

// Get always misses
func (NoopCache) Get(context.Context, string) (GeneratedImage, bool) {
	return GeneratedImage{}, false
}

// Set discards img
func (NoopCache) Set(context.Context, string, GeneratedImage, time.Duration) {}

// Close does nothing
func (NoopCache) Close() error {
	return nil
}

// MemoryCache keeps results in process memory
type MemoryCache struct {
	cache *cache.Cache
}

// NewMemoryCache creates an in-memory cache. Expired entries are swept every
// cleanupInterval.
func NewMemoryCache(ttl, cleanupInterval time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl * 2
	}
	return &MemoryCache{cache: cache.New(ttl, cleanupInterval)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (GeneratedImage, bool) {
	if cached, found := m.cache.Get(key); found {
		if img, ok := cached.(GeneratedImage); ok {
			return img, true
		}
	}
	return GeneratedImage{}, false
}

func (m *MemoryCache) Set(_ context.Context, key string, img GeneratedImage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	m.cache.Set(key, img, ttl)
}

// ItemCount returns the number of cached entries, including expired ones not yet swept
func (m *MemoryCache) ItemCount() int {
	return m.cache.ItemCount()
}

// Close flushes the cache
func (m *MemoryCache) Close() error {
	m.cache.Flush()
	return nil
}

// RedisCache shares results between instances through Redis
type RedisCache struct {
	client *redis.Client
	log    logger.Logger
}

// NewRedisCache connects to Redis and pings it. A ping failure closes the client
// and returns an error so the caller can fall back to another cache.
func NewRedisCache(ctx context.Context, settings *conf.RedisSettings, log logger.Logger) (*RedisCache, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     settings.Addr(),
		Password: settings.Password,
		DB:       settings.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.New(err).
			Component("imagegen").
			Category(errors.CategoryImageCache).
			Context("operation", "redis-ping").
			Context("addr", settings.Addr()).
			Build()
	}

	return &RedisCache{client: client, log: log}, nil
}

// newRedisCacheWithClient wraps an existing client without pinging it
func newRedisCacheWithClient(client *redis.Client, log logger.Logger) *RedisCache {
	return &RedisCache{client: client, log: log}
}

func (r *RedisCache) Get(ctx context.Context, key string) (GeneratedImage, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache retrieval failed", logger.String("key", key), logger.Error(err))
		}
		return GeneratedImage{}, false
	}

	var img GeneratedImage
	if err := json.Unmarshal(data, &img); err != nil {
		r.log.Warn("cache entry is not valid JSON", logger.String("key", key), logger.Error(err))
		return GeneratedImage{}, false
	}
	return img, true
}

func (r *RedisCache) Set(ctx context.Context, key string, img GeneratedImage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	data, err := json.Marshal(img)
	if err != nil {
		r.log.Warn("cache storage failed", logger.String("key", key), logger.Error(err))
		return
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		r.log.Warn("cache storage failed", logger.String("key", key), logger.Error(err))
	}
}

// Close closes the Redis client
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// NewResultCache returns a Redis cache when enabled and reachable, otherwise an
// in-memory cache.
func NewResultCache(ctx context.Context, settings *conf.Settings, log logger.Logger) ResultCache {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if settings.Redis.Enabled {
		rc, err := NewRedisCache(ctx, &settings.Redis, log)
		if err == nil {
			log.Info("using Redis result cache", logger.String("addr", settings.Redis.Addr()))
			return rc
		}
		log.Warn("Redis connection failed, falling back to in-memory cache",
			logger.String("addr", settings.Redis.Addr()),
			logger.Error(err))
	}

	return NewMemoryCache(settings.Cache.TTL, settings.Cache.CleanupInterval)
}
