package imagegen

import (
	"context"
	"crypto/md5" //nolint:gosec // test helper mirrors CacheKey
	"encoding/hex"
	"sync"
	"time"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// fakeProvider returns canned results and records calls
type fakeProvider struct {
	mu     sync.Mutex
	calls  []Params
	result GeneratedImage
	err    error
}

func (f *fakeProvider) Generate(_ context.Context, params Params) (GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	return f.result, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeMetrics counts recorder calls
type fakeMetrics struct {
	mu             sync.Mutex
	hits, misses   int
	durations      int
	providerErrors []string
}

func (m *fakeMetrics) RecordCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *fakeMetrics) RecordCacheMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *fakeMetrics) ObserveProviderDuration(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *fakeMetrics) RecordProviderError(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providerErrors = append(m.providerErrors, category)
}
