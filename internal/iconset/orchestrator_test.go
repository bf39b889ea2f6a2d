package iconset

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
)

// scriptedGenerator returns records until failAt, then err
type scriptedGenerator struct {
	mu     sync.Mutex
	calls  []imagegen.Params
	times  []time.Time
	failAt int
	err    error
	onCall func(n int)
}

func (g *scriptedGenerator) GenerateAndSave(_ context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error) {
	g.mu.Lock()
	g.calls = append(g.calls, params)
	g.times = append(g.times, time.Now())
	n := len(g.calls)
	g.mu.Unlock()

	if g.onCall != nil {
		g.onCall(n)
	}
	if g.err != nil && n == g.failAt {
		return nil, g.err
	}
	return &datastore.ImageGeneration{
		ID:       fmt.Sprintf("icon-%d", n),
		Prompt:   params.Prompt,
		ImageURL: fmt.Sprintf("https://replicate.delivery/%d.png", n),
		UserID:   datastore.StringPtr(userID),
		Status:   datastore.StatusSuccess,
	}, nil
}

// countingProvider returns a distinct URL per call
type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) Generate(_ context.Context, params imagegen.Params) (imagegen.GeneratedImage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return imagegen.GeneratedImage{
		URL:           fmt.Sprintf("https://replicate.delivery/%d.png", p.calls),
		RevisedPrompt: params.Prompt,
	}, nil
}

// passthroughGenerator wraps an imagegen.Generator without persistence
type passthroughGenerator struct {
	generator *imagegen.Generator
}

func (g *passthroughGenerator) GenerateAndSave(ctx context.Context, params imagegen.Params, _ string) (*datastore.ImageGeneration, error) {
	img, err := g.generator.Generate(ctx, params)
	if err != nil {
		return nil, err
	}
	return &datastore.ImageGeneration{Prompt: params.Prompt, ImageURL: img.URL, Status: datastore.StatusSuccess}, nil
}

type iconSetCounter struct{ sets int }

func (c *iconSetCounter) RecordIconSet() { c.sets++ }

func newTestOrchestrator(gen Generator, delay time.Duration, opts ...Option) *Orchestrator {
	return NewOrchestrator(gen, &conf.IconSetSettings{Count: 4, Delay: delay}, logger.NewNopLogger(), opts...)
}

func TestOrchestrator_GeneratesSequentiallyWithDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	gen := &scriptedGenerator{}
	counter := &iconSetCounter{}
	o := newTestOrchestrator(gen, 20*time.Millisecond, WithMetrics(counter))

	var progress [][2]int
	start := time.Now()
	result, err := o.GenerateWithProgress(t.Context(),
		Request{Prompt: "rocket", Style: "Business", Colors: []string{"#112233"}}, "user-7",
		func(done, total int) { progress = append(progress, [2]int{done, total}) })
	elapsed := time.Since(start)
	require.NoError(t, err)

	require.Len(t, result.Icons, 4)
	for i, icon := range result.Icons {
		assert.Equal(t, fmt.Sprintf("icon-%d", i+1), icon.ID)
	}
	assert.Contains(t, result.Prompt, "ONE single rocket icon only in a professional corporate style")
	assert.Contains(t, result.Prompt, "using color palette: #112233")

	require.Len(t, gen.calls, 4)
	for _, p := range gen.calls {
		assert.Equal(t, result.Prompt, p.Prompt)
		assert.Equal(t, imagegen.Size1024x1024, p.Size)
		assert.Equal(t, imagegen.QualityHD, p.Quality)
		assert.Equal(t, imagegen.StyleVivid, p.Style)
	}

	// three gaps between four calls, none after the last
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	for i := 1; i < len(gen.times); i++ {
		assert.GreaterOrEqual(t, gen.times[i].Sub(gen.times[i-1]), 20*time.Millisecond)
	}

	assert.Equal(t, [][2]int{{0, 4}, {1, 4}, {2, 4}, {3, 4}, {4, 4}}, progress)
	assert.Equal(t, 1, counter.sets)
}

func TestOrchestrator_BypassesResultCache(t *testing.T) {
	provider := &countingProvider{}
	cache := imagegen.NewMemoryCache(time.Hour, 0)
	t.Cleanup(func() { _ = cache.Close() })
	generator := imagegen.NewGenerator(provider, nil, imagegen.WithCache(cache, time.Hour))

	o := newTestOrchestrator(&passthroughGenerator{generator: generator}, 0)
	result, err := o.Generate(t.Context(), Request{Prompt: "rocket", Style: "Sticker"}, "")
	require.NoError(t, err)

	require.Len(t, result.Icons, 4)
	assert.Equal(t, 4, provider.calls)
	seen := map[string]bool{}
	for _, icon := range result.Icons {
		seen[icon.ImageURL] = true
	}
	assert.Len(t, seen, 4)
}

func TestOrchestrator_StopsAtFirstFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New(errors.NewStd("Replicate API Error: Prediction failed with status: failed")).
		Category(errors.CategoryImageProvider).Build()
	gen := &scriptedGenerator{failAt: 2, err: boom}
	counter := &iconSetCounter{}
	o := newTestOrchestrator(gen, 0, WithMetrics(counter))

	_, err := o.Generate(t.Context(), Request{Prompt: "rocket", Style: "Sticker"}, "")
	require.Error(t, err)
	assert.Same(t, boom, err)
	assert.Len(t, gen.calls, 2)
	assert.Zero(t, counter.sets)
}

func TestOrchestrator_RateLimitMessage(t *testing.T) {
	limit := errors.New(errors.NewStd("Replicate API Error: unexpected HTTP status 429")).
		Category(errors.CategoryLimit).Build()
	gen := &scriptedGenerator{failAt: 1, err: limit}
	o := newTestOrchestrator(gen, 0)

	_, err := o.Generate(t.Context(), Request{Prompt: "rocket", Style: "Sticker"}, "")
	require.Error(t, err)
	assert.Equal(t, RateLimitMessage, err.Error())
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
}

func TestOrchestrator_CancelDuringDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	gen := &scriptedGenerator{onCall: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	o := newTestOrchestrator(gen, time.Hour)

	start := time.Now()
	_, err := o.Generate(ctx, Request{Prompt: "rocket", Style: "Sticker"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, gen.calls, 1)
}

func TestOrchestrator_InvalidRequest(t *testing.T) {
	gen := &scriptedGenerator{}
	o := newTestOrchestrator(gen, 0)

	_, err := o.Generate(t.Context(), Request{Prompt: "", Style: "Sticker"}, "")
	require.Error(t, err)
	assert.Equal(t, "Prompt is required", err.Error())
	assert.Empty(t, gen.calls)
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := NewOrchestrator(&scriptedGenerator{}, nil, nil)
	assert.Equal(t, DefaultCount, o.count)
	assert.Equal(t, DefaultDelay, o.delay)

	custom := NewOrchestrator(&scriptedGenerator{}, &conf.IconSetSettings{Count: 2, Delay: time.Second}, nil)
	assert.Equal(t, 2, custom.count)
	assert.Equal(t, time.Second, custom.delay)
}
