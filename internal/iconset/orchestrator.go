package iconset

import (
	"context"
	"time"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
)

// Defaults for an icon set
const (
	DefaultCount = 4
	DefaultDelay = 2 * time.Second
)

// RateLimitMessage replaces provider rate limit errors
const RateLimitMessage = "Rate limit exceeded. Please wait a moment and try again."

// Generator generates and records a single image. Implemented by generation.Service.
type Generator interface {
	GenerateAndSave(ctx context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error)
}

// MetricsRecorder counts completed icon sets
type MetricsRecorder interface {
	RecordIconSet()
}

// ProgressFunc is called before each icon with the number already generated
type ProgressFunc func(done, total int)

// Result is a generated icon set
type Result struct {
	Prompt string
	Icons  []*datastore.ImageGeneration
}

// Orchestrator generates icon sets one image at a time
type Orchestrator struct {
	generator Generator
	count     int
	delay     time.Duration
	metrics   MetricsRecorder
	log       logger.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics counts completed sets
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an Orchestrator. Nil settings or a non-positive count
// use the defaults.
func NewOrchestrator(generator Generator, settings *conf.IconSetSettings, log logger.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	o := &Orchestrator{
		generator: generator,
		count:     DefaultCount,
		delay:     DefaultDelay,
		log:       log,
	}
	if settings != nil {
		if settings.Count > 0 {
			o.count = settings.Count
		}
		if settings.Delay >= 0 {
			o.delay = settings.Delay
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate builds the icon prompt and generates the set
func (o *Orchestrator) Generate(ctx context.Context, req Request, userID string) (Result, error) {
	return o.GenerateWithProgress(ctx, req, userID, nil)
}

// GenerateWithProgress is Generate with a progress callback. Icons are generated
// sequentially with the configured delay between calls. The first failure stops
// the set.
func (o *Orchestrator) GenerateWithProgress(ctx context.Context, req Request, userID string, progress ProgressFunc) (Result, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	params := imagegen.Params{
		Prompt:  prompt,
		Size:    imagegen.Size1024x1024,
		Quality: imagegen.QualityHD,
		Style:   imagegen.StyleVivid,
		N:       1,
	}

	// every icon in a set shares its params, so each one must reach the provider
	ctx = imagegen.SkipCache(ctx)

	start := time.Now()
	result := Result{Prompt: prompt, Icons: make([]*datastore.ImageGeneration, 0, o.count)}

	for i := range o.count {
		if progress != nil {
			progress(i, o.count)
		}

		icon, err := o.generator.GenerateAndSave(ctx, params, userID)
		if err != nil {
			o.log.Warn("icon set generation stopped",
				logger.Int("generated", i),
				logger.Int("total", o.count),
				logger.Error(err))
			return Result{}, translateError(err)
		}
		result.Icons = append(result.Icons, icon)

		if i < o.count-1 {
			if err := o.wait(ctx); err != nil {
				return Result{}, err
			}
		}
	}

	if progress != nil {
		progress(o.count, o.count)
	}
	if o.metrics != nil {
		o.metrics.RecordIconSet()
	}

	o.log.Info("icon set generated",
		logger.Int("icons", len(result.Icons)),
		logger.Duration("elapsed", time.Since(start)))

	return result, nil
}

// wait sleeps for the configured delay unless ctx ends first
func (o *Orchestrator) wait(ctx context.Context) error {
	if o.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("iconset").
			Category(errors.CategoryCancellation).
			Build()
	}
}

func translateError(err error) error {
	if errors.IsCategory(err, errors.CategoryLimit) {
		return errors.New(errors.NewStd(RateLimitMessage)).
			Component("iconset").
			Category(errors.CategoryLimit).
			Context("cause", err.Error()).
			Build()
	}
	return err
}
