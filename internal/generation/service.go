// Package generation records image generation attempts and serves the stored history.
package generation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/events"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
)

// DefaultPageSize is used when List is called without a limit
const DefaultPageSize = 20

// ImageGenerator produces images. Implemented by imagegen.Generator.
type ImageGenerator interface {
	Generate(ctx context.Context, params imagegen.Params) (imagegen.GeneratedImage, error)
}

// MetricsRecorder counts finished generations by status
type MetricsRecorder interface {
	RecordGeneration(status string)
}

// Page is one page of generation records
type Page struct {
	Data     []datastore.ImageGeneration
	Total    int64
	Page     int
	PageSize int
}

// Service generates images and keeps a record of every attempt
type Service struct {
	generator ImageGenerator
	repo      datastore.GenerationRepository
	publisher events.Publisher
	metrics   MetricsRecorder
	log       logger.Logger
}

// Option configures a Service
type Option func(*Service)

// WithPublisher publishes an event for every saved record
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithMetrics counts generations by status
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service. A nil generator gives a read-only service
// whose GenerateAndSave fails with a configuration error.
func NewService(generator ImageGenerator, repo datastore.GenerationRepository, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Service{
		generator: generator,
		repo:      repo,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateAndSave generates one image and persists the attempt, successful or not.
// Invalid params are rejected before anything is generated or stored.
func (s *Service) GenerateAndSave(ctx context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if s.generator == nil {
		return nil, errors.Newf("image generation is not configured").
			Component("generation").
			Category(errors.CategoryConfiguration).
			Public().
			Build()
	}

	start := time.Now()
	img, genErr := s.generator.Generate(ctx, params)
	elapsed := time.Since(start)

	record := &datastore.ImageGeneration{
		Prompt:           params.Prompt,
		Size:             string(params.Size),
		Quality:          string(params.Quality),
		Style:            string(params.Style),
		UserID:           datastore.StringPtr(userID),
		GenerationTimeMs: elapsed.Milliseconds(),
		Status:           datastore.StatusSuccess,
	}
	if genErr != nil {
		record.Status = datastore.StatusFailed
		record.ErrorMessage = datastore.StringPtr(genErr.Error())
	} else {
		record.ImageURL = img.URL
		record.RevisedPrompt = datastore.StringPtr(img.RevisedPrompt)
	}

	// The record is written even if the caller has gone away
	saveErr := s.repo.Create(context.WithoutCancel(ctx), record)
	if saveErr != nil {
		s.log.Error("failed to save generation record",
			logger.String("status", record.Status),
			logger.Error(saveErr))
	} else {
		s.publish(ctx, record)
	}

	if s.metrics != nil {
		s.metrics.RecordGeneration(record.Status)
	}

	if genErr != nil {
		return nil, genErr
	}
	if saveErr != nil {
		return nil, errors.New(errors.NewStd("Image generation failed")).
			Component("generation").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityHigh).
			Public().
			Context("cause", saveErr.Error()).
			Build()
	}

	s.log.Info("generation saved",
		logger.String("generation_id", record.ID),
		logger.Int64("generation_time_ms", record.GenerationTimeMs))

	return record, nil
}

func (s *Service) publish(ctx context.Context, record *datastore.ImageGeneration) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.NewGenerationEvent(record)); err != nil {
		s.log.Warn("failed to publish generation event",
			logger.String("generation_id", record.ID),
			logger.Error(err))
	}
}

// GetByID returns one record or a not-found error
func (s *Service) GetByID(ctx context.Context, id string) (*datastore.ImageGeneration, error) {
	gen, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, datastore.ErrGenerationNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// List returns a page of records. Limit defaults to DefaultPageSize.
func (s *Service) List(ctx context.Context, filters datastore.GenerationFilters) (Page, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	var (
		data  []datastore.ImageGeneration
		total int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = s.repo.List(gctx, filters)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}

	if data == nil {
		data = []datastore.ImageGeneration{}
	}

	return Page{
		Data:     data,
		Total:    total,
		Page:     filters.Offset/filters.Limit + 1,
		PageSize: filters.Limit,
	}, nil
}

// Delete removes a record or returns a not-found error
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound(id)
	}
	s.log.Info("generation deleted", logger.String("generation_id", id))
	return nil
}

// Stats summarizes records, optionally for a single user
func (s *Service) Stats(ctx context.Context, userID string) (datastore.GenerationStats, error) {
	return s.repo.Stats(ctx, datastore.GenerationFilters{UserID: userID})
}

func notFound(id string) error {
	return errors.NotFoundError(fmt.Sprintf("Image generation with ID %s not found", id))
}
