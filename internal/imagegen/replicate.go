package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/httpclient"
	"github.com/tphakala/iconforge/internal/logger"
)

// Provider generates one image for validated params
type Provider interface {
	Generate(ctx context.Context, params Params) (GeneratedImage, error)
}

// GeneratedImage is a provider result
type GeneratedImage struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// Terminal prediction statuses reported by Replicate
const (
	predictionSucceeded = "succeeded"
	predictionFailed    = "failed"
	predictionCanceled  = "canceled"
)

const defaultPollInterval = time.Second

// prediction is the subset of Replicate's prediction object we read
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func (p *prediction) terminal() bool {
	switch p.Status {
	case predictionSucceeded, predictionFailed, predictionCanceled:
		return true
	}
	return false
}

type predictionInput struct {
	Prompt        string `json:"prompt"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	NumOutputs    int    `json:"num_outputs"`
	OutputFormat  string `json:"output_format"`
	OutputQuality int    `json:"output_quality"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

// ReplicateProvider generates images through Replicate's predictions API
type ReplicateProvider struct {
	client       *httpclient.Client
	transport    http.RoundTripper
	baseURL      string
	model        string
	version      string
	pollInterval time.Duration
	timeout      time.Duration
	log          logger.Logger
}

// ReplicateOption configures a ReplicateProvider
type ReplicateOption func(*ReplicateProvider)

// WithTransport replaces the HTTP transport, used by tests
func WithTransport(rt http.RoundTripper) ReplicateOption {
	return func(p *ReplicateProvider) {
		p.transport = rt
	}
}

// NewReplicateProvider creates a provider from settings. A missing API token is
// a configuration error.
func NewReplicateProvider(settings *conf.ReplicateSettings, log logger.Logger, opts ...ReplicateOption) (*ReplicateProvider, error) {
	if strings.TrimSpace(settings.APIToken) == "" {
		return nil, errors.Newf("REPLICATE_API_TOKEN is not configured").
			Component("imagegen").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	p := &ReplicateProvider{
		baseURL:      strings.TrimSuffix(settings.BaseURL, "/"),
		model:        settings.Model,
		version:      settings.Version,
		pollInterval: settings.PollInterval,
		timeout:      settings.Timeout,
		log:          log,
	}
	if p.baseURL == "" {
		p.baseURL = conf.DefaultReplicateBaseURL
	}
	if p.version == "" {
		p.version = conf.DefaultReplicateVersion
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}

	for _, opt := range opts {
		opt(p)
	}

	p.client = httpclient.New(&httpclient.Config{
		DefaultTimeout: 30 * time.Second,
		Headers:        http.Header{"Authorization": []string{"Bearer " + settings.APIToken}},
		Transport:      p.transport,
	})

	return p, nil
}

// Generate creates a prediction and waits for it to finish
func (p *ReplicateProvider) Generate(ctx context.Context, params Params) (GeneratedImage, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	width, height := params.Size.Dimensions()
	numOutputs := max(params.N, 1)

	p.log.Info("calling Replicate API for image generation",
		logger.String("prompt", logger.Truncate(params.Prompt, 100)),
		logger.String("model", p.model))

	var pred prediction
	err := p.client.DoJSON(ctx, http.MethodPost, p.baseURL+"/v1/predictions", predictionRequest{
		Version: p.version,
		Input: predictionInput{
			Prompt:        params.Prompt,
			Width:         width,
			Height:        height,
			NumOutputs:    numOutputs,
			OutputFormat:  "png",
			OutputQuality: params.Quality.OutputQuality(),
		},
	}, &pred)
	if err != nil {
		return GeneratedImage{}, err
	}

	p.log.Debug("waiting for Replicate prediction", logger.String("prediction_id", pred.ID))

	completed, err := p.wait(ctx, &pred)
	if err != nil {
		return GeneratedImage{}, err
	}

	if completed.Status != predictionSucceeded {
		return GeneratedImage{}, errors.Newf("Prediction failed with status: %s", completed.Status).
			Component("imagegen").
			Category(errors.CategoryImageProvider).
			Context("prediction_id", completed.ID).
			Context("prediction_error", fmt.Sprint(completed.Error)).
			Build()
	}

	url, err := decodeOutput(completed.Output)
	if err != nil {
		return GeneratedImage{}, err
	}

	return GeneratedImage{
		URL: url,
		// the model does not rewrite prompts
		RevisedPrompt: params.Prompt,
	}, nil
}

// wait polls the prediction until it reaches a terminal status or ctx ends
func (p *ReplicateProvider) wait(ctx context.Context, pred *prediction) (*prediction, error) {
	if pred.ID == "" && !pred.terminal() {
		return nil, errors.Newf("Replicate returned a prediction without an id").
			Component("imagegen").
			Category(errors.CategoryImageProvider).
			Build()
	}

	// one status request per poll interval, the create call used the first slot
	limiter := rate.NewLimiter(rate.Every(p.pollInterval), 1)
	limiter.Allow()

	for !pred.terminal() {
		if err := limiter.Wait(ctx); err != nil {
			// Wait fails before the deadline when the next slot falls past it
			if ctx.Err() == nil {
				err = context.DeadlineExceeded
			}
			return nil, errors.New(err).
				Component("imagegen").
				Category(errors.CategoryTimeout).
				NetworkContext(p.baseURL, p.timeout).
				Context("prediction_id", pred.ID).
				Context("last_status", pred.Status).
				Build()
		}

		var next prediction
		if err := p.client.DoJSON(ctx, http.MethodGet, p.baseURL+"/v1/predictions/"+pred.ID, nil, &next); err != nil {
			return nil, err
		}
		if next.ID == "" {
			next.ID = pred.ID
		}
		pred = &next
	}

	return pred, nil
}

// decodeOutput accepts either a list of URLs or a single URL string
func decodeOutput(raw json.RawMessage) (string, error) {
	var output any
	if err := json.Unmarshal(raw, &output); err != nil {
		return "", errUnexpectedOutput(raw)
	}

	switch v := output.(type) {
	case []any:
		if len(v) == 0 {
			return "", errUnexpectedOutput(raw)
		}
		if url, ok := v[0].(string); ok && url != "" {
			return url, nil
		}
		return "", errNoValidURL()
	case string:
		if v == "" {
			return "", errNoValidURL()
		}
		return v, nil
	default:
		// null, objects, numbers and booleans
		return "", errUnexpectedOutput(raw)
	}
}

func errUnexpectedOutput(raw json.RawMessage) error {
	return errors.Newf("Unexpected output format from Replicate").
		Component("imagegen").
		Category(errors.CategoryImageProvider).
		Context("output", logger.Truncate(string(raw), 200)).
		Build()
}

func errNoValidURL() error {
	return errors.Newf("No valid URL returned from Replicate").
		Component("imagegen").
		Category(errors.CategoryImageProvider).
		Build()
}

// ValidateAPIKey reports whether the configured token can list models
func (p *ReplicateProvider) ValidateAPIKey(ctx context.Context) bool {
	if err := p.client.DoJSON(ctx, http.MethodGet, p.baseURL+"/v1/models", nil, nil); err != nil {
		p.log.Error("Replicate API key validation failed", logger.Error(err))
		return false
	}
	return true
}

// Close releases idle connections
func (p *ReplicateProvider) Close() {
	p.client.Close()
}
