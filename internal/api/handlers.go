package api

import (
	"context"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	mw "github.com/tphakala/iconforge/internal/api/middleware"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/generation"
	"github.com/tphakala/iconforge/internal/iconset"
	"github.com/tphakala/iconforge/internal/imagegen"
)

// GenerationService generates and manages image generation records.
// Implemented by generation.Service.
type GenerationService interface {
	GenerateAndSave(ctx context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error)
	GetByID(ctx context.Context, id string) (*datastore.ImageGeneration, error)
	List(ctx context.Context, filters datastore.GenerationFilters) (generation.Page, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, userID string) (datastore.GenerationStats, error)
}

// IconSetGenerator generates icon sets. Implemented by iconset.Orchestrator.
type IconSetGenerator interface {
	Generate(ctx context.Context, req iconset.Request, userID string) (iconset.Result, error)
}

// Pagination limits for GET /api/generations
const (
	MaxPageSize = 100
)

// Validation messages
const (
	msgPromptRequired = "Prompt is required"
	msgPromptLength   = "Prompt must be between 1 and 4000 characters"
	msgSize           = "Size must be one of: 1024x1024, 1792x1024, 1024x1792"
	msgQuality        = "Quality must be either standard or hd"
	msgStyle          = "Style must be either vivid or natural"
	msgPage           = "Page must be a positive integer"
	msgPageSize       = "Page size must be between 1 and 100"
	msgStatus         = "Status must be one of: success, failed, pending"
)

var (
	validSizes     = []imagegen.Size{imagegen.Size1024x1024, imagegen.Size1792x1024, imagegen.Size1024x1792}
	validQualities = []imagegen.Quality{imagegen.QualityStandard, imagegen.QualityHD}
	validStyles    = []imagegen.Style{imagegen.StyleVivid, imagegen.StyleNatural}
)

// SuccessResponse wraps successful payloads
type SuccessResponse struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes a page of list results
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// GenerationResponse is the public view of a freshly generated image
type GenerationResponse struct {
	ID               string    `json:"id"`
	Prompt           string    `json:"prompt"`
	ImageURL         string    `json:"imageUrl"`
	RevisedPrompt    *string   `json:"revisedPrompt"`
	Size             string    `json:"size"`
	Quality          string    `json:"quality"`
	Style            string    `json:"style"`
	GenerationTimeMs int64     `json:"generationTimeMs"`
	CreatedAt        time.Time `json:"createdAt"`
}

// IconSetResponse is the public view of a generated icon set
type IconSetResponse struct {
	Prompt string               `json:"prompt"`
	Icons  []GenerationResponse `json:"icons"`
}

func toGenerationResponse(g *datastore.ImageGeneration) GenerationResponse {
	return GenerationResponse{
		ID:               g.ID,
		Prompt:           g.Prompt,
		ImageURL:         g.ImageURL,
		RevisedPrompt:    g.RevisedPrompt,
		Size:             g.Size,
		Quality:          g.Quality,
		Style:            g.Style,
		GenerationTimeMs: g.GenerationTimeMs,
		CreatedAt:        g.CreatedAt,
	}
}

// generateImageRequest is the body of POST /api/generate-image
type generateImageRequest struct {
	Prompt  *string `json:"prompt"`
	Size    string  `json:"size"`
	Quality string  `json:"quality"`
	Style   string  `json:"style"`
}

// params validates the request and returns generation params with a trimmed prompt
func (r generateImageRequest) params() (imagegen.Params, error) {
	var msgs []string

	var prompt string
	switch {
	case r.Prompt == nil || *r.Prompt == "":
		// an empty prompt also fails the length rule
		msgs = append(msgs, msgPromptRequired, msgPromptLength)
	default:
		prompt = strings.TrimSpace(*r.Prompt)
		if n := utf8.RuneCountInString(prompt); n < 1 || n > imagegen.MaxPromptLength {
			msgs = append(msgs, msgPromptLength)
		}
	}

	if r.Size != "" && !slices.Contains(validSizes, imagegen.Size(r.Size)) {
		msgs = append(msgs, msgSize)
	}
	if r.Quality != "" && !slices.Contains(validQualities, imagegen.Quality(r.Quality)) {
		msgs = append(msgs, msgQuality)
	}
	if r.Style != "" && !slices.Contains(validStyles, imagegen.Style(r.Style)) {
		msgs = append(msgs, msgStyle)
	}

	if len(msgs) > 0 {
		return imagegen.Params{}, validationError(msgs)
	}

	return imagegen.Params{
		Prompt:  prompt,
		Size:    imagegen.Size(r.Size),
		Quality: imagegen.Quality(r.Quality),
		Style:   imagegen.Style(r.Style),
	}, nil
}

// bindJSON decodes the request body, reporting malformed JSON as a validation error
func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return err
		}
		return errors.ValidationError(msgInvalidBody)
	}
	return nil
}

// userID returns the optional caller identity header
func userID(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(mw.HeaderUserID))
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// apiHealthCheck handles GET /api/health
func (s *Server) apiHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"message":   "API is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// generateImage handles POST /api/generate-image
func (s *Server) generateImage(c echo.Context) error {
	var req generateImageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	params, err := req.params()
	if err != nil {
		return err
	}

	record, err := s.generations.GenerateAndSave(c.Request().Context(), params, userID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Data:    toGenerationResponse(record),
	})
}

// generateIcons handles POST /api/generate-icons
func (s *Server) generateIcons(c echo.Context) error {
	var req iconset.Request
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	result, err := s.iconSets.Generate(c.Request().Context(), req, userID(c))
	if err != nil {
		return err
	}

	icons := make([]GenerationResponse, 0, len(result.Icons))
	for _, icon := range result.Icons {
		icons = append(icons, toGenerationResponse(icon))
	}

	return c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Data: IconSetResponse{
			Prompt: result.Prompt,
			Icons:  icons,
		},
	})
}

// parseListQuery validates the list query parameters
func parseListQuery(c echo.Context) (datastore.GenerationFilters, error) {
	var msgs []string

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			msgs = append(msgs, msgPage)
		} else {
			page = n
		}
	}

	pageSize := generation.DefaultPageSize
	if raw := c.QueryParam("pageSize"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 || n > MaxPageSize {
			msgs = append(msgs, msgPageSize)
		} else {
			pageSize = n
		}
	}

	status := c.QueryParam("status")
	if status != "" && !slices.Contains(datastore.ValidStatuses, status) {
		msgs = append(msgs, msgStatus)
	}

	if len(msgs) > 0 {
		return datastore.GenerationFilters{}, validationError(msgs)
	}

	return datastore.GenerationFilters{
		UserID: strings.TrimSpace(c.QueryParam("userId")),
		Status: status,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}, nil
}

// listGenerations handles GET /api/generations
func (s *Server) listGenerations(c echo.Context) error {
	filters, err := parseListQuery(c)
	if err != nil {
		return err
	}

	result, err := s.generations.List(c.Request().Context(), filters)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    result.Data,
		Pagination: &Pagination{
			Page:       result.Page,
			PageSize:   result.PageSize,
			Total:      result.Total,
			TotalPages: totalPages(result.Total, result.PageSize),
		},
	})
}

func totalPages(total int64, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// generationStats handles GET /api/generations/stats
func (s *Server) generationStats(c echo.Context) error {
	stats, err := s.generations.Stats(c.Request().Context(), strings.TrimSpace(c.QueryParam("userId")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: stats})
}

// getGeneration handles GET /api/generations/:id
func (s *Server) getGeneration(c echo.Context) error {
	record, err := s.generations.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: record})
}

// deleteGeneration handles DELETE /api/generations/:id
func (s *Server) deleteGeneration(c echo.Context) error {
	if err := s.generations.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Generation deleted successfully",
	})
}
