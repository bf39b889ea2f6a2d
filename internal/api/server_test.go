package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/datastore"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/generation"
	"github.com/tphakala/iconforge/internal/iconset"
	"github.com/tphakala/iconforge/internal/imagegen"
	"github.com/tphakala/iconforge/internal/logger"
)

type mockGenerationService struct {
	mock.Mock
}

func (m *mockGenerationService) GenerateAndSave(ctx context.Context, params imagegen.Params, userID string) (*datastore.ImageGeneration, error) {
	args := m.Called(ctx, params, userID)
	rec, _ := args.Get(0).(*datastore.ImageGeneration)
	return rec, args.Error(1)
}

func (m *mockGenerationService) GetByID(ctx context.Context, id string) (*datastore.ImageGeneration, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*datastore.ImageGeneration)
	return rec, args.Error(1)
}

func (m *mockGenerationService) List(ctx context.Context, filters datastore.GenerationFilters) (generation.Page, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).(generation.Page), args.Error(1)
}

func (m *mockGenerationService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockGenerationService) Stats(ctx context.Context, userID string) (datastore.GenerationStats, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(datastore.GenerationStats), args.Error(1)
}

type mockIconSets struct {
	mock.Mock
}

func (m *mockIconSets) Generate(ctx context.Context, req iconset.Request, userID string) (iconset.Result, error) {
	args := m.Called(ctx, req, userID)
	return args.Get(0).(iconset.Result), args.Error(1)
}

func testSettings() *conf.Settings {
	return &conf.Settings{
		WebServer: conf.WebServerSettings{
			Port:       3000,
			CorsOrigin: "*",
			BodyLimit:  "10M",
		},
	}
}

// newTestServer builds a server with mocked dependencies. mutate may adjust settings.
func newTestServer(t *testing.T, mutate func(*conf.Settings), opts ...ServerOption) (*Server, *mockGenerationService, *mockIconSets) {
	t.Helper()

	settings := testSettings()
	if mutate != nil {
		mutate(settings)
	}

	svc := &mockGenerationService{}
	icons := &mockIconSets{}
	opts = append([]ServerOption{
		WithLogger(logger.NewNopLogger()),
		WithGenerationService(svc),
		WithIconSetGenerator(icons),
	}, opts...)

	s, err := New(settings, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		svc.AssertExpectations(t)
		icons.AssertExpectations(t)
	})
	return s, svc, icons
}

func doRequest(s *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// assertErrorBody checks the shared error response shape
func assertErrorBody(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "error object missing")
	assert.Equal(t, message, errObj["message"])
	assert.InDelta(t, status, errObj["statusCode"], 0)
}

func sampleRecord(id string) *datastore.ImageGeneration {
	return &datastore.ImageGeneration{
		ID:               id,
		Prompt:           "a cat",
		Size:             "1024x1024",
		Quality:          "standard",
		Style:            "vivid",
		ImageURL:         "https://replicate.delivery/" + id + ".webp",
		GenerationTimeMs: 1200,
		Status:           datastore.StatusSuccess,
		UserID:           datastore.StringPtr("user-1"),
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("type", "unit")

	s, _, _ := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])

	rec = doRequest(s, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "API is running", body["message"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"), "request id header should be set")
}

func TestGenerateImage(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("type", "unit")
	t.Attr("feature", "generate-image")

	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		mockSetup  func(*mock.Mock)
		wantStatus int
		wantError  string
		check      func(*testing.T, map[string]any)
	}{
		{
			name:    "success trims prompt and passes user id",
			body:    `{"prompt":"  a cat  ","size":"1024x1024"}`,
			headers: map[string]string{"X-User-Id": "user-1"},
			mockSetup: func(m *mock.Mock) {
				m.On("GenerateAndSave", mock.Anything,
					imagegen.Params{Prompt: "a cat", Size: imagegen.Size1024x1024}, "user-1").
					Return(sampleRecord("gen-1"), nil).Once()
			},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, true, body["success"])
				data := body["data"].(map[string]any)
				assert.Equal(t, "gen-1", data["id"])
				assert.Equal(t, "https://replicate.delivery/gen-1.webp", data["imageUrl"])
				assert.Nil(t, data["revisedPrompt"])
				assert.InDelta(t, 1200, data["generationTimeMs"], 0)
				assert.Equal(t, "2026-01-02T03:04:05Z", data["createdAt"])
				assert.NotContains(t, data, "status", "create response exposes the public fields only")
			},
		},
		{
			name:       "missing prompt",
			body:       `{}`,
			mockSetup:  func(m *mock.Mock) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt is required, Prompt must be between 1 and 4000 characters",
		},
		{
			name:       "empty body",
			body:       "",
			mockSetup:  func(m *mock.Mock) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt is required, Prompt must be between 1 and 4000 characters",
		},
		{
			name:       "whitespace prompt",
			body:       `{"prompt":"   "}`,
			mockSetup:  func(m *mock.Mock) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt must be between 1 and 4000 characters",
		},
		{
			name:       "prompt too long",
			body:       `{"prompt":"` + strings.Repeat("a", imagegen.MaxPromptLength+1) + `"}`,
			mockSetup:  func(m *mock.Mock) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt must be between 1 and 4000 characters",
		},
		{
			name:       "several invalid fields are joined",
			body:       `{"size":"10x10","quality":"ultra","style":"noir"}`,
			mockSetup:  func(m *mock.Mock) {},
			wantStatus: http.StatusBadRequest,
			wantError: "Prompt is required, Prompt must be between 1 and 4000 characters, " +
				"Size must be one of: 1024x1024, 1792x1024, 1024x1792, " +
				"Quality must be either standard or hd, Style must be either vivid or natural",
		},
		{
			name:       "malformed json",
			body:       `{"prompt":`,
			mockSetup:  func(m *mock.Mock) {},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
		{
			name: "provider failure maps to bad gateway",
			body: `{"prompt":"a cat"}`,
			mockSetup: func(m *mock.Mock) {
				m.On("GenerateAndSave", mock.Anything, mock.Anything, "").
					Return(nil, errors.Newf("Replicate API Error: prediction failed").
						Category(errors.CategoryImageProvider).Build()).Once()
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "Replicate API Error: prediction failed",
		},
		{
			name: "provider rate limit maps to 429",
			body: `{"prompt":"a cat"}`,
			mockSetup: func(m *mock.Mock) {
				m.On("GenerateAndSave", mock.Anything, mock.Anything, "").
					Return(nil, errors.Newf("Replicate API Error: rate limited").
						Category(errors.CategoryLimit).Build()).Once()
			},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "Replicate API Error: rate limited",
		},
		{
			name: "uncategorized error is hidden",
			body: `{"prompt":"a cat"}`,
			mockSetup: func(m *mock.Mock) {
				m.On("GenerateAndSave", mock.Anything, mock.Anything, "").
					Return(nil, errors.NewStd("dial tcp 10.0.0.1:3306: refused")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, svc, _ := newTestServer(t, nil)
			tt.mockSetup(&svc.Mock)

			rec := doRequest(s, http.MethodPost, "/api/generate-image", tt.body, tt.headers)

			if tt.wantError != "" {
				assertErrorBody(t, rec, tt.wantStatus, tt.wantError)
				return
			}
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, decodeBody(t, rec))
			}
		})
	}
}

func TestGenerateIcons(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("feature", "generate-icons")

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		s, _, icons := newTestServer(t, nil)

		req := iconset.Request{Prompt: "rocket", Style: "Sticker", Colors: []string{"#FF0000"}}
		icons.On("Generate", mock.Anything, req, "user-9").Return(iconset.Result{
			Prompt: "Create a single icon of rocket",
			Icons:  []*datastore.ImageGeneration{sampleRecord("a"), sampleRecord("b")},
		}, nil).Once()

		rec := doRequest(s, http.MethodPost, "/api/generate-icons",
			`{"prompt":"rocket","style":"Sticker","colors":["#FF0000"]}`,
			map[string]string{"X-User-Id": "user-9"})

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, "Create a single icon of rocket", data["prompt"])
		list := data["icons"].([]any)
		require.Len(t, list, 2)
		assert.Equal(t, "b", list[1].(map[string]any)["id"])
	})

	t.Run("validation error from orchestrator", func(t *testing.T) {
		t.Parallel()
		s, _, icons := newTestServer(t, nil)
		icons.On("Generate", mock.Anything, mock.Anything, "").
			Return(iconset.Result{}, errors.ValidationError("Prompt is required")).Once()

		rec := doRequest(s, http.MethodPost, "/api/generate-icons", `{"style":"Sticker"}`, nil)
		assertErrorBody(t, rec, http.StatusBadRequest, "Prompt is required")
	})

	t.Run("rate limit message", func(t *testing.T) {
		t.Parallel()
		s, _, icons := newTestServer(t, nil)
		icons.On("Generate", mock.Anything, mock.Anything, "").
			Return(iconset.Result{}, errors.Newf("%s", iconset.RateLimitMessage).
				Category(errors.CategoryLimit).Build()).Once()

		rec := doRequest(s, http.MethodPost, "/api/generate-icons", `{"prompt":"rocket","style":"Sticker"}`, nil)
		assertErrorBody(t, rec, http.StatusTooManyRequests, iconset.RateLimitMessage)
	})
}

func TestListGenerations(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("feature", "list")

	tests := []struct {
		name        string
		query       string
		wantFilters *datastore.GenerationFilters
		page        generation.Page
		wantError   string
		wantPages   float64
	}{
		{
			name:        "defaults",
			query:       "",
			wantFilters: &datastore.GenerationFilters{Limit: 20, Offset: 0},
			page:        generation.Page{Data: []datastore.ImageGeneration{}, Total: 0, Page: 1, PageSize: 20},
			wantPages:   0,
		},
		{
			name:        "filters and paging",
			query:       "?page=2&pageSize=10&status=failed&userId=%20u1%20",
			wantFilters: &datastore.GenerationFilters{UserID: "u1", Status: "failed", Limit: 10, Offset: 10},
			page:        generation.Page{Data: []datastore.ImageGeneration{*sampleRecord("x")}, Total: 21, Page: 2, PageSize: 10},
			wantPages:   3,
		},
		{
			name:      "invalid page",
			query:     "?page=0",
			wantError: "Page must be a positive integer",
		},
		{
			name:      "non numeric page size",
			query:     "?pageSize=abc",
			wantError: "Page size must be between 1 and 100",
		},
		{
			name:  "all invalid",
			query: "?page=-1&pageSize=101&status=done",
			wantError: "Page must be a positive integer, Page size must be between 1 and 100, " +
				"Status must be one of: success, failed, pending",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, svc, _ := newTestServer(t, nil)
			if tt.wantFilters != nil {
				svc.On("List", mock.Anything, *tt.wantFilters).Return(tt.page, nil).Once()
			}

			rec := doRequest(s, http.MethodGet, "/api/generations"+tt.query, "", nil)

			if tt.wantError != "" {
				assertErrorBody(t, rec, http.StatusBadRequest, tt.wantError)
				return
			}
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, true, body["success"])
			assert.Len(t, body["data"], len(tt.page.Data))

			pagination := body["pagination"].(map[string]any)
			assert.InDelta(t, tt.page.Page, pagination["page"], 0)
			assert.InDelta(t, tt.page.PageSize, pagination["pageSize"], 0)
			assert.InDelta(t, tt.page.Total, pagination["total"], 0)
			assert.InDelta(t, tt.wantPages, pagination["totalPages"], 0)
		})
	}
}

func TestGenerationStats(t *testing.T) {
	t.Parallel()
	s, svc, _ := newTestServer(t, nil)

	svc.On("Stats", mock.Anything, "user-1").Return(datastore.GenerationStats{
		Total: 3, Successful: 2, Failed: 1, AverageGenerationTimeMs: 1500,
	}, nil).Once()

	rec := doRequest(s, http.MethodGet, "/api/generations/stats?userId=user-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.InDelta(t, 3, data["total"], 0)
	assert.InDelta(t, 2, data["successful"], 0)
	assert.InDelta(t, 1, data["failed"], 0)
	assert.InDelta(t, 1500, data["averageGenerationTimeMs"], 0)
}

func TestGetAndDeleteGeneration(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("feature", "records")

	notFound := errors.NotFoundError("Image generation with ID missing not found")

	t.Run("get found", func(t *testing.T) {
		t.Parallel()
		s, svc, _ := newTestServer(t, nil)
		svc.On("GetByID", mock.Anything, "gen-1").Return(sampleRecord("gen-1"), nil).Once()

		rec := doRequest(s, http.MethodGet, "/api/generations/gen-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, "gen-1", data["id"])
		assert.Equal(t, "success", data["status"])
		assert.Equal(t, "user-1", data["userId"])
	})

	t.Run("get missing", func(t *testing.T) {
		t.Parallel()
		s, svc, _ := newTestServer(t, nil)
		svc.On("GetByID", mock.Anything, "missing").Return(nil, notFound).Once()

		rec := doRequest(s, http.MethodGet, "/api/generations/missing", "", nil)
		assertErrorBody(t, rec, http.StatusNotFound, "Image generation with ID missing not found")
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		s, svc, _ := newTestServer(t, nil)
		svc.On("Delete", mock.Anything, "gen-1").Return(nil).Once()

		rec := doRequest(s, http.MethodDelete, "/api/generations/gen-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Generation deleted successfully", body["message"])
	})

	t.Run("delete missing", func(t *testing.T) {
		t.Parallel()
		s, svc, _ := newTestServer(t, nil)
		svc.On("Delete", mock.Anything, "missing").Return(notFound).Once()

		rec := doRequest(s, http.MethodDelete, "/api/generations/missing", "", nil)
		assertErrorBody(t, rec, http.StatusNotFound, "Image generation with ID missing not found")
	})
}

func TestUnknownRoutes(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	for _, path := range []string{"/api/nope", "/nope"} {
		rec := doRequest(s, http.MethodGet, path, "", nil)
		assertErrorBody(t, rec, http.StatusNotFound, "Route not found")
	}
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.WebServer.BodyLimit = "1K"
	})

	body := `{"prompt":"` + strings.Repeat("a", 2048) + `"}`
	rec := doRequest(s, http.MethodPost, "/api/generate-image", body, nil)
	assertErrorBody(t, rec, http.StatusRequestEntityTooLarge, "Request entity too large")
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, nil)

	rec := doRequest(s, http.MethodOptions, "/api/generate-image", "", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": http.MethodPost,
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()
	s, svc, _ := newTestServer(t, nil)

	svc.On("Stats", mock.MatchedBy(func(ctx context.Context) bool {
		return logger.RequestIDFromContext(ctx) == "req-123"
	}), "").Return(datastore.GenerationStats{}, nil).Once()

	rec := doRequest(s, http.MethodGet, "/api/generations/stats", "", map[string]string{"X-Request-Id": "req-123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(testSettings(), WithLogger(logger.NewNopLogger()))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	settings := testSettings()
	settings.WebServer.Port = 70000
	_, err = New(settings, WithLogger(logger.NewNopLogger()),
		WithGenerationService(&mockGenerationService{}), WithIconSetGenerator(&mockIconSets{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between 1 and 65535")
}

type fixedGenerator struct{}

func (fixedGenerator) Generate(ctx context.Context, params imagegen.Params) (imagegen.GeneratedImage, error) {
	return imagegen.GeneratedImage{URL: "https://replicate.delivery/fixed.png", RevisedPrompt: params.Prompt}, nil
}

// newStoreServer builds a server over a real generation service on SQLite
// whose generations table has been dropped, so every query fails.
func newStoreServer(t *testing.T) *Server {
	t.Helper()

	mgr, err := datastore.NewSQLiteManager(filepath.Join(t.TempDir(), "broken.sqlite"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize())
	require.NoError(t, mgr.DB().Migrator().DropTable(&datastore.ImageGeneration{}))

	svc := generation.NewService(fixedGenerator{}, datastore.NewGenerationRepository(mgr.DB()), logger.NewNopLogger())
	s, err := New(testSettings(),
		WithLogger(logger.NewNopLogger()),
		WithGenerationService(svc),
		WithIconSetGenerator(&mockIconSets{}))
	require.NoError(t, err)
	return s
}

func TestDatabaseErrorsAreHidden(t *testing.T) {
	t.Parallel()
	s := newStoreServer(t)

	for _, target := range []string{"/api/generations", "/api/generations/stats", "/api/generations/some-id"} {
		rec := doRequest(s, http.MethodGet, target, "", nil)
		assertErrorBody(t, rec, http.StatusInternalServerError, "Internal server error")
		assert.NotContains(t, rec.Body.String(), "image_generations", target)
	}

	rec := doRequest(s, http.MethodDelete, "/api/generations/some-id", "", nil)
	assertErrorBody(t, rec, http.StatusInternalServerError, "Internal server error")
}

func TestFailedSaveKeepsPublicMessage(t *testing.T) {
	t.Parallel()
	s := newStoreServer(t)

	rec := doRequest(s, http.MethodPost, "/api/generate-image", `{"prompt":"a cat"}`, nil)
	assertErrorBody(t, rec, http.StatusInternalServerError, "Image generation failed")
}
