package api

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	mw "github.com/tphakala/iconforge/internal/api/middleware"
	"github.com/tphakala/iconforge/internal/conf"
	"github.com/tphakala/iconforge/internal/errors"
	"github.com/tphakala/iconforge/internal/observability"
)

func TestRateLimitOnAPI(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("feature", "rate-limit")

	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.WebServer.RateLimit = conf.RateLimitSettings{Enabled: true, WindowMs: 60000, MaxRequests: 2}
	})

	get := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		req.RemoteAddr = ip + ":40000"
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		return rec
	}

	first := get("/api/health", "192.0.2.10")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get(mw.HeaderRateLimitLimit))
	assert.Equal(t, "1", first.Header().Get(mw.HeaderRateLimitRemaining))
	assert.Equal(t, "2;w=60", first.Header().Get(mw.HeaderRateLimitPolicy))

	second := get("/api/health", "192.0.2.10")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get(mw.HeaderRateLimitRemaining))

	third := get("/api/health", "192.0.2.10")
	assertErrorBody(t, third, http.StatusTooManyRequests, "Too many requests, please try again later")
	assert.Equal(t, "60", third.Header().Get(mw.HeaderRateLimitReset))
	assert.Equal(t, "60", third.Header().Get("Retry-After"))

	// other clients and non-API routes are unaffected
	assert.Equal(t, http.StatusOK, get("/api/health", "192.0.2.11").Code)
	assert.Equal(t, http.StatusOK, get("/health", "192.0.2.10").Code)
	assert.Empty(t, get("/health", "192.0.2.10").Header().Get(mw.HeaderRateLimitLimit))
}

func TestMetricsMountedOnAPI(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("feature", "metrics")

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	s, svc, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.Telemetry = conf.TelemetrySettings{Enabled: true}
	}, WithMetrics(m))

	svc.On("GetByID", mock.Anything, "missing").
		Return(nil, errors.NotFoundError("Image generation with ID missing not found")).Once()

	rec := doRequest(s, http.MethodGet, "/api/generations/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`iconforge_http_requests_total{method="GET",route="/api/generations/:id",status="404"} 1`)
}

func TestMetricsNotMountedWithSeparateListener(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.Telemetry = conf.TelemetrySettings{Enabled: true, Listen: "127.0.0.1:0"}
	}, WithMetrics(m))

	rec := doRequest(s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFrontend(t *testing.T) {
	t.Parallel()
	t.Attr("component", "api")
	t.Attr("feature", "static")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>iconforge</html>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600))

	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.WebServer.StaticDir = dir
	})

	rec := doRequest(s, http.MethodGet, "/assets/app.js", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/history/42", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iconforge")
	assert.Equal(t, cacheControlNoCache, rec.Header().Get("Cache-Control"))

	rec = doRequest(s, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iconforge")

	// API paths never fall back to the shell
	rec = doRequest(s, http.MethodGet, "/api/unknown", "", nil)
	assertErrorBody(t, rec, http.StatusNotFound, "Route not found")
}

func TestStaticFrontend_MissingDirDisabled(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.WebServer.StaticDir = filepath.Join(t.TempDir(), "missing")
	})

	rec := doRequest(s, http.MethodGet, "/history", "", nil)
	assertErrorBody(t, rec, http.StatusNotFound, "Route not found")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestStartWithGracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	port := freePort(t)
	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.WebServer.Host = "127.0.0.1"
		settings.WebServer.Port = port
		settings.WebServer.ShutdownTimeout = 2 * time.Second
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.StartWithGracefulShutdown(ctx)
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: time.Second}
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := client.Get(url)
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 5*time.Second, 20*time.Millisecond)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), `"status":"ok"`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStart_ReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s, _, _ := newTestServer(t, func(settings *conf.Settings) {
		settings.WebServer.Host = "127.0.0.1"
		settings.WebServer.Port = ln.Addr().(*net.TCPAddr).Port
	})

	err = s.StartWithGracefulShutdown(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}
