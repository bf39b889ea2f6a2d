package observability

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/iconforge/internal/conf"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.ImageGen.RecordGeneration("success")
	m.HTTP.RequestStarted()
	m.HTTP.RequestFinished("GET", "/health", 200, time.Millisecond, 32)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `iconforge_generations_total{status="success"} 1`)
	assert.Contains(t, body, `iconforge_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewEndpoint_RequiresTelemetry(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.Settings{}, m, nil)
	assert.Error(t, err)

	_, err = NewEndpoint(&conf.Settings{Telemetry: conf.TelemetrySettings{Enabled: true}}, m, nil)
	assert.Error(t, err, "listen address is required")
}

func TestEndpoint_ServesMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	// reserve a free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m, err := NewMetrics()
	require.NoError(t, err)

	e, err := NewEndpoint(&conf.Settings{Telemetry: conf.TelemetrySettings{Enabled: true, Listen: addr}}, m, nil)
	require.NoError(t, err)
	require.NoError(t, e.Start())

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "iconforge_cache_hits_total")

	require.NoError(t, e.Shutdown(t.Context()))
}
