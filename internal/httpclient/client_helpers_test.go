package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient builds a Client closed at test end. A nil cfg uses the defaults.
func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client := New(cfg)
	t.Cleanup(client.Close)
	return client
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// closeResponseBody drains and closes resp so the connection can be reused
func closeResponseBody(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		t.Logf("closing response body: %v", err)
	}
}
