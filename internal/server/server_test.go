package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cspreport/internal/cluster"
	"cspreport/internal/config"
	"cspreport/internal/credential"
	"cspreport/internal/forward"
	"cspreport/internal/ingest"
	"cspreport/internal/metrics"
	"cspreport/internal/status"
)

type countingTracker struct {
	mu    sync.Mutex
	props []map[string]any
}

func (c *countingTracker) Track(_ context.Context, _, _ string, props map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = append(c.props, props)
	return nil
}

func (c *countingTracker) tracked() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.props...)
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *countingTracker) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cache := cluster.NewCache()
	resolver := cluster.NewResolver(cache,
		cluster.WithHTTPClient(&http.Client{Transport: failingTransport{}}),
		cluster.WithMetrics(m),
	)
	tr := &countingTracker{}
	reports := ingest.NewHandler(resolver,
		credential.Selector{DevKey: "dev", ProdKey: "prod"},
		forward.New(tr, time.Second, m),
		m, cfg.MaxBodySize,
	)

	srv := httptest.NewServer(New(cfg, reports, status.NewHandler(cache), m, reg).Handler())
	t.Cleanup(srv.Close)
	return srv, tr
}

func testConfig() *config.Config {
	return &config.Config{MaxBodySize: 4096, HttpLogging: true}
}

func TestServer_Preflight(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/report", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Empty(t, body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_PostReport(t *testing.T) {
	srv, tr := newTestServer(t, testConfig())

	resp, err := srv.Client().Post(srv.URL+"/api/report", "application/csp-report",
		strings.NewReader(`{"csp-report":{"document-uri":"https://app.example.com/page"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json;charset=UTF-8", resp.Header.Get("Content-Type"))
	tracked := tr.tracked()
	require.Len(t, tracked, 1)
	assert.Equal(t, "valid", tracked[0]["parse"])
}

func TestServer_GzipReport(t *testing.T) {
	srv, tr := newTestServer(t, testConfig())

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`{"csp-report":{"blocked-uri":"inline"}}`))
	require.NoError(t, zw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/report", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Encoding", "gzip")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	tracked := tr.tracked()
	require.Len(t, tracked, 1)
	assert.Equal(t, "inline", tracked[0]["blocked-uri"])
}

func TestServer_InvalidGzip(t *testing.T) {
	srv, tr := newTestServer(t, testConfig())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/report", strings.NewReader("plain"))
	require.NoError(t, err)
	req.Header.Set("Content-Encoding", "gzip")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, tr.tracked())
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	srv, tr := newTestServer(t, cfg)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		resp, err := srv.Client().Post(srv.URL+"/api/report", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, tr.tracked(), 1)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Post(srv.URL+"/api/report", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `csp_reports_received_total{parse="error"} 1`)
	assert.Contains(t, string(body), "csp_http_requests_total")
}

func TestServer_PropagatesRequestID(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get("X-Request-Id"))
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("unreachable")
}
