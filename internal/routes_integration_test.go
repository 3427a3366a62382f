package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exportsite/internal/analytics"
	"exportsite/internal/config"
	"exportsite/internal/testsupport"
)

const testAPIKey = "dashboard-secret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppName:                  "exportsite",
		AppPort:                  "0",
		Environment:              config.Test,
		LogLevel:                 config.LogLevelError,
		DatabaseType:             config.SQLiteDatabase,
		DatabaseName:             filepath.Join(t.TempDir(), "exportsite-test.db"),
		GeoProvider:              config.GeoProviderNone,
		IngestWorkers:            1,
		IngestQueueSize:          16,
		IngestTaskTimeoutSeconds: 5,
		DashboardAPIKey:          testAPIKey,
		ResourceTables:           map[string]string{"product": "products"},
		MetricsEnabled:           true,
	}
}

func newTestApplication(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	app, err := NewAppWithLogger(cfg, testsupport.GetLogger())
	require.NoError(t, err)
	require.NoError(t, app.DBManager.MigrateDatabase())
	app.Pool.Start()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, app.Shutdown(ctx))
	})
	return app
}

func do(t *testing.T, app *Application, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Server.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func trackRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/track", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	return req
}

func drain(t *testing.T, app *Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Pool.Stop(ctx))
}

func TestTrackToSummaryRoundTrip(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	resp, body := do(t, app, trackRequest(`{"path":"/about","sessionId":"s-1"}`))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = do(t, app, trackRequest(`{"path":"/products/olive-oil","pageType":"DYNAMIC","resourceType":"product","resourceSlug":"olive-oil","sessionId":"s-1"}`))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body = do(t, app, trackRequest(`{"pageName":"nowhere"}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Path is required"}`, body)

	drain(t, app)
	assert.Equal(t, int64(2), testsupport.CountPageViews(t, app.DBManager.GetConnection()))

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/summary?days=7", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, body = do(t, app, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var summary analytics.Summary
	require.NoError(t, json.Unmarshal([]byte(body), &summary))
	assert.Equal(t, int64(2), summary.Totals.PageViews)
	assert.Equal(t, int64(1), summary.Totals.Sessions)
	assert.Equal(t, int64(1), summary.Totals.ResourceViews)
	require.Len(t, summary.TopResources, 1)
	assert.Equal(t, "olive-oil", summary.TopResources[0].Slug)
	require.Len(t, summary.Browsers, 1)
	assert.Equal(t, "Chrome", summary.Browsers[0].Name)
}

func TestTrackPreflight(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	resp, _ := do(t, app, httptest.NewRequest(http.MethodOptions, "/api/track", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestSummaryRequiresAPIKey(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/analytics/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/summary", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthRoutes(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/_health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"ok"`)

	resp, _ = do(t, app, httptest.NewRequest(http.MethodHead, "/_health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	resp, _ := do(t, app, trackRequest(`{"path":"/"}`))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	do(t, app, trackRequest(`{}`))
	drain(t, app)

	resp, body := do(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "exportsite_pageviews_accepted_total 1")
	assert.Contains(t, body, "exportsite_pageviews_rejected_total 1")
	assert.Contains(t, body, "exportsite_pageviews_persisted_total 1")
	assert.Contains(t, body, "exportsite_ingest_queue_depth 0")
}

func TestMetricsRouteDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = false
	app := newTestApplication(t, cfg)

	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, trackRequest(`{"path":"/"}`))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestNewAppMaxMindWithoutDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeoProvider = config.GeoProviderMaxMind
	cfg.GeoDBPath = filepath.Join(t.TempDir(), "missing.mmdb")

	_, err := NewAppWithLogger(cfg, testsupport.GetLogger())
	require.Error(t, err)

	cfg.GeoLiteLicenseKey = "license"
	app := newTestApplication(t, cfg)
	require.Len(t, app.Scheduler.Jobs(), 1)
	assert.Equal(t, "geolite_updater", app.Scheduler.Jobs()[0].Name())
}

func TestStartAsyncAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetentionDays = 30
	app, err := NewAppWithLogger(cfg, testsupport.GetLogger())
	require.NoError(t, err)
	require.NoError(t, app.DBManager.MigrateDatabase())

	require.NoError(t, app.StartAsync())
	assert.True(t, app.Scheduler.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
	assert.False(t, app.Scheduler.IsRunning())
	assert.Nil(t, app.DBManager.GetConnection())
}
