package app

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/observability"
)

func TestRouterServesHealthAndMetricsWithoutToken(t *testing.T) {
	auth, err := ParseAPITokens("7:" + hashToken(t, "s3cret"))
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "test"},
		Auth:    auth,
		Metrics: metrics,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `odyssey_http_requests_total{code="200",route="/healthz"} 1`), rr.Body.String())
}

func TestAccessLogRecordsRoute(t *testing.T) {
	var buf bytes.Buffer
	auth, err := ParseAPITokens("")
	require.NoError(t, err)
	router := NewRouter(RouterParams{
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
		Config: &Config{AppEnv: "test"},
		Auth:   auth,
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, buf.String(), `"msg":"http request"`)
	require.Contains(t, buf.String(), `"route":"/healthz"`)
	require.Contains(t, buf.String(), `"status":200`)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("FX_ANCHOR_CURRENCY", "EUR")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "EUR", cfg.FXAnchorCurrency)
	require.Equal(t, 200, cfg.AuditPageSize)
	require.False(t, cfg.IsProduction())

	t.Setenv("APP_ENV", "production")
	_, err = LoadConfig()
	require.Error(t, err, "production requires API tokens")

	t.Setenv("APP_ENV", "development")
	t.Setenv("FX_ANCHOR_CURRENCY", "EURO")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf strings.Builder
	logger := newLogger(&Config{AppEnv: "test", LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("entry_id", 4))
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"entry_id":4`)
	require.Contains(t, out, `"service":"odyssey-gl"`)
}
