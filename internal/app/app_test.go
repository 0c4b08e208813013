package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locadora/console/internal/audit"
	audithttp "github.com/locadora/console/internal/audit/http"
	"github.com/locadora/console/internal/observability"
	"github.com/locadora/console/jobs"
)

func TestLoadConfigRequiresBackendURL(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("BACKEND_URL", "localhost:3000")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("BACKEND_URL", "http://localhost:3000/api")
	t.Setenv("LOW_STOCK_THRESHOLD", "4")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.LowStockThreshold)
	assert.Equal(t, "America/Sao_Paulo", cfg.BusinessTimezone)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://localhost:3000")
	t.Setenv("BUSINESS_TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func newTestRouter(readiness map[string]Pinger) http.Handler {
	cfg := &Config{AppEnv: "test", RateLimitPerMin: 1000}
	return NewRouter(RouterParams{
		Config:       cfg,
		JobHandler:   jobs.NewHandler(nil, nil),
		AuditHandler: audithttp.NewHandler(nil, audit.NewService(nil)),
		Metrics:      observability.NewMetrics(),
		Readiness:    readiness,
	})
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Ratelimit-Limit"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "locadora_http_requests_total")
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	router := newTestRouter(map[string]Pinger{
		"redis":   PingFunc(func(ctx context.Context) error { return nil }),
		"backend": PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Checks["redis"])
	assert.Equal(t, "connection refused", body.Checks["backend"])
}

func TestAuditRouteWithoutStorage(t *testing.T) {
	router := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
