package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"erpquery/internal/catalog"
	"erpquery/internal/config"
	"erpquery/internal/handler"
	"erpquery/internal/model"
	"erpquery/internal/service"
)

type emptyFetcher struct{}

func (emptyFetcher) Fetch(context.Context, string, string, []model.Filter) ([]model.Record, error) {
	return []model.Record{}, nil
}

func testRouter(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{
			GinMode:           gin.ReleaseMode,
			AllowedOrigins:    "*",
			APIKey:            "secret",
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	cat, err := catalog.Default()
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	// nil chat client: every interpretation fails, which is enough to exercise routing
	interpreter, err := service.NewLLMInterpreter(nil, nil, time.Minute, log)
	require.NoError(t, err)
	sessions := service.NewSessionStore(time.Minute, log)
	qs := service.NewQueryService(cat, interpreter, emptyFetcher{}, sessions, log)
	limiter := handler.NewRateLimiter(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow)

	return newRouter(cfg, cat, qs, sessions, nil, limiter, log)
}

func serve(r http.Handler, method, path, body, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicEndpoints(t *testing.T) {
	r := testRouter(t, nil)

	w := serve(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = serve(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "erpquery_")

	w = serve(r, http.MethodGet, "/api/v1/nope", "", "secret")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "API endpoint not found")
}

func TestRouter_ProtectedEndpoints(t *testing.T) {
	r := testRouter(t, nil)

	for _, path := range []string{"/query", "/api/v1/query"} {
		w := serve(r, http.MethodPost, path, `{"query":"anything"}`, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = serve(r, http.MethodPost, path, `{"query":"anything"}`, "secret")
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"success":false`, path)
	}

	w := serve(r, http.MethodGet, "/api/v1/services", "", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_DebugSkipsAPIKey(t *testing.T) {
	r := testRouter(t, func(cfg *config.Config) { cfg.Server.GinMode = gin.DebugMode })

	w := serve(r, http.MethodGet, "/api/v1/services", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RateLimited(t *testing.T) {
	r := testRouter(t, func(cfg *config.Config) { cfg.Server.RateLimitRequests = 2 })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/services", "", "secret").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/api/v1/services", "", "secret").Code)

	// health is not rate limited
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "", "").Code)
}

func TestRouter_Widget(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.js"), []byte("console.log(1)"), 0o644))

	r := testRouter(t, func(cfg *config.Config) { cfg.Server.WidgetDir = dir })
	w := serve(r, http.MethodGet, "/widget/widget.js", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())
}

func TestRouter_SessionHistoryDisabledWithoutDatabase(t *testing.T) {
	r := testRouter(t, nil)

	w := serve(r, http.MethodGet, "/api/v1/session/abc/history", "", "secret")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Query history is not enabled")

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/session/abc/history", "", "").Code)
}

func TestRouter_DiagnosticsEntities(t *testing.T) {
	r := testRouter(t, nil)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/diagnostics/entities", "", "").Code)

	w := serve(r, http.MethodGet, "/api/v1/diagnostics/entities", "", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"Entity test completed"`)
	assert.Contains(t, w.Body.String(), `"entityName":"A_BusinessPartner"`)
}
