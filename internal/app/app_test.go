package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalog/internal/app"
	"catalog/internal/config"
	"catalog/internal/handlers"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		ServiceName: "catalog",
		Server:      config.ServerConfig{Port: ":0", Env: "test", ShutdownTimeout: time.Second},
		JWT:         config.JWTConfig{Key: "test_jwt_secret_0123456789", Issuer: "catalog", Audience: "catalog-clients", TTL: time.Hour},
		Upload:      config.UploadConfig{Root: "wwwroot", Folder: "products", MaxBytes: 1 << 20},
		Pagination:  config.PaginationConfig{MaxLimit: 100},
	}
}

func newTestApp(t *testing.T, checks map[string]handlers.HealthCheck) (*fiber.App, *storage.FileStore) {
	t.Helper()
	cfg := testConfig()
	log := zap.NewNop()

	images := storage.NewFileStore(afero.NewMemMapFs(), cfg.Upload)
	auth := services.NewAuthService(repositories.NewMemoryUserRepository(), services.HMACHasher{}, cfg.JWT, log)
	products := services.NewProductService(repositories.NewMemoryProductRepository(), images, nil, cfg.Pagination, log)

	return app.New(cfg, app.Deps{
		Auth:     auth,
		Products: products,
		Images:   images,
		Registry: prometheus.NewRegistry(),
		Checks:   checks,
		Log:      log,
	}), images
}

func get(t *testing.T, a *fiber.App, target string) (*http.Response, string) {
	t.Helper()
	resp, err := a.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestHealth(t *testing.T) {
	a, _ := newTestApp(t, map[string]handlers.HealthCheck{
		"database": func(context.Context) error { return nil },
	})

	resp, body := get(t, a, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, map[string]any{"database": "up"}, payload["checks"])
}

func TestHealthUnhealthy(t *testing.T) {
	a, _ := newTestApp(t, map[string]handlers.HealthCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
	})

	resp, body := get(t, a, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, `"unhealthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := newTestApp(t, nil)

	get(t, a, "/health")
	resp, body := get(t, a, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `catalog_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	a, _ := newTestApp(t, nil)

	resp, _ := get(t, a, "/health")
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestUploadsAreServed(t *testing.T) {
	a, images := newTestApp(t, nil)

	ref, err := images.Save(context.Background(), storage.Upload{
		Filename:    "cat.gif",
		ContentType: "image/gif",
		Size:        6,
		Reader:      strings.NewReader("GIF89a"),
	})
	require.NoError(t, err)

	resp, body := get(t, a, ref)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GIF89a", body)

	resp, _ = get(t, a, "/uploads/products/missing.png")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductsRequireAuth(t *testing.T) {
	a, _ := newTestApp(t, nil)

	resp, body := get(t, a, "/api/products")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, `"success":false`)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	a, _ := newTestApp(t, nil)

	resp, body := get(t, a, "/api/nothing-here")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, false, payload["success"])
}

func TestPanicIsRecovered(t *testing.T) {
	a, _ := newTestApp(t, nil)
	a.Get("/panic", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, body := get(t, a, "/panic")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Internal server error")
	assert.NotContains(t, body, "kaboom")
}
