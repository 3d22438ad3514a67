package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp/internal/platform/config"
)

func testConfig() config.Server {
	return config.Server{
		Addr:            ":0",
		UsersPrefix:     "/users",
		ShutdownTimeout: time.Second,
		RequestTimeout:  5 * time.Second,
		Auth: config.AuthConfig{
			JWTSigningKey: "test-signing-key",
			JWTIssuer:     "erp",
			JWTAudience:   "erp-api",
			AdminRole:     "admin",
		},
		Audit: config.AuditConfig{AsyncBuffer: 16},
	}
}

func TestBuildAppInMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := buildApp(testConfig(), &infra{}, log)
	require.NoError(t, err)
	t.Cleanup(a.publisher.Close)

	t.Run("health reports ok without backends", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Empty(t, body.Backends)
	})

	t.Run("metrics endpoint exposes mounted routes gauge", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `erp_mounted_routes{mount="users"}`)
	})

	t.Run("users mount requires a bearer token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown path is not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
