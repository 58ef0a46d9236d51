package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinical-ops-console/internal/api"
	"github.com/hackgods/clinical-ops-console/internal/app"
	"github.com/hackgods/clinical-ops-console/internal/config"
)

func TestRouterConfigWithMemoryBackend(t *testing.T) {
	cfg := config.Config{
		Env:                   "dev",
		TimeZone:              "UTC",
		StoreBackend:          config.BackendMemory,
		RemovalConcurrency:    1,
		RemovalConfirmTimeout: time.Second,
		DirectoryCacheSize:    8,
		RateLimitRPS:          100,
		RateLimitBurst:        100,
	}
	core, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer core.Close()

	rc := routerConfig(core, cfg, zerolog.Nop())
	assert.Nil(t, rc.Postgres)
	assert.Nil(t, rc.Redis)
	assert.Equal(t, version, rc.Version)

	rec := httptest.NewRecorder()
	api.NewRouter(rc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ready api.ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])
	assert.Equal(t, "disabled", ready.Dependencies["redis"])
}
