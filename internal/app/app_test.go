package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/removal"
)

func TestBuildMemoryBackend(t *testing.T) {
	cfg := config.Config{
		Env:                   "dev",
		TimeZone:              "UTC",
		StoreBackend:          config.BackendMemory,
		RemovalConcurrency:    1,
		RemovalConfirmTimeout: time.Second,
		DirectoryCacheSize:    8,
	}

	a, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Redis)
	require.IsType(t, &appointment.MemoryGateway{}, a.Gateway)

	ctx := context.Background()
	acc, err := a.Gateway.CreateAccount(ctx, appointment.Account{DisplayName: "Dr. Okafor", Role: appointment.RoleProvider, Active: true})
	require.NoError(t, err)

	out := a.Removal.RemoveAccount(ctx, acc.ID, appointment.RoleProvider, nil)
	assert.Equal(t, removal.Success, out.Kind)
	assert.Equal(t, "Dr. Okafor", a.Directory.Label(ctx, acc.ID, appointment.RoleProvider))
	assert.NoError(t, a.Close())
}
