package directory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
)

type countingReader struct {
	*appointment.MemoryGateway
	calls int
}

func (r *countingReader) GetAccount(ctx context.Context, id uuid.UUID) (*appointment.Account, error) {
	r.calls++
	return r.MemoryGateway.GetAccount(ctx, id)
}

func TestLabelCachesAccounts(t *testing.T) {
	ctx := context.Background()
	gw := appointment.NewMemoryGateway()
	acc, err := gw.CreateAccount(ctx, appointment.Account{DisplayName: "Dr. Okafor", Role: appointment.RoleProvider, Active: true})
	require.NoError(t, err)

	reader := &countingReader{MemoryGateway: gw}
	d, err := New(reader, 8, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "Dr. Okafor", d.Label(ctx, acc.ID, appointment.RoleProvider))
	assert.Equal(t, "Dr. Okafor", d.Label(ctx, acc.ID, appointment.RoleProvider))
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, 1, d.Len())

	_, err = gw.UpdateAccount(ctx, acc.ID, appointment.AccountPatch{DisplayName: ptr("Dr. A. Okafor")})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Okafor", d.Label(ctx, acc.ID, appointment.RoleProvider))

	d.Invalidate(acc.ID)
	assert.Equal(t, "Dr. A. Okafor", d.Label(ctx, acc.ID, appointment.RoleProvider))
	assert.Equal(t, 2, reader.calls)
}

func TestLabelPlaceholders(t *testing.T) {
	ctx := context.Background()
	gw := appointment.NewMemoryGateway()
	reader := &countingReader{MemoryGateway: gw}
	d, err := New(reader, 8, zerolog.Nop())
	require.NoError(t, err)

	missing := uuid.New()
	assert.Equal(t, UnknownProvider, d.Label(ctx, missing, appointment.RoleProvider))
	assert.Equal(t, UnknownPatient, d.Label(ctx, missing, appointment.RolePatient))
	assert.Equal(t, UnknownAccount, d.Label(ctx, uuid.Nil, appointment.RoleStaff))
	assert.Equal(t, 0, d.Len())

	// a dangling id is not cached, so an account created later resolves
	_, err = gw.CreateAccount(ctx, appointment.Account{ID: missing, DisplayName: "Lena Park", Role: appointment.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, "Lena Park", d.Label(ctx, missing, appointment.RolePatient))
}

type brokenReader struct{}

func (brokenReader) GetAccount(context.Context, uuid.UUID) (*appointment.Account, error) {
	return nil, errors.New("store offline")
}

func TestLabelFallsBackOnStoreFailure(t *testing.T) {
	d, err := New(brokenReader{}, 0, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, UnknownPatient, d.Label(context.Background(), uuid.New(), appointment.RolePatient))
}

func TestLabelConcurrentUse(t *testing.T) {
	ctx := context.Background()
	gw := appointment.NewMemoryGateway()
	var ids []uuid.UUID
	for _, name := range []string{"Dr. Okafor", "Dr. Rivera", "Dr. Chen"} {
		acc, err := gw.CreateAccount(ctx, appointment.Account{DisplayName: name, Role: appointment.RoleProvider, Active: true})
		require.NoError(t, err)
		ids = append(ids, acc.ID)
	}

	d, err := New(gw, 2, zerolog.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ids[(w+i)%len(ids)]
				assert.NotEqual(t, UnknownProvider, d.Label(ctx, id, appointment.RoleProvider))
				if i%7 == 0 {
					d.Invalidate(id)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, d.Len(), 2)
}

func ptr[T any](v T) *T {
	return &v
}
