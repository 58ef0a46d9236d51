package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
)

const (
	UnknownProvider = "Unknown provider"
	UnknownPatient  = "Unknown patient"
	UnknownAccount  = "Unknown account"
)

type AccountReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*appointment.Account, error)
}

// Directory resolves account ids to display labels for appointment views.
// Only real accounts are cached; a dangling id is looked up again next time.
type Directory struct {
	repo  AccountReader
	cache *lru.Cache[uuid.UUID, appointment.Account]
	log   zerolog.Logger
}

func New(repo AccountReader, size int, logger zerolog.Logger) (*Directory, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[uuid.UUID, appointment.Account](size)
	if err != nil {
		return nil, err
	}
	return &Directory{
		repo:  repo,
		cache: cache,
		log:   logger.With().Str("component", "directory").Logger(),
	}, nil
}

func Placeholder(role appointment.Role) string {
	switch role {
	case appointment.RoleProvider:
		return UnknownProvider
	case appointment.RolePatient:
		return UnknownPatient
	}
	return UnknownAccount
}

// Label returns the display name of id, or the placeholder for role when the
// account is missing or cannot be read.
func (d *Directory) Label(ctx context.Context, id uuid.UUID, role appointment.Role) string {
	if id == uuid.Nil {
		return Placeholder(role)
	}

	if acc, ok := d.cache.Get(id); ok {
		return labelOf(acc, role)
	}

	found, err := d.repo.GetAccount(ctx, id)
	if err != nil {
		if !errors.Is(err, appointment.ErrNotFound) {
			d.log.Warn().Err(err).Str("account_id", id.String()).Msg("label lookup failed")
		}
		return Placeholder(role)
	}

	d.cache.Add(id, *found)

	return labelOf(*found, role)
}

func labelOf(acc appointment.Account, role appointment.Role) string {
	if acc.DisplayName == "" {
		return Placeholder(role)
	}
	return acc.DisplayName
}

// Invalidate drops id so the next Label reads the store again.
func (d *Directory) Invalidate(id uuid.UUID) {
	d.cache.Remove(id)
}

func (d *Directory) Len() int {
	return d.cache.Len()
}
