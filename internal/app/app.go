package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/db"
	"github.com/hackgods/clinical-ops-console/internal/directory"
	"github.com/hackgods/clinical-ops-console/internal/events"
	redisclient "github.com/hackgods/clinical-ops-console/internal/redis"
	"github.com/hackgods/clinical-ops-console/internal/removal"
)

// App holds the wired core shared by the server and the CLI.
type App struct {
	Config    config.Config
	Logger    zerolog.Logger
	Gateway   appointment.Gateway
	Service   *appointment.Service
	Removal   *removal.Coordinator
	Directory *directory.Directory
	Pool      *pgxpool.Pool
	Redis     *redis.Client

	closers []func() error
}

// Build connects the configured backends and wires the services. Redis and
// AMQP are optional; Postgres is required unless the memory backend is used.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var publishers events.Multi

	switch cfg.StoreBackend {
	case config.BackendMemory:
		a.Gateway = appointment.NewMemoryGateway()
		logger.Warn().Msg("using in-memory store, data is lost on exit")
	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Gateway = appointment.NewPgGateway(pool)
		publishers = append(publishers, events.NewPgLog(pool))
		logger.Info().Msg("connected to Postgres")
	}

	var locker redisclient.Locker = redisclient.NopLocker{}
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		locker = redisclient.NewRedisAccountLocker(rdb, cfg.LockTTL)
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("redis disabled, removals are not serialized across instances")
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("amqp connection: %w", err)
		}
		publishers = append(publishers, pub)
		a.closers = append(a.closers, pub.Close)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing events to AMQP")
	}

	dir, err := directory.New(a.Gateway, cfg.DirectoryCacheSize, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("directory cache: %w", err)
	}
	a.Directory = dir

	a.Service = appointment.NewService(a.Gateway, publishers, cfg, logger)
	a.Removal = removal.NewCoordinator(a.Gateway, a.Service, locker, publishers, cfg, logger)

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
