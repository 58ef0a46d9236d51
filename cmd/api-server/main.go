package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-ops-console/internal/api"
	"github.com/hackgods/clinical-ops-console/internal/app"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/logging"
	redisclient "github.com/hackgods/clinical-ops-console/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info", "api-server")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Str("timezone", cfg.TimeZone).
		Msg("api-server starting up")

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET unset, every request runs as administrator")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.Build(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing connections")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerConfig(core, cfg, logger)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// removal confirmation is synchronous, leave room for a full run
		WriteTimeout: cfg.RemovalConfirmTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
			core.Close()
			os.Exit(1)
		}
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func routerConfig(core *app.App, cfg config.Config, logger zerolog.Logger) api.RouterConfig {
	rc := api.RouterConfig{
		Service:   core.Service,
		Removal:   core.Removal,
		Gateway:   core.Gateway,
		Directory: core.Directory,
		Logger:    logger,
		JWTSecret: cfg.JWTSecret,
		RateRPS:   cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
		Env:       cfg.Env,
		Version:   version,
	}
	// a typed nil would read as an enabled dependency
	if core.Pool != nil {
		rc.Postgres = core.Pool
	}
	if core.Redis != nil {
		rc.Redis = redisclient.NewHealthCheck(core.Redis)
	}
	return rc
}
