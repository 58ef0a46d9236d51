package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/directory"
	"github.com/hackgods/clinical-ops-console/internal/removal"
)

type RouterConfig struct {
	Service   *appointment.Service
	Removal   *removal.Coordinator
	Gateway   appointment.Gateway
	Directory *directory.Directory
	Postgres  Pinger
	Redis     Pinger
	Logger    zerolog.Logger
	JWTSecret string
	RateRPS   float64
	RateBurst int
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RateRPS > 0 {
			r.Use(NewRateLimiter(cfg.RateRPS, cfg.RateBurst).Middleware)
		}
		r.Use(AuthMiddleware(cfg.JWTSecret))

		// Appointment endpoints
		r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Directory))
		r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Directory))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service, cfg.Directory))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service, cfg.Directory))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service, cfg.Directory))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service, cfg.Directory))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, cfg.Directory))

		// Account endpoints
		r.Get("/accounts", listAccountsHandler(cfg.Gateway))
		r.Get("/accounts/{id}", getAccountHandler(cfg.Gateway))
		r.Get("/accounts/{id}/removal", removalPreviewHandler(cfg.Removal, cfg.Directory))

		// Clinical record endpoints
		r.Get("/records", listRecordsHandler(cfg.Gateway))
		r.Post("/records", createRecordHandler(cfg.Gateway))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdministrator))
			r.Post("/accounts/{id}/removal", removeAccountHandler(cfg.Removal, cfg.Directory))
			r.Post("/accounts/{id}/deactivation", retryDeactivationHandler(cfg.Removal, cfg.Directory))
			r.Delete("/records/{id}", removeRecordHandler(cfg.Gateway))
		})
	})

	return r
}
