package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/db"
	"github.com/hackgods/clinical-ops-console/internal/logging"
)

const (
	providerCount        = 25
	patientCount         = 400
	appointmentsPerDoc   = 60
	recordsPerPatientMax = 3
	batchSize            = 500
)

var (
	visitTypes = []string{"consultation", "follow-up", "annual check", "vaccination", "lab review", "telehealth"}
	rooms      = []string{"Room 1", "Room 2", "Room 3", "Imaging", "Lab", "Telehealth"}
	slots      = []string{"08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "13:30", "14:00", "14:30", "15:00", "3:45 PM", "16:00"}

	// values found in older imports that the console still has to show
	malformedDates = []string{"TBD", "next week", "31/02/2026", ""}
	recordTitles   = []string{"Visit summary", "Lab results", "Prescription", "Referral letter", "Imaging report"}
	recordNotes    = []string{
		"No change since last visit.",
		"Follow up in six weeks.",
		"Results within normal range.",
		"Dosage adjusted, review at next appointment.",
	}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("prod", "info", "seed")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	if cfg.StoreBackend != config.BackendPostgres {
		logger.Fatal().Str("store", cfg.StoreBackend).Msg("seed only writes to the postgres backend")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	providers, err := seedAccounts(ctx, pool, logger, appointment.RoleProvider, providerCount, func() string {
		return "Dr. " + gofakeit.Name()
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	patients, err := seedAccounts(ctx, pool, logger, appointment.RolePatient, patientCount, gofakeit.Name)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	today := appointment.CalendarDay(time.Now().In(cfg.Location()))
	if err := seedAppointments(ctx, pool, logger, providers, patients, today); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}
	if err := seedRecords(ctx, pool, logger, providers, patients); err != nil {
		logger.Fatal().Err(err).Msg("seed records")
	}

	logger.Info().Msg("seed complete")
}

func seedAccounts(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, role appointment.Role, count int, name func() string) ([]uuid.UUID, error) {
	logger.Info().Str("role", string(role)).Int("count", count).Msg("seeding accounts")

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO accounts (id, display_name, role, active, last_modified_at)
				VALUES ($1, $2, $3, true, now())
			`, id, name(), role)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, providers, patients []uuid.UUID, today time.Time) error {
	total := len(providers) * appointmentsPerDoc
	logger.Info().Int("count", total).Str("reference_date", today.Format(appointment.DateLayout)).Msg("seeding appointments")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	written := 0
	for _, providerID := range providers {
		for i := 0; i < appointmentsPerDoc; i++ {
			day := today.AddDate(0, 0, gofakeit.Number(-30, 45))
			date := day.Format(appointment.DateLayout)
			if gofakeit.Number(1, 100) <= 2 {
				date = gofakeit.RandomString(malformedDates)
			}

			status, reason := pickStatus(day.Before(today))

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, provider_id, patient_id, scheduled_date, scheduled_time, type,
					status, cancellation_reason, location, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, now(), now())
			`, uuid.New(), providerID, patients[gofakeit.Number(0, len(patients)-1)], date,
				gofakeit.RandomString(slots), gofakeit.RandomString(visitTypes), status, reason,
				gofakeit.RandomString(rooms))
			if err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}

			written++
			if written%batchSize == 0 {
				if err := tx.Commit(ctx); err != nil {
					return err
				}
				logger.Info().Int("written", written).Int("total", total).Msg("appointments seeded")
				if tx, err = pool.Begin(ctx); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}

// pickStatus leaves some past appointments scheduled so the console has
// stale items to tidy up.
func pickStatus(past bool) (appointment.AppointmentStatus, string) {
	n := gofakeit.Number(1, 100)
	switch {
	case n <= 10:
		return appointment.StatusCancelled, gofakeit.RandomString([]string{
			"patient request", "provider unavailable", appointment.DefaultCancellationReason,
		})
	case past && n <= 85:
		return appointment.StatusCompleted, ""
	case n <= 55:
		return appointment.StatusConfirmed, ""
	}
	return appointment.StatusScheduled, ""
}

func seedRecords(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, providers, patients []uuid.UUID) error {
	logger.Info().Int("patients", len(patients)).Msg("seeding clinical records")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, patientID := range patients {
		n := gofakeit.Number(0, recordsPerPatientMax)
		for i := 0; i < n; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO clinical_records (id, patient_id, provider_id, title, body, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
			`, uuid.New(), patientID, providers[gofakeit.Number(0, len(providers)-1)],
				gofakeit.RandomString(recordTitles),
				fmt.Sprintf("Seen by %s. %s", gofakeit.Name(), gofakeit.RandomString(recordNotes)))
			if err != nil {
				return fmt.Errorf("insert clinical record: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}
