package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLog appends events to the event_logs audit table.
type PgLog struct {
	pool *pgxpool.Pool
}

func NewPgLog(pool *pgxpool.Pool) *PgLog {
	return &PgLog{pool: pool}
}

func (l *PgLog) Publish(ctx context.Context, ev Event) error {
	var payload []byte
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload for %s: %w", ev.Type, err)
		}
		payload = data
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, account_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.Type, ev.AppointmentID, ev.AccountID, payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
