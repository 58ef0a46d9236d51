package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	accountColumns     = `id, display_name, role, active, last_modified_at`
	appointmentColumns = `id, provider_id, patient_id, scheduled_date, scheduled_time, type, status,
		cancellation_reason, location, created_at, updated_at`
	recordColumns = `id, patient_id, provider_id, title, body, created_at`
)

// PgGateway is the Postgres-backed Gateway.
type PgGateway struct {
	pool *pgxpool.Pool
}

func NewPgGateway(pool *pgxpool.Pool) *PgGateway {
	return &PgGateway{pool: pool}
}

// Helpers

// classify maps driver errors onto the gateway taxonomy. notFound is
// returned for pgx.ErrNoRows.
func classify(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%s: %w: %s", op, ErrConstraintViolation, pgErr.Message)
	}
	return gatewayErr(op, err)
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.DisplayName,
		&a.Role,
		&a.Active,
		&a.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, location, apptType *string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.ScheduledDate,
		&a.ScheduledTime,
		&apptType,
		&a.Status,
		&reason,
		&location,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if apptType != nil {
		a.Type = *apptType
	}
	if reason != nil {
		a.CancellationReason = *reason
	}
	if location != nil {
		a.Location = *location
	}
	return &a, nil
}

func scanRecord(row pgx.Row) (*ClinicalRecord, error) {
	var r ClinicalRecord
	var providerID *uuid.UUID
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&providerID,
		&r.Title,
		&r.Body,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if providerID != nil {
		r.ProviderID = *providerID
	}
	return &r, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// setBuilder collects "col = $n" assignments and their arguments.
type setBuilder struct {
	sets []string
	args []any
}

func (b *setBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *setBuilder) set(col string, v any) {
	b.sets = append(b.sets, col+" = "+b.arg(v))
}

// Accounts

func (r *PgGateway) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, classify("get account", err, ErrAccountNotFound)
	}
	return acc, nil
}

func (r *PgGateway) FetchAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	var b setBuilder
	where := []string{"true"}
	if filter.Role != "" {
		where = append(where, "role = "+b.arg(filter.Role))
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY display_name, id
	`, b.args...)
	if err != nil {
		return nil, gatewayErr("fetch accounts", err)
	}
	defer rows.Close()

	var result []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, gatewayErr("scan account", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayErr("fetch accounts", err)
	}
	return result, nil
}

func (r *PgGateway) CreateAccount(ctx context.Context, acc Account) (*Account, error) {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, display_name, role, active, last_modified_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING `+accountColumns, acc.ID, acc.DisplayName, acc.Role, acc.Active)

	created, err := scanAccount(row)
	if err != nil {
		return nil, classify("create account", err, ErrAccountNotFound)
	}
	return created, nil
}

func (r *PgGateway) UpdateAccount(ctx context.Context, id uuid.UUID, patch AccountPatch) (*Account, error) {
	b := setBuilder{args: []any{id}}
	b.sets = append(b.sets, "last_modified_at = now()")
	if patch.Active != nil {
		b.set("active", *patch.Active)
	}
	if patch.DisplayName != nil {
		b.set("display_name", *patch.DisplayName)
	}
	where := "id = $1"
	if patch.ExpectActive != nil {
		where += " AND active = " + b.arg(*patch.ExpectActive)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET `+strings.Join(b.sets, ", ")+`
		WHERE `+where+`
		RETURNING `+accountColumns, b.args...)

	acc, err := scanAccount(row)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update account", err, ErrAccountNotFound)
	}
	return nil, r.missOrConflict(ctx, "accounts", id, ErrAccountNotFound)
}

// Appointments

func (r *PgGateway) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, classify("get appointment", err, ErrAppointmentNotFound)
	}
	return appt, nil
}

func (r *PgGateway) FetchAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error) {
	var b setBuilder
	where := []string{"true"}
	if filter.ProviderID != uuid.Nil {
		where = append(where, "provider_id = "+b.arg(filter.ProviderID))
	}
	if filter.PatientID != uuid.Nil {
		where = append(where, "patient_id = "+b.arg(filter.PatientID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+b.arg(statuses)+")")
	}
	if filter.FromDate != "" {
		// canonical dates compare correctly as text; malformed ones never match
		where = append(where,
			`scheduled_date ~ '^\d{4}-\d{2}-\d{2}$'`,
			"scheduled_date >= "+b.arg(filter.FromDate))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY scheduled_date, scheduled_time, id
	`, b.args...)
	if err != nil {
		return nil, gatewayErr("fetch appointments", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, gatewayErr("scan appointment", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayErr("fetch appointments", err)
	}
	return result, nil
}

func (r *PgGateway) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, scheduled_date, scheduled_time, type,
			status, cancellation_reason, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.ProviderID, appt.PatientID, appt.ScheduledDate, appt.ScheduledTime, appt.Type,
		appt.Status, appt.CancellationReason, appt.Location)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, classify("create appointment", err, ErrAppointmentNotFound)
	}
	return created, nil
}

// UpdateAppointment applies patch; with ExpectStatus set the row is only
// touched while its status still matches.
func (r *PgGateway) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	b := setBuilder{args: []any{id}}
	b.sets = append(b.sets, "updated_at = now()")
	if patch.Status != nil {
		b.set("status", *patch.Status)
	}
	if patch.CancellationReason != nil {
		b.sets = append(b.sets, "cancellation_reason = NULLIF("+b.arg(*patch.CancellationReason)+", '')")
	}
	if patch.ScheduledDate != nil {
		b.set("scheduled_date", *patch.ScheduledDate)
	}
	if patch.ScheduledTime != nil {
		b.set("scheduled_time", *patch.ScheduledTime)
	}
	where := "id = $1"
	if patch.ExpectStatus != nil {
		where += " AND status = " + b.arg(*patch.ExpectStatus)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET `+strings.Join(b.sets, ", ")+`
		WHERE `+where+`
		RETURNING `+appointmentColumns, b.args...)

	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update appointment", err, ErrAppointmentNotFound)
	}
	return nil, r.missOrConflict(ctx, "appointments", id, ErrAppointmentNotFound)
}

// missOrConflict tells an absent row apart from a failed conditional update.
func (r *PgGateway) missOrConflict(ctx context.Context, table string, id uuid.UUID, notFound error) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return gatewayErr("check "+table, err)
	}
	if exists {
		return ErrStatusConflict
	}
	return notFound
}

// Clinical records

func (r *PgGateway) CreateRecord(ctx context.Context, rec ClinicalRecord) (*ClinicalRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clinical_records (id, patient_id, provider_id, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING `+recordColumns, rec.ID, rec.PatientID, nullableUUID(rec.ProviderID), rec.Title, rec.Body)

	created, err := scanRecord(row)
	if err != nil {
		return nil, classify("create record", err, ErrRecordNotFound)
	}
	return created, nil
}

func (r *PgGateway) FetchRecords(ctx context.Context, filter RecordFilter) ([]ClinicalRecord, error) {
	var b setBuilder
	where := []string{"true"}
	if filter.PatientID != uuid.Nil {
		where = append(where, "patient_id = "+b.arg(filter.PatientID))
	}
	if filter.ProviderID != uuid.Nil {
		where = append(where, "provider_id = "+b.arg(filter.ProviderID))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM clinical_records
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC
	`, b.args...)
	if err != nil {
		return nil, gatewayErr("fetch records", err)
	}
	defer rows.Close()

	var result []ClinicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, gatewayErr("scan record", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayErr("fetch records", err)
	}
	return result, nil
}

func (r *PgGateway) RemoveRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clinical_records WHERE id = $1`, id)
	if err != nil {
		return gatewayErr("remove record", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
