package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrRecordNotFound      = fmt.Errorf("clinical record %w", ErrNotFound)

	// ErrStatusConflict is returned by a conditional update whose expected
	// state no longer matches the stored record.
	ErrStatusConflict = errors.New("record changed since it was read")

	// ErrConstraintViolation means the store rejected the payload; retrying
	// the same write cannot succeed.
	ErrConstraintViolation = errors.New("store constraint violated")

	ErrGatewayFailure = errors.New("entity store unavailable")
)

// GatewayError wraps a transport or store error. It is the only failure kind
// a caller may retry.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrGatewayFailure, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGatewayFailure }

func gatewayErr(op string, err error) error {
	return &GatewayError{Op: op, Err: err}
}

// IsRetryable reports whether err is a transient gateway failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayFailure)
}

// Gateway is the persistence boundary for accounts, appointments and clinical
// records. One implementation exists per backing store and is chosen at
// composition time.
type Gateway interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	FetchAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	CreateAccount(ctx context.Context, acc Account) (*Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, patch AccountPatch) (*Account, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FetchAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error)

	// Records are the only kind with a remove operation; appointments are
	// retained for audit and accounts are only deactivated.
	CreateRecord(ctx context.Context, rec ClinicalRecord) (*ClinicalRecord, error)
	FetchRecords(ctx context.Context, filter RecordFilter) ([]ClinicalRecord, error)
	RemoveRecord(ctx context.Context, id uuid.UUID) error
}
