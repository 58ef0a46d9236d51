package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Active reports whether the appointment still represents a future obligation.
func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RoleProvider Role = "provider"
	RolePatient  Role = "patient"
	RoleStaff    Role = "staff"
)

func (r Role) Valid() bool {
	return r == RoleProvider || r == RolePatient || r == RoleStaff
}

type Account struct {
	ID             uuid.UUID
	DisplayName    string
	Role           Role
	Active         bool
	LastModifiedAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	PatientID          uuid.UUID
	ScheduledDate      string // calendar date as stored, canonical form 2006-01-02
	ScheduledTime      string
	Type               string
	Status             AppointmentStatus
	CancellationReason string
	Location           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ClinicalRecord is opaque to the lifecycle engine; it is only created,
// listed and purged.
type ClinicalRecord struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Title      string
	Body       string
	CreatedAt  time.Time
}

// NewAppointment is the booking payload accepted by Service.Create.
type NewAppointment struct {
	ProviderID    uuid.UUID
	PatientID     uuid.UUID
	ScheduledDate string
	ScheduledTime string
	Type          string
	Location      string
}

type AccountFilter struct {
	Role       Role
	ActiveOnly bool
}

// AppointmentFilter narrows FetchAppointments. Zero values mean "any".
// FromDate is compared on the canonical date string, so malformed stored
// dates never match a FromDate filter.
type AppointmentFilter struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Statuses   []AppointmentStatus
	FromDate   string
}

type RecordFilter struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
}

// AppointmentPatch describes a partial update. ExpectStatus, when set, turns
// the update into a compare-and-set on the current status.
type AppointmentPatch struct {
	ExpectStatus       *AppointmentStatus
	Status             *AppointmentStatus
	CancellationReason *string
	ScheduledDate      *string
	ScheduledTime      *string
}

// AccountPatch describes a partial account update. ExpectActive makes the
// update conditional on the current flag.
type AccountPatch struct {
	ExpectActive *bool
	Active       *bool
	DisplayName  *string
}

func ptr[T any](v T) *T {
	return &v
}
