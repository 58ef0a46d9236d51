package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentCreated       = "APPOINTMENT_CREATED"
	AppointmentConfirmed     = "APPOINTMENT_CONFIRMED"
	AppointmentCancelled     = "APPOINTMENT_CANCELLED"
	AppointmentCompleted     = "APPOINTMENT_COMPLETED"
	AppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"
	AccountDeactivated       = "ACCOUNT_DEACTIVATED"
	AccountRemovalIncomplete = "ACCOUNT_REMOVAL_INCOMPLETE"
)

type Event struct {
	Type          string
	AppointmentID *uuid.UUID
	AccountID     *uuid.UUID
	Payload       map[string]any
	CreatedAt     time.Time
}

// Publisher records lifecycle events. Callers treat publish failures as
// non-fatal.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForAppointment builds an appointment-scoped event stamped with now.
func ForAppointment(eventType string, id uuid.UUID, payload map[string]any) Event {
	return Event{
		Type:          eventType,
		AppointmentID: &id,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

func ForAccount(eventType string, id uuid.UUID, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		AccountID: &id,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
