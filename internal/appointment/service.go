package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/events"
)

const DefaultCancellationReason = "Cancelled by staff"

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidDate        = errors.New("invalid date")
	ErrSameParticipant    = errors.New("provider and patient must be different accounts")
	ErrInvalidAppointment = errors.New("invalid appointment")
)

type Service struct {
	repo   Gateway
	events events.Publisher
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

func NewService(repo Gateway, pub events.Publisher, cfg config.Config, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:   repo,
		events: pub,
		loc:    cfg.Location(),
		now:    time.Now,
		log:    logger.With().Str("component", "appointment").Logger(),
	}
}

// WithClock replaces the wall clock used to derive the reference date.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ReferenceDate is today's calendar day in the configured time zone.
func (s *Service) ReferenceDate() time.Time {
	return CalendarDay(s.now().In(s.loc))
}

type transition struct {
	name  string
	to    AppointmentStatus
	from  []AppointmentStatus
	event string
}

func (t transition) allowed(from AppointmentStatus) bool {
	for _, s := range t.from {
		if s == from {
			return true
		}
	}
	return false
}

var (
	confirmTransition = transition{
		name:  "confirm",
		to:    StatusConfirmed,
		from:  []AppointmentStatus{StatusScheduled},
		event: events.AppointmentConfirmed,
	}
	cancelTransition = transition{
		name:  "cancel",
		to:    StatusCancelled,
		from:  []AppointmentStatus{StatusScheduled, StatusConfirmed},
		event: events.AppointmentCancelled,
	}
	completeTransition = transition{
		name:  "complete",
		to:    StatusCompleted,
		from:  []AppointmentStatus{StatusConfirmed},
		event: events.AppointmentCompleted,
	}
)

// Confirm moves a scheduled appointment to confirmed. Confirming an already
// confirmed appointment is a no-op.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, id, confirmTransition, func(a *Appointment) bool {
		return a.Status == StatusConfirmed
	}, nil)
}

// Cancel cancels a scheduled or confirmed appointment. A blank reason falls
// back to DefaultCancellationReason. Re-issuing the same cancellation is a
// no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancellationReason
	}

	return s.apply(ctx, id, cancelTransition, func(a *Appointment) bool {
		return a.Status == StatusCancelled && a.CancellationReason == reason
	}, func(p *AppointmentPatch) {
		p.CancellationReason = &reason
	})
}

// Complete moves a confirmed appointment to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.apply(ctx, id, completeTransition, func(a *Appointment) bool {
		return a.Status == StatusCompleted
	}, nil)
}

// Reschedule moves an appointment to a new date and time and sets it back to
// scheduled. It is the only way to re-open a cancelled appointment. The new
// date must not be before the reference date.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	day, err := ParseDate(newDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if day.Before(s.ReferenceDate()) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidDate,
			day.Format(DateLayout), s.ReferenceDate().Format(DateLayout))
	}
	newTime = strings.TrimSpace(newTime)
	if _, ok := parseClock(newTime); !ok {
		return nil, fmt.Errorf("%w: unrecognised time %q", ErrInvalidDate, newTime)
	}
	date := day.Format(DateLayout)

	tr := transition{
		name:  "reschedule",
		to:    StatusScheduled,
		from:  []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusCancelled},
		event: events.AppointmentRescheduled,
	}

	return s.apply(ctx, id, tr, func(a *Appointment) bool {
		return a.Status == StatusScheduled && a.ScheduledDate == date && a.ScheduledTime == newTime
	}, func(p *AppointmentPatch) {
		p.ScheduledDate = &date
		p.ScheduledTime = &newTime
		p.CancellationReason = ptr("")
	})
}

// apply loads the appointment, checks the transition and writes it as a
// compare-and-set on the status that was read.
func (s *Service) apply(
	ctx context.Context,
	id uuid.UUID,
	tr transition,
	alreadyApplied func(*Appointment) bool,
	extend func(*AppointmentPatch),
) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if alreadyApplied(appt) {
		return appt, nil
	}

	if !tr.allowed(appt.Status) {
		return nil, fmt.Errorf("%w: cannot %s a %s appointment", ErrInvalidTransition, tr.name, appt.Status)
	}

	from := appt.Status
	patch := AppointmentPatch{
		ExpectStatus: &from,
		Status:       ptr(tr.to),
	}
	if extend != nil {
		extend(&patch)
	}

	updated, err := s.repo.UpdateAppointment(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, fmt.Errorf("%w: appointment %s is no longer %s: %w", ErrInvalidTransition, id, from, err)
		}
		return nil, fmt.Errorf("%s appointment: %w", tr.name, err)
	}

	payload := map[string]any{
		"from": string(from),
		"to":   string(updated.Status),
	}
	if updated.Status == StatusCancelled {
		payload["reason"] = updated.CancellationReason
	}
	if tr.to == StatusScheduled {
		payload["scheduled_date"] = updated.ScheduledDate
		payload["scheduled_time"] = updated.ScheduledTime
	}
	s.logEvent(ctx, events.ForAppointment(tr.event, updated.ID, payload))

	return updated, nil
}

// Create books a new scheduled appointment after checking both participants.
func (s *Service) Create(ctx context.Context, req NewAppointment) (*Appointment, error) {
	if req.ProviderID == uuid.Nil || req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id and patient_id are required", ErrInvalidAppointment)
	}
	if req.ProviderID == req.PatientID {
		return nil, ErrSameParticipant
	}

	day, err := ParseDate(req.ScheduledDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if day.Before(s.ReferenceDate()) {
		return nil, fmt.Errorf("%w: cannot book on %s", ErrInvalidDate, day.Format(DateLayout))
	}
	if _, ok := parseClock(req.ScheduledTime); !ok {
		return nil, fmt.Errorf("%w: unrecognised time %q", ErrInvalidDate, req.ScheduledTime)
	}

	if err := s.checkParticipant(ctx, req.ProviderID, RoleProvider); err != nil {
		return nil, err
	}
	if err := s.checkParticipant(ctx, req.PatientID, RolePatient); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateAppointment(ctx, Appointment{
		ID:            uuid.New(),
		ProviderID:    req.ProviderID,
		PatientID:     req.PatientID,
		ScheduledDate: day.Format(DateLayout),
		ScheduledTime: strings.TrimSpace(req.ScheduledTime),
		Type:          req.Type,
		Status:        StatusScheduled,
		Location:      req.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, events.ForAppointment(events.AppointmentCreated, created.ID, map[string]any{
		"provider_id":    created.ProviderID.String(),
		"patient_id":     created.PatientID.String(),
		"scheduled_date": created.ScheduledDate,
		"scheduled_time": created.ScheduledTime,
	}))

	return created, nil
}

func (s *Service) checkParticipant(ctx context.Context, id uuid.UUID, role Role) error {
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("load %s: %w", role, err)
	}
	if acc.Role != role {
		return fmt.Errorf("%w: account %s is a %s, not a %s", ErrInvalidAppointment, id, acc.Role, role)
	}
	if !acc.Active {
		return fmt.Errorf("%w: %s %s is inactive", ErrInvalidAppointment, role, id)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, filter AppointmentFilter) ([]Appointment, error) {
	items, err := s.repo.FetchAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return items, nil
}

// Buckets fetches the matching appointments and partitions them against the
// reference date.
func (s *Service) Buckets(ctx context.Context, filter AppointmentFilter) (Buckets, error) {
	items, err := s.List(ctx, filter)
	if err != nil {
		return Buckets{}, err
	}
	return Bucket(items, s.ReferenceDate()), nil
}

func (s *Service) logEvent(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", ev.Type).
			Msg("failed to publish event")
	}
}
