package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/directory"
)

func listAppointmentsHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var filter appointment.AppointmentFilter
		if raw := q.Get("provider_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			filter.ProviderID = id
		}
		if raw := q.Get("patient_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			filter.PatientID = id
		}

		view := appointment.View(q.Get("view"))
		if view != "" {
			if _, ok := (appointment.Buckets{}).View(view); !ok {
				writeError(w, http.StatusBadRequest, "invalid_view", "view must be one of today, upcoming, past, cancelled, undated")
				return
			}
		}

		b, err := svc.Buckets(r.Context(), filter)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		ref := b.Reference.Format(appointment.DateLayout)

		if view != "" {
			items, _ := b.View(view)
			if view == appointment.ViewPast {
				items = b.PastView()
			}
			writeJSON(w, http.StatusOK, ViewResponse{
				ReferenceDate: ref,
				View:          string(view),
				Appointments:  toAppointmentResponses(r.Context(), dir, items),
			})
			return
		}

		counts := make(map[string]int)
		for k, n := range b.Counts() {
			counts[string(k)] = n
		}
		writeJSON(w, http.StatusOK, BucketsResponse{
			ReferenceDate: ref,
			Today:         toAppointmentResponses(r.Context(), dir, b.Today),
			Upcoming:      toAppointmentResponses(r.Context(), dir, b.Upcoming),
			Past:          toAppointmentResponses(r.Context(), dir, b.PastView()),
			Cancelled:     toAppointmentResponses(r.Context(), dir, b.Cancelled),
			Counts:        counts,
		})
	}
}

func getAppointmentHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(r.Context(), dir, *appt))
	}
}

func createAppointmentHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), appointment.NewAppointment{
			ProviderID:    providerID,
			PatientID:     patientID,
			ScheduledDate: req.ScheduledDate,
			ScheduledTime: req.ScheduledTime,
			Type:          req.Type,
			Location:      req.Location,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(r.Context(), dir, *appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return transitionHandler(dir, func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Confirm(r.Context(), id)
	})
}

func completeAppointmentHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return transitionHandler(dir, func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Complete(r.Context(), id)
	})
}

// cancelAppointmentHandler accepts an empty body; the reason then defaults.
func cancelAppointmentHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return transitionHandler(dir, func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		var req CancelAppointmentRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				return nil, errBadBody
			}
		}
		return svc.Cancel(r.Context(), id, req.Reason)
	})
}

func rescheduleAppointmentHandler(svc *appointment.Service, dir *directory.Directory) http.HandlerFunc {
	return transitionHandler(dir, func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errBadBody
		}
		return svc.Reschedule(r.Context(), id, req.ScheduledDate, req.ScheduledTime)
	})
}

var errBadBody = errors.New("could not parse JSON")

func transitionHandler(dir *directory.Directory, apply func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := apply(r, id)
		if err != nil {
			if errors.Is(err, errBadBody) {
				writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
				return
			}
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(r.Context(), dir, *appt))
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidDate):
		writeError(w, http.StatusUnprocessableEntity, "invalid_date", err.Error())
	case errors.Is(err, appointment.ErrSameParticipant),
		errors.Is(err, appointment.ErrInvalidAppointment):
		writeError(w, http.StatusUnprocessableEntity, "invalid_appointment", err.Error())
	case errors.Is(err, appointment.ErrConstraintViolation):
		writeError(w, http.StatusConflict, "constraint_violation", err.Error())
	case appointment.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "gateway_failure", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toAppointmentResponse(ctx context.Context, dir *directory.Directory, a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ProviderID:         a.ProviderID,
		ProviderLabel:      dir.Label(ctx, a.ProviderID, appointment.RoleProvider),
		PatientID:          a.PatientID,
		PatientLabel:       dir.Label(ctx, a.PatientID, appointment.RolePatient),
		ScheduledDate:      a.ScheduledDate,
		ScheduledTime:      a.ScheduledTime,
		Type:               a.Type,
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
		Location:           a.Location,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentResponses(ctx context.Context, dir *directory.Directory, items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAppointmentResponse(ctx, dir, a))
	}
	return out
}
