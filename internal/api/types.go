package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	ProviderID    string `json:"provider_id"`
	PatientID     string `json:"patient_id"`
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	Type          string `json:"type"`
	Location      string `json:"location"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type RescheduleAppointmentRequest struct {
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	ProviderLabel      string    `json:"provider_label"`
	PatientID          uuid.UUID `json:"patient_id"`
	PatientLabel       string    `json:"patient_label"`
	ScheduledDate      string    `json:"scheduled_date"`
	ScheduledTime      string    `json:"scheduled_time"`
	Type               string    `json:"type,omitempty"`
	Status             string    `json:"status"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	Location           string    `json:"location,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BucketsResponse is the console's appointment overview. Past already
// includes the undated appointments at its end; Counts keeps them apart.
type BucketsResponse struct {
	ReferenceDate string                `json:"reference_date"`
	Today         []AppointmentResponse `json:"today"`
	Upcoming      []AppointmentResponse `json:"upcoming"`
	Past          []AppointmentResponse `json:"past"`
	Cancelled     []AppointmentResponse `json:"cancelled"`
	Counts        map[string]int        `json:"counts"`
}

type ViewResponse struct {
	ReferenceDate string                `json:"reference_date"`
	View          string                `json:"view"`
	Appointments  []AppointmentResponse `json:"appointments"`
}

type AccountResponse struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

type RemovalPreviewResponse struct {
	Account       AccountResponse       `json:"account"`
	Role          string                `json:"role"`
	ReferenceDate string                `json:"reference_date"`
	Affected      int                   `json:"affected"`
	Appointments  []AppointmentResponse `json:"appointments"`
	Undated       []AppointmentResponse `json:"undated,omitempty"`
}

// RemovalRequest is the second step of a removal. Confirmation only counts
// when ExpectedAffected matches what the server sees now.
type RemovalRequest struct {
	Role             string `json:"role"`
	Confirm          bool   `json:"confirm"`
	ExpectedAffected int    `json:"expected_affected"`
}

type CancelFailureResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Error         string    `json:"error"`
}

type RemovalOutcomeResponse struct {
	Outcome           string                  `json:"outcome"`
	Summary           string                  `json:"summary"`
	Retryable         bool                    `json:"retryable"`
	Account           *AccountResponse        `json:"account,omitempty"`
	Affected          int                     `json:"affected"`
	Cancelled         []uuid.UUID             `json:"cancelled"`
	Failed            []CancelFailureResponse `json:"failed,omitempty"`
	Undated           []uuid.UUID             `json:"undated,omitempty"`
	Error             string                  `json:"error,omitempty"`
	DeactivationError string                  `json:"deactivation_error,omitempty"`
}

type CreateRecordRequest struct {
	PatientID  string `json:"patient_id"`
	ProviderID string `json:"provider_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

type RecordResponse struct {
	ID         uuid.UUID  `json:"id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:     code,
		Details:   details,
		Retryable: status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests,
	})
}
