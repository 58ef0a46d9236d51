package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
)

func listRecordsHandler(repo appointment.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter appointment.RecordFilter
		if raw := r.URL.Query().Get("patient_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			filter.PatientID = id
		}

		records, err := repo.FetchRecords(r.Context(), filter)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		out := make([]RecordResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, toRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createRecordHandler(repo appointment.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRecordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		var providerID uuid.UUID
		if req.ProviderID != "" {
			providerID, err = uuid.Parse(req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
		}

		if strings.TrimSpace(req.Title) == "" {
			writeError(w, http.StatusUnprocessableEntity, "invalid_record", "title is required")
			return
		}

		patient, err := repo.GetAccount(r.Context(), patientID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		if patient.Role != appointment.RolePatient {
			writeError(w, http.StatusUnprocessableEntity, "invalid_record", "patient_id does not belong to a patient")
			return
		}

		rec, err := repo.CreateRecord(r.Context(), appointment.ClinicalRecord{
			PatientID:  patientID,
			ProviderID: providerID,
			Title:      strings.TrimSpace(req.Title),
			Body:       req.Body,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRecordResponse(*rec))
	}
}

func removeRecordHandler(repo appointment.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_record_id", "id must be a valid UUID")
			return
		}

		if err := repo.RemoveRecord(r.Context(), id); err != nil {
			handleAppointmentError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func toRecordResponse(rec appointment.ClinicalRecord) RecordResponse {
	resp := RecordResponse{
		ID:        rec.ID,
		PatientID: rec.PatientID,
		Title:     rec.Title,
		Body:      rec.Body,
		CreatedAt: rec.CreatedAt,
	}
	if rec.ProviderID != uuid.Nil {
		providerID := rec.ProviderID
		resp.ProviderID = &providerID
	}
	return resp
}
