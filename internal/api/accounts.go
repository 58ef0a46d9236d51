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
	"github.com/hackgods/clinical-ops-console/internal/removal"
)

func listAccountsHandler(repo appointment.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := appointment.AccountFilter{ActiveOnly: q.Get("active") == "true"}
		if raw := q.Get("role"); raw != "" {
			role := appointment.Role(raw)
			if !role.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_role", "role must be provider, patient or staff")
				return
			}
			filter.Role = role
		}

		accounts, err := repo.FetchAccounts(r.Context(), filter)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		out := make([]AccountResponse, 0, len(accounts))
		for _, acc := range accounts {
			out = append(out, toAccountResponse(acc))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getAccountHandler(repo appointment.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(w, r)
		if !ok {
			return
		}

		acc, err := repo.GetAccount(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAccountResponse(*acc))
	}
}

// removalPreviewHandler is the first step of a removal: it reports what
// would be cancelled and writes nothing.
func removalPreviewHandler(coord *removal.Coordinator, dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(w, r)
		if !ok {
			return
		}

		req, err := coord.Preview(r.Context(), id, appointment.Role(r.URL.Query().Get("role")))
		if err != nil {
			handleRemovalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RemovalPreviewResponse{
			Account:       toAccountResponse(req.Account),
			Role:          string(req.Role),
			ReferenceDate: req.ReferenceDate.Format(appointment.DateLayout),
			Affected:      req.Count(),
			Appointments:  toAppointmentResponses(r.Context(), dir, req.Affected),
			Undated:       toAppointmentResponses(r.Context(), dir, req.Undated),
		})
	}
}

func removeAccountHandler(coord *removal.Coordinator, dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(w, r)
		if !ok {
			return
		}

		var body RemovalRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		confirm := func(_ context.Context, req removal.ConfirmationRequest) (bool, error) {
			return body.Confirm && body.ExpectedAffected == req.Count(), nil
		}

		out := coord.RemoveAccount(r.Context(), id, appointment.Role(body.Role), confirm)
		dir.Invalidate(id)
		writeOutcome(w, out)
	}
}

func retryDeactivationHandler(coord *removal.Coordinator, dir *directory.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := accountID(w, r)
		if !ok {
			return
		}

		out := coord.RetryDeactivation(r.Context(), id)
		dir.Invalidate(id)
		writeOutcome(w, out)
	}
}

func writeOutcome(w http.ResponseWriter, out removal.Outcome) {
	resp := RemovalOutcomeResponse{
		Outcome:   string(out.Kind),
		Summary:   out.Summary(),
		Retryable: out.Retryable(),
		Affected:  out.Affected,
		Cancelled: out.Cancelled,
		Undated:   out.Undated,
	}
	if resp.Cancelled == nil {
		resp.Cancelled = []uuid.UUID{}
	}
	if out.Account != nil {
		acc := toAccountResponse(*out.Account)
		resp.Account = &acc
	}
	for _, f := range out.Failed {
		resp.Failed = append(resp.Failed, CancelFailureResponse{AppointmentID: f.AppointmentID, Error: f.Err.Error()})
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	if out.DeactivationErr != nil {
		resp.DeactivationError = out.DeactivationErr.Error()
	}

	writeJSON(w, outcomeStatus(out), resp)
}

func outcomeStatus(out removal.Outcome) int {
	switch out.Kind {
	case removal.Success:
		return http.StatusOK
	case removal.PartialCancellation:
		return http.StatusMultiStatus
	case removal.CompletedWithDeactivationFailure:
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(out.Err, appointment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(out.Err, removal.ErrRoleMismatch),
		errors.Is(out.Err, removal.ErrUnsupportedRole):
		return http.StatusUnprocessableEntity
	case appointment.IsRetryable(out.Err):
		return http.StatusServiceUnavailable
	}
	return http.StatusConflict
}

func handleRemovalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, removal.ErrRoleMismatch):
		writeError(w, http.StatusUnprocessableEntity, "role_mismatch", err.Error())
	case errors.Is(err, removal.ErrUnsupportedRole):
		writeError(w, http.StatusUnprocessableEntity, "unsupported_role", err.Error())
	default:
		handleAppointmentError(w, err)
	}
}

func accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_account_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toAccountResponse(acc appointment.Account) AccountResponse {
	return AccountResponse{
		ID:             acc.ID,
		DisplayName:    acc.DisplayName,
		Role:           string(acc.Role),
		Active:         acc.Active,
		LastModifiedAt: acc.LastModifiedAt,
	}
}
