package removal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
)

type OutcomeKind string

const (
	Success                          OutcomeKind = "success"
	NoActionTaken                    OutcomeKind = "no_action_taken"
	PartialCancellation              OutcomeKind = "partial_cancellation"
	CompletedWithDeactivationFailure OutcomeKind = "completed_with_deactivation_failure"
)

var (
	ErrUnsupportedRole        = errors.New("only provider and patient accounts can be removed")
	ErrRoleMismatch           = errors.New("account role does not match the requested removal")
	ErrConfirmationWithheld   = errors.New("removal was not confirmed")
	ErrRemovalInProgress      = errors.New("another removal of this account is in progress")
	ErrUnresolvedAppointments = errors.New("account still has future active appointments")
)

// ConfirmationRequest describes what a removal is about to cancel.
type ConfirmationRequest struct {
	Account       appointment.Account
	Role          appointment.Role
	ReferenceDate time.Time
	Affected      []appointment.Appointment
	// Undated are active appointments whose date cannot be read. They are
	// reported but never cancelled by a removal.
	Undated []appointment.Appointment
}

func (r ConfirmationRequest) Count() int {
	return len(r.Affected)
}

type CancelFailure struct {
	AppointmentID uuid.UUID
	Err           error
}

// Outcome is the result of one removal run. Kind tells the caller which of
// the four end states was reached; the other fields carry the detail needed
// to render or retry it.
type Outcome struct {
	Kind      OutcomeKind
	AccountID uuid.UUID
	Role      appointment.Role
	Account   *appointment.Account
	Affected  int
	Cancelled []uuid.UUID
	Failed    []CancelFailure
	Undated   []uuid.UUID
	Err       error
	// DeactivationErr is set when the account flag update failed, alone or
	// on top of failed cancellations.
	DeactivationErr error
}

func noAction(id uuid.UUID, role appointment.Role, err error) Outcome {
	return Outcome{Kind: NoActionTaken, AccountID: id, Role: role, Err: err}
}

// Retryable reports whether re-running the same call can make progress.
func (o Outcome) Retryable() bool {
	switch o.Kind {
	case PartialCancellation, CompletedWithDeactivationFailure:
		return true
	case NoActionTaken:
		return errors.Is(o.Err, ErrRemovalInProgress) || appointment.IsRetryable(o.Err)
	}
	return false
}

// Summary is the one-line message shown to the operator.
func (o Outcome) Summary() string {
	switch o.Kind {
	case Success:
		if o.Affected == 0 {
			return fmt.Sprintf("%s deactivated; no future appointments to cancel", o.Role)
		}
		return fmt.Sprintf("%s deactivated; %d of %d appointments cancelled", o.Role, len(o.Cancelled), o.Affected)
	case PartialCancellation:
		if o.DeactivationErr != nil || (o.Account != nil && o.Account.Active) {
			return fmt.Sprintf("%d of %d appointments cancelled; account still active, retry removal",
				len(o.Cancelled), o.Affected)
		}
		return fmt.Sprintf("%d of %d appointments cancelled; account deactivated, retry removal to cancel the rest",
			len(o.Cancelled), o.Affected)
	case CompletedWithDeactivationFailure:
		return fmt.Sprintf("all %d appointments cancelled; account still active, retry deactivation", o.Affected)
	case NoActionTaken:
		if o.Err != nil {
			return "no changes made: " + o.Err.Error()
		}
		return "no changes made"
	}
	return string(o.Kind)
}
