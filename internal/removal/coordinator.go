package removal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/events"
	redisclient "github.com/hackgods/clinical-ops-console/internal/redis"
)

// ConfirmFunc is asked once per removal when future appointments would be
// cancelled. Returning false or an error aborts the removal untouched.
type ConfirmFunc func(ctx context.Context, req ConfirmationRequest) (bool, error)

// AppointmentService is the part of the status machine the coordinator
// drives.
type AppointmentService interface {
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	ReferenceDate() time.Time
}

type Coordinator struct {
	repo           appointment.Gateway
	appts          AppointmentService
	locker         redisclient.Locker
	events         events.Publisher
	confirmTimeout time.Duration
	concurrency    int
	log            zerolog.Logger
}

func NewCoordinator(
	repo appointment.Gateway,
	appts AppointmentService,
	locker redisclient.Locker,
	pub events.Publisher,
	cfg config.Config,
	logger zerolog.Logger,
) *Coordinator {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	concurrency := cfg.RemovalConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	timeout := cfg.RemovalConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Coordinator{
		repo:           repo,
		appts:          appts,
		locker:         locker,
		events:         pub,
		confirmTimeout: timeout,
		concurrency:    concurrency,
		log:            logger.With().Str("component", "removal").Logger(),
	}
}

// CancellationReason is the reason written on every appointment cancelled
// by a removal.
func CancellationReason(role appointment.Role, ref time.Time) string {
	return fmt.Sprintf("Cancelled due to %s removal on %s", role, ref.Format(appointment.DateLayout))
}

// RemoveAccount retires a provider or patient account. The steps run in a
// fixed order: inspect, confirm, cancel every affected appointment, then
// deactivate. Nothing is written before confirmation is granted. The
// account is deactivated only after every cancel attempt has resolved, and
// it is deactivated even when some of them failed.
func (c *Coordinator) RemoveAccount(ctx context.Context, accountID uuid.UUID, role appointment.Role, confirm ConfirmFunc) Outcome {
	var out Outcome
	err := c.locker.WithAccountLock(ctx, accountID, func(lockCtx context.Context) error {
		out = c.remove(lockCtx, accountID, role, confirm)
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = ErrRemovalInProgress
		}
		out = noAction(accountID, role, err)
	}

	evt := c.log.Info()
	if out.Kind != Success {
		evt = c.log.Warn().AnErr("cause", out.Err)
	}
	evt.Str("account_id", accountID.String()).
		Str("role", string(role)).
		Str("outcome", string(out.Kind)).
		Int("affected", out.Affected).
		Int("cancelled", len(out.Cancelled)).
		Int("failed", len(out.Failed)).
		Msg("account removal finished")

	return out
}

func (c *Coordinator) remove(ctx context.Context, accountID uuid.UUID, role appointment.Role, confirm ConfirmFunc) Outcome {
	req, err := c.Preview(ctx, accountID, role)
	if err != nil {
		return noAction(accountID, role, err)
	}

	out := Outcome{
		AccountID: accountID,
		Role:      role,
		Account:   &req.Account,
		Affected:  req.Count(),
	}
	for _, a := range req.Undated {
		out.Undated = append(out.Undated, a.ID)
	}

	if req.Count() > 0 {
		if err := c.askConfirmation(ctx, confirm, req); err != nil {
			out.Kind = NoActionTaken
			out.Err = err
			return out
		}

		reason := CancellationReason(role, req.ReferenceDate)
		out.Cancelled, out.Failed = c.cancelAll(ctx, req.Affected, reason)
	}

	var deactivateErr error
	if req.Account.Active {
		acc, err := c.deactivate(ctx, accountID)
		if err != nil {
			deactivateErr = err
		} else {
			out.Account = acc
			c.publish(ctx, events.ForAccount(events.AccountDeactivated, accountID, map[string]any{
				"role":      string(role),
				"cancelled": len(out.Cancelled),
				"failed":    len(out.Failed),
			}))
		}
	}

	switch {
	case len(out.Failed) > 0:
		out.Kind = PartialCancellation
		out.Err = fmt.Errorf("%d of %d cancellations failed: %w", len(out.Failed), out.Affected, out.Failed[0].Err)
		out.DeactivationErr = deactivateErr
		c.publishIncomplete(ctx, out)
	case deactivateErr != nil:
		out.Kind = CompletedWithDeactivationFailure
		out.Err = deactivateErr
		out.DeactivationErr = deactivateErr
		c.publishIncomplete(ctx, out)
	default:
		out.Kind = Success
	}
	return out
}

// Preview loads the account and the appointments a removal would cancel
// without writing anything.
func (c *Coordinator) Preview(ctx context.Context, accountID uuid.UUID, role appointment.Role) (ConfirmationRequest, error) {
	if role != appointment.RoleProvider && role != appointment.RolePatient {
		return ConfirmationRequest{}, fmt.Errorf("%w: %q", ErrUnsupportedRole, role)
	}

	acc, err := c.repo.GetAccount(ctx, accountID)
	if err != nil {
		return ConfirmationRequest{}, fmt.Errorf("load account: %w", err)
	}
	if acc.Role != role {
		return ConfirmationRequest{}, fmt.Errorf("%w: account is a %s", ErrRoleMismatch, acc.Role)
	}

	ref := c.appts.ReferenceDate()
	affected, undated, err := c.futureObligations(ctx, accountID, role, ref)
	if err != nil {
		return ConfirmationRequest{}, err
	}

	return ConfirmationRequest{
		Account:       *acc,
		Role:          role,
		ReferenceDate: ref,
		Affected:      affected,
		Undated:       undated,
	}, nil
}

// futureObligations returns the active appointments of the account dated on
// or after ref, plus the active ones whose date is unreadable.
func (c *Coordinator) futureObligations(ctx context.Context, accountID uuid.UUID, role appointment.Role, ref time.Time) (affected, undated []appointment.Appointment, err error) {
	filter := appointment.AppointmentFilter{
		Statuses: []appointment.AppointmentStatus{appointment.StatusScheduled, appointment.StatusConfirmed},
	}
	if role == appointment.RoleProvider {
		filter.ProviderID = accountID
	} else {
		filter.PatientID = accountID
	}

	items, err := c.repo.FetchAppointments(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("load appointments: %w", err)
	}

	b := appointment.Bucket(items, ref)
	affected = append(affected, b.Today...)
	affected = append(affected, b.Upcoming...)
	return affected, b.Undated, nil
}

func (c *Coordinator) askConfirmation(ctx context.Context, confirm ConfirmFunc, req ConfirmationRequest) error {
	if confirm == nil {
		return ErrConfirmationWithheld
	}

	cctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		ok, err := confirm(cctx, req)
		ch <- answer{ok: ok, err: err}
	}()

	select {
	case a := <-ch:
		if err := cctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfirmationWithheld, err)
		}
		if a.err != nil {
			return fmt.Errorf("%w: %w", ErrConfirmationWithheld, a.err)
		}
		if !a.ok {
			return ErrConfirmationWithheld
		}
		return nil
	case <-cctx.Done():
		return fmt.Errorf("%w: %w", ErrConfirmationWithheld, cctx.Err())
	}
}

// cancelAll attempts every cancellation and waits for all of them. A failed
// cancel never stops the others.
func (c *Coordinator) cancelAll(ctx context.Context, affected []appointment.Appointment, reason string) ([]uuid.UUID, []CancelFailure) {
	results := make([]error, len(affected))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, a := range affected {
		g.Go(func() error {
			_, results[i] = c.appts.Cancel(ctx, a.ID, reason)
			return nil
		})
	}
	_ = g.Wait()

	var cancelled []uuid.UUID
	var failed []CancelFailure
	for i, err := range results {
		id := affected[i].ID
		if err != nil {
			c.log.Error().Err(err).Str("appointment_id", id.String()).Msg("cancel during removal failed")
			failed = append(failed, CancelFailure{AppointmentID: id, Err: err})
			continue
		}
		cancelled = append(cancelled, id)
	}
	return cancelled, failed
}

func (c *Coordinator) deactivate(ctx context.Context, accountID uuid.UUID) (*appointment.Account, error) {
	acc, err := c.repo.UpdateAccount(ctx, accountID, appointment.AccountPatch{
		ExpectActive: ptr(true),
		Active:       ptr(false),
	})
	if errors.Is(err, appointment.ErrStatusConflict) {
		// someone else already deactivated it
		return c.repo.GetAccount(ctx, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate account: %w", err)
	}
	return acc, nil
}

// RetryDeactivation repeats only the final step of a removal that ended in
// CompletedWithDeactivationFailure. It refuses to run while the account still
// has future active appointments.
func (c *Coordinator) RetryDeactivation(ctx context.Context, accountID uuid.UUID) Outcome {
	acc, err := c.repo.GetAccount(ctx, accountID)
	if err != nil {
		return noAction(accountID, "", fmt.Errorf("load account: %w", err))
	}

	out := Outcome{AccountID: accountID, Role: acc.Role, Account: acc}
	if !acc.Active {
		out.Kind = Success
		return out
	}

	if acc.Role == appointment.RoleProvider || acc.Role == appointment.RolePatient {
		affected, _, err := c.futureObligations(ctx, accountID, acc.Role, c.appts.ReferenceDate())
		if err != nil {
			return noAction(accountID, acc.Role, err)
		}
		if len(affected) > 0 {
			out.Kind = NoActionTaken
			out.Affected = len(affected)
			out.Err = fmt.Errorf("%w: %d remaining", ErrUnresolvedAppointments, len(affected))
			return out
		}
	}

	updated, err := c.deactivate(ctx, accountID)
	if err != nil {
		out.Kind = CompletedWithDeactivationFailure
		out.Err = err
		return out
	}
	out.Account = updated
	out.Kind = Success

	c.publish(ctx, events.ForAccount(events.AccountDeactivated, accountID, map[string]any{
		"role":  string(acc.Role),
		"retry": true,
	}))
	return out
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("event_type", ev.Type).Msg("failed to publish event")
	}
}

// publishIncomplete records a removal that wrote something but did not
// finish. Aborted removals wrote nothing and are only logged.
func (c *Coordinator) publishIncomplete(ctx context.Context, out Outcome) {
	failed := make([]string, 0, len(out.Failed))
	for _, f := range out.Failed {
		failed = append(failed, f.AppointmentID.String())
	}
	c.publish(ctx, events.ForAccount(events.AccountRemovalIncomplete, out.AccountID, map[string]any{
		"role":      string(out.Role),
		"outcome":   string(out.Kind),
		"affected":  out.Affected,
		"cancelled": len(out.Cancelled),
		"failed":    failed,
	}))
}

func ptr[T any](v T) *T {
	return &v
}
