package removal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/config"
	"github.com/hackgods/clinical-ops-console/internal/events"
	redisclient "github.com/hackgods/clinical-ops-console/internal/redis"
)

var refDay = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// journalGateway records every mutating call in the order it reached the
// store.
type journalGateway struct {
	*appointment.MemoryGateway

	mu      sync.Mutex
	journal []string
}

func (g *journalGateway) note(entry string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.journal = append(g.journal, entry)
}

func (g *journalGateway) entries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.journal...)
}

func (g *journalGateway) UpdateAppointment(ctx context.Context, id uuid.UUID, patch appointment.AppointmentPatch) (*appointment.Appointment, error) {
	g.note("appointment:" + id.String())
	return g.MemoryGateway.UpdateAppointment(ctx, id, patch)
}

func (g *journalGateway) UpdateAccount(ctx context.Context, id uuid.UUID, patch appointment.AccountPatch) (*appointment.Account, error) {
	g.note("account:" + id.String())
	return g.MemoryGateway.UpdateAccount(ctx, id, patch)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type busyLocker struct{}

func (busyLocker) WithAccountLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	gw    *journalGateway
	svc   *appointment.Service
	coord *Coordinator
	pub   *recordingPublisher
	prov  appointment.Account
	pat   appointment.Account
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()
	ctx := context.Background()

	gw := &journalGateway{MemoryGateway: appointment.NewMemoryGateway()}
	pub := &recordingPublisher{}
	cfg := config.Config{
		TimeZone:              "UTC",
		RemovalConcurrency:    concurrency,
		RemovalConfirmTimeout: 200 * time.Millisecond,
	}
	svc := appointment.NewService(gw, pub, cfg, zerolog.Nop()).
		WithClock(func() time.Time { return refDay })

	prov, err := gw.CreateAccount(ctx, appointment.Account{DisplayName: "Dr. Okafor", Role: appointment.RoleProvider, Active: true})
	require.NoError(t, err)
	pat, err := gw.CreateAccount(ctx, appointment.Account{DisplayName: "Lena Park", Role: appointment.RolePatient, Active: true})
	require.NoError(t, err)

	return &fixture{
		gw:    gw,
		svc:   svc,
		coord: NewCoordinator(gw, svc, nil, pub, cfg, zerolog.Nop()),
		pub:   pub,
		prov:  *prov,
		pat:   *pat,
	}
}

func (f *fixture) seed(t *testing.T, date string, status appointment.AppointmentStatus) appointment.Appointment {
	t.Helper()
	a := appointment.Appointment{
		ID:            uuid.New(),
		ProviderID:    f.prov.ID,
		PatientID:     f.pat.ID,
		ScheduledDate: date,
		ScheduledTime: "10:00",
		Status:        status,
	}
	if status == appointment.StatusCancelled {
		a.CancellationReason = "patient request"
	}
	created, err := f.gw.CreateAppointment(context.Background(), a)
	require.NoError(t, err)
	return *created
}

func (f *fixture) load(t *testing.T, id uuid.UUID) appointment.Appointment {
	t.Helper()
	a, err := f.gw.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	return *a
}

func (f *fixture) account(t *testing.T, id uuid.UUID) appointment.Account {
	t.Helper()
	acc, err := f.gw.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return *acc
}

func approve(context.Context, ConfirmationRequest) (bool, error) { return true, nil }

func TestRemoveProviderScenario(t *testing.T) {
	f := newFixture(t, 1)
	first := f.seed(t, "2026-03-10", appointment.StatusScheduled)
	second := f.seed(t, "2026-03-13", appointment.StatusConfirmed)

	var asked ConfirmationRequest
	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider,
		func(_ context.Context, req ConfirmationRequest) (bool, error) {
			asked = req
			return true, nil
		})

	require.Equal(t, Success, out.Kind, out.Summary())
	assert.NoError(t, out.Err)
	assert.Equal(t, 2, asked.Count())
	assert.Equal(t, 2, out.Affected)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, out.Cancelled)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		a := f.load(t, id)
		assert.Equal(t, appointment.StatusCancelled, a.Status)
		assert.Contains(t, a.CancellationReason, "removal")
		assert.Equal(t, "Cancelled due to provider removal on 2026-03-10", a.CancellationReason)
	}

	acc := f.account(t, f.prov.ID)
	assert.False(t, acc.Active)
	require.NotNil(t, out.Account)
	assert.False(t, out.Account.Active)
	assert.Equal(t, 1, f.pub.count(events.AccountDeactivated))
}

func TestRemoveOnlyTouchesFutureActiveAppointments(t *testing.T) {
	f := newFixture(t, 1)
	past := f.seed(t, "2026-03-01", appointment.StatusScheduled)
	done := f.seed(t, "2026-03-12", appointment.StatusCompleted)
	gone := f.seed(t, "2026-03-12", appointment.StatusCancelled)
	upcoming := f.seed(t, "2026-04-02", appointment.StatusScheduled)

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	require.Equal(t, Success, out.Kind)
	assert.Equal(t, []uuid.UUID{upcoming.ID}, out.Cancelled)
	assert.Equal(t, appointment.StatusScheduled, f.load(t, past.ID).Status)
	assert.Equal(t, appointment.StatusCompleted, f.load(t, done.ID).Status)
	assert.Equal(t, "patient request", f.load(t, gone.ID).CancellationReason)
}

func TestRemoveWithoutFutureAppointmentsSkipsConfirmation(t *testing.T) {
	f := newFixture(t, 1)
	f.seed(t, "2026-02-01", appointment.StatusCompleted)

	asked := false
	out := f.coord.RemoveAccount(context.Background(), f.pat.ID, appointment.RolePatient,
		func(context.Context, ConfirmationRequest) (bool, error) {
			asked = true
			return false, nil
		})

	require.Equal(t, Success, out.Kind)
	assert.False(t, asked)
	assert.Empty(t, out.Cancelled)
	assert.Equal(t, []string{"account:" + f.pat.ID.String()}, f.gw.entries())
	assert.False(t, f.account(t, f.pat.ID).Active)
}

func TestRemoveWithheldConfirmationWritesNothing(t *testing.T) {
	cases := map[string]ConfirmFunc{
		"declined": func(context.Context, ConfirmationRequest) (bool, error) { return false, nil },
		"errored": func(context.Context, ConfirmationRequest) (bool, error) {
			return true, errors.New("dialog closed")
		},
		"timed out": func(ctx context.Context, _ ConfirmationRequest) (bool, error) {
			<-ctx.Done()
			return true, nil
		},
		"missing": nil,
	}

	for name, confirm := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 1)
			a := f.seed(t, "2026-03-11", appointment.StatusScheduled)

			out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, confirm)

			assert.Equal(t, NoActionTaken, out.Kind)
			assert.ErrorIs(t, out.Err, ErrConfirmationWithheld)
			assert.Empty(t, f.gw.entries())
			assert.Equal(t, appointment.StatusScheduled, f.load(t, a.ID).Status)
			assert.True(t, f.account(t, f.prov.ID).Active)
			assert.Equal(t, 0, f.pub.count(events.AccountRemovalIncomplete))
		})
	}
}

func TestRemoveDeactivatesAfterEveryCancel(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		f := newFixture(t, concurrency)
		for i := 0; i < 6; i++ {
			f.seed(t, "2026-03-2"+string(rune('0'+i)), appointment.StatusScheduled)
		}

		out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)
		require.Equal(t, Success, out.Kind)
		assert.Len(t, out.Cancelled, 6)

		journal := f.gw.entries()
		require.Len(t, journal, 7)
		for _, entry := range journal[:6] {
			assert.True(t, strings.HasPrefix(entry, "appointment:"), entry)
		}
		assert.Equal(t, "account:"+f.prov.ID.String(), journal[6])
	}
}

func TestRemovePartialCancellationStillDeactivates(t *testing.T) {
	f := newFixture(t, 1)
	ok1 := f.seed(t, "2026-03-11", appointment.StatusScheduled)
	bad := f.seed(t, "2026-03-12", appointment.StatusConfirmed)
	ok2 := f.seed(t, "2026-03-13", appointment.StatusScheduled)

	f.gw.FailUpdate = func(kind string, id uuid.UUID) error {
		if kind == appointment.KindAppointment && id == bad.ID {
			return errors.New("connection reset")
		}
		return nil
	}

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	require.Equal(t, PartialCancellation, out.Kind)
	assert.ElementsMatch(t, []uuid.UUID{ok1.ID, ok2.ID}, out.Cancelled)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, bad.ID, out.Failed[0].AppointmentID)
	assert.ErrorIs(t, out.Failed[0].Err, appointment.ErrGatewayFailure)
	assert.NoError(t, out.DeactivationErr)
	assert.True(t, out.Retryable())
	assert.Equal(t, "2 of 3 appointments cancelled; account deactivated, retry removal to cancel the rest", out.Summary())

	// three cancel attempts, then exactly one deactivation attempt
	journal := f.gw.entries()
	require.Len(t, journal, 4)
	for _, entry := range journal[:3] {
		assert.True(t, strings.HasPrefix(entry, "appointment:"), entry)
	}
	assert.Equal(t, "account:"+f.prov.ID.String(), journal[3])

	assert.False(t, f.account(t, f.prov.ID).Active)
	assert.Equal(t, appointment.StatusConfirmed, f.load(t, bad.ID).Status)
	assert.Equal(t, 1, f.pub.count(events.AccountRemovalIncomplete))
	assert.Equal(t, 1, f.pub.count(events.AccountDeactivated))

	// a retry only has the leftover to cancel and no flag to flip
	f.gw.FailUpdate = nil
	retry := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)
	require.Equal(t, Success, retry.Kind)
	assert.Equal(t, []uuid.UUID{bad.ID}, retry.Cancelled)
	assert.Equal(t, appointment.StatusCancelled, f.load(t, bad.ID).Status)
	assert.Len(t, f.gw.entries(), 5)
}

func TestRemovePartialCancellationWithDeactivationFailure(t *testing.T) {
	f := newFixture(t, 2)
	ok := f.seed(t, "2026-03-11", appointment.StatusScheduled)
	bad := f.seed(t, "2026-03-12", appointment.StatusScheduled)

	f.gw.FailUpdate = func(kind string, id uuid.UUID) error {
		if kind == appointment.KindAccount || id == bad.ID {
			return errors.New("timeout")
		}
		return nil
	}

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	require.Equal(t, PartialCancellation, out.Kind)
	assert.Equal(t, []uuid.UUID{ok.ID}, out.Cancelled)
	require.Len(t, out.Failed, 1)
	assert.ErrorIs(t, out.DeactivationErr, appointment.ErrGatewayFailure)
	assert.Equal(t, "1 of 2 appointments cancelled; account still active, retry removal", out.Summary())
	assert.True(t, f.account(t, f.prov.ID).Active)
	assert.Equal(t, 0, f.pub.count(events.AccountDeactivated))
	assert.Len(t, f.gw.entries(), 3)
}

func TestRemovePatientMirrorsProvider(t *testing.T) {
	f := newFixture(t, 1)
	other, err := f.gw.CreateAccount(context.Background(), appointment.Account{DisplayName: "Sam Ortiz", Role: appointment.RolePatient, Active: true})
	require.NoError(t, err)

	first := f.seed(t, "2026-03-10", appointment.StatusConfirmed)
	second := f.seed(t, "2026-03-20", appointment.StatusScheduled)
	past := f.seed(t, "2026-03-01", appointment.StatusScheduled)
	unrelated, err := f.gw.CreateAppointment(context.Background(), appointment.Appointment{
		ProviderID:    f.prov.ID,
		PatientID:     other.ID,
		ScheduledDate: "2026-03-15",
		ScheduledTime: "11:00",
		Status:        appointment.StatusScheduled,
	})
	require.NoError(t, err)

	var asked ConfirmationRequest
	out := f.coord.RemoveAccount(context.Background(), f.pat.ID, appointment.RolePatient,
		func(_ context.Context, req ConfirmationRequest) (bool, error) {
			asked = req
			return true, nil
		})

	require.Equal(t, Success, out.Kind)
	assert.Equal(t, 2, asked.Count())
	assert.Equal(t, appointment.RolePatient, asked.Role)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, out.Cancelled)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		a := f.load(t, id)
		assert.Equal(t, appointment.StatusCancelled, a.Status)
		assert.Equal(t, "Cancelled due to patient removal on 2026-03-10", a.CancellationReason)
	}
	assert.Equal(t, appointment.StatusScheduled, f.load(t, past.ID).Status)
	assert.Equal(t, appointment.StatusScheduled, f.load(t, unrelated.ID).Status)

	assert.False(t, f.account(t, f.pat.ID).Active)
	assert.True(t, f.account(t, f.prov.ID).Active)
	assert.True(t, f.account(t, other.ID).Active)
}

func TestRemoveDeactivationFailure(t *testing.T) {
	f := newFixture(t, 1)
	a := f.seed(t, "2026-03-11", appointment.StatusScheduled)

	f.gw.FailUpdate = func(kind string, _ uuid.UUID) error {
		if kind == appointment.KindAccount {
			return errors.New("timeout")
		}
		return nil
	}

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	require.Equal(t, CompletedWithDeactivationFailure, out.Kind)
	assert.ErrorIs(t, out.Err, appointment.ErrGatewayFailure)
	assert.Equal(t, []uuid.UUID{a.ID}, out.Cancelled)
	assert.Equal(t, appointment.StatusCancelled, f.load(t, a.ID).Status)
	assert.True(t, f.account(t, f.prov.ID).Active)
	assert.Equal(t, "all 1 appointments cancelled; account still active, retry deactivation", out.Summary())

	f.gw.FailUpdate = nil
	retry := f.coord.RetryDeactivation(context.Background(), f.prov.ID)
	require.Equal(t, Success, retry.Kind)
	assert.False(t, f.account(t, f.prov.ID).Active)
}

func TestRetryDeactivationRefusesWithOpenAppointments(t *testing.T) {
	f := newFixture(t, 1)
	f.seed(t, "2026-03-11", appointment.StatusScheduled)

	out := f.coord.RetryDeactivation(context.Background(), f.prov.ID)

	assert.Equal(t, NoActionTaken, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnresolvedAppointments)
	assert.True(t, f.account(t, f.prov.ID).Active)
	assert.Empty(t, f.gw.entries())
}

func TestRemoveRejectsWrongRole(t *testing.T) {
	f := newFixture(t, 1)
	f.seed(t, "2026-03-11", appointment.StatusScheduled)

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RolePatient, approve)
	assert.Equal(t, NoActionTaken, out.Kind)
	assert.ErrorIs(t, out.Err, ErrRoleMismatch)

	out = f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleStaff, approve)
	assert.Equal(t, NoActionTaken, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnsupportedRole)

	out = f.coord.RemoveAccount(context.Background(), uuid.New(), appointment.RoleProvider, approve)
	assert.Equal(t, NoActionTaken, out.Kind)
	assert.ErrorIs(t, out.Err, appointment.ErrNotFound)

	assert.Empty(t, f.gw.entries())
}

func TestRemoveAlreadyInactiveAccount(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.gw.MemoryGateway.UpdateAccount(context.Background(), f.prov.ID, appointment.AccountPatch{Active: ptr(false)})
	require.NoError(t, err)

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	assert.Equal(t, Success, out.Kind)
	assert.Empty(t, f.gw.entries())
}

func TestRemoveReportsUndatedAppointments(t *testing.T) {
	f := newFixture(t, 1)
	undated := f.seed(t, "next tuesday", appointment.StatusScheduled)
	dated := f.seed(t, "2026-03-15", appointment.StatusScheduled)

	req, err := f.coord.Preview(context.Background(), f.prov.ID, appointment.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Count())
	require.Len(t, req.Undated, 1)

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	require.Equal(t, Success, out.Kind)
	assert.Equal(t, []uuid.UUID{dated.ID}, out.Cancelled)
	assert.Equal(t, []uuid.UUID{undated.ID}, out.Undated)
	assert.Equal(t, appointment.StatusScheduled, f.load(t, undated.ID).Status)
}

func TestRemoveFetchFailureIsRetryable(t *testing.T) {
	f := newFixture(t, 1)
	f.seed(t, "2026-03-11", appointment.StatusScheduled)
	f.gw.FailFetch = func(kind string) error {
		if kind == appointment.KindAppointment {
			return errors.New("unavailable")
		}
		return nil
	}

	out := f.coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	assert.Equal(t, NoActionTaken, out.Kind)
	assert.ErrorIs(t, out.Err, appointment.ErrGatewayFailure)
	assert.True(t, out.Retryable())
	assert.Empty(t, f.gw.entries())
}

func TestRemoveLockContention(t *testing.T) {
	f := newFixture(t, 1)
	f.seed(t, "2026-03-11", appointment.StatusScheduled)
	coord := NewCoordinator(f.gw, f.svc, busyLocker{}, f.pub, config.Config{}, zerolog.Nop())

	out := coord.RemoveAccount(context.Background(), f.prov.ID, appointment.RoleProvider, approve)

	assert.Equal(t, NoActionTaken, out.Kind)
	assert.ErrorIs(t, out.Err, ErrRemovalInProgress)
	assert.True(t, out.Retryable())
	assert.Empty(t, f.gw.entries())
}
