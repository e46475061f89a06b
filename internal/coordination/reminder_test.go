package coordination_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/case/infrastructure"
	"github.com/sos-villages/signalement/internal/coordination"
	"github.com/sos-villages/signalement/internal/directory"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	intents []notification.Intent
}

func (d *recordingDispatcher) Dispatch(intents ...notification.Intent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intents = append(d.intents, intents...)
}

func (d *recordingDispatcher) sent() []notification.Intent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notification.Intent(nil), d.intents...)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type sweepFixture struct {
	t          *testing.T
	ctx        context.Context
	store      *infrastructure.MemoryStore
	dispatcher *recordingDispatcher
	village    types.ID
	now        time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	f := &sweepFixture{
		t:          t,
		ctx:        context.Background(),
		store:      infrastructure.NewMemoryStore(),
		dispatcher: &recordingDispatcher{},
		village:    types.NewID(),
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.store.CreateVillage(f.ctx, &directory.Village{ID: f.village, Name: "Siliana"},
		audit.NewEntry(nil, "", audit.ActionCreateVillage, audit.EntityVillage, f.village.Ptr(), nil)))
	return f
}

func (f *sweepFixture) psychologist(whatsapp string) types.ID {
	f.t.Helper()
	u := &directory.User{
		ID:             types.NewID(),
		Email:          fmt.Sprintf("psy-%s@sos.tn", types.NewID().String()[:8]),
		FullName:       "Psy",
		Role:           auth.RolePsychologist,
		VillageID:      &f.village,
		WhatsAppNumber: whatsapp,
		CreatedAt:      f.now,
	}
	require.NoError(f.t, f.store.CreateUser(f.ctx, u,
		audit.NewEntry(nil, "", audit.ActionCreateUser, audit.EntityUser, u.ID.Ptr(), nil)))
	return u.ID
}

func (f *sweepFixture) pendingCase(age time.Duration, psychologists ...types.ID) *domain.Case {
	f.t.Helper()
	c, err := domain.NewCase(domain.NewCaseParams{
		VillageID:    f.village,
		CreatedBy:    types.NewID(),
		IncidentType: domain.IncidentNeglect,
		Urgency:      domain.UrgencyMedium,
		CreatedAt:    f.now.Add(-age),
	})
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.CreateCase(f.ctx, c))

	roles := []domain.AssignmentRole{domain.AssignmentPrimary, domain.AssignmentSecondary}
	for i, psy := range psychologists {
		require.NoError(f.t, f.store.AddAssignment(f.ctx, &domain.Assignment{
			ID: types.NewID(), CaseID: c.ID, PsychologistID: psy, Role: roles[i], CreatedAt: c.CreatedAt,
		}))
	}
	return c
}

func (f *sweepFixture) service(locker coordination.Locker) *coordination.ReminderService {
	return coordination.NewReminderService(f.store, f.dispatcher, locker, coordination.ReminderConfig{
		Interval: time.Hour,
		After:    24 * time.Hour,
		LockTTL:  time.Minute,
	}, zap.NewNop())
}

func TestSweepOnceIsIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	primary := f.psychologist("+21650111111")
	secondary := f.psychologist("21650222222")
	overdue := f.pendingCase(25*time.Hour, primary, secondary)
	f.pendingCase(2*time.Hour, primary, secondary)

	svc := f.service(nil)

	result, err := svc.SweepOnce(f.ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, coordination.SweepResult{Cases: 1, Reminders: 2}, result)

	sent := f.dispatcher.sent()
	require.Len(t, sent, 2)
	addresses := []string{sent[0].To, sent[1].To}
	require.ElementsMatch(t, []string{"whatsapp:+21650111111", "whatsapp:21650222222"}, addresses)
	for _, in := range sent {
		require.Equal(t, notification.ChannelWhatsApp, in.Channel)
	}

	result, err = svc.SweepOnce(f.ctx, f.now.Add(15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, result.Reminders)
	require.Len(t, f.dispatcher.sent(), 2)

	for _, psy := range []types.ID{primary, secondary} {
		list, err := f.store.ListForUser(f.ctx, psy, 50)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, notification.KindPendingReminder24h, list[0].Type)
		require.Equal(t, overdue.ID, *list[0].CaseID)
	}

	entries, total, err := f.store.Audit().List(f.ctx, audit.ListFilter{Action: audit.ActionPendingReminderRecorded})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Nil(t, entries[0].ActorID)
}

func TestSweepSkipsCasesNoLongerPending(t *testing.T) {
	f := newSweepFixture(t)
	psy := f.psychologist("+21650333333")
	c := f.pendingCase(48*time.Hour, psy)

	ok, err := f.store.UpdateStatus(f.ctx, c.ID, domain.CaseStatusPending, domain.CaseStatusInProgress, f.now)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := f.service(nil).SweepOnce(f.ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, coordination.SweepResult{}, result)
	require.Empty(t, f.dispatcher.sent())
}

func TestSweepSkipsPsychologistsWithoutWhatsApp(t *testing.T) {
	f := newSweepFixture(t)
	reachable := f.psychologist("+21650444444")
	unreachable := f.psychologist("")
	f.pendingCase(30*time.Hour, reachable, unreachable)

	result, err := f.service(nil).SweepOnce(f.ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Reminders)

	list, err := f.store.ListForUser(f.ctx, unreachable, 50)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSweepHonorsLock(t *testing.T) {
	f := newSweepFixture(t)
	f.pendingCase(30*time.Hour, f.psychologist("+21650555555"))

	result, err := f.service(busyLocker{}).SweepOnce(f.ctx, f.now)
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Empty(t, f.dispatcher.sent())
}

func TestSweepErrors(t *testing.T) {
	f := newSweepFixture(t)
	f.pendingCase(30*time.Hour, f.psychologist("+21650666666"))
	svc := f.service(nil)

	f.store.FailOn("InsertNotification", fmt.Errorf("disk full"))
	result, err := svc.SweepOnce(f.ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, 0, result.Reminders)
	require.Empty(t, f.dispatcher.sent())

	f.store.FailOn("InsertNotification", nil)
	f.store.FailOn("ListPendingCreatedBefore", fmt.Errorf("connection refused"))
	_, err = svc.SweepOnce(f.ctx, f.now)
	require.True(t, errors.HasCode(err, errors.CodeStoreUnavailable), "got %v", err)

	f.store.FailOn("ListPendingCreatedBefore", nil)
	result, err = svc.SweepOnce(f.ctx, f.now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Reminders)
}

func TestStartRunsImmediately(t *testing.T) {
	f := newSweepFixture(t)
	f.pendingCase(30*24*time.Hour, f.psychologist("+21650777777"))

	svc := f.service(nil)
	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()

	svc.Start(ctx)
	require.Eventually(t, func() bool { return len(f.dispatcher.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	svc.Stop()
	svc.Stop()
}

func TestFromConfigDefaults(t *testing.T) {
	cfg := coordination.FromConfig(config.ReminderConfig{After: 48 * time.Hour})
	require.Equal(t, 15*time.Minute, cfg.Interval)
	require.Equal(t, 48*time.Hour, cfg.After)
	require.Equal(t, 5*time.Minute, cfg.LockTTL)
}
