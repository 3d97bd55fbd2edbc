package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clubhub/internal/docstore"
	"clubhub/internal/event"
	"clubhub/internal/registration"
	"clubhub/internal/student"
)

type fakeEvents map[string]event.Event

func (f fakeEvents) Get(_ context.Context, id string) (event.Event, error) {
	e, ok := f[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type timers struct {
	mu  sync.Mutex
	all []*fakeTimer
}

func (ts *timers) after(d time.Duration, f func()) stopper {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ts.all = append(ts.all, t)
	return t
}

// fire runs the latest timer if it was not stopped.
func (ts *timers) fire(t *testing.T) {
	t.Helper()
	ts.mu.Lock()
	require.NotEmpty(t, ts.all)
	last := ts.all[len(ts.all)-1]
	ts.mu.Unlock()
	if last.stopped {
		return
	}
	last.fired = true
	last.f()
}

type rig struct {
	store   *docstore.Memory
	ledger  *registration.Service
	events  fakeEvents
	timers  *timers
	console *Console
	clock   time.Time
}

func newRig(t *testing.T, e event.Event) *rig {
	t.Helper()
	r := &rig{
		store:  docstore.NewMemory(),
		events: fakeEvents{e.ID: e},
		timers: &timers{},
		clock:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	log := zap.NewNop()
	r.ledger = registration.NewService(r.store, r.events, log)
	cs := NewConsoles(r.ledger, student.NewDirectory(r.store, log), r.events, NewResolver(nil), log, Options{})
	cs.after = r.timers.after
	cs.now = func() time.Time {
		r.clock = r.clock.Add(time.Second)
		return r.clock
	}
	c, err := cs.Open(context.Background(), e.ID, "robotics")
	require.NoError(t, err)
	r.console = c
	return r
}

func (r *rig) addStudent(t *testing.T, roll string) student.Profile {
	t.Helper()
	p := student.Profile{ID: roll, Roll: roll, Name: "Student " + roll, Department: "CSE", Year: "2"}
	_, err := r.store.Create(context.Background(), docstore.Users, roll, p)
	require.NoError(t, err)
	return p
}

func (r *rig) register(t *testing.T, roll string) {
	t.Helper()
	e := r.events[r.console.eventID]
	reg := registration.FromProfile(e, r.addStudent(t, roll), r.clock)
	require.NoError(t, r.ledger.Insert(context.Background(), reg))
}

func liveEvent(open bool) event.Event {
	return event.Event{ID: "e1", Title: "Arduino 101", Type: event.TypeWorkshop, Status: event.StatusLive, RegistrationOpen: open}
}

func TestScan_ChecksInThenWarns(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(true))
	r.register(t, "23CS001")

	fb, err := r.console.Scan(ctx, " 23cs001 ")
	require.NoError(t, err)
	assert.Equal(t, FeedbackSuccess, fb.Type)
	assert.Equal(t, MsgCheckedIn, fb.Message)
	assert.Equal(t, "Student 23CS001", fb.StudentName)

	reg, err := r.ledger.Get(ctx, "e1", "23CS001")
	require.NoError(t, err)
	assert.Equal(t, registration.StatusPresent, reg.Status)
	require.NotNil(t, reg.CheckedInAt)
	assert.Equal(t, "robotics", reg.CheckedInBy)

	_, err = r.console.Scan(ctx, "23CS001")
	assert.ErrorIs(t, err, ErrScannerPaused)

	r.timers.fire(t)
	fb, err = r.console.Scan(ctx, "23CS001")
	require.NoError(t, err)
	assert.Equal(t, FeedbackWarning, fb.Type)
	assert.Equal(t, MsgAlreadyCheckedIn, fb.Message)

	again, err := r.ledger.Get(ctx, "e1", "23CS001")
	require.NoError(t, err)
	assert.True(t, reg.CheckedInAt.Equal(*again.CheckedInAt))
	assert.Len(t, r.console.State().Recent, 1)
}

func TestScan_NotRegisteredPausesForCooldown(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(true))

	fb, err := r.console.Scan(ctx, "99ZZ999")
	require.NoError(t, err)
	assert.Equal(t, FeedbackError, fb.Type)
	assert.Equal(t, MsgNotRegistered, fb.Message)

	st := r.console.State()
	assert.True(t, st.Paused)
	require.NotNil(t, st.Last)
	assert.Equal(t, MsgNotRegistered, st.Last.Message)
	require.Len(t, r.timers.all, 1)
	assert.Equal(t, 3*time.Second, r.timers.all[0].d)

	r.timers.fire(t)
	assert.False(t, r.console.State().Paused)
	_, err = r.console.Scan(ctx, "99ZZ999")
	require.NoError(t, err)
}

func TestScan_UnresolvableIdentifierStillPauses(t *testing.T) {
	r := newRig(t, liveEvent(true))
	fb, err := r.console.Scan(context.Background(), "TEAM|e1|T1|Bits")
	require.NoError(t, err)
	assert.Equal(t, FeedbackError, fb.Type)
	assert.Equal(t, MsgInvalidCode, fb.Message)
	assert.Equal(t, HintTypeRoll, fb.Detail)
	assert.True(t, r.console.State().Paused)
}

func TestScan_VerificationErrorsStayOffTheBanner(t *testing.T) {
	r := newRig(t, liveEvent(true))
	r.console.resolver = NewResolver(fetcher{})

	fb, err := r.console.Scan(context.Background(), "http://127.0.0.1:1/internal/admin")
	require.NoError(t, err)
	assert.Equal(t, MsgInvalidCode, fb.Message)
	assert.Equal(t, HintTypeRoll, fb.Detail)
	assert.NotContains(t, fb.Detail, "127.0.0.1")
}

func TestScan_UnreachableVerifierIsAnError(t *testing.T) {
	r := newRig(t, liveEvent(true))
	r.console.resolver = NewResolver(fetcher{})

	_, err := r.console.Scan(context.Background(), downURL)
	assert.ErrorIs(t, err, ErrVerifyUnavailable)
	st := r.console.State()
	assert.False(t, st.Paused)
	assert.Nil(t, st.Last)
	assert.Empty(t, r.timers.all)
}

type slowFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f slowFetcher) Roll(ctx context.Context, _ string) (string, error) {
	close(f.started)
	select {
	case <-f.release:
		return "23CS001", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestScan_ConsoleStaysResponsiveWhileResolving(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(true))
	r.register(t, "23CS001")
	slow := slowFetcher{started: make(chan struct{}), release: make(chan struct{})}
	r.console.resolver = NewResolver(slow)

	type result struct {
		fb  Feedback
		err error
	}
	done := make(chan result, 1)
	go func() {
		fb, err := r.console.Scan(ctx, "https://verify.college.edu/s/1")
		done <- result{fb, err}
	}()
	<-slow.started

	answered := make(chan State, 1)
	go func() { answered <- r.console.State() }()
	select {
	case st := <-answered:
		assert.True(t, st.Paused)
	case <-time.After(time.Second):
		t.Fatal("State blocked behind the verification fetch")
	}

	_, err := r.console.Scan(ctx, "23CS001")
	assert.ErrorIs(t, err, ErrScannerPaused)
	_, err = r.console.Undo(ctx, "23CS404")
	assert.ErrorIs(t, err, registration.ErrNotFound)

	close(slow.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, MsgCheckedIn, res.fb.Message)
	assert.Len(t, r.console.State().Recent, 1)
	require.Len(t, r.timers.all, 1)
}

func TestConsole_StaleTimerDoesNotResume(t *testing.T) {
	r := newRig(t, liveEvent(true))
	c := r.console

	c.mu.Lock()
	c.feedback(Feedback{Type: FeedbackError, Message: MsgNotRegistered})
	c.feedback(Feedback{Type: FeedbackError, Message: MsgNotRegistered})
	c.mu.Unlock()

	require.Len(t, r.timers.all, 2)
	first := r.timers.all[0]
	assert.True(t, first.stopped)

	first.f()
	assert.True(t, c.State().Paused)

	r.timers.fire(t)
	assert.False(t, c.State().Paused)
}

type brokenLedger struct {
	Ledger
}

func (brokenLedger) Get(context.Context, string, string) (registration.Registration, error) {
	return registration.Registration{}, errors.New("connection reset")
}

func TestScan_StoreFailureLeavesConsoleIdle(t *testing.T) {
	r := newRig(t, liveEvent(true))
	r.console.ledger = brokenLedger{Ledger: r.ledger}

	_, err := r.console.Scan(context.Background(), "23CS001")
	require.Error(t, err)
	st := r.console.State()
	assert.False(t, st.Paused)
	assert.Nil(t, st.Last)
	assert.Empty(t, r.timers.all)
}

func TestUndo_ThenRescanGivesLaterTimestamp(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(true))
	r.register(t, "23CS001")

	_, err := r.console.Scan(ctx, "23CS001")
	require.NoError(t, err)
	first, err := r.ledger.Get(ctx, "e1", "23CS001")
	require.NoError(t, err)

	undone, err := r.console.Undo(ctx, "23cs001")
	require.NoError(t, err)
	assert.Equal(t, registration.StatusRegistered, undone.Status)
	assert.Empty(t, r.console.State().Recent)

	stored, err := r.ledger.Get(ctx, "e1", "23CS001")
	require.NoError(t, err)
	assert.Nil(t, stored.CheckedInAt)

	_, err = r.console.Undo(ctx, "23CS001")
	assert.ErrorIs(t, err, ErrNotCheckedIn)

	r.timers.fire(t)
	fb, err := r.console.Scan(ctx, "23CS001")
	require.NoError(t, err)
	assert.Equal(t, FeedbackSuccess, fb.Type)

	second, err := r.ledger.Get(ctx, "e1", "23CS001")
	require.NoError(t, err)
	assert.Equal(t, registration.StatusPresent, second.Status)
	assert.True(t, second.CheckedInAt.After(*first.CheckedInAt))

	all, err := r.ledger.ListByEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUndo_UnknownRoll(t *testing.T) {
	r := newRig(t, liveEvent(true))
	_, err := r.console.Undo(context.Background(), "23CS404")
	assert.ErrorIs(t, err, registration.ErrNotFound)
}

func TestRecentList_KeepsFiveNewestFirst(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(true))
	for i := 1; i <= 7; i++ {
		roll := fmt.Sprintf("23CS%03d", i)
		r.register(t, roll)
		_, err := r.console.Scan(ctx, roll)
		require.NoError(t, err)
		r.timers.fire(t)
	}
	recent := r.console.State().Recent
	require.Len(t, recent, 5)
	assert.Equal(t, "23CS007", recent[0].Roll)
	assert.Equal(t, "23CS003", recent[4].Roll)
}

func TestOnSpot_RegistersPresent(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(false))
	r.addStudent(t, "23CS001")

	reg, err := r.console.OnSpot(ctx, "23CS001")
	require.NoError(t, err)
	assert.Equal(t, registration.StatusPresent, reg.Status)
	assert.True(t, reg.IsOnSpot)
	require.NotNil(t, reg.CheckedInAt)

	stored, err := r.ledger.Get(ctx, "e1", "23CS001")
	require.NoError(t, err)
	assert.True(t, stored.IsOnSpot)
	assert.True(t, registration.IsAttended(stored))

	recent := r.console.State().Recent
	require.Len(t, recent, 1)
	assert.True(t, recent[0].OnSpot)
	assert.LessOrEqual(t, len(recent), 5)
}

func TestOnSpot_SecondAttemptRejectedBeforeWrite(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, liveEvent(false))
	r.addStudent(t, "23CS001")

	_, err := r.console.OnSpot(ctx, "23CS001")
	require.NoError(t, err)
	_, err = r.console.OnSpot(ctx, "23CS001")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	all, err := r.ledger.ListByEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, r.console.State().Recent, 1)
}

func TestOnSpot_Guards(t *testing.T) {
	ctx := context.Background()
	open := newRig(t, liveEvent(true))
	open.addStudent(t, "23CS001")
	_, err := open.console.OnSpot(ctx, "23CS001")
	assert.ErrorIs(t, err, ErrOnSpotNotAllowed)

	closed := newRig(t, liveEvent(false))
	_, err = closed.console.OnSpot(ctx, "23CS404")
	assert.ErrorIs(t, err, ErrStudentNotFound)
	_, err = closed.console.OnSpot(ctx, "not a roll")
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestConsoles_Open(t *testing.T) {
	ctx := context.Background()
	draft := event.Event{ID: "d1", Status: event.StatusDraft}
	events := fakeEvents{"e1": liveEvent(true), "d1": draft}
	store := docstore.NewMemory()
	log := zap.NewNop()
	cs := NewConsoles(registration.NewService(store, events, log), student.NewDirectory(store, log), events, NewResolver(nil), log, Options{})
	defer cs.Close()

	a, err := cs.Open(ctx, "e1", "robotics")
	require.NoError(t, err)
	b, err := cs.Open(ctx, "e1", "robotics")
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := cs.Open(ctx, "e1", "coding")
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	_, err = cs.Open(ctx, "d1", "robotics")
	assert.ErrorIs(t, err, ErrEventNotLive)
	_, err = cs.Open(ctx, "zz", "robotics")
	assert.ErrorIs(t, err, event.ErrNotFound)
}

func TestConsoles_EvictsIdleAndFinishedEvents(t *testing.T) {
	ctx := context.Background()
	events := fakeEvents{"e1": liveEvent(true)}
	store := docstore.NewMemory()
	log := zap.NewNop()
	cs := NewConsoles(registration.NewService(store, events, log), student.NewDirectory(store, log), events, NewResolver(nil), log, Options{IdleTTL: time.Hour})
	defer cs.Close()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return clock }

	robotics, err := cs.Open(ctx, "e1", "robotics")
	require.NoError(t, err)
	clock = clock.Add(30 * time.Minute)
	coding, err := cs.Open(ctx, "e1", "coding")
	require.NoError(t, err)

	clock = clock.Add(45 * time.Minute)
	again, err := cs.Open(ctx, "e1", "coding")
	require.NoError(t, err)
	assert.Same(t, coding, again)
	assert.Len(t, cs.consoles, 1, "robotics idle for 75 minutes")

	fresh, err := cs.Open(ctx, "e1", "robotics")
	require.NoError(t, err)
	assert.NotSame(t, robotics, fresh)

	assert.Zero(t, cs.Forget("e2"))
	assert.Len(t, cs.consoles, 2)
	assert.Equal(t, 2, cs.Forget("e1"))
	assert.Empty(t, cs.consoles)
}

func TestConsoles_PausedConsoleIsNotEvicted(t *testing.T) {
	r := newRig(t, liveEvent(true))
	_, err := r.console.Scan(context.Background(), "99ZZ999")
	require.NoError(t, err)
	require.True(t, r.console.State().Paused)

	cs := NewConsoles(r.ledger, nil, r.events, NewResolver(nil), zap.NewNop(), Options{IdleTTL: time.Minute})
	cs.after = r.timers.after
	clock := r.clock
	cs.now = func() time.Time { return clock }
	cs.consoles["e1|robotics"] = r.console
	r.console.lastUsed = clock.Add(-time.Hour)

	_, err = cs.Open(context.Background(), "e1", "coding")
	require.NoError(t, err)
	assert.Contains(t, cs.consoles, "e1|robotics")
}
