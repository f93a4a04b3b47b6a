package settle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/poolmarket/internal/domain"
)

type fakeSource struct {
	mu     sync.Mutex
	events map[string]domain.Event
}

func newFakeSource(events ...domain.Event) *fakeSource {
	m := make(map[string]domain.Event, len(events))
	for _, ev := range events {
		m[ev.ID] = ev
	}
	return &fakeSource{events: m}
}

func (f *fakeSource) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, ev := range f.events {
		if ev.Status == domain.StatusActive && !ev.Deadline.After(now) && !ev.NeedsReview {
			out = append(out, ev)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) GetEvent(_ context.Context, id string) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return ev, nil
}

func (f *fakeSource) put(ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = ev
}

type fakeSettler struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	src   *fakeSource
}

func (s *fakeSettler) Settle(_ context.Context, eventID string, outcome *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, eventID)
	_ = outcome
	if err := s.errs[eventID]; err != nil {
		return err
	}
	ev, err := s.src.GetEvent(context.Background(), eventID)
	if err != nil {
		return err
	}
	ev.Status = domain.StatusSettled
	s.src.put(ev)
	return nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	sent  int
	last  string
	event string
}

func (a *fakeAlerter) Notify(_ context.Context, event, _, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent++
	a.event = event
	a.last = message
	return nil
}

func activeEvent(id string, deadline time.Time) domain.Event {
	return domain.Event{ID: id, Status: domain.StatusActive, Deadline: deadline}
}

func TestTickSettlesExpiredEvents(t *testing.T) {
	now := time.Now().UTC()
	src := newFakeSource(
		activeEvent("past-1", now.Add(-time.Minute)),
		activeEvent("past-2", now.Add(-time.Hour)),
		activeEvent("future", now.Add(time.Hour)),
	)
	settler := &fakeSettler{errs: map[string]error{}, src: src}
	sched := NewScheduler(src, settler, nil, SchedulerConfig{}, slog.New(slog.DiscardHandler))

	sched.Tick(context.Background())

	assert.ElementsMatch(t, []string{"past-1", "past-2"}, settler.calls)
}

func TestTickOneFailureDoesNotBlockOthers(t *testing.T) {
	now := time.Now().UTC()
	src := newFakeSource(
		activeEvent("bad", now.Add(-time.Minute)),
		activeEvent("good", now.Add(-time.Minute)),
	)
	settler := &fakeSettler{errs: map[string]error{"bad": errors.New("oracle down")}, src: src}
	sched := NewScheduler(src, settler, nil, SchedulerConfig{}, slog.New(slog.DiscardHandler))

	sched.Tick(context.Background())
	assert.Len(t, settler.calls, 2)

	// The failed event stays active and is retried next tick.
	ev, err := src.GetEvent(context.Background(), "bad")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, ev.Status)

	sched.Tick(context.Background())
	retries := 0
	for _, id := range settler.calls {
		if id == "bad" {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestIndeterminateLeavesActiveAndAlertsWhenFlagged(t *testing.T) {
	now := time.Now().UTC()
	ev := activeEvent("stuck", now.Add(-time.Minute))
	src := newFakeSource(ev)
	settler := &fakeSettler{errs: map[string]error{"stuck": domain.ErrOracleIndeterminate}, src: src}
	alerter := &fakeAlerter{}
	sched := NewScheduler(src, settler, alerter, SchedulerConfig{}, slog.New(slog.DiscardHandler))

	sched.Tick(context.Background())
	assert.Equal(t, 0, alerter.sent, "no alert before the review flag is set")

	// The service flags the event once attempts are exhausted; the scheduler
	// sees the flag right after the indeterminate settle of the same tick.
	ev.NeedsReview = true
	ev.OracleAttempts = 10
	src.put(ev)
	sched.settleOne(context.Background(), ev)

	assert.Equal(t, 1, alerter.sent)
	assert.Equal(t, "event_needs_review", alerter.event)

	// Flagged events drop out of the scan entirely.
	expired, err := src.ListExpired(context.Background(), now, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestTickAlreadyClosedIsQuiet(t *testing.T) {
	now := time.Now().UTC()
	src := newFakeSource(activeEvent("raced", now.Add(-time.Minute)))
	settler := &fakeSettler{errs: map[string]error{"raced": domain.ErrEventClosed}, src: src}
	alerter := &fakeAlerter{}
	sched := NewScheduler(src, settler, alerter, SchedulerConfig{}, slog.New(slog.DiscardHandler))

	sched.Tick(context.Background())
	assert.Equal(t, 0, alerter.sent)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := newFakeSource()
	settler := &fakeSettler{errs: map[string]error{}, src: src}
	sched := NewScheduler(src, settler, nil, SchedulerConfig{Interval: 10 * time.Millisecond}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
