package kline

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/poolmarket/internal/domain"
)

type sampleKey struct {
	eventID  string
	interval time.Duration
	bucket   time.Time
}

// memSampleStore mirrors the upsert merge semantics of the SQL store: open
// survives, high/low widen, close and pool fields take the incoming values.
type memSampleStore struct {
	mu      sync.Mutex
	samples map[sampleKey]domain.OddsSample
}

func newMemSampleStore() *memSampleStore {
	return &memSampleStore{samples: make(map[sampleKey]domain.OddsSample)}
}

func (m *memSampleStore) Upsert(_ context.Context, s domain.OddsSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := sampleKey{s.EventID, s.Interval, s.BucketStart}
	prev, ok := m.samples[k]
	if !ok {
		m.samples[k] = s
		return nil
	}
	prev.HighYes = decimal.Max(prev.HighYes, s.HighYes)
	prev.LowYes = decimal.Min(prev.LowYes, s.LowYes)
	prev.HighNo = decimal.Max(prev.HighNo, s.HighNo)
	prev.LowNo = decimal.Min(prev.LowNo, s.LowNo)
	prev.CloseYes = s.CloseYes
	prev.CloseNo = s.CloseNo
	prev.YesPool = s.YesPool
	prev.NoPool = s.NoPool
	prev.BetCount = s.BetCount
	m.samples[k] = prev
	return nil
}

func (m *memSampleStore) LastClose(_ context.Context, eventID string, interval time.Duration, before time.Time) (decimal.Decimal, decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.OddsSample
	for k, s := range m.samples {
		if k.eventID != eventID || k.interval != interval || !k.bucket.Before(before) {
			continue
		}
		if best == nil || s.BucketStart.After(best.BucketStart) {
			cp := s
			best = &cp
		}
	}
	if best == nil {
		return decimal.Zero, decimal.Zero, false, nil
	}
	return best.CloseYes, best.CloseNo, true, nil
}

func (m *memSampleStore) Range(_ context.Context, eventID string, interval time.Duration, from, to time.Time, limit int) ([]domain.OddsSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OddsSample
	for k, s := range m.samples {
		if k.eventID != eventID || k.interval != interval {
			continue
		}
		if !from.IsZero() && s.BucketStart.Before(from) {
			continue
		}
		if !to.IsZero() && !s.BucketStart.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	if from.IsZero() && to.IsZero() && limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	} else if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSampleStore) DeleteByEvent(_ context.Context, eventID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.samples {
		if k.eventID == eventID {
			delete(m.samples, k)
			n++
		}
	}
	return n, nil
}

func newTestRecorder(store domain.SampleStore, intervals []time.Duration) *Recorder {
	return NewRecorder(store, intervals, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func quoteEvent(yes, no string, yesPool, noPool string, bets int) domain.Event {
	return domain.Event{
		ID:           "evt-1",
		YesOdds:      decimal.RequireFromString(yes),
		NoOdds:       decimal.RequireFromString(no),
		YesPool:      decimal.RequireFromString(yesPool),
		NoPool:       decimal.RequireFromString(noPool),
		TotalYesBets: bets,
	}
}

func TestRecordFirstBucketOpensAtCurrentQuote(t *testing.T) {
	store := newMemSampleStore()
	r := newTestRecorder(store, []time.Duration{time.Minute})
	at := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	r.now = func() time.Time { return at }

	r.Record(context.Background(), quoteEvent("1.90", "1.90", "100", "100", 2))

	got, err := store.Range(context.Background(), "evt-1", time.Minute, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), s.BucketStart)
	assert.True(t, s.OpenYes.Equal(decimal.RequireFromString("1.90")))
	assert.True(t, s.CloseYes.Equal(decimal.RequireFromString("1.90")))
	assert.True(t, s.HighYes.Equal(s.LowYes))
	assert.Equal(t, 2, s.BetCount)
}

func TestRecordMergesHighLowCloseWithinBucket(t *testing.T) {
	store := newMemSampleStore()
	r := newTestRecorder(store, []time.Duration{time.Minute})
	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	r.now = func() time.Time { return at }

	r.Record(context.Background(), quoteEvent("1.90", "1.90", "100", "100", 2))

	at = at.Add(20 * time.Second)
	r.Record(context.Background(), quoteEvent("2.40", "1.55", "100", "200", 3))

	at = at.Add(20 * time.Second)
	r.Record(context.Background(), quoteEvent("2.10", "1.65", "150", "200", 4))

	got, err := store.Range(context.Background(), "evt-1", time.Minute, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	assert.True(t, s.OpenYes.Equal(decimal.RequireFromString("1.90")), "open preserved across updates")
	assert.True(t, s.HighYes.Equal(decimal.RequireFromString("2.40")))
	assert.True(t, s.LowYes.Equal(decimal.RequireFromString("1.90")))
	assert.True(t, s.CloseYes.Equal(decimal.RequireFromString("2.10")))
	assert.True(t, s.LowNo.Equal(decimal.RequireFromString("1.55")))
	assert.True(t, s.YesPool.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, 4, s.BetCount)
}

func TestRecordNewBucketOpensAtPreviousClose(t *testing.T) {
	store := newMemSampleStore()
	r := newTestRecorder(store, []time.Duration{time.Minute})
	at := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	r.now = func() time.Time { return at }

	r.Record(context.Background(), quoteEvent("1.90", "1.90", "100", "100", 2))

	at = at.Add(time.Minute)
	r.Record(context.Background(), quoteEvent("2.20", "1.60", "100", "180", 3))

	got, err := store.Range(context.Background(), "evt-1", time.Minute, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	second := got[1]
	assert.True(t, second.OpenYes.Equal(decimal.RequireFromString("1.90")), "new bucket opens at previous close")
	assert.True(t, second.CloseYes.Equal(decimal.RequireFromString("2.20")))
	// Open below close still widens the high to the close.
	assert.True(t, second.HighYes.Equal(decimal.RequireFromString("2.20")))
	assert.True(t, second.LowYes.Equal(decimal.RequireFromString("1.90")))
}

func TestRecordWritesEveryConfiguredInterval(t *testing.T) {
	store := newMemSampleStore()
	intervals := []time.Duration{time.Minute, 5 * time.Minute, time.Hour}
	r := newTestRecorder(store, intervals)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 7, 0, 0, time.UTC) }

	r.Record(context.Background(), quoteEvent("1.80", "2.05", "120", "90", 5))

	for _, iv := range intervals {
		got, err := store.Range(context.Background(), "evt-1", iv, time.Time{}, time.Time{}, 0)
		require.NoError(t, err)
		assert.Len(t, got, 1, "interval %s", iv)
	}
	assert.Equal(
		t,
		time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		mustOne(t, store, 5*time.Minute).BucketStart,
	)
	assert.Equal(
		t,
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		mustOne(t, store, time.Hour).BucketStart,
	)
}

func mustOne(t *testing.T, store *memSampleStore, interval time.Duration) domain.OddsSample {
	t.Helper()
	got, err := store.Range(context.Background(), "evt-1", interval, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	return got[0]
}

func TestHistoryAppliesRangeAndLimit(t *testing.T) {
	store := newMemSampleStore()
	r := newTestRecorder(store, []time.Duration{time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		r.now = func() time.Time { return at }
		r.Record(context.Background(), quoteEvent("1.90", "1.90", "100", "100", i+1))
	}

	// Most recent two buckets when no range is given.
	got, err := r.History(context.Background(), "evt-1", time.Minute, time.Time{}, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC), got[0].BucketStart)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC), got[1].BucketStart)

	// Half-open [from, to) window.
	from := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC)
	got, err = r.History(context.Background(), "evt-1", time.Minute, from, to, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, from, got[0].BucketStart)
}

func TestNewRecorderDefaultsIntervals(t *testing.T) {
	r := newTestRecorder(newMemSampleStore(), nil)
	assert.Equal(t, DefaultIntervals, r.Intervals())
}
