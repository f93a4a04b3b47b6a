// Package kline maintains the bucketed open/high/low/close time series of
// quoted odds per event. It exclusively owns odds sample rows and never
// mutates event or bet state.
package kline

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// DefaultIntervals are the bucket granularities recorded when the config
// does not override them.
var DefaultIntervals = []time.Duration{time.Minute, 5 * time.Minute, time.Hour}

// Recorder samples an event's odds/pool state into time buckets on every
// pool-changing operation.
type Recorder struct {
	samples   domain.SampleStore
	intervals []time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder creates a Recorder writing one sample per interval on each
// Record call. An empty intervals slice falls back to DefaultIntervals.
func NewRecorder(samples domain.SampleStore, intervals []time.Duration, logger *slog.Logger) *Recorder {
	if len(intervals) == 0 {
		intervals = DefaultIntervals
	}
	return &Recorder{
		samples:   samples,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "kline")),
		now:       time.Now,
	}
}

// Record appends or updates the current bucket sample of every configured
// interval from the event's committed odds/pool state. It is best-effort and
// runs outside the caller's transaction: failures are logged, never returned,
// so a slow or unavailable sample store cannot fail a bet.
func (r *Recorder) Record(ctx context.Context, e domain.Event) {
	at := r.now()
	for _, interval := range r.intervals {
		if err := r.record(ctx, e, interval, at); err != nil {
			r.logger.WarnContext(ctx, "kline: record sample failed",
				slog.String("event_id", e.ID),
				slog.Duration("interval", interval),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (r *Recorder) record(ctx context.Context, e domain.Event, interval time.Duration, at time.Time) error {
	bucket := domain.BucketStart(at, interval)

	// A new bucket opens at the previous bucket's close; the first bucket of
	// an event opens at the current quote. The open seed only takes effect
	// on insert: the store's upsert leaves an existing bucket's open intact.
	openYes, openNo := e.YesOdds, e.NoOdds
	if y, n, ok, err := r.samples.LastClose(ctx, e.ID, interval, bucket); err != nil {
		return err
	} else if ok {
		openYes, openNo = y, n
	}

	s := domain.OddsSample{
		EventID:     e.ID,
		Interval:    interval,
		BucketStart: bucket,
		OpenYes:     openYes,
		HighYes:     decimal.Max(openYes, e.YesOdds),
		LowYes:      decimal.Min(openYes, e.YesOdds),
		CloseYes:    e.YesOdds,
		OpenNo:      openNo,
		HighNo:      decimal.Max(openNo, e.NoOdds),
		LowNo:       decimal.Min(openNo, e.NoOdds),
		CloseNo:     e.NoOdds,
		YesPool:     e.YesPool,
		NoPool:      e.NoPool,
		BetCount:    e.TotalYesBets + e.TotalNoBets,
	}
	return r.samples.Upsert(ctx, s)
}

// History returns the event's samples for one interval in ascending bucket
// order. With a zero from/to range the most recent limit buckets are
// returned.
func (r *Recorder) History(ctx context.Context, eventID string, interval time.Duration, from, to time.Time, limit int) ([]domain.OddsSample, error) {
	return r.samples.Range(ctx, eventID, interval, from, to, limit)
}

// Intervals returns the configured bucket granularities.
func (r *Recorder) Intervals() []time.Duration {
	return r.intervals
}
