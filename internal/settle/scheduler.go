// Package settle runs the recurring background jobs of the market: the
// deadline-driven settlement scan and the cold-storage archival of finished
// events.
package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// Settler is the slice of the market service the scheduler drives. A nil
// outcome makes the service consult the oracle.
type Settler interface {
	Settle(ctx context.Context, eventID string, outcome *bool) error
}

// EventSource lists settlement candidates. Satisfied by domain.Store.
type EventSource interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (domain.Event, error)
}

// Alerter delivers operator notifications. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SchedulerConfig holds the scan policy. None of these affect correctness;
// they trade settlement latency against oracle and database load.
type SchedulerConfig struct {
	Interval        time.Duration // scan period, default 60s
	PerEventTimeout time.Duration // budget for one settlement, default 30s
	BatchSize       int           // max events per tick, default 100
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.PerEventTimeout <= 0 {
		c.PerEventTimeout = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
}

// Scheduler periodically scans for active events past their deadline and
// settles each one independently: a failure on one event is logged and does
// not block the rest of the tick, and the event is retried next tick.
type Scheduler struct {
	events  EventSource
	settler Settler
	alerter Alerter
	cfg     SchedulerConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewScheduler creates a settlement Scheduler. alerter may be nil.
func NewScheduler(events EventSource, settler Settler, alerter Alerter, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		events:  events,
		settler: settler,
		alerter: alerter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "settle")),
		now:     time.Now,
	}
}

// Run executes the scan loop until ctx is cancelled. The first scan happens
// immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("settlement scheduler starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("per_event_timeout", s.cfg.PerEventTimeout),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one settlement scan.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	events, err := s.events.ListExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "settle: scan failed", slog.String("error", err.Error()))
		return
	}
	if len(events) == 0 {
		return
	}

	s.logger.InfoContext(ctx, "settle: scan found expired events", slog.Int("count", len(events)))
	for _, ev := range events {
		s.settleOne(ctx, ev)
	}
}

// settleOne settles a single event under its own timeout so one stuck
// settlement cannot stall the whole tick.
func (s *Scheduler) settleOne(ctx context.Context, ev domain.Event) {
	settleCtx, cancel := context.WithTimeout(ctx, s.cfg.PerEventTimeout)
	defer cancel()

	err := s.settler.Settle(settleCtx, ev.ID, nil)
	switch {
	case err == nil:
		return

	case errors.Is(err, domain.ErrEventClosed):
		// Settled concurrently by an admin; nothing to do.
		return

	case errors.Is(err, domain.ErrOracleIndeterminate):
		s.logger.InfoContext(ctx, "settle: outcome not yet determinable",
			slog.String("event_id", ev.ID),
		)
		s.alertIfFlagged(ctx, ev.ID)

	case errors.Is(err, domain.ErrBusy):
		s.logger.InfoContext(ctx, "settle: event locked, retrying next tick",
			slog.String("event_id", ev.ID),
		)

	default:
		s.logger.WarnContext(ctx, "settle: settlement failed, retrying next tick",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// alertIfFlagged notifies operators the first time an event exhausts its
// oracle attempts. Flagged events drop out of ListExpired, so this fires at
// most once per event.
func (s *Scheduler) alertIfFlagged(ctx context.Context, eventID string) {
	if s.alerter == nil {
		return
	}
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil || !ev.NeedsReview {
		return
	}
	msg := fmt.Sprintf("event %s exhausted %d oracle attempts and needs manual settlement", ev.ID, ev.OracleAttempts)
	if err := s.alerter.Notify(ctx, "event_needs_review", "Event needs review", msg); err != nil {
		s.logger.WarnContext(ctx, "settle: review alert failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}
