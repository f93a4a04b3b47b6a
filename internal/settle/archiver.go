package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// ArchiveSource is the slice of domain.Store the archiver reads from.
type ArchiveSource interface {
	ListArchivable(ctx context.Context, before time.Time, limit int) ([]domain.Event, error)
	MarkArchived(ctx context.Context, eventID string, at time.Time) error
	ListBets(ctx context.Context, f domain.BetFilter, opts domain.ListOpts) ([]domain.Bet, error)
}

// ArchiverConfig controls retention and cadence of cold-storage exports.
type ArchiverConfig struct {
	Retention time.Duration   // keep finished events hot for this long, default 30 days
	Interval  time.Duration   // run period, default 6h
	BatchSize int             // max events per run, default 200
	Intervals []time.Duration // kline granularities to export
}

func (c *ArchiverConfig) applyDefaults() {
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
}

// Archiver exports events that have been settled or cancelled for longer
// than the retention window — together with their bets and odds history —
// to blob cold storage, then prunes their odds samples from the hot store.
type Archiver struct {
	store   ArchiveSource
	samples domain.SampleStore
	blob    domain.BlobWriter
	cfg     ArchiverConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(store ArchiveSource, samples domain.SampleStore, blob domain.BlobWriter, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	cfg.applyDefaults()
	return &Archiver{
		store:   store,
		samples: samples,
		blob:    blob,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "archive")),
		now:     time.Now,
	}
}

// Run executes the archival loop until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver starting",
		slog.Duration("interval", a.cfg.Interval),
		slog.Duration("retention", a.cfg.Retention),
	)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if n, err := a.RunOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archive run complete", slog.Int("events", n))
			}
		}
	}
}

// export is the cold-storage document written per event.
type export struct {
	Event   domain.Event                   `json:"event"`
	Bets    []domain.Bet                   `json:"bets"`
	Samples map[string][]domain.OddsSample `json:"samples"` // keyed by interval, e.g. "1m0s"
}

// RunOnce archives one batch of eligible events and returns how many were
// exported.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	cutoff := a.now().UTC().Add(-a.cfg.Retention)
	events, err := a.store.ListArchivable(ctx, cutoff, a.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("archive: list archivable: %w", err)
	}

	archived := 0
	for _, ev := range events {
		if err := a.archiveEvent(ctx, ev); err != nil {
			// Leave the event for the next run; later events are unaffected.
			a.logger.WarnContext(ctx, "archive: event export failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
	}
	return archived, nil
}

func (a *Archiver) archiveEvent(ctx context.Context, ev domain.Event) error {
	bets, err := a.store.ListBets(ctx, domain.BetFilter{EventID: ev.ID}, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("list bets: %w", err)
	}

	doc := export{Event: ev, Bets: bets, Samples: make(map[string][]domain.OddsSample)}
	for _, interval := range a.cfg.Intervals {
		samples, err := a.samples.Range(ctx, ev.ID, interval, time.Time{}, time.Time{}, 0)
		if err != nil {
			return fmt.Errorf("load samples %s: %w", interval, err)
		}
		doc.Samples[interval.String()] = samples
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	settledAt := ev.CreatedAt
	if ev.SettledAt != nil {
		settledAt = *ev.SettledAt
	}
	key := fmt.Sprintf("events/%s/%s.json", settledAt.UTC().Format("2006/01/02"), ev.ID)
	if err := a.blob.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	now := a.now().UTC()
	if err := a.store.MarkArchived(ctx, ev.ID, now); err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	if _, err := a.samples.DeleteByEvent(ctx, ev.ID); err != nil {
		// The export already landed; leftover samples only cost space.
		a.logger.WarnContext(ctx, "archive: sample prune failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
