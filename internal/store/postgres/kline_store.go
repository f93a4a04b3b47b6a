package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// SampleStore implements domain.SampleStore over the odds_samples table.
// Bucket merging happens in SQL (GREATEST/LEAST on conflict) so concurrent
// recorders never lose an extreme.
type SampleStore struct {
	pool *pgxpool.Pool
}

var _ domain.SampleStore = (*SampleStore)(nil)

// NewSampleStore creates a SampleStore backed by the given pool.
func NewSampleStore(pool *pgxpool.Pool) *SampleStore {
	return &SampleStore{pool: pool}
}

// Upsert inserts the sample or merges it into the existing bucket row. Open
// is preserved from the first insert; high/low widen; close, pools and bet
// count take the incoming values.
func (s *SampleStore) Upsert(ctx context.Context, sample domain.OddsSample) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO odds_samples (
			event_id, interval_seconds, bucket_start,
			open_yes, high_yes, low_yes, close_yes,
			open_no, high_no, low_no, close_no,
			yes_pool, no_pool, bet_count
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (event_id, interval_seconds, bucket_start) DO UPDATE SET
			high_yes  = GREATEST(odds_samples.high_yes, EXCLUDED.high_yes),
			low_yes   = LEAST(odds_samples.low_yes, EXCLUDED.low_yes),
			close_yes = EXCLUDED.close_yes,
			high_no   = GREATEST(odds_samples.high_no, EXCLUDED.high_no),
			low_no    = LEAST(odds_samples.low_no, EXCLUDED.low_no),
			close_no  = EXCLUDED.close_no,
			yes_pool  = EXCLUDED.yes_pool,
			no_pool   = EXCLUDED.no_pool,
			bet_count = EXCLUDED.bet_count`,
		sample.EventID, intervalSeconds(sample.Interval), sample.BucketStart,
		sample.OpenYes, sample.HighYes, sample.LowYes, sample.CloseYes,
		sample.OpenNo, sample.HighNo, sample.LowNo, sample.CloseNo,
		sample.YesPool, sample.NoPool, sample.BetCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert odds sample %s/%s: %w",
			sample.EventID, sample.Interval, err)
	}
	return nil
}

// LastClose returns the close of the most recent bucket starting before the
// given time.
func (s *SampleStore) LastClose(ctx context.Context, eventID string, interval time.Duration, before time.Time) (yes, no decimal.Decimal, ok bool, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT close_yes, close_no FROM odds_samples
		 WHERE event_id = $1 AND interval_seconds = $2 AND bucket_start < $3
		 ORDER BY bucket_start DESC
		 LIMIT 1`,
		eventID, intervalSeconds(interval), before).Scan(&yes, &no)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, false, nil
		}
		return decimal.Zero, decimal.Zero, false,
			fmt.Errorf("postgres: last close for %s/%s: %w", eventID, interval, err)
	}
	return yes, no, true, nil
}

const sampleCols = `event_id, interval_seconds, bucket_start,
	open_yes, high_yes, low_yes, close_yes,
	open_no, high_no, low_no, close_no,
	yes_pool, no_pool, bet_count`

// Range returns samples in [from, to) ascending by bucket, capped at limit.
// With zero bounds on both ends the most recent limit buckets are returned,
// still ascending.
func (s *SampleStore) Range(ctx context.Context, eventID string, interval time.Duration, from, to time.Time, limit int) ([]domain.OddsSample, error) {
	if limit <= 0 {
		limit = 500
	}

	var (
		query string
		args  []any
	)
	if from.IsZero() && to.IsZero() {
		// Latest buckets, re-sorted ascending for the caller.
		query = `SELECT ` + sampleCols + ` FROM (
			SELECT ` + sampleCols + ` FROM odds_samples
			WHERE event_id = $1 AND interval_seconds = $2
			ORDER BY bucket_start DESC
			LIMIT $3
		) latest ORDER BY bucket_start ASC`
		args = []any{eventID, intervalSeconds(interval), limit}
	} else {
		query = `SELECT ` + sampleCols + ` FROM odds_samples
			WHERE event_id = $1 AND interval_seconds = $2`
		args = []any{eventID, intervalSeconds(interval)}
		argIdx := 3
		if !from.IsZero() {
			query += fmt.Sprintf(" AND bucket_start >= $%d", argIdx)
			args = append(args, from)
			argIdx++
		}
		if !to.IsZero() {
			query += fmt.Sprintf(" AND bucket_start < $%d", argIdx)
			args = append(args, to)
			argIdx++
		}
		query += fmt.Sprintf(" ORDER BY bucket_start ASC LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: range odds samples %s/%s: %w", eventID, interval, err)
	}
	defer rows.Close()

	var samples []domain.OddsSample
	for rows.Next() {
		var (
			sm      domain.OddsSample
			seconds int64
		)
		if err := rows.Scan(
			&sm.EventID, &seconds, &sm.BucketStart,
			&sm.OpenYes, &sm.HighYes, &sm.LowYes, &sm.CloseYes,
			&sm.OpenNo, &sm.HighNo, &sm.LowNo, &sm.CloseNo,
			&sm.YesPool, &sm.NoPool, &sm.BetCount,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan odds sample: %w", err)
		}
		sm.Interval = time.Duration(seconds) * time.Second
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: range odds samples rows: %w", err)
	}
	return samples, nil
}

// DeleteByEvent removes all samples of an event across every interval.
func (s *SampleStore) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM odds_samples WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete odds samples for %s: %w", eventID, err)
	}
	return tag.RowsAffected(), nil
}

func intervalSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
