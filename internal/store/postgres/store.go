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

// Store implements domain.Store on a pgx connection pool. Every mutation of
// event state runs through InTx, where LockEvent takes a row lock bounded by
// lockTimeout.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ domain.Store = (*Store)(nil)

// NewStore creates a Store. lockTimeout bounds how long a transaction waits
// on a contended event row before giving up with domain.ErrBusy.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

// InTx runs fn inside a single transaction. fn's error rolls the transaction
// back and is returned unchanged so callers can match sentinels with
// errors.Is.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&marketTx{tx: tx, lockTimeout: s.lockTimeout}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

const eventCols = `id, kind, contract, target_price, reference_asset,
	creator_id, creator_side, yes_pool, no_pool, yes_odds, no_odds,
	total_yes_bets, total_no_bets, status, deadline, resolved_outcome,
	oracle_attempts, needs_review, created_at, settled_at, archived_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		e            domain.Event
		kind, status string
		side         string
	)
	err := row.Scan(
		&e.ID, &kind, &e.Contract, &e.TargetPrice, &e.ReferenceAsset,
		&e.CreatorID, &side, &e.YesPool, &e.NoPool, &e.YesOdds, &e.NoOdds,
		&e.TotalYesBets, &e.TotalNoBets, &status, &e.Deadline, &e.ResolvedOutcome,
		&e.OracleAttempts, &e.NeedsReview, &e.CreatedAt, &e.SettledAt, &e.ArchivedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Kind = domain.EventKind(kind)
	e.CreatorSide = domain.Side(side)
	e.Status = domain.EventStatus(status)
	return e, nil
}

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("postgres: get event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, f domain.EventFilter, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE TRUE`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(f.Kind))
		argIdx++
	}
	if f.CreatorID != "" {
		query += fmt.Sprintf(" AND creator_id = $%d", argIdx)
		args = append(args, f.CreatorID)
		argIdx++
	}
	query, args = appendListOpts(query, args, argIdx, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

const betCols = `id, event_id, user_id, side, amount, odds_at_placement,
	status, payout, created_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b            domain.Bet
		side, status string
	)
	err := row.Scan(
		&b.ID, &b.EventID, &b.UserID, &side, &b.Amount, &b.OddsAtPlacement,
		&status, &b.Payout, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Side = domain.Side(side)
	b.Status = domain.BetStatus(status)
	return b, nil
}

// ListBets returns bets matching the filter, newest first.
func (s *Store) ListBets(ctx context.Context, f domain.BetFilter, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE TRUE`
	args := []any{}
	argIdx := 1

	if f.EventID != "" {
		query += fmt.Sprintf(" AND event_id = $%d", argIdx)
		args = append(args, f.EventID)
		argIdx++
	}
	if f.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, f.UserID)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	query, args = appendListOpts(query, args, argIdx, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// appendListOpts attaches time filters, ordering and pagination shared by the
// list queries. Ordering is newest first.
func appendListOpts(query string, args []any, argIdx int, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// ListExpired returns active events whose deadline has passed and that are
// not flagged for review, oldest deadline first.
func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events
		 WHERE status = $1 AND deadline <= $2 AND NOT needs_review
		 ORDER BY deadline ASC
		 LIMIT $3`,
		string(domain.StatusActive), now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan expired event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list expired rows: %w", err)
	}
	return events, nil
}

// ListArchivable returns terminal events settled or cancelled before the
// cutoff and not yet archived, oldest first.
func (s *Store) ListArchivable(ctx context.Context, before time.Time, limit int) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events
		 WHERE status IN ($1, $2)
		   AND archived_at IS NULL
		   AND COALESCE(settled_at, created_at) < $3
		 ORDER BY COALESCE(settled_at, created_at) ASC
		 LIMIT $4`,
		string(domain.StatusSettled), string(domain.StatusCancelled), before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list archivable events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan archivable event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list archivable rows: %w", err)
	}
	return events, nil
}

// MarkArchived stamps an event as exported to cold storage.
func (s *Store) MarkArchived(ctx context.Context, eventID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET archived_at = $2 WHERE id = $1`, eventID, at)
	if err != nil {
		return fmt.Errorf("postgres: mark event %s archived: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Balance reads a user's spendable balance. Unknown users have zero balance.
func (s *Store) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM balances WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres: balance for %s: %w", userID, err)
	}
	return balance, nil
}
