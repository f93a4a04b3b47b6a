package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// marketTx implements domain.Tx on a live pgx transaction.
type marketTx struct {
	tx          pgx.Tx
	lockTimeout time.Duration
}

var _ domain.Tx = (*marketTx)(nil)

// lockTimeoutSQLState is raised when a lock wait exceeds lock_timeout.
const lockTimeoutSQLState = "55P03"

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == lockTimeoutSQLState
}

// LockEvent loads the event row under FOR UPDATE. The lock is held until the
// transaction ends; waiting on a competing holder beyond lockTimeout returns
// domain.ErrBusy.
func (t *marketTx) LockEvent(ctx context.Context, id string) (domain.Event, error) {
	// lock_timeout does not accept bind parameters; the value is a trusted
	// config duration.
	setTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
	if _, err := t.tx.Exec(ctx, setTimeout); err != nil {
		return domain.Event{}, fmt.Errorf("postgres: set lock_timeout: %w", err)
	}

	row := t.tx.QueryRow(ctx,
		`SELECT `+eventCols+` FROM events WHERE id = $1 FOR UPDATE`, id)
	e, err := scanEvent(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.Event{}, domain.ErrNotFound
		case isLockTimeout(err):
			return domain.Event{}, fmt.Errorf("postgres: event %s locked: %w", id, domain.ErrBusy)
		}
		return domain.Event{}, fmt.Errorf("postgres: lock event %s: %w", id, err)
	}
	return e, nil
}

// InsertEvent writes a new event row.
func (t *marketTx) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (
			id, kind, contract, target_price, reference_asset,
			creator_id, creator_side, yes_pool, no_pool, yes_odds, no_odds,
			total_yes_bets, total_no_bets, status, deadline, resolved_outcome,
			oracle_attempts, needs_review, created_at, settled_at, archived_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)`,
		e.ID, string(e.Kind), e.Contract, e.TargetPrice, e.ReferenceAsset,
		e.CreatorID, string(e.CreatorSide), e.YesPool, e.NoPool, e.YesOdds, e.NoOdds,
		e.TotalYesBets, e.TotalNoBets, string(e.Status), e.Deadline, e.ResolvedOutcome,
		e.OracleAttempts, e.NeedsReview, e.CreatedAt, e.SettledAt, e.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEvent persists the mutable fields of a previously locked event.
func (t *marketTx) UpdateEvent(ctx context.Context, e domain.Event) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events SET
			yes_pool = $2, no_pool = $3, yes_odds = $4, no_odds = $5,
			total_yes_bets = $6, total_no_bets = $7, status = $8,
			resolved_outcome = $9, oracle_attempts = $10, needs_review = $11,
			settled_at = $12
		 WHERE id = $1`,
		e.ID, e.YesPool, e.NoPool, e.YesOdds, e.NoOdds,
		e.TotalYesBets, e.TotalNoBets, string(e.Status),
		e.ResolvedOutcome, e.OracleAttempts, e.NeedsReview,
		e.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update event %s: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// InsertBet writes a new bet row.
func (t *marketTx) InsertBet(ctx context.Context, b domain.Bet) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bets (
			id, event_id, user_id, side, amount, odds_at_placement,
			status, payout, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.EventID, b.UserID, string(b.Side), b.Amount, b.OddsAtPlacement,
		string(b.Status), b.Payout, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %s: %w", b.ID, err)
	}
	return nil
}

// PendingBets returns the event's pending bets, oldest first.
func (t *marketTx) PendingBets(ctx context.Context, eventID string) ([]domain.Bet, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+betCols+` FROM bets
		 WHERE event_id = $1 AND status = $2
		 ORDER BY created_at ASC, id ASC`,
		eventID, string(domain.BetPending))
	if err != nil {
		return nil, fmt.Errorf("postgres: pending bets for %s: %w", eventID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pending bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: pending bets rows: %w", err)
	}
	return bets, nil
}

// FinalizeBet moves a pending bet to a terminal status.
func (t *marketTx) FinalizeBet(ctx context.Context, betID string, status domain.BetStatus, payout decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bets SET status = $2, payout = $3
		 WHERE id = $1 AND status = $4`,
		betID, string(status), payout, string(domain.BetPending))
	if err != nil {
		return fmt.Errorf("postgres: finalize bet %s: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Debit withdraws amount from the user's balance; it fails with
// domain.ErrInsufficientFunds when the balance cannot cover it. The update is
// conditional so no partial debit can occur.
func (t *marketTx) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE balances
		 SET balance = balance - $2, updated_at = NOW()
		 WHERE user_id = $1 AND balance >= $2`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		// Missing row and insufficient row look the same: not enough funds.
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Credit deposits amount into the user's balance, creating the row if the
// user has never held funds.
func (t *marketTx) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO balances (user_id, balance, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			balance = balances.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", userID, err)
	}
	return nil
}
