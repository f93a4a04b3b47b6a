package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventFilter narrows event list queries. Zero-valued fields are ignored.
type EventFilter struct {
	Status    EventStatus
	Kind      EventKind
	CreatorID string
}

// BetFilter narrows bet list queries. Zero-valued fields are ignored.
type BetFilter struct {
	EventID string
	UserID  string
	Status  BetStatus
}

// Ledger is the balance-holding gateway. Debit fails with
// ErrInsufficientFunds when the user's spendable balance is below amount;
// no partial debit ever occurs. When obtained from a Tx, debits and credits
// commit or roll back together with the event and bet writes of that
// transaction.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
}

// Tx is a transactional handle over the market store. All methods operate
// within one atomic transaction; LockEvent acquires the per-event exclusive
// lock that serializes concurrent mutations of the same event.
type Tx interface {
	Ledger

	InsertEvent(ctx context.Context, e Event) error

	// LockEvent loads the event row under an exclusive lock held until the
	// transaction ends. Competing transactions block; a wait beyond the
	// configured lock timeout returns ErrBusy.
	LockEvent(ctx context.Context, id string) (Event, error)

	// UpdateEvent persists pools, odds, counters, status, resolution fields
	// and review flags for a previously locked event.
	UpdateEvent(ctx context.Context, e Event) error

	InsertBet(ctx context.Context, b Bet) error

	// PendingBets returns all pending bets of the event, oldest first.
	PendingBets(ctx context.Context, eventID string) ([]Bet, error)

	// FinalizeBet moves a pending bet to its terminal status. Payout is
	// recorded only for won bets; pass decimal.Zero otherwise.
	FinalizeBet(ctx context.Context, betID string, status BetStatus, payout decimal.Decimal) error
}

// Store is the durable market store, owner of event and bet rows.
type Store interface {
	// InTx runs fn inside a single atomic transaction. If fn returns an
	// error the transaction rolls back and the error is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, f EventFilter, opts ListOpts) ([]Event, error)
	ListBets(ctx context.Context, f BetFilter, opts ListOpts) ([]Bet, error)

	// ListExpired returns active events whose deadline has passed and that
	// are not flagged for manual review, oldest deadline first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Event, error)

	// ListArchivable returns terminal events settled or cancelled before the
	// cutoff and not yet archived.
	ListArchivable(ctx context.Context, before time.Time, limit int) ([]Event, error)
	MarkArchived(ctx context.Context, eventID string, at time.Time) error

	// Balance reads a user's spendable balance from the ledger.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// SampleStore persists the odds time series. It is owned by the kline
// recorder and never touches event or bet state.
type SampleStore interface {
	// Upsert inserts the sample, or merges it into the existing bucket row:
	// high/low widen against the incoming high/low, close and pool/bet-count
	// fields take the incoming values, and open is preserved.
	Upsert(ctx context.Context, s OddsSample) error

	// LastClose returns the close of the most recent bucket starting before
	// the given time, to seed a new bucket's open. ok is false when the
	// event has no earlier sample at this interval.
	LastClose(ctx context.Context, eventID string, interval time.Duration, before time.Time) (yes, no decimal.Decimal, ok bool, err error)

	// Range returns samples in [from, to) in ascending bucket order, capped
	// at limit. A zero from/to means unbounded on that end; with no range at
	// all the most recent limit samples are returned, still ascending.
	Range(ctx context.Context, eventID string, interval time.Duration, from, to time.Time, limit int) ([]OddsSample, error)

	// DeleteByEvent removes all samples of an event (cold-storage pruning).
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
}
