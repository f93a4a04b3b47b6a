package domain

import "errors"

var (
	// ErrNotFound indicates the referenced event, bet, or user balance row
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input: bad duration, unknown
	// resolution target, invalid side, or a non-positive amount.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds indicates the ledger refused a debit. No state
	// changes when this is returned.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEventClosed indicates the event is already settled or cancelled.
	ErrEventClosed = errors.New("event closed")

	// ErrEventExpired indicates the event's deadline has passed and no new
	// bets are accepted, even if settlement has not run yet.
	ErrEventExpired = errors.New("event expired")

	// ErrWrongSide indicates a bet on the creator's side of a still
	// unmatched market; only the opposing side may bet until the market
	// leaves pending_match.
	ErrWrongSide = errors.New("currently only the opposing side may bet")

	// ErrOracleIndeterminate indicates the oracle could not resolve the
	// outcome; the settlement attempt was aborted and will be retried.
	ErrOracleIndeterminate = errors.New("oracle indeterminate")

	// ErrBusy indicates a lock wait exceeded the configured timeout. The
	// operation changed nothing and may be retried.
	ErrBusy = errors.New("event busy, retry")
)
