package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ResolutionState classifies an oracle answer.
type ResolutionState string

const (
	// ResolutionResolved means the oracle produced a definite outcome.
	ResolutionResolved ResolutionState = "resolved"
	// ResolutionIndeterminate means the oracle could not decide yet; the
	// settlement attempt should be retried later.
	ResolutionIndeterminate ResolutionState = "indeterminate"
)

// Resolution is the oracle's answer for one event.
type Resolution struct {
	State ResolutionState

	// Outcome is meaningful only when State is ResolutionResolved.
	Outcome bool

	// Price is the observed price for price_target events, recorded for
	// logging; zero for token_launch events.
	Price decimal.Decimal
}

// Oracle resolves an event's real-world condition at settlement time.
type Oracle interface {
	Resolve(ctx context.Context, e Event) (Resolution, error)
}

// CoinRegistry answers whether a token contract is a known, active coin.
// Used to validate token_launch resolution targets at event creation.
type CoinRegistry interface {
	Exists(ctx context.Context, contract string) (bool, error)
}
