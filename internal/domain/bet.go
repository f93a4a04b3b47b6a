package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus is the lifecycle state of a single stake. A bet leaves pending
// exactly once, when its parent event settles or is cancelled.
type BetStatus string

const (
	BetPending  BetStatus = "pending"
	BetWon      BetStatus = "won"
	BetLost     BetStatus = "lost"
	BetRefunded BetStatus = "refunded"
)

// Bet is a single stake on one side of an event.
type Bet struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Side    Side   `json:"side"`

	Amount decimal.Decimal `json:"amount"`

	// OddsAtPlacement is the side's quoted odds immediately after this bet's
	// stake was added to the pool. Immutable once committed.
	OddsAtPlacement decimal.Decimal `json:"odds_at_placement"`

	Status BetStatus `json:"status"`

	// Payout is set only when the bet transitions to won.
	Payout decimal.Decimal `json:"payout"`

	CreatedAt time.Time `json:"created_at"`
}
