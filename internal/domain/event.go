package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is one of the two outcomes a stake can back.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is a recognized side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// EventKind selects how an event is resolved at its deadline.
type EventKind string

const (
	// KindTokenLaunch resolves on whether the referenced token contract has
	// launched by the deadline.
	KindTokenLaunch EventKind = "token_launch"
	// KindPriceTarget resolves on whether the reference asset trades at or
	// above the target price at the deadline.
	KindPriceTarget EventKind = "price_target"
)

// EventStatus is the lifecycle state of an event.
//
// Transitions: pending_match -> active -> settled | cancelled.
// A pending_match event may also be cancelled directly.
type EventStatus string

const (
	StatusPendingMatch EventStatus = "pending_match"
	StatusActive       EventStatus = "active"
	StatusSettled      EventStatus = "settled"
	StatusCancelled    EventStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s EventStatus) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// Event is a single binary prediction market. All stakes on one side are
// pooled; at settlement the combined pool is redistributed pro-rata among
// the winning side's bets.
type Event struct {
	ID   string    `json:"id"`
	Kind EventKind `json:"kind"`

	// Kind-specific resolution parameters. Contract is set for token_launch
	// events; TargetPrice and ReferenceAsset for price_target events.
	Contract       string          `json:"contract,omitempty"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	ReferenceAsset string          `json:"reference_asset,omitempty"`

	CreatorID   string `json:"creator_id"`
	CreatorSide Side   `json:"creator_side"`

	YesPool decimal.Decimal `json:"yes_pool"`
	NoPool  decimal.Decimal `json:"no_pool"`
	YesOdds decimal.Decimal `json:"yes_odds"`
	NoOdds  decimal.Decimal `json:"no_odds"`

	TotalYesBets int `json:"total_yes_bets"`
	TotalNoBets  int `json:"total_no_bets"`

	Status   EventStatus `json:"status"`
	Deadline time.Time   `json:"deadline"`

	// ResolvedOutcome is set exactly once, when the event settles.
	ResolvedOutcome *bool `json:"resolved_outcome,omitempty"`

	// OracleAttempts counts consecutive indeterminate oracle responses.
	// Once it reaches the configured cap, NeedsReview is set and the
	// settlement scheduler stops retrying the event.
	OracleAttempts int  `json:"oracle_attempts"`
	NeedsReview    bool `json:"needs_review"`

	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// TotalPool returns yesPool + noPool.
func (e Event) TotalPool() decimal.Decimal {
	return e.YesPool.Add(e.NoPool)
}

// PoolFor returns the pool backing the given side.
func (e Event) PoolFor(side Side) decimal.Decimal {
	if side == SideYes {
		return e.YesPool
	}
	return e.NoPool
}

// OddsFor returns the quoted odds for the given side.
func (e Event) OddsFor(side Side) decimal.Decimal {
	if side == SideYes {
		return e.YesOdds
	}
	return e.NoOdds
}

// Expired reports whether the deadline has passed at the given instant.
// A bet arriving exactly at the deadline is already too late.
func (e Event) Expired(now time.Time) bool {
	return !now.Before(e.Deadline)
}
