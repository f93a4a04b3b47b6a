package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OddsSnapshot is the current odds/pool view of one event, pushed to live
// subscribers whenever a pool changes or the event reaches a terminal state.
type OddsSnapshot struct {
	EventID  string          `json:"event_id"`
	Status   EventStatus     `json:"status"`
	YesOdds  decimal.Decimal `json:"yes_odds"`
	NoOdds   decimal.Decimal `json:"no_odds"`
	YesPool  decimal.Decimal `json:"yes_pool"`
	NoPool   decimal.Decimal `json:"no_pool"`
	BetCount int             `json:"bet_count"`
	At       time.Time       `json:"at"`
}

// BetNotice announces a single placed bet to an event's subscribers.
type BetNotice struct {
	EventID string          `json:"event_id"`
	Side    Side            `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
	Odds    decimal.Decimal `json:"odds"`
	At      time.Time       `json:"at"`
}

// Broadcaster pushes live updates to an event's subscribers. Both methods
// are fire-and-forget: they never block the calling transaction and report
// failures only through logs.
type Broadcaster interface {
	BroadcastOdds(ctx context.Context, snap OddsSnapshot)
	BroadcastBet(ctx context.Context, notice BetNotice)
}

// BusMessage is one message received from a SignalBus subscription, carrying
// the concrete channel it arrived on so pattern subscribers can route it.
type BusMessage struct {
	Channel string
	Payload []byte
}

// SignalBus is a process-external publish/subscribe fabric (Redis pub/sub in
// production) bridging the market service to websocket fan-out.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of messages for the given channel name,
	// which may contain glob wildcards. The returned channel closes when ctx
	// is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan BusMessage, error)
}
