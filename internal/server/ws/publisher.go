package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// Message types carried in the envelope's "type" field.
const (
	TypeOdds = "odds"
	TypeBet  = "bet"
)

// Envelope wraps every payload pushed to subscribers so clients can
// dispatch on type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher implements domain.Broadcaster by publishing JSON envelopes onto
// the signal bus, one channel per event. Publishing is fire-and-forget:
// failures are logged and never surface to the market transaction.
type Publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

var _ domain.Broadcaster = (*Publisher)(nil)

// NewPublisher creates a Publisher on the given bus.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

// BroadcastOdds publishes an odds/pool snapshot to the event's channel.
func (p *Publisher) BroadcastOdds(ctx context.Context, snap domain.OddsSnapshot) {
	p.publish(ctx, snap.EventID, TypeOdds, snap)
}

// BroadcastBet publishes a bet-placed notice to the event's channel.
func (p *Publisher) BroadcastBet(ctx context.Context, notice domain.BetNotice) {
	p.publish(ctx, notice.EventID, TypeBet, notice)
}

func (p *Publisher) publish(ctx context.Context, eventID, msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("ws: marshal broadcast payload",
			slog.String("event_id", eventID),
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		p.logger.Warn("ws: marshal broadcast envelope",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, EventChannel(eventID), data); err != nil {
		p.logger.Warn("ws: publish broadcast",
			slog.String("event_id", eventID),
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
	}
}
