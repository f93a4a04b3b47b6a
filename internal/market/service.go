// Package market implements the event/bet lifecycle engine: event creation
// and matching, atomic bet placement, and pari-mutuel settlement. All
// monetary mutations of one event are serialized through the store's
// per-event exclusive lock and committed in a single transaction together
// with the ledger debit or credit they accompany.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
	"github.com/oddsmith/poolmarket/internal/kline"
	"github.com/oddsmith/poolmarket/internal/odds"
)

// Config holds the lifecycle policy parameters.
type Config struct {
	// MaxOracleAttempts caps consecutive indeterminate oracle responses
	// before an event is flagged for manual review and the scheduler stops
	// retrying it.
	MaxOracleAttempts int
}

// Service is the transactional core of the market. One instance serves all
// events; per-event ordering is the store's responsibility.
type Service struct {
	store    domain.Store
	recorder *kline.Recorder
	registry domain.CoinRegistry
	oracle   domain.Oracle
	bcast    domain.Broadcaster
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the lifecycle service. Recorder and broadcaster are used
// best-effort after commits; registry validates token_launch targets at
// creation; oracle resolves automatic settlements.
func NewService(
	store domain.Store,
	recorder *kline.Recorder,
	registry domain.CoinRegistry,
	oracle domain.Oracle,
	bcast domain.Broadcaster,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.MaxOracleAttempts <= 0 {
		cfg.MaxOracleAttempts = 10
	}
	return &Service{
		store:    store,
		recorder: recorder,
		registry: registry,
		oracle:   oracle,
		bcast:    bcast,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "market")),
		now:      time.Now,
	}
}

// CreateEventParams are the caller-supplied inputs of CreateEvent.
type CreateEventParams struct {
	CreatorID string
	Side      domain.Side
	Kind      domain.EventKind

	// Token launch target.
	Contract string

	// Price target.
	TargetPrice    decimal.Decimal
	ReferenceAsset string

	Stake    decimal.Decimal
	Duration string // e.g. "30minutes", "5h", "2d"
}

// CreateEvent opens a new market: it debits the creator's stake, seeds the
// creator's side's pool with the full stake, and records the creator's bet
// at the just-computed odds. The event starts in pending_match and accepts
// only opposing bets until matched. Everything happens in one transaction;
// any failure rolls back the debit.
func (s *Service) CreateEvent(ctx context.Context, p CreateEventParams) (domain.Event, error) {
	if !p.Side.Valid() {
		return domain.Event{}, fmt.Errorf("%w: side must be yes or no", domain.ErrValidation)
	}
	if !p.Stake.IsPositive() {
		return domain.Event{}, fmt.Errorf("%w: stake must be positive", domain.ErrValidation)
	}

	dur, err := odds.ParseDuration(p.Duration)
	if err != nil {
		return domain.Event{}, err
	}

	if err := s.validateTarget(ctx, p); err != nil {
		return domain.Event{}, err
	}

	now := s.now().UTC()
	ev := domain.Event{
		ID:             uuid.New().String(),
		Kind:           p.Kind,
		Contract:       p.Contract,
		TargetPrice:    p.TargetPrice,
		ReferenceAsset: p.ReferenceAsset,
		CreatorID:      p.CreatorID,
		CreatorSide:    p.Side,
		Status:         domain.StatusPendingMatch,
		Deadline:       now.Add(dur),
		CreatedAt:      now,
		YesPool:        decimal.Zero,
		NoPool:         decimal.Zero,
	}
	if p.Side == domain.SideYes {
		ev.YesPool = p.Stake
		ev.TotalYesBets = 1
	} else {
		ev.NoPool = p.Stake
		ev.TotalNoBets = 1
	}
	ev.YesOdds, ev.NoOdds = odds.Quote(ev.YesPool, ev.NoPool)

	bet := domain.Bet{
		ID:              uuid.New().String(),
		EventID:         ev.ID,
		UserID:          p.CreatorID,
		Side:            p.Side,
		Amount:          p.Stake,
		OddsAtPlacement: ev.OddsFor(p.Side),
		Status:          domain.BetPending,
		CreatedAt:       now,
	}

	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.Debit(ctx, p.CreatorID, p.Stake); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		return tx.InsertBet(ctx, bet)
	})
	if err != nil {
		return domain.Event{}, err
	}

	s.logger.InfoContext(ctx, "event created",
		slog.String("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("creator", p.CreatorID),
		slog.String("side", string(p.Side)),
		slog.String("stake", p.Stake.String()),
		slog.Time("deadline", ev.Deadline),
	)

	s.recorder.Record(ctx, ev)
	s.bcast.BroadcastOdds(ctx, snapshot(ev, now))
	return ev, nil
}

// validateTarget checks the kind-specific resolution parameters.
func (s *Service) validateTarget(ctx context.Context, p CreateEventParams) error {
	switch p.Kind {
	case domain.KindTokenLaunch:
		if p.Contract == "" {
			return fmt.Errorf("%w: token_launch requires a contract", domain.ErrValidation)
		}
		known, err := s.registry.Exists(ctx, p.Contract)
		if err != nil {
			return fmt.Errorf("market: check coin registry: %w", err)
		}
		if !known {
			return fmt.Errorf("%w: unknown contract %s", domain.ErrValidation, p.Contract)
		}
	case domain.KindPriceTarget:
		if !p.TargetPrice.IsPositive() {
			return fmt.Errorf("%w: target price must be positive", domain.ErrValidation)
		}
		if p.ReferenceAsset == "" {
			return fmt.Errorf("%w: price_target requires a reference asset", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown event kind %q", domain.ErrValidation, p.Kind)
	}
	return nil
}

// PlaceBetParams are the caller-supplied inputs of PlaceBet.
type PlaceBetParams struct {
	UserID  string
	EventID string
	Side    domain.Side
	Amount  decimal.Decimal
}

// PlaceBet stakes amount on one side of an event. The event row is locked
// for the duration of the transaction, so two simultaneous bets on the same
// event serialize rather than overwrite each other's pool update. The bet's
// recorded odds are the side's quote after its own stake moved the pool.
func (s *Service) PlaceBet(ctx context.Context, p PlaceBetParams) (domain.Bet, error) {
	if !p.Side.Valid() {
		return domain.Bet{}, fmt.Errorf("%w: side must be yes or no", domain.ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return domain.Bet{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	now := s.now().UTC()
	var (
		bet     domain.Bet
		updated domain.Event
	)

	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		ev, err := tx.LockEvent(ctx, p.EventID)
		if err != nil {
			return err
		}

		if ev.Status.Terminal() {
			return domain.ErrEventClosed
		}
		// Reject at-or-after-deadline bets even before the settlement
		// scheduler has run, so no stake lands on a decided event.
		if ev.Expired(now) {
			return domain.ErrEventExpired
		}
		if ev.Status == domain.StatusPendingMatch && p.Side == ev.CreatorSide {
			return domain.ErrWrongSide
		}

		if err := tx.Debit(ctx, p.UserID, p.Amount); err != nil {
			return err
		}

		if p.Side == domain.SideYes {
			ev.YesPool = ev.YesPool.Add(p.Amount)
			ev.TotalYesBets++
		} else {
			ev.NoPool = ev.NoPool.Add(p.Amount)
			ev.TotalNoBets++
		}
		ev.YesOdds, ev.NoOdds = odds.Quote(ev.YesPool, ev.NoPool)

		// First opposing stake matches the market.
		if ev.Status == domain.StatusPendingMatch {
			ev.Status = domain.StatusActive
		}

		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}

		bet = domain.Bet{
			ID:              uuid.New().String(),
			EventID:         ev.ID,
			UserID:          p.UserID,
			Side:            p.Side,
			Amount:          p.Amount,
			OddsAtPlacement: ev.OddsFor(p.Side),
			Status:          domain.BetPending,
			CreatedAt:       now,
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			return err
		}

		updated = ev
		return nil
	})
	if err != nil {
		return domain.Bet{}, err
	}

	s.logger.InfoContext(ctx, "bet placed",
		slog.String("event_id", updated.ID),
		slog.String("user", p.UserID),
		slog.String("side", string(p.Side)),
		slog.String("amount", p.Amount.String()),
		slog.String("odds", bet.OddsAtPlacement.String()),
	)

	s.recorder.Record(ctx, updated)
	s.bcast.BroadcastOdds(ctx, snapshot(updated, now))
	s.bcast.BroadcastBet(ctx, domain.BetNotice{
		EventID: updated.ID,
		Side:    p.Side,
		Amount:  p.Amount,
		Odds:    bet.OddsAtPlacement,
		At:      now,
	})
	return bet, nil
}

// Settle resolves an event and distributes the combined pool pro-rata among
// the winning side's pending bets. When outcome is nil the oracle is
// consulted; an indeterminate answer aborts the attempt without state change
// beyond the attempt counter in the event row, and returns
// ErrOracleIndeterminate so the scheduler retries next tick.
//
// Settling an already terminal event returns ErrEventClosed and touches
// nothing: settlement is idempotent in effect.
func (s *Service) Settle(ctx context.Context, eventID string, outcome *bool) error {
	if outcome == nil {
		resolved, err := s.resolveViaOracle(ctx, eventID)
		if err != nil {
			return err
		}
		outcome = &resolved
	}

	now := s.now().UTC()
	var settled domain.Event

	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status.Terminal() {
			return domain.ErrEventClosed
		}

		winner := domain.SideNo
		if *outcome {
			winner = domain.SideYes
		}
		totalPool := ev.TotalPool()
		winnerPool := ev.PoolFor(winner)

		bets, err := tx.PendingBets(ctx, ev.ID)
		if err != nil {
			return err
		}

		if winnerPool.IsZero() {
			// Nothing ever landed on the winning side. Refund every stake:
			// the engine holds no house account to forfeit to.
			for _, b := range bets {
				if err := tx.Credit(ctx, b.UserID, b.Amount); err != nil {
					return err
				}
				if err := tx.FinalizeBet(ctx, b.ID, domain.BetRefunded, decimal.Zero); err != nil {
					return err
				}
			}
		} else {
			for _, b := range bets {
				if b.Side != winner {
					if err := tx.FinalizeBet(ctx, b.ID, domain.BetLost, decimal.Zero); err != nil {
						return err
					}
					continue
				}
				// Pro-rata share of the combined pool, truncated to cents so
				// the sum of payouts never exceeds the pool.
				payout := b.Amount.Mul(totalPool).Div(winnerPool).Truncate(2)
				if err := tx.Credit(ctx, b.UserID, payout); err != nil {
					return err
				}
				if err := tx.FinalizeBet(ctx, b.ID, domain.BetWon, payout); err != nil {
					return err
				}
			}
		}

		ev.Status = domain.StatusSettled
		ev.ResolvedOutcome = outcome
		ev.SettledAt = &now
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		settled = ev
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "event settled",
		slog.String("event_id", settled.ID),
		slog.Bool("outcome", *outcome),
		slog.String("total_pool", settled.TotalPool().String()),
	)

	s.bcast.BroadcastOdds(ctx, snapshot(settled, now))
	return nil
}

// resolveViaOracle asks the oracle for the event's outcome. Indeterminate
// answers bump the event's attempt counter under the event lock; hitting the
// configured cap flags the event for manual review.
func (s *Service) resolveViaOracle(ctx context.Context, eventID string) (bool, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	if ev.Status.Terminal() {
		return false, domain.ErrEventClosed
	}

	res, err := s.oracle.Resolve(ctx, ev)
	if err != nil {
		return false, fmt.Errorf("market: oracle resolve %s: %w", eventID, err)
	}
	if res.State == domain.ResolutionResolved {
		return res.Outcome, nil
	}

	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return domain.ErrEventClosed
		}
		locked.OracleAttempts++
		if locked.OracleAttempts >= s.cfg.MaxOracleAttempts {
			locked.NeedsReview = true
		}
		return tx.UpdateEvent(ctx, locked)
	})
	if err != nil {
		return false, err
	}

	s.logger.WarnContext(ctx, "oracle indeterminate, settlement deferred",
		slog.String("event_id", eventID),
		slog.Int("attempts", ev.OracleAttempts+1),
	)
	return false, domain.ErrOracleIndeterminate
}

// Cancel terminates an event administratively, refunding every pending bet's
// original amount. Event and bets reach their terminal states in one
// transaction.
func (s *Service) Cancel(ctx context.Context, eventID string) error {
	now := s.now().UTC()
	var cancelled domain.Event

	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		ev, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status.Terminal() {
			return domain.ErrEventClosed
		}

		bets, err := tx.PendingBets(ctx, ev.ID)
		if err != nil {
			return err
		}
		for _, b := range bets {
			if err := tx.Credit(ctx, b.UserID, b.Amount); err != nil {
				return err
			}
			if err := tx.FinalizeBet(ctx, b.ID, domain.BetRefunded, decimal.Zero); err != nil {
				return err
			}
		}

		ev.Status = domain.StatusCancelled
		ev.SettledAt = &now
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		cancelled = ev
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "event cancelled",
		slog.String("event_id", cancelled.ID),
		slog.String("refunded_pool", cancelled.TotalPool().String()),
	)

	s.bcast.BroadcastOdds(ctx, snapshot(cancelled, now))
	return nil
}

// GetEvent returns a single event.
func (s *Service) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// ListEvents returns events matching the filter.
func (s *Service) ListEvents(ctx context.Context, f domain.EventFilter, opts domain.ListOpts) ([]domain.Event, error) {
	return s.store.ListEvents(ctx, f, opts)
}

// ListBets returns bets matching the filter.
func (s *Service) ListBets(ctx context.Context, f domain.BetFilter, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.store.ListBets(ctx, f, opts)
}

// OddsHistory returns the event's odds klines for one interval.
func (s *Service) OddsHistory(ctx context.Context, eventID string, interval time.Duration, from, to time.Time, limit int) ([]domain.OddsSample, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.recorder.History(ctx, eventID, interval, from, to, limit)
}

// Balance reads a user's spendable balance.
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.store.Balance(ctx, userID)
}

// snapshot builds the broadcast view of an event.
func snapshot(e domain.Event, at time.Time) domain.OddsSnapshot {
	return domain.OddsSnapshot{
		EventID:  e.ID,
		Status:   e.Status,
		YesOdds:  e.YesOdds,
		NoOdds:   e.NoOdds,
		YesPool:  e.YesPool,
		NoPool:   e.NoPool,
		BetCount: e.TotalYesBets + e.TotalNoBets,
		At:       at,
	}
}

// IsRetryable reports whether the caller should retry the failed operation.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrBusy)
}
