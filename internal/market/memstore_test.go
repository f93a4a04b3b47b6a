package market

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// memStore is an in-memory domain.Store used by the service tests. It mimics
// the production store's semantics: a per-event mutex stands in for the row
// lock, and every InTx stages its writes and applies them only when fn
// succeeds, so failed operations leave no trace.
type memStore struct {
	mu       sync.Mutex
	events   map[string]domain.Event
	bets     map[string]domain.Bet
	betOrder []string
	balances map[string]decimal.Decimal
	locks    map[string]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		events:   make(map[string]domain.Event),
		bets:     make(map[string]domain.Bet),
		balances: make(map[string]decimal.Decimal),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *memStore) setBalance(userID string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = amount
}

func (m *memStore) eventLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *memStore) InTx(_ context.Context, fn func(tx domain.Tx) error) error {
	tx := &memTx{
		store:    m,
		events:   make(map[string]domain.Event),
		bets:     make(map[string]domain.Bet),
		balances: make(map[string]decimal.Decimal),
	}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *memStore) GetEvent(_ context.Context, id string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return ev, nil
}

func (m *memStore) ListEvents(_ context.Context, f domain.EventFilter, opts domain.ListOpts) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.events {
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		if f.CreatorID != "" && ev.CreatorID != f.CreatorID {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (m *memStore) ListBets(_ context.Context, f domain.BetFilter, opts domain.ListOpts) ([]domain.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bet
	for _, id := range m.betOrder {
		b := m.bets[id]
		if f.EventID != "" && b.EventID != f.EventID {
			continue
		}
		if f.UserID != "" && b.UserID != f.UserID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	return paginate(out, opts), nil
}

func (m *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Status == domain.StatusActive && !ev.Deadline.After(now) && !ev.NeedsReview {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListArchivable(_ context.Context, before time.Time, limit int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Status.Terminal() && ev.ArchivedAt == nil && ev.SettledAt != nil && ev.SettledAt.Before(before) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.Before(*out[j].SettledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkArchived(_ context.Context, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	ev.ArchivedAt = &at
	m.events[eventID] = ev
	return nil
}

func (m *memStore) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return decimal.Decimal{}, domain.ErrNotFound
	}
	return bal, nil
}

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && len(in) > opts.Limit {
		in = in[:opts.Limit]
	}
	return in
}

// memTx stages writes until commit. LockEvent takes the event's mutex and
// holds it until the transaction finishes, exactly like FOR UPDATE.
type memTx struct {
	store    *memStore
	events   map[string]domain.Event
	bets     map[string]domain.Bet
	betIDs   []string
	balances map[string]decimal.Decimal
	held     []*sync.Mutex
}

func (t *memTx) releaseLocks() {
	for _, l := range t.held {
		l.Unlock()
	}
	t.held = nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, ev := range t.events {
		t.store.events[id] = ev
	}
	for _, id := range t.betIDs {
		if _, exists := t.store.bets[id]; !exists {
			t.store.betOrder = append(t.store.betOrder, id)
		}
	}
	for id, b := range t.bets {
		if _, exists := t.store.bets[id]; !exists {
			// finalized bets staged without a prior insert in this tx
			found := false
			for _, oid := range t.store.betOrder {
				if oid == id {
					found = true
					break
				}
			}
			if !found {
				t.store.betOrder = append(t.store.betOrder, id)
			}
		}
		t.store.bets[id] = b
	}
	for id, bal := range t.balances {
		t.store.balances[id] = bal
	}
}

func (t *memTx) balance(userID string) decimal.Decimal {
	if bal, ok := t.balances[userID]; ok {
		return bal
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.balances[userID]
}

func (t *memTx) Debit(_ context.Context, userID string, amount decimal.Decimal) error {
	bal := t.balance(userID)
	if bal.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	t.balances[userID] = bal.Sub(amount)
	return nil
}

func (t *memTx) Credit(_ context.Context, userID string, amount decimal.Decimal) error {
	t.balances[userID] = t.balance(userID).Add(amount)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, e domain.Event) error {
	t.events[e.ID] = e
	return nil
}

func (t *memTx) LockEvent(_ context.Context, id string) (domain.Event, error) {
	t.store.mu.Lock()
	_, exists := t.store.events[id]
	t.store.mu.Unlock()
	if _, staged := t.events[id]; !exists && !staged {
		return domain.Event{}, domain.ErrNotFound
	}

	l := t.store.eventLock(id)
	l.Lock()
	t.held = append(t.held, l)

	if ev, ok := t.events[id]; ok {
		return ev, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.events[id], nil
}

func (t *memTx) UpdateEvent(_ context.Context, e domain.Event) error {
	t.events[e.ID] = e
	return nil
}

func (t *memTx) InsertBet(_ context.Context, b domain.Bet) error {
	t.bets[b.ID] = b
	t.betIDs = append(t.betIDs, b.ID)
	return nil
}

func (t *memTx) PendingBets(_ context.Context, eventID string) ([]domain.Bet, error) {
	t.store.mu.Lock()
	var out []domain.Bet
	for _, id := range t.store.betOrder {
		b := t.store.bets[id]
		if staged, ok := t.bets[id]; ok {
			b = staged
		}
		if b.EventID == eventID && b.Status == domain.BetPending {
			out = append(out, b)
		}
	}
	t.store.mu.Unlock()

	for _, id := range t.betIDs {
		b := t.bets[id]
		if b.EventID == eventID && b.Status == domain.BetPending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) FinalizeBet(_ context.Context, betID string, status domain.BetStatus, payout decimal.Decimal) error {
	b, ok := t.bets[betID]
	if !ok {
		t.store.mu.Lock()
		b, ok = t.store.bets[betID]
		t.store.mu.Unlock()
		if !ok {
			return domain.ErrNotFound
		}
	}
	if b.Status != domain.BetPending {
		return domain.ErrEventClosed
	}
	b.Status = status
	if status == domain.BetWon {
		b.Payout = payout
	}
	t.bets[betID] = b
	return nil
}
