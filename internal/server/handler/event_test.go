package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/poolmarket/internal/domain"
	"github.com/oddsmith/poolmarket/internal/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEventService struct {
	events map[string]domain.Event

	createErr error
	settleErr error
	cancelErr error

	lastCreate  market.CreateEventParams
	lastOutcome *bool
	settled     []string
	cancelled   []string
}

func (f *fakeEventService) CreateEvent(_ context.Context, p market.CreateEventParams) (domain.Event, error) {
	f.lastCreate = p
	if f.createErr != nil {
		return domain.Event{}, f.createErr
	}
	ev := domain.Event{
		ID:        "evt-1",
		CreatorID: p.CreatorID,
		Kind:      p.Kind,
		Status:    domain.StatusActive,
	}
	if f.events == nil {
		f.events = map[string]domain.Event{}
	}
	f.events[ev.ID] = ev
	return ev, nil
}

func (f *fakeEventService) GetEvent(_ context.Context, id string) (domain.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("event %s: %w", id, domain.ErrNotFound)
	}
	return ev, nil
}

func (f *fakeEventService) ListEvents(_ context.Context, filter domain.EventFilter, _ domain.ListOpts) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range f.events {
		if filter.Status != "" && ev.Status != filter.Status {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeEventService) Settle(_ context.Context, eventID string, outcome *bool) error {
	f.settled = append(f.settled, eventID)
	f.lastOutcome = outcome
	return f.settleErr
}

func (f *fakeEventService) Cancel(_ context.Context, eventID string) error {
	f.cancelled = append(f.cancelled, eventID)
	return f.cancelErr
}

func newEventRequest(method, target, body string, pathID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if pathID != "" {
		r.SetPathValue("id", pathID)
	}
	return r
}

func TestEventCreate(t *testing.T) {
	svc := &fakeEventService{}
	h := NewEventHandler(svc, testLogger())

	body := `{"creator_id":"alice","side":"yes","kind":"price_target","reference_asset":"SOL","target_price":"250","stake":"100","duration":"24h"}`
	w := httptest.NewRecorder()
	h.Create(w, newEventRequest(http.MethodPost, "/api/events", body, ""))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", svc.lastCreate.CreatorID)
	assert.Equal(t, domain.SideYes, svc.lastCreate.Side)
	assert.True(t, svc.lastCreate.Stake.Equal(decimal.RequireFromString("100")))

	var got domain.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "evt-1", got.ID)
}

func TestEventCreateRejectsBadBody(t *testing.T) {
	h := NewEventHandler(&fakeEventService{}, testLogger())

	for name, body := range map[string]string{
		"malformed":     `{"creator_id":`,
		"unknown field": `{"creator_id":"alice","bogus":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Create(w, newEventRequest(http.MethodPost, "/api/events", body, ""))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestEventCreateValidationError(t *testing.T) {
	svc := &fakeEventService{createErr: fmt.Errorf("%w: stake must be positive", domain.ErrValidation)}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Create(w, newEventRequest(http.MethodPost, "/api/events", `{"creator_id":"alice"}`, ""))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "stake must be positive")
}

func TestEventCreateInsufficientFunds(t *testing.T) {
	svc := &fakeEventService{createErr: domain.ErrInsufficientFunds}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Create(w, newEventRequest(http.MethodPost, "/api/events", `{"creator_id":"alice"}`, ""))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestEventGet(t *testing.T) {
	svc := &fakeEventService{events: map[string]domain.Event{
		"evt-1": {ID: "evt-1", Status: domain.StatusActive},
	}}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Get(w, newEventRequest(http.MethodGet, "/api/events/evt-1", "", "evt-1"))
	require.Equal(t, http.StatusOK, w.Code)

	var got domain.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "evt-1", got.ID)
}

func TestEventGetNotFound(t *testing.T) {
	h := NewEventHandler(&fakeEventService{}, testLogger())

	w := httptest.NewRecorder()
	h.Get(w, newEventRequest(http.MethodGet, "/api/events/missing", "", "missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventListAlwaysReturnsArray(t *testing.T) {
	h := NewEventHandler(&fakeEventService{}, testLogger())

	w := httptest.NewRecorder()
	h.List(w, newEventRequest(http.MethodGet, "/api/events?status=active", "", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestEventSettleWithoutBodyUsesOracle(t *testing.T) {
	svc := &fakeEventService{events: map[string]domain.Event{
		"evt-1": {ID: "evt-1", Status: domain.StatusSettled},
	}}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Settle(w, newEventRequest(http.MethodPost, "/api/events/evt-1/settle", "", "evt-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"evt-1"}, svc.settled)
	assert.Nil(t, svc.lastOutcome, "no body means oracle resolution")
}

func TestEventSettleWithForcedOutcome(t *testing.T) {
	svc := &fakeEventService{events: map[string]domain.Event{
		"evt-1": {ID: "evt-1", Status: domain.StatusSettled},
	}}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Settle(w, newEventRequest(http.MethodPost, "/api/events/evt-1/settle", `{"outcome":true}`, "evt-1"))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastOutcome)
	assert.True(t, *svc.lastOutcome)
}

func TestEventSettleOracleIndeterminate(t *testing.T) {
	svc := &fakeEventService{settleErr: domain.ErrOracleIndeterminate}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Settle(w, newEventRequest(http.MethodPost, "/api/events/evt-1/settle", "", "evt-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEventSettleBusySetsRetryAfter(t *testing.T) {
	svc := &fakeEventService{settleErr: fmt.Errorf("lock: %w", domain.ErrBusy)}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Settle(w, newEventRequest(http.MethodPost, "/api/events/evt-1/settle", "", "evt-1"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestEventCancel(t *testing.T) {
	svc := &fakeEventService{events: map[string]domain.Event{
		"evt-1": {ID: "evt-1", Status: domain.StatusCancelled},
	}}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Cancel(w, newEventRequest(http.MethodPost, "/api/events/evt-1/cancel", "", "evt-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"evt-1"}, svc.cancelled)
}

func TestEventCancelClosedConflict(t *testing.T) {
	svc := &fakeEventService{cancelErr: domain.ErrEventClosed}
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Cancel(w, newEventRequest(http.MethodPost, "/api/events/evt-1/cancel", "", "evt-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
}
