package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
	"github.com/oddsmith/poolmarket/internal/market"
)

// EventService defines what the event handler needs from the market service.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type EventService interface {
	CreateEvent(ctx context.Context, p market.CreateEventParams) (domain.Event, error)
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context, f domain.EventFilter, opts domain.ListOpts) ([]domain.Event, error)
	Settle(ctx context.Context, eventID string, outcome *bool) error
	Cancel(ctx context.Context, eventID string) error
}

// EventHandler serves event lifecycle endpoints.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler with the given service and logger.
func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// createEventRequest is the JSON body for opening a new market.
type createEventRequest struct {
	CreatorID      string          `json:"creator_id"`
	Side           string          `json:"side"`
	Kind           string          `json:"kind"`
	Contract       string          `json:"contract"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	ReferenceAsset string          `json:"reference_asset"`
	Stake          decimal.Decimal `json:"stake"`
	Duration       string          `json:"duration"`
}

// Create opens a new event funded by the creator's stake.
// POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.events.CreateEvent(r.Context(), market.CreateEventParams{
		CreatorID:      req.CreatorID,
		Side:           domain.Side(req.Side),
		Kind:           domain.EventKind(req.Kind),
		Contract:       req.Contract,
		TargetPrice:    req.TargetPrice,
		ReferenceAsset: req.ReferenceAsset,
		Stake:          req.Stake,
		Duration:       req.Duration,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err, "create event")
		return
	}

	writeJSON(w, http.StatusCreated, ev)
}

// Get returns a single event by id.
// GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	ev, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// listEventsResponse wraps the list endpoint output with paging metadata.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// List returns events filtered by status, kind and creator.
// GET /api/events?status=active&kind=price_target&creator_id=&limit=50&offset=0
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.EventFilter{
		Status:    domain.EventStatus(q.Get("status")),
		Kind:      domain.EventKind(q.Get("kind")),
		CreatorID: q.Get("creator_id"),
	}
	opts := parseListOpts(r)

	events, err := h.events.ListEvents(r.Context(), filter, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list events")
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// settleRequest optionally forces an outcome; with no body (or a null
// outcome) the oracle decides.
type settleRequest struct {
	Outcome *bool `json:"outcome"`
}

// Settle resolves an event and pays out the winning side.
// POST /api/events/{id}/settle
func (h *EventHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	var req settleRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.events.Settle(r.Context(), id, req.Outcome); err != nil {
		writeDomainError(w, r, h.logger, err, "settle event")
		return
	}

	ev, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get settled event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Cancel voids an event and refunds every pending bet.
// POST /api/events/{id}/cancel
func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	if err := h.events.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, err, "cancel event")
		return
	}

	ev, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get cancelled event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
