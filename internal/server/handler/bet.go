package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
	"github.com/oddsmith/poolmarket/internal/market"
)

// BetService defines what the bet handler needs from the market service.
type BetService interface {
	PlaceBet(ctx context.Context, p market.PlaceBetParams) (domain.Bet, error)
	ListBets(ctx context.Context, f domain.BetFilter, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet placement and queries.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

// placeBetRequest is the JSON body for staking on an event.
type placeBetRequest struct {
	UserID string          `json:"user_id"`
	Side   string          `json:"side"`
	Amount decimal.Decimal `json:"amount"`
}

// Place stakes an amount on one side of an event.
// POST /api/events/{id}/bets
func (h *BetHandler) Place(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	if eventID == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), market.PlaceBetParams{
		UserID:  req.UserID,
		EventID: eventID,
		Side:    domain.Side(req.Side),
		Amount:  req.Amount,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err, "place bet")
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// listBetsResponse wraps the list endpoint output with paging metadata.
type listBetsResponse struct {
	Bets   []domain.Bet `json:"bets"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// List returns bets filtered by event, user and status.
// GET /api/bets?event_id=&user_id=&status=&limit=50&offset=0
func (h *BetHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.BetFilter{
		EventID: q.Get("event_id"),
		UserID:  q.Get("user_id"),
		Status:  domain.BetStatus(q.Get("status")),
	}
	opts := parseListOpts(r)

	bets, err := h.bets.ListBets(r.Context(), filter, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
