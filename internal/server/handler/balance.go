package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

// BalanceService defines what the balance handler needs from the market
// service.
type BalanceService interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// BalanceHandler serves ledger balance reads for operators.
type BalanceHandler struct {
	balances BalanceService
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler with the given service and logger.
func NewBalanceHandler(balances BalanceService, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, logger: logger}
}

// balanceResponse is the JSON shape of a balance read.
type balanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// Get returns a user's spendable balance.
// GET /api/users/{id}/balance
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	balance, err := h.balances.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get balance")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{UserID: userID, Balance: balance})
}
