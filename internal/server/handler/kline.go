package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oddsmith/poolmarket/internal/domain"
	"github.com/oddsmith/poolmarket/internal/odds"
)

// KlineService defines what the kline handler needs from the market service.
type KlineService interface {
	OddsHistory(ctx context.Context, eventID string, interval time.Duration, from, to time.Time, limit int) ([]domain.OddsSample, error)
}

// KlineHandler serves the odds time series of an event.
type KlineHandler struct {
	klines KlineService
	logger *slog.Logger
}

// NewKlineHandler creates a KlineHandler with the given service and logger.
func NewKlineHandler(klines KlineService, logger *slog.Logger) *KlineHandler {
	return &KlineHandler{klines: klines, logger: logger}
}

// listKlinesResponse wraps the odds history output.
type listKlinesResponse struct {
	EventID  string              `json:"event_id"`
	Interval string              `json:"interval"`
	Samples  []domain.OddsSample `json:"samples"`
}

// History returns bucketed odds samples for an event.
// GET /api/events/{id}/klines?interval=1m&from=&to=&limit=
func (h *KlineHandler) History(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	if eventID == "" {
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	q := r.URL.Query()

	intervalStr := q.Get("interval")
	if intervalStr == "" {
		intervalStr = "1m"
	}
	interval, err := odds.ParseDuration(intervalStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid interval")
		return
	}

	var from, to time.Time
	if t, ok := parseTime(q.Get("from")); ok {
		from = t
	}
	if t, ok := parseTime(q.Get("to")); ok {
		to = t
	}
	opts := parseListOpts(r)

	samples, err := h.klines.OddsHistory(r.Context(), eventID, interval, from, to, opts.Limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "odds history")
		return
	}
	if samples == nil {
		samples = []domain.OddsSample{}
	}

	writeJSON(w, http.StatusOK, listKlinesResponse{
		EventID:  eventID,
		Interval: intervalStr,
		Samples:  samples,
	})
}
