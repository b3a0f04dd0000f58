package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// TradeLister reads the trade journal.
type TradeLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error)
}

// TradeHandler serves journaled trades.
type TradeHandler struct {
	trades TradeLister
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeLister, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// ListRecent returns the newest journaled trades.
// GET /api/trades/recent?limit=N
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	recs, err := h.trades.ListRecent(r.Context(), parseLimit(r))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "trade journal is not configured")
		return
	}
	if err != nil {
		h.logger.Error("trades: list recent", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if recs == nil {
		recs = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
