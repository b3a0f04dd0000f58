package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/basketbot/internal/domain"
	"github.com/alanyoungcy/basketbot/internal/executor"
	"github.com/alanyoungcy/basketbot/internal/strategy"
)

// StatusSource reports the engine state.
type StatusSource interface {
	Status(ctx context.Context) domain.EngineStatus
}

// StrategyLister reports per-strategy counters.
type StrategyLister interface {
	ListInfo() []strategy.StrategyInfo
}

// OrderStats reports executor counters.
type OrderStats interface {
	Stats() executor.Stats
}

// StatusHandler serves engine, strategy and executor state for dashboards.
type StatusHandler struct {
	engine     StatusSource
	strategies StrategyLister
	orders     OrderStats
}

// NewStatusHandler creates a StatusHandler. orders may be nil.
func NewStatusHandler(engine StatusSource, strategies StrategyLister, orders OrderStats) *StatusHandler {
	return &StatusHandler{engine: engine, strategies: strategies, orders: orders}
}

// GetStatus responds with the engine status plus strategy and order counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"engine":     h.engine.Status(r.Context()),
		"strategies": h.strategies.ListInfo(),
	}
	if h.orders != nil {
		resp["orders"] = h.orders.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListStrategies responds with the registered strategies in execution order.
// GET /api/strategies
func (h *StatusHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.strategies.ListInfo())
}
