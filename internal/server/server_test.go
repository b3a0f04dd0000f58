package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/basketbot/internal/domain"
	"github.com/alanyoungcy/basketbot/internal/executor"
	"github.com/alanyoungcy/basketbot/internal/ledger"
	"github.com/alanyoungcy/basketbot/internal/server/handler"
	"github.com/alanyoungcy/basketbot/internal/strategy"
)

type fakeEngine struct{}

func (fakeEngine) Status(context.Context) domain.EngineStatus {
	return domain.EngineStatus{Mode: "paper", Running: true, Cycles: 42, Exposure: 15}
}

type fakeStats struct{}

func (fakeStats) Stats() executor.Stats { return executor.Stats{Orders: 7, Accepted: 6, Rejections: 1} }

type fakeTrades struct {
	recs  []domain.TradeRecord
	err   error
	limit int
}

func (f *fakeTrades) ListRecent(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	f.limit = limit
	return f.recs, f.err
}

type countingLimiter struct {
	limit int
	calls int
	err   error
}

func (c *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.calls <= c.limit, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, cfg Config, trades handler.TradeLister, checks map[string]handler.HealthCheck) http.Handler {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.RecordTrade("NVDA", domain.OrderSideBuy, 100, 10))

	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(strategy.NewCrossListingArb("forward_arb", "EU", "US", 0.05)))

	h := Handlers{
		Health: handler.NewHealthHandler(checks, testLogger()),
		Status: handler.NewStatusHandler(fakeEngine{}, reg, fakeStats{}),
		Ledger: handler.NewLedgerHandler(l),
	}
	if trades != nil {
		h.Trades = handler.NewTradeHandler(trades, testLogger())
	}
	return NewServer(cfg, h, nil, testLogger()).Handler()
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_ReportsFailingCheck(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: "secret"}, nil, map[string]handler.HealthCheck{
		"exchange": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := get(h, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["exchange"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestStatus_RequiresAPIKey(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: "secret"}, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", map[string]string{"X-API-Key": "wrong"}).Code)

	rec := get(h, "/api/status", map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Engine     domain.EngineStatus     `json:"engine"`
		Strategies []strategy.StrategyInfo `json:"strategies"`
		Orders     executor.Stats          `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "paper", body.Engine.Mode)
	assert.Equal(t, int64(42), body.Engine.Cycles)
	require.Len(t, body.Strategies, 1)
	assert.Equal(t, "forward_arb", body.Strategies[0].Name)
	assert.Equal(t, int64(7), body.Orders.Orders)
}

func TestLedger_Routes(t *testing.T) {
	h := newTestHandler(t, Config{}, nil, nil)

	rec := get(h, "/api/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all map[string]ledger.InstrumentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, int64(10), all["NVDA"].Net)

	assert.Equal(t, http.StatusOK, get(h, "/api/ledger/NVDA", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/api/ledger/AMD", nil).Code)
}

func TestTrades_JournalStates(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestHandler(t, Config{}, &fakeTrades{err: domain.ErrNotFound}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, get(h, "/api/trades/recent", nil).Code)
	})

	t.Run("store error", func(t *testing.T) {
		h := newTestHandler(t, Config{}, &fakeTrades{err: errors.New("db down")}, nil)
		assert.Equal(t, http.StatusInternalServerError, get(h, "/api/trades/recent", nil).Code)
	})

	t.Run("records", func(t *testing.T) {
		trades := &fakeTrades{recs: []domain.TradeRecord{{ID: "t1", Instrument: "AMD", Volume: 3}}}
		h := newTestHandler(t, Config{}, trades, nil)

		rec := get(h, "/api/trades/recent?limit=9999", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 500, trades.limit)

		var got []domain.TradeRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "t1", got[0].ID)
	})

	t.Run("route absent without journal", func(t *testing.T) {
		h := newTestHandler(t, Config{}, nil, nil)
		assert.Equal(t, http.StatusNotFound, get(h, "/api/trades/recent", nil).Code)
	})
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	limiter := &countingLimiter{limit: 2}
	h := newTestHandler(t, Config{RateLimit: 2, Limiter: limiter}, nil, nil)

	assert.Equal(t, http.StatusOK, get(h, "/api/ledger", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/ledger", nil).Code)
	rec := get(h, "/api/ledger", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := newTestHandler(t, Config{RateLimit: 1, Limiter: &countingLimiter{err: errors.New("redis down")}}, nil, nil)
	assert.Equal(t, http.StatusOK, get(h, "/api/ledger", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/ledger", nil).Code)
}

func TestCORS_Preflight(t *testing.T) {
	h := newTestHandler(t, Config{CORSOrigins: []string{"http://localhost:3000"}, APIKey: "secret"}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
