package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

func standardEngine(h *harness, trading, flatten bool) *Engine {
	reg := NewStandardRegistry(StandardConfig{
		BasketUS:        us,
		BasketEU:        eu,
		Constituents:    constituents,
		ArbThreshold:    0.05,
		BasketThreshold: 10,
		HedgeLotCap:     10,
		BasketRatio:     3,
	})
	return NewEngine(reg, h.cycle, h.pos, h.ex, nil, EngineOptions{
		Mode:           "paper",
		Interval:       time.Millisecond,
		FlattenOnStart: flatten,
		Trading:        trading,
	}, testLogger()).WithOrderStats(h.exec)
}

func TestEngine_RunCycleSharesLedgerWithinTick(t *testing.T) {
	h := newHarness(t, nil)
	h.book(us, 100.10, 50, 100.20, 50)
	h.book(eu, 99.90, 50, 100.00, 50)
	for _, id := range constituents {
		h.book(id, 100, 100, 100.5, 100)
	}
	e := standardEngine(h, true, false)

	e.RunCycle(context.Background())

	assert.Equal(t, []domain.Lot{{Price: 100.10, Volume: 50}}, h.ledger.Shorts(us))
	assert.Equal(t, []domain.Lot{{Price: 100.00, Volume: 50}}, h.ledger.Longs(eu))

	st := e.Status(context.Background())
	assert.Equal(t, int64(1), st.Cycles)
	assert.Equal(t, int64(1), st.Fires["forward_arb"])
	assert.Zero(t, st.Fires["reverse_arb"])
	assert.Equal(t, int64(2), st.Orders)
	assert.Equal(t, int64(-50), st.Positions[us])
	assert.Equal(t, int64(0), st.Exposure)
}

func TestEngine_MonitorModeNeverTrades(t *testing.T) {
	h := newHarness(t, nil)
	h.book(us, 101, 50, 101.5, 50)
	h.book(eu, 99, 50, 100, 50)
	e := standardEngine(h, false, true)

	e.RunCycle(context.Background())
	assert.Empty(t, h.ex.Orders())
	assert.True(t, h.cycle.Market.Tradeable(us))
}

func TestEngine_BasketGuardRunsLastEachTick(t *testing.T) {
	h := newHarness(t, map[string]int64{"NVDA": 310})
	for _, id := range instruments {
		h.book(id, 50, 100, 50.5, 100)
	}
	clk := time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)
	h.cycle.Guard.WithClock(func() time.Time { return clk })
	e := standardEngine(h, true, false)

	for i := 0; i < 4; i++ {
		e.RunCycle(context.Background())
		clk = clk.Add(time.Second)
	}
	orders := h.ex.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "NVDA", orders[0].Instrument)
	assert.Equal(t, domain.OrderSideSell, orders[0].Side)
	assert.Equal(t, int64(12), orders[0].Volume)
	assert.Equal(t, int64(1), e.Status(context.Background()).Corrections)
	assert.Zero(t, h.ledger.Net("NVDA"))
}

func TestEngine_BootstrapCancelsAndFlattens(t *testing.T) {
	h := newHarness(t, map[string]int64{"NVDA": 20, "AMD": -5})
	h.book("NVDA", 100, 10, 101, 10)
	h.book("AMD", 50, 10, 51, 10)
	e := standardEngine(h, true, true)

	require.NoError(t, e.Bootstrap(context.Background()))
	assert.Equal(t, instruments, h.ex.Deletes())

	orders := h.ex.Orders()
	require.Len(t, orders, 2)
	byID := map[string]domain.Order{}
	for _, o := range orders {
		assert.Equal(t, domain.TimeInForceLimit, o.TimeInForce)
		assert.Equal(t, StrategyFlatten, o.Strategy)
		byID[o.Instrument] = o
	}
	assert.Equal(t, domain.OrderSideSell, byID["NVDA"].Side)
	assert.Equal(t, 100.0, byID["NVDA"].Price)
	assert.Equal(t, int64(20), byID["NVDA"].Volume)
	assert.Equal(t, domain.OrderSideBuy, byID["AMD"].Side)
	assert.Equal(t, 51.0, byID["AMD"].Price)
	assert.Equal(t, int64(5), byID["AMD"].Volume)
	assert.Empty(t, h.ledger.Snapshot())
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	e := standardEngine(h, true, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool { return e.Status(context.Background()).Cycles >= 3 }, time.Second, time.Millisecond)
	assert.True(t, e.Status(context.Background()).Running)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, e.Status(context.Background()).Running)
}
