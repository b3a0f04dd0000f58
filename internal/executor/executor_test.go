package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/basketbot/internal/domain"
	"github.com/alanyoungcy/basketbot/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedPlacer struct {
	orders []domain.Order
	reject map[string]string
	fail   map[string]error
}

func (p *scriptedPlacer) InsertOrder(_ context.Context, o domain.Order) (domain.OrderResult, error) {
	p.orders = append(p.orders, o)
	if err := p.fail[o.Instrument]; err != nil {
		return domain.OrderResult{}, err
	}
	if reason, ok := p.reject[o.Instrument]; ok {
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: reason}, nil
	}
	return domain.OrderResult{Success: true, OrderID: "x-" + o.ID, Status: domain.OrderStatusAccepted}, nil
}

type countingAlerter struct{ events []string }

func (a *countingAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.events = append(a.events, event)
	return nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func order(inst string, side domain.OrderSide, price float64, vol int64) domain.Order {
	return domain.Order{Instrument: inst, Side: side, Price: price, Volume: vol, Strategy: "test"}
}

func TestSubmit_RecordsAcceptedOrders(t *testing.T) {
	placer := &scriptedPlacer{}
	l := ledger.New()
	ex := NewExecutor(placer, l, nil, testLogger())

	res, err := ex.Submit(context.Background(), order("NVDA", domain.OrderSideBuy, 100, 10))
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, placer.orders, 1)
	sent := placer.orders[0]
	assert.NotEmpty(t, sent.ID)
	assert.Equal(t, domain.TimeInForceIOC, sent.TimeInForce)
	assert.Equal(t, []domain.Lot{{Price: 100, Volume: 10}}, l.Longs("NVDA"))
	assert.Equal(t, Stats{Orders: 1, Accepted: 1}, ex.Stats())
}

func TestSubmit_RejectedOrdersAreNotRecorded(t *testing.T) {
	placer := &scriptedPlacer{reject: map[string]string{"NVDA": "position limit"}}
	l := ledger.New()
	alerts := &countingAlerter{}
	ex := NewExecutor(placer, l, nil, testLogger()).WithAlerter(alerts)

	for i := 0; i < 3; i++ {
		res, err := ex.Submit(context.Background(), order("NVDA", domain.OrderSideSell, 100, 10))
		require.NoError(t, err)
		assert.False(t, res.Success)
	}
	assert.Empty(t, l.Shorts("NVDA"))
	assert.Equal(t, int64(3), ex.Stats().Rejections)
	assert.Equal(t, []string{domain.EventOrderRejected}, alerts.events)
}

func TestSubmitUnrecorded_LeavesLedgerAlone(t *testing.T) {
	placer := &scriptedPlacer{}
	l := ledger.New()
	ex := NewExecutor(placer, l, nil, testLogger())

	res, err := ex.SubmitUnrecorded(context.Background(), order("AMD", domain.OrderSideSell, 50, 12))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, l.Shorts("AMD"))
	assert.Zero(t, l.Net("AMD"))
}

func TestSubmitLegs_RecordsEachAcceptedLeg(t *testing.T) {
	placer := &scriptedPlacer{reject: map[string]string{"SEMIS_ETF_EU": "halted"}}
	l := ledger.New()
	ex := NewExecutor(placer, l, nil, testLogger())

	results, err := ex.SubmitLegs(context.Background(), []domain.Order{
		order("SEMIS_ETF_US", domain.OrderSideSell, 100.10, 50),
		order("SEMIS_ETF_EU", domain.OrderSideBuy, 100.00, 50),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, []domain.Lot{{Price: 100.10, Volume: 50}}, l.Shorts("SEMIS_ETF_US"))
	assert.Empty(t, l.Longs("SEMIS_ETF_EU"))
}

func TestSubmitLegs_TransportErrorStopsRemainingLegs(t *testing.T) {
	placer := &scriptedPlacer{fail: map[string]error{"SEMIS_ETF_US": errors.New("connection reset")}}
	ex := NewExecutor(placer, ledger.New(), nil, testLogger())

	results, err := ex.SubmitLegs(context.Background(), []domain.Order{
		order("SEMIS_ETF_US", domain.OrderSideSell, 100.10, 50),
		order("SEMIS_ETF_EU", domain.OrderSideBuy, 100.00, 50),
	})
	require.Error(t, err)
	assert.Len(t, results, 1)
	assert.Len(t, placer.orders, 1)
	assert.Equal(t, int64(1), ex.Stats().Failures)
}

func TestSubmit_RateLimitedNeverReachesExchange(t *testing.T) {
	placer := &scriptedPlacer{}
	ex := NewExecutor(placer, ledger.New(), nil, testLogger()).WithRateLimiter(denyAll{}, 10, time.Second)

	res, err := ex.Submit(context.Background(), order("NVDA", domain.OrderSideBuy, 100, 1))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, placer.orders)
}

func TestSubmit_InvalidOrder(t *testing.T) {
	placer := &scriptedPlacer{}
	ex := NewExecutor(placer, ledger.New(), nil, testLogger())

	_, err := ex.Submit(context.Background(), order("NVDA", domain.OrderSideBuy, 100, 0))
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Empty(t, placer.orders)
}

func TestDedup(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	now = now.Add(time.Minute)
	assert.False(t, d.IsDuplicate("a"))
}
