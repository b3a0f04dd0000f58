package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

var group = []string{"SEMIS_ETF_US", "SEMIS_ETF_EU", "ASML", "AMD", "NVDA"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePositions struct {
	mu  sync.Mutex
	pos map[string]int64
	err error
}

func (f *fakePositions) GetPositions(context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]int64, len(f.pos))
	for k, v := range f.pos {
		out[k] = v
	}
	return out, nil
}

func (f *fakePositions) set(pos map[string]int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
}

type fakeBooks struct {
	books map[string]domain.OrderbookSnapshot
	errs  map[string]error
}

func (f *fakeBooks) GetPriceBook(_ context.Context, id string) (domain.OrderbookSnapshot, bool, error) {
	if err := f.errs[id]; err != nil {
		return domain.OrderbookSnapshot{}, false, err
	}
	s, ok := f.books[id]
	return s, ok, nil
}

func book(id string, bid, ask float64, vol int64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Instrument: id,
		Bids:       []domain.PriceLevel{{Price: bid, Volume: vol}},
		Asks:       []domain.PriceLevel{{Price: ask, Volume: vol}},
	}
}

type recordingSubmitter struct {
	orders []domain.Order
}

func (r *recordingSubmitter) SubmitUnrecorded(_ context.Context, o domain.Order) (domain.OrderResult, error) {
	r.orders = append(r.orders, o)
	return domain.OrderResult{Success: true, Status: domain.OrderStatusAccepted}, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func guardConfig() BasketGuardConfig {
	return BasketGuardConfig{
		HardLimit:     300,
		SoftLimit:     250,
		Persistence:   2500 * time.Millisecond,
		GridThreshold: 0.2,
		PressureRatio: 0.8,
	}
}

func newGuard(t *testing.T, pos map[string]int64) (*BasketGuard, *fakePositions, *recordingSubmitter, *clock) {
	t.Helper()
	fp := &fakePositions{pos: pos}
	books := &fakeBooks{books: map[string]domain.OrderbookSnapshot{}}
	for _, id := range group {
		books.books[id] = book(id, 99, 101, 100)
	}
	mv := NewMarketView(books, group, testLogger())
	require.NoError(t, mv.Refresh(context.Background()))

	sub := &recordingSubmitter{}
	clk := &clock{t: time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)}
	g := NewBasketGuard(guardConfig(), NewPositionService(fp, group), mv, sub, testLogger()).WithClock(clk.now)
	return g, fp, sub, clk
}

func TestAllowedVolume(t *testing.T) {
	assert.Equal(t, int64(750), AllowedVolume(0, domain.OrderSideBuy, 750))
	assert.Equal(t, int64(700), AllowedVolume(50, domain.OrderSideBuy, 750))
	assert.Equal(t, int64(800), AllowedVolume(50, domain.OrderSideSell, 750))
	assert.Equal(t, int64(0), AllowedVolume(800, domain.OrderSideBuy, 750))
	assert.Equal(t, int64(0), AllowedVolume(-900, domain.OrderSideSell, 750))
}

func TestAllowedVolume_MonotoneInExposure(t *testing.T) {
	for _, side := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		// moving net toward side's direction never increases what side may trade
		prev := AllowedVolume(-1000, side, 750)
		if side == domain.OrderSideSell {
			prev = AllowedVolume(1000, side, 750)
		}
		for i := int64(-1000); i <= 1000; i++ {
			net := i
			if side == domain.OrderSideSell {
				net = -i
			}
			got := AllowedVolume(net, side, 750)
			require.GreaterOrEqual(t, got, int64(0))
			require.LessOrEqual(t, got, prev, "net %d side %s", net, side)
			prev = got
		}
	}
}

func TestRiskService_Allowed(t *testing.T) {
	fp := &fakePositions{pos: map[string]int64{"NVDA": 700}}
	rs := NewRiskService(fp, 750, testLogger())
	ctx := context.Background()

	assert.Equal(t, int64(50), rs.Allowed(ctx, "NVDA", domain.OrderSideBuy))
	assert.Equal(t, int64(1450), rs.Allowed(ctx, "NVDA", domain.OrderSideSell))

	fp.set(map[string]int64{"NVDA": 0})
	assert.Equal(t, int64(750), rs.Allowed(ctx, "NVDA", domain.OrderSideBuy))

	fp.err = errors.New("timeout")
	assert.Zero(t, rs.Allowed(ctx, "NVDA", domain.OrderSideBuy))
}

func TestBasketGuard_CorrectsAfterPersistence(t *testing.T) {
	g, _, sub, clk := newGuard(t, map[string]int64{"NVDA": 200, "AMD": 110, "ASML": -5, "SEMIS_ETF_US": 5})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, fired, err := g.CheckAndCorrect(ctx)
		require.NoError(t, err)
		assert.False(t, fired, "tick %d", i)
		clk.advance(time.Second)
	}
	assert.Empty(t, sub.orders)

	evt, fired, err := g.CheckAndCorrect(ctx)
	require.NoError(t, err)
	require.True(t, fired)
	assert.Equal(t, int64(310), evt.Exposure)
	assert.Equal(t, int64(60), evt.Excess)
	assert.Equal(t, int64(12), evt.PerLeg)

	require.Len(t, sub.orders, 3)
	byID := map[string]domain.Order{}
	for _, o := range sub.orders {
		assert.Equal(t, domain.OrderSideSell, o.Side)
		assert.Equal(t, 99.0, o.Price)
		assert.Equal(t, domain.TimeInForceIOC, o.TimeInForce)
		byID[o.Instrument] = o
	}
	assert.Equal(t, int64(12), byID["NVDA"].Volume)
	assert.Equal(t, int64(12), byID["AMD"].Volume)
	assert.Equal(t, int64(5), byID["SEMIS_ETF_US"].Volume)
	assert.NotContains(t, byID, "ASML")

	_, breached := g.BreachSince()
	assert.False(t, breached)
	assert.Equal(t, int64(1), g.Corrections())
}

func TestBasketGuard_InterruptedBreachNeverFires(t *testing.T) {
	g, fp, sub, clk := newGuard(t, map[string]int64{"NVDA": 310})
	ctx := context.Background()

	_, fired, _ := g.CheckAndCorrect(ctx)
	assert.False(t, fired)
	clk.advance(2400 * time.Millisecond)
	_, fired, _ = g.CheckAndCorrect(ctx)
	assert.False(t, fired)

	fp.set(map[string]int64{"NVDA": 100})
	clk.advance(50 * time.Millisecond)
	_, fired, _ = g.CheckAndCorrect(ctx)
	assert.False(t, fired)

	fp.set(map[string]int64{"NVDA": 310})
	clk.advance(50 * time.Millisecond)
	_, fired, _ = g.CheckAndCorrect(ctx)
	assert.False(t, fired)
	clk.advance(2400 * time.Millisecond)
	_, fired, _ = g.CheckAndCorrect(ctx)
	assert.False(t, fired)

	assert.Empty(t, sub.orders)
}

func TestBasketGuard_ShortSideBuysAtAsk(t *testing.T) {
	g, _, sub, clk := newGuard(t, map[string]int64{"AMD": -200, "NVDA": -120, "ASML": 10})
	ctx := context.Background()

	_, _, _ = g.CheckAndCorrect(ctx)
	clk.advance(2600 * time.Millisecond)
	evt, fired, err := g.CheckAndCorrect(ctx)
	require.NoError(t, err)
	require.True(t, fired)
	assert.Equal(t, int64(60), evt.Excess)
	require.Len(t, sub.orders, 2)
	for _, o := range sub.orders {
		assert.Equal(t, domain.OrderSideBuy, o.Side)
		assert.Equal(t, 101.0, o.Price)
		assert.Equal(t, int64(12), o.Volume)
	}
}

func TestBasketGuard_BetweenBandsClearsWithoutOrders(t *testing.T) {
	g, _, sub, clk := newGuard(t, map[string]int64{"NVDA": 270})
	ctx := context.Background()

	_, _, _ = g.CheckAndCorrect(ctx)
	_, breached := g.BreachSince()
	assert.True(t, breached)

	clk.advance(3 * time.Second)
	_, fired, err := g.CheckAndCorrect(ctx)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Empty(t, sub.orders)
	_, breached = g.BreachSince()
	assert.False(t, breached)
	assert.Zero(t, g.Corrections())
}

func TestBasketGuard_PositionFailureKeepsTimer(t *testing.T) {
	g, fp, _, clk := newGuard(t, map[string]int64{"NVDA": 400})
	ctx := context.Background()

	_, _, _ = g.CheckAndCorrect(ctx)
	since, _ := g.BreachSince()

	fp.err = errors.New("down")
	clk.advance(time.Second)
	_, _, err := g.CheckAndCorrect(ctx)
	require.Error(t, err)

	got, breached := g.BreachSince()
	assert.True(t, breached)
	assert.Equal(t, since, got)
}

func TestDynamicGridThreshold(t *testing.T) {
	g, fp, _, _ := newGuard(t, map[string]int64{"NVDA": 240})
	ctx := context.Background()

	assert.Equal(t, 0.2, g.DynamicGridThreshold(ctx))
	fp.set(map[string]int64{"NVDA": 241})
	assert.Equal(t, 0.1, g.DynamicGridThreshold(ctx))
	fp.set(map[string]int64{"NVDA": -241})
	assert.Equal(t, 0.1, g.DynamicGridThreshold(ctx))
	fp.err = errors.New("down")
	assert.Equal(t, 0.2, g.DynamicGridThreshold(ctx))
}

type memCache struct {
	mu    sync.Mutex
	snaps map[string]domain.OrderbookSnapshot
}

func (m *memCache) SetSnapshot(_ context.Context, s domain.OrderbookSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.Instrument] = s
	return nil
}

func (m *memCache) GetSnapshot(_ context.Context, id string) (domain.OrderbookSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return s, domain.ErrNotFound
	}
	return s, nil
}

func (m *memCache) GetBBO(context.Context, string) (float64, float64, error) { return 0, 0, nil }

func (m *memCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func TestMarketView_RefreshReplacesWholesale(t *testing.T) {
	src := &fakeBooks{
		books: map[string]domain.OrderbookSnapshot{
			"NVDA": book("NVDA", 10, 11, 5),
			"AMD":  {Instrument: "AMD", Bids: []domain.PriceLevel{{Price: 3, Volume: 1}}},
		},
		errs: map[string]error{"ASML": errors.New("timeout")},
	}
	cache := &memCache{snaps: map[string]domain.OrderbookSnapshot{}}
	mv := NewMarketView(src, []string{"NVDA", "AMD", "ASML"}, testLogger()).WithMirror(cache, nil)

	err := mv.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, mv.Tradeable("NVDA"))
	assert.False(t, mv.Tradeable("AMD"))
	_, ok := mv.Book("ASML")
	assert.False(t, ok)
	bid, ok := mv.BestBid("AMD")
	require.True(t, ok)
	assert.Equal(t, 3.0, bid.Price)
	_, ok = mv.BestAsk("AMD")
	assert.False(t, ok)

	assert.Eventually(t, func() bool { return cache.len() == 2 }, time.Second, 5*time.Millisecond)

	delete(src.books, "NVDA")
	src.errs = nil
	require.NoError(t, mv.Refresh(context.Background()))
	_, ok = mv.Book("NVDA")
	assert.False(t, ok)
}

type memTradeStore struct {
	mu   sync.Mutex
	rows []domain.TradeRecord
}

func (m *memTradeStore) Insert(_ context.Context, r domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memTradeStore) ListRecent(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradeRecord(nil), m.rows[:min(limit, len(m.rows))]...), nil
}

func (m *memTradeStore) ListBefore(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (m *memTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memTradeStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestTradeService_JournalWritesInBackground(t *testing.T) {
	store := &memTradeStore{}
	svc := NewTradeService(store, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = svc.Run(ctx); close(done) }()

	svc.Journal(domain.TradeRecord{ID: "a", Instrument: "NVDA"})
	svc.Journal(domain.TradeRecord{ID: "b", Instrument: "AMD"})
	assert.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond)

	recs, err := svc.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	cancel()
	<-done
}

func TestTradeService_NilSafe(t *testing.T) {
	var svc *TradeService
	svc.Journal(domain.TradeRecord{ID: "x"})
	svc.Audit(context.Background(), domain.EventFlatten, nil)
	_, err := svc.ListRecent(context.Background(), 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
