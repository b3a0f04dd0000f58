package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// StrategyBasketGuard tags correction orders in the journal.
const StrategyBasketGuard = "basket_guard"

// correctionLegs divides the excess across the group.
const correctionLegs = 5

// CorrectionSubmitter places orders that must not touch the lot ledger.
type CorrectionSubmitter interface {
	SubmitUnrecorded(ctx context.Context, order domain.Order) (domain.OrderResult, error)
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BasketGuardConfig holds the exposure bands and timings.
type BasketGuardConfig struct {
	HardLimit     int64
	SoftLimit     int64
	Persistence   time.Duration
	GridThreshold float64
	PressureRatio float64
}

// BasketGuard bounds the summed position of the instrument group. A breach of
// the soft band starts a timer; if the breach persists past the configured
// window and exposure is beyond the hard band, it sends IOC orders that pull
// exposure back toward the soft band.
type BasketGuard struct {
	cfg       BasketGuardConfig
	positions *PositionService
	market    *MarketView
	submit    CorrectionSubmitter
	bus       domain.SignalBus
	alert     Alerter
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	breachSince time.Time
	breached    bool
	corrections int64
}

// NewBasketGuard creates a BasketGuard.
func NewBasketGuard(
	cfg BasketGuardConfig,
	positions *PositionService,
	market *MarketView,
	submit CorrectionSubmitter,
	logger *slog.Logger,
) *BasketGuard {
	return &BasketGuard{
		cfg:       cfg,
		positions: positions,
		market:    market,
		submit:    submit,
		logger:    logger.With(slog.String("component", "basket_guard")),
		now:       time.Now,
	}
}

// WithClock replaces the wall clock.
func (g *BasketGuard) WithClock(now func() time.Time) *BasketGuard {
	g.now = now
	return g
}

// WithBus publishes correction events on bus.
func (g *BasketGuard) WithBus(bus domain.SignalBus) *BasketGuard {
	g.bus = bus
	return g
}

// WithAlerter sends a notification for every correction.
func (g *BasketGuard) WithAlerter(a Alerter) *BasketGuard {
	g.alert = a
	return g
}

// CheckAndCorrect runs one pass of the breach state machine. It reports the
// correction when the persistence window elapsed on this call.
func (g *BasketGuard) CheckAndCorrect(ctx context.Context) (domain.CorrectionEvent, bool, error) {
	exposure, pos, err := g.positions.Exposure(ctx)
	if err != nil {
		return domain.CorrectionEvent{}, false, fmt.Errorf("basket_guard: %w", err)
	}
	now := g.now()

	g.mu.Lock()
	switch {
	case exposure >= -g.cfg.SoftLimit && exposure <= g.cfg.SoftLimit:
		if g.breached {
			g.logger.InfoContext(ctx, "exposure back inside soft band", slog.Int64("exposure", exposure))
		}
		g.breached = false
		g.mu.Unlock()
		return domain.CorrectionEvent{}, false, nil
	case !g.breached:
		g.breached = true
		g.breachSince = now
		g.mu.Unlock()
		g.logger.InfoContext(ctx, "exposure breached soft band", slog.Int64("exposure", exposure))
		return domain.CorrectionEvent{}, false, nil
	case now.Sub(g.breachSince) <= g.cfg.Persistence:
		g.mu.Unlock()
		return domain.CorrectionEvent{}, false, nil
	}
	g.breached = false
	g.mu.Unlock()

	evt := domain.CorrectionEvent{Exposure: exposure, FiredAt: now}
	switch {
	case exposure > g.cfg.HardLimit:
		evt.Excess = exposure - g.cfg.SoftLimit
		evt.Side = domain.OrderSideSell
	case exposure < -g.cfg.HardLimit:
		evt.Excess = -g.cfg.SoftLimit - exposure
		evt.Side = domain.OrderSideBuy
	default:
		g.logger.InfoContext(ctx, "breach persisted between bands, no correction", slog.Int64("exposure", exposure))
		return evt, true, nil
	}
	evt.PerLeg = (evt.Excess + correctionLegs - 1) / correctionLegs

	for _, id := range g.positions.Instruments() {
		net := pos[id]
		if (evt.Side == domain.OrderSideSell && net <= 0) || (evt.Side == domain.OrderSideBuy && net >= 0) {
			continue
		}
		touch, ok := g.touch(id, evt.Side)
		if !ok {
			continue
		}
		order := domain.Order{
			Instrument:  id,
			Side:        evt.Side,
			Price:       touch.Price,
			Volume:      min(abs(net), evt.PerLeg),
			TimeInForce: domain.TimeInForceIOC,
			Strategy:    StrategyBasketGuard,
		}
		res, err := g.submit.SubmitUnrecorded(ctx, order)
		if err != nil {
			g.logger.WarnContext(ctx, "correction order failed",
				slog.String("instrument", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if res.Success {
			evt.Orders++
		}
	}

	g.mu.Lock()
	g.corrections++
	g.mu.Unlock()

	g.logger.WarnContext(ctx, "basket correction",
		slog.Int64("exposure", exposure),
		slog.Int64("excess", evt.Excess),
		slog.Int64("per_leg", evt.PerLeg),
		slog.Int("orders", evt.Orders),
	)
	publishJSON(ctx, g.bus, g.logger, domain.ChannelCorrections, evt)
	if g.alert != nil {
		msg := fmt.Sprintf("exposure %d, %s %d per leg, %d orders accepted", exposure, evt.Side, evt.PerLeg, evt.Orders)
		if err := g.alert.Notify(ctx, domain.EventBasketCorrection, "Basket correction", msg); err != nil {
			g.logger.WarnContext(ctx, "correction alert failed", slog.String("error", err.Error()))
		}
	}
	return evt, true, nil
}

func (g *BasketGuard) touch(instrument string, side domain.OrderSide) (domain.PriceLevel, bool) {
	if side == domain.OrderSideSell {
		return g.market.BestBid(instrument)
	}
	return g.market.BestAsk(instrument)
}

// DynamicGridThreshold returns the exit threshold for auto-calibration. It is
// halved while |exposure| exceeds the pressure share of the hard band.
func (g *BasketGuard) DynamicGridThreshold(ctx context.Context) float64 {
	exposure, _, err := g.positions.Exposure(ctx)
	if err != nil {
		g.logger.DebugContext(ctx, "exposure unavailable, using base threshold", slog.String("error", err.Error()))
		return g.cfg.GridThreshold
	}
	if float64(abs(exposure)) > g.cfg.PressureRatio*float64(g.cfg.HardLimit) {
		return g.cfg.GridThreshold / 2
	}
	return g.cfg.GridThreshold
}

// BreachSince returns when the current breach started.
func (g *BasketGuard) BreachSince() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.breachSince, g.breached
}

// Corrections returns how many times the persistence window elapsed beyond
// the hard band.
func (g *BasketGuard) Corrections() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.corrections
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
