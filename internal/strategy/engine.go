package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/basketbot/internal/domain"
	"github.com/alanyoungcy/basketbot/internal/executor"
	"github.com/alanyoungcy/basketbot/internal/service"
)

// StrategyFlatten tags the startup liquidation orders.
const StrategyFlatten = "flatten"

// OrderCanceller clears resting orders on the exchange.
type OrderCanceller interface {
	DeleteOrders(ctx context.Context, instrument string) error
}

// OrderStats exposes executor counters.
type OrderStats interface {
	Stats() executor.Stats
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EngineOptions configures the cycle driver.
type EngineOptions struct {
	Mode           string
	Interval       time.Duration
	FlattenOnStart bool
	// Trading false refreshes the market view each tick without running
	// any strategy or the basket guard.
	Trading bool
}

// Engine runs one trading cycle per tick: refresh the market view, run the
// strategies in registration order, then let the basket guard check exposure.
// Everything happens on the calling goroutine.
type Engine struct {
	registry  *Registry
	cycle     *Cycle
	positions *service.PositionService
	canceller OrderCanceller
	journal   *service.TradeService
	opts      EngineOptions
	logger    *slog.Logger

	orderStats OrderStats
	bus        domain.SignalBus
	alert      Alerter

	mu        sync.Mutex
	started   time.Time
	running   bool
	cycles    int64
	lastError string
}

// NewEngine creates an Engine.
func NewEngine(
	registry *Registry,
	cycle *Cycle,
	positions *service.PositionService,
	canceller OrderCanceller,
	journal *service.TradeService,
	opts EngineOptions,
	logger *slog.Logger,
) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	return &Engine{
		registry:  registry,
		cycle:     cycle,
		positions: positions,
		canceller: canceller,
		journal:   journal,
		opts:      opts,
		logger:    logger.With(slog.String("component", "engine")),
	}
}

// WithOrderStats includes executor counters in Status.
func (e *Engine) WithOrderStats(s OrderStats) *Engine {
	e.orderStats = s
	return e
}

// WithBus enables status publishing.
func (e *Engine) WithBus(bus domain.SignalBus) *Engine {
	e.bus = bus
	return e
}

// WithAlerter sends engine_error notifications.
func (e *Engine) WithAlerter(a Alerter) *Engine {
	e.alert = a
	return e
}

// Registry returns the strategy registry.
func (e *Engine) Registry() *Registry { return e.registry }

// RunCycle executes one tick.
func (e *Engine) RunCycle(ctx context.Context) {
	defer func() {
		e.mu.Lock()
		e.cycles++
		e.mu.Unlock()
	}()

	if err := e.cycle.Market.Refresh(ctx); err != nil {
		e.logger.WarnContext(ctx, "market refresh incomplete", slog.String("error", err.Error()))
	}
	if !e.opts.Trading {
		return
	}

	for _, s := range e.registry.Ordered() {
		if ctx.Err() != nil {
			return
		}
		fired, err := s.Run(ctx, e.cycle)
		if fired {
			e.registry.markFired(s.Name(), time.Now())
		}
		if err != nil {
			e.registry.markError(s.Name(), err)
			e.recordError(err)
			e.logger.WarnContext(ctx, "strategy aborted",
				slog.String("strategy", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, _, err := e.cycle.Guard.CheckAndCorrect(ctx); err != nil {
		e.recordError(err)
		e.logger.WarnContext(ctx, "basket check failed", slog.String("error", err.Error()))
	}
}

// Run bootstraps the exchange state and then runs cycles until ctx is
// cancelled. Only a bootstrap failure is returned.
func (e *Engine) Run(ctx context.Context) error {
	if e.opts.Trading {
		if err := e.Bootstrap(ctx); err != nil {
			e.notify(ctx, domain.EventEngineError, "Engine bootstrap failed", err.Error())
			return err
		}
	}

	e.mu.Lock()
	e.started = time.Now()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.journal.Audit(ctx, domain.EventEngineStarted, map[string]any{
		"mode":       e.opts.Mode,
		"strategies": e.registry.List(),
	})
	e.logger.InfoContext(ctx, "engine started",
		slog.String("mode", e.opts.Mode),
		slog.Duration("interval", e.opts.Interval),
		slog.Any("strategies", e.registry.List()),
	)
	defer e.logger.Info("engine stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		e.RunCycle(ctx)
		timer.Reset(e.opts.Interval)
	}
}

// Bootstrap cancels resting orders on every instrument and, when configured,
// flattens every open position with limit orders at the touch.
func (e *Engine) Bootstrap(ctx context.Context) error {
	instruments := e.positions.Instruments()
	for _, id := range instruments {
		if err := e.canceller.DeleteOrders(ctx, id); err != nil {
			return fmt.Errorf("engine: bootstrap: %w", err)
		}
	}
	if !e.opts.FlattenOnStart {
		return nil
	}

	if err := e.cycle.Market.Refresh(ctx); err != nil {
		e.logger.WarnContext(ctx, "market refresh incomplete before flatten", slog.String("error", err.Error()))
	}
	pos, err := e.positions.Positions(ctx)
	if err != nil {
		return fmt.Errorf("engine: bootstrap: %w", err)
	}

	sent := 0
	for _, id := range instruments {
		net := pos[id]
		if net == 0 {
			continue
		}
		side := domain.OrderSideSell
		touch, ok := e.cycle.Market.BestBid(id)
		if net < 0 {
			side = domain.OrderSideBuy
			touch, ok = e.cycle.Market.BestAsk(id)
		}
		if !ok {
			e.logger.WarnContext(ctx, "cannot flatten without a touch", slog.String("instrument", id), slog.Int64("position", net))
			continue
		}
		volume := net
		if volume < 0 {
			volume = -volume
		}
		_, err := e.cycle.Exec.SubmitUnrecorded(ctx, domain.Order{
			Instrument:  id,
			Side:        side,
			Price:       touch.Price,
			Volume:      volume,
			TimeInForce: domain.TimeInForceLimit,
			Strategy:    StrategyFlatten,
		})
		if err != nil {
			return fmt.Errorf("engine: flatten %s: %w", id, err)
		}
		sent++
	}
	e.journal.Audit(ctx, domain.EventFlatten, map[string]any{"positions": pos, "orders": sent})
	e.logger.InfoContext(ctx, "bootstrap complete", slog.Int("flatten_orders", sent))
	return nil
}

// Status summarises the engine for the API and the status channel.
func (e *Engine) Status(ctx context.Context) domain.EngineStatus {
	e.mu.Lock()
	st := domain.EngineStatus{
		Mode:      e.opts.Mode,
		Running:   e.running,
		Cycles:    e.cycles,
		LastError: e.lastError,
		Fires:     make(map[string]int64),
	}
	if e.running {
		st.UptimeSeconds = int64(time.Since(e.started).Seconds())
	}
	e.mu.Unlock()

	for _, info := range e.registry.ListInfo() {
		st.Fires[info.Name] = info.Fires
	}
	if e.orderStats != nil {
		s := e.orderStats.Stats()
		st.Orders = s.Orders
		st.Rejections = s.Rejections
	}
	if e.cycle.Guard != nil {
		st.Corrections = e.cycle.Guard.Corrections()
		if since, ok := e.cycle.Guard.BreachSince(); ok {
			st.BreachSince = &since
		}
	}
	if exposure, pos, err := e.positions.Exposure(ctx); err == nil {
		st.Exposure = exposure
		st.Positions = pos
	}
	return st
}

// PublishStatus publishes Status on the status channel every interval until
// ctx is cancelled.
func (e *Engine) PublishStatus(ctx context.Context, interval time.Duration) error {
	if e.bus == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			payload, err := json.Marshal(e.Status(ctx))
			if err != nil {
				continue
			}
			if err := e.bus.Publish(ctx, domain.ChannelStatus, payload); err != nil {
				e.logger.DebugContext(ctx, "status publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = err.Error()
}

func (e *Engine) notify(ctx context.Context, event, title, msg string) {
	if e.alert == nil {
		return
	}
	if err := e.alert.Notify(ctx, event, title, msg); err != nil {
		e.logger.WarnContext(ctx, "alert failed", slog.String("error", err.Error()))
	}
}
