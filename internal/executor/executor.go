// Package executor submits strategy orders to the exchange and keeps the lot
// ledger in step with accepted orders.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/basketbot/internal/domain"
	"github.com/alanyoungcy/basketbot/internal/service"
)

// OrderPlacer is the exchange's order entry.
type OrderPlacer interface {
	InsertOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
}

// Recorder applies accepted orders to the lot ledger.
type Recorder interface {
	RecordTrade(instrument string, side domain.OrderSide, price float64, volume int64) error
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Stats counts submissions since start.
type Stats struct {
	Orders     int64 `json:"orders"`
	Accepted   int64 `json:"accepted"`
	Rejections int64 `json:"rejections"`
	Failures   int64 `json:"failures"`
}

// Executor is the single path from strategies to the exchange. Accepted
// orders submitted with Submit are recorded in the ledger before it returns,
// so later strategies in the same tick see them.
type Executor struct {
	placer  OrderPlacer
	ledger  Recorder
	journal *service.TradeService
	logger  *slog.Logger
	now     func() time.Time

	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration
	alert      Alerter
	alertDedup *Dedup

	mu    sync.Mutex
	stats Stats
}

// NewExecutor creates an Executor. journal may be nil.
func NewExecutor(placer OrderPlacer, ledger Recorder, journal *service.TradeService, logger *slog.Logger) *Executor {
	return &Executor{
		placer:     placer,
		ledger:     ledger,
		journal:    journal,
		logger:     logger.With(slog.String("component", "executor")),
		now:        time.Now,
		alertDedup: NewDedup(time.Minute),
	}
}

// WithRateLimiter throttles submissions to limit per window. Orders over the
// limit are rejected locally and never reach the exchange.
func (e *Executor) WithRateLimiter(rl domain.RateLimiter, limit int, window time.Duration) *Executor {
	e.limiter = rl
	e.rateLimit = limit
	e.rateWindow = window
	return e
}

// WithAlerter sends order_rejected notifications, at most one per instrument
// and reason per minute.
func (e *Executor) WithAlerter(a Alerter) *Executor {
	e.alert = a
	return e
}

// Submit sends an IOC order and records it in the ledger when accepted.
func (e *Executor) Submit(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	return e.submit(ctx, order, true)
}

// SubmitUnrecorded sends an order without touching the ledger. Basket
// corrections, lot exits and the startup flatten use it.
func (e *Executor) SubmitUnrecorded(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	return e.submit(ctx, order, false)
}

// SubmitLegs sends the legs of one opportunity in order and records each
// accepted leg. A transport error stops the remaining legs.
func (e *Executor) SubmitLegs(ctx context.Context, legs []domain.Order) ([]domain.OrderResult, error) {
	results := make([]domain.OrderResult, 0, len(legs))
	for _, leg := range legs {
		res, err := e.submit(ctx, leg, true)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Executor) submit(ctx context.Context, order domain.Order, record bool) (domain.OrderResult, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.TimeInForce == "" {
		order.TimeInForce = domain.TimeInForceIOC
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = e.now().UTC()
	}
	log := e.logger.With(
		slog.String("order_id", order.ID),
		slog.String("strategy", order.Strategy),
		slog.String("instrument", order.Instrument),
		slog.String("side", string(order.Side)),
		slog.Float64("price", order.Price),
		slog.Int64("volume", order.Volume),
	)

	if err := order.Validate(); err != nil {
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: err.Error()},
			fmt.Errorf("executor: %s %s: %w", order.Instrument, order.Side, err)
	}

	if !e.allow(ctx) {
		res := domain.OrderResult{Status: domain.OrderStatusRejected, Message: domain.ErrRateLimited.Error()}
		e.finish(ctx, log, order, res, nil, false)
		return res, nil
	}

	res, err := e.placer.InsertOrder(ctx, order)
	if err != nil {
		res.Success = false
		res.Status = domain.OrderStatusFailed
		e.finish(ctx, log, order, res, err, false)
		return res, fmt.Errorf("executor: insert %s: %w", order.Instrument, err)
	}

	recorded := false
	if res.Success && record {
		if err := e.ledger.RecordTrade(order.Instrument, order.Side, order.Price, order.Volume); err != nil {
			log.Error("ledger record failed", slog.String("error", err.Error()))
		} else {
			recorded = true
		}
	}
	e.finish(ctx, log, order, res, nil, recorded)
	return res, nil
}

// allow consults the rate limiter. Limiter errors let the order through.
func (e *Executor) allow(ctx context.Context) bool {
	if e.limiter == nil || e.rateLimit <= 0 {
		return true
	}
	ok, err := e.limiter.Allow(ctx, "orders", e.rateLimit, e.rateWindow)
	if err != nil {
		e.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return true
	}
	return ok
}

// finish updates counters, logs, journals and alerts for one attempt.
func (e *Executor) finish(ctx context.Context, log *slog.Logger, order domain.Order, res domain.OrderResult, err error, recorded bool) {
	e.mu.Lock()
	e.stats.Orders++
	switch {
	case err != nil:
		e.stats.Failures++
	case res.Success:
		e.stats.Accepted++
	default:
		e.stats.Rejections++
	}
	e.mu.Unlock()

	rec := domain.TradeRecord{
		ID:         order.ID,
		OrderID:    res.OrderID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Price:      order.Price,
		Volume:     order.Volume,
		Strategy:   order.Strategy,
		Status:     res.Status,
		Reason:     res.Message,
		Recorded:   recorded,
		CreatedAt:  order.CreatedAt,
	}

	switch {
	case err != nil:
		rec.Reason = err.Error()
		log.WarnContext(ctx, "order failed", slog.String("error", err.Error()))
	case res.Success:
		log.InfoContext(ctx, "order accepted", slog.String("exchange_id", res.OrderID), slog.Bool("recorded", recorded))
	default:
		log.WarnContext(ctx, "order rejected", slog.String("reason", res.Message))
		e.alertRejected(ctx, order, res.Message)
	}
	e.journal.Journal(rec)
}

func (e *Executor) alertRejected(ctx context.Context, order domain.Order, reason string) {
	if e.alert == nil || e.alertDedup.IsDuplicate(order.Instrument+"|"+reason) {
		return
	}
	msg := fmt.Sprintf("%s %s %d @ %.4f (%s): %s", order.Instrument, order.Side, order.Volume, order.Price, order.Strategy, reason)
	if err := e.alert.Notify(ctx, domain.EventOrderRejected, "Order rejected", msg); err != nil {
		e.logger.WarnContext(ctx, "rejection alert failed", slog.String("error", err.Error()))
	}
}

// Stats returns a copy of the submission counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
