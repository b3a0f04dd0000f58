// Package paper implements an in-memory exchange that fills immediate orders
// against the current book and tracks positions locally.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// BookSource supplies live books, typically the gateway client. When nil the
// exchange serves books set with SetBook.
type BookSource interface {
	GetPriceBook(ctx context.Context, instrument string) (domain.OrderbookSnapshot, bool, error)
}

// Exchange is a simulated execution venue. Orders fill at the touch up to the
// touch volume; resting liquidity is never consumed and nothing rests.
type Exchange struct {
	upstream    BookSource
	maxPosition int64
	logger      *slog.Logger

	mu        sync.Mutex
	books     map[string]domain.OrderbookSnapshot
	positions map[string]int64
	orders    []domain.Order
	deletes   []string
	rejectFn  func(domain.Order) string
	posErr    error
}

// New creates a paper exchange seeded with positions. maxPosition mirrors the
// venue's per-instrument limit; zero disables it.
func New(upstream BookSource, positions map[string]int64, maxPosition int64, logger *slog.Logger) *Exchange {
	pos := make(map[string]int64, len(positions))
	for k, v := range positions {
		pos[k] = v
	}
	return &Exchange{
		upstream:    upstream,
		maxPosition: maxPosition,
		logger:      logger.With(slog.String("component", "paper_exchange")),
		books:       make(map[string]domain.OrderbookSnapshot),
		positions:   pos,
	}
}

// SetBook replaces the local book for an instrument.
func (e *Exchange) SetBook(snap domain.OrderbookSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[snap.Instrument] = snap
}

// ClearBook removes the local book for an instrument.
func (e *Exchange) ClearBook(instrument string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.books, instrument)
}

// SetPosition overrides the position for an instrument.
func (e *Exchange) SetPosition(instrument string, net int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions[instrument] = net
}

// RejectWhen installs a hook that rejects matching orders with the returned
// reason. An empty reason accepts the order.
func (e *Exchange) RejectWhen(fn func(domain.Order) string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectFn = fn
}

// FailPositions makes GetPositions return err until called again with nil.
func (e *Exchange) FailPositions(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.posErr = err
}

// Orders returns every order inserted so far.
func (e *Exchange) Orders() []domain.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Order(nil), e.orders...)
}

// ResetOrders forgets inserted orders.
func (e *Exchange) ResetOrders() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = nil
}

// Deletes returns the instruments passed to DeleteOrders.
func (e *Exchange) Deletes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deletes...)
}

// GetPriceBook implements the exchange contract.
func (e *Exchange) GetPriceBook(ctx context.Context, instrument string) (domain.OrderbookSnapshot, bool, error) {
	if e.upstream != nil {
		return e.upstream.GetPriceBook(ctx, instrument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.books[instrument]
	return snap, ok, nil
}

// GetPositions implements the exchange contract.
func (e *Exchange) GetPositions(_ context.Context) (map[string]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.posErr != nil {
		return nil, fmt.Errorf("paper: get positions: %w", e.posErr)
	}
	out := make(map[string]int64, len(e.positions))
	for k, v := range e.positions {
		out[k] = v
	}
	return out, nil
}

// InsertOrder fills the order against the touch. The fill is the smaller of
// the order volume and the touch volume when the touch price is marketable.
func (e *Exchange) InsertOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	if err := order.Validate(); err != nil {
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: err.Error()}, nil
	}

	book, ok, err := e.GetPriceBook(ctx, order.Instrument)
	if err != nil {
		return domain.OrderResult{Status: domain.OrderStatusFailed}, fmt.Errorf("paper: book for %s: %w", order.Instrument, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = append(e.orders, order)

	reject := func(reason string) (domain.OrderResult, error) {
		e.logger.Debug("paper order rejected",
			slog.String("instrument", order.Instrument),
			slog.String("side", string(order.Side)),
			slog.String("reason", reason),
		)
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: reason}, nil
	}

	if e.rejectFn != nil {
		if reason := e.rejectFn(order); reason != "" {
			return reject(reason)
		}
	}
	if e.maxPosition > 0 {
		next := e.positions[order.Instrument] + order.Side.Sign()*order.Volume
		if next > e.maxPosition || next < -e.maxPosition {
			return reject("position limit")
		}
	}
	if !ok {
		return reject("no book")
	}
	touch, ok := book.Touch(order.Side)
	if !ok {
		return reject("no liquidity")
	}
	marketable := touch.Price <= order.Price
	if order.Side == domain.OrderSideSell {
		marketable = touch.Price >= order.Price
	}
	if !marketable {
		return reject("not marketable")
	}

	filled := min(order.Volume, touch.Volume)
	e.positions[order.Instrument] += order.Side.Sign() * filled
	return domain.OrderResult{
		Success: true,
		OrderID: uuid.NewString(),
		Status:  domain.OrderStatusAccepted,
		Message: fmt.Sprintf("filled %d", filled),
	}, nil
}

// DeleteOrders implements the exchange contract. Nothing rests, so it only
// records the call.
func (e *Exchange) DeleteOrders(_ context.Context, instrument string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes = append(e.deletes, instrument)
	return nil
}
