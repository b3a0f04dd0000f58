// Package strategy holds the trading strategies and the cycle driver that
// runs them once per tick.
package strategy

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/basketbot/internal/domain"
	"github.com/alanyoungcy/basketbot/internal/ledger"
	"github.com/alanyoungcy/basketbot/internal/service"
)

// Strategy is one decision rule evaluated every tick. Run reports whether
// the strategy submitted any order. A non-nil error aborts only this
// strategy for the tick.
type Strategy interface {
	Name() string
	Run(ctx context.Context, c *Cycle) (bool, error)
}

// Submitter is the executor as seen by strategies.
type Submitter interface {
	Submit(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	SubmitUnrecorded(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	SubmitLegs(ctx context.Context, legs []domain.Order) ([]domain.OrderResult, error)
}

// Cycle is the shared state handed to every strategy in a tick.
type Cycle struct {
	Market *service.MarketView
	Ledger *ledger.Ledger
	Risk   *service.RiskService
	Guard  *service.BasketGuard
	Exec   Submitter
	Logger *slog.Logger
}
