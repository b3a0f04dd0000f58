package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// CrossListingArb sells one listing of the basket and buys the other when the
// sell listing's bid clears the buy listing's ask by more than the threshold.
type CrossListingArb struct {
	name      string
	sellOn    string
	buyOn     string
	threshold float64
}

// NewCrossListingArb creates an arbitrage that sells sellOn and buys buyOn.
func NewCrossListingArb(name, sellOn, buyOn string, threshold float64) *CrossListingArb {
	return &CrossListingArb{name: name, sellOn: sellOn, buyOn: buyOn, threshold: threshold}
}

// Name implements Strategy.
func (s *CrossListingArb) Name() string { return s.name }

// Run implements Strategy.
func (s *CrossListingArb) Run(ctx context.Context, c *Cycle) (bool, error) {
	sellBook, ok1 := c.Market.Book(s.sellOn)
	buyBook, ok2 := c.Market.Book(s.buyOn)
	if !ok1 || !ok2 || !sellBook.Tradeable() || !buyBook.Tradeable() {
		c.Logger.DebugContext(ctx, "book missing", slog.String("strategy", s.name))
		return false, nil
	}

	bid, _ := sellBook.BestBid()
	ask, _ := buyBook.BestAsk()
	if bid.Price <= ask.Price+s.threshold {
		return false, nil
	}

	volume := min(
		bid.Volume,
		ask.Volume,
		c.Risk.Allowed(ctx, s.sellOn, domain.OrderSideSell),
		c.Risk.Allowed(ctx, s.buyOn, domain.OrderSideBuy),
	)
	if volume <= 0 {
		return false, nil
	}

	c.Logger.InfoContext(ctx, "listing dislocation",
		slog.String("strategy", s.name),
		slog.Float64("bid", bid.Price),
		slog.Float64("ask", ask.Price),
		slog.Int64("volume", volume),
	)
	_, err := c.Exec.SubmitLegs(ctx, []domain.Order{
		{Instrument: s.sellOn, Side: domain.OrderSideSell, Price: bid.Price, Volume: volume, Strategy: s.name},
		{Instrument: s.buyOn, Side: domain.OrderSideBuy, Price: ask.Price, Volume: volume, Strategy: s.name},
	})
	if err != nil {
		return true, fmt.Errorf("%s: %w", s.name, err)
	}
	return true, nil
}
