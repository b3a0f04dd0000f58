package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// HedgeConfig holds the fair-value hedge parameters.
type HedgeConfig struct {
	Basket       string
	Constituents []string
	Threshold    float64
	LotCap       int64
	// Ratio is how many basket units trade against one unit of each
	// constituent.
	Ratio int64
}

// FairValueHedge trades the basket against its constituents when the basket
// price strays from the constituents' average by more than the threshold.
// Constituent prices are the last-known quotes, which survive ticks where a
// book goes missing.
type FairValueHedge struct {
	cfg     HedgeConfig
	tracker *PriceTracker
}

// NewFairValueHedge creates the hedge strategy.
func NewFairValueHedge(cfg HedgeConfig) *FairValueHedge {
	if cfg.Ratio <= 0 {
		cfg.Ratio = 1
	}
	return &FairValueHedge{cfg: cfg, tracker: NewPriceTracker()}
}

// Name implements Strategy.
func (s *FairValueHedge) Name() string { return "fair_value_hedge" }

// Tracker exposes the last-known constituent quotes.
func (s *FairValueHedge) Tracker() *PriceTracker { return s.tracker }

// Run implements Strategy.
func (s *FairValueHedge) Run(ctx context.Context, c *Cycle) (bool, error) {
	for _, id := range s.cfg.Constituents {
		if snap, ok := c.Market.Book(id); ok {
			bid, hasBid := snap.BestBid()
			ask, hasAsk := snap.BestAsk()
			s.tracker.Track(id, bid.Price, hasBid, ask.Price, hasAsk)
		}
	}

	basket, ok := c.Market.Book(s.cfg.Basket)
	if !ok || !basket.Tradeable() {
		return false, nil
	}
	for _, id := range s.cfg.Constituents {
		if !c.Market.Tradeable(id) {
			return false, nil
		}
	}
	avgBid, avgAsk, ok := s.tracker.Averages(s.cfg.Constituents)
	if !ok {
		return false, nil
	}

	basketBid, _ := basket.BestBid()
	basketAsk, _ := basket.BestAsk()

	switch {
	case basketAsk.Price < avgBid-s.cfg.Threshold:
		return s.hedge(ctx, c, domain.OrderSideBuy, basketAsk, avgBid)
	case basketBid.Price > avgAsk+s.cfg.Threshold:
		return s.hedge(ctx, c, domain.OrderSideSell, basketBid, avgAsk)
	}
	return false, nil
}

// hedge trades the basket on basketSide and every constituent on the other
// side. The unit volume is the minimum over all touches, the lot cap and the
// risk allowance of every leg, so either every leg is sized or none is.
func (s *FairValueHedge) hedge(ctx context.Context, c *Cycle, basketSide domain.OrderSide, basketTouch domain.PriceLevel, fair float64) (bool, error) {
	legSide := basketSide.Opposite()
	ratio := s.cfg.Ratio

	v := min(basketTouch.Volume/ratio, s.cfg.LotCap, c.Risk.Allowed(ctx, s.cfg.Basket, basketSide)/ratio)
	touches := make([]domain.PriceLevel, len(s.cfg.Constituents))
	for i, id := range s.cfg.Constituents {
		snap, _ := c.Market.Book(id)
		touch, _ := snap.Touch(legSide)
		touches[i] = touch
		v = min(v, touch.Volume, c.Risk.Allowed(ctx, id, legSide))
	}
	if v <= 0 {
		return false, nil
	}

	legs := make([]domain.Order, 0, 1+len(s.cfg.Constituents))
	legs = append(legs, domain.Order{
		Instrument: s.cfg.Basket,
		Side:       basketSide,
		Price:      basketTouch.Price,
		Volume:     ratio * v,
		Strategy:   s.Name(),
	})
	for i, id := range s.cfg.Constituents {
		legs = append(legs, domain.Order{
			Instrument: id,
			Side:       legSide,
			Price:      touches[i].Price,
			Volume:     v,
			Strategy:   s.Name(),
		})
	}

	c.Logger.InfoContext(ctx, "basket off fair value",
		slog.String("strategy", s.Name()),
		slog.String("basket_side", string(basketSide)),
		slog.Float64("basket_px", basketTouch.Price),
		slog.Float64("fair", fair),
		slog.Int64("units", v),
	)
	if _, err := c.Exec.SubmitLegs(ctx, legs); err != nil {
		return true, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return true, nil
}
