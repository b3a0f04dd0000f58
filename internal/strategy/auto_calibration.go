package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// AutoCalibration exits lots that have moved in our favour by more than the
// grid threshold. Lots are walked oldest-first and the walk stops at the
// first lot that does not qualify.
type AutoCalibration struct{}

// NewAutoCalibration creates the exit strategy.
func NewAutoCalibration() *AutoCalibration { return &AutoCalibration{} }

// Name implements Strategy.
func (s *AutoCalibration) Name() string { return "auto_calibration" }

// Run implements Strategy.
func (s *AutoCalibration) Run(ctx context.Context, c *Cycle) (bool, error) {
	fired := false
	for _, id := range c.Market.Instruments() {
		snap, ok := c.Market.Book(id)
		if !ok {
			continue
		}
		threshold := c.Guard.DynamicGridThreshold(ctx)

		if bid, ok := snap.BestBid(); ok {
			n, err := s.exitLongs(ctx, c, id, bid.Price, threshold)
			fired = fired || n > 0
			if err != nil {
				return fired, err
			}
		}
		if ask, ok := snap.BestAsk(); ok {
			n, err := s.exitShorts(ctx, c, id, ask.Price, threshold)
			fired = fired || n > 0
			if err != nil {
				return fired, err
			}
		}
	}
	return fired, nil
}

func (s *AutoCalibration) exitLongs(ctx context.Context, c *Cycle, id string, bid, threshold float64) (int, error) {
	exits := 0
	for _, lot := range c.Ledger.Longs(id) {
		if bid <= lot.Price+threshold {
			break
		}
		accepted, err := s.exit(ctx, c, id, domain.OrderSideSell, bid, lot)
		if err != nil {
			return exits, err
		}
		exits++
		if !accepted {
			break
		}
		c.Ledger.PopLong(id, bid)
	}
	return exits, nil
}

func (s *AutoCalibration) exitShorts(ctx context.Context, c *Cycle, id string, ask, threshold float64) (int, error) {
	exits := 0
	for _, lot := range c.Ledger.Shorts(id) {
		if ask >= lot.Price-threshold {
			break
		}
		accepted, err := s.exit(ctx, c, id, domain.OrderSideBuy, ask, lot)
		if err != nil {
			return exits, err
		}
		exits++
		if !accepted {
			break
		}
		c.Ledger.PopShort(id, ask)
	}
	return exits, nil
}

func (s *AutoCalibration) exit(ctx context.Context, c *Cycle, id string, side domain.OrderSide, price float64, lot domain.Lot) (bool, error) {
	c.Logger.InfoContext(ctx, "exiting lot",
		slog.String("strategy", s.Name()),
		slog.String("instrument", id),
		slog.Float64("entry", lot.Price),
		slog.Float64("exit", price),
		slog.Int64("volume", lot.Volume),
	)
	res, err := c.Exec.SubmitUnrecorded(ctx, domain.Order{
		Instrument: id,
		Side:       side,
		Price:      price,
		Volume:     lot.Volume,
		Strategy:   s.Name(),
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return res.Success, nil
}
