// Package calibrate samples the touch of every instrument for a while and
// reports the low and high percentiles of bids and asks, used to pick
// thresholds by hand before trading.
package calibrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// BookSource returns the current book for an instrument.
type BookSource interface {
	GetPriceBook(ctx context.Context, instrument string) (domain.OrderbookSnapshot, bool, error)
}

// Options controls sampling.
type Options struct {
	Samples  int
	Interval time.Duration
	LowerPct float64
	UpperPct float64
}

// Range is the observed spread of one instrument's touch.
type Range struct {
	AskLow  float64 `toml:"ask_low" json:"ask_low"`
	AskHigh float64 `toml:"ask_high" json:"ask_high"`
	BidLow  float64 `toml:"bid_low" json:"bid_low"`
	BidHigh float64 `toml:"bid_high" json:"bid_high"`
	Samples int     `toml:"samples" json:"samples"`
}

// Sampler collects touch prices.
type Sampler struct {
	source      BookSource
	instruments []string
	opts        Options
	logger      *slog.Logger
}

// NewSampler creates a Sampler.
func NewSampler(source BookSource, instruments []string, opts Options, logger *slog.Logger) *Sampler {
	return &Sampler{
		source:      source,
		instruments: append([]string(nil), instruments...),
		opts:        opts,
		logger:      logger.With(slog.String("component", "calibrate")),
	}
}

// Run samples every instrument opts.Samples times and returns the percentile
// range of each. Instruments never seen with both sides are omitted.
func (s *Sampler) Run(ctx context.Context) (map[string]Range, error) {
	asks := make(map[string][]float64, len(s.instruments))
	bids := make(map[string][]float64, len(s.instruments))

	s.logger.InfoContext(ctx, "sampling started", slog.Int("samples", s.opts.Samples), slog.Duration("interval", s.opts.Interval))
	for i := 0; i < s.opts.Samples; i++ {
		for _, id := range s.instruments {
			snap, ok, err := s.source.GetPriceBook(ctx, id)
			if err != nil {
				s.logger.DebugContext(ctx, "sample failed", slog.String("instrument", id), slog.String("error", err.Error()))
				continue
			}
			if !ok || !snap.Tradeable() {
				continue
			}
			asks[id] = append(asks[id], snap.Asks[0].Price)
			bids[id] = append(bids[id], snap.Bids[0].Price)
		}
		if i == s.opts.Samples-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("calibrate: %w", ctx.Err())
		case <-time.After(s.opts.Interval):
		}
	}
	s.logger.InfoContext(ctx, "sampling finished")

	out := make(map[string]Range, len(s.instruments))
	for _, id := range s.instruments {
		if len(asks[id]) == 0 {
			continue
		}
		r := Range{Samples: len(asks[id])}
		r.AskLow, r.AskHigh = Percentiles(asks[id], s.opts.LowerPct, s.opts.UpperPct)
		r.BidLow, r.BidHigh = Percentiles(bids[id], s.opts.LowerPct, s.opts.UpperPct)
		out[id] = r
	}
	return out, nil
}

// Percentiles sorts a copy of data and returns the values at the lower and
// upper fractions, indexing at floor(len*pct).
func Percentiles(data []float64, lower, upper float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	at := func(p float64) float64 {
		i := int(float64(len(sorted)) * p)
		return sorted[max(0, min(i, len(sorted)-1))]
	}
	return at(lower), at(upper)
}

// Write encodes ranges as TOML to w.
func Write(w io.Writer, ranges map[string]Range) error {
	if err := toml.NewEncoder(w).Encode(ranges); err != nil {
		return fmt.Errorf("calibrate: encode: %w", err)
	}
	return nil
}

// WriteFile encodes ranges as TOML to path.
func WriteFile(path string, ranges map[string]Range) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("calibrate: create %s: %w", path, err)
	}
	defer f.Close()
	return Write(f, ranges)
}
