package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// BookSource returns the current book for an instrument. The bool is false
// when no book exists.
type BookSource interface {
	GetPriceBook(ctx context.Context, instrument string) (domain.OrderbookSnapshot, bool, error)
}

// MarketView holds the books fetched at the top of the current tick. Each
// Refresh replaces every book wholesale.
type MarketView struct {
	source      BookSource
	instruments []string
	cache       domain.OrderbookCache
	bus         domain.SignalBus
	logger      *slog.Logger

	mu    sync.RWMutex
	books map[string]domain.OrderbookSnapshot

	mirroring atomic.Bool
}

// NewMarketView creates a view over the given instruments.
func NewMarketView(source BookSource, instruments []string, logger *slog.Logger) *MarketView {
	return &MarketView{
		source:      source,
		instruments: append([]string(nil), instruments...),
		logger:      logger.With(slog.String("component", "market_view")),
		books:       make(map[string]domain.OrderbookSnapshot),
	}
}

// WithMirror copies every refreshed book to cache and announces it on bus.
// Either may be nil.
func (v *MarketView) WithMirror(cache domain.OrderbookCache, bus domain.SignalBus) *MarketView {
	v.cache = cache
	v.bus = bus
	return v
}

// Refresh fetches a fresh book for every instrument. A failed or absent
// fetch leaves that instrument without a book for this tick; the returned
// error joins the transport failures.
func (v *MarketView) Refresh(ctx context.Context) error {
	next := make(map[string]domain.OrderbookSnapshot, len(v.instruments))
	var errs []error
	for _, id := range v.instruments {
		snap, ok, err := v.source.GetPriceBook(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("market_view: refresh %s: %w", id, err))
			continue
		}
		if !ok {
			continue
		}
		if snap.Instrument == "" {
			snap.Instrument = id
		}
		next[id] = snap
	}

	v.mu.Lock()
	v.books = next
	v.mu.Unlock()

	v.mirror(next)
	return errors.Join(errs...)
}

// mirror pushes books to the cache and bus off the trading goroutine. A
// mirror still in flight causes this tick's books to be skipped.
func (v *MarketView) mirror(books map[string]domain.OrderbookSnapshot) {
	if (v.cache == nil && v.bus == nil) || len(books) == 0 {
		return
	}
	if !v.mirroring.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer v.mirroring.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for id, snap := range books {
			if v.cache != nil {
				if err := v.cache.SetSnapshot(ctx, snap); err != nil {
					v.logger.Debug("book mirror failed",
						slog.String("instrument", id),
						slog.String("error", err.Error()),
					)
				}
			}
			publishJSON(ctx, v.bus, v.logger, domain.ChannelBookPrefix+id, snap)
		}
	}()
}

// Book returns this tick's book for instrument.
func (v *MarketView) Book(instrument string) (domain.OrderbookSnapshot, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	snap, ok := v.books[instrument]
	return snap, ok
}

// Tradeable reports whether instrument has both a bid and an ask this tick.
func (v *MarketView) Tradeable(instrument string) bool {
	snap, ok := v.Book(instrument)
	return ok && snap.Tradeable()
}

// BestBid returns the best bid for instrument this tick.
func (v *MarketView) BestBid(instrument string) (domain.PriceLevel, bool) {
	snap, ok := v.Book(instrument)
	if !ok {
		return domain.PriceLevel{}, false
	}
	return snap.BestBid()
}

// BestAsk returns the best ask for instrument this tick.
func (v *MarketView) BestAsk(instrument string) (domain.PriceLevel, bool) {
	snap, ok := v.Book(instrument)
	if !ok {
		return domain.PriceLevel{}, false
	}
	return snap.BestAsk()
}

// Snapshot returns a copy of every book held this tick.
func (v *MarketView) Snapshot() map[string]domain.OrderbookSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]domain.OrderbookSnapshot, len(v.books))
	for k, s := range v.books {
		out[k] = s
	}
	return out
}

// Instruments returns the instruments this view refreshes.
func (v *MarketView) Instruments() []string {
	return append([]string(nil), v.instruments...)
}
