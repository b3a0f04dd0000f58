// Package ledger keeps the local FIFO cost-basis view of open lots. It is an
// approximation used to pick which lots to exit; authoritative exposure always
// comes from the exchange position query.
package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

type book struct {
	longs    []domain.Lot
	shorts   []domain.Lot
	realized decimal.Decimal
}

// Ledger holds per-instrument long and short lot queues, oldest first.
// The trading loop is the only writer; the mutex exists for API readers.
type Ledger struct {
	mu    sync.RWMutex
	books map[string]*book
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{books: make(map[string]*book)}
}

func (l *Ledger) bookFor(instrument string) *book {
	b, ok := l.books[instrument]
	if !ok {
		b = &book{}
		l.books[instrument] = b
	}
	return b
}

// RecordTrade applies a fill. A buy first offsets short lots oldest-first and
// any leftover opens a long lot; a sell is the mirror image.
func (l *Ledger) RecordTrade(instrument string, side domain.OrderSide, price float64, volume int64) error {
	if volume <= 0 || !side.Valid() {
		return fmt.Errorf("ledger: record %s %s %d: %w", instrument, side, volume, domain.ErrInvalidOrder)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bookFor(instrument)
	px := decimal.NewFromFloat(price)
	remaining := volume

	opposite := &b.longs
	if side == domain.OrderSideBuy {
		opposite = &b.shorts
	}
	for remaining > 0 && len(*opposite) > 0 {
		head := &(*opposite)[0]
		matched := min(head.Volume, remaining)
		b.realized = b.realized.Add(realizedOn(side, decimal.NewFromFloat(head.Price), px, matched))
		if head.Volume <= remaining {
			remaining -= head.Volume
			*opposite = (*opposite)[1:]
			continue
		}
		head.Volume -= remaining
		remaining = 0
	}

	if remaining > 0 {
		lot := domain.Lot{Price: price, Volume: remaining}
		if side == domain.OrderSideBuy {
			b.longs = append(b.longs, lot)
		} else {
			b.shorts = append(b.shorts, lot)
		}
	}
	return nil
}

// realizedOn is the P&L of closing volume units opened at entry with a
// closing order on side at exit.
func realizedOn(side domain.OrderSide, entry, exit decimal.Decimal, volume int64) decimal.Decimal {
	diff := exit.Sub(entry)
	if side == domain.OrderSideBuy {
		// buying back a short
		diff = entry.Sub(exit)
	}
	return diff.Mul(decimal.NewFromInt(volume))
}

// Longs returns a copy of the long lots for instrument, oldest first.
func (l *Ledger) Longs(instrument string) []domain.Lot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.books[instrument]; ok {
		return append([]domain.Lot(nil), b.longs...)
	}
	return nil
}

// Shorts returns a copy of the short lots for instrument, oldest first.
func (l *Ledger) Shorts(instrument string) []domain.Lot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.books[instrument]; ok {
		return append([]domain.Lot(nil), b.shorts...)
	}
	return nil
}

// PopLong removes the oldest long lot after it was exited at price.
func (l *Ledger) PopLong(instrument string, price float64) (domain.Lot, bool) {
	return l.pop(instrument, domain.OrderSideSell, price)
}

// PopShort removes the oldest short lot after it was exited at price.
func (l *Ledger) PopShort(instrument string, price float64) (domain.Lot, bool) {
	return l.pop(instrument, domain.OrderSideBuy, price)
}

func (l *Ledger) pop(instrument string, exitSide domain.OrderSide, price float64) (domain.Lot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[instrument]
	if !ok {
		return domain.Lot{}, false
	}
	queue := &b.longs
	if exitSide == domain.OrderSideBuy {
		queue = &b.shorts
	}
	if len(*queue) == 0 {
		return domain.Lot{}, false
	}
	lot := (*queue)[0]
	*queue = (*queue)[1:]
	b.realized = b.realized.Add(realizedOn(exitSide, decimal.NewFromFloat(lot.Price), decimal.NewFromFloat(price), lot.Volume))
	return lot, true
}

// Net returns the sum of long lot volume minus the sum of short lot volume.
func (l *Ledger) Net(instrument string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.books[instrument]
	if !ok {
		return 0
	}
	var net int64
	for _, lot := range b.longs {
		net += lot.Volume
	}
	for _, lot := range b.shorts {
		net -= lot.Volume
	}
	return net
}

// Realized returns the accumulated realized P&L for instrument.
func (l *Ledger) Realized(instrument string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.books[instrument]; ok {
		return b.realized
	}
	return decimal.Zero
}

// InstrumentView is the JSON shape of one instrument's lots.
type InstrumentView struct {
	Longs    []domain.Lot `json:"longs"`
	Shorts   []domain.Lot `json:"shorts"`
	Net      int64        `json:"net"`
	Realized string       `json:"realized_pnl"`
}

// Snapshot returns a copy of every instrument's lots for the status API.
func (l *Ledger) Snapshot() map[string]InstrumentView {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]InstrumentView, len(l.books))
	for id, b := range l.books {
		v := InstrumentView{
			Longs:    append([]domain.Lot{}, b.longs...),
			Shorts:   append([]domain.Lot{}, b.shorts...),
			Realized: b.realized.StringFixed(4),
		}
		for _, lot := range b.longs {
			v.Net += lot.Volume
		}
		for _, lot := range b.shorts {
			v.Net -= lot.Volume
		}
		out[id] = v
	}
	return out
}
