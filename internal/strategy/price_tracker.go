package strategy

import "sync"

// Quote is the last-known touch of an instrument.
type Quote struct {
	Bid    float64
	Ask    float64
	HasBid bool
	HasAsk bool
}

// PriceTracker keeps the last-known bid and ask per instrument. A side is
// only overwritten when a book shows that side; it is never cleared.
type PriceTracker struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewPriceTracker creates an empty tracker.
func NewPriceTracker() *PriceTracker {
	return &PriceTracker{quotes: make(map[string]Quote)}
}

// Track records whichever sides are present.
func (pt *PriceTracker) Track(instrument string, bid float64, hasBid bool, ask float64, hasAsk bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	q := pt.quotes[instrument]
	if hasBid {
		q.Bid, q.HasBid = bid, true
	}
	if hasAsk {
		q.Ask, q.HasAsk = ask, true
	}
	pt.quotes[instrument] = q
}

// Get returns the last-known quote for instrument.
func (pt *PriceTracker) Get(instrument string) (Quote, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	q, ok := pt.quotes[instrument]
	return q, ok
}

// Averages returns the mean last-known bid and ask across instruments. ok is
// false unless every instrument has both sides.
func (pt *PriceTracker) Averages(instruments []string) (bid, ask float64, ok bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	if len(instruments) == 0 {
		return 0, 0, false
	}
	for _, id := range instruments {
		q := pt.quotes[id]
		if !q.HasBid || !q.HasAsk {
			return 0, 0, false
		}
		bid += q.Bid
		ask += q.Ask
	}
	n := float64(len(instruments))
	return bid / n, ask / n, true
}
