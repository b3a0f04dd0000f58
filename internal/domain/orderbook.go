package domain

import "time"

// PriceLevel is a single price+volume entry in an orderbook.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// OrderbookSnapshot is a full snapshot of bids (price desc) and asks (price
// asc) for an instrument. Snapshots are replaced wholesale, never patched.
type OrderbookSnapshot struct {
	Instrument string       `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Tradeable reports whether both sides of the book have at least one level.
func (s OrderbookSnapshot) Tradeable() bool {
	return len(s.Bids) > 0 && len(s.Asks) > 0
}

// BestBid returns the touch on the bid side.
func (s OrderbookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the touch on the ask side.
func (s OrderbookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Touch returns the level an order on side would cross: the best ask for a
// buy and the best bid for a sell.
func (s OrderbookSnapshot) Touch(side OrderSide) (PriceLevel, bool) {
	if side == OrderSideBuy {
		return s.BestAsk()
	}
	return s.BestBid()
}

// Mid returns the midpoint of the touch, or 0 when the book is one-sided.
func (s OrderbookSnapshot) Mid() float64 {
	if !s.Tradeable() {
		return 0
	}
	return (s.Bids[0].Price + s.Asks[0].Price) / 2
}
