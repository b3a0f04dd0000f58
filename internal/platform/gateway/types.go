package gateway

import (
	"time"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// Level is a wire-format price level.
type Level struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// Book is the wire-format order book returned by GET /books/{instrument} and
// pushed on the websocket "book" channel.
type Book struct {
	Instrument string    `json:"instrument"`
	Bids       []Level   `json:"bids"`
	Asks       []Level   `json:"asks"`
	Timestamp  time.Time `json:"timestamp"`
}

// ToSnapshot converts the wire book into the domain type.
func (b Book) ToSnapshot() domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		Instrument: b.Instrument,
		Bids:       make([]domain.PriceLevel, 0, len(b.Bids)),
		Asks:       make([]domain.PriceLevel, 0, len(b.Asks)),
		Timestamp:  b.Timestamp,
	}
	for _, l := range b.Bids {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: l.Price, Volume: l.Volume})
	}
	for _, l := range b.Asks {
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: l.Price, Volume: l.Volume})
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	return snap
}

// PositionsResponse is returned by GET /positions.
type PositionsResponse struct {
	Positions map[string]int64 `json:"positions"`
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	ClientOrderID string  `json:"client_order_id"`
	Instrument    string  `json:"instrument"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Volume        int64   `json:"volume"`
	TimeInForce   string  `json:"time_in_force"`
}

// OrderResponse is returned by POST /orders.
type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ErrorResponse is the body of non-2xx responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsEnvelope frames every websocket message.
type wsEnvelope struct {
	Type string `json:"type"`
	Book *Book  `json:"book,omitempty"`
}

// wsSubscribe is sent after connecting.
type wsSubscribe struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments"`
}
