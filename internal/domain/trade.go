package domain

import "time"

// TradeRecord is one journaled order attempt. Rejected attempts are
// journaled too so the audit trail shows what the engine tried.
type TradeRecord struct {
	ID         string      `json:"id"`
	OrderID    string      `json:"order_id,omitempty"`
	Instrument string      `json:"instrument"`
	Side       OrderSide   `json:"side"`
	Price      float64     `json:"price"`
	Volume     int64       `json:"volume"`
	Strategy   string      `json:"strategy"`
	Status     OrderStatus `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	// Recorded is true when the fill was applied to the position ledger.
	Recorded  bool      `json:"recorded"`
	CreatedAt time.Time `json:"created_at"`
}
