package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() int64 {
	if s == OrderSideBuy {
		return 1
	}
	return -1
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Valid reports whether s is one of the two known sides.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// TimeInForce is the order lifetime policy.
type TimeInForce string

const (
	TimeInForceIOC   TimeInForce = "ioc"   // Immediate-Or-Cancel
	TimeInForceLimit TimeInForce = "limit" // rests on the book
)

// OrderStatus tracks the outcome of a submission.
type OrderStatus string

const (
	OrderStatusAccepted OrderStatus = "accepted"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusFailed   OrderStatus = "failed"
)

// Order is a single order sent to the exchange.
type Order struct {
	ID          string
	Instrument  string
	Side        OrderSide
	Price       float64
	Volume      int64
	TimeInForce TimeInForce
	Strategy    string
	CreatedAt   time.Time
}

// Validate checks the fields the exchange would reject outright.
func (o Order) Validate() error {
	if o.Instrument == "" || !o.Side.Valid() || o.Volume <= 0 || o.Price <= 0 {
		return ErrInvalidOrder
	}
	return nil
}

// OrderResult wraps the exchange response after order submission.
type OrderResult struct {
	Success bool
	OrderID string
	Status  OrderStatus
	Message string
}
