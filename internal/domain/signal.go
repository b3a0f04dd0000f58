package domain

import "time"

// Bus channels and streams.
const (
	ChannelOrders      = "ch:orders"
	ChannelCorrections = "ch:corrections"
	ChannelStatus      = "ch:status"
	ChannelBookPrefix  = "ch:book:"
	StreamTrades       = "stream:trades"
)

// Event names used by the audit log and the notifier.
const (
	EventOrderAccepted    = "order_accepted"
	EventOrderRejected    = "order_rejected"
	EventBasketCorrection = "basket_correction"
	EventEngineStarted    = "engine_started"
	EventEngineError      = "engine_error"
	EventFlatten          = "flatten"
	EventArchive          = "archive"
)

// CorrectionEvent describes one basket-limit correction pass.
type CorrectionEvent struct {
	Exposure int64     `json:"exposure"`
	Excess   int64     `json:"excess"`
	PerLeg   int64     `json:"per_leg"`
	Orders   int       `json:"orders"`
	Side     OrderSide `json:"side"`
	FiredAt  time.Time `json:"fired_at"`
}

// EngineStatus is a summary of the engine's current operational state.
type EngineStatus struct {
	Mode          string           `json:"mode"`
	Running       bool             `json:"running"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Cycles        int64            `json:"cycles"`
	Orders        int64            `json:"orders"`
	Rejections    int64            `json:"rejections"`
	Corrections   int64            `json:"corrections"`
	Fires         map[string]int64 `json:"fires"`
	Positions     map[string]int64 `json:"positions"`
	Exposure      int64            `json:"exposure"`
	BreachSince   *time.Time       `json:"breach_since,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
}
