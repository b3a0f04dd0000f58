package strategy

import (
	"fmt"
	"sync"
	"time"
)

// StrategyInfo holds runtime info for a registered strategy (for status APIs).
type StrategyInfo struct {
	Name      string     `json:"name"`
	Fires     int64      `json:"fires"`
	Errors    int64      `json:"errors"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Registry holds the strategies in execution order. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	ordered []Strategy
	info    map[string]*StrategyInfo
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{info: make(map[string]*StrategyInfo)}
}

// Register appends s to the execution order. Names must be unique.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.info[s.Name()]; ok {
		return fmt.Errorf("strategy %q: already registered", s.Name())
	}
	r.ordered = append(r.ordered, s)
	r.info[s.Name()] = &StrategyInfo{Name: s.Name()}
	return nil
}

// Get retrieves a strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.ordered {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("strategy %q: not registered", name)
}

// Ordered returns the strategies in execution order.
func (r *Registry) Ordered() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Strategy(nil), r.ordered...)
}

// List returns the registered names in execution order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ordered))
	for _, s := range r.ordered {
		names = append(names, s.Name())
	}
	return names
}

// ListInfo returns runtime info for every strategy in execution order.
func (r *Registry) ListInfo() []StrategyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StrategyInfo, 0, len(r.ordered))
	for _, s := range r.ordered {
		info := *r.info[s.Name()]
		if info.LastFired != nil {
			t := *info.LastFired
			info.LastFired = &t
		}
		out = append(out, info)
	}
	return out
}

func (r *Registry) markFired(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.info[name]; ok {
		info.Fires++
		info.LastFired = &at
	}
}

func (r *Registry) markError(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.info[name]; ok {
		info.Errors++
		info.LastError = err.Error()
	}
}

// StandardConfig names the instruments and thresholds of the standard
// strategy set.
type StandardConfig struct {
	BasketUS        string
	BasketEU        string
	Constituents    []string
	ArbThreshold    float64
	BasketThreshold float64
	HedgeLotCap     int64
	BasketRatio     int64
}

// NewStandardRegistry registers the strategies in their fixed tick order:
// fair-value hedge, forward arbitrage, reverse arbitrage, auto-calibration.
func NewStandardRegistry(cfg StandardConfig) *Registry {
	r := NewRegistry()
	for _, s := range []Strategy{
		NewFairValueHedge(HedgeConfig{
			Basket:       cfg.BasketUS,
			Constituents: cfg.Constituents,
			Threshold:    cfg.BasketThreshold,
			LotCap:       cfg.HedgeLotCap,
			Ratio:        cfg.BasketRatio,
		}),
		NewCrossListingArb("forward_arb", cfg.BasketUS, cfg.BasketEU, cfg.ArbThreshold),
		NewCrossListingArb("reverse_arb", cfg.BasketEU, cfg.BasketUS, cfg.ArbThreshold),
		NewAutoCalibration(),
	} {
		// names are distinct by construction
		_ = r.Register(s)
	}
	return r
}
