package service

import (
	"context"
	"fmt"
)

// PositionService reads authoritative positions for the traded instruments.
type PositionService struct {
	source      PositionSource
	instruments []string
}

// NewPositionService creates a PositionService over the given instruments.
func NewPositionService(source PositionSource, instruments []string) *PositionService {
	return &PositionService{
		source:      source,
		instruments: append([]string(nil), instruments...),
	}
}

// Positions returns the signed position of every traded instrument. Missing
// instruments are reported as flat.
func (s *PositionService) Positions(ctx context.Context) (map[string]int64, error) {
	raw, err := s.source.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: get positions: %w", err)
	}
	out := make(map[string]int64, len(s.instruments))
	for _, id := range s.instruments {
		out[id] = raw[id]
	}
	return out, nil
}

// Exposure returns the sum of the traded instruments' positions together with
// the per-instrument breakdown.
func (s *PositionService) Exposure(ctx context.Context) (int64, map[string]int64, error) {
	pos, err := s.Positions(ctx)
	if err != nil {
		return 0, nil, err
	}
	var total int64
	for _, v := range pos {
		total += v
	}
	return total, pos, nil
}

// Instruments returns the traded instruments in configuration order.
func (s *PositionService) Instruments() []string {
	return append([]string(nil), s.instruments...)
}
