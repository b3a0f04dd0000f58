package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// PositionSource returns the authoritative signed position per instrument.
type PositionSource interface {
	GetPositions(ctx context.Context) (map[string]int64, error)
}

// AllowedVolume is the largest order on side that keeps |net| within cap.
// It is never negative.
func AllowedVolume(net int64, side domain.OrderSide, cap int64) int64 {
	if side == domain.OrderSideBuy {
		return max(cap-net, 0)
	}
	return max(cap+net, 0)
}

// RiskService sizes orders against the per-instrument position cap. Positions
// are queried fresh on every call so strategies later in a tick see fills
// made earlier in the same tick.
type RiskService struct {
	positions PositionSource
	cap       int64
	logger    *slog.Logger
}

// NewRiskService creates a RiskService with the given per-instrument cap.
func NewRiskService(positions PositionSource, cap int64, logger *slog.Logger) *RiskService {
	return &RiskService{
		positions: positions,
		cap:       cap,
		logger:    logger.With(slog.String("component", "risk")),
	}
}

// Allowed returns how much may be traded on side for instrument. A failed
// position query denies the trade.
func (s *RiskService) Allowed(ctx context.Context, instrument string, side domain.OrderSide) int64 {
	pos, err := s.positions.GetPositions(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "position query failed, denying",
			slog.String("instrument", instrument),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return AllowedVolume(pos[instrument], side, s.cap)
}

// Cap returns the configured per-instrument position cap.
func (s *RiskService) Cap() int64 { return s.cap }
