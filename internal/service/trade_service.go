package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

const journalQueueSize = 4096

// TradeService journals order attempts to the trade store, the trade stream
// and the orders channel. Writes happen on a background loop so a slow store
// never delays a tick. Every dependency is optional.
type TradeService struct {
	trades domain.TradeStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger

	queue chan domain.TradeRecord
}

// NewTradeService creates a TradeService. Any of trades, bus and audit may be
// nil.
func NewTradeService(
	trades domain.TradeStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades: trades,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "journal")),
		queue:  make(chan domain.TradeRecord, journalQueueSize),
	}
}

// Journal queues rec for persistence. It never blocks; when the queue is
// full the record is dropped with a warning.
func (s *TradeService) Journal(rec domain.TradeRecord) {
	if s == nil || (s.trades == nil && s.bus == nil) {
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("journal queue full, dropping record",
			slog.String("id", rec.ID),
			slog.String("instrument", rec.Instrument),
		)
	}
}

// Run writes queued records until ctx is cancelled, then drains the queue
// with a short deadline.
func (s *TradeService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-s.queue:
					s.write(drainCtx, rec)
				default:
					return nil
				}
			}
		case rec := <-s.queue:
			s.write(ctx, rec)
		}
	}
}

func (s *TradeService) write(ctx context.Context, rec domain.TradeRecord) {
	if s.trades != nil {
		if err := s.trades.Insert(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "trade insert failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.bus.StreamAppend(ctx, domain.StreamTrades, payload); err != nil {
		s.logger.WarnContext(ctx, "trade stream append failed", slog.String("error", err.Error()))
	}
	if err := s.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
		s.logger.WarnContext(ctx, "publish order event failed", slog.String("error", err.Error()))
	}
}

// Audit writes an audit log entry. Failures are logged only.
func (s *TradeService) Audit(ctx context.Context, event string, detail map[string]any) {
	if s == nil || s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// ListRecent returns the newest journaled records.
func (s *TradeService) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if s == nil || s.trades == nil {
		return nil, fmt.Errorf("trade_service: journal not configured: %w", domain.ErrNotFound)
	}
	recs, err := s.trades.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list recent: %w", err)
	}
	return recs, nil
}

// publishJSON marshals v and publishes it on channel. Failures are logged.
func publishJSON(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, v any) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
