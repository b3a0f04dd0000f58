package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// bookTTL expires mirrored books when the engine stops refreshing them.
const bookTTL = 30 * time.Second

// OrderbookCache implements domain.OrderbookCache. Books are replaced
// wholesale every tick, so each one is stored as a single JSON value next to
// a small BBO hash for cheap touch lookups.
//
// Key schema:
//
//	book:{instrument}:snap - JSON encoded domain.OrderbookSnapshot
//	book:{instrument}:bbo  - hash with "bid", "ask", "bid_vol", "ask_vol", "ts"
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying(), ttl: bookTTL}
}

func bookSnapKey(instrument string) string { return "book:" + instrument + ":snap" }
func bookBBOKey(instrument string) string  { return "book:" + instrument + ":bbo" }

// SetSnapshot atomically replaces the mirrored book for snap.Instrument.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap domain.OrderbookSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.Instrument, err)
	}

	snapKey := bookSnapKey(snap.Instrument)
	bboKey := bookBBOKey(snap.Instrument)

	pipe := oc.rdb.TxPipeline()
	pipe.Set(ctx, snapKey, raw, oc.ttl)
	pipe.Del(ctx, bboKey)
	fields := map[string]any{"ts": strconv.FormatInt(snap.Timestamp.UnixNano(), 10)}
	if bid, ok := snap.BestBid(); ok {
		fields["bid"] = strconv.FormatFloat(bid.Price, 'f', -1, 64)
		fields["bid_vol"] = bid.Volume
	}
	if ask, ok := snap.BestAsk(); ok {
		fields["ask"] = strconv.FormatFloat(ask.Price, 'f', -1, 64)
		fields["ask_vol"] = ask.Volume
	}
	pipe.HSet(ctx, bboKey, fields)
	pipe.Expire(ctx, bboKey, oc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", snap.Instrument, err)
	}
	return nil
}

// GetSnapshot returns the mirrored book, or domain.ErrNotFound.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, instrument string) (domain.OrderbookSnapshot, error) {
	raw, err := oc.rdb.Get(ctx, bookSnapKey(instrument)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", instrument, err)
	}

	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", instrument, err)
	}
	return snap, nil
}

// GetBBO returns the mirrored touch prices. A missing side reads as 0.
func (oc *OrderbookCache) GetBBO(ctx context.Context, instrument string) (bestBid, bestAsk float64, err error) {
	vals, err := oc.rdb.HGetAll(ctx, bookBBOKey(instrument)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", instrument, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}
	if s, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(s, 64)
	}
	if s, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(s, 64)
	}
	return bestBid, bestAsk, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
