package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

const (
	wsWriteWait         = 10 * time.Second
	wsPongWait          = 30 * time.Second
	wsPingPeriod        = (wsPongWait * 9) / 10
	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second

	// defaultMaxAge is how long a pushed book stays usable without an update.
	defaultMaxAge = 2 * time.Second
)

// BookHandler is called for every book pushed over the websocket.
type BookHandler func(domain.OrderbookSnapshot)

// Feed subscribes to the gateway's book stream and keeps the latest snapshot
// per instrument.
type Feed struct {
	wsURL       string
	instruments []string
	maxAge      time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	latest   map[string]domain.OrderbookSnapshot
	received map[string]time.Time

	handlerMu sync.RWMutex
	handlers  []BookHandler
}

// NewFeed creates a feed for the given instruments. Call Run to connect.
func NewFeed(wsURL string, instruments []string, maxAge time.Duration, logger *slog.Logger) *Feed {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Feed{
		wsURL:       wsURL,
		instruments: append([]string(nil), instruments...),
		maxAge:      maxAge,
		logger:      logger.With(slog.String("component", "gateway_feed")),
		now:         time.Now,
		latest:      make(map[string]domain.OrderbookSnapshot),
		received:    make(map[string]time.Time),
	}
}

// OnBook registers a handler for pushed books.
func (f *Feed) OnBook(h BookHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.handlers = append(f.handlers, h)
}

// Latest returns the newest pushed book for instrument if it arrived within
// maxAge.
func (f *Feed) Latest(instrument string) (domain.OrderbookSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	at, ok := f.received[instrument]
	if !ok || f.now().Sub(at) > f.maxAge {
		return domain.OrderbookSnapshot{}, false
	}
	return f.latest[instrument], true
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff on failure.
func (f *Feed) Run(ctx context.Context) error {
	delay := wsReconnectDelay
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("book feed disconnected", slog.String("error", errString(err)), slog.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, wsMaxReconnectDelay)
	}
}

// session runs one connection until it fails.
func (f *Feed) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	sub, err := json.Marshal(wsSubscribe{Op: "subscribe", Instruments: f.instruments})
	if err != nil {
		return fmt.Errorf("gateway/ws: marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("gateway/ws: subscribe: %w", err)
	}
	f.logger.Info("book feed connected", slog.Int("instruments", len(f.instruments)))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var writeMu sync.Mutex
	go f.pingLoop(sessCtx, conn, &writeMu)
	go func() {
		<-sessCtx.Done()
		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		writeMu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}
		f.handleMessage(raw)
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (f *Feed) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.logger.Debug("dropping malformed frame", slog.String("error", err.Error()))
		return
	}
	if env.Type != "book" || env.Book == nil || env.Book.Instrument == "" {
		return
	}

	snap := env.Book.ToSnapshot()
	f.mu.Lock()
	f.latest[snap.Instrument] = snap
	f.received[snap.Instrument] = f.now()
	f.mu.Unlock()

	f.handlerMu.RLock()
	handlers := f.handlers
	f.handlerMu.RUnlock()
	for _, h := range handlers {
		h(snap)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
