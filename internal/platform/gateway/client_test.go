package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/basketbot/internal/crypto"
	"github.com/alanyoungcy/basketbot/internal/domain"
)

func newTestServer(t *testing.T, auth *crypto.HMACAuth, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !auth.Verify(r.Method, r.URL.RequestURI(), string(body),
			r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature)) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"bad_signature","message":"signature mismatch"}`))
			return
		}
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetPriceBook(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "k", Secret: "s"}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /books/{inst}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("inst") != "NVDA" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Book{
			Instrument: "NVDA",
			Bids:       []Level{{Price: 99.9, Volume: 30}},
			Asks:       []Level{{Price: 100.1, Volume: 40}},
		})
	})
	srv := newTestServer(t, auth, mux)
	c := NewClient(srv.URL, auth, time.Second)

	snap, ok, err := c.GetPriceBook(context.Background(), "NVDA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Tradeable())
	assert.Equal(t, domain.PriceLevel{Price: 100.1, Volume: 40}, snap.Asks[0])

	_, ok, err = c.GetPriceBook(context.Background(), "AMD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_InsertOrder(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "k", Secret: "s"}
	var got OrderRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		resp := OrderResponse{Success: got.Volume <= 50, OrderID: "x-1"}
		if !resp.Success {
			resp.Reason = "position limit"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := newTestServer(t, auth, mux)
	c := NewClient(srv.URL, auth, time.Second)

	res, err := c.InsertOrder(context.Background(), domain.Order{
		ID: "o1", Instrument: "NVDA", Side: domain.OrderSideSell, Price: 100.1, Volume: 50, TimeInForce: domain.TimeInForceIOC,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.OrderStatusAccepted, res.Status)
	assert.Equal(t, "o1", got.ClientOrderID)
	assert.Equal(t, "sell", got.Side)
	assert.Equal(t, "ioc", got.TimeInForce)

	res, err = c.InsertOrder(context.Background(), domain.Order{
		ID: "o2", Instrument: "NVDA", Side: domain.OrderSideBuy, Price: 100, Volume: 51, TimeInForce: domain.TimeInForceIOC,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.Equal(t, "position limit", res.Message)
}

func TestClient_PositionsAndDelete(t *testing.T) {
	auth := &crypto.HMACAuth{Key: "k", Secret: "s"}
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /positions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"positions":{"NVDA":-50,"AMD":12}}`))
	})
	mux.HandleFunc("DELETE /orders", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.URL.Query().Get("instrument")
		w.WriteHeader(http.StatusNoContent)
	})
	srv := newTestServer(t, auth, mux)
	c := NewClient(srv.URL, auth, time.Second)

	pos, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"NVDA": -50, "AMD": 12}, pos)

	require.NoError(t, c.DeleteOrders(context.Background(), "AMD"))
	assert.Equal(t, "AMD", deleted)
}

func TestClient_BadCredentials(t *testing.T) {
	srv := newTestServer(t, &crypto.HMACAuth{Key: "k", Secret: "right"}, http.NewServeMux())
	c := NewClient(srv.URL, &crypto.HMACAuth{Key: "k", Secret: "wrong"}, time.Second)

	_, err := c.GetPositions(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, checkStatus(http.MethodGet, 200, nil))
	assert.ErrorIs(t, checkStatus(http.MethodGet, 404, nil), errAbsent)
	assert.ErrorIs(t, checkStatus(http.MethodDelete, 404, nil), domain.ErrNotFound)
	assert.ErrorIs(t, checkStatus(http.MethodPost, 429, nil), domain.ErrRateLimited)
	assert.Error(t, checkStatus(http.MethodPost, 500, []byte(`{"message":"boom"}`)))
}

func TestFeed_ServesFreshBooks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub wsSubscribe
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for _, inst := range sub.Instruments {
			_ = conn.WriteJSON(wsEnvelope{Type: "book", Book: &Book{
				Instrument: inst,
				Bids:       []Level{{Price: 10, Volume: 1}},
				Asks:       []Level{{Price: 11, Volume: 1}},
			}})
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"NVDA"}, time.Minute, logger)
	got := make(chan domain.OrderbookSnapshot, 1)
	feed.OnBook(func(s domain.OrderbookSnapshot) { got <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = feed.Run(ctx); close(done) }()

	select {
	case s := <-got:
		assert.Equal(t, "NVDA", s.Instrument)
	case <-time.After(5 * time.Second):
		t.Fatal("no book received")
	}

	c := NewClient("http://unused.invalid", nil, time.Second).WithFeed(feed)
	snap, ok, err := c.GetPriceBook(context.Background(), "NVDA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 11.0, snap.Asks[0].Price)

	feed.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, ok = feed.Latest("NVDA")
	assert.False(t, ok)

	cancel()
	<-done
}
