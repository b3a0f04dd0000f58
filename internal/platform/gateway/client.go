// Package gateway is the REST and websocket client for the execution
// gateway: order books, positions, order entry and cancellation.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/basketbot/internal/crypto"
	"github.com/alanyoungcy/basketbot/internal/domain"
)

// errAbsent marks a 404 on a book lookup.
var errAbsent = errors.New("gateway: book absent")

// Client is the REST client for the execution gateway.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	feed       *Feed
}

// NewClient creates a gateway client. timeout bounds every request.
func NewClient(baseURL string, auth *crypto.HMACAuth, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		auth:       auth,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithFeed serves GetPriceBook from a websocket feed while it is fresh,
// falling back to REST otherwise.
func (c *Client) WithFeed(f *Feed) *Client {
	c.feed = f
	return c
}

// GetPriceBook returns the latest book for instrument. The bool is false when
// the gateway has no book for it.
func (c *Client) GetPriceBook(ctx context.Context, instrument string) (domain.OrderbookSnapshot, bool, error) {
	if c.feed != nil {
		if snap, ok := c.feed.Latest(instrument); ok {
			return snap, true, nil
		}
	}

	body, err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(instrument), nil)
	if errors.Is(err, errAbsent) {
		return domain.OrderbookSnapshot{}, false, nil
	}
	if err != nil {
		return domain.OrderbookSnapshot{}, false, fmt.Errorf("gateway: get book %s: %w", instrument, err)
	}

	var book Book
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.OrderbookSnapshot{}, false, fmt.Errorf("gateway: decode book %s: %w", instrument, err)
	}
	if book.Instrument == "" {
		book.Instrument = instrument
	}
	return book.ToSnapshot(), true, nil
}

// GetPositions returns the authoritative signed position per instrument.
func (c *Client) GetPositions(ctx context.Context) (map[string]int64, error) {
	body, err := c.do(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: get positions: %w", err)
	}

	var resp PositionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("gateway: decode positions: %w", err)
	}
	if resp.Positions == nil {
		resp.Positions = map[string]int64{}
	}
	return resp.Positions, nil
}

// InsertOrder submits an order. A business rejection comes back as
// Success=false with a nil error; transport failures return an error.
func (c *Client) InsertOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	req := OrderRequest{
		ClientOrderID: order.ID,
		Instrument:    order.Instrument,
		Side:          string(order.Side),
		Price:         order.Price,
		Volume:        order.Volume,
		TimeInForce:   string(order.TimeInForce),
	}

	body, err := c.do(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		return domain.OrderResult{Status: domain.OrderStatusFailed, Message: err.Error()},
			fmt.Errorf("gateway: insert order %s: %w", order.ID, err)
	}

	var resp OrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{Status: domain.OrderStatusFailed}, fmt.Errorf("gateway: decode order response: %w", err)
	}

	res := domain.OrderResult{Success: resp.Success, OrderID: resp.OrderID, Message: resp.Reason}
	if resp.Success {
		res.Status = domain.OrderStatusAccepted
	} else {
		res.Status = domain.OrderStatusRejected
	}
	return res, nil
}

// DeleteOrders cancels every resting order on instrument.
func (c *Client) DeleteOrders(ctx context.Context, instrument string) error {
	path := "/orders?instrument=" + url.QueryEscape(instrument)
	if _, err := c.do(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("gateway: delete orders %s: %w", instrument, err)
	}
	return nil
}

// Ping checks that the gateway is reachable and the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.GetPositions(ctx); err != nil {
		return fmt.Errorf("gateway: ping: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// do builds, signs, sends and reads a request.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var raw []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		raw = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, string(raw)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(method, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(method string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		if method == http.MethodGet {
			return errAbsent
		}
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Message)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Message)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
