package daxsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/luxfi/dax/pkg/events"
)

// Client is the DAX daemon client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	wsConn     *websocket.Conn
}

// NewClient creates a new DAX client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks daemon liveness
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListAuctions returns every enabled auction
func (c *Client) ListAuctions(ctx context.Context) ([]Auction, error) {
	var out struct {
		Auctions []Auction `json:"auctions"`
		Count    int       `json:"count"`
	}
	if err := c.get(ctx, "/auctions", &out); err != nil {
		return nil, err
	}
	return out.Auctions, nil
}

// GetAuction fetches one auction by sell token address or hex ID
func (c *Client) GetAuction(ctx context.Context, tokenAddr string) (*Auction, error) {
	var a Auction
	if err := c.get(ctx, "/auctions/"+url.PathEscape(tokenAddr), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Price quotes the current unit price. An at of zero quotes at the
// daemon's clock.
func (c *Client) Price(ctx context.Context, tokenAddr string, at uint64) (*PriceQuote, error) {
	path := "/auctions/" + url.PathEscape(tokenAddr) + "/price"
	if at > 0 {
		path += "?at=" + strconv.FormatUint(at, 10)
	}

	var q PriceQuote
	if err := c.get(ctx, path, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Kickable reports how much of the sell token a kick would open
func (c *Client) Kickable(ctx context.Context, tokenAddr string, at uint64) (*KickableStatus, error) {
	path := "/auctions/" + url.PathEscape(tokenAddr) + "/kickable"
	if at > 0 {
		path += "?at=" + strconv.FormatUint(at, 10)
	}

	var k KickableStatus
	if err := c.get(ctx, path, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// Enable puts a sell token up for auction
func (c *Client) Enable(ctx context.Context, fromToken, receiver string) (*EnableResult, error) {
	body := map[string]string{
		"from_token": fromToken,
	}
	if receiver != "" {
		body["receiver"] = receiver
	}

	var res EnableResult
	if err := c.post(ctx, "/rpc/enable", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Disable clears a sell token's auction record
func (c *Client) Disable(ctx context.Context, fromToken string) error {
	body := map[string]string{
		"from_token": fromToken,
	}
	return c.post(ctx, "/rpc/disable", body, nil)
}

// Kick opens a new price window. An at of zero kicks at the daemon's
// clock.
func (c *Client) Kick(ctx context.Context, fromToken string, at uint64) (*KickResult, error) {
	body := map[string]interface{}{
		"from_token": fromToken,
	}
	if at > 0 {
		body["at"] = at
	}

	var res KickResult
	if err := c.post(ctx, "/rpc/kick", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Take buys up to MaxAmount raw sell token units at the current quote
func (c *Client) Take(ctx context.Context, req TakeRequest) (*TakeResult, error) {
	var res TakeResult
	if err := c.post(ctx, "/rpc/take", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Sweep pushes a token's stray registry balance to the receiver
func (c *Client) Sweep(ctx context.Context, tokenAddr string) (*SweepResult, error) {
	body := map[string]string{
		"token": tokenAddr,
	}

	var res SweepResult
	if err := c.post(ctx, "/rpc/sweep", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterToken registers a token with the daemon's sandbox ledger
func (c *Client) RegisterToken(ctx context.Context, tokenAddr string, decimals uint8) error {
	body := map[string]interface{}{
		"token":    tokenAddr,
		"decimals": decimals,
	}
	return c.post(ctx, "/rpc/register", body, nil)
}

// Mint credits raw token units to an account on the sandbox ledger
func (c *Client) Mint(ctx context.Context, tokenAddr, account string, amount decimal.Decimal) error {
	body := map[string]string{
		"token":   tokenAddr,
		"account": account,
		"amount":  amount.String(),
	}
	return c.post(ctx, "/rpc/mint", body, nil)
}

// SubscribeEvents opens the daemon's websocket feed and decodes
// lifecycle events until the context ends or the feed closes. The
// returned channel closes when the subscription dies.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		resp.Body.Close()
	}
	c.wsConn = conn

	ch := make(chan events.Event, 64)
	done := make(chan struct{})

	go func() {
		defer close(ch)
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			e, err := decodeEvent(data)
			if err != nil {
				continue
			}
			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Unblock the reader when the caller gives up.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return ch, nil
}

// Close closes the client connections
func (c *Client) Close() error {
	if c.wsConn != nil {
		return c.wsConn.Close()
	}
	return nil
}

// decodeEvent maps a raw feed message onto its concrete event type
func decodeEvent(data []byte) (events.Event, error) {
	var head struct {
		Type events.Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var e events.Event
	switch head.Type {
	case events.TypeEnabled:
		e = &events.Enabled{}
	case events.TypeDisabled:
		e = &events.Disabled{}
	case events.TypeKicked:
		e = &events.Kicked{}
	case events.TypeTaken:
		e = &events.Taken{}
	case events.TypeSwept:
		e = &events.Swept{}
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}

	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}

// HTTP plumbing

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("request failed: %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Types

// Health is the daemon liveness response
type Health struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// AuctionStats carries per-record settlement counters. Raw token
// amounts arrive as decimal strings and parse exactly.
type AuctionStats struct {
	Kicks         uint64          `json:"kicks"`
	Takes         uint64          `json:"takes"`
	TotalSold     decimal.Decimal `json:"total_sold"`
	TotalProceeds decimal.Decimal `json:"total_proceeds"`
	LastKickAt    uint64          `json:"last_kick_at"`
	LastTakeAt    uint64          `json:"last_take_at"`
}

// Auction is one sell token's auction state
type Auction struct {
	ID               string          `json:"id"`
	FromToken        string          `json:"from_token"`
	ToToken          string          `json:"to_token"`
	Receiver         string          `json:"receiver"`
	KickedAt         uint64          `json:"kicked_at"`
	InitialAvailable decimal.Decimal `json:"initial_available"`
	CurrentAvailable decimal.Decimal `json:"current_available"`
	MinimumPrice     decimal.Decimal `json:"minimum_price"`
	Stats            AuctionStats    `json:"stats"`
}

// PriceQuote is the current unit price of a live window
type PriceQuote struct {
	FromToken string          `json:"from_token"`
	Price     decimal.Decimal `json:"price"`
	PriceWad  decimal.Decimal `json:"price_wad"`
	At        uint64          `json:"at"`
}

// KickableStatus reports the lot a kick would open
type KickableStatus struct {
	FromToken string          `json:"from_token"`
	Kickable  decimal.Decimal `json:"kickable"`
	At        uint64          `json:"at"`
}

// EnableResult is the response to an enable call
type EnableResult struct {
	ID        string `json:"id"`
	FromToken string `json:"from_token"`
}

// KickResult is the response to a kick call
type KickResult struct {
	FromToken string          `json:"from_token"`
	Available decimal.Decimal `json:"available"`
	KickedAt  uint64          `json:"kicked_at"`
}

// TakeRequest asks for up to MaxAmount raw sell token units. Taker
// pays; Recipient defaults to Taker; At of zero settles at the
// daemon's clock.
type TakeRequest struct {
	FromToken string          `json:"from_token"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Taker     string          `json:"taker"`
	Recipient string          `json:"recipient,omitempty"`
	At        uint64          `json:"at,omitempty"`
}

// TakeResult is the response to a take call
type TakeResult struct {
	FromToken   string          `json:"from_token"`
	Taker       string          `json:"taker"`
	AmountTaken decimal.Decimal `json:"amount_taken"`
	At          uint64          `json:"at"`
}

// SweepResult is the response to a sweep call
type SweepResult struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}
