package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dwelch/tickstream/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the binance 24 hour ticker endpoint.
	BaseURL = "https://api.binance.com/api/v3/ticker/24hr"
	// Source identifies ticks produced by this client.
	Source = "binance"
)

// ClientConfig represents the configuration for the price source client.
type ClientConfig struct {
	// Symbol is the ticker symbol to fetch.
	Symbol string
	// BaseURL is the ticker endpoint.
	BaseURL string
}

// Client represents the binance 24 hour ticker client.
type Client struct {
	cfg   *ClientConfig
	httpc http.Client
}

// Ensure the Client implements the TickerFetcher interface.
var _ shared.TickerFetcher = (*Client)(nil)

// NewClient instantiates a new price source client.
func NewClient(cfg *ClientConfig) *Client {
	return &Client{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 10},
	}
}

// FetchTicker fetches the current ticker snapshot for the configured symbol.
// A transport error, a non-2xx response or a missing field all count as one
// failure to the caller.
func (c *Client) FetchTicker(ctx context.Context) (*shared.Tick, error) {
	params := url.Values{}
	params.Add("symbol", c.cfg.Symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating ticker request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching ticker for %s: %w", c.cfg.Symbol, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected ticker response status for %s: %s", c.cfg.Symbol, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ticker response body: %w", err)
	}

	return c.ParseTick(body)
}

// ParseTick parses a tick from the provided json ticker payload.
func (c *Client) ParseTick(body []byte) (*shared.Tick, error) {
	lastPrice := gjson.GetBytes(body, "lastPrice")
	volume := gjson.GetBytes(body, "volume")
	priceChange := gjson.GetBytes(body, "priceChangePercent")

	if !lastPrice.Exists() || !volume.Exists() || !priceChange.Exists() {
		return nil, fmt.Errorf("malformed ticker payload for %s", c.cfg.Symbol)
	}

	price := lastPrice.Float()
	tick := &shared.Tick{
		Market: c.cfg.Symbol,
		Price:  price,
		// The 24 hour ticker reports base asset volume, convert to quote volume.
		Volume:         volume.Float() * price,
		PriceChangePct: priceChange.Float(),
		Timestamp:      time.Now().UTC(),
		Source:         Source,
	}

	return tick, nil
}
