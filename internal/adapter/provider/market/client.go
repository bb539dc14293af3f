package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"pixwallet/config"
	"pixwallet/internal/core/ports"

	"github.com/shopspring/decimal"
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client reads the spot price of a symbol from a Binance-compatible ticker
// endpoint. It implements ports.MarketDataSource.
type Client struct {
	baseURL    string
	symbol     string
	httpClient HTTPClient
}

// NewClient creates a market data client bounded by cfg.Timeout.
func NewClient(cfg config.MarketConfig) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewClientWithHTTP creates a market data client on top of httpClient.
func NewClientWithHTTP(cfg config.MarketConfig, httpClient HTTPClient) *Client {
	return &Client{baseURL: cfg.BaseURL, symbol: cfg.Symbol, httpClient: httpClient}
}

type tickerReply struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// FetchPrice returns the last traded price of the configured symbol.
func (c *Client) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	endpoint := c.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(c.symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build ticker request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ticker %s: %v", ports.ErrProviderUnavailable, c.symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("%w: ticker %s returned %d", ports.ErrProviderUnavailable, c.symbol, resp.StatusCode)
	}

	var reply tickerReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decoding ticker %s: %v", ports.ErrProviderUnavailable, c.symbol, err)
	}

	price, err := decimal.NewFromString(reply.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ticker %s price %q: %v", ports.ErrProviderUnavailable, c.symbol, reply.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: ticker %s reported non-positive price %s", ports.ErrProviderUnavailable, c.symbol, price)
	}
	return price, nil
}
