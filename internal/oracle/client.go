// Package oracle resolves event outcomes against an external market-data
// API: launch status for token_launch events and spot prices for
// price_target events.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// Client talks to the oracle REST API. It implements both domain.Oracle and
// domain.CoinRegistry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	prices     domain.PriceCache // optional; nil disables caching
	logger     *slog.Logger
}

// New creates an oracle Client. baseURL is the API root; prices may be nil.
func New(baseURL string, timeout time.Duration, prices domain.PriceCache, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		prices: prices,
		logger: logger.With(slog.String("component", "oracle")),
	}
}

// coinStatus is the API's coin lookup payload.
type coinStatus struct {
	Contract string `json:"contract"`
	Active   bool   `json:"active"`
	Launched *bool  `json:"launched"` // null while the launch is undecided
}

// tickerPrice is the API's spot price payload.
type tickerPrice struct {
	Asset string           `json:"asset"`
	Price *decimal.Decimal `json:"price"` // null when the feed has no quote
}

// Resolve answers an event's outcome. Token launches resolve on the coin's
// launched flag; price targets resolve on spot price >= target. A null
// launched flag or missing quote is reported as indeterminate so settlement
// retries later.
func (c *Client) Resolve(ctx context.Context, e domain.Event) (domain.Resolution, error) {
	switch e.Kind {
	case domain.KindTokenLaunch:
		return c.resolveLaunch(ctx, e.Contract)
	case domain.KindPriceTarget:
		return c.resolvePrice(ctx, e.ReferenceAsset, e.TargetPrice)
	default:
		return domain.Resolution{}, fmt.Errorf("oracle: unknown event kind %q", e.Kind)
	}
}

func (c *Client) resolveLaunch(ctx context.Context, contract string) (domain.Resolution, error) {
	status, err := c.coin(ctx, contract)
	if err != nil {
		return domain.Resolution{}, err
	}
	if status.Launched == nil {
		return domain.Resolution{State: domain.ResolutionIndeterminate}, nil
	}
	return domain.Resolution{State: domain.ResolutionResolved, Outcome: *status.Launched}, nil
}

func (c *Client) resolvePrice(ctx context.Context, asset string, target decimal.Decimal) (domain.Resolution, error) {
	price, ok, err := c.Price(ctx, asset)
	if err != nil {
		return domain.Resolution{}, err
	}
	if !ok {
		return domain.Resolution{State: domain.ResolutionIndeterminate}, nil
	}
	return domain.Resolution{
		State:   domain.ResolutionResolved,
		Outcome: price.GreaterThanOrEqual(target),
		Price:   price,
	}, nil
}

// Price returns the current spot price of an asset, consulting the cache
// first. ok is false when the feed has no quote yet.
func (c *Client) Price(ctx context.Context, asset string) (decimal.Decimal, bool, error) {
	if c.prices != nil {
		if price, ok, err := c.prices.GetPrice(ctx, asset); err != nil {
			c.logger.WarnContext(ctx, "price cache read failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return price, true, nil
		}
	}

	body, err := c.doGet(ctx, "/prices/"+url.PathEscape(asset))
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("oracle: get price %s: %w", asset, err)
	}

	var ticker tickerPrice
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("oracle: decode price %s: %w", asset, err)
	}
	if ticker.Price == nil {
		return decimal.Decimal{}, false, nil
	}

	if c.prices != nil {
		if err := c.prices.SetPrice(ctx, asset, *ticker.Price); err != nil {
			c.logger.WarnContext(ctx, "price cache write failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}
	return *ticker.Price, true, nil
}

// Exists reports whether the contract is a known, active coin. Implements
// domain.CoinRegistry for creation-time target validation.
func (c *Client) Exists(ctx context.Context, contract string) (bool, error) {
	status, err := c.coin(ctx, contract)
	if err != nil {
		if err == errCoinNotFound {
			return false, nil
		}
		return false, err
	}
	return status.Active, nil
}

var errCoinNotFound = fmt.Errorf("oracle: coin not found")

func (c *Client) coin(ctx context.Context, contract string) (coinStatus, error) {
	body, err := c.doGet(ctx, "/coins/"+url.PathEscape(contract))
	if err != nil {
		return coinStatus{}, err
	}
	var status coinStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return coinStatus{}, fmt.Errorf("oracle: decode coin %s: %w", contract, err)
	}
	return status, nil
}

// doGet performs a GET against the API and returns the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errCoinNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle: %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oracle: read response %s: %w", path, err)
	}
	return body, nil
}

// Compile-time interface checks.
var (
	_ domain.Oracle       = (*Client)(nil)
	_ domain.CoinRegistry = (*Client)(nil)
)
