// Package pricefeed implements domain.PriceSource against a DexScreener-style
// pairs API.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Cache receives successful price observations. Satisfied by the redis price
// cache; optional.
type Cache interface {
	SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error
}

// Client fetches current token prices over HTTP. Every successful lookup is
// written through to the attached cache when one is configured.
type Client struct {
	baseURL string
	http    *http.Client
	cache   Cache
	logger  *slog.Logger
}

// New creates a price feed client. cache may be nil.
func New(baseURL string, cache Cache, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
		logger:  logger.With(slog.String("component", "pricefeed")),
	}
}

// pairsResponse mirrors the subset of the pairs payload we consume.
type pairsResponse struct {
	Pairs []struct {
		PriceNative string `json:"priceNative"`
	} `json:"pairs"`
}

// Price returns the current quote-currency price for a mint. An empty result
// from the upstream API is reported as domain.ErrPriceUnavailable so callers
// can treat "no pairs yet" the same as a failed lookup.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/tokens/%s", c.baseURL, mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: fetch %s: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("pricefeed: fetch %s: unexpected status %d: %s", mint, resp.StatusCode, string(body))
	}

	var out pairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("pricefeed: decode %s: %w", mint, err)
	}
	if len(out.Pairs) == 0 {
		return 0, fmt.Errorf("pricefeed: %s: %w", mint, domain.ErrPriceUnavailable)
	}

	price, err := strconv.ParseFloat(out.Pairs[0].PriceNative, 64)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: parse price for %s: %w", mint, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("pricefeed: %s: %w", mint, domain.ErrPriceUnavailable)
	}

	if c.cache != nil {
		if err := c.cache.SetPrice(ctx, mint, price, time.Now().UTC()); err != nil {
			c.logger.WarnContext(ctx, "price cache write failed",
				slog.String("mint", mint),
				slog.String("error", err.Error()),
			)
		}
	}

	return price, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*Client)(nil)
