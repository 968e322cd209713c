// Package venue implements domain.SwapVenue against a Jupiter-style swap
// aggregator. The venue is opaque: it quotes, routes, signs, and broadcasts;
// the caller only sees success or failure plus the signature and the
// effective price.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Client executes swaps through the aggregator's HTTP API.
type Client struct {
	baseURL     string
	quoteMint   string
	slippageBps int
	http        *http.Client
}

// New creates a venue client. quoteMint is the quote-currency mint used as
// the input side of buys and the output side of sells.
func New(baseURL, quoteMint string, slippageBps int) *Client {
	return &Client{
		baseURL:     baseURL,
		quoteMint:   quoteMint,
		slippageBps: slippageBps,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

type swapRequest struct {
	ClientID    string  `json:"clientId"`
	InputMint   string  `json:"inputMint"`
	OutputMint  string  `json:"outputMint"`
	Amount      float64 `json:"amount"`
	SlippageBps int     `json:"slippageBps"`
}

type swapResponse struct {
	Success     bool    `json:"success"`
	Signature   string  `json:"signature"`
	Price       float64 `json:"price"`
	OutAmount   float64 `json:"outAmount"`
	ZeroBalance bool    `json:"zeroBalance"`
	Error       string  `json:"error"`
}

// Buy swaps quoteAmount of the quote currency into the given mint.
func (c *Client) Buy(ctx context.Context, mint string, quoteAmount float64) (domain.SwapResult, error) {
	return c.swap(ctx, c.quoteMint, mint, quoteAmount)
}

// Sell swaps amount tokens of the given mint back into the quote currency.
func (c *Client) Sell(ctx context.Context, mint string, amount float64) (domain.SwapResult, error) {
	return c.swap(ctx, mint, c.quoteMint, amount)
}

// swap quotes and executes one swap. Each request carries a fresh client ID
// so venue-side retries can de-duplicate.
func (c *Client) swap(ctx context.Context, inputMint, outputMint string, amount float64) (domain.SwapResult, error) {
	if err := c.quote(ctx, inputMint, outputMint, amount); err != nil {
		return domain.SwapResult{}, err
	}

	reqBody := swapRequest{
		ClientID:    uuid.NewString(),
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: c.slippageBps,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("venue: marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("venue: create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("venue: execute swap %s -> %s: %w", inputMint, outputMint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.SwapResult{}, fmt.Errorf("venue: swap %s -> %s: unexpected status %d: %s",
			inputMint, outputMint, resp.StatusCode, string(respBody))
	}

	var out swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.SwapResult{}, fmt.Errorf("venue: decode swap response: %w", err)
	}
	if !out.Success && !out.ZeroBalance {
		return domain.SwapResult{}, fmt.Errorf("venue: swap %s -> %s failed: %s", inputMint, outputMint, out.Error)
	}

	return domain.SwapResult{
		Signature:   out.Signature,
		Price:       out.Price,
		OutAmount:   out.OutAmount,
		ZeroBalance: out.ZeroBalance,
	}, nil
}

// quote asks the aggregator for a route before committing the swap. A quote
// failure aborts the swap; there is nothing to execute without a route.
func (c *Client) quote(ctx context.Context, inputMint, outputMint string, amount float64) error {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	q.Set("slippageBps", strconv.Itoa(c.slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("venue: create quote request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("venue: quote %s -> %s: %w", inputMint, outputMint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("venue: quote %s -> %s: unexpected status %d: %s",
			inputMint, outputMint, resp.StatusCode, string(respBody))
	}
	return nil
}

// Compile-time interface check.
var _ domain.SwapVenue = (*Client)(nil)
