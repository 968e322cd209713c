// Package wallet implements domain.BalanceReader against a Solana JSON-RPC
// endpoint. Balance reads are always fresh: holdings change outside this
// process (manual transfers, other tools), so no caching layer sits in front.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client reads token balances for one owner account.
type Client struct {
	rpcURL string
	owner  string
	http   *http.Client
}

// New creates a wallet client for the given RPC endpoint and owner address.
func New(rpcURL, owner string) *Client {
	return &Client{
		rpcURL: rpcURL,
		owner:  owner,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type tokenAccountsResponse struct {
	Result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								UIAmount float64 `json:"uiAmount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// Balance returns the owner's current holding of the given mint, summed over
// all token accounts. A missing account is a zero balance, not an error.
func (c *Client) Balance(ctx context.Context, mint string) (float64, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTokenAccountsByOwner",
		Params: []any{
			c.owner,
			map[string]string{"mint": mint},
			map[string]string{"encoding": "jsonParsed"},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("wallet: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("wallet: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("wallet: balance %s: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("wallet: balance %s: unexpected status %d: %s", mint, resp.StatusCode, string(respBody))
	}

	var out tokenAccountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("wallet: decode balance %s: %w", mint, err)
	}
	if out.Error != nil {
		return 0, fmt.Errorf("wallet: balance %s: rpc error %d: %s", mint, out.Error.Code, out.Error.Message)
	}

	var total float64
	for _, v := range out.Result.Value {
		total += v.Account.Data.Parsed.Info.TokenAmount.UIAmount
	}
	return total, nil
}
