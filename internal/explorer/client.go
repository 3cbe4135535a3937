// Package explorer looks up a wallet's first-ever transaction timestamp from
// the Etherscan v2 API.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Etherscan v2 multichain API endpoint.
const DefaultBaseURL = "https://api.etherscan.io/v2/api"

// txListResponse is the Etherscan account/txlist response envelope.
type txListResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		TimeStamp string `json:"timeStamp"`
	} `json:"result"`
}

// result memoizes one lookup. found is false for wallets Etherscan reports
// as having no transactions, so known-empty wallets are not re-queried.
type result struct {
	timestamp int64
	found     bool
}

// Client is a rate-limited, memoizing Etherscan client. Requests are
// serialized by a limiter of burst one that enforces the configured minimum
// inter-request delay. Not safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	chain   string
	client  *http.Client
	limiter *rate.Limiter
	cache   map[string]result
}

// NewClient creates an explorer client for the given chain. minDelay is the
// minimum spacing between consecutive upstream requests.
func NewClient(apiKey string, minDelay time.Duration, chain string) *Client {
	if chain == "" {
		chain = "polygon"
	}
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		chain:   chain,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
		cache:   make(map[string]result),
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// FirstTransactionTimestamp returns the unix time of the wallet's earliest
// transaction. found is false when Etherscan reports no transactions for the
// address; that negative result is memoized like a hit. Transport failures
// and unexpected API statuses are errors.
func (c *Client) FirstTransactionTimestamp(ctx context.Context, address string) (int64, bool, error) {
	key := strings.ToLower(address)
	if cached, ok := c.cache[key]; ok {
		return cached.timestamp, cached.found, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}

	params := url.Values{}
	params.Set("chain", c.chain)
	params.Set("module", "account")
	params.Set("action", "txlist")
	params.Set("address", key)
	params.Set("startblock", "0")
	params.Set("endblock", "99999999")
	params.Set("page", "1")
	params.Set("offset", "1")
	params.Set("sort", "asc")
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("explorer request failed with status %d", resp.StatusCode)
	}

	var payload txListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false, fmt.Errorf("decode explorer response: %w", err)
	}

	if payload.Status != "1" {
		if strings.Contains(strings.ToLower(payload.Message), "no transactions found") {
			c.cache[key] = result{}
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("explorer responded with status %s (%s)", payload.Status, payload.Message)
	}

	if len(payload.Result) == 0 {
		return 0, false, nil
	}
	timestamp, err := strconv.ParseInt(payload.Result[0].TimeStamp, 10, 64)
	if err != nil {
		return 0, false, nil
	}

	c.cache[key] = result{timestamp: timestamp, found: true}
	return timestamp, true, nil
}
