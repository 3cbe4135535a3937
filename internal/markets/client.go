// Package markets provides the Polymarket CLOB market catalog and its
// TTL-based snapshot cache.
package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// initialCursor is the CLOB pagination cursor for the first page.
	initialCursor = "MA=="
	// endCursor is the CLOB cursor value that marks the final page.
	endCursor = "LTE="
)

// rawToken is one outcome token as returned by the CLOB markets endpoint.
type rawToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// rawMarket is one market as returned by the CLOB markets endpoint.
type rawMarket struct {
	ConditionID string     `json:"condition_id"`
	Question    string     `json:"question"`
	MarketSlug  string     `json:"market_slug"`
	Closed      bool       `json:"closed"`
	Tokens      []rawToken `json:"tokens"`
}

// marketsPage is one page of the paginated markets listing.
type marketsPage struct {
	Data       []rawMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// Client fetches market metadata from the Polymarket CLOB API.
type Client struct {
	host   string
	client *http.Client
}

// NewClient creates a CLOB markets client for the given host.
func NewClient(host string) *Client {
	return &Client{
		host:   host,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// marketsPage fetches one page of the markets listing. Transient failures
// (transport errors, 429, 5xx) are retried with fibonacci backoff.
func (c *Client) marketsPage(ctx context.Context, cursor string) (marketsPage, error) {
	endpoint := fmt.Sprintf("%s/markets?next_cursor=%s", c.host, url.QueryEscape(cursor))

	var page marketsPage
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("fetch markets page: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("markets endpoint returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("markets endpoint returned %d", resp.StatusCode)
		}

		page = marketsPage{}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return fmt.Errorf("decode markets page: %w", err)
		}
		return nil
	})
	if err != nil {
		return marketsPage{}, err
	}
	return page, nil
}
