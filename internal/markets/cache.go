package markets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polywatch/tracker/internal/jsonfile"
	"github.com/polywatch/tracker/internal/store"
)

// maxPages caps a refresh so a pagination bug on the upstream side cannot
// spin the fetch loop forever.
const maxPages = 200

// Cache holds the token-to-market mapping, backed by a persisted snapshot
// that is refreshed from the CLOB API when missing or older than the TTL.
// It exclusively owns its snapshot file.
type Cache struct {
	client *Client
	path   string
	ttl    time.Duration

	tokens    map[string]store.MarketTokenInfo
	outcomes  map[string][]string
	fetchedAt time.Time

	now func() time.Time
}

// NewCache creates a market cache persisting to path with the given TTL.
func NewCache(client *Client, path string, ttl time.Duration) *Cache {
	return &Cache{
		client:   client,
		path:     path,
		ttl:      ttl,
		tokens:   make(map[string]store.MarketTokenInfo),
		outcomes: make(map[string][]string),
		now:      time.Now,
	}
}

// Init loads the persisted snapshot, refreshing from the API if the snapshot
// is missing or stale.
func (c *Cache) Init(ctx context.Context) error {
	var snapshot store.MarketCacheSnapshot
	found, err := jsonfile.Read(c.path, &snapshot)
	if err != nil {
		return err
	}
	if found && !c.isStale(snapshot.FetchedAt) {
		c.apply(snapshot)
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Cache) isStale(fetchedAt time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	return c.now().Sub(fetchedAt) > c.ttl
}

func (c *Cache) apply(snapshot store.MarketCacheSnapshot) {
	tokens := make(map[string]store.MarketTokenInfo, len(snapshot.Tokens))
	for _, info := range snapshot.Tokens {
		tokens[info.TokenID] = info
	}
	outcomes := make(map[string][]string, len(snapshot.Outcomes))
	for conditionID, names := range snapshot.Outcomes {
		outcomes[conditionID] = names
	}
	c.tokens = tokens
	c.outcomes = outcomes
	c.fetchedAt = snapshot.FetchedAt
}

// Refresh walks the full paginated market catalog, rebuilds the in-memory
// maps, and persists the new snapshot atomically. Failures propagate: the
// catalog is load-bearing for trade filtering, and a silent partial catalog
// would produce false negatives.
func (c *Cache) Refresh(ctx context.Context) error {
	snapshot := store.MarketCacheSnapshot{
		FetchedAt: c.now().UTC(),
		Tokens:    make(map[string]store.MarketTokenInfo),
		Outcomes:  make(map[string][]string),
	}

	cursor := initialCursor
	pages := 0
	for pages < maxPages {
		pages++
		page, err := c.client.marketsPage(ctx, cursor)
		if err != nil {
			return fmt.Errorf("refresh market catalog: %w", err)
		}

		for _, market := range page.Data {
			names := make([]string, 0, len(market.Tokens))
			for _, token := range market.Tokens {
				names = append(names, token.Outcome)
			}
			snapshot.Outcomes[market.ConditionID] = names

			for _, token := range market.Tokens {
				snapshot.Tokens[token.TokenID] = store.MarketTokenInfo{
					MarketRef: store.MarketRef{
						ConditionID: market.ConditionID,
						Question:    market.Question,
						Outcome:     token.Outcome,
						Slug:        market.MarketSlug,
					},
					TokenID: token.TokenID,
					Closed:  market.Closed,
				}
			}
		}

		cursor = page.NextCursor
		if cursor == "" || cursor == endCursor {
			break
		}
	}

	c.apply(snapshot)
	slog.Info("market_catalog_refreshed",
		"tokens", len(c.tokens),
		"markets", len(c.outcomes),
		"pages", pages,
	)
	return jsonfile.Write(c.path, snapshot)
}

// TokenInfo resolves a token to its market binding. An empty cache is lazily
// initialized; an unknown token triggers exactly one refresh (not a retry
// loop) to cover markets listed since the last snapshot.
func (c *Cache) TokenInfo(ctx context.Context, tokenID string) (store.MarketTokenInfo, bool, error) {
	if len(c.tokens) == 0 {
		if err := c.Init(ctx); err != nil {
			return store.MarketTokenInfo{}, false, err
		}
	}
	info, ok := c.tokens[tokenID]
	if !ok {
		if err := c.Refresh(ctx); err != nil {
			return store.MarketTokenInfo{}, false, err
		}
		info, ok = c.tokens[tokenID]
	}
	return info, ok, nil
}

// Outcomes returns the outcome names of a market, or an empty list if the
// condition is unknown.
func (c *Cache) Outcomes(conditionID string) []string {
	return c.outcomes[conditionID]
}
