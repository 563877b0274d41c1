package market

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache memoizes per-market quotes with a TTL. It is an explicit
// collaborator, injected where needed; there is no package-level instance.
type PriceCache struct {
	exchange Exchange
	ttl      time.Duration
	nowFn    func() time.Time

	mu      sync.Mutex
	entries map[string]priceEntry
}

type priceEntry struct {
	value     decimal.Decimal
	fetchedAt time.Time
}

// NewPriceCache wraps an Exchange with a TTL quote cache.
func NewPriceCache(exchange Exchange, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &PriceCache{
		exchange: exchange,
		ttl:      ttl,
		nowFn:    time.Now,
		entries:  make(map[string]priceEntry),
	}
}

// Get returns the cached quote for mkt, refreshing from the exchange when
// the entry is missing or older than the TTL.
func (c *PriceCache) Get(ctx context.Context, mkt string) (decimal.Decimal, error) {
	c.mu.Lock()
	entry, ok := c.entries[mkt]
	fresh := ok && c.nowFn().Sub(entry.fetchedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		return entry.value, nil
	}

	price, err := c.exchange.GetCurrentPrice(ctx, mkt)
	if err != nil {
		return decimal.Zero, err
	}
	c.mu.Lock()
	c.entries[mkt] = priceEntry{value: price, fetchedAt: c.nowFn()}
	c.mu.Unlock()
	return price, nil
}

// Invalidate drops the cached quote for mkt, forcing the next Get to hit
// the exchange.
func (c *PriceCache) Invalidate(mkt string) {
	c.mu.Lock()
	delete(c.entries, mkt)
	c.mu.Unlock()
}

// InvalidateAll clears the whole cache.
func (c *PriceCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]priceEntry)
	c.mu.Unlock()
}
