// Package cache keeps upstream response bodies for a bounded time so repeated crawls
// within a day hit neither Allociné nor the ticketing sites twice.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TicketingTTL is how long a ticketing page stays fresh.
const TicketingTTL = 72 * time.Hour

// Store is the persistent side of the cache.
type Store interface {
	LoadCachedResponse(ctx context.Context, url string, now time.Time) (internal.CachedResponse, bool, error)
	SaveCachedResponse(ctx context.Context, cached internal.CachedResponse) error
	PurgeExpiredResponses(ctx context.Context, cacheType internal.CacheType, now time.Time) (int64, error)
}

type memoEntry struct {
	body      string
	expiresAt time.Time
}

// Cache fronts a Store with an in-process LRU. Memo entries carry their own expiration,
// checked against the injected clock, so a memo hit never outlives the persisted row.
type Cache struct {
	store Store
	memo  *expirable.LRU[string, memoEntry]
	now   func() time.Time
	loc   *time.Location
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone whose midnight ends a showtimes entry's life.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithMemoSize bounds the in-process memo; zero disables it.
func WithMemoSize(size int) Option {
	return func(c *Cache) {
		if size <= 0 {
			c.memo = nil
			return
		}
		c.memo = expirable.NewLRU[string, memoEntry](size, nil, TicketingTTL)
	}
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		memo:  expirable.NewLRU[string, memoEntry](256, nil, TicketingTTL),
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExpiresAt is the expiration policy: showtimes expire at the end of the current day,
// ticketing pages TicketingTTL after now.
func ExpiresAt(typ internal.CacheType, now time.Time, loc *time.Location) time.Time {
	switch typ {
	case internal.CacheTypeTicketing:
		return now.Add(TicketingTTL)
	default:
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
	}
}

// Get returns the body cached for url when present and not expired. Store failures are
// logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, url string) (string, bool) {
	now := c.now()
	if c.memo != nil {
		if e, ok := c.memo.Get(url); ok {
			if now.Before(e.expiresAt) {
				return e.body, true
			}
			c.memo.Remove(url)
		}
	}

	cached, ok, err := c.store.LoadCachedResponse(ctx, url, now)
	if err != nil {
		slog.WarnContext(ctx, "cache: lookup failed", "url", url, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	if c.memo != nil {
		c.memo.Add(url, memoEntry{body: cached.Content, expiresAt: cached.ExpiresAt})
	}
	return cached.Content, true
}

func (c *Cache) Put(ctx context.Context, url, body string, typ internal.CacheType) error {
	expiresAt := ExpiresAt(typ, c.now(), c.loc)
	err := c.store.SaveCachedResponse(ctx, internal.CachedResponse{
		URL:       url,
		Content:   body,
		ExpiresAt: expiresAt,
		Type:      typ,
	})
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", url, err)
	}
	if c.memo != nil {
		c.memo.Add(url, memoEntry{body: body, expiresAt: expiresAt})
	}
	return nil
}

// Purge deletes expired entries of one type from the store and drops the memo.
func (c *Cache) Purge(ctx context.Context, typ internal.CacheType) (int64, error) {
	n, err := c.store.PurgeExpiredResponses(ctx, typ, c.now())
	if err != nil {
		return 0, err
	}
	if c.memo != nil {
		c.memo.Purge()
	}
	slog.DebugContext(ctx, "cache: purged expired entries", "type", typ, "count", n)
	return n, nil
}

var _ internal.ResponseCache = (*Cache)(nil)
