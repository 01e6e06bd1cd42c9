package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	rows    map[string]internal.CachedResponse
	loadErr error
	loads   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]internal.CachedResponse{}}
}

func (m *memoryStore) LoadCachedResponse(_ context.Context, url string, now time.Time) (internal.CachedResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return internal.CachedResponse{}, false, m.loadErr
	}
	row, ok := m.rows[url]
	if !ok || !row.ExpiresAt.After(now) {
		return internal.CachedResponse{}, false, nil
	}
	return row, true, nil
}

func (m *memoryStore) SaveCachedResponse(_ context.Context, cached internal.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[cached.URL] = cached
	return nil
}

func (m *memoryStore) PurgeExpiredResponses(_ context.Context, typ internal.CacheType, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for url, row := range m.rows {
		if row.Type == typ && !row.ExpiresAt.After(now) {
			delete(m.rows, url)
			n++
		}
	}
	return n, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestUnit_ExpiresAt(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC), ExpiresAt(internal.CacheTypeShowtimes, now, time.UTC))
	assert.Equal(t, now.Add(72*time.Hour), ExpiresAt(internal.CacheTypeTicketing, now, time.UTC))
}

func TestUnit_Cache_ShowtimesExpireAtEndOfDay(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}
	store := newMemoryStore()
	c := New(store, WithClock(clock.Now), WithLocation(time.UTC))
	ctx := t.Context()

	_, ok := c.Get(ctx, "u")
	assert.False(t, ok, "empty cache")

	require.NoError(t, c.Put(ctx, "u", "body", internal.CacheTypeShowtimes))
	body, ok := c.Get(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, "body", body)

	clock.Advance(13 * time.Hour)
	body, ok = c.Get(ctx, "u")
	require.True(t, ok, "still the same day")
	assert.Equal(t, "body", body)

	clock.Advance(time.Hour)
	_, ok = c.Get(ctx, "u")
	assert.False(t, ok, "expired after midnight")
}

func TestUnit_Cache_TicketingExpiresAfterThreeDays(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}
	c := New(newMemoryStore(), WithClock(clock.Now), WithLocation(time.UTC))
	ctx := t.Context()

	require.NoError(t, c.Put(ctx, "t", "page", internal.CacheTypeTicketing))
	clock.Advance(71 * time.Hour)
	_, ok := c.Get(ctx, "t")
	assert.True(t, ok)
	clock.Advance(2 * time.Hour)
	_, ok = c.Get(ctx, "t")
	assert.False(t, ok)
}

func TestUnit_Cache_MemoAvoidsStore(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}
	store := newMemoryStore()
	c := New(store, WithClock(clock.Now), WithLocation(time.UTC))
	ctx := t.Context()

	require.NoError(t, c.Put(ctx, "u", "body", internal.CacheTypeShowtimes))
	for range 3 {
		_, ok := c.Get(ctx, "u")
		require.True(t, ok)
	}
	assert.Zero(t, store.loads)

	uncached := New(store, WithClock(clock.Now), WithLocation(time.UTC), WithMemoSize(0))
	_, ok := uncached.Get(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, 1, store.loads)
}

func TestUnit_Cache_StoreErrorIsMiss(t *testing.T) {
	store := newMemoryStore()
	store.loadErr = errors.New("boom")
	c := New(store, WithMemoSize(0))

	_, ok := c.Get(t.Context(), "u")
	assert.False(t, ok)
}

func TestUnit_Cache_Purge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}
	store := newMemoryStore()
	c := New(store, WithClock(clock.Now), WithLocation(time.UTC))
	ctx := t.Context()

	require.NoError(t, c.Put(ctx, "s", "a", internal.CacheTypeShowtimes))
	require.NoError(t, c.Put(ctx, "t", "b", internal.CacheTypeTicketing))
	clock.Advance(24 * time.Hour)

	n, err := c.Purge(ctx, internal.CacheTypeShowtimes)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, ok := c.Get(ctx, "t")
	assert.True(t, ok, "ticketing entry survives a showtimes purge")
}
