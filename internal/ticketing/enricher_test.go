package ticketing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageSource struct {
	mu    sync.Mutex
	pages map[string]string
}

func (p *pageSource) FetchTicketingDetail(_ context.Context, url string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	page, ok := p.pages[url]
	if !ok {
		return "", errors.New("not found")
	}
	return page, nil
}

func (p *pageSource) set(url, page string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[url] = page
}

type recordingPurger struct{ calls []internal.CacheType }

func (r *recordingPurger) Purge(_ context.Context, typ internal.CacheType) (int64, error) {
	r.calls = append(r.calls, typ)
	return 0, nil
}

type fixture struct {
	store    *store.Store
	movie    internal.Movie
	showtime *internal.Showtime
}

func newFixture(t *testing.T, ticketingURLs ...string) fixture {
	t.Helper()
	ctx := t.Context()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "ticketing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Seed(ctx))

	theaters, err := s.Theaters(ctx)
	require.NoError(t, err)
	movie := internal.Movie{AllocineID: 555, Title: "Example"}
	require.NoError(t, s.UpsertMovie(ctx, &movie, nil))

	var showtimes []internal.Showtime
	for i, u := range ticketingURLs {
		showtimes = append(showtimes, internal.Showtime{
			AllocineID:   int64(9001 + i),
			Date:         time.Now().Add(24 * time.Hour),
			Language:     internal.LanguageOriginal,
			TicketingURL: &u,
			MovieID:      movie.ID,
			TheaterID:    theaters[0].ID,
		})
	}
	showtimes = append(showtimes, internal.Showtime{
		AllocineID: 1, Date: time.Now().Add(24 * time.Hour), Language: internal.LanguageOriginal,
		MovieID: movie.ID, TheaterID: theaters[0].ID,
	})
	require.NoError(t, s.InsertShowtimes(ctx, showtimes))
	st, err := s.ShowtimeByAllocineID(ctx, 9001)
	require.NoError(t, err)
	return fixture{store: s, movie: movie, showtime: st}
}

func threePrices() string {
	return `<p>Plein<span>12 &euro;</span></p><p>R&eacute;duit<span>9 &euro;</span></p><p>Jeune<span>5 &euro;</span></p>`
}

func TestUnit_Enricher_ReplacesPricesAndTags(t *testing.T) {
	f := newFixture(t, "https://tickets.test/9001")
	ctx := t.Context()
	source := &pageSource{pages: map[string]string{"https://tickets.test/9001": threePrices()}}
	purger := &recordingPurger{}
	enricher := NewEnricher(f.store, source, WithPurger(purger), WithConcurrency(2))

	report, err := enricher.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Targets: 1, Enriched: 1}, report)
	prices, err := f.store.Prices(ctx, f.showtime.ID)
	require.NoError(t, err)
	require.Len(t, prices, 3)

	source.set("https://tickets.test/9001", readGoldenPage(t))
	_, err = enricher.Run(ctx)
	require.NoError(t, err)

	prices, err = f.store.Prices(ctx, f.showtime.ID)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, "Plein tarif", prices[0].Label)

	source.set("https://tickets.test/9001", `<p>A<span>1 &euro;</span></p><p>B<span>2 &euro;</span></p>`)
	_, err = enricher.Run(ctx)
	require.NoError(t, err)
	prices, err = f.store.Prices(ctx, f.showtime.ID)
	require.NoError(t, err)
	assert.Len(t, prices, 2, "3 old prices replaced by 2 new ones")

	st, err := f.store.ShowtimeByAllocineID(ctx, 9001)
	require.NoError(t, err)
	var showtimeTags []string
	for _, tag := range st.Tags {
		showtimeTags = append(showtimeTags, tag.Name)
	}
	assert.ElementsMatch(t, []string{"Grand Large", "Avant-première"}, showtimeTags)

	var movie internal.Movie
	require.NoError(t, f.store.DB().Preload("Tags").First(&movie, f.movie.ID).Error)
	require.Len(t, movie.Tags, 1)
	assert.Equal(t, "Oscar", movie.Tags[0].Name)

	assert.Equal(t, []internal.CacheType{internal.CacheTypeTicketing, internal.CacheTypeTicketing, internal.CacheTypeTicketing}, purger.calls)
}

func TestUnit_Enricher_FailuresDoNotStopRun(t *testing.T) {
	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://tickets.test/%d", i)
	}
	f := newFixture(t, urls...)
	source := &pageSource{pages: map[string]string{}}
	for i, u := range urls {
		if i%2 == 0 {
			source.pages[u] = threePrices()
		}
	}

	report, err := NewEnricher(f.store, source).Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, Report{Targets: 6, Enriched: 3, Failed: 3}, report)
}

type noPrices struct{}

func (noPrices) ExtractPrices(string) []internal.Price { return nil }

func TestUnit_Enricher_CustomExtractor(t *testing.T) {
	f := newFixture(t, "https://tickets.test/9001")
	ctx := t.Context()
	require.NoError(t, f.store.ReplacePrices(ctx, f.showtime.ID, []internal.Price{{Label: "old", Price: 1}}))
	source := &pageSource{pages: map[string]string{"https://tickets.test/9001": threePrices()}}

	_, err := NewEnricher(f.store, source, WithPriceExtractor(noPrices{})).Run(ctx)
	require.NoError(t, err)
	prices, err := f.store.Prices(ctx, f.showtime.ID)
	require.NoError(t, err)
	assert.Empty(t, prices)
}
