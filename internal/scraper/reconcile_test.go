package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/allocine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	types []internal.CacheType
}

func (p *countingPurger) Purge(_ context.Context, typ internal.CacheType) (int64, error) {
	p.types = append(p.types, typ)
	return 0, nil
}

func TestUnit_Reconcile_PruningSafety(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	theaters := addTheaters(t, s, "A", "B")
	a, b := theaters[0], theaters[1]

	seed := &fakeFetcher{pages: map[string]*allocine.Response{
		pageKey("A", 0, 1): page(1, movieResult(1, "Old A", 100)),
		pageKey("B", 0, 1): page(1, movieResult(2, "Old B", 200)),
	}}
	_, err := NewCrawler(seed, s).Crawl(ctx, theaters, 0)
	require.NoError(t, err)

	// A answers with a new programme, every fetch for B fails.
	fetcher := &fakeFetcher{pages: map[string]*allocine.Response{
		pageKey("A", 0, 1): page(1, movieResult(3, "New A", 101)),
	}}
	result, err := NewCrawler(fetcher, s).Crawl(ctx, theaters, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID}, result.SucceededTheaterIDs())

	report, err := NewReconciler(s, nil, WithPruneOrphanMovies(true)).Reconcile(ctx, result)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.DeletedShowtimes)
	assert.EqualValues(t, 1, report.DeletedMovies, "Old A has no showtime left")

	_, err = s.ShowtimeByAllocineID(ctx, 100)
	require.Error(t, err, "stale showtime of the succeeded theater is pruned")
	kept, err := s.ShowtimeByAllocineID(ctx, 200)
	require.NoError(t, err, "failed theater keeps its showtimes")
	assert.Equal(t, b.ID, kept.TheaterID)
	_, err = s.ShowtimeByAllocineID(ctx, 101)
	require.NoError(t, err)

	remaining, err := s.Theaters(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "theaters are never deleted")
}

func TestUnit_Reconcile_AllTheatersFailedDeletesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	theaters := addTheaters(t, s, "A")
	seed := &fakeFetcher{pages: map[string]*allocine.Response{
		pageKey("A", 0, 1): page(1, movieResult(1, "One", 1, 2)),
	}}
	_, err := NewCrawler(seed, s).Crawl(ctx, theaters, 0)
	require.NoError(t, err)

	result, err := NewCrawler(&fakeFetcher{}, s).Crawl(ctx, theaters, 0)
	require.NoError(t, err)
	report, err := NewReconciler(s, nil).Reconcile(ctx, result)
	require.NoError(t, err)
	assert.Zero(t, report.DeletedShowtimes)

	counts, err := s.Counts(ctx, internal.CacheTypeShowtimes)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts.Showtimes)
}

func TestUnit_Reconciler_Prepare(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	theaters := addTheaters(t, s, "A")
	movie := internal.Movie{AllocineID: 1, Title: "One"}
	require.NoError(t, s.UpsertMovie(ctx, &movie, nil))
	now := time.Now()
	require.NoError(t, s.InsertShowtimes(ctx, []internal.Showtime{
		{AllocineID: 1, Date: now.Add(-time.Hour), Language: internal.LanguageOriginal, MovieID: movie.ID, TheaterID: theaters[0].ID},
		{AllocineID: 2, Date: now.Add(time.Hour), Language: internal.LanguageOriginal, MovieID: movie.ID, TheaterID: theaters[0].ID},
	}))
	purger := &countingPurger{}

	require.NoError(t, NewReconciler(s, purger, WithReconcileClock(func() time.Time { return now })).Prepare(ctx))

	assert.Equal(t, []internal.CacheType{internal.CacheTypeShowtimes}, purger.types)
	counts, err := s.Counts(ctx, internal.CacheTypeShowtimes)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Showtimes)
}
