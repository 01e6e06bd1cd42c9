// Package scraper walks Allociné's showtimes pages theater by theater and day by day,
// persists what it finds and prunes what disappeared.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/allocine"
	"golang.org/x/sync/errgroup"
)

var ErrNoTheaters = errors.New("no theaters to crawl")

type ShowtimesFetcher interface {
	FetchShowtimes(ctx context.Context, theaterAllocineID string, day, page int) (*allocine.Response, error)
}

type CrawlStore interface {
	UpsertMovie(ctx context.Context, movie *internal.Movie, tags []internal.MovieTag) error
	InsertShowtimes(ctx context.Context, showtimes []internal.Showtime) error
}

// CrawlResult accumulates what one crawl saw. It is owned by a single Crawl call.
type CrawlResult struct {
	mu        sync.Mutex
	found     map[int64]struct{}
	succeeded map[uint]struct{}
}

func NewCrawlResult() *CrawlResult {
	return &CrawlResult{
		found:     make(map[int64]struct{}),
		succeeded: make(map[uint]struct{}),
	}
}

func (r *CrawlResult) addFound(showtimes []internal.Showtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range showtimes {
		r.found[st.AllocineID] = struct{}{}
	}
}

func (r *CrawlResult) markSucceeded(theaterID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded[theaterID] = struct{}{}
}

// Found returns a copy of the showtime ids seen during the crawl.
func (r *CrawlResult) Found() map[int64]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]struct{}, len(r.found))
	for id := range r.found {
		out[id] = struct{}{}
	}
	return out
}

// SucceededTheaterIDs lists theaters with at least one successful fetch, in ascending order.
func (r *CrawlResult) SucceededTheaterIDs() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.succeeded))
	for id := range r.succeeded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type Crawler struct {
	fetcher     ShowtimesFetcher
	store       CrawlStore
	concurrency int
}

type CrawlerOption func(*Crawler)

// WithTheaterConcurrency crawls up to n theaters at once. Each worker walks whole theaters.
func WithTheaterConcurrency(n int) CrawlerOption {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewCrawler(fetcher ShowtimesFetcher, store CrawlStore, opts ...CrawlerOption) *Crawler {
	c := &Crawler{fetcher: fetcher, store: store, concurrency: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl visits every page of days 0..maxDay for each theater. Fetch and persistence
// failures are logged and skipped; only cancellation is returned, alongside the partial result.
func (c *Crawler) Crawl(ctx context.Context, theaters []internal.Theater, maxDay int) (*CrawlResult, error) {
	if len(theaters) == 0 {
		return nil, ErrNoTheaters
	}
	if maxDay < 0 {
		maxDay = 0
	}
	result := NewCrawlResult()

	if c.concurrency <= 1 || len(theaters) == 1 {
		c.walk(ctx, theaters, maxDay, result)
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for i := range theaters {
			single := theaters[i : i+1]
			g.Go(func() error {
				c.walk(gctx, single, maxDay, result)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("crawl interrupted: %w", err)
	}
	slog.Info("crawl finished",
		"theaters", len(theaters),
		"succeeded", len(result.SucceededTheaterIDs()),
		"showtimes_found", len(result.Found()))
	return result, nil
}

func (c *Crawler) walk(ctx context.Context, theaters []internal.Theater, maxDay int, result *CrawlResult) {
	cur := Start
	for ctx.Err() == nil {
		totalPages := c.crawlUnit(ctx, theaters[cur.Theater], cur, result)
		next, ok := cur.Next(totalPages, maxDay, len(theaters))
		if !ok {
			return
		}
		cur = next
	}
}

// crawlUnit fetches and persists one page and returns its page count, 0 on failure.
func (c *Crawler) crawlUnit(ctx context.Context, theater internal.Theater, cur Cursor, result *CrawlResult) int {
	log := slog.With("theater", theater.Name, "allocine_id", theater.AllocineID, "day", cur.Day, "page", cur.Page)

	resp, err := c.fetcher.FetchShowtimes(ctx, theater.AllocineID, cur.Day, cur.Page)
	if err != nil {
		log.Warn("fetch failed, skipping", "error", err)
		return 0
	}
	result.markSucceeded(theater.ID)
	log.Debug("fetched showtimes", "movies", len(resp.Results))

	for _, r := range resp.Results {
		if ctx.Err() != nil {
			break
		}
		c.persistResult(ctx, log, theater, r, result)
	}
	return resp.Pagination.TotalPages
}

func (c *Crawler) persistResult(ctx context.Context, log *slog.Logger, theater internal.Theater, r allocine.Result, result *CrawlResult) {
	if r.Movie == nil {
		log.Debug("skipping result with no movie")
		return
	}
	if IsExcluded(r.Movie.Title) {
		log.Debug("skipping excluded movie", "title", r.Movie.Title)
		return
	}

	movie := NormalizeMovie(r.Movie)
	if err := c.store.UpsertMovie(ctx, &movie, MovieTags(r.Movie)); err != nil {
		log.Error("failed to upsert movie", "movie_id", r.Movie.InternalID, "error", err)
		return
	}

	unique := r.Showtimes.Unique()
	showtimes := make([]internal.Showtime, 0, len(unique))
	for _, st := range unique {
		showtime, err := NormalizeShowtime(st, movie.ID, theater.ID)
		if err != nil {
			log.Warn("skipping showtime", "error", err)
			continue
		}
		showtimes = append(showtimes, showtime)
	}
	if err := c.store.InsertShowtimes(ctx, showtimes); err != nil {
		log.Error("failed to insert showtimes", "movie_id", r.Movie.InternalID, "error", err)
		return
	}
	result.addFound(showtimes)
}
