package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tmdb "github.com/cyruzin/golang-tmdb"
	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/httputil"
)

const (
	tmdbImageBase  = "https://image.tmdb.org/t/p/original"
	searchLanguage = "fr-FR"
	memoSize       = 512
	memoTTL        = 24 * time.Hour
)

type tmdbFinder struct {
	client *tmdb.Client
}

type TMDBOption func(*tmdbConfig)

type tmdbConfig struct {
	base http.RoundTripper
}

// WithTMDBTransport sets the transport under the response memo; tests use it to reach a
// local server.
func WithTMDBTransport(rt http.RoundTripper) TMDBOption {
	return func(c *tmdbConfig) {
		c.base = rt
	}
}

// TMDB finds posters through the TMDB search API. token is a v4 read access token.
func TMDB(token string, opts ...TMDBOption) (internal.PosterFinder, error) {
	cfg := tmdbConfig{base: &httputil.Transport{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := tmdb.InitV4(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TMDB client: %w", err)
	}
	memo := httputil.NewMemoTransport(cfg.base, memoSize, memoTTL).OnLookup(func(key string, hit bool) {
		slog.Debug("tmdb lookup", "key", key, "cache_hit", hit)
	})
	client.SetClientConfig(http.Client{Transport: memo, Timeout: httputil.DefaultTimeout})
	return &tmdbFinder{client: client}, nil
}

func (f *tmdbFinder) FindPoster(ctx context.Context, query internal.PosterQuery) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title := query.OriginalTitle
	if title == "" {
		title = query.Title
	}
	if title == "" {
		return "", nil
	}
	results, err := f.client.GetSearchMovies(title, map[string]string{
		"language": searchLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("failed to search TMDB for %q: %w", title, err)
	}
	if results == nil {
		return "", nil
	}
	best := pickBestResult(results.Results, query)
	if best == nil {
		return "", nil
	}
	slog.Debug("tmdb match", "movie_id", query.MovieID, "title", title, "tmdb_id", best.ID, "tmdb_title", best.Title)
	return tmdbImageBase + best.PosterPath, nil
}

// titleEqual normalizes both strings (collapse spaces, case-insensitive) for comparison.
func titleEqual(a, b string) bool {
	norm := func(s string) string {
		return strings.ToUpper(strings.Join(strings.Fields(s), " "))
	}
	return norm(a) == norm(b)
}

func releaseYear(date string) int {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return 0
	}
	return t.Year()
}

// pickBestResult prefers a result matching both title and release year, then title, then
// year, then the first result. Results without a poster are never picked.
func pickBestResult(results []tmdb.MovieResult, query internal.PosterQuery) *tmdb.MovieResult {
	var best *tmdb.MovieResult
	bestScore := -1
	for i := range results {
		r := &results[i]
		if r.PosterPath == "" {
			continue
		}
		score := 0
		if titleEqual(r.OriginalTitle, query.OriginalTitle) || titleEqual(r.Title, query.Title) {
			score += 2
		}
		if query.ReleaseYear > 0 && releaseYear(r.ReleaseDate) == query.ReleaseYear {
			score++
		}
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}
