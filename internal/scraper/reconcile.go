package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drewfead/cinecal/internal"
)

type ReconcileStore interface {
	DeletePastShowtimes(ctx context.Context, before time.Time) (int64, error)
	DeleteStaleShowtimes(ctx context.Context, found map[int64]struct{}, theaterIDs []uint) (int64, error)
	DeleteOrphanMovies(ctx context.Context) (int64, error)
}

type CachePurger interface {
	Purge(ctx context.Context, typ internal.CacheType) (int64, error)
}

type Reconciler struct {
	store        ReconcileStore
	cache        CachePurger
	now          func() time.Time
	pruneOrphans bool
}

type ReconcilerOption func(*Reconciler)

// WithPruneOrphanMovies also deletes movies left without any showtime.
func WithPruneOrphanMovies(enabled bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.pruneOrphans = enabled
	}
}

func WithReconcileClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func NewReconciler(store ReconcileStore, cache CachePurger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{store: store, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prepare drops showtimes already in the past and expired showtimes-cache entries.
func (r *Reconciler) Prepare(ctx context.Context) error {
	past, err := r.store.DeletePastShowtimes(ctx, r.now())
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	var purged int64
	if r.cache != nil {
		purged, err = r.cache.Purge(ctx, internal.CacheTypeShowtimes)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
	}
	slog.Info("prepared crawl", "past_showtimes_deleted", past, "cache_entries_purged", purged)
	return nil
}

type ReconcileReport struct {
	DeletedShowtimes int64
	DeletedMovies    int64
}

// Reconcile deletes showtimes that the crawl did not see, limited to theaters that had at
// least one successful fetch. Theaters themselves are never deleted.
func (r *Reconciler) Reconcile(ctx context.Context, result *CrawlResult) (ReconcileReport, error) {
	var report ReconcileReport
	if result == nil {
		return report, nil
	}
	succeeded := result.SucceededTheaterIDs()
	deleted, err := r.store.DeleteStaleShowtimes(ctx, result.Found(), succeeded)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.DeletedShowtimes = deleted

	if r.pruneOrphans {
		movies, err := r.store.DeleteOrphanMovies(ctx)
		if err != nil {
			return report, fmt.Errorf("reconcile: %w", err)
		}
		report.DeletedMovies = movies
	}
	slog.Info("reconciled showtimes",
		"succeeded_theaters", len(succeeded),
		"showtimes_deleted", report.DeletedShowtimes,
		"movies_deleted", report.DeletedMovies)
	return report, nil
}
