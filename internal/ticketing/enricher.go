// Package ticketing enriches persisted showtimes from their ticketing pages: price grids
// and pattern-matched movie and showtime tags.
package ticketing

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/drewfead/cinecal/internal"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 4

type Store interface {
	TicketingTargets(ctx context.Context) ([]internal.TicketingTarget, error)
	MovieTagPatterns(ctx context.Context) ([]internal.TagPattern, error)
	ShowtimeTagPatterns(ctx context.Context) ([]internal.TagPattern, error)
	ConnectMovieTags(ctx context.Context, movieID uint, tagIDs []uint) error
	ConnectShowtimeTags(ctx context.Context, showtimeID uint, tagIDs []uint) error
	ReplacePrices(ctx context.Context, showtimeID uint, prices []internal.Price) error
}

type Purger interface {
	Purge(ctx context.Context, typ internal.CacheType) (int64, error)
}

type Enricher struct {
	store       Store
	source      internal.TicketingSource
	purger      Purger
	extractor   PriceExtractor
	matcher     *TagMatcher
	concurrency int
}

type Option func(*Enricher)

func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithPriceExtractor(x PriceExtractor) Option {
	return func(e *Enricher) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithPurger drops expired ticketing cache entries before each run.
func WithPurger(p Purger) Option {
	return func(e *Enricher) {
		e.purger = p
	}
}

func NewEnricher(store Store, source internal.TicketingSource, opts ...Option) *Enricher {
	e := &Enricher{
		store:       store,
		source:      source,
		extractor:   NewRegexpPriceExtractor(),
		matcher:     NewTagMatcher(128),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Report struct {
	Targets  int
	Enriched int
	Failed   int
}

// Run enriches every showtime that has a ticketing URL. Failures are per showtime and
// never stop the run; only loading the work list can fail it.
func (e *Enricher) Run(ctx context.Context) (Report, error) {
	var report Report
	if e.purger != nil {
		if _, err := e.purger.Purge(ctx, internal.CacheTypeTicketing); err != nil {
			return report, fmt.Errorf("ticketing: %w", err)
		}
	}
	movieTags, err := e.store.MovieTagPatterns(ctx)
	if err != nil {
		return report, fmt.Errorf("ticketing: %w", err)
	}
	showtimeTags, err := e.store.ShowtimeTagPatterns(ctx)
	if err != nil {
		return report, fmt.Errorf("ticketing: %w", err)
	}
	targets, err := e.store.TicketingTargets(ctx)
	if err != nil {
		return report, fmt.Errorf("ticketing: %w", err)
	}
	report.Targets = len(targets)

	var enriched, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, target := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := e.enrich(gctx, target, movieTags, showtimeTags); err != nil {
				failed.Add(1)
				slog.Warn("ticketing: enrichment failed",
					"showtime_id", target.ShowtimeID,
					"url", target.TicketingURL,
					"error", err)
				return nil
			}
			enriched.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Enriched = int(enriched.Load())
	report.Failed = int(failed.Load())
	slog.Info("ticketing enrichment finished", "targets", report.Targets, "enriched", report.Enriched, "failed", report.Failed)
	return report, ctx.Err()
}

func (e *Enricher) enrich(ctx context.Context, target internal.TicketingTarget, movieTags, showtimeTags []internal.TagPattern) error {
	page, err := e.source.FetchTicketingDetail(ctx, target.TicketingURL)
	if err != nil {
		return err
	}

	if ids := e.matcher.Match(movieTags, page); len(ids) > 0 {
		if err := e.store.ConnectMovieTags(ctx, target.MovieID, ids); err != nil {
			return err
		}
	}
	if ids := e.matcher.Match(showtimeTags, page); len(ids) > 0 {
		if err := e.store.ConnectShowtimeTags(ctx, target.ShowtimeID, ids); err != nil {
			return err
		}
	}

	prices := e.extractor.ExtractPrices(page)
	if err := e.store.ReplacePrices(ctx, target.ShowtimeID, prices); err != nil {
		return err
	}
	slog.Debug("ticketing: enriched showtime", "showtime_id", target.ShowtimeID, "prices", len(prices))
	return nil
}
