// Package services runs the pipeline stages against one database: crawl and reconcile,
// ticketing enrichment, poster upload and blur hashes.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/posters"
	"github.com/drewfead/cinecal/internal/scraper"
	"github.com/drewfead/cinecal/internal/store"
	"github.com/drewfead/cinecal/internal/ticketing"
	"github.com/google/uuid"
)

const DefaultMaxDays = 90

// ErrPostersDisabled is returned by poster stages when no CDN is configured.
var ErrPostersDisabled = errors.New("poster pipeline not configured")

type Pipeline struct {
	store      *store.Store
	crawler    *scraper.Crawler
	reconciler *scraper.Reconciler
	enricher   *ticketing.Enricher
	posters    *posters.Pipeline
}

// Stages are the components a Pipeline runs. Posters may be nil.
type Stages struct {
	Crawler    *scraper.Crawler
	Reconciler *scraper.Reconciler
	Enricher   *ticketing.Enricher
	Posters    *posters.Pipeline
}

func NewPipeline(s *store.Store, stages Stages) *Pipeline {
	return &Pipeline{
		store:      s,
		crawler:    stages.Crawler,
		reconciler: stages.Reconciler,
		enricher:   stages.Enricher,
		posters:    stages.Posters,
	}
}

type CrawlSummary struct {
	RunID             string
	Before            internal.Counts
	After             internal.Counts
	SucceededTheaters int
	TotalTheaters     int
	ShowtimesFound    int
	Reconcile         scraper.ReconcileReport
	ReconcileSkipped  bool
}

// RunCrawl crawls days 0..maxDays of every theater and prunes what the crawl no longer
// saw. An interrupted crawl is not reconciled.
func (p *Pipeline) RunCrawl(ctx context.Context, maxDays int) (CrawlSummary, error) {
	summary := CrawlSummary{RunID: uuid.NewString()}
	log := slog.With("run_id", summary.RunID, "stage", "crawl")

	before, err := p.store.Counts(ctx, internal.CacheTypeShowtimes)
	if err != nil {
		return summary, err
	}
	summary.Before = before
	log.Info("crawl starting",
		"max_days", maxDays,
		"cached_urls", before.CachedResponses,
		"movies", before.Movies,
		"showtimes", before.Showtimes)

	if err := p.reconciler.Prepare(ctx); err != nil {
		return summary, err
	}
	theaters, err := p.store.Theaters(ctx)
	if err != nil {
		return summary, err
	}
	summary.TotalTheaters = len(theaters)

	result, crawlErr := p.crawler.Crawl(ctx, theaters, maxDays)
	if result != nil {
		summary.SucceededTheaters = len(result.SucceededTheaterIDs())
		summary.ShowtimesFound = len(result.Found())
	}
	if crawlErr != nil {
		summary.ReconcileSkipped = true
		log.Warn("crawl did not complete, skipping reconciliation", "error", crawlErr)
		return summary, crawlErr
	}

	report, err := p.reconciler.Reconcile(ctx, result)
	if err != nil {
		return summary, err
	}
	summary.Reconcile = report

	// counts are informational; the crawl already happened
	after, err := p.store.Counts(context.WithoutCancel(ctx), internal.CacheTypeShowtimes)
	if err != nil {
		log.Warn("failed to count after crawl", "error", err)
	}
	summary.After = after
	log.Info("crawl done",
		"succeeded_theaters", summary.SucceededTheaters,
		"theaters", summary.TotalTheaters,
		"cached_urls", after.CachedResponses,
		"movies", after.Movies,
		"showtimes", after.Showtimes,
		"showtimes_deleted", report.DeletedShowtimes,
		"movies_deleted", report.DeletedMovies)
	return summary, nil
}

func (p *Pipeline) RunTicketing(ctx context.Context) (ticketing.Report, error) {
	log := slog.With("run_id", uuid.NewString(), "stage", "ticketing")
	before, err := p.store.Counts(ctx, internal.CacheTypeTicketing)
	if err != nil {
		return ticketing.Report{}, err
	}
	log.Info("ticketing starting", "cached_urls", before.CachedResponses, "showtimes", before.Showtimes)

	report, err := p.enricher.Run(ctx)
	if err != nil {
		return report, err
	}
	after, err := p.store.Counts(ctx, internal.CacheTypeTicketing)
	if err != nil {
		log.Warn("failed to count after ticketing", "error", err)
	}
	log.Info("ticketing done",
		"targets", report.Targets,
		"enriched", report.Enriched,
		"failed", report.Failed,
		"cached_urls", after.CachedResponses)
	return report, nil
}

func (p *Pipeline) RunPosters(ctx context.Context) (posters.UploadReport, error) {
	if p.posters == nil {
		return posters.UploadReport{}, ErrPostersDisabled
	}
	slog.Info("posters starting", "run_id", uuid.NewString())
	return p.posters.UploadPosters(ctx)
}

func (p *Pipeline) RunBlurHashes(ctx context.Context) (posters.BlurHashReport, error) {
	if p.posters == nil {
		return posters.BlurHashReport{}, ErrPostersDisabled
	}
	slog.Info("blur hashes starting", "run_id", uuid.NewString())
	return p.posters.ComputeBlurHashes(ctx)
}

// RunAll runs every stage in order. A failed crawl stops the run; later stages are
// independent and each failure is reported without stopping the others.
func (p *Pipeline) RunAll(ctx context.Context, maxDays int) error {
	if _, err := p.RunCrawl(ctx, maxDays); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	var errs []error
	if _, err := p.RunTicketing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ticketing: %w", err))
	}
	if p.posters == nil {
		slog.Info("skipping posters", "reason", ErrPostersDisabled)
		return errors.Join(errs...)
	}
	if _, err := p.RunPosters(ctx); err != nil {
		errs = append(errs, fmt.Errorf("posters: %w", err))
	}
	if _, err := p.RunBlurHashes(ctx); err != nil {
		errs = append(errs, fmt.Errorf("blur hashes: %w", err))
	}
	return errors.Join(errs...)
}
