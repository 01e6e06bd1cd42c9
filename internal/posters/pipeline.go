// Package posters mirrors upstream posters onto the ImageKit CDN and computes the blur
// hashes shown while they load.
package posters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/httputil"
)

type Store interface {
	PosterUploadCandidates(ctx context.Context) ([]internal.PosterCandidate, error)
	BlurHashCandidates(ctx context.Context) ([]internal.PosterCandidate, error)
	MoviesWithoutPosterSource(ctx context.Context) ([]internal.Movie, error)
	SetPosterSourceURL(ctx context.Context, movieID uint, url string) error
	SetPosterName(ctx context.Context, movieID uint, name string) error
	SetBlurHash(ctx context.Context, movieID uint, hash string) error
}

type CDN interface {
	ListFiles(ctx context.Context, folder string, movieIDs []uint) ([]File, error)
	UploadFile(ctx context.Context, upload Upload) (string, error)
}

type Pipeline struct {
	store         Store
	cdn           CDN
	finder        internal.PosterFinder
	httpClient    *http.Client
	folder        string
	cdnBase       string
	lookupBatch   int
	lookupPause   time.Duration
	uploadPause   time.Duration
	uploadBackoff time.Duration
}

type Option func(*Pipeline)

func WithFolder(folder string) Option {
	return func(p *Pipeline) {
		if folder != "" {
			p.folder = folder
		}
	}
}

func WithCDNBase(base string) Option {
	return func(p *Pipeline) {
		if base != "" {
			p.cdnBase = base
		}
	}
}

func WithClient(client *http.Client) Option {
	return func(p *Pipeline) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithPosterFinder looks up a poster source for movies the upstream gave none.
func WithPosterFinder(finder internal.PosterFinder) Option {
	return func(p *Pipeline) {
		p.finder = finder
	}
}

// WithDelays overrides the pause between lookup batches, the pause before each upload
// and the backoff before the single upload retry.
func WithDelays(lookupPause, uploadPause, uploadBackoff time.Duration) Option {
	return func(p *Pipeline) {
		p.lookupPause = lookupPause
		p.uploadPause = uploadPause
		p.uploadBackoff = uploadBackoff
	}
}

func WithLookupBatch(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.lookupBatch = n
		}
	}
}

func NewPipeline(store Store, cdn CDN, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:         store,
		cdn:           cdn,
		folder:        Folder(""),
		cdnBase:       defaultCDNBase,
		lookupBatch:   defaultLookupBatch,
		lookupPause:   defaultLookupPause,
		uploadPause:   defaultUploadPause,
		uploadBackoff: defaultUploadBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = httputil.NewClient(httputil.DefaultTimeout)
	}
	return p
}

type UploadReport struct {
	Candidates int
	Found      int // poster sources filled in by the finder
	Reused     int
	Uploaded   int
	Failed     int
}

// UploadPosters gives every movie with a poster source a CDN file name, reusing a file
// already uploaded for the same source image when there is one.
func (p *Pipeline) UploadPosters(ctx context.Context) (UploadReport, error) {
	var report UploadReport
	if p.finder != nil {
		report.Found = p.findMissingSources(ctx)
	}

	candidates, err := p.store.PosterUploadCandidates(ctx)
	if err != nil {
		return report, fmt.Errorf("posters: %w", err)
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	existing, err := p.uploadedFiles(ctx, candidates)
	if err != nil {
		return report, fmt.Errorf("posters: %w", err)
	}

	for _, movie := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		log := slog.With("movie_id", movie.MovieID, "title", movie.OriginalTitle)

		if file, ok := existing[lastSegment(movie.PosterSourceURL)]; ok {
			if err := p.store.SetPosterName(ctx, movie.MovieID, file.Name); err != nil {
				log.Error("failed to save poster name", "error", err)
				report.Failed++
				continue
			}
			log.Debug("reusing uploaded poster", "url", file.URL)
			report.Reused++
			continue
		}

		name, err := p.upload(ctx, movie)
		if err != nil {
			log.Warn("poster upload failed", "source", movie.PosterSourceURL, "error", err)
			report.Failed++
			continue
		}
		if err := p.store.SetPosterName(ctx, movie.MovieID, name); err != nil {
			log.Error("failed to save poster name", "error", err)
			report.Failed++
			continue
		}
		log.Debug("uploaded poster", "name", name)
		report.Uploaded++
	}
	slog.Info("poster upload finished",
		"candidates", report.Candidates,
		"found", report.Found,
		"reused", report.Reused,
		"uploaded", report.Uploaded,
		"failed", report.Failed)
	return report, nil
}

// uploadedFiles lists what is already on the CDN for the candidates, keyed by the last
// path segment of the source image URL.
func (p *Pipeline) uploadedFiles(ctx context.Context, candidates []internal.PosterCandidate) (map[string]File, error) {
	existing := make(map[string]File)
	for start := 0; start < len(candidates); start += p.lookupBatch {
		end := min(start+p.lookupBatch, len(candidates))
		ids := make([]uint, 0, end-start)
		for _, c := range candidates[start:end] {
			ids = append(ids, c.MovieID)
		}
		files, err := p.cdn.ListFiles(ctx, p.folder, ids)
		if err != nil {
			return nil, err
		}
		slog.Debug("listed uploaded posters", "requested", len(ids), "found", len(files))
		for _, f := range files {
			if key := lastSegment(f.CustomMetadata.AllocineURL); key != "" {
				existing[key] = f
			}
		}
		if err := sleep(ctx, p.lookupPause); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (p *Pipeline) upload(ctx context.Context, movie internal.PosterCandidate) (string, error) {
	upload := Upload{
		SourceURL: movie.PosterSourceURL,
		FileName:  fmt.Sprintf("%d", movie.MovieID),
		Folder:    p.folder,
		Metadata: CustomMetadata{
			ID:          movie.MovieID,
			Title:       movie.OriginalTitle,
			AllocineURL: movie.PosterSourceURL,
		},
	}
	if err := sleep(ctx, p.uploadPause); err != nil {
		return "", err
	}
	name, err := p.cdn.UploadFile(ctx, upload)
	if err == nil {
		return name, nil
	}
	slog.Debug("retrying poster upload", "movie_id", movie.MovieID, "error", err)
	if err := sleep(ctx, p.uploadBackoff); err != nil {
		return "", err
	}
	return p.cdn.UploadFile(ctx, upload)
}

func (p *Pipeline) findMissingSources(ctx context.Context) int {
	movies, err := p.store.MoviesWithoutPosterSource(ctx)
	if err != nil {
		slog.Warn("failed to list movies without poster", "error", err)
		return 0
	}
	found := 0
	for _, m := range movies {
		query := internal.PosterQuery{MovieID: m.ID, Title: m.Title, OriginalTitle: m.OriginalTitle}
		if m.ReleaseDate != nil {
			query.ReleaseYear = m.ReleaseDate.Year()
		}
		url, err := p.finder.FindPoster(ctx, query)
		if err != nil {
			slog.Warn("poster lookup failed", "movie_id", m.ID, "error", err)
			continue
		}
		if url == "" {
			continue
		}
		if err := p.store.SetPosterSourceURL(ctx, m.ID, url); err != nil {
			slog.Error("failed to save poster source", "movie_id", m.ID, "error", err)
			continue
		}
		found++
	}
	return found
}

type BlurHashReport struct {
	Candidates int
	Computed   int
	Failed     int
}

// ComputeBlurHashes fills in the blur hash of every movie with a CDN poster and no hash.
func (p *Pipeline) ComputeBlurHashes(ctx context.Context) (BlurHashReport, error) {
	var report BlurHashReport
	candidates, err := p.store.BlurHashCandidates(ctx)
	if err != nil {
		return report, fmt.Errorf("blur hashes: %w", err)
	}
	report.Candidates = len(candidates)

	for _, movie := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		url := PosterURL(p.cdnBase, p.folder, movie.PosterName)
		hash, err := p.blurHash(ctx, url)
		if err != nil {
			slog.Warn("blur hash failed", "movie_id", movie.MovieID, "url", url, "error", err)
			report.Failed++
			continue
		}
		if err := p.store.SetBlurHash(ctx, movie.MovieID, hash); err != nil {
			slog.Error("failed to save blur hash", "movie_id", movie.MovieID, "error", err)
			report.Failed++
			continue
		}
		slog.Debug("computed blur hash", "url", url, "hash", hash)
		report.Computed++
	}
	slog.Info("blur hashes finished", "candidates", report.Candidates, "computed", report.Computed, "failed", report.Failed)
	return report, nil
}

func (p *Pipeline) blurHash(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("get poster: %s", resp.Status)
	}
	return BlurHash(resp.Body)
}

func lastSegment(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, "/")
	if rawURL == "" {
		return ""
	}
	return path.Base(rawURL)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
