package store

import (
	"context"
	"fmt"

	"github.com/drewfead/cinecal/internal"
)

// PosterUploadCandidates lists movies with a poster source but no CDN file yet.
func (s *Store) PosterUploadCandidates(ctx context.Context) ([]internal.PosterCandidate, error) {
	return s.posterCandidates(ctx, "poster_source_url IS NOT NULL AND poster_source_url <> '' AND (poster_name IS NULL OR poster_name = '')")
}

// BlurHashCandidates lists movies with a CDN file but no blur hash.
func (s *Store) BlurHashCandidates(ctx context.Context) ([]internal.PosterCandidate, error) {
	return s.posterCandidates(ctx, "poster_name IS NOT NULL AND poster_name <> '' AND (poster_blur_hash IS NULL OR poster_blur_hash = '')")
}

func (s *Store) posterCandidates(ctx context.Context, where string) ([]internal.PosterCandidate, error) {
	var movies []internal.Movie
	if err := s.db.WithContext(ctx).Where(where).Order("id asc").Find(&movies).Error; err != nil {
		return nil, fmt.Errorf("failed to list poster candidates: %w", err)
	}
	out := make([]internal.PosterCandidate, 0, len(movies))
	for _, m := range movies {
		out = append(out, internal.PosterCandidate{
			MovieID:         m.ID,
			OriginalTitle:   m.OriginalTitle,
			PosterSourceURL: deref(m.PosterSourceURL),
			PosterName:      deref(m.PosterName),
		})
	}
	return out, nil
}

// MoviesWithoutPosterSource lists movies the upstream gave no poster for.
func (s *Store) MoviesWithoutPosterSource(ctx context.Context) ([]internal.Movie, error) {
	var movies []internal.Movie
	err := s.db.WithContext(ctx).
		Where("poster_source_url IS NULL OR poster_source_url = ''").
		Order("id asc").
		Find(&movies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list movies without poster: %w", err)
	}
	return movies, nil
}

func (s *Store) SetPosterSourceURL(ctx context.Context, movieID uint, url string) error {
	return s.setMovieColumn(ctx, movieID, "poster_source_url", url)
}

func (s *Store) SetPosterName(ctx context.Context, movieID uint, name string) error {
	return s.setMovieColumn(ctx, movieID, "poster_name", name)
}

func (s *Store) SetBlurHash(ctx context.Context, movieID uint, hash string) error {
	return s.setMovieColumn(ctx, movieID, "poster_blur_hash", hash)
}

func (s *Store) setMovieColumn(ctx context.Context, movieID uint, column, value string) error {
	err := s.db.WithContext(ctx).Model(&internal.Movie{}).
		Where("id = ?", movieID).
		Update(column, value).Error
	if err != nil {
		return fmt.Errorf("failed to set %s of movie %d: %w", column, movieID, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
