package internal

import "context"

type PosterQuery struct {
	MovieID       uint
	Title         string
	OriginalTitle string
	ReleaseYear   int
}

type PosterFinder interface {
	// FindPoster makes a best-effort attempt to find a poster image URL for a movie
	// the upstream listing gave no poster for. An empty URL with a nil error means no match.
	FindPoster(ctx context.Context, query PosterQuery) (string, error)
}
