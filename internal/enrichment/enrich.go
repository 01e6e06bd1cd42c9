// Package enrichment finds movie metadata the listing upstream left out.
package enrichment

import (
	"context"
	"log/slog"

	"github.com/drewfead/cinecal/internal"
)

// Chain asks each finder in turn and returns the first poster found. A failing finder is
// logged and skipped.
type Chain []internal.PosterFinder

func (c Chain) FindPoster(ctx context.Context, query internal.PosterQuery) (string, error) {
	for i, finder := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		url, err := finder.FindPoster(ctx, query)
		if err != nil {
			slog.Warn("poster finder failed",
				"movie_id", query.MovieID,
				"finder_index", i,
				"error", err)
			continue
		}
		if url != "" {
			return url, nil
		}
	}
	return "", nil
}
