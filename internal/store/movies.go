package store

import (
	"context"
	"fmt"

	"github.com/drewfead/cinecal/internal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertMovie creates the movie on first sighting (keyed by AllocineID) and leaves an
// existing row untouched. movie is reloaded so its ID is set either way. Taxonomy tags
// are connected idempotently.
func (s *Store) UpsertMovie(ctx context.Context, movie *internal.Movie, tags []internal.MovieTag) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "allocine_id"}}, DoNothing: true}).
			Create(movie).Error
		if err != nil {
			return fmt.Errorf("failed to upsert movie %d: %w", movie.AllocineID, err)
		}
		var existing internal.Movie
		if err := tx.Where("allocine_id = ?", movie.AllocineID).First(&existing).Error; err != nil {
			return fmt.Errorf("failed to reload movie %d: %w", movie.AllocineID, err)
		}
		*movie = existing

		tagIDs := make([]uint, 0, len(tags))
		for _, tag := range tags {
			t := internal.MovieTag{Name: tag.Name}
			if err := tx.Where(internal.MovieTag{Name: tag.Name}).
				Attrs(internal.MovieTag{Category: tag.Category, IsFilterEnabled: tag.IsFilterEnabled}).
				FirstOrCreate(&t).Error; err != nil {
				return fmt.Errorf("failed to create movie tag %q: %w", tag.Name, err)
			}
			tagIDs = append(tagIDs, t.ID)
		}
		return connectMovieTags(tx, movie.ID, tagIDs)
	})
}

// ConnectMovieTags links tags to a movie; existing links are kept.
func (s *Store) ConnectMovieTags(ctx context.Context, movieID uint, tagIDs []uint) error {
	return connectMovieTags(s.db.WithContext(ctx), movieID, tagIDs)
}

func connectMovieTags(db *gorm.DB, movieID uint, tagIDs []uint) error {
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, map[string]any{"movie_id": movieID, "movie_tag_id": id})
	}
	err := db.Table("movie_tag_links").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to connect tags to movie %d: %w", movieID, err)
	}
	return nil
}

// DeleteOrphanMovies removes movies that no longer have any showtime.
func (s *Store) DeleteOrphanMovies(ctx context.Context) (int64, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&internal.Movie{}).
		Where("NOT EXISTS (SELECT 1 FROM showtimes WHERE showtimes.movie_id = movies.id)").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list orphan movies: %w", err)
	}

	var deleted int64
	for _, chunk := range chunks(ids, deleteChunkSize) {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec("DELETE FROM movie_tag_links WHERE movie_id IN ?", chunk).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", chunk).Delete(&internal.Movie{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete orphan movies: %w", err)
		}
	}
	return deleted, nil
}
