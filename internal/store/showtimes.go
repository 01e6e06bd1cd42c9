package store

import (
	"context"
	"fmt"
	"time"

	"github.com/drewfead/cinecal/internal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertShowtimes inserts showtimes, skipping any whose AllocineID already exists.
// Existing rows are never updated by a re-crawl.
func (s *Store) InsertShowtimes(ctx context.Context, showtimes []internal.Showtime) error {
	if len(showtimes) == 0 {
		return nil
	}
	for i := range showtimes {
		showtimes[i].Date = showtimes[i].Date.UTC().Truncate(time.Second)
	}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "allocine_id"}}, DoNothing: true}).
		CreateInBatches(&showtimes, 100).Error
	if err != nil {
		return fmt.Errorf("failed to insert %d showtimes: %w", len(showtimes), err)
	}
	return nil
}

// DeletePastShowtimes removes showtimes dated strictly before the given instant.
func (s *Store) DeletePastShowtimes(ctx context.Context, before time.Time) (int64, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&internal.Showtime{}).
		Where("date < ?", before.UTC()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list past showtimes: %w", err)
	}
	return s.deleteShowtimes(ctx, ids)
}

// DeleteStaleShowtimes removes showtimes belonging to one of theaterIDs whose AllocineID is
// not in found. Theaters outside theaterIDs are never touched, so an empty theaterIDs
// deletes nothing.
func (s *Store) DeleteStaleShowtimes(ctx context.Context, found map[int64]struct{}, theaterIDs []uint) (int64, error) {
	if len(theaterIDs) == 0 {
		return 0, nil
	}
	type row struct {
		ID         uint
		AllocineID int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&internal.Showtime{}).
		Select("id", "allocine_id").
		Where("theater_id IN ?", theaterIDs).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list showtimes of succeeded theaters: %w", err)
	}

	var stale []uint
	for _, r := range rows {
		if _, ok := found[r.AllocineID]; !ok {
			stale = append(stale, r.ID)
		}
	}
	return s.deleteShowtimes(ctx, stale)
}

func (s *Store) deleteShowtimes(ctx context.Context, ids []uint) (int64, error) {
	var deleted int64
	for _, chunk := range chunks(ids, deleteChunkSize) {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("showtime_id IN ?", chunk).Delete(&internal.Price{}).Error; err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM showtime_tag_links WHERE showtime_id IN ?", chunk).Error; err != nil {
				return err
			}
			res := tx.Where("id IN ?", chunk).Delete(&internal.Showtime{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete showtimes: %w", err)
		}
	}
	return deleted, nil
}

// ShowtimeByAllocineID is mostly useful to tests and the acceptance scenario.
func (s *Store) ShowtimeByAllocineID(ctx context.Context, allocineID int64) (*internal.Showtime, error) {
	var st internal.Showtime
	err := s.db.WithContext(ctx).
		Preload("Movie").
		Preload("Theater").
		Preload("Prices").
		Preload("Tags").
		Where("allocine_id = ?", allocineID).
		First(&st).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load showtime %d: %w", allocineID, err)
	}
	return &st, nil
}
