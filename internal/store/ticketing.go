package store

import (
	"context"
	"fmt"

	"github.com/drewfead/cinecal/internal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketingTargets lists persisted showtimes that carry a ticketing URL.
func (s *Store) TicketingTargets(ctx context.Context) ([]internal.TicketingTarget, error) {
	var targets []internal.TicketingTarget
	err := s.db.WithContext(ctx).Model(&internal.Showtime{}).
		Select("id AS showtime_id", "movie_id", "ticketing_url").
		Where("ticketing_url IS NOT NULL AND ticketing_url <> ''").
		Order("id asc").
		Scan(&targets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ticketing targets: %w", err)
	}
	return targets, nil
}

func (s *Store) MovieTagPatterns(ctx context.Context) ([]internal.TagPattern, error) {
	return s.tagPatterns(ctx, &internal.MovieTag{})
}

func (s *Store) ShowtimeTagPatterns(ctx context.Context) ([]internal.TagPattern, error) {
	return s.tagPatterns(ctx, &internal.ShowtimeTag{})
}

func (s *Store) tagPatterns(ctx context.Context, model any) ([]internal.TagPattern, error) {
	var patterns []internal.TagPattern
	err := s.db.WithContext(ctx).Model(model).
		Select("id AS tag_id", "name", "pattern").
		Where("pattern IS NOT NULL AND pattern <> ''").
		Scan(&patterns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tag patterns: %w", err)
	}
	return patterns, nil
}

// ConnectShowtimeTags links tags to a showtime; existing links are kept.
func (s *Store) ConnectShowtimeTags(ctx context.Context, showtimeID uint, tagIDs []uint) error {
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(tagIDs))
	for _, id := range tagIDs {
		rows = append(rows, map[string]any{"showtime_id": showtimeID, "showtime_tag_id": id})
	}
	err := s.db.WithContext(ctx).Table("showtime_tag_links").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to connect tags to showtime %d: %w", showtimeID, err)
	}
	return nil
}

// ReplacePrices swaps the showtime's price set for prices in one transaction: the old
// ids are read first, the new rows inserted, then exactly the old ids deleted.
func (s *Store) ReplacePrices(ctx context.Context, showtimeID uint, prices []internal.Price) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var oldIDs []uint
		if err := tx.Model(&internal.Price{}).Where("showtime_id = ?", showtimeID).Pluck("id", &oldIDs).Error; err != nil {
			return err
		}
		if len(prices) > 0 {
			fresh := make([]internal.Price, len(prices))
			for i, p := range prices {
				fresh[i] = internal.Price{
					Label:       p.Label,
					Description: p.Description,
					Price:       p.Price,
					ShowtimeID:  showtimeID,
				}
			}
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
		}
		if len(oldIDs) == 0 {
			return nil
		}
		return tx.Where("id IN ?", oldIDs).Delete(&internal.Price{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace prices of showtime %d: %w", showtimeID, err)
	}
	return nil
}

func (s *Store) Prices(ctx context.Context, showtimeID uint) ([]internal.Price, error) {
	var prices []internal.Price
	if err := s.db.WithContext(ctx).Where("showtime_id = ?", showtimeID).Order("id asc").Find(&prices).Error; err != nil {
		return nil, fmt.Errorf("failed to list prices of showtime %d: %w", showtimeID, err)
	}
	return prices, nil
}
