package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drewfead/cinecal/internal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadCachedResponse returns the body cached for url when it has not expired at now.
// A miss is reported as ok=false with a nil error.
func (s *Store) LoadCachedResponse(ctx context.Context, url string, now time.Time) (internal.CachedResponse, bool, error) {
	var cached internal.CachedResponse
	err := s.db.WithContext(ctx).
		Where("url = ? AND expires_at > ?", url, now.UTC()).
		First(&cached).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cached, false, nil
	}
	if err != nil {
		return cached, false, fmt.Errorf("failed to load cached response: %w", err)
	}
	return cached, true, nil
}

func (s *Store) SaveCachedResponse(ctx context.Context, cached internal.CachedResponse) error {
	cached.ExpiresAt = cached.ExpiresAt.UTC().Truncate(time.Second)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "expires_at", "type"}),
		}).
		Create(&cached).Error
	if err != nil {
		return fmt.Errorf("failed to save cached response: %w", err)
	}
	return nil
}

// PurgeExpiredResponses deletes rows of one type whose expiration is at or before now.
func (s *Store) PurgeExpiredResponses(ctx context.Context, cacheType internal.CacheType, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("type = ? AND expires_at <= ?", cacheType, now.UTC()).
		Delete(&internal.CachedResponse{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge %s cache: %w", cacheType, res.Error)
	}
	return res.RowsAffected, nil
}
