package store

import (
	"context"
	"fmt"

	"github.com/drewfead/cinecal/internal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func ptr[T any](v T) *T { return &v }

var seedTheaters = []internal.Theater{
	{Name: "Le Brady", AllocineID: "C0023", Address: "39 Bd de Strasbourg, 75010 Paris", Website: "https://www.lebrady.fr"},
	{Name: "Max Linder Panorama", AllocineID: "C0089", Address: "24 Bd Poissonnière, 75009 Paris", Website: "https://maxlinder.com"},
	{Name: "Le Grand Rex", AllocineID: "C0065", Address: "1 Bd Poissonnière, 75002 Paris", Website: "https://www.legrandrex.com/cinema"},
	{Name: "Forum des images", AllocineID: "C0119", Address: "Forum des Halles, 2 rue du Cinéma 75001 Paris", Website: "https://www.forumdesimages.fr"},
	{Name: "L'Archipel", AllocineID: "C0134", Address: "17 bd de Strasbourg 75010 Paris", Website: "https://larchipel.net"},
}

// Patterns are matched against raw ticketing HTML, hence the entity in César.
var seedMovieTags = []internal.MovieTag{
	{Name: "Oscar", Category: internal.TagCategoryAward, Pattern: ptr("oscar"), IsFilterEnabled: true},
	{Name: "César", Category: internal.TagCategoryAward, Pattern: ptr("c&eacute;sar"), IsFilterEnabled: true},
}

var seedShowtimeTags = []internal.ShowtimeTag{
	{Name: "Grand Large", Category: internal.TagCategoryEvent, Pattern: ptr("grand large"), IsFilterEnabled: true},
	{Name: "Marathon", Category: internal.TagCategoryEvent, Pattern: ptr("marathon"), IsFilterEnabled: true},
	{Name: "Avant-première", Category: internal.TagCategoryEvent, Pattern: ptr("avant-premi"), IsFilterEnabled: true},
}

// Seed inserts the reference theaters and pattern tags. Rows that already exist are left alone.
func (s *Store) Seed(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		theaters := append([]internal.Theater(nil), seedTheaters...)
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "allocine_id"}}, DoNothing: true}).
			Create(&theaters).Error; err != nil {
			return fmt.Errorf("failed to seed theaters: %w", err)
		}
		movieTags := append([]internal.MovieTag(nil), seedMovieTags...)
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&movieTags).Error; err != nil {
			return fmt.Errorf("failed to seed movie tags: %w", err)
		}
		showtimeTags := append([]internal.ShowtimeTag(nil), seedShowtimeTags...)
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&showtimeTags).Error; err != nil {
			return fmt.Errorf("failed to seed showtime tags: %w", err)
		}
		return nil
	})
}

// AddTheater registers one more theater to crawl.
func (s *Store) AddTheater(ctx context.Context, theater internal.Theater) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "allocine_id"}}, DoNothing: true}).
		Create(&theater).Error
	if err != nil {
		return fmt.Errorf("failed to add theater %s: %w", theater.AllocineID, err)
	}
	return nil
}
