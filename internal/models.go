package internal

import "time"

type Language string

const (
	LanguageOriginal Language = "ORIGINAL"
	LanguageDubbed   Language = "DUBBED"
)

type TagCategory string

const (
	TagCategoryGenre          TagCategory = "GENRE"
	TagCategorySubGenre       TagCategory = "SUB_GENRE"
	TagCategoryCharacteristic TagCategory = "CHARACTERISTIC"
	TagCategoryEvent          TagCategory = "EVENT"
	TagCategoryAward          TagCategory = "AWARD"
)

// CacheType tags a cached upstream body with the kind of page it came from.
// Expiration policy and purging are scoped by type.
type CacheType string

const (
	CacheTypeShowtimes CacheType = "SHOWTIMES"
	CacheTypeTicketing CacheType = "TICKETING"
)

// Theater is reference data seeded once; the crawler only reads it.
type Theater struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	AllocineID string `gorm:"size:32;not null;uniqueIndex" json:"allocine_id"`
	Name       string `gorm:"not null" json:"name"`
	Address    string `json:"address"`
	Website    string `json:"website"`
}

type Movie struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	AllocineID      int64      `gorm:"not null;uniqueIndex" json:"allocine_id"`
	Title           string     `gorm:"not null" json:"title"`
	OriginalTitle   string     `json:"original_title"`
	Synopsis        string     `gorm:"type:text" json:"synopsis"`
	Duration        int        `json:"duration"` // minutes, 0 = unknown
	ReleaseDate     *time.Time `json:"release_date,omitempty"`
	Director        *string    `json:"director,omitempty"`
	PosterSourceURL *string    `json:"poster_source_url,omitempty"`
	PosterName      *string    `json:"poster_name,omitempty"` // CDN file name
	PosterBlurHash  *string    `json:"poster_blur_hash,omitempty"`
	Tags            []MovieTag `gorm:"many2many:movie_tag_links;" json:"tags,omitempty"`
	Showtimes       []Showtime `json:"showtimes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Showtime struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	AllocineID   int64         `gorm:"not null;uniqueIndex" json:"allocine_id"`
	Date         time.Time     `gorm:"not null;index" json:"date"`
	Language     Language      `gorm:"size:16;not null" json:"language"`
	IsPreview    bool          `json:"is_preview"`
	TicketingURL *string       `json:"ticketing_url,omitempty"`
	MovieID      uint          `gorm:"not null;index" json:"movie_id"`
	Movie        *Movie        `json:"movie,omitempty"`
	TheaterID    uint          `gorm:"not null;index" json:"theater_id"`
	Theater      *Theater      `json:"theater,omitempty"`
	Tags         []ShowtimeTag `gorm:"many2many:showtime_tag_links;" json:"tags,omitempty"`
	Prices       []Price       `json:"prices,omitempty"`
}

// Price rows have no upstream identity; they are replaced wholesale on every
// ticketing enrichment of their showtime.
type Price struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	Label       string  `gorm:"not null" json:"label"`
	Description *string `json:"description,omitempty"`
	Price       float64 `gorm:"not null" json:"price"`
	ShowtimeID  uint    `gorm:"not null;index" json:"showtime_id"`
}

type MovieTag struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Name            string      `gorm:"not null;uniqueIndex" json:"name"`
	Category        TagCategory `gorm:"size:32" json:"category"`
	Pattern         *string     `json:"pattern,omitempty"` // case-insensitive, matched against ticketing pages
	IsFilterEnabled bool        `json:"is_filter_enabled"`
	IsFeatured      bool        `json:"is_featured"`
}

type ShowtimeTag struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	Name            string      `gorm:"not null;uniqueIndex" json:"name"`
	Category        TagCategory `gorm:"size:32" json:"category"`
	Pattern         *string     `json:"pattern,omitempty"`
	IsFilterEnabled bool        `json:"is_filter_enabled"`
	IsFeatured      bool        `json:"is_featured"`
}

type CachedResponse struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"not null;uniqueIndex" json:"url"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Type      CacheType `gorm:"size:16;not null;index" json:"type"`
}

// TagPattern is a tag definition reduced to what the ticketing enricher needs.
type TagPattern struct {
	TagID   uint
	Name    string
	Pattern string
}

// PosterCandidate is a movie whose poster still has work pending in the poster pipeline.
type PosterCandidate struct {
	MovieID         uint
	OriginalTitle   string
	PosterSourceURL string
	PosterName      string
}

// TicketingTarget is a persisted showtime with a ticketing page to enrich from.
type TicketingTarget struct {
	ShowtimeID   uint
	MovieID      uint
	TicketingURL string
}

type Counts struct {
	CachedResponses int64
	Movies          int64
	Showtimes       int64
}
