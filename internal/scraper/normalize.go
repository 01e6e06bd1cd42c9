package scraper

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/allocine"
)

// ExcludedTitles are listings that are not films (venue events, campaigns).
var ExcludedTitles = []string{"Rex Studios", "Sauvez le cinéma !"}

func IsExcluded(title string) bool {
	return slices.Contains(ExcludedTitles, title)
}

// NormalizeMovie maps an upstream movie to the row created on first sighting.
func NormalizeMovie(m *allocine.Movie) internal.Movie {
	movie := internal.Movie{
		AllocineID:    m.InternalID,
		Title:         m.Title,
		OriginalTitle: m.OriginalTitle,
		Synopsis:      m.Synopsis,
		Duration:      m.Runtime.Minutes(),
		ReleaseDate:   m.ReleasedOn(),
	}
	if movie.OriginalTitle == "" {
		movie.OriginalTitle = m.Title
	}
	if d := m.Credits.Director(); d != "" {
		movie.Director = &d
	}
	if m.Poster != nil && m.Poster.URL != "" {
		u := m.Poster.URL
		movie.PosterSourceURL = &u
	}
	return movie
}

// MovieTags collects the taxonomy tags of a movie: sub-genre and characteristic related
// tags, then genres. Names are deduplicated, first category wins.
func MovieTags(m *allocine.Movie) []internal.MovieTag {
	var tags []internal.MovieTag
	seen := map[string]struct{}{}
	add := func(name string, category internal.TagCategory) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		tags = append(tags, internal.MovieTag{Name: name, Category: category})
	}

	for _, rt := range m.RelatedTags {
		switch {
		case slices.Contains(rt.Tags.List, allocine.TagTypeSubGenre):
			add(rt.Name.Value, internal.TagCategorySubGenre)
		case slices.Contains(rt.Tags.List, allocine.TagTypeCharacteristic):
			add(rt.Name.Value, internal.TagCategoryCharacteristic)
		}
	}
	for _, g := range m.Genres {
		add(g.Value, internal.TagCategoryGenre)
	}
	return tags
}

func LanguageOf(st allocine.Showtime) internal.Language {
	if st.IsDubbed() {
		return internal.LanguageDubbed
	}
	return internal.LanguageOriginal
}

func NormalizeShowtime(st allocine.Showtime, movieID, theaterID uint) (internal.Showtime, error) {
	start, err := st.StartTime()
	if err != nil {
		return internal.Showtime{}, fmt.Errorf("showtime %d: %w", st.InternalID, err)
	}
	showtime := internal.Showtime{
		AllocineID: st.InternalID,
		Date:       start.UTC().Truncate(time.Second),
		Language:   LanguageOf(st),
		IsPreview:  st.IsPreview,
		MovieID:    movieID,
		TheaterID:  theaterID,
	}
	if u := st.TicketingURL(); u != "" {
		showtime.TicketingURL = &u
	}
	return showtime, nil
}
