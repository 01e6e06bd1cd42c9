package scraper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/allocine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMovie(t *testing.T, raw string) *allocine.Movie {
	t.Helper()
	var m allocine.Movie
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return &m
}

func TestUnit_IsExcluded(t *testing.T) {
	assert.True(t, IsExcluded("Rex Studios"))
	assert.True(t, IsExcluded("Sauvez le cinéma !"))
	assert.False(t, IsExcluded("rex studios"))
	assert.False(t, IsExcluded("Example"))
}

func TestUnit_NormalizeMovie(t *testing.T) {
	m := decodeMovie(t, `{
		"internalId": 555,
		"title": "Example",
		"originalTitle": "",
		"synopsis": "s",
		"runtime": "1h30",
		"poster": {"url": "https://img.test/p/555.jpg"},
		"releases": [{"name": "Reprise", "releaseDate": {"date": "2020-01-01"}}, {"name": "Released", "releaseDate": {"date": "2019-05-02"}}],
		"credits": [{"person": {"firstName": "Agnès", "lastName": "Varda"}, "position": {"name": "DIRECTOR"}}]
	}`)

	movie := NormalizeMovie(m)
	assert.EqualValues(t, 555, movie.AllocineID)
	assert.Equal(t, "Example", movie.OriginalTitle, "falls back to title")
	assert.Equal(t, 90, movie.Duration)
	require.NotNil(t, movie.ReleaseDate)
	assert.Equal(t, "2019-05-02", movie.ReleaseDate.Format(time.DateOnly))
	require.NotNil(t, movie.Director)
	assert.Equal(t, "Agnès Varda", *movie.Director)
	require.NotNil(t, movie.PosterSourceURL)
	assert.Equal(t, "https://img.test/p/555.jpg", *movie.PosterSourceURL)

	bare := NormalizeMovie(decodeMovie(t, `{"internalId": 1, "title": "T", "runtime": "soon", "credits": {"edges": []}}`))
	assert.Zero(t, bare.Duration)
	assert.Nil(t, bare.ReleaseDate)
	assert.Nil(t, bare.Director)
	assert.Nil(t, bare.PosterSourceURL)
}

func TestUnit_MovieTags(t *testing.T) {
	m := decodeMovie(t, `{
		"internalId": 1,
		"title": "T",
		"genres": ["Drame", {"translate": "Comédie", "tag": "Movie.Genre.Comedy"}],
		"relatedTags": [
			{"name": "Film noir", "tags": {"list": ["Tag.Type.SubGenre"]}},
			{"name": {"translate": "Version restaurée"}, "tags": {"list": ["Tag.Type.Characteristic"]}},
			{"name": "Thème", "tags": {"list": ["Tag.Type.Theme"]}},
			{"name": "Drame", "tags": {"list": ["Tag.Type.SubGenre"]}}
		]
	}`)

	tags := MovieTags(m)
	assert.Equal(t, []internal.MovieTag{
		{Name: "Film noir", Category: internal.TagCategorySubGenre},
		{Name: "Version restaurée", Category: internal.TagCategoryCharacteristic},
		{Name: "Drame", Category: internal.TagCategorySubGenre},
		{Name: "Comédie", Category: internal.TagCategoryGenre},
	}, tags)
}

func TestUnit_NormalizeShowtime(t *testing.T) {
	dubbed := allocine.Showtime{
		InternalID: 9001,
		StartsAt:   "2024-01-01T20:00:00Z",
		Tags:       []string{"Localization.Language.French"},
		IsPreview:  true,
		Data: allocine.ShowtimeData{Ticketing: []allocine.Ticketing{
			{URLs: []string{"https://t.test/1", "https://t.test/2"}},
			{URLs: []string{"https://t.test/3"}},
		}},
	}
	st, err := NormalizeShowtime(dubbed, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, internal.LanguageDubbed, st.Language)
	assert.True(t, st.IsPreview)
	require.NotNil(t, st.TicketingURL)
	assert.Equal(t, "https://t.test/1", *st.TicketingURL)
	assert.EqualValues(t, 3, st.MovieID)
	assert.EqualValues(t, 4, st.TheaterID)
	assert.True(t, st.Date.Equal(time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)))

	original, err := NormalizeShowtime(allocine.Showtime{InternalID: 2, StartsAt: "2024-01-01T20:00:00Z", Tags: []string{"Localization.Language.English"}}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, internal.LanguageOriginal, original.Language)
	assert.Nil(t, original.TicketingURL)

	_, err = NormalizeShowtime(allocine.Showtime{InternalID: 3, StartsAt: "later"}, 1, 1)
	require.Error(t, err)
}
