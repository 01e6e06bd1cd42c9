package allocine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// NoShowtimeMessage is the embedded error Allociné returns for a day with nothing on.
const NoShowtimeMessage = "no.showtime.error"

// Response is the body of a showtimes page. Only the fields the crawler reads are mapped.
type Response struct {
	Error      bool       `json:"error"`
	Message    string     `json:"message"`
	Results    []Result   `json:"results"`
	Pagination Pagination `json:"pagination"`
}

type Result struct {
	Movie     *Movie    `json:"movie"`
	Showtimes Showtimes `json:"showtimes"`
}

type Showtimes struct {
	Local    []Showtime `json:"local"`
	Multiple []Showtime `json:"multiple"`
	Original []Showtime `json:"original"`
	Dubbed   []Showtime `json:"dubbed"`
}

// Unique returns the local, multiple and original showtimes with duplicate ids removed.
// The first occurrence wins.
func (s Showtimes) Unique() []Showtime {
	seen := make(map[int64]struct{}, len(s.Local)+len(s.Multiple)+len(s.Original))
	var out []Showtime
	for _, group := range [][]Showtime{s.Local, s.Multiple, s.Original} {
		for _, st := range group {
			if _, ok := seen[st.InternalID]; ok {
				continue
			}
			seen[st.InternalID] = struct{}{}
			out = append(out, st)
		}
	}
	return out
}

type Pagination struct {
	Page       Page `json:"page"`
	TotalPages int  `json:"totalPages"`
}

// Page is sent either as a number or as a numeric string.
type Page int

func (p *Page) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid page %q: %w", s, err)
		}
		*p = Page(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = Page(n)
	return nil
}

type Movie struct {
	InternalID    int64        `json:"internalId"`
	Title         string       `json:"title"`
	OriginalTitle string       `json:"originalTitle"`
	Synopsis      string       `json:"synopsis"`
	Runtime       Runtime      `json:"runtime"`
	Poster        *Poster      `json:"poster"`
	Releases      []Release    `json:"releases"`
	Genres        []Label      `json:"genres"`
	RelatedTags   []RelatedTag `json:"relatedTags"`
	Credits       Credits      `json:"credits"`
}

type Poster struct {
	URL string `json:"url"`
}

type Release struct {
	Name        string      `json:"name"`
	ReleaseDate ReleaseDate `json:"releaseDate"`
}

type ReleaseDate struct {
	Date string `json:"date"`
}

// ReleasedOn returns the date of the first release named "Released", or nil.
func (m *Movie) ReleasedOn() *time.Time {
	for _, r := range m.Releases {
		if r.Name != "Released" {
			continue
		}
		if r.ReleaseDate.Date == "" {
			return nil
		}
		for _, layout := range []string{time.DateOnly, time.RFC3339} {
			if t, err := time.Parse(layout, r.ReleaseDate.Date); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return nil
	}
	return nil
}

// Label is either a plain string or a translated object {id, tag, translate}.
type Label struct {
	Value string
}

func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		l.Value = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &l.Value)
	}
	var obj struct {
		Translate string `json:"translate"`
		Tag       string `json:"tag"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Value = obj.Translate
	if l.Value == "" {
		l.Value = obj.Tag
	}
	return nil
}

func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Value)
}

type RelatedTag struct {
	Name Label `json:"name"`
	Tags struct {
		List []string `json:"list"`
	} `json:"tags"`
}

const (
	TagTypeSubGenre       = "Tag.Type.SubGenre"
	TagTypeCharacteristic = "Tag.Type.Characteristic"
)

// Runtime is either a "2h10" style string or a number of minutes.
type Runtime struct {
	text    string
	minutes int
	numeric bool
}

func RuntimeMinutes(n int) Runtime { return Runtime{minutes: n, numeric: true} }

func RuntimeText(s string) Runtime { return Runtime{text: s} }

func (r *Runtime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = Runtime{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.text)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	r.minutes = int(f)
	r.numeric = true
	return nil
}

func (r Runtime) MarshalJSON() ([]byte, error) {
	if r.numeric {
		return json.Marshal(r.minutes)
	}
	return json.Marshal(r.text)
}

// Minutes resolves the runtime to whole minutes. Anything unparseable is 0.
func (r Runtime) Minutes() int {
	if r.numeric {
		if r.minutes < 0 {
			return 0
		}
		return r.minutes
	}
	s := strings.ToLower(strings.ReplaceAll(r.text, " ", ""))
	s = strings.TrimSuffix(s, "min")
	hours, mins, found := strings.Cut(s, "h")
	if !found {
		return 0
	}
	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 {
		return 0
	}
	if mins == "" {
		return h * 60
	}
	m, err := strconv.Atoi(mins)
	if err != nil || m < 0 {
		return 0
	}
	return h*60 + m
}

// Credits only understands the legacy list shape; any other payload decodes to nothing.
type Credits []Credit

type Credit struct {
	Person struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"person"`
	Position struct {
		Name string `json:"name"`
	} `json:"position"`
}

func (c *Credits) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		*c = nil
		return nil
	}
	var list []Credit
	if err := json.Unmarshal(data, &list); err != nil {
		*c = nil
		return nil
	}
	*c = list
	return nil
}

// Director joins the names of DIRECTOR credits, or returns "" when there are none.
func (c Credits) Director() string {
	var names []string
	for _, credit := range c {
		if credit.Position.Name != "DIRECTOR" {
			continue
		}
		name := strings.TrimSpace(credit.Person.FirstName + " " + credit.Person.LastName)
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

type Showtime struct {
	InternalID int64        `json:"internalId"`
	StartsAt   string       `json:"startsAt"`
	Tags       []string     `json:"tags"`
	IsPreview  bool         `json:"isPreview"`
	Data       ShowtimeData `json:"data"`
}

type ShowtimeData struct {
	Ticketing []Ticketing `json:"ticketing"`
}

type Ticketing struct {
	URLs     []string `json:"urls"`
	Type     string   `json:"type"`
	Provider string   `json:"provider"`
}

const TagLanguageFrench = "Localization.Language.French"

// TicketingURL is the first URL of the first ticketing entry.
func (s Showtime) TicketingURL() string {
	if len(s.Data.Ticketing) == 0 || len(s.Data.Ticketing[0].URLs) == 0 {
		return ""
	}
	return s.Data.Ticketing[0].URLs[0]
}

// IsDubbed reports whether the showtime is a French-dubbed screening.
func (s Showtime) IsDubbed() bool {
	for _, tag := range s.Tags {
		if tag == TagLanguageFrench {
			return true
		}
	}
	return false
}

// StartTime parses StartsAt. Values without an offset are Paris local time.
func (s Showtime) StartTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s.StartsAt); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s.StartsAt, parisTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid startsAt %q: %w", s.StartsAt, err)
	}
	return t, nil
}

var parisTZ = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}()
