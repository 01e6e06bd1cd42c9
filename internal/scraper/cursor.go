package scraper

import "fmt"

// Cursor addresses one unit of crawl work: a page of one day of one theater.
// Theater is an index into the theater list, Day an offset from today, Page is 1-based.
type Cursor struct {
	Theater int
	Day     int
	Page    int
}

// Start is the first unit of any crawl.
var Start = Cursor{Theater: 0, Day: 0, Page: 1}

// Next returns the unit after c, or false when the crawl is done. Pages come first, then
// days up to maxDay inclusive, then theaters. A failed fetch passes totalPages = 0.
func (c Cursor) Next(totalPages, maxDay, theaterCount int) (Cursor, bool) {
	switch {
	case c.Page < totalPages:
		return Cursor{Theater: c.Theater, Day: c.Day, Page: c.Page + 1}, true
	case c.Day < maxDay:
		return Cursor{Theater: c.Theater, Day: c.Day + 1, Page: 1}, true
	case c.Theater+1 < theaterCount:
		return Cursor{Theater: c.Theater + 1, Day: 0, Page: 1}, true
	default:
		return Cursor{}, false
	}
}

func (c Cursor) String() string {
	return fmt.Sprintf("theater %d day %d page %d", c.Theater, c.Day, c.Page)
}
