package ticketing

import (
	"log/slog"
	"regexp"

	"github.com/drewfead/cinecal/internal"
	lru "github.com/hashicorp/golang-lru/v2"
)

// TagMatcher evaluates tag patterns case-insensitively against ticketing pages. Compiled
// patterns are kept in an LRU; a pattern that does not compile is logged once and never matches.
type TagMatcher struct {
	compiled *lru.Cache[string, *regexp.Regexp]
}

func NewTagMatcher(size int) *TagMatcher {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(err)
	}
	return &TagMatcher{compiled: cache}
}

func (m *TagMatcher) compile(pattern string) *regexp.Regexp {
	if re, ok := m.compiled.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		slog.Warn("ticketing: ignoring invalid tag pattern", "pattern", pattern, "error", err)
		re = nil
	}
	m.compiled.Add(pattern, re)
	return re
}

// Match returns the ids of the tags whose pattern occurs in page.
func (m *TagMatcher) Match(patterns []internal.TagPattern, page string) []uint {
	var ids []uint
	for _, p := range patterns {
		re := m.compile(p.Pattern)
		if re != nil && re.MatchString(page) {
			ids = append(ids, p.TagID)
		}
	}
	return ids
}
