package scraper

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/allocine"
	"github.com/drewfead/cinecal/internal/store"
	"github.com/stretchr/testify/require"
)

const goldenDir = "../allocine/testdata/golden"

func MountGoldenTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler, err := allocine.MountGolden(goldenDir)
	require.NoError(t, err, "MountGolden")
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "scraper.db"))
	require.NoError(t, err, "store.Open")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addTheaters(t *testing.T, s *store.Store, allocineIDs ...string) []internal.Theater {
	t.Helper()
	for _, id := range allocineIDs {
		require.NoError(t, s.AddTheater(t.Context(), internal.Theater{AllocineID: id, Name: "Theater " + id}))
	}
	theaters, err := s.Theaters(t.Context())
	require.NoError(t, err)
	return theaters
}

// fakeFetcher serves canned pages keyed by theater/day/page; missing keys fail.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*allocine.Response
	calls []string
}

func pageKey(theater string, day, page int) string {
	return fmt.Sprintf("%s/%d/%d", theater, day, page)
}

func (f *fakeFetcher) FetchShowtimes(_ context.Context, theater string, day, page int) (*allocine.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pageKey(theater, day, page)
	f.calls = append(f.calls, key)
	resp, ok := f.pages[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", allocine.ErrUnexpectedStatus, key)
	}
	return resp, nil
}

func page(totalPages int, results ...allocine.Result) *allocine.Response {
	return &allocine.Response{
		Results:    results,
		Pagination: allocine.Pagination{Page: 1, TotalPages: totalPages},
	}
}

func movieResult(movieID int64, title string, showtimeIDs ...int64) allocine.Result {
	r := allocine.Result{
		Movie: &allocine.Movie{InternalID: movieID, Title: title, Runtime: allocine.RuntimeText("1h40")},
	}
	start := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	for _, id := range showtimeIDs {
		r.Showtimes.Local = append(r.Showtimes.Local, allocine.Showtime{InternalID: id, StartsAt: start})
	}
	return r
}
