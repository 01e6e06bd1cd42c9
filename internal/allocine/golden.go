package allocine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const showtimesPrefix = "/_/showtimes/"

// noShowtimes is served for any showtimes page that has no golden file.
var noShowtimes = []byte(`{"error":true,"message":"no.showtime.error","results":[],"pagination":{"page":1,"totalPages":0}}`)

// PullGolden saves the live day-0 page of each theater as golden data under goldenDir.
func (c *Client) PullGolden(ctx context.Context, goldenDir string, theaterAllocineIDs ...string) error {
	files := make(map[string][]byte, len(theaterAllocineIDs))
	for _, id := range theaterAllocineIDs {
		body, err := c.do(ctx, http.MethodPost, c.ShowtimesURL(id, 0, 1))
		if err != nil {
			return fmt.Errorf("failed to fetch golden data for %s: %w", id, err)
		}
		files[filepath.Join("showtimes", "theater-"+id)] = []byte(body)
	}
	return writeGoldenFiles(goldenDir, files)
}

// MountGolden serves golden files the way the live site would: showtimes pages come from
// showtimes/<path>.json and anything else from ticketing/<last segment>.html.
func MountGolden(goldenDir string) (http.Handler, error) {
	if _, err := os.Stat(goldenDir); err != nil {
		return nil, fmt.Errorf("failed to read golden dir: %w", err)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, showtimesPrefix) {
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			key := strings.Trim(strings.TrimPrefix(r.URL.Path, showtimesPrefix), "/")
			body, err := os.ReadFile(filepath.Join(goldenDir, "showtimes", filepath.FromSlash(key)+".json"))
			if err != nil {
				_, _ = w.Write(noShowtimes)
				return
			}
			_, _ = w.Write(body)
			return
		}

		name := filepath.Base(strings.TrimRight(r.URL.Path, "/"))
		body, err := os.ReadFile(filepath.Join(goldenDir, "ticketing", name+".html"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("not found"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}), nil
}

func indentJSON(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeGoldenFiles(goldenDir string, files map[string][]byte) error {
	for key, body := range files {
		path := filepath.Join(goldenDir, key+".json")
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create golden dir: %w", err)
		}
		pretty, err := indentJSON(body)
		if err != nil {
			return fmt.Errorf("failed to format %s golden file: %w", key, err)
		}
		if err := os.WriteFile(path, pretty, 0o600); err != nil {
			return fmt.Errorf("failed to write %s golden file: %w", key, err)
		}
	}
	return nil
}
