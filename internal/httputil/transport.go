// Package httputil holds the HTTP plumbing shared by the upstream clients.
package httputil

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// NewClient returns a client whose requests time out after timeout and go through a
// logging Transport.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{},
	}
}

// Transport sets a browser-like User-Agent when the request has none and logs every
// round trip at debug level.
type Transport struct {
	Base      http.RoundTripper
	UserAgent string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("User-Agent") == "" {
		ua := t.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", ua)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		slog.Debug("http request failed", "method", req.Method, "url", req.URL.String(), "elapsed", elapsed, "error", err)
		return nil, err
	}
	slog.Debug("http request", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "elapsed", elapsed)
	return resp, nil
}

type memoEntry struct {
	status int
	header http.Header
	body   []byte
}

// MemoTransport remembers successful GET responses for TTL so a run that asks the same
// question twice only pays for it once. Other methods and non-2xx answers pass through.
type MemoTransport struct {
	base  http.RoundTripper
	memo  *expirable.LRU[string, memoEntry]
	onHit func(key string, hit bool)
}

func NewMemoTransport(base http.RoundTripper, size int, ttl time.Duration) *MemoTransport {
	if base == nil {
		base = &Transport{}
	}
	if size <= 0 {
		size = 1000
	}
	return &MemoTransport{
		base: base,
		memo: expirable.NewLRU[string, memoEntry](size, nil, ttl),
	}
}

// OnLookup registers a callback run for every GET with its key and whether it was served from memory.
func (t *MemoTransport) OnLookup(fn func(key string, hit bool)) *MemoTransport {
	t.onHit = fn
	return t
}

func (t *MemoTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base.RoundTrip(req)
	}
	key := req.URL.String()
	if entry, ok := t.memo.Get(key); ok {
		t.lookup(key, true)
		return &http.Response{
			Status:        http.StatusText(entry.status),
			StatusCode:    entry.status,
			Header:        entry.header.Clone(),
			Body:          io.NopCloser(bytes.NewReader(entry.body)),
			ContentLength: int64(len(entry.body)),
			Request:       req,
		}, nil
	}
	t.lookup(key, false)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	t.memo.Add(key, memoEntry{status: resp.StatusCode, header: resp.Header.Clone(), body: body})
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func (t *MemoTransport) lookup(key string, hit bool) {
	if t.onHit != nil {
		t.onHit(key, hit)
	}
}
