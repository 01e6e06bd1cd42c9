// Package allocine talks to Allociné's internal showtimes endpoint and fetches
// ticketing-detail pages. Every fetch goes through the response cache first.
package allocine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/drewfead/cinecal/internal"
	"github.com/drewfead/cinecal/internal/browser"
	"github.com/drewfead/cinecal/internal/httputil"
)

const defaultBaseURL = "https://www.allocine.fr"

var (
	ErrUnexpectedStatus = errors.New("unexpected http status")
	ErrUpstream         = errors.New("upstream error")
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	browser    browser.Interface
	cache      internal.ResponseCache
	now        func() time.Time
}

type Option func(*Client)

// WithBaseURL sets the base URL for showtimes requests (e.g. httptest.Server.URL in tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBrowser fetches ticketing pages through a headless browser instead of plain HTTP.
func WithBrowser(b browser.Interface) Option {
	return func(c *Client) {
		c.browser = b
	}
}

func WithCache(cache internal.ResponseCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(httputil.DefaultTimeout)
	}
	return c
}

// ShowtimesURL builds the page URL for a theater. Day 0 and page 1 omit their segment.
func (c *Client) ShowtimesURL(theaterAllocineID string, day, page int) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/_/showtimes/theater-")
	b.WriteString(theaterAllocineID)
	b.WriteByte('/')
	if day > 0 {
		date := c.now().In(parisTZ).AddDate(0, 0, day)
		fmt.Fprintf(&b, "d-%s/", date.Format(time.DateOnly))
	}
	if page > 1 {
		fmt.Fprintf(&b, "p-%d/", page)
	}
	return b.String()
}

// FetchShowtimes returns one page of showtimes. A "no showtimes" answer is an empty
// result and is cached; any other embedded error is ErrUpstream and is not.
func (c *Client) FetchShowtimes(ctx context.Context, theaterAllocineID string, day, page int) (*Response, error) {
	url := c.ShowtimesURL(theaterAllocineID, day, page)

	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, url); ok {
			slog.Debug("allocine: cache hit", "url", url)
			resp, err := decodeShowtimes(body)
			if err == nil {
				return resp, nil
			}
			slog.Warn("allocine: ignoring undecodable cache entry", "url", url, "error", err)
		}
	}

	body, err := c.do(ctx, http.MethodPost, url)
	if err != nil {
		return nil, err
	}
	resp, err := decodeShowtimes(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	if resp.Error && resp.Message != NoShowtimeMessage {
		msg := resp.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstream, url, msg)
	}
	if c.cache != nil {
		if err := c.cache.Put(ctx, url, body, internal.CacheTypeShowtimes); err != nil {
			slog.Warn("allocine: failed to cache showtimes", "url", url, "error", err)
		}
	}
	return resp, nil
}

func decodeShowtimes(body string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, err
	}
	if resp.Error && resp.Message == NoShowtimeMessage {
		resp.Results = nil
	}
	return &resp, nil
}

// FetchTicketingDetail returns the raw HTML of a ticketing page.
func (c *Client) FetchTicketingDetail(ctx context.Context, url string) (string, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(ctx, url); ok {
			slog.Debug("allocine: cache hit", "url", url)
			return body, nil
		}
	}

	var (
		body string
		err  error
	)
	if c.browser != nil {
		body, err = c.browser.FetchHTML(ctx, url)
	} else {
		body, err = c.do(ctx, http.MethodGet, url)
	}
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, url, body, internal.CacheTypeTicketing); err != nil {
			slog.Warn("allocine: failed to cache ticketing page", "url", url, "error", err)
		}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, url, err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s %s", ErrUnexpectedStatus, url, resp.Status)
	}
	return string(body), nil
}

var _ internal.TicketingSource = (*Client)(nil)
