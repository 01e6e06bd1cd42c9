// Package browser fetches pages through a shared headless Chrome for ticketing sites
// that only render their price grid client-side.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// PageStableTimeout is the timeout used when waiting for page stability.
var PageStableTimeout = 30 * time.Second

// Interface loads pages in a browser. Implementations may reuse a single browser process.
type Interface interface {
	WithPage(ctx context.Context, url string, fn func(*rod.Page) error) error
	// FetchHTML navigates to url, waits for it to settle and returns the rendered document.
	FetchHTML(ctx context.Context, url string) (string, error)

	io.Closer
}

// headlessBrowser owns one lazily launched rod browser. The channel of capacity 1 hands the
// browser to one WithPage caller at a time.
type headlessBrowser struct {
	initOnce sync.Once
	initErr  error
	ch       chan *rod.Browser
}

// Headless returns a Browser that launches chrome on first use and reuses it.
func Headless() Interface {
	return &headlessBrowser{ch: make(chan *rod.Browser, 1)}
}

func (h *headlessBrowser) init() error {
	h.initOnce.Do(func() {
		u, err := launcher.New().Logger(newRodLauncherLogger()).Leakless(false).Launch()
		if err != nil {
			h.initErr = fmt.Errorf("launch browser: %w", err)
			close(h.ch)
			return
		}
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			h.initErr = fmt.Errorf("connect to browser: %w", err)
			close(h.ch)
			return
		}
		h.ch <- b
	})
	return h.initErr
}

func (h *headlessBrowser) Close() error {
	// never launched: nothing to close
	h.initOnce.Do(func() { close(h.ch) })
	b, ok := <-h.ch
	if !ok {
		return h.initErr
	}
	return b.Close()
}

// WithPage takes the shared browser, opens url in a new page, runs fn, then hands the browser back.
func (h *headlessBrowser) WithPage(ctx context.Context, url string, fn func(page *rod.Page) error) error {
	if err := h.init(); err != nil {
		return err
	}
	var b *rod.Browser
	select {
	case got, ok := <-h.ch:
		if !ok {
			return h.initErr
		}
		b = got
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { h.ch <- b }()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := rod.Try(func() {
		page.Timeout(PageStableTimeout).MustWaitStable()
	}); err != nil {
		return fmt.Errorf("wait for page stable: %w", err)
	}
	return fn(page)
}

func (h *headlessBrowser) FetchHTML(ctx context.Context, url string) (string, error) {
	var html string
	err := h.WithPage(ctx, url, func(page *rod.Page) error {
		var err error
		html, err = page.HTML()
		if err != nil {
			return fmt.Errorf("read %s: %w", url, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return html, nil
}

// rodLauncherLogger forwards launcher output (e.g. download progress) to slog at debug level.
type rodLauncherLogger struct {
	buf []byte
}

func (w *rodLauncherLogger) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
		if line != "" {
			slog.Debug("rod launcher", "message", line)
		}
	}
	return len(p), nil
}

func newRodLauncherLogger() io.Writer {
	return &rodLauncherLogger{}
}
