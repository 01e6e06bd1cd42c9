// Package server exposes the loopback trigger that runs the whole pipeline in the background.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Runner interface {
	RunAll(ctx context.Context, maxDays int) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router      *chi.Mux
	runner      Runner
	db          Pinger
	defaultDays int

	running sync.Mutex
	wg      sync.WaitGroup
}

type Option func(*Server)

func WithDefaultDays(days int) Option {
	return func(s *Server) {
		if days >= 0 {
			s.defaultDays = days
		}
	}
}

func New(runner Runner, db Pinger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		runner:      runner,
		db:          db,
		defaultDays: 90,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Group(func(r chi.Router) {
		r.Use(loopbackOnly)
		r.Get("/scrap", s.handleScrap)
		r.Get("/scrap/{days}", s.handleScrap)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until the background run, if any, has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAndServe serves until ctx is done, then shuts down and waits for a running pipeline.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleScrap(w http.ResponseWriter, r *http.Request) {
	days := s.defaultDays
	if raw := chi.URLParam(r, "days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be a non-negative integer"})
			return
		}
		days = n
	}

	if !s.running.TryLock() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
		return
	}
	s.wg.Add(1)
	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		start := time.Now()
		if err := s.runner.RunAll(ctx, days); err != nil {
			slog.Error("triggered run failed", "days", days, "elapsed", time.Since(start), "error", err)
			return
		}
		slog.Info("triggered run done", "days", days, "elapsed", time.Since(start))
	}()
	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "days": days})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// loopbackOnly answers 404 to anyone not connecting from the local host. Forwarding
// headers are ignored.
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"remote", r.RemoteAddr,
			"elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
