// Package store is the gorm-backed persistence layer shared by every pipeline stage.
// All writes are upserts keyed by stable external ids or deletes scoped by explicit
// where-clauses, so stages can run concurrently against the same database.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/drewfead/cinecal/internal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// deleteChunkSize bounds IN-lists so large deletes stay under driver parameter limits.
const deleteChunkSize = 500

var ErrUnsupportedDSN = errors.New("unsupported database url")

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open connects to the database named by dsn and migrates the schema. A dsn starting
// with postgres:// or postgresql:// selects the postgres driver; anything else is
// treated as a sqlite file path (or ":memory:").
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	}

	cfg := &gorm.Config{Logger: NewGormLogger(o.logger)}
	sqliteMode := false
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		dialector = postgres.Open(dsn)
	default:
		sqliteMode = true
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqliteMode {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		// sqlite allows one writer; a single connection also keeps ":memory:" databases alive.
		sqlDB.SetMaxOpenConns(1)
		enableSQLitePragmas(ctx, db, o.logger)
	}

	s := &Store{db: db, logger: o.logger}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func enableSQLitePragmas(ctx context.Context, db *gorm.DB, logger *slog.Logger) {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			logger.Warn("failed to execute pragma", slog.String("pragma", pragma), slog.Any("error", err))
		}
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&internal.Theater{},
		&internal.MovieTag{},
		&internal.ShowtimeTag{},
		&internal.Movie{},
		&internal.Showtime{},
		&internal.Price{},
		&internal.CachedResponse{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for tests and health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Theaters(ctx context.Context) ([]internal.Theater, error) {
	var theaters []internal.Theater
	if err := s.db.WithContext(ctx).Order("id asc").Find(&theaters).Error; err != nil {
		return nil, fmt.Errorf("failed to list theaters: %w", err)
	}
	return theaters, nil
}

func (s *Store) Counts(ctx context.Context, cacheType internal.CacheType) (internal.Counts, error) {
	var c internal.Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&internal.CachedResponse{}).Where("type = ?", cacheType).Count(&c.CachedResponses).Error; err != nil {
		return c, fmt.Errorf("failed to count cached responses: %w", err)
	}
	if err := db.Model(&internal.Movie{}).Count(&c.Movies).Error; err != nil {
		return c, fmt.Errorf("failed to count movies: %w", err)
	}
	if err := db.Model(&internal.Showtime{}).Count(&c.Showtimes).Error; err != nil {
		return c, fmt.Errorf("failed to count showtimes: %w", err)
	}
	return c, nil
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
