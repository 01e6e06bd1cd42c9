package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's query log into slog. Record-not-found is expected on
// cache misses and lookups, so it is not reported as an error.
type GormLogger struct {
	logger *slog.Logger
}

func NewGormLogger(logger *slog.Logger) *GormLogger {
	return &GormLogger{logger: logger}
}

func (l *GormLogger) LogMode(logger.LogLevel) logger.Interface {
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.logger.InfoContext(ctx, msg, slog.Any("data", data))
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.logger.WarnContext(ctx, msg, slog.Any("data", data))
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.logger.ErrorContext(ctx, msg, slog.Any("data", data))
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.ErrorContext(ctx, "gorm query failed",
			slog.Any("error", err),
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed))
		return
	}

	l.logger.DebugContext(ctx, "gorm query",
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed))
}
