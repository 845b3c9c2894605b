package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

// slogGorm sends gorm's statement log to slog, so query lines carry the same
// request and trace ids as the handler that issued them.
type slogGorm struct {
	log  *slog.Logger
	conf logger.Config
}

// NewGormLogger wraps l with gorm's level and slow-query settings.
func NewGormLogger(l *slog.Logger, cfg logger.Config) logger.Interface {
	return &slogGorm{log: l, conf: cfg}
}

func (g *slogGorm) LogMode(level logger.LogLevel) logger.Interface {
	cp := *g
	cp.conf.LogLevel = level
	return &cp
}

func (g *slogGorm) emit(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, args ...any) {
	if g.conf.LogLevel >= at {
		g.log.Log(ctx, lvl, msg, args...)
	}
}

func (g *slogGorm) Info(ctx context.Context, msg string, data ...interface{}) {
	g.emit(ctx, logger.Info, slog.LevelInfo, fmt.Sprintf(msg, data...))
}

func (g *slogGorm) Warn(ctx context.Context, msg string, data ...interface{}) {
	g.emit(ctx, logger.Warn, slog.LevelWarn, fmt.Sprintf(msg, data...))
}

func (g *slogGorm) Error(ctx context.Context, msg string, data ...interface{}) {
	g.emit(ctx, logger.Error, slog.LevelError, fmt.Sprintf(msg, data...))
}

// Trace logs failed statements as errors, slow ones as warnings and the
// rest only at Info. The statement is rendered only when it will be logged.
func (g *slogGorm) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	ignored := errors.Is(err, gorm.ErrRecordNotFound) && g.conf.IgnoreRecordNotFoundError

	var (
		at    logger.LogLevel
		lvl   slog.Level
		msg   string
		extra slog.Attr
	)
	switch {
	case err != nil && !ignored:
		at, lvl, msg, extra = logger.Error, slog.LevelError, "sql statement failed", slog.String("error", err.Error())
	case g.conf.SlowThreshold > 0 && elapsed > g.conf.SlowThreshold:
		at, lvl, msg, extra = logger.Warn, slog.LevelWarn, "slow sql statement", slog.Duration("threshold", g.conf.SlowThreshold)
	default:
		at, lvl, msg = logger.Info, slog.LevelInfo, "sql statement"
	}
	if g.conf.LogLevel < at {
		return
	}

	sql, rows := fc()
	args := []any{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
		slog.String("caller", utils.FileWithLineNum()),
	}
	if extra.Key != "" {
		args = append(args, extra)
	}
	g.log.Log(ctx, lvl, msg, args...)
}
