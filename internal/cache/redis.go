// Package cache provides Redis caching utilities for the application.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/observability"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var client *redis.Client

// instrumentHook traces every command and counts failures. redis.Nil is a
// miss, not a failure.
type instrumentHook struct{}

func (instrumentHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (instrumentHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := observability.StartRedisSpan(ctx, cmd.Name())
		defer span.End()
		err := next(ctx, cmd)
		recordRedisErr(span, cmd.Name(), err)
		return err
	}
}

func (instrumentHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := observability.StartRedisSpan(ctx, "pipeline")
		defer span.End()
		err := next(ctx, cmds)
		recordRedisErr(span, "pipeline", err)
		return err
	}
}

func recordRedisErr(span trace.Span, op string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	observability.RedisErrorRate.WithLabelValues(op).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// NewClient builds an instrumented client from a redis:// URL or a bare host:port.
func NewClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	c := redis.NewClient(opts)
	c.AddHook(instrumentHook{})
	return c, nil
}

// InitRedis connects the package client. An empty or unreachable address
// leaves the cache disabled and returns nil; callers keep working without it.
func InitRedis(addr string) *redis.Client {
	client = dial(addr)
	return client
}

func dial(addr string) *redis.Client {
	if addr == "" {
		middleware.Logger.Info("REDIS_URL not set, continuing without cache")
		return nil
	}
	c, err := NewClient(addr)
	if err != nil {
		middleware.Logger.Warn("invalid REDIS_URL, continuing without cache", slog.String("error", err.Error()))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		middleware.Logger.Warn("redis unavailable, continuing without cache", slog.String("error", err.Error()))
		_ = c.Close()
		return nil
	}
	middleware.Logger.Info("redis connected", slog.String("addr", c.Options().Addr))
	return c
}

// GetClient returns the current Redis client instance.
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the package client. Tests point it at miniredis.
func SetClient(c *redis.Client) {
	client = c
}
