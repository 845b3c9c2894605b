// Package revalidate tells caches and connected clients that the data rendered
// under a path has changed.
package revalidate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/francozeta/musicbox/internal/cache"
	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/notifications"
	"github.com/francozeta/musicbox/internal/observability"
)

// Signaler marks a path stale. It never fails the caller's operation.
type Signaler interface {
	Revalidate(ctx context.Context, path string)
}

// Publisher is the part of notifications.Notifier a signaler needs.
type Publisher interface {
	PublishEvent(ctx context.Context, ev notifications.Event) error
}

// RedisSignaler drops cached responses for the path and broadcasts a path_stale event.
type RedisSignaler struct {
	pub Publisher
}

// NewRedisSignaler returns a signaler publishing through pub. A nil pub only
// invalidates the cache.
func NewRedisSignaler(pub Publisher) *RedisSignaler {
	return &RedisSignaler{pub: pub}
}

func (s *RedisSignaler) Revalidate(ctx context.Context, path string) {
	if path == "" {
		return
	}
	outcome := "ok"

	if err := cache.InvalidatePath(ctx, path); err != nil {
		outcome = "error"
		middleware.Logger.DebugContext(ctx, "cache invalidation failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
	if s.pub != nil {
		if err := s.pub.PublishEvent(ctx, notifications.PathStaleEvent(path)); err != nil {
			outcome = "error"
			middleware.Logger.DebugContext(ctx, "stale-path publish failed",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	observability.RevalidationSignals.WithLabelValues(outcome).Inc()
}

// Recorder keeps every signal in memory.
type Recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *Recorder) Revalidate(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

// Paths returns the recorded paths in signal order.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Count returns how many times path was signalled.
func (r *Recorder) Count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if p == path {
			n++
		}
	}
	return n
}

// Nop discards signals.
type Nop struct{}

func (Nop) Revalidate(context.Context, string) {}
