package upload

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/observability"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrStorageUnavailable is returned while the breaker is open.
var ErrStorageUnavailable = errors.New("upload storage unavailable")

const breakerTripAfter = 5

// BreakerStorage fails fast once the wrapped storage keeps failing.
type BreakerStorage struct {
	next Storage
	cb   *gobreaker.CircuitBreaker[string]
}

func NewBreakerStorage(next Storage) *BreakerStorage {
	return newBreakerStorage(next, 30*time.Second)
}

func newBreakerStorage(next Storage, openFor time.Duration) *BreakerStorage {
	name := "upload-" + next.Name()
	observability.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			middleware.Logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			observability.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return &BreakerStorage{next: next, cb: cb}
}

func (b *BreakerStorage) Name() string { return b.next.Name() }

func (b *BreakerStorage) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	url, err := b.cb.Execute(func() (string, error) {
		return b.next.Put(ctx, key, contentType, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrStorageUnavailable
	}
	return url, err
}

// State exposes the breaker state for health output.
func (b *BreakerStorage) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
