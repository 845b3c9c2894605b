package middleware

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what a write route does when Redis cannot count the hit.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoLimiterStore = errors.New("rate limit store not configured")

// Quota is the result of counting one hit against a fixed window.
type Quota struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// limitsDisabled reports whether APP_ENV is one where write limits get in the
// way (local development, tests and load runs). An unset APP_ENV counts as development.
func limitsDisabled() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

func quotaKey(resource, subject string) string {
	return "rl:" + resource + ":" + subject
}

// CheckRateLimit counts a hit by subject on resource. The window opens on the
// first hit and the counter expires with it.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, subject string, limit int, window time.Duration) (Quota, error) {
	if limitsDisabled() {
		return Quota{Allowed: true, Remaining: limit}, nil
	}
	if rdb == nil {
		return Quota{}, errNoLimiterStore
	}

	key := quotaKey(resource, subject)
	hits, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return Quota{}, err
	}
	if hits == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return Quota{}, err
		}
	}

	resetIn, err := rdb.PTTL(ctx, key).Result()
	if err != nil || resetIn < 0 {
		resetIn = window
	}

	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Allowed: hits <= int64(limit), Remaining: remaining, ResetIn: resetIn}, nil
}

// RateLimit limits a route to limit hits per window for each caller, failing open.
// The optional name shares one counter across routes; it defaults to the path.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit behaviour for Redis outages.
// Callers are keyed by verified user id, or by IP before authentication.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		resource := c.Path()
		if len(name) > 0 && name[0] != "" {
			resource = name[0]
		}
		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(string); ok && uid != "" {
			subject = "user:" + uid
		}

		q, err := CheckRateLimit(ctx, rdb, resource, subject, limit, window)
		if err != nil {
			if policy == FailOpen {
				Logger.DebugContext(ctx, "rate limiter unavailable, allowing request",
					slog.String("resource", resource))
				return c.Next()
			}
			Logger.WarnContext(ctx, "rate limiter unavailable, rejecting request",
				slog.String("resource", resource),
				slog.String("error", err.Error()),
			)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "rate limit unavailable",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
		if !q.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(q.ResetIn.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
