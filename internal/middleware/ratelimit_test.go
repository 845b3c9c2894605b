package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit_BypassedOutsideProduction(t *testing.T) {
	for _, env := range []string{"", "test", "development", "stress"} {
		t.Run("env="+env, func(t *testing.T) {
			t.Setenv("APP_ENV", env)
			q, err := CheckRateLimit(context.Background(), nil, "reviews", "user:1", 1, time.Minute)
			require.NoError(t, err)
			assert.True(t, q.Allowed)
		})
	}
}

func TestCheckRateLimit_NilRedisErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := CheckRateLimit(context.Background(), nil, "reviews", "user:1", 1, time.Minute)
	assert.ErrorIs(t, err, errNoLimiterStore)
}

func TestCheckRateLimit_CountsWithinWindow(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	q, err := CheckRateLimit(ctx, rdb, "comment", "user:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Quota{Allowed: true, Remaining: 1, ResetIn: time.Minute}, q)

	q, err = CheckRateLimit(ctx, rdb, "comment", "user:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
	assert.Zero(t, q.Remaining)

	q, err = CheckRateLimit(ctx, rdb, "comment", "user:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, q.Allowed)
	assert.True(t, mr.TTL("rl:comment:user:u1") > 0)

	mr.FastForward(time.Minute + time.Second)
	q, err = CheckRateLimit(ctx, rdb, "comment", "user:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, q.Allowed)
}

func TestRateLimitMiddleware_KeysByUser(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", c.Get("X-User"))
		return c.Next()
	})
	app.Post("/reviews", RateLimit(rdb, 1, time.Minute, "create_review"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	var retryAfter string
	do := func(user string) int {
		req := httptest.NewRequest("POST", "/reviews", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		retryAfter = resp.Header.Get(fiber.HeaderRetryAfter)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusCreated, do("alice"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("alice"))
	assert.Equal(t, "60", retryAfter)
	assert.Equal(t, fiber.StatusCreated, do("bob"))
	assert.True(t, mr.Exists("rl:create_review:user:alice"))
}

func TestRateLimitWithPolicy_FailClosed(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New()
	app.Get("/", RateLimitWithPolicy(rdb, 5, time.Minute, FailClosed, "probe"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	open := fiber.New()
	open.Get("/", RateLimit(rdb, 5, time.Minute, "probe"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	resp, err = open.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
