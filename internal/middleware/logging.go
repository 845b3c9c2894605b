// Package middleware holds the Fiber middleware and the process-wide logger.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. It reads request, user and
// trace ids from the context passed to the *Context methods.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// correlationKeys are copied from the context onto every record, in this order.
var correlationKeys = []contextKey{RequestIDKey, UserIDKey, TraceIDKey}

type ctxHandler struct {
	next slog.Handler
}

func (h ctxHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, key := range correlationKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			r.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ctxHandler{next: h.next.WithAttrs(attrs)}
}

func (h ctxHandler) WithGroup(name string) slog.Handler {
	return ctxHandler{next: h.next.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// NewLogger writes JSON in production and text elsewhere. An unknown level
// name leaves the level at info.
func NewLogger(w io.Writer, env, levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler = slog.NewTextHandler(w, opts)
	if env := strings.ToLower(env); env == "production" || env == "prod" {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(ctxHandler{next: base})
}

// UserIDFromContext returns the authenticated external user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// localsToContext maps Fiber locals onto the context keys the logger reads.
var localsToContext = map[string]contextKey{
	"requestid": RequestIDKey,
	"userID":    UserIDKey,
	"traceID":   TraceIDKey,
}

// ContextMiddleware copies correlation ids from Fiber locals into the user
// context so services deep in a request log them too. Auth and tracing run
// later and add their own ids themselves.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		for local, key := range localsToContext {
			if v, ok := c.Locals(local).(string); ok && v != "" {
				ctx = context.WithValue(ctx, key, v)
			}
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger writes one line per request, at error for 5xx and handler
// errors, warn for 4xx and info otherwise. Probe traffic is not logged.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/health/") {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
			slog.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		}
		if route := c.Route(); route != nil && route.Path != c.Path() {
			attrs = append(attrs, slog.String("route", route.Path))
		}

		ctx := c.UserContext()
		switch {
		case err != nil:
			Logger.ErrorContext(ctx, "request failed", append(attrs, slog.String("error", err.Error()))...)
		case status >= fiber.StatusInternalServerError:
			Logger.ErrorContext(ctx, "request failed", attrs...)
		case status >= fiber.StatusBadRequest:
			Logger.WarnContext(ctx, "request rejected", attrs...)
		default:
			Logger.InfoContext(ctx, "request served", attrs...)
		}
		return err
	}
}
