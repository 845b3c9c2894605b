package cache

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/francozeta/musicbox/internal/middleware"
)

const pageKeyPrefix = "page:"

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// PageKey is the cache key of a rendered response for path plus its query.
func PageKey(path string, query url.Values) string {
	if len(query) == 0 {
		return pageKeyPrefix + path
	}
	return pageKeyPrefix + path + "?" + query.Encode()
}

// Invalidate deletes a single key.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// InvalidatePath deletes every cached response for path, whatever its query.
func InvalidatePath(ctx context.Context, path string) error {
	if client == nil {
		return nil
	}
	exact := PageKey(path, nil)
	keys := []string{exact}
	// The key is matched literally up to the query separator.
	iter := client.Scan(ctx, 0, globEscaper.Replace(exact)+`\?*`, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		middleware.Logger.DebugContext(ctx, "cache scan failed", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}
	return client.Del(ctx, keys...).Err()
}
