// Package bootstrap opens the store selected by configuration plus the
// optional Redis client, for the server and the command-line tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/francozeta/musicbox/internal/cache"
	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/database"
	"github.com/francozeta/musicbox/internal/middleware"
	"github.com/francozeta/musicbox/internal/mongostore"
	"github.com/francozeta/musicbox/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Backend is the connection a store runs on.
type Backend interface {
	Ping(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema leaves the relational schema untouched.
	SkipSchema bool
	// SkipRedis keeps the cache disabled even when REDIS_URL is set.
	SkipRedis bool
	// Opener overrides the postgres dialector.
	Opener database.Opener
}

// Runtime is everything InitRuntime opened. Exactly one of SQL and Mongo is set.
type Runtime struct {
	Store   repository.Store
	Backend Backend
	SQL     *gorm.DB
	Mongo   *mongo.Database
	Redis   *redis.Client
}

// InitRuntime connects the configured store and Redis. Redis is optional: an
// unreachable server leaves Runtime.Redis nil.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{}

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		if err := rt.openMongo(ctx, cfg); err != nil {
			return nil, err
		}
	case "", config.StoreDriverPostgres:
		if err := rt.openSQL(ctx, cfg, opts); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}

	if !opts.SkipRedis {
		rt.Redis = cache.InitRedis(cfg.RedisURL)
	}
	return rt, nil
}

func (rt *Runtime) openSQL(ctx context.Context, cfg *config.Config, opts Options) error {
	var gwOpts []database.GatewayOption
	if opts.Opener != nil {
		gwOpts = append(gwOpts, database.WithOpener(opts.Opener))
	}
	gw := database.NewGateway(cfg, gwOpts...)
	if err := gw.Connect(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	db, err := gw.Session(context.Background())
	if errors.Is(err, database.ErrNotConnected) {
		return errors.New("database connection failed: DATABASE_URL or DB_HOST/DB_NAME must be set")
	}
	if err != nil {
		return err
	}

	if !opts.SkipSchema {
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			_ = gw.Shutdown(ctx)
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	rt.Store = repository.NewStore(db)
	rt.Backend = gw
	rt.SQL = db
	return nil
}

func (rt *Runtime) openMongo(ctx context.Context, cfg *config.Config) error {
	gw := mongostore.NewGateway(cfg)
	if err := gw.Connect(ctx); err != nil {
		return err
	}
	db, err := gw.Database(ctx)
	if errors.Is(err, mongostore.ErrNotConnected) {
		return errors.New("mongodb connection failed: MONGODB_URL must be set")
	}
	if err != nil {
		return err
	}
	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
		_ = gw.Shutdown(ctx)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	rt.Store = mongostore.NewStore(db, cfg.MongoTransactions)
	rt.Backend = gw
	rt.Mongo = db
	return nil
}

// Close releases the store connection and the Redis client.
func (rt *Runtime) Close(ctx context.Context) {
	if rt.Backend != nil {
		if err := rt.Backend.Shutdown(ctx); err != nil {
			middleware.Logger.WarnContext(ctx, "error closing store", slog.String("error", err.Error()))
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			middleware.Logger.WarnContext(ctx, "error closing redis", slog.String("error", err.Error()))
		}
	}
}
