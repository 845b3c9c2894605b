// Package mongostore is the document-store driver: a connection gateway and a
// repository.Store backed by MongoDB collections.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/middleware"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ErrNotConnected is returned by Database before a successful Connect.
var ErrNotConnected = errors.New("mongostore: not connected")

const (
	usersCollection       = "users"
	communitiesCollection = "communities"
	reviewsCollection     = "reviews"
)

// Gateway opens one client on first use and hands out its database until Shutdown.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	mu        sync.Mutex
	client    *mongo.Client
	db        *mongo.Database
	connected bool
}

func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{cfg: cfg, logger: middleware.Logger}
}

// Connect is idempotent. A missing MONGODB_URL is logged and treated as a no-op.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.connected {
		return nil
	}
	if g.cfg.MongoURL == "" {
		g.logger.WarnContext(ctx, "MONGODB_URL not set, skipping connect")
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(g.cfg.MongoURL).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}

	g.client = client
	g.db = client.Database(g.cfg.MongoDatabase)
	g.connected = true
	g.logger.InfoContext(ctx, "MongoDB connected successfully", slog.String("database", g.cfg.MongoDatabase))
	return nil
}

func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Database returns the live handle or ErrNotConnected.
func (g *Gateway) Database(_ context.Context) (*mongo.Database, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, ErrNotConnected
	}
	return g.db, nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	client := g.client
	g.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Ping(ctx, readpref.Primary())
}

// Shutdown disconnects. The gateway may connect again afterwards.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil
	}
	g.connected = false
	client := g.client
	g.client, g.db = nil, nil
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the unique handles and the lookup indexes the
// repositories filter on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		communitiesCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		reviewsCollection: {
			{Keys: bson.D{{Key: "parent_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "author_id", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Clean deletes every document the store writes. Indexes are kept.
func Clean(ctx context.Context, db *mongo.Database) error {
	for _, coll := range []string{reviewsCollection, communitiesCollection, usersCollection} {
		if _, err := db.Collection(coll).DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("clean %s: %w", coll, err)
		}
	}
	return nil
}
