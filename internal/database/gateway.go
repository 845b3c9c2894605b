// Package database owns the relational connection lifecycle and schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConnected is returned by Session before a successful Connect.
var ErrNotConnected = errors.New("database: not connected")

// Opener turns a DSN into a gorm dialector. Tests swap it for SQLite.
type Opener func(dsn string) gorm.Dialector

// Gateway opens one pooled connection on first use and hands it out until
// Shutdown. Connect is safe to call from every request path.
type Gateway struct {
	cfg    *config.Config
	open   Opener
	logger *slog.Logger

	mu        sync.Mutex
	db        *gorm.DB
	connected bool
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithOpener replaces the postgres dialector.
func WithOpener(open Opener) GatewayOption {
	return func(g *Gateway) { g.open = open }
}

// WithLogger replaces middleware.Logger for gateway and GORM output.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway builds an unconnected gateway.
func NewGateway(cfg *config.Config, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		open:   postgres.Open,
		logger: middleware.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect establishes the pool once. Missing configuration is logged and
// treated as a no-op; a failed open or ping is returned.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.connected {
		return nil
	}

	dsn := DSN(g.cfg)
	if dsn == "" {
		g.logger.WarnContext(ctx, "database configuration missing, skipping connect")
		return nil
	}

	db, err := gorm.Open(g.open(dsn), &gorm.Config{
		Logger: NewGormLogger(g.logger, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := configurePool(db, g.cfg); err != nil {
		return fmt.Errorf("configure pool: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	g.db = db
	g.connected = true
	g.logger.InfoContext(ctx, "Database connected successfully", slog.String("dialect", db.Dialector.Name()))
	return nil
}

// Connected reports whether Connect has succeeded.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Session returns the live handle bound to ctx.
func (g *Gateway) Session(ctx context.Context) (*gorm.DB, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, ErrNotConnected
	}
	return g.db.WithContext(ctx), nil
}

// Ping checks the pool for readiness probes.
func (g *Gateway) Ping(ctx context.Context) error {
	db, err := g.Session(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Shutdown closes the pool. The gateway may be connected again afterwards.
func (g *Gateway) Shutdown(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil
	}
	g.connected = false
	sqlDB, err := g.db.DB()
	g.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DSN builds the connection string from DATABASE_URL or the discrete DB_*
// keys. It returns "" when neither is configured.
func DSN(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if url := strings.TrimSpace(cfg.DatabaseURL); url != "" {
		return url
	}
	if strings.TrimSpace(cfg.DBHost) == "" || strings.TrimSpace(cfg.DBName) == "" {
		return ""
	}
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		sslMode,
	)
}

func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	maxOpen, maxIdle, lifetime := 25, 5, 5
	if cfg != nil {
		if cfg.DBMaxOpenConns > 0 {
			maxOpen = cfg.DBMaxOpenConns
		}
		if cfg.DBMaxIdleConns > 0 {
			maxIdle = cfg.DBMaxIdleConns
		}
		if cfg.DBConnMaxLifetimeMinutes > 0 {
			lifetime = cfg.DBConnMaxLifetimeMinutes
		}
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(lifetime) * time.Minute)
	return nil
}
