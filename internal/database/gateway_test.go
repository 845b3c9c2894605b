package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/francozeta/musicbox/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:            "test",
		DatabaseURL:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		DBMaxOpenConns: 4,
	}
}

func countingOpener(calls *int32) Opener {
	return func(dsn string) gorm.Dialector {
		atomic.AddInt32(calls, 1)
		return sqlite.Open(dsn)
	}
}

func TestGateway_ConnectIsIdempotent(t *testing.T) {
	var calls int32
	gw := NewGateway(sqliteConfig(t), WithOpener(countingOpener(&calls)))
	ctx := context.Background()

	require.NoError(t, gw.Connect(ctx))
	require.NoError(t, gw.Connect(ctx))
	assert.True(t, gw.Connected())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	db, err := gw.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())
	assert.NoError(t, gw.Ping(ctx))

	require.NoError(t, gw.Shutdown(ctx))
	assert.False(t, gw.Connected())
}

func TestGateway_ConcurrentFirstConnectOpensOnce(t *testing.T) {
	var calls int32
	gw := NewGateway(sqliteConfig(t), WithOpener(countingOpener(&calls)))
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gw.Connect(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGateway_MissingConfigIsNoop(t *testing.T) {
	var calls int32
	gw := NewGateway(&config.Config{Env: "test"}, WithOpener(countingOpener(&calls)))
	ctx := context.Background()

	assert.NoError(t, gw.Connect(ctx))
	assert.False(t, gw.Connected())
	assert.Zero(t, atomic.LoadInt32(&calls))

	_, err := gw.Session(ctx)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestGateway_OpenFailurePropagates(t *testing.T) {
	cfg := &config.Config{Env: "test", DatabaseURL: "file:/nonexistent-dir/musicbox.db?mode=ro"}
	gw := NewGateway(cfg, WithOpener(sqlite.Open))

	err := gw.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, gw.Connected())
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "", DSN(nil))
	assert.Equal(t, "", DSN(&config.Config{}))
	assert.Equal(t, "postgres://x", DSN(&config.Config{DatabaseURL: " postgres://x "}))
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=musicbox sslmode=disable",
		DSN(&config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "musicbox"}),
	)
}

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}
