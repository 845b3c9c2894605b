package bootstrap

import (
	"context"
	"fmt"
	"testing"

	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func TestInitRuntime_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Env:          "test",
		StoreDriver:  config.StoreDriverPostgres,
		DatabaseURL:  fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		DBSchemaMode: "auto",
	}

	rt, err := InitRuntime(ctx, cfg, Options{SkipRedis: true, Opener: sqlite.Open})
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.NotNil(t, rt.SQL)
	assert.Nil(t, rt.Mongo)
	assert.Nil(t, rt.Redis)
	assert.NoError(t, rt.Backend.Ping(ctx))

	require.NoError(t, rt.Store.Users().Upsert(ctx, &models.User{ID: "user_1", Username: "alice", Name: "Alice"}))
	ok, err := rt.Store.Users().Exists(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInitRuntime_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  *config.Config
		want string
	}{
		{"unknown driver", &config.Config{StoreDriver: "cassandra"}, `unsupported store driver "cassandra"`},
		{"sql not configured", &config.Config{Env: "test"}, "DATABASE_URL"},
		{"mongo not configured", &config.Config{StoreDriver: config.StoreDriverMongo}, "MONGODB_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitRuntime(ctx, tt.cfg, Options{SkipRedis: true, Opener: sqlite.Open})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
