package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/francozeta/musicbox/internal/database"
	"github.com/francozeta/musicbox/internal/models"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// setupSQLiteDB returns a private in-memory database with the full schema.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, db *gorm.DB, id, username, name string) *models.User {
	t.Helper()
	u := &models.User{ID: id, Username: username, Name: name, CreatedAt: epoch}
	require.NoError(t, NewUserRepository(db).Upsert(t.Context(), u))
	return u
}

// mustReview inserts a review minutes after epoch; parent may be empty.
func mustReview(t *testing.T, db *gorm.DB, id, author, parent string, minutes int) *models.Review {
	t.Helper()
	r := &models.Review{
		ID:        id,
		AuthorID:  author,
		Text:      "review " + id,
		CreatedAt: epoch.Add(time.Duration(minutes) * time.Minute),
	}
	if parent != "" {
		r.ParentID = &parent
	} else {
		rating := 4.5
		r.SongTitle, r.Artist, r.Rating = "Song "+id, "Artist", &rating
	}
	require.NoError(t, NewReviewRepository(db).Create(t.Context(), r))
	return r
}

func ids(reviews []*models.Review) []string {
	out := make([]string, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, r.ID)
	}
	return out
}
