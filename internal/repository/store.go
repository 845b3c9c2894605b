// Package repository implements the relational data access layer.
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"

	"gorm.io/gorm"
)

// Store groups the repositories that share one transaction boundary.
type Store interface {
	Reviews() ReviewRepository
	Users() UserRepository
	Communities() CommunityRepository
	// Transaction runs fn against a Store bound to a single transaction. A
	// non-nil error from fn rolls every step back.
	Transaction(ctx context.Context, fn func(Store) error) error
}

type gormStore struct {
	db          *gorm.DB
	metrics     *observability.StoreMetrics
	reviews     *reviewRepository
	users       *userRepository
	communities *communityRepository
}

// NewStore returns the GORM-backed Store.
func NewStore(db *gorm.DB) Store {
	return newGormStore(db, observability.NewStoreMetrics(db.Dialector.Name()))
}

func newGormStore(db *gorm.DB, m *observability.StoreMetrics) *gormStore {
	return &gormStore{
		db:          db,
		metrics:     m,
		reviews:     &reviewRepository{db: db, metrics: m},
		users:       &userRepository{db: db, metrics: m},
		communities: &communityRepository{db: db, metrics: m},
	}
}

func (s *gormStore) Reviews() ReviewRepository        { return s.reviews }
func (s *gormStore) Users() UserRepository            { return s.users }
func (s *gormStore) Communities() CommunityRepository { return s.communities }

func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	defer s.metrics.TrackQuery("transaction")()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newGormStore(tx, s.metrics))
	})
}

// UserQuery filters a user search.
type UserQuery struct {
	ExcludeID string
	Search    string
	SortDesc  bool
	Limit     int
	Offset    int
}

// CommunityQuery filters a community listing.
type CommunityQuery struct {
	Search string
	Limit  int
	Offset int
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505; SQLite "UNIQUE constraint failed"
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return err
}

// likePattern builds a case-insensitive substring pattern, escaping LIKE wildcards
// so user input matches literally.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}

func authorCard(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "name", "image")
}

func communityCard(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "name", "image")
}

func oldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("created_at asc")
}

// withFeedRelations preloads what a feed card shows: author, community and the
// authors of direct replies.
func withFeedRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author", authorCard).
		Preload("Community", communityCard).
		Preload("Children", oldestFirst).
		Preload("Children.Author", authorCard)
}
