package repository

import (
	"context"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetWithReviews(ctx context.Context, id string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	Search(ctx context.Context, q UserQuery) ([]*models.User, int64, error)
	AppendReview(ctx context.Context, userID, reviewID string) error
	PullReviews(ctx context.Context, userIDs, reviewIDs []string) error
	Exists(ctx context.Context, id string) (bool, error)
}

type userRepository struct {
	db      *gorm.DB
	metrics *observability.StoreMetrics
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, metrics: observability.NewStoreMetrics(db.Dialector.Name())}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.metrics.TrackQuery("users.get")()
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Communities", communityCard).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "User", id)
	}
	return &user, nil
}

// GetWithReviews loads the user's owned reviews, newest first, with community
// and reply authors populated.
func (r *userRepository) GetWithReviews(ctx context.Context, id string) (*models.User, error) {
	defer r.metrics.TrackQuery("users.get_with_reviews")()
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Reviews", func(db *gorm.DB) *gorm.DB {
			return db.Order("reviews.created_at desc")
		}).
		Preload("Reviews.Community", communityCard).
		Preload("Reviews.Children", oldestFirst).
		Preload("Reviews.Children.Author", authorCard).
		First(&user, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	defer r.metrics.TrackQuery("users.upsert")()
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "name", "bio", "image", "onboarded", "updated_at"}),
		}).
		Create(user).Error
	if isUniqueConstraintError(err) {
		return models.NewConflictError("Username is already taken")
	}
	return err
}

func (r *userRepository) Search(ctx context.Context, q UserQuery) ([]*models.User, int64, error) {
	defer r.metrics.TrackQuery("users.search")()
	filter := func(db *gorm.DB) *gorm.DB {
		if q.ExcludeID != "" {
			db = db.Where("id <> ?", q.ExcludeID)
		}
		if q.Search != "" {
			p := likePattern(q.Search)
			db = db.Where(`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\')`, p, p)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at asc"
	if q.SortDesc {
		order = "created_at desc"
	}
	var users []*models.User
	err := r.db.WithContext(ctx).Scopes(filter).Order(order).Limit(q.Limit).Offset(q.Offset).Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) AppendReview(ctx context.Context, userID, reviewID string) error {
	defer r.metrics.TrackQuery("users.append_review")()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserReview{UserID: userID, ReviewID: reviewID}).Error
}

func (r *userRepository) PullReviews(ctx context.Context, userIDs, reviewIDs []string) error {
	if len(userIDs) == 0 || len(reviewIDs) == 0 {
		return nil
	}
	defer r.metrics.TrackQuery("users.pull_reviews")()
	return r.db.WithContext(ctx).
		Where("user_id IN ? AND review_id IN ?", userIDs, reviewIDs).
		Delete(&models.UserReview{}).Error
}

func (r *userRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer r.metrics.TrackQuery("users.exists")()
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}
