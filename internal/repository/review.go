package repository

import (
	"context"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"

	"gorm.io/gorm"
)

// ReviewRepository defines persistence operations for reviews and replies.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id string) (*models.Review, error)
	GetThread(ctx context.Context, id string) (*models.Review, error)
	ListTopLevel(ctx context.Context, limit, offset int) ([]*models.Review, int64, error)
	ListChildren(ctx context.Context, parentIDs []string) ([]*models.Review, error)
	ListByAuthor(ctx context.Context, authorID string) ([]*models.Review, error)
	ListByParents(ctx context.Context, parentIDs []string, excludeAuthorID string) ([]*models.Review, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type reviewRepository struct {
	db      *gorm.DB
	metrics *observability.StoreMetrics
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db, metrics: observability.NewStoreMetrics(db.Dialector.Name())}
}

func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	defer r.metrics.TrackQuery("reviews.create")()
	return r.db.WithContext(ctx).Omit("Author", "Community", "Children").Create(review).Error
}

func (r *reviewRepository) GetByID(ctx context.Context, id string) (*models.Review, error) {
	defer r.metrics.TrackQuery("reviews.get")()
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "Review", id)
	}
	return &review, nil
}

// GetThread loads a review with its author, community and two levels of replies.
func (r *reviewRepository) GetThread(ctx context.Context, id string) (*models.Review, error) {
	defer r.metrics.TrackQuery("reviews.thread")()
	var review models.Review
	err := r.db.WithContext(ctx).
		Preload("Author", authorCard).
		Preload("Community", communityCard).
		Preload("Children", oldestFirst).
		Preload("Children.Author", authorCard).
		Preload("Children.Children", oldestFirst).
		Preload("Children.Children.Author", authorCard).
		First(&review, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "Review", id)
	}
	return &review, nil
}

func (r *reviewRepository) ListTopLevel(ctx context.Context, limit, offset int) ([]*models.Review, int64, error) {
	defer r.metrics.TrackQuery("reviews.list_top_level")()
	var total int64
	base := r.db.WithContext(ctx).Model(&models.Review{}).Where("parent_id IS NULL")
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reviews []*models.Review
	err := withFeedRelations(r.db.WithContext(ctx)).
		Where("parent_id IS NULL").
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&reviews).Error
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

// ListChildren returns the direct replies of every id in parentIDs. Only the
// columns the cascade needs are loaded.
func (r *reviewRepository) ListChildren(ctx context.Context, parentIDs []string) ([]*models.Review, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}
	defer r.metrics.TrackQuery("reviews.list_children")()
	var children []*models.Review
	err := r.db.WithContext(ctx).
		Select("id", "author_id", "parent_id", "community_id").
		Where("parent_id IN ?", parentIDs).
		Find(&children).Error
	return children, err
}

func (r *reviewRepository) ListByAuthor(ctx context.Context, authorID string) ([]*models.Review, error) {
	defer r.metrics.TrackQuery("reviews.list_by_author")()
	var reviews []*models.Review
	err := r.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Order("created_at desc").
		Find(&reviews).Error
	return reviews, err
}

func (r *reviewRepository) ListByParents(ctx context.Context, parentIDs []string, excludeAuthorID string) ([]*models.Review, error) {
	if len(parentIDs) == 0 {
		return []*models.Review{}, nil
	}
	defer r.metrics.TrackQuery("reviews.list_by_parents")()
	q := r.db.WithContext(ctx).
		Preload("Author", authorCard).
		Where("parent_id IN ?", parentIDs)
	if excludeAuthorID != "" {
		q = q.Where("author_id <> ?", excludeAuthorID)
	}
	var replies []*models.Review
	err := q.Order("created_at desc").Find(&replies).Error
	return replies, err
}

func (r *reviewRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	defer r.metrics.TrackQuery("reviews.delete")()
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Review{})
	return res.RowsAffected, res.Error
}
