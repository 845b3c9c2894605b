package repository

import (
	"context"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunityRepository defines persistence operations for communities and their
// review and member lists.
type CommunityRepository interface {
	Create(ctx context.Context, community *models.Community) error
	GetByID(ctx context.Context, id string) (*models.Community, error)
	Resolve(ctx context.Context, id string) (string, bool, error)
	List(ctx context.Context, q CommunityQuery) ([]*models.Community, int64, error)
	AppendReview(ctx context.Context, communityID, reviewID string) error
	PullReviews(ctx context.Context, communityIDs, reviewIDs []string) error
	AddMember(ctx context.Context, communityID, userID string) error
	RemoveMember(ctx context.Context, communityID, userID string) error
	ListReviews(ctx context.Context, communityID string, limit, offset int) ([]*models.Review, int64, error)
}

type communityRepository struct {
	db      *gorm.DB
	metrics *observability.StoreMetrics
}

// NewCommunityRepository creates a new CommunityRepository.
func NewCommunityRepository(db *gorm.DB) CommunityRepository {
	return &communityRepository{db: db, metrics: observability.NewStoreMetrics(db.Dialector.Name())}
}

func (r *communityRepository) Create(ctx context.Context, community *models.Community) error {
	defer r.metrics.TrackQuery("communities.create")()
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(community).Error
	if isUniqueConstraintError(err) {
		return models.NewConflictError("Community already exists")
	}
	return err
}

func (r *communityRepository) GetByID(ctx context.Context, id string) (*models.Community, error) {
	defer r.metrics.TrackQuery("communities.get")()
	var community models.Community
	err := r.db.WithContext(ctx).
		Preload("CreatedBy", authorCard).
		Preload("Members", authorCard).
		First(&community, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "Community", id)
	}
	return &community, nil
}

// Resolve maps an external community id to the stored id. A miss is not an error.
func (r *communityRepository) Resolve(ctx context.Context, id string) (string, bool, error) {
	defer r.metrics.TrackQuery("communities.resolve")()
	var found []string
	err := r.db.WithContext(ctx).
		Model(&models.Community{}).
		Where("id = ?", id).
		Limit(1).
		Pluck("id", &found).Error
	if err != nil || len(found) == 0 {
		return "", false, err
	}
	return found[0], true, nil
}

func (r *communityRepository) List(ctx context.Context, q CommunityQuery) ([]*models.Community, int64, error) {
	defer r.metrics.TrackQuery("communities.list")()
	filter := func(db *gorm.DB) *gorm.DB {
		if q.Search == "" {
			return db
		}
		p := likePattern(q.Search)
		return db.Where(`(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\')`, p, p)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Community{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var communities []*models.Community
	err := r.db.WithContext(ctx).Scopes(filter).Order("created_at desc").Limit(q.Limit).Offset(q.Offset).Find(&communities).Error
	if err != nil {
		return nil, 0, err
	}
	return communities, total, nil
}

func (r *communityRepository) AppendReview(ctx context.Context, communityID, reviewID string) error {
	defer r.metrics.TrackQuery("communities.append_review")()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CommunityReview{CommunityID: communityID, ReviewID: reviewID}).Error
}

func (r *communityRepository) PullReviews(ctx context.Context, communityIDs, reviewIDs []string) error {
	if len(communityIDs) == 0 || len(reviewIDs) == 0 {
		return nil
	}
	defer r.metrics.TrackQuery("communities.pull_reviews")()
	return r.db.WithContext(ctx).
		Where("community_id IN ? AND review_id IN ?", communityIDs, reviewIDs).
		Delete(&models.CommunityReview{}).Error
}

func (r *communityRepository) AddMember(ctx context.Context, communityID, userID string) error {
	defer r.metrics.TrackQuery("communities.add_member")()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CommunityMember{CommunityID: communityID, UserID: userID}).Error
}

func (r *communityRepository) RemoveMember(ctx context.Context, communityID, userID string) error {
	defer r.metrics.TrackQuery("communities.remove_member")()
	return r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", communityID, userID).
		Delete(&models.CommunityMember{}).Error
}

// ListReviews pages through the top-level reviews attributed to a community.
func (r *communityRepository) ListReviews(ctx context.Context, communityID string, limit, offset int) ([]*models.Review, int64, error) {
	defer r.metrics.TrackQuery("communities.list_reviews")()
	linked := r.db.Model(&models.CommunityReview{}).Select("review_id").Where("community_id = ?", communityID)

	var total int64
	err := r.db.WithContext(ctx).Model(&models.Review{}).
		Where("id IN (?) AND parent_id IS NULL", linked).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var reviews []*models.Review
	err = withFeedRelations(r.db.WithContext(ctx)).
		Where("id IN (?) AND parent_id IS NULL", linked).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&reviews).Error
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}
