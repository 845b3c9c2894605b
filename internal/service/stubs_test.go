package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/testutil"
)

type storeStub struct {
	reviews     *reviewRepoStub
	users       *userRepoStub
	communities *communityRepoStub
	txCalls     int
}

func newStoreStub() *storeStub {
	return &storeStub{
		reviews:     &reviewRepoStub{},
		users:       &userRepoStub{},
		communities: &communityRepoStub{},
	}
}

func (s *storeStub) Reviews() repository.ReviewRepository        { return s.reviews }
func (s *storeStub) Users() repository.UserRepository            { return s.users }
func (s *storeStub) Communities() repository.CommunityRepository { return s.communities }

func (s *storeStub) Transaction(_ context.Context, fn func(repository.Store) error) error {
	s.txCalls++
	return fn(s)
}

type reviewRepoStub struct {
	CreateFn        func(context.Context, *models.Review) error
	GetByIDFn       func(context.Context, string) (*models.Review, error)
	GetThreadFn     func(context.Context, string) (*models.Review, error)
	ListTopLevelFn  func(context.Context, int, int) ([]*models.Review, int64, error)
	ListChildrenFn  func(context.Context, []string) ([]*models.Review, error)
	ListByAuthorFn  func(context.Context, string) ([]*models.Review, error)
	ListByParentsFn func(context.Context, []string, string) ([]*models.Review, error)
	DeleteByIDsFn   func(context.Context, []string) (int64, error)
}

func (r *reviewRepoStub) Create(ctx context.Context, review *models.Review) error {
	if r.CreateFn == nil {
		return nil
	}
	return r.CreateFn(ctx, review)
}

func (r *reviewRepoStub) GetByID(ctx context.Context, id string) (*models.Review, error) {
	if r.GetByIDFn == nil {
		return nil, models.NewNotFoundError("Review", id)
	}
	return r.GetByIDFn(ctx, id)
}

func (r *reviewRepoStub) GetThread(ctx context.Context, id string) (*models.Review, error) {
	if r.GetThreadFn == nil {
		return nil, models.NewNotFoundError("Review", id)
	}
	return r.GetThreadFn(ctx, id)
}

func (r *reviewRepoStub) ListTopLevel(ctx context.Context, limit, offset int) ([]*models.Review, int64, error) {
	if r.ListTopLevelFn == nil {
		return nil, 0, nil
	}
	return r.ListTopLevelFn(ctx, limit, offset)
}

func (r *reviewRepoStub) ListChildren(ctx context.Context, parentIDs []string) ([]*models.Review, error) {
	if r.ListChildrenFn == nil {
		return nil, nil
	}
	return r.ListChildrenFn(ctx, parentIDs)
}

func (r *reviewRepoStub) ListByAuthor(ctx context.Context, authorID string) ([]*models.Review, error) {
	if r.ListByAuthorFn == nil {
		return nil, nil
	}
	return r.ListByAuthorFn(ctx, authorID)
}

func (r *reviewRepoStub) ListByParents(ctx context.Context, parentIDs []string, excludeAuthorID string) ([]*models.Review, error) {
	if r.ListByParentsFn == nil {
		return nil, nil
	}
	return r.ListByParentsFn(ctx, parentIDs, excludeAuthorID)
}

func (r *reviewRepoStub) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if r.DeleteByIDsFn == nil {
		return int64(len(ids)), nil
	}
	return r.DeleteByIDsFn(ctx, ids)
}

type userRepoStub struct {
	GetByIDFn        func(context.Context, string) (*models.User, error)
	GetWithReviewsFn func(context.Context, string) (*models.User, error)
	UpsertFn         func(context.Context, *models.User) error
	SearchFn         func(context.Context, repository.UserQuery) ([]*models.User, int64, error)
	AppendReviewFn   func(context.Context, string, string) error
	PullReviewsFn    func(context.Context, []string, []string) error
	ExistsFn         func(context.Context, string) (bool, error)
}

func (r *userRepoStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	if r.GetByIDFn == nil {
		return &models.User{ID: id}, nil
	}
	return r.GetByIDFn(ctx, id)
}

func (r *userRepoStub) GetWithReviews(ctx context.Context, id string) (*models.User, error) {
	if r.GetWithReviewsFn == nil {
		return &models.User{ID: id}, nil
	}
	return r.GetWithReviewsFn(ctx, id)
}

func (r *userRepoStub) Upsert(ctx context.Context, user *models.User) error {
	if r.UpsertFn == nil {
		return nil
	}
	return r.UpsertFn(ctx, user)
}

func (r *userRepoStub) Search(ctx context.Context, q repository.UserQuery) ([]*models.User, int64, error) {
	if r.SearchFn == nil {
		return nil, 0, nil
	}
	return r.SearchFn(ctx, q)
}

func (r *userRepoStub) AppendReview(ctx context.Context, userID, reviewID string) error {
	if r.AppendReviewFn == nil {
		return nil
	}
	return r.AppendReviewFn(ctx, userID, reviewID)
}

func (r *userRepoStub) PullReviews(ctx context.Context, userIDs, reviewIDs []string) error {
	if r.PullReviewsFn == nil {
		return nil
	}
	return r.PullReviewsFn(ctx, userIDs, reviewIDs)
}

func (r *userRepoStub) Exists(ctx context.Context, id string) (bool, error) {
	if r.ExistsFn == nil {
		return true, nil
	}
	return r.ExistsFn(ctx, id)
}

type communityRepoStub struct {
	CreateFn       func(context.Context, *models.Community) error
	GetByIDFn      func(context.Context, string) (*models.Community, error)
	ResolveFn      func(context.Context, string) (string, bool, error)
	ListFn         func(context.Context, repository.CommunityQuery) ([]*models.Community, int64, error)
	AppendReviewFn func(context.Context, string, string) error
	PullReviewsFn  func(context.Context, []string, []string) error
	AddMemberFn    func(context.Context, string, string) error
	RemoveMemberFn func(context.Context, string, string) error
	ListReviewsFn  func(context.Context, string, int, int) ([]*models.Review, int64, error)
}

func (r *communityRepoStub) Create(ctx context.Context, c *models.Community) error {
	if r.CreateFn == nil {
		return nil
	}
	return r.CreateFn(ctx, c)
}

func (r *communityRepoStub) GetByID(ctx context.Context, id string) (*models.Community, error) {
	if r.GetByIDFn == nil {
		return &models.Community{ID: id}, nil
	}
	return r.GetByIDFn(ctx, id)
}

func (r *communityRepoStub) Resolve(ctx context.Context, id string) (string, bool, error) {
	if r.ResolveFn == nil {
		return "", false, nil
	}
	return r.ResolveFn(ctx, id)
}

func (r *communityRepoStub) List(ctx context.Context, q repository.CommunityQuery) ([]*models.Community, int64, error) {
	if r.ListFn == nil {
		return nil, 0, nil
	}
	return r.ListFn(ctx, q)
}

func (r *communityRepoStub) AppendReview(ctx context.Context, communityID, reviewID string) error {
	if r.AppendReviewFn == nil {
		return nil
	}
	return r.AppendReviewFn(ctx, communityID, reviewID)
}

func (r *communityRepoStub) PullReviews(ctx context.Context, communityIDs, reviewIDs []string) error {
	if r.PullReviewsFn == nil {
		return nil
	}
	return r.PullReviewsFn(ctx, communityIDs, reviewIDs)
}

func (r *communityRepoStub) AddMember(ctx context.Context, communityID, userID string) error {
	if r.AddMemberFn == nil {
		return nil
	}
	return r.AddMemberFn(ctx, communityID, userID)
}

func (r *communityRepoStub) RemoveMember(ctx context.Context, communityID, userID string) error {
	if r.RemoveMemberFn == nil {
		return nil
	}
	return r.RemoveMemberFn(ctx, communityID, userID)
}

func (r *communityRepoStub) ListReviews(ctx context.Context, communityID string, limit, offset int) ([]*models.Review, int64, error) {
	if r.ListReviewsFn == nil {
		return nil, 0, nil
	}
	return r.ListReviewsFn(ctx, communityID, limit, offset)
}

var errStore = errors.New("connection reset by peer")

func assertAppError(t *testing.T, err error, code, contains string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
	if contains != "" {
		assert.Contains(t, appErr.Message, contains)
	}
}

func assertValidationError(t *testing.T, err error, contains string) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation, contains)
}

// setupStore returns a GORM store over a private in-memory SQLite database.
func setupStore(t *testing.T) (repository.Store, *gorm.DB) {
	t.Helper()
	return testutil.SQLiteStore(t, "svc")
}

func seedUser(t *testing.T, store repository.Store, id, username string) {
	t.Helper()
	require.NoError(t, store.Users().Upsert(t.Context(), &models.User{ID: id, Username: username, Name: "Name " + username}))
}

func seedCommunity(t *testing.T, store repository.Store, id, creator string) {
	t.Helper()
	require.NoError(t, store.Communities().Create(t.Context(), &models.Community{
		ID: id, Username: "c_" + id, Name: "Community " + id, CreatedByID: creator,
	}))
}

func rating(v float64) *float64 { return &v }
