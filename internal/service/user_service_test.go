package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francozeta/musicbox/internal/models"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/revalidate"
)

func TestUpdateUser(t *testing.T) {
	t.Parallel()

	t.Run("lower-cases username and onboards", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		var saved *models.User
		store.users.UpsertFn = func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		}
		rec := &revalidate.Recorder{}
		svc := NewUserService(store, rec)

		_, err := svc.UpdateUser(context.Background(), UpdateUserInput{
			UserID: "user_1", Username: "Mixed.Case_1", Name: "Franco", Path: "/onboarding",
		})
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, "mixed.case_1", saved.Username)
		assert.True(t, saved.Onboarded)
		assert.Empty(t, rec.Paths(), "only the profile edit page is revalidated")
	})

	t.Run("profile edit revalidates", func(t *testing.T) {
		t.Parallel()
		rec := &revalidate.Recorder{}
		svc := NewUserService(newStoreStub(), rec)

		_, err := svc.UpdateUser(context.Background(), UpdateUserInput{
			UserID: "user_1", Username: "franco", Name: "Franco", Path: ProfileEditPath,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{ProfileEditPath}, rec.Paths())
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		svc := NewUserService(newStoreStub(), nil)
		cases := map[string]UpdateUserInput{
			"username must be at least 3 characters": {UserID: "u", Username: "ab", Name: "Franco"},
			"username may only contain":              {UserID: "u", Username: "bad name", Name: "Franco"},
			"name must be at most 30 characters":     {UserID: "u", Username: "franco", Name: "Franco Zeta Franco Zeta Franco Z"},
			"image must be a valid URL":              {UserID: "u", Username: "franco", Name: "Franco", Image: "not a url"},
		}
		for want, in := range cases {
			_, err := svc.UpdateUser(context.Background(), in)
			assertValidationError(t, err, want)
		}
	})

	t.Run("taken username stays a conflict", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		store.users.UpsertFn = func(context.Context, *models.User) error {
			return models.NewConflictError("Username is already taken")
		}
		svc := NewUserService(store, nil)

		_, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: "u", Username: "franco", Name: "Franco"})
		assertAppError(t, err, models.CodeConflict, "already taken")
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		t.Parallel()
		store := newStoreStub()
		store.users.UpsertFn = func(context.Context, *models.User) error { return errStore }
		svc := NewUserService(store, nil)

		_, err := svc.UpdateUser(context.Background(), UpdateUserInput{UserID: "u", Username: "franco", Name: "Franco"})
		assertAppError(t, err, models.CodeOperationFailed, "Failed to create/update user: connection reset by peer")
	})
}

func TestGetUser_Errors(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	store.users.GetByIDFn = func(_ context.Context, id string) (*models.User, error) {
		if id == "missing" {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, errStore
	}
	svc := NewUserService(store, nil)

	_, err := svc.GetUser(context.Background(), "missing")
	assertAppError(t, err, models.CodeNotFound, "")

	_, err = svc.GetUser(context.Background(), "broken")
	assertAppError(t, err, models.CodeOperationFailed, "Failed to fetch user")
}

func TestSearchUsers_Defaults(t *testing.T) {
	t.Parallel()

	store := newStoreStub()
	var got repository.UserQuery
	store.users.SearchFn = func(_ context.Context, q repository.UserQuery) ([]*models.User, int64, error) {
		got = q
		return []*models.User{{ID: "a"}}, 1, nil
	}
	svc := NewUserService(store, nil)

	page, err := svc.SearchUsers(context.Background(), SearchUsersInput{UserID: "me", SearchText: "  jo  "})
	require.NoError(t, err)
	assert.False(t, page.HasNext)
	assert.Equal(t, repository.UserQuery{ExcludeID: "me", Search: "jo", SortDesc: true, Limit: 20, Offset: 0}, got)

	_, err = svc.SearchUsers(context.Background(), SearchUsersInput{Page: 2, PageSize: 5, SortOrder: "asc"})
	require.NoError(t, err)
	assert.False(t, got.SortDesc)
	assert.Equal(t, 5, got.Offset)

	_, err = svc.SearchUsers(context.Background(), SearchUsersInput{SortOrder: "sideways"})
	assertValidationError(t, err, "SortOrder must be one of")
}

func TestGetActivity_SQLite(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	seedUser(t, store, "alice", "alice")
	seedUser(t, store, "bob", "bob")

	reviews := NewReviewService(store, nil)
	in := validReviewInput()
	in.AuthorID = "alice"
	created, err := reviews.CreateReview(ctx, in)
	require.NoError(t, err)

	fromBob, err := reviews.AddComment(ctx, AddCommentInput{ReviewID: created.ReviewID, Text: "great pick", UserID: "bob"})
	require.NoError(t, err)
	_, err = reviews.AddComment(ctx, AddCommentInput{ReviewID: created.ReviewID, Text: "thanks bob", UserID: "alice"})
	require.NoError(t, err)

	svc := NewUserService(store, nil)
	activity, err := svc.GetActivity(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, fromBob.ID, activity[0].ID)
	require.NotNil(t, activity[0].Author)
	assert.Equal(t, "bob", activity[0].Author.Username)

	empty, err := svc.GetActivity(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, empty)

	withReviews, err := svc.GetUserReviews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, withReviews.Reviews, 1)
	assert.Equal(t, created.ReviewID, withReviews.Reviews[0].ID)
}
