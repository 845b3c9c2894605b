package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francozeta/musicbox/internal/models"
)

func TestCommunityRepository_CreateAndResolve(t *testing.T) {
	db := setupSQLiteDB(t)
	ctx := context.Background()
	repo := NewCommunityRepository(db)
	mustUser(t, db, "u1", "ana", "Ana")

	c := &models.Community{ID: "org_1", Username: "indie", Name: "Indie Heads", CreatedByID: "u1"}
	require.NoError(t, repo.Create(ctx, c))

	err := repo.Create(ctx, &models.Community{ID: "org_2", Username: "indie", Name: "Dup"})
	assert.True(t, models.HasCode(err, models.CodeConflict))

	id, ok, err := repo.Resolve(ctx, "org_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org_1", id)

	_, ok, err = repo.Resolve(ctx, "org_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommunityRepository_Members(t *testing.T) {
	db := setupSQLiteDB(t)
	ctx := context.Background()
	repo := NewCommunityRepository(db)
	mustUser(t, db, "u1", "ana", "Ana")
	mustUser(t, db, "u2", "ben", "Ben")
	require.NoError(t, repo.Create(ctx, &models.Community{ID: "org_1", Username: "indie", Name: "Indie", CreatedByID: "u1"}))

	require.NoError(t, repo.AddMember(ctx, "org_1", "u1"))
	require.NoError(t, repo.AddMember(ctx, "org_1", "u2"))
	require.NoError(t, repo.AddMember(ctx, "org_1", "u2"))

	got, err := repo.GetByID(ctx, "org_1")
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)
	require.NotNil(t, got.CreatedBy)
	assert.Equal(t, "ana", got.CreatedBy.Username)

	require.NoError(t, repo.RemoveMember(ctx, "org_1", "u2"))
	got, err = repo.GetByID(ctx, "org_1")
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)

	user, err := NewUserRepository(db).GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, user.Communities, 1)
	assert.Equal(t, "Indie", user.Communities[0].Name)
}

func TestCommunityRepository_ReviewFeed(t *testing.T) {
	db := setupSQLiteDB(t)
	ctx := context.Background()
	repo := NewCommunityRepository(db)
	mustUser(t, db, "u1", "ana", "Ana")
	require.NoError(t, repo.Create(ctx, &models.Community{ID: "org_1", Username: "indie", Name: "Indie"}))

	mustReview(t, db, "a", "u1", "", 1)
	mustReview(t, db, "b", "u1", "", 2)
	mustReview(t, db, "c", "u1", "", 3)
	require.NoError(t, repo.AppendReview(ctx, "org_1", "a"))
	require.NoError(t, repo.AppendReview(ctx, "org_1", "c"))

	reviews, total, err := repo.ListReviews(ctx, "org_1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"c", "a"}, ids(reviews))

	require.NoError(t, repo.PullReviews(ctx, []string{"org_1"}, []string{"c"}))
	reviews, total, err = repo.ListReviews(ctx, "org_1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"a"}, ids(reviews))
}

func TestCommunityRepository_List(t *testing.T) {
	db := setupSQLiteDB(t)
	ctx := context.Background()
	repo := NewCommunityRepository(db)

	for i, c := range []models.Community{
		{ID: "o1", Username: "indie", Name: "Indie Heads"},
		{ID: "o2", Username: "jazz", Name: "Late Night Jazz"},
		{ID: "o3", Username: "metal", Name: "Metal"},
	} {
		c := c
		c.CreatedAt = epoch.AddDate(0, 0, i)
		require.NoError(t, repo.Create(ctx, &c))
	}

	all, total, err := repo.List(ctx, CommunityQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, all, 2)
	assert.Equal(t, "o3", all[0].ID)

	found, total, err := repo.List(ctx, CommunityQuery{Search: "NIGHT", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, "o2", found[0].ID)
}
