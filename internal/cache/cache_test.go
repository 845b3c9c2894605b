package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr())
	require.NoError(t, err)
	SetClient(c)
	t.Cleanup(func() {
		SetClient(nil)
		_ = c.Close()
	})
	return mr
}

type feedPage struct {
	IDs     []string `json:"ids"`
	HasNext bool     `json:"has_next"`
}

func TestAside(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()
	key := PageKey("/", url.Values{"page": {"1"}})

	calls := 0
	fetch := func(dest *feedPage) func() error {
		return func() error {
			calls++
			dest.IDs = []string{"a", "b"}
			dest.HasNext = true
			return nil
		}
	}

	var first feedPage
	require.NoError(t, Aside(ctx, key, &first, FeedTTL, fetch(&first)))
	var second feedPage
	require.NoError(t, Aside(ctx, key, &second, FeedTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists(key))

	mr.FastForward(FeedTTL + time.Second)
	var third feedPage
	require.NoError(t, Aside(ctx, key, &third, FeedTTL, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr := setupMiniredis(t)
	boom := errors.New("db down")

	var dest feedPage
	err := Aside(context.Background(), "page:/x", &dest, FeedTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("page:/x"))
}

func TestAside_NoClient(t *testing.T) {
	SetClient(nil)
	var dest feedPage
	err := Aside(context.Background(), "page:/", &dest, FeedTTL, func() error {
		dest.IDs = []string{"z"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, dest.IDs)
}

func TestInvalidatePath(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("page:/", "x"))
	require.NoError(t, mr.Set("page:/?page=2&page_size=20", "x"))
	require.NoError(t, mr.Set("page:/communities", "x"))

	require.NoError(t, InvalidatePath(ctx, "/"))

	assert.False(t, mr.Exists("page:/"))
	assert.False(t, mr.Exists("page:/?page=2&page_size=20"))
	assert.True(t, mr.Exists("page:/communities"))
}

func TestInvalidatePath_GlobCharactersAreLiteral(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("page:/tags/[a]*", "x"))
	require.NoError(t, mr.Set("page:/tags/[a]*?page=2", "x"))
	require.NoError(t, mr.Set("page:/tags/a?page=2", "x"))
	require.NoError(t, mr.Set("page:/tags/[a]*x?page=2", "x"))

	require.NoError(t, InvalidatePath(ctx, "/tags/[a]*"))

	assert.False(t, mr.Exists("page:/tags/[a]*"))
	assert.False(t, mr.Exists("page:/tags/[a]*?page=2"))
	assert.True(t, mr.Exists("page:/tags/a?page=2"))
	assert.True(t, mr.Exists("page:/tags/[a]*x?page=2"))
}

func TestPageKey(t *testing.T) {
	assert.Equal(t, "page:/", PageKey("/", nil))
	assert.Equal(t, "page:/?page=1&page_size=20", PageKey("/", url.Values{"page_size": {"20"}, "page": {"1"}}))
}

func TestAside_CorruptEntryRefetched(t *testing.T) {
	mr := setupMiniredis(t)
	require.NoError(t, mr.Set("page:/", "{not json"))

	var dest feedPage
	calls := 0
	err := Aside(context.Background(), "page:/", &dest, FeedTTL, func() error {
		calls++
		dest = feedPage{IDs: []string{"r1"}}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	stored, err := mr.Get("page:/")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ids":["r1"],"has_next":false}`, stored)
}

func TestInitRedis_Unavailable(t *testing.T) {
	t.Cleanup(func() { SetClient(nil) })

	assert.Nil(t, InitRedis(""))
	assert.Nil(t, InitRedis("redis://%zz"))

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, InitRedis(addr))
	assert.Nil(t, GetClient())
}
