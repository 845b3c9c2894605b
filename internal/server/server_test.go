package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/francozeta/musicbox/internal/config"
	"github.com/francozeta/musicbox/internal/identity"
	"github.com/francozeta/musicbox/internal/repository"
	"github.com/francozeta/musicbox/internal/testutil"
	"github.com/francozeta/musicbox/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server-test-secret"

type stubBackend struct{ err error }

func (b stubBackend) Ping(context.Context) error     { return b.err }
func (b stubBackend) Shutdown(context.Context) error { return nil }

type testEnv struct {
	app    *fiber.App
	store  repository.Store
	server *Server
	signer *identity.JWTVerifier
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Env = "test"
	if cfg.UploadDir == "" {
		cfg.UploadDir = t.TempDir()
	}

	store, _ := testutil.SQLiteStore(t, "srv")
	signer := identity.NewJWTVerifier(testSecret, "", "")
	disk, err := upload.NewDiskStorage(cfg.UploadDir, "/uploads")
	require.NoError(t, err)

	s := NewServerWithDeps(cfg, Deps{
		Store:    store,
		Backend:  stubBackend{},
		Verifier: signer,
		Uploads:  upload.NewService(disk, cfg.UploadMaxSizeMB),
	})
	return &testEnv{app: s.App(), store: store, server: s, signer: signer}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.signer.Sign(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request as userID (anonymous when empty).
func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func onboard(t *testing.T, e *testEnv, userID, username string) {
	t.Helper()
	resp := e.do(t, http.MethodPut, "/api/users/me", userID, fiber.Map{
		"username": username,
		"name":     "Name " + username,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthChecks(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Checks["redis"])

	e.server.backend = stubBackend{err: errors.New("connection refused")}
	resp = e.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNavigation(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodGet, "/api/navigation", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Links []NavLink `json:"links"`
	}
	decode(t, resp, &body)
	routes := make([]string, 0, len(body.Links))
	for _, l := range body.Links {
		routes = append(routes, l.Route)
	}
	assert.Equal(t, []string{"/", "/search", "/activity", "/create-review", "/communities", "/profile"}, routes)
}

func TestAuthRequiredOnWrites(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/reviews"},
		{http.MethodPost, "/api/reviews/r1/comments"},
		{http.MethodDelete, "/api/reviews/r1"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodGet, "/api/activity"},
		{http.MethodPost, "/api/communities"},
		{http.MethodGet, "/api/feature-flags"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := e.do(t, tt.method, tt.path, "", fiber.Map{})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetMyProfile_NotOnboarded(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodGet, "/api/users/me", "user_new", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	onboard(t, e, "user_new", "newbie")

	resp = e.do(t, http.MethodGet, "/api/users/me", "user_new", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		Onboarded bool   `json:"onboarded"`
	}
	decode(t, resp, &user)
	assert.Equal(t, "user_new", user.ID)
	assert.Equal(t, "newbie", user.Username)
	assert.True(t, user.Onboarded)
}

func TestUpdateMyProfile_Validation(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodPut, "/api/users/me", "user_1", fiber.Map{"username": "x", "name": "Valid Name"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPut, "/api/users/me", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, "user_1"))
	raw, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = raw.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestReviewLifecycle(t *testing.T) {
	e := newTestEnv(t, nil)
	onboard(t, e, "user_author", "author")
	onboard(t, e, "user_fan", "fan")

	resp := e.do(t, http.MethodPost, "/api/reviews", "user_author", fiber.Map{
		"text":       "A quiet record that grows on you",
		"song_title": "Pink Moon",
		"artist":     "Nick Drake",
		"rating":     4.5,
		"path":       "/",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Success         bool   `json:"success"`
		ReviewID        string `json:"review_id"`
		CommunityLinked bool   `json:"community_linked"`
	}
	decode(t, resp, &created)
	require.True(t, created.Success)
	require.NotEmpty(t, created.ReviewID)
	assert.False(t, created.CommunityLinked)

	resp = e.do(t, http.MethodGet, "/api/reviews?page=1&page_size=10", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed struct {
		Reviews []struct {
			ID       string `json:"id"`
			AuthorID string `json:"author_id"`
		} `json:"reviews"`
		HasNext bool `json:"has_next"`
	}
	decode(t, resp, &feed)
	require.Len(t, feed.Reviews, 1)
	assert.Equal(t, created.ReviewID, feed.Reviews[0].ID)
	assert.False(t, feed.HasNext)

	resp = e.do(t, http.MethodPost, "/api/reviews/"+created.ReviewID+"/comments", "user_fan", fiber.Map{
		"text": "Agreed, side two especially",
		"path": "/review/" + created.ReviewID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/reviews/"+created.ReviewID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var thread struct {
		ID       string `json:"id"`
		Children []struct {
			AuthorID string `json:"author_id"`
		} `json:"children"`
	}
	decode(t, resp, &thread)
	require.Len(t, thread.Children, 1)
	assert.Equal(t, "user_fan", thread.Children[0].AuthorID)

	resp = e.do(t, http.MethodGet, "/api/activity", "user_author", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var activity struct {
		Activity []struct {
			AuthorID string `json:"author_id"`
		} `json:"activity"`
	}
	decode(t, resp, &activity)
	require.Len(t, activity.Activity, 1)
	assert.Equal(t, "user_fan", activity.Activity[0].AuthorID)

	resp = e.do(t, http.MethodDelete, "/api/reviews/"+created.ReviewID, "user_fan", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/reviews/"+created.ReviewID+"?path=/", "user_author", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted struct {
		DeletedIDs []string `json:"deleted_ids"`
	}
	decode(t, resp, &deleted)
	assert.Len(t, deleted.DeletedIDs, 2)
	assert.Contains(t, deleted.DeletedIDs, created.ReviewID)

	resp = e.do(t, http.MethodGet, "/api/reviews/"+created.ReviewID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateReview_Validation(t *testing.T) {
	e := newTestEnv(t, nil)
	onboard(t, e, "user_author", "author")

	resp := e.do(t, http.MethodPost, "/api/reviews", "user_author", fiber.Map{
		"text":       "Missing a rating",
		"song_title": "Song",
		"artist":     "Artist",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestListReviews_PageOutOfRange(t *testing.T) {
	e := newTestEnv(t, nil)

	page := strconv.Itoa(math.MaxInt/20 + 2)
	resp := e.do(t, http.MethodGet, "/api/reviews?page_size=20&page="+page, "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Equal(t, "page is out of range", body.Error)
}

func TestAddComment_UnknownReview(t *testing.T) {
	e := newTestEnv(t, nil)
	onboard(t, e, "user_fan", "fan")

	resp := e.do(t, http.MethodPost, "/api/reviews/missing/comments", "user_fan", fiber.Map{"text": "hello there"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchUsers_ExcludesCaller(t *testing.T) {
	e := newTestEnv(t, nil)
	onboard(t, e, "user_a", "alice")
	onboard(t, e, "user_b", "alina")
	onboard(t, e, "user_c", "bob")

	resp := e.do(t, http.MethodGet, "/api/users?search=ALI", "user_a", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	}
	decode(t, resp, &page)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "user_b", page.Users[0].ID)

	resp = e.do(t, http.MethodGet, "/api/users?sort=sideways", "user_a", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommunityEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)
	onboard(t, e, "user_owner", "owner")
	onboard(t, e, "user_fan", "fan")

	resp := e.do(t, http.MethodPost, "/api/communities", "user_owner", fiber.Map{
		"id":       "org_shoegaze",
		"username": "shoegaze",
		"name":     "Shoegaze",
		"bio":      "Walls of sound",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/communities", "user_owner", fiber.Map{
		"username": "shoegaze",
		"name":     "Shoegaze again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/communities/org_shoegaze/members", "user_fan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/communities/org_missing/members", "user_fan", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/reviews", "user_fan", fiber.Map{
		"text":         "Loveless still sounds like the future",
		"community_id": "org_shoegaze",
		"song_title":   "Only Shallow",
		"artist":       "My Bloody Valentine",
		"rating":       5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		CommunityLinked bool `json:"community_linked"`
	}
	decode(t, resp, &created)
	assert.True(t, created.CommunityLinked)

	resp = e.do(t, http.MethodGet, "/api/communities/org_shoegaze/reviews", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed struct {
		Reviews []struct {
			ID string `json:"id"`
		} `json:"reviews"`
	}
	decode(t, resp, &feed)
	assert.Len(t, feed.Reviews, 1)

	resp = e.do(t, http.MethodGet, "/api/communities?search=shoe", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Communities []struct {
			ID string `json:"id"`
		} `json:"communities"`
	}
	decode(t, resp, &list)
	require.Len(t, list.Communities, 1)
	assert.Equal(t, "org_shoegaze", list.Communities[0].ID)

	resp = e.do(t, http.MethodDelete, "/api/communities/org_shoegaze/members", "user_fan", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/communities/org_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeatureFlagsEndpoint(t *testing.T) {
	e := newTestEnv(t, &config.Config{FeatureFlags: "response_cache=on,community_autojoin=off"})

	resp := e.do(t, http.MethodGet, "/api/feature-flags", "user_1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "on", body.Raw["response_cache"])
	assert.True(t, body.Evaluated["response_cache"])
	assert.False(t, body.Evaluated["community_autojoin"])
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodGet, "/api/ws", "user_1", nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
