package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MannyG3/Kettle/internal/auth"
	"github.com/MannyG3/Kettle/internal/posts"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	testAdminUsername = "admin"
	testAdminPassword = "steep-and-strong"
)

type sequentialIDProvider struct {
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("post-%04d", p.next), nil
}

type testEnv struct {
	handler  http.Handler
	db       *gorm.DB
	realtime *RealtimeDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kettle.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&posts.Post{}, &posts.Kettle{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := posts.NewService(posts.ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDProvider{},
		Identity:   func() string { return "Sleepy Oolong" },
	})
	if err != nil {
		t.Fatalf("failed to create posts service: %v", err)
	}

	passwordHash, err := auth.HashPassword(testAdminPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	verifier, err := auth.NewCredentialVerifier(testAdminUsername, passwordHash)
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "kettle-api",
		Audience:      "kettle-admin",
	})

	realtime := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		PostsService: service,
		TokenManager: issuer,
		Credentials:  verifier,
		Realtime:     realtime,
	})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}

	env := &testEnv{handler: handler, db: db, realtime: realtime}
	env.seedKettle(t, "kettle-1", "campus-tea")
	return env
}

func (e *testEnv) seedKettle(t *testing.T, kettleID, slug string) {
	t.Helper()
	kettle := posts.Kettle{
		KettleID:         kettleID,
		Slug:             slug,
		Name:             slug,
		IsActive:         true,
		CreatedAtSeconds: time.Now().Unix(),
	}
	if err := e.db.Create(&kettle).Error; err != nil {
		t.Fatalf("failed to seed kettle: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	decoded := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func (e *testEnv) createPost(t *testing.T, slug, content string) string {
	t.Helper()
	recorder := e.do(t, http.MethodPost, "/api/kettles/"+slug+"/posts", map[string]any{"content": content}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("expected post id in response: %v", body)
	}
	return id
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	recorder := e.do(t, http.MethodPost, "/admin/login", map[string]any{
		"username": testAdminUsername,
		"password": testAdminPassword,
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token in response: %v", body)
	}
	return token
}

func TestCreateAndListPosts(t *testing.T) {
	env := newTestEnv(t)

	postID := env.createPost(t, "campus-tea", "first spill")

	recorder := env.do(t, http.MethodGet, "/api/kettles/campus-tea/posts", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	listed, _ := body["posts"].([]any)
	if len(listed) != 1 {
		t.Fatalf("expected 1 post, got %d", len(listed))
	}
	entry := listed[0].(map[string]any)
	if entry["id"] != postID {
		t.Fatalf("expected post %s, got %v", postID, entry["id"])
	}
	if entry["anonymous_identity"] != "Sleepy Oolong" {
		t.Fatalf("unexpected identity %v", entry["anonymous_identity"])
	}
}

func TestCreatePostUnknownKettle(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/kettles/no-such-tea/posts", map[string]any{"content": "hello"}, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestCreateReplyRejectsForeignParent(t *testing.T) {
	env := newTestEnv(t)
	parentID := env.createPost(t, "campus-tea", "parent post")

	recorder := env.do(t, http.MethodPost, "/api/kettles/campus-tea/posts", map[string]any{
		"content":        "a reply",
		"parent_post_id": parentID,
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = env.do(t, http.MethodPost, "/api/kettles/campus-tea/posts", map[string]any{
		"content":        "orphan reply",
		"parent_post_id": "post-missing",
	}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing parent, got %d", recorder.Code)
	}
}

func TestVoteFlow(t *testing.T) {
	env := newTestEnv(t)
	postID := env.createPost(t, "campus-tea", "vote on me")

	recorder := env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": postID, "action": "up"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["heat"].(float64) != 1 {
		t.Fatalf("expected heat 1, got %v", body["heat"])
	}

	// Switch to down in one call: net -2.
	recorder = env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": postID, "action": "switch-down"}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body = decodeBody(t, recorder)
	if body["heat"].(float64) != -1 {
		t.Fatalf("expected heat -1, got %v", body["heat"])
	}

	recorder = env.do(t, http.MethodGet, "/api/vote?post_id="+postID, nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body = decodeBody(t, recorder)
	if body["heat"].(float64) != -1 {
		t.Fatalf("expected heat -1 on read, got %v", body["heat"])
	}
}

func TestVoteRejectsUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	postID := env.createPost(t, "campus-tea", "vote on me")

	recorder := env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": postID, "action": "sideways"}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestVoteUnknownPost(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": "post-missing", "action": "up"}, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestKettleHeatAggregates(t *testing.T) {
	env := newTestEnv(t)
	postID := env.createPost(t, "campus-tea", "hot take")
	env.createPost(t, "campus-tea", "mild take")

	// Push one post past the boiling threshold.
	for range 120 {
		recorder := env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": postID, "action": "up"}, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
	}

	recorder := env.do(t, http.MethodGet, "/api/heat?slug=campus-tea", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["total_heat"].(float64) != 120 {
		t.Fatalf("expected total heat 120, got %v", body["total_heat"])
	}
	if body["post_count"].(float64) != 2 {
		t.Fatalf("expected 2 posts, got %v", body["post_count"])
	}
	if body["boiling_posts"].(float64) != 1 {
		t.Fatalf("expected 1 boiling post, got %v", body["boiling_posts"])
	}
	if body["boiling"].(bool) != true {
		t.Fatal("expected kettle to be boiling")
	}
}

func TestKettleHeatRequiresIdentifier(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/api/heat", nil, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestTrendingPostsLimit(t *testing.T) {
	env := newTestEnv(t)
	for index := range 8 {
		postID := env.createPost(t, "campus-tea", fmt.Sprintf("take number %d", index))
		for range index {
			env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": postID, "action": "up"}, nil)
		}
	}

	recorder := env.do(t, http.MethodGet, "/api/trending?limit=3", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	listed, _ := body["posts"].([]any)
	if len(listed) != 3 {
		t.Fatalf("expected 3 trending posts, got %d", len(listed))
	}

	first := listed[0].(map[string]any)
	second := listed[1].(map[string]any)
	if first["heat_score"].(float64) < second["heat_score"].(float64) {
		t.Fatal("expected trending posts ordered by descending heat")
	}
}

func TestTrendingKettlesSortedBoilingFirst(t *testing.T) {
	env := newTestEnv(t)
	env.seedKettle(t, "kettle-2", "office-tea")

	hot := env.createPost(t, "office-tea", "boiling take")
	for range 120 {
		env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": hot, "action": "up"}, nil)
	}
	mild := env.createPost(t, "campus-tea", "mild take")
	for range 3 {
		env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": mild, "action": "up"}, nil)
	}

	recorder := env.do(t, http.MethodGet, "/api/trending?type=kettles", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	listed, _ := body["kettles"].([]any)
	if len(listed) != 2 {
		t.Fatalf("expected 2 kettles, got %d", len(listed))
	}
	first := listed[0].(map[string]any)
	if first["slug"] != "office-tea" || first["boiling"] != true {
		t.Fatalf("expected boiling kettle first, got %v", first)
	}
}

func TestAdminRemovePostFlow(t *testing.T) {
	env := newTestEnv(t)
	postID := env.createPost(t, "campus-tea", "to be removed")

	// Unauthenticated and malformed tokens are rejected.
	recorder := env.do(t, http.MethodDelete, "/admin/posts/"+postID, nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}
	recorder = env.do(t, http.MethodDelete, "/admin/posts/"+postID, nil, map[string]string{
		"Authorization": "Bearer not-a-real-token",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", recorder.Code)
	}

	token := env.adminToken(t)
	recorder = env.do(t, http.MethodDelete, "/admin/posts/"+postID, nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// The removed post is gone from the feed.
	recorder = env.do(t, http.MethodGet, "/api/kettles/campus-tea/posts", nil, nil)
	body := decodeBody(t, recorder)
	listed, _ := body["posts"].([]any)
	if len(listed) != 0 {
		t.Fatalf("expected empty feed after removal, got %d posts", len(listed))
	}
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/admin/login", map[string]any{
		"username": testAdminUsername,
		"password": "lukewarm",
	}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestMutationsPublishRealtimeEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := env.realtime.Subscribe(ctx, "kettle-1")
	defer cleanup()

	postID := env.createPost(t, "campus-tea", "watched post")
	message := mustReceive(t, stream)
	if message.Event.Kind != "insert" || message.Event.PostID != postID {
		t.Fatalf("unexpected insert event: %+v", message.Event)
	}

	env.do(t, http.MethodPost, "/api/vote", map[string]any{"post_id": postID, "action": "up"}, nil)
	message = mustReceive(t, stream)
	if message.Event.Kind != "update" || message.Event.PostID != postID {
		t.Fatalf("unexpected update event: %+v", message.Event)
	}

	token := env.adminToken(t)
	env.do(t, http.MethodDelete, "/admin/posts/"+postID, nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	message = mustReceive(t, stream)
	if message.Event.Kind != "delete" || message.Event.PostID != postID {
		t.Fatalf("unexpected delete event: %+v", message.Event)
	}
}

func mustReceive(t *testing.T, stream <-chan RealtimeMessage) RealtimeMessage {
	t.Helper()
	select {
	case message := <-stream:
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime message")
		return RealtimeMessage{}
	}
}
