package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MannyG3/Kettle/internal/feed"
	"github.com/MannyG3/Kettle/internal/heat"
	"github.com/MannyG3/Kettle/internal/posts"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	adminContextKey    = "kettle_admin"
	trendingLimitMax   = 20
	trendingLimitValue = 5
	heartbeatInterval  = 15 * time.Second
)

var (
	errMissingPostsService  = errors.New("posts service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingCredentials   = errors.New("credential verifier dependency required")
	errMissingDispatcher    = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// AdminTokenManager issues and validates admin session tokens.
type AdminTokenManager interface {
	IssueAdminToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// AdminVerifier checks admin credentials.
type AdminVerifier interface {
	Verify(username, password string) error
}

// Dependencies wires the HTTP surface to the core services.
type Dependencies struct {
	PostsService *posts.Service
	TokenManager AdminTokenManager
	Credentials  AdminVerifier
	Realtime     *RealtimeDispatcher
	Logger       *zap.Logger
}

// NewHTTPHandler builds the public API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.PostsService == nil {
		return nil, errMissingPostsService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Credentials == nil {
		return nil, errMissingCredentials
	}
	if deps.Realtime == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		posts:    deps.PostsService,
		boundary: heat.StoreBoundary{Service: deps.PostsService},
		tokens:   deps.TokenManager,
		verifier: deps.Credentials,
		realtime: deps.Realtime,
		logger:   logger,
	}

	api := router.Group("/api")
	api.POST("/vote", handler.handleVote)
	api.GET("/vote", handler.handleGetHeat)
	api.GET("/heat", handler.handleKettleHeat)
	api.GET("/trending", handler.handleTrending)
	api.GET("/kettles", handler.handleListKettles)
	api.GET("/kettles/:slug/posts", handler.handleListPosts)
	api.POST("/kettles/:slug/posts", handler.handleCreatePost)
	api.GET("/kettles/:slug/stream", handler.handleStream)

	router.POST("/admin/login", handler.handleAdminLogin)
	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.DELETE("/posts/:id", handler.handleRemovePost)

	return router, nil
}

type httpHandler struct {
	posts    *posts.Service
	boundary heat.StoreBoundary
	tokens   AdminTokenManager
	verifier AdminVerifier
	realtime *RealtimeDispatcher
	logger   *zap.Logger
}

type votePayload struct {
	PostID string `json:"post_id"`
	Action string `json:"action"`
}

func (h *httpHandler) handleVote(c *gin.Context) {
	var request votePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PostID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	action, err := heat.ParseAction(request.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}

	postID, err := posts.NewPostID(request.PostID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.respondPostError(c, "fetch post for vote", err)
		return
	}

	newHeat, err := h.boundary.ApplyAction(c.Request.Context(), postID.String(), action)
	if err != nil {
		h.respondPostError(c, "apply vote", err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		KettleID:  post.KettleID,
		Event:     feed.Event{Kind: feed.EventUpdate, PostID: post.PostID},
		Timestamp: time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"success": true, "heat": newHeat})
}

func (h *httpHandler) handleGetHeat(c *gin.Context) {
	postID, err := posts.NewPostID(c.Query("post_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "post_id_required"})
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.respondPostError(c, "fetch heat", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"heat": post.HeatScore})
}

type kettleHeatPayload struct {
	KettleID     string `json:"kettle_id"`
	TotalHeat    int    `json:"total_heat"`
	PostCount    int    `json:"post_count"`
	BoilingPosts int    `json:"boiling_posts"`
	Boiling      bool   `json:"boiling"`
}

func (h *httpHandler) handleKettleHeat(c *gin.Context) {
	rawID := c.Query("kettle_id")
	slug := c.Query("slug")
	if rawID == "" && slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kettle_id_or_slug_required"})
		return
	}

	if rawID == "" {
		kettle, err := h.posts.KettleBySlug(c.Request.Context(), slug)
		if err != nil {
			h.respondKettleError(c, "resolve kettle slug", err)
			return
		}
		rawID = kettle.KettleID
	}

	kettleID, err := posts.NewKettleID(rawID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kettle_id"})
		return
	}

	aggregates, err := h.posts.KettleAggregates(c.Request.Context(), kettleID, heat.BoilingThreshold)
	if err != nil {
		h.respondKettleError(c, "compute kettle aggregates", err)
		return
	}

	c.JSON(http.StatusOK, kettleHeatPayload{
		KettleID:     aggregates.KettleID,
		TotalHeat:    aggregates.TotalHeat,
		PostCount:    aggregates.PostCount,
		BoilingPosts: aggregates.BoilingPosts,
		Boiling:      heat.IsBoiling(aggregates.TotalHeat),
	})
}

type trendingPostPayload struct {
	ID                string `json:"id"`
	Content           string `json:"content"`
	HeatScore         int    `json:"heat_score"`
	AnonymousIdentity string `json:"anonymous_identity"`
	CreatedAtSeconds  int64  `json:"created_at_s"`
	KettleName        string `json:"kettle_name"`
	KettleSlug        string `json:"kettle_slug"`
}

type trendingKettlePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	TotalHeat   int    `json:"total_heat"`
	PostCount   int    `json:"post_count"`
	Boiling     bool   `json:"boiling"`
}

func (h *httpHandler) handleTrending(c *gin.Context) {
	limit := trendingLimitValue
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > trendingLimitMax {
		limit = trendingLimitMax
	}

	if c.Query("type") == "kettles" {
		entries, err := h.posts.ListKettlesWithHeat(c.Request.Context())
		if err != nil {
			h.logger.Error("failed to list trending kettles", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trending_failed"})
			return
		}
		sorted := sortedKettleEntries(entries)
		if len(sorted) > limit {
			sorted = sorted[:limit]
		}
		c.JSON(http.StatusOK, gin.H{"kettles": sorted})
		return
	}

	trending, err := h.posts.TrendingPosts(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list trending posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trending_failed"})
		return
	}

	payload := make([]trendingPostPayload, 0, len(trending))
	for _, entry := range trending {
		payload = append(payload, trendingPostPayload{
			ID:                entry.Post.PostID,
			Content:           entry.Post.Content,
			HeatScore:         heat.DisplayHeat(entry.Post.HeatScore),
			AnonymousIdentity: entry.Post.AnonymousIdentity,
			CreatedAtSeconds:  entry.Post.CreatedAtSeconds,
			KettleName:        entry.KettleName,
			KettleSlug:        entry.KettleSlug,
		})
	}
	c.JSON(http.StatusOK, gin.H{"posts": payload})
}

func (h *httpHandler) handleListKettles(c *gin.Context) {
	entries, err := h.posts.ListKettlesWithHeat(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list kettles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kettles": sortedKettleEntries(entries)})
}

type kettleEntry struct {
	trendingKettlePayload
}

func (e kettleEntry) Heat() int {
	return e.TotalHeat
}

// sortedKettleEntries applies the two-key directory order: boiling kettles
// first, then descending total heat.
func sortedKettleEntries(entries []posts.KettleWithHeat) []kettleEntry {
	sorted := make([]kettleEntry, 0, len(entries))
	for _, entry := range entries {
		sorted = append(sorted, kettleEntry{trendingKettlePayload{
			ID:          entry.Kettle.KettleID,
			Name:        entry.Kettle.Name,
			Slug:        entry.Kettle.Slug,
			Description: entry.Kettle.Description,
			TotalHeat:   entry.TotalHeat,
			PostCount:   entry.PostCount,
			Boiling:     heat.IsBoiling(entry.TotalHeat),
		}})
	}
	heat.SortKettlesByHeat(sorted)
	return sorted
}

type postPayload struct {
	ID                string  `json:"id"`
	KettleID          string  `json:"kettle_id"`
	Content           string  `json:"content"`
	ImageURL          string  `json:"image_url,omitempty"`
	HeatScore         int     `json:"heat_score"`
	DisplayHeat       int     `json:"display_heat"`
	Boiling           bool    `json:"boiling"`
	AnonymousIdentity string  `json:"anonymous_identity"`
	ParentPostID      *string `json:"parent_post_id"`
	CreatedAtSeconds  int64   `json:"created_at_s"`
}

func toPostPayload(post posts.Post) postPayload {
	return postPayload{
		ID:                post.PostID,
		KettleID:          post.KettleID,
		Content:           post.Content,
		ImageURL:          post.ImageURL,
		HeatScore:         post.HeatScore,
		DisplayHeat:       heat.DisplayHeat(post.HeatScore),
		Boiling:           heat.IsBoiling(post.HeatScore),
		AnonymousIdentity: post.AnonymousIdentity,
		ParentPostID:      post.ParentPostID,
		CreatedAtSeconds:  post.CreatedAtSeconds,
	}
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	kettle, err := h.posts.KettleBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondKettleError(c, "resolve kettle slug", err)
		return
	}

	kettleID, err := posts.NewKettleID(kettle.KettleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	members, err := h.posts.ListPosts(c.Request.Context(), kettleID)
	if err != nil {
		h.logger.Error("failed to list posts", zap.Error(err), zap.String("slug", kettle.Slug))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payload := make([]postPayload, 0, len(members))
	for _, member := range members {
		payload = append(payload, toPostPayload(member))
	}
	c.JSON(http.StatusOK, gin.H{
		"kettle": gin.H{
			"id":          kettle.KettleID,
			"name":        kettle.Name,
			"slug":        kettle.Slug,
			"description": kettle.Description,
			"icon":        kettle.Icon,
		},
		"posts": payload,
	})
}

type createPostPayload struct {
	Content      string  `json:"content"`
	ImageURL     string  `json:"image_url"`
	ParentPostID *string `json:"parent_post_id"`
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	kettle, err := h.posts.KettleBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondKettleError(c, "resolve kettle slug", err)
		return
	}

	var request createPostPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	content, err := posts.NewContent(request.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_content"})
		return
	}

	kettleID, err := posts.NewKettleID(kettle.KettleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	createRequest := posts.CreatePostRequest{
		KettleID: kettleID,
		Content:  content,
		ImageURL: strings.TrimSpace(request.ImageURL),
	}
	if request.ParentPostID != nil {
		parentID, err := posts.NewPostID(*request.ParentPostID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_parent_post_id"})
			return
		}
		createRequest.ParentPostID = &parentID
	}

	post, err := h.posts.CreatePost(c.Request.Context(), createRequest)
	if err != nil {
		if errors.Is(err, posts.ErrPostNotFound) || errors.Is(err, posts.ErrParentMismatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_parent_post_id"})
			return
		}
		h.logger.Error("failed to create post", zap.Error(err), zap.String("slug", kettle.Slug))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	h.realtime.Publish(RealtimeMessage{
		KettleID:  post.KettleID,
		Event:     feed.Event{Kind: feed.EventInsert, PostID: post.PostID},
		Timestamp: time.Now().UTC(),
	})

	c.JSON(http.StatusCreated, toPostPayload(post))
}

type streamEventPayload struct {
	Kind   string `json:"kind"`
	PostID string `json:"post_id"`
}

func (h *httpHandler) handleStream(c *gin.Context) {
	kettle, err := h.posts.KettleBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondKettleError(c, "resolve kettle slug", err)
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), kettle.KettleID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(realtimeEventChange, streamEventPayload{
				Kind:   string(message.Event.Kind),
				PostID: message.Event.PostID,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": time.Now().UTC().Unix()})
			return true
		}
	})
}

type adminLoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request adminLoginPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Username == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.verifier.Verify(request.Username, request.Password); err != nil {
		h.logger.Warn("admin login rejected", zap.String("username", request.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueAdminToken(c.Request.Context(), request.Username)
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

func (h *httpHandler) handleRemovePost(c *gin.Context) {
	postID, err := posts.NewPostID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_post_id"})
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), postID)
	if err != nil {
		h.respondPostError(c, "fetch post for removal", err)
		return
	}

	if err := h.posts.RemovePost(c.Request.Context(), postID); err != nil {
		h.respondPostError(c, "remove post", err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		KettleID:  post.KettleID,
		Event:     feed.Event{Kind: feed.EventDelete, PostID: post.PostID},
		Timestamp: time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"removed": post.PostID})
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("admin token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminContextKey, subject)
	c.Next()
}

func (h *httpHandler) respondPostError(c *gin.Context, action string, err error) {
	if errors.Is(err, posts.ErrPostNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "post_not_found"})
		return
	}
	h.logger.Error("failed to "+action, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func (h *httpHandler) respondKettleError(c *gin.Context, action string, err error) {
	if errors.Is(err, posts.ErrKettleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "kettle_not_found"})
		return
	}
	h.logger.Error("failed to "+action, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
