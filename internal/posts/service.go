package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrPostNotFound indicates the referenced post does not exist or was removed.
	ErrPostNotFound = errors.New("posts: post not found")
	// ErrKettleNotFound indicates the referenced kettle does not exist or is inactive.
	ErrKettleNotFound = errors.New("posts: kettle not found")
	// ErrParentMismatch indicates a reply's parent lives in a different kettle.
	ErrParentMismatch = errors.New("posts: parent post belongs to another kettle")
	noOpLogger        = zap.NewNop()
)

// ServiceError wraps a failure with an operation.reason code for logging and clients.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "posts.service.new"
	opCreatePost       = "posts.create_post"
	opListPosts        = "posts.list_posts"
	opGetPost          = "posts.get_post"
	opAdjustHeat       = "posts.adjust_heat"
	opRemovePost       = "posts.remove_post"
	opKettleAggregates = "posts.kettle_aggregates"
	opKettleBySlug     = "posts.kettle_by_slug"
	opListKettles      = "posts.list_kettles"
	opTrendingPosts    = "posts.trending_posts"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues unique post identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// IdentityGenerator produces a display-only pseudonym for a new post.
type IdentityGenerator func() string

// ServiceConfig describes the dependencies required by the posts service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Identity   IdentityGenerator
	Logger     *zap.Logger
}

// Service owns the persistent post and kettle collections.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	identity   IdentityGenerator
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the posts service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	identity := cfg.Identity
	if identity == nil {
		identity = func() string { return "Anonymous Tea" }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		identity:   identity,
		logger:     logger,
	}, nil
}

// CreatePostRequest carries the participant-supplied fields for a new post.
type CreatePostRequest struct {
	KettleID     KettleID
	Content      Content
	ImageURL     string
	ParentPostID *PostID
}

// CreatePost persists a new post with a fresh identifier, a generated display
// identity and zero heat. Replies must reference a parent in the same kettle.
func (s *Service) CreatePost(ctx context.Context, request CreatePostRequest) (Post, error) {
	postID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePost, "id_generation_failed", err)
		return Post{}, newServiceError(opCreatePost, "id_generation_failed", err)
	}

	post := Post{
		PostID:            postID,
		KettleID:          request.KettleID.String(),
		Content:           request.Content.String(),
		ImageURL:          request.ImageURL,
		HeatScore:         0,
		AnonymousIdentity: s.identity(),
		IsRemoved:         false,
		CreatedAtSeconds:  s.clock().UTC().Unix(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var kettle Kettle
		err := tx.Where("kettle_id = ? AND is_active = ?", request.KettleID.String(), true).
			Take(&kettle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCreatePost, "kettle_not_found", ErrKettleNotFound)
		}
		if err != nil {
			return newServiceError(opCreatePost, "kettle_select_failed", err)
		}

		if request.ParentPostID != nil {
			var parent Post
			err := tx.Where("post_id = ? AND is_removed = ?", request.ParentPostID.String(), false).
				Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opCreatePost, "parent_not_found", ErrPostNotFound)
			}
			if err != nil {
				return newServiceError(opCreatePost, "parent_select_failed", err)
			}
			if parent.KettleID != request.KettleID.String() {
				return newServiceError(opCreatePost, "parent_mismatch", ErrParentMismatch)
			}
			parentID := parent.PostID
			post.ParentPostID = &parentID
		}

		if err := tx.Create(&post).Error; err != nil {
			return newServiceError(opCreatePost, "post_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreatePost, "transaction_failed", txErr,
			zap.String("kettle_id", request.KettleID.String()))
		return Post{}, txErr
	}

	return post, nil
}

// ListPosts returns all non-removed posts for a kettle, newest first.
func (s *Service) ListPosts(ctx context.Context, kettleID KettleID) ([]Post, error) {
	var result []Post
	if err := s.db.WithContext(ctx).
		Where("kettle_id = ? AND is_removed = ?", kettleID.String(), false).
		Order("created_at_s DESC, post_id DESC").
		Find(&result).Error; err != nil {
		s.logError(opListPosts, "query_failed", err, zap.String("kettle_id", kettleID.String()))
		return nil, newServiceError(opListPosts, "query_failed", err)
	}
	return result, nil
}

// GetPost returns a single non-removed post by identifier.
func (s *Service) GetPost(ctx context.Context, postID PostID) (Post, error) {
	var post Post
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND is_removed = ?", postID.String(), false).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, newServiceError(opGetPost, "not_found", ErrPostNotFound)
	}
	if err != nil {
		s.logError(opGetPost, "query_failed", err, zap.String("post_id", postID.String()))
		return Post{}, newServiceError(opGetPost, "query_failed", err)
	}
	return post, nil
}

// IncrementHeat atomically adds one to a post's heat score and returns the new value.
func (s *Service) IncrementHeat(ctx context.Context, postID PostID) (int, error) {
	return s.adjustHeat(ctx, postID, 1)
}

// DecrementHeat atomically subtracts one from a post's heat score and returns the new value.
func (s *Service) DecrementHeat(ctx context.Context, postID PostID) (int, error) {
	return s.adjustHeat(ctx, postID, -1)
}

// SwitchHeat applies a compensating two-point delta in one atomic mutation, for
// participants flipping an existing vote to the opposite direction.
func (s *Service) SwitchHeat(ctx context.Context, postID PostID, delta int) (int, error) {
	if delta != 2 && delta != -2 {
		return 0, newServiceError(opAdjustHeat, "invalid_switch_delta", fmt.Errorf("delta %d", delta))
	}
	return s.adjustHeat(ctx, postID, delta)
}

func (s *Service) adjustHeat(ctx context.Context, postID PostID, delta int) (int, error) {
	var newHeat int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		update := tx.Model(&Post{}).
			Where("post_id = ? AND is_removed = ?", postID.String(), false).
			UpdateColumn("heat_score", gorm.Expr("heat_score + ?", delta))
		if update.Error != nil {
			return newServiceError(opAdjustHeat, "update_failed", update.Error)
		}
		if update.RowsAffected == 0 {
			return newServiceError(opAdjustHeat, "not_found", ErrPostNotFound)
		}

		var post Post
		if err := tx.Where("post_id = ?", postID.String()).Take(&post).Error; err != nil {
			return newServiceError(opAdjustHeat, "readback_failed", err)
		}
		newHeat = post.HeatScore
		return nil
	})
	if txErr != nil {
		s.logError(opAdjustHeat, "transaction_failed", txErr,
			zap.String("post_id", postID.String()), zap.Int("delta", delta))
		return 0, txErr
	}
	return newHeat, nil
}

// RemovePost soft-removes a post so it no longer appears in feeds or aggregates.
func (s *Service) RemovePost(ctx context.Context, postID PostID) error {
	update := s.db.WithContext(ctx).Model(&Post{}).
		Where("post_id = ? AND is_removed = ?", postID.String(), false).
		UpdateColumn("is_removed", true)
	if update.Error != nil {
		s.logError(opRemovePost, "update_failed", update.Error, zap.String("post_id", postID.String()))
		return newServiceError(opRemovePost, "update_failed", update.Error)
	}
	if update.RowsAffected == 0 {
		return newServiceError(opRemovePost, "not_found", ErrPostNotFound)
	}
	return nil
}

// KettleAggregates recomputes total heat, post count and boiling-post count by
// summing over the kettle's current non-removed posts.
func (s *Service) KettleAggregates(ctx context.Context, kettleID KettleID, boilingThreshold int) (KettleAggregates, error) {
	members, err := s.ListPosts(ctx, kettleID)
	if err != nil {
		s.logError(opKettleAggregates, "list_failed", err, zap.String("kettle_id", kettleID.String()))
		return KettleAggregates{}, newServiceError(opKettleAggregates, "list_failed", err)
	}

	aggregates := KettleAggregates{KettleID: kettleID.String(), PostCount: len(members)}
	for _, member := range members {
		aggregates.TotalHeat += member.HeatScore
		if member.HeatScore >= boilingThreshold {
			aggregates.BoilingPosts++
		}
	}
	return aggregates, nil
}

// KettleBySlug resolves an active kettle by its user-facing slug.
func (s *Service) KettleBySlug(ctx context.Context, slug string) (Kettle, error) {
	var kettle Kettle
	err := s.db.WithContext(ctx).
		Where("slug = ? AND is_active = ?", slug, true).
		Take(&kettle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Kettle{}, newServiceError(opKettleBySlug, "not_found", ErrKettleNotFound)
	}
	if err != nil {
		s.logError(opKettleBySlug, "query_failed", err, zap.String("slug", slug))
		return Kettle{}, newServiceError(opKettleBySlug, "query_failed", err)
	}
	return kettle, nil
}

// ListKettlesWithHeat returns all active kettles with their derived aggregates.
func (s *Service) ListKettlesWithHeat(ctx context.Context) ([]KettleWithHeat, error) {
	var kettles []Kettle
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at_s ASC").
		Find(&kettles).Error; err != nil {
		s.logError(opListKettles, "query_failed", err)
		return nil, newServiceError(opListKettles, "query_failed", err)
	}

	result := make([]KettleWithHeat, 0, len(kettles))
	for _, kettle := range kettles {
		kettleID, err := NewKettleID(kettle.KettleID)
		if err != nil {
			s.logError(opListKettles, "invalid_kettle_id", err, zap.String("kettle_id", kettle.KettleID))
			continue
		}
		members, err := s.ListPosts(ctx, kettleID)
		if err != nil {
			return nil, err
		}
		entry := KettleWithHeat{Kettle: kettle, PostCount: len(members)}
		for _, member := range members {
			entry.TotalHeat += member.HeatScore
		}
		result = append(result, entry)
	}
	return result, nil
}

// TrendingPosts returns the hottest non-removed posts across all active kettles.
func (s *Service) TrendingPosts(ctx context.Context, limit int) ([]TrendingPost, error) {
	if limit <= 0 {
		limit = 5
	}

	var rows []Post
	if err := s.db.WithContext(ctx).
		Where("is_removed = ?", false).
		Order("heat_score DESC, created_at_s DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		s.logError(opTrendingPosts, "query_failed", err)
		return nil, newServiceError(opTrendingPosts, "query_failed", err)
	}

	result := make([]TrendingPost, 0, len(rows))
	for _, row := range rows {
		var kettle Kettle
		err := s.db.WithContext(ctx).
			Where("kettle_id = ? AND is_active = ?", row.KettleID, true).
			Take(&kettle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			s.logError(opTrendingPosts, "kettle_select_failed", err, zap.String("kettle_id", row.KettleID))
			return nil, newServiceError(opTrendingPosts, "kettle_select_failed", err)
		}
		result = append(result, TrendingPost{
			Post:       row,
			KettleName: kettle.Name,
			KettleSlug: kettle.Slug,
		})
	}
	return result, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("posts service error", attrs...)
}
