package posts

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxIdentifierLength = 190
	maxContentLength    = 2000
)

var (
	// ErrInvalidPostID indicates that a post identifier is empty or exceeds storage bounds.
	ErrInvalidPostID = errors.New("posts: invalid post id")
	// ErrInvalidKettleID indicates that a kettle identifier is empty or exceeds storage bounds.
	ErrInvalidKettleID = errors.New("posts: invalid kettle id")
	// ErrInvalidContent indicates that post content is empty or exceeds the length bound.
	ErrInvalidContent = errors.New("posts: invalid content")
)

// PostID represents a validated post identifier.
type PostID string

// NewPostID validates raw input and returns a PostID.
func NewPostID(rawInput string) (PostID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostID, maxIdentifierLength)
	}
	return PostID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PostID) String() string {
	return string(id)
}

// KettleID represents a validated kettle identifier.
type KettleID string

// NewKettleID validates raw input and returns a KettleID.
func NewKettleID(rawInput string) (KettleID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKettleID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidKettleID, maxIdentifierLength)
	}
	return KettleID(trimmed), nil
}

// String returns the underlying string identifier.
func (id KettleID) String() string {
	return string(id)
}

// Content represents validated, trimmed post content.
type Content string

// NewContent validates raw input and returns Content.
func NewContent(rawInput string) (Content, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidContent)
	}
	if len(trimmed) > maxContentLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidContent, maxContentLength)
	}
	return Content(trimmed), nil
}

// String returns the underlying content text.
func (c Content) String() string {
	return string(c)
}

// Post models a single anonymous message inside a kettle.
type Post struct {
	PostID            string  `gorm:"column:post_id;primaryKey;size:190;not null"`
	KettleID          string  `gorm:"column:kettle_id;size:190;not null;index:idx_posts_kettle_created,priority:1"`
	Content           string  `gorm:"column:content;type:text;not null"`
	ImageURL          string  `gorm:"column:image_url;size:2048;not null;default:''"`
	HeatScore         int     `gorm:"column:heat_score;not null;default:0"`
	AnonymousIdentity string  `gorm:"column:anonymous_identity;size:190;not null;default:''"`
	ParentPostID      *string `gorm:"column:parent_post_id;size:190"`
	IsRemoved         bool    `gorm:"column:is_removed;not null;default:false"`
	CreatedAtSeconds  int64   `gorm:"column:created_at_s;not null;index:idx_posts_kettle_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Kettle models a topic-scoped collection of posts.
type Kettle struct {
	KettleID         string `gorm:"column:kettle_id;primaryKey;size:190;not null"`
	Slug             string `gorm:"column:slug;size:190;not null;uniqueIndex:idx_kettles_slug"`
	Name             string `gorm:"column:name;size:190;not null"`
	Description      string `gorm:"column:description;type:text;not null;default:''"`
	Icon             string `gorm:"column:icon;size:64;not null;default:''"`
	IsActive         bool   `gorm:"column:is_active;not null;default:true"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Kettle) TableName() string {
	return "kettles"
}

// KettleAggregates summarizes heat over a kettle's current member posts.
// The values are always recomputed from the posts themselves, never stored.
type KettleAggregates struct {
	KettleID     string
	TotalHeat    int
	PostCount    int
	BoilingPosts int
}

// KettleWithHeat pairs a kettle with its derived aggregates for directory listings.
type KettleWithHeat struct {
	Kettle    Kettle
	TotalHeat int
	PostCount int
}

// TrendingPost is a post joined with its kettle, for cross-kettle trending views.
type TrendingPost struct {
	Post       Post
	KettleName string
	KettleSlug string
}
