// Package feed owns one kettle's in-memory post collection and keeps it
// reconciled against the authoritative store through an asynchronous change
// feed. Any change event triggers one full refetch and a wholesale replace of
// the collection; the payload of an event is only a refetch trigger, never a
// data source.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/MannyG3/Kettle/internal/posts"
	"github.com/MannyG3/Kettle/internal/thread"
	"go.uber.org/zap"
)

// EventKind classifies an upstream row mutation.
type EventKind string

const (
	// EventInsert signals a new post row.
	EventInsert EventKind = "insert"
	// EventUpdate signals a mutated post row.
	EventUpdate EventKind = "update"
	// EventDelete signals a removed post row.
	EventDelete EventKind = "delete"
)

// Event is one change-feed notification for a kettle.
type Event struct {
	Kind   EventKind
	PostID string
}

// Fetcher loads the full post collection for a kettle.
type Fetcher interface {
	ListPosts(ctx context.Context, kettleID posts.KettleID) ([]posts.Post, error)
}

var (
	errMissingFetcher = errors.New("feed: fetcher is required")
	errMissingKettle  = errors.New("feed: kettle id is required")
)

// SessionConfig describes the dependencies of a feed session.
type SessionConfig struct {
	KettleID posts.KettleID
	Fetcher  Fetcher
	Logger   *zap.Logger
	// OnApply, when set, runs after each successful fetch-and-replace.
	OnApply func()
}

// Session reconciles one kettle's feed. The post collection is owned
// exclusively by the session; callers read copies. Expand/collapse flags are
// tracked in a keyed set outside the tree so they survive rebuilds.
type Session struct {
	kettleID posts.KettleID
	fetcher  Fetcher
	logger   *zap.Logger
	onApply  func()

	mu         sync.Mutex
	collection []posts.Post
	expanded   map[string]bool
	nextSeq    uint64
	appliedSeq uint64
}

// NewSession validates dependencies and constructs a feed session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	if cfg.KettleID.String() == "" {
		return nil, errMissingKettle
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		kettleID: cfg.KettleID,
		fetcher:  cfg.Fetcher,
		logger:   logger,
		onApply:  cfg.OnApply,
		expanded: make(map[string]bool),
	}, nil
}

// Run consumes change events until the context ends or the channel closes.
// Events are handled serially; bursts that arrive while a refetch is in
// flight are coalesced into a single trailing refetch.
func (s *Session) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			event = s.drainLatest(events, event)
			if err := s.fetchAndReplace(ctx); err != nil {
				// Background reconciliation failures stay silent for the
				// participant; the feed keeps its stale-but-safe state.
				s.logger.Warn("background feed refetch failed",
					zap.String("kettle_id", s.kettleID.String()),
					zap.String("event_kind", string(event.Kind)),
					zap.Error(err))
			}
		}
	}
}

func (s *Session) drainLatest(events <-chan Event, latest Event) Event {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return latest
			}
			latest = event
		default:
			return latest
		}
	}
}

// Refresh performs a participant-triggered fetch-and-replace. Unlike the
// background path, failure is surfaced so the caller can show feedback.
func (s *Session) Refresh(ctx context.Context) error {
	return s.fetchAndReplace(ctx)
}

// fetchAndReplace issues one full refetch and replaces the collection. Each
// fetch is stamped with a monotonically increasing sequence at start; a result
// is applied only if no newer result has been applied already, so a slow stale
// fetch can never overwrite a fresher one.
func (s *Session) fetchAndReplace(ctx context.Context) error {
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	s.mu.Unlock()

	fetched, err := s.fetcher.ListPosts(ctx, s.kettleID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if seq <= s.appliedSeq {
		s.logger.Debug("discarding stale feed fetch",
			zap.String("kettle_id", s.kettleID.String()),
			zap.Uint64("seq", seq),
			zap.Uint64("applied_seq", s.appliedSeq))
		s.mu.Unlock()
		return nil
	}
	s.collection = fetched
	s.appliedSeq = seq
	s.mu.Unlock()

	if s.onApply != nil {
		s.onApply()
	}
	return nil
}

// Posts returns a copy of the current post collection.
func (s *Session) Posts() []posts.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]posts.Post, len(s.collection))
	copy(snapshot, s.collection)
	return snapshot
}

// Tree assembles the current collection into a reply forest.
func (s *Session) Tree() []*thread.Node {
	return thread.Build(s.Posts())
}

// SetLocalHeat patches the locally held score of one post, for optimistic
// display after a vote. The next fetch-and-replace overwrites it wholesale
// with the authoritative value.
func (s *Session) SetLocalHeat(postID string, heatScore int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index := range s.collection {
		if s.collection[index].PostID == postID {
			s.collection[index].HeatScore = heatScore
			return
		}
	}
}

// SetExpanded records a post's expand/collapse flag.
func (s *Session) SetExpanded(postID string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expanded {
		s.expanded[postID] = true
	} else {
		delete(s.expanded, postID)
	}
}

// Expanded reports whether a post is currently expanded.
func (s *Session) Expanded(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[postID]
}
