package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps the participant's votes in a single JSON file on the local
// device. Every mutation is a full read-modify-write of the file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFileStore constructs a file-backed ledger at the given path. The file is
// created on first write.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("ledger: file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Get returns the recorded direction for a post, DirectionNone when absent.
func (s *FileStore) Get(ctx context.Context, postID string) (Direction, error) {
	votes, err := s.Snapshot(ctx)
	if err != nil {
		return DirectionNone, err
	}
	return votes[postID], nil
}

// Set records a direction for a post, clearing the entry for DirectionNone.
func (s *FileStore) Set(_ context.Context, postID string, direction Direction) error {
	if postID == "" || !direction.Valid() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	votes := s.readAll()
	if direction == DirectionNone {
		delete(votes, postID)
	} else {
		votes[postID] = direction
	}

	encoded, err := json.Marshal(votes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, encoded, 0o644)
}

// Snapshot returns all recorded votes keyed by post id. A missing or corrupt
// file reads as an empty ledger.
func (s *FileStore) Snapshot(_ context.Context) (map[string]Direction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll(), nil
}

func (s *FileStore) readAll() map[string]Direction {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("vote ledger unreadable, treating as empty", zap.Error(err))
		}
		return map[string]Direction{}
	}

	votes := map[string]Direction{}
	if err := json.Unmarshal(raw, &votes); err != nil {
		s.logger.Warn("vote ledger corrupt, treating as empty", zap.Error(err))
		return map[string]Direction{}
	}

	for postID, direction := range votes {
		if !direction.Valid() || direction == DirectionNone {
			delete(votes, postID)
		}
	}
	return votes
}
