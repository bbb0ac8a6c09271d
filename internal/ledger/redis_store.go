package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps one participant's votes in a Redis hash, for deployments
// where the engine runs server-side and device state must survive restarts.
// It shares the fail-open contract of the file store: an unreachable Redis
// reads as "no votes recorded" and never blocks voting.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and scopes the ledger to the given device id.
func NewRedisStore(redisURL, deviceID string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if deviceID == "" {
		return nil, fmt.Errorf("ledger: device id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, key: "votes:" + deviceID, logger: logger}, nil
}

// NewRedisStoreWithClient builds a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, deviceID string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, key: "votes:" + deviceID, logger: logger}
}

// Get returns the recorded direction for a post, DirectionNone when absent or
// when Redis is unreachable.
func (s *RedisStore) Get(ctx context.Context, postID string) (Direction, error) {
	value, err := s.client.HGet(ctx, s.key, postID).Result()
	if err == redis.Nil {
		return DirectionNone, nil
	}
	if err != nil {
		s.logger.Warn("vote ledger read failed, treating as unvoted", zap.Error(err))
		return DirectionNone, nil
	}
	direction := Direction(value)
	if !direction.Valid() {
		return DirectionNone, nil
	}
	return direction, nil
}

// Set records a direction for a post, clearing the entry for DirectionNone.
func (s *RedisStore) Set(ctx context.Context, postID string, direction Direction) error {
	if postID == "" || !direction.Valid() {
		return nil
	}
	if direction == DirectionNone {
		return s.client.HDel(ctx, s.key, postID).Err()
	}
	return s.client.HSet(ctx, s.key, postID, string(direction)).Err()
}

// Snapshot returns all recorded votes keyed by post id. An unreachable Redis
// reads as an empty ledger.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string]Direction, error) {
	entries, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		s.logger.Warn("vote ledger snapshot failed, treating as empty", zap.Error(err))
		return map[string]Direction{}, nil
	}

	votes := make(map[string]Direction, len(entries))
	for postID, value := range entries {
		direction := Direction(value)
		if direction.Valid() && direction != DirectionNone {
			votes[postID] = direction
		}
	}
	return votes, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
