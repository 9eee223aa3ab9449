package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultProgressTTL = 7 * 24 * time.Hour

// Progress is the resumable position within a set. It is a hint only: a
// lost or stale record just means the session starts from the top.
type Progress struct {
	CurrentIndex int       `json:"current_index"`
	Total        int       `json:"total"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProgressStore keeps one Progress per user and set.
type ProgressStore interface {
	Save(ctx context.Context, userID uuid.UUID, setID string, p Progress) error
	Load(ctx context.Context, userID uuid.UUID, setID string) (*Progress, error)
	Clear(ctx context.Context, userID uuid.UUID, setID string) error
}

// RedisProgressStore keeps progress in Redis with a TTL.
type RedisProgressStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisProgressStore creates a progress store backed by Redis.
func NewRedisProgressStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisProgressStore {
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &RedisProgressStore{
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func progressKey(userID uuid.UUID, setID string) string {
	return fmt.Sprintf("session:progress:%s:%s", userID.String(), setID)
}

// Save stores p, refreshing the TTL.
func (s *RedisProgressStore) Save(ctx context.Context, userID uuid.UUID, setID string, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.redis.Set(ctx, progressKey(userID, setID), data, s.ttl).Err()
}

// Load returns nil when nothing is stored.
func (s *RedisProgressStore) Load(ctx context.Context, userID uuid.UUID, setID string) (*Progress, error) {
	key := progressKey(userID, setID)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupted progress")
		return nil, nil
	}
	return &p, nil
}

// Clear removes the stored progress.
func (s *RedisProgressStore) Clear(ctx context.Context, userID uuid.UUID, setID string) error {
	return s.redis.Del(ctx, progressKey(userID, setID)).Err()
}
