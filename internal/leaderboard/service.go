package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"
)

// Supported leaderboard windows.
const (
	WindowDaily   = "daily"
	WindowWeekly  = "weekly"
	WindowAllTime = "all_time"
)

var defaultWindows = []string{WindowDaily, WindowWeekly, WindowAllTime}

// Entry is one user's reward point total within a window.
type Entry struct {
	UserID uuid.UUID `json:"user_id"`
	Points int       `json:"points"`
}

// ServiceOptions configures leaderboard service behavior.
type ServiceOptions struct {
	TopN           int
	PubSubChannel  string
	EntryTTL       time.Duration
	RedisKeyPrefix string
	Location       *time.Location
	Now            func() time.Time
}

// Service keeps reward point leaderboards in Redis sorted sets, one per
// calendar period of each window, and emits updates over Pub/Sub.
type Service struct {
	redis         *redis.Client
	logger        zerolog.Logger
	topN          int
	pubsubChannel string
	entryTTL      time.Duration
	prefix        string
	loc           *time.Location
	now           func() time.Time
}

// NewService constructs a leaderboard service instance.
func NewService(redis *redis.Client, logger zerolog.Logger, opts ServiceOptions) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = 50
	}
	channel := opts.PubSubChannel
	if channel == "" {
		channel = "lb:updates"
	}
	prefix := opts.RedisKeyPrefix
	if prefix == "" {
		prefix = "lb"
	}
	ttl := opts.EntryTTL
	if ttl <= 0 {
		ttl = 8 * 24 * time.Hour
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		redis:         redis,
		logger:        logger.With().Str("component", "leaderboard").Logger(),
		topN:          topN,
		pubsubChannel: channel,
		entryTTL:      ttl,
		prefix:        prefix,
		loc:           loc,
		now:           now,
	}
}

// Windows lists the windows the service maintains.
func Windows() []string {
	return append([]string(nil), defaultWindows...)
}

// IsValidWindow reports whether window is maintained.
func IsValidWindow(window string) bool {
	switch window {
	case WindowDaily, WindowWeekly, WindowAllTime:
		return true
	default:
		return false
	}
}

// RecordReward adds granted points to every window. The reward service calls
// it after a grant commits.
func (s *Service) RecordReward(ctx context.Context, userID uuid.UUID, points int) error {
	if points <= 0 {
		return nil
	}
	now := s.now()

	pipe := s.redis.TxPipeline()
	for _, window := range defaultWindows {
		key := s.leaderboardKey(window, now)
		pipe.ZIncrBy(ctx, key, float64(points), userID.String())
		if window != WindowAllTime {
			pipe.Expire(ctx, key, s.entryTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update leaderboards: %w", err)
	}

	// Publish aggregate update for WebSocket consumers.
	go s.publishUpdate(context.Background(), defaultWindows)
	return nil
}

// Top retrieves the top entries of the current period of window.
func (s *Service) Top(ctx context.Context, window string, limit int) ([]Entry, error) {
	if !IsValidWindow(window) {
		return nil, fmt.Errorf("unknown leaderboard window %q", window)
	}
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	results, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(window, s.now()), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, z := range results {
		member, _ := z.Member.(string)
		userID, err := uuid.Parse(member)
		if err != nil {
			s.logger.Warn().Str("member", member).Msg("skipping malformed leaderboard member")
			continue
		}
		entries = append(entries, Entry{UserID: userID, Points: int(z.Score)})
	}
	return entries, nil
}

func (s *Service) publishUpdate(ctx context.Context, windows []string) {
	for _, window := range windows {
		entries, err := s.Top(ctx, window, 10)
		if err != nil {
			s.logger.Warn().Err(err).Str("window", window).Msg("failed to collect leaderboard update")
			continue
		}
		if len(entries) == 0 {
			continue
		}

		payload := ws.LeaderboardUpdatePayload{
			Window: window,
			Top:    toWSEntries(entries),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to marshal leaderboard update")
			continue
		}
		if err := s.redis.Publish(ctx, s.pubsubChannel, data).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish leaderboard update")
		}
	}
}

// leaderboardKey names the sorted set of the period containing at.
func (s *Service) leaderboardKey(window string, at time.Time) string {
	at = at.In(s.loc)
	switch window {
	case WindowDaily:
		return fmt.Sprintf("%s:%s:%s", s.prefix, window, at.Format("2006-01-02"))
	case WindowWeekly:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%s:%s:%d-W%02d", s.prefix, window, year, week)
	default:
		return fmt.Sprintf("%s:%s", s.prefix, window)
	}
}
