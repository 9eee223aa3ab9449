package leaderboard

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"
)

// Broadcaster relays the standings published after each reward to every
// connected session socket, across all API instances. Every reward triggers a
// publish, so an update whose top list matches the last one forwarded for the
// same window is dropped.
type Broadcaster struct {
	redis   *redis.Client
	hub     *ws.Hub
	channel string
	logger  zerolog.Logger

	mu   sync.Mutex
	last map[string][]ws.LeaderboardEntry
}

// NewBroadcaster creates a Pub/Sub powered leaderboard broadcaster.
func NewBroadcaster(redis *redis.Client, hub *ws.Hub, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = "lb:updates"
	}
	return &Broadcaster{
		redis:   redis,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "leaderboard_broadcaster").Str("channel", channel).Logger(),
		last:    make(map[string][]ws.LeaderboardEntry, len(defaultWindows)),
	}
}

// Run subscribes to the update channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()

	b.logger.Info().Strs("windows", Windows()).Msg("leaderboard broadcaster subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg.Payload)
		}
	}
}

// forward reports whether the update reached the hub.
func (b *Broadcaster) forward(payload string) bool {
	var evt ws.LeaderboardUpdatePayload
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode leaderboard update payload")
		return false
	}
	log := b.logger.With().Str("window", evt.Window).Int("top_size", len(evt.Top)).Logger()
	if !IsValidWindow(evt.Window) {
		log.Warn().Msg("dropping update for unknown window")
		return false
	}
	if !b.changed(evt) {
		log.Debug().Msg("standings unchanged; update skipped")
		return false
	}

	msg, err := ws.NewMessage(ws.TypeLeaderboardUpdate, evt)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal leaderboard WS payload")
		return false
	}
	if err := b.hub.BroadcastAll(msg); err != nil {
		log.Warn().Err(err).Msg("failed to broadcast leaderboard update")
		return false
	}

	event := log.Debug().Int("sockets", b.hub.Count())
	if len(evt.Top) > 0 {
		event = event.Str("leader", evt.Top[0].UserID).Int("leader_points", evt.Top[0].Points)
	}
	event.Msg("leaderboard update forwarded")
	return true
}

// changed records evt.Top as the latest standings of its window and reports
// whether they differ from the previous ones.
func (b *Broadcaster) changed(evt ws.LeaderboardUpdatePayload) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.last[evt.Window]; ok && slices.Equal(prev, evt.Top) {
		return false
	}
	b.last[evt.Window] = slices.Clone(evt.Top)
	return true
}
