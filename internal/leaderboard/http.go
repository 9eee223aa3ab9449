package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/db/repository"
	httperrors "github.com/gokatarajesh/quest-engine/pkg/http/errors"
	ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"
)

// HTTPHandler exposes REST endpoints for leaderboard queries.
type HTTPHandler struct {
	svc       *Service
	snapshots SnapshotStore
	logger    zerolog.Logger
}

// NewHTTPHandler constructs a leaderboard HTTP handler. snapshots may be nil.
func NewHTTPHandler(svc *Service, snapshots SnapshotStore, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:       svc,
		snapshots: snapshots,
		logger:    logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// Response is the body of GET /v1/leaderboards/{window}.
type Response struct {
	Window      string                `json:"window"`
	Top         []ws.LeaderboardEntry `json:"top"`
	Source      string                `json:"source"`
	RetrievedAt string                `json:"retrievedAt"`
}

// HandleGet responds with the current leaderboard for a window.
// Route: GET /v1/leaderboards/{window}?limit=10
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	window := r.PathValue("window")
	if !IsValidWindow(window) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeUnknownWindow, "unknown leaderboard window")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	ctx := r.Context()
	var (
		top      []ws.LeaderboardEntry
		source   = "redis"
		redisErr error
	)

	if h.svc != nil {
		entries, err := h.svc.Top(ctx, window, limit)
		if err == nil {
			top = toWSEntries(entries)
		} else {
			redisErr = err
			h.logger.Warn().Err(err).Str("window", window).Msg("redis leaderboard fetch failed")
		}
	}

	if len(top) == 0 {
		snap, ok := h.snapshotFallback(ctx, window, limit)
		if ok {
			source = "snapshot"
			top = snap
		} else if redisErr != nil {
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeLeaderboardFetchFailed, "leaderboard temporarily unavailable")
			return
		}
	}
	if top == nil {
		top = []ws.LeaderboardEntry{}
	}

	writeJSON(w, Response{
		Window:      window,
		Top:         top,
		Source:      source,
		RetrievedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HTTPHandler) snapshotFallback(ctx context.Context, window string, limit int) ([]ws.LeaderboardEntry, bool) {
	if h.snapshots == nil {
		return nil, false
	}
	snap, err := h.snapshots.Latest(ctx, window)
	if err != nil {
		if !errors.Is(err, repository.ErrNoSnapshot) {
			h.logger.Warn().Err(err).Str("window", window).Msg("snapshot fetch failed")
		}
		return nil, false
	}

	var entries []ws.LeaderboardEntry
	if err := json.Unmarshal(snap.Entries, &entries); err != nil {
		h.logger.Warn().Err(err).Msg("snapshot payload decode failed")
		return nil, false
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
