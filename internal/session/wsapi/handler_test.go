package wsapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quest-engine/internal/auth"
	"github.com/gokatarajesh/quest-engine/internal/auth/jwt"
	"github.com/gokatarajesh/quest-engine/internal/db/memory"
	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
	"github.com/gokatarajesh/quest-engine/internal/question"
	"github.com/gokatarajesh/quest-engine/internal/reward"
	"github.com/gokatarajesh/quest-engine/internal/session"
	"github.com/gokatarajesh/quest-engine/internal/submission"
	ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"
)

type harness struct {
	server *httptest.Server
	tokens *jwt.Manager
	hub    *ws.Hub
	subs   *submission.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewQuestStore()
	store.Put(quest.Quest{ID: "spring", Kind: quest.KindOneShot, Published: true, PassingScore: 80, RewardPoints: 100}, []quest.Question{
		{ID: "q1", Prompt: "one", Choices: []string{"a", "b"}, CorrectAnswer: 1, AudioURL: "https://cdn.example/q1.mp3"},
		{ID: "q2", Prompt: "two", Choices: []string{"a", "b"}, CorrectAnswer: 0},
	})

	provider := question.NewProvider(store, nil, question.ProviderOptions{}, zerolog.Nop())
	rewards := reward.NewService(memory.NewAttemptStore(), reward.ServiceOptions{}, zerolog.Nop())
	subs := submission.NewService(provider, rewards, submission.Options{Ranks: grading.DefaultRankTable()}, zerolog.Nop())

	hub := ws.NewHub(zerolog.Nop())
	tokens := jwt.NewManager(jwt.TokenConfig{Secret: []byte("ws-secret")})
	handler := NewHandler(provider, subs, hub, Options{}, zerolog.Nop())

	srv := httptest.NewServer(auth.Middleware(tokens, zerolog.Nop())(handler))
	t.Cleanup(srv.Close)
	return &harness{server: srv, tokens: tokens, hub: hub, subs: subs}
}

func (h *harness) dial(t *testing.T, user uuid.UUID, query string) *websocket.Conn {
	t.Helper()
	token, err := h.tokens.GenerateAccessToken(jwt.User{ID: user})
	require.NoError(t, err)
	u := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/sessions?" + query + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg, err := ws.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// next reads messages until one of msgType arrives; others are collected.
func next(t *testing.T, conn *websocket.Conn, msgType string) (ws.Message, []ws.Message) {
	t.Helper()
	var skipped []ws.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg, skipped
		}
		skipped = append(skipped, msg)
	}
}

func state(t *testing.T, msg ws.Message) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	return snap
}

func TestSessionOverWebSocket(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()
	conn := h.dial(t, user, "kind=one_shot&id=spring")

	msg, _ := next(t, conn, ws.TypeResumeOffer)
	var offer session.Offer
	require.NoError(t, json.Unmarshal(msg.Payload, &offer))
	assert.Equal(t, "spring", offer.SetID)
	assert.Equal(t, 2, offer.Total)
	assert.False(t, offer.CanResume)

	send(t, conn, ws.TypeStartSession, ws.StartSessionPayload{})
	msg, skipped := next(t, conn, ws.TypeSessionState)
	snap := state(t, msg)
	assert.Equal(t, session.PhasePlaying, snap.Phase)
	require.NotNil(t, snap.Question)
	assert.Equal(t, "q1", snap.Question.ID)
	require.Len(t, skipped, 1)
	assert.Equal(t, ws.TypeAudio, skipped[0].Type)
	assert.NotContains(t, string(msg.Payload), "correct_answer")

	send(t, conn, ws.TypeSelectAnswer, map[string]int{"selected_index": 1})
	msg, skipped = next(t, conn, ws.TypeSessionState)
	snap = state(t, msg)
	assert.Equal(t, session.PhaseAnswered, snap.Phase)
	require.NotNil(t, snap.Feedback)
	assert.True(t, snap.Feedback.Correct)
	require.Len(t, skipped, 1)
	assert.Contains(t, string(skipped[0].Payload), `"stop"`)

	send(t, conn, ws.TypeAdvance, nil)
	next(t, conn, ws.TypeSessionState)
	send(t, conn, ws.TypeSelectAnswer, map[string]int{"selected_index": 0})
	next(t, conn, ws.TypeSessionState)
	send(t, conn, ws.TypeAdvance, nil)
	msg, _ = next(t, conn, ws.TypeSessionState)

	snap = state(t, msg)
	assert.Equal(t, session.PhaseResult, snap.Phase)
	require.NotNil(t, snap.Receipt)
	assert.Equal(t, 100, snap.Receipt.Percentage)
	assert.Equal(t, 100, snap.Receipt.RewardPointsAwarded)

	assert.Equal(t, 1, h.hub.Count())
}

func TestSessionRejectsBadMessages(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, uuid.New(), "id=spring")
	next(t, conn, ws.TypeResumeOffer)

	send(t, conn, "teleport", nil)
	msg, _ := next(t, conn, ws.TypeError)
	assert.Contains(t, string(msg.Payload), "unknown_message_type")

	send(t, conn, ws.TypeAdvance, nil)
	msg, _ = next(t, conn, ws.TypeError)
	assert.Contains(t, string(msg.Payload), "invalid_transition")

	send(t, conn, ws.TypeStartSession, nil)
	next(t, conn, ws.TypeSessionState)
	send(t, conn, ws.TypeSelectAnswer, map[string]string{})
	msg, _ = next(t, conn, ws.TypeError)
	assert.Contains(t, string(msg.Payload), "invalid_payload")
}

func TestSessionUnknownQuestClosesWithError(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, uuid.New(), "id=missing")
	msg, _ := next(t, conn, ws.TypeError)
	assert.Contains(t, string(msg.Payload), "quest_not_found")
}

func TestHandshakeRejections(t *testing.T) {
	h := newHarness(t)
	token, err := h.tokens.GenerateAccessToken(jwt.User{ID: uuid.New()})
	require.NoError(t, err)
	base := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/sessions"

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"no token", "?id=spring", http.StatusUnauthorized},
		{"no id", "?token=" + token, http.StatusBadRequest},
		{"bad kind", fmt.Sprintf("?id=spring&kind=weekly&token=%s", token), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(base+tt.query, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestParseScope(t *testing.T) {
	scope, err := parseScope(map[string][]string{"id": {"verbs"}, "kind": {"deck"}, "seed": {"s1"}})
	require.NoError(t, err)
	assert.Equal(t, question.DeckScope("verbs", "s1"), scope)

	scope, err = parseScope(map[string][]string{"id": {"listening"}, "kind": {"daily"}})
	require.NoError(t, err)
	assert.Equal(t, quest.KindDaily, scope.Kind)
}
