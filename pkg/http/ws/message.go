package ws

import "encoding/json"

// MessageType constants for the session WebSocket protocol.
const (
	// Client -> Server
	TypeStartSession = "start_session"
	TypeSelectAnswer = "select_answer"
	TypeAdvance      = "advance"
	TypePrevious     = "previous"
	TypeForceSubmit  = "force_submit"
	TypeRestart      = "restart"
	TypeRetrySubmit  = "retry_submit"

	// Server -> Client
	TypeResumeOffer       = "resume_offer"
	TypeSessionState      = "session_state"
	TypeAudio             = "audio"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeError             = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into an envelope.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Client Messages (incoming)

type StartSessionPayload struct {
	Resume bool `json:"resume"`
}

type SelectAnswerPayload struct {
	SelectedIndex *int `json:"selected_index"`
}

// Server Messages (outgoing)

type AudioPayload struct {
	Action     string `json:"action"` // "play" or "stop"
	QuestionID string `json:"question_id"`
	URL        string `json:"url,omitempty"`
}

type LeaderboardUpdatePayload struct {
	Window string             `json:"window"`
	Top    []LeaderboardEntry `json:"top"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int    `json:"points"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
