// Package wsapi hosts one session controller per WebSocket connection.
package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/auth"
	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/api"
	"github.com/gokatarajesh/quest-engine/internal/question"
	"github.com/gokatarajesh/quest-engine/internal/session"
	httperrors "github.com/gokatarajesh/quest-engine/pkg/http/errors"
	ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"
)

// Options configures the handler.
type Options struct {
	Progress         session.ProgressStore
	AutoAdvanceDelay time.Duration
	Upgrader         *websocket.Upgrader
}

// Handler upgrades authenticated requests and runs a session over them.
type Handler struct {
	fetcher   session.Fetcher
	submitter session.Submitter
	hub       *ws.Hub
	opts      Options
	upgrader  *websocket.Upgrader
	logger    zerolog.Logger
}

// NewHandler creates the session WebSocket handler.
func NewHandler(fetcher session.Fetcher, submitter session.Submitter, hub *ws.Hub, opts Options, logger zerolog.Logger) *Handler {
	upgrader := opts.Upgrader
	if upgrader == nil {
		upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	}
	return &Handler{
		fetcher:   fetcher,
		submitter: submitter,
		hub:       hub,
		opts:      opts,
		upgrader:  upgrader,
		logger:    logger.With().Str("component", "session_ws").Logger(),
	}
}

// ServeHTTP handles GET /ws/sessions?kind=one_shot|daily|deck&id=...&seed=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}
	scope, err := parseScope(r.URL.Query())
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.serve(conn, userID, scope)
}

func (h *Handler) serve(conn *websocket.Conn, userID uuid.UUID, scope question.Scope) {
	logger := h.logger.With().Str("user_id", userID.String()).Str("quest_id", scope.QuestID).Logger()
	wsConn := ws.NewConnection(conn, logger)
	if h.hub != nil {
		h.hub.RegisterConnection(userID, wsConn)
		defer h.hub.UnregisterConnection(userID, wsConn)
	} else {
		defer wsConn.Close()
	}
	go wsConn.WritePump()

	// Submissions outlive the socket so a disconnect cannot cut one in half.
	ctx := context.Background()

	peer := &peer{conn: wsConn, logger: logger}
	ctrl := session.NewController(session.ControllerOptions{
		UserID:           userID,
		Scope:            scope,
		Fetcher:          h.fetcher,
		Submitter:        h.submitter,
		Progress:         h.opts.Progress,
		Audio:            peer,
		AutoAdvanceDelay: h.opts.AutoAdvanceDelay,
		OnChange:         func(s session.Snapshot) { peer.send(ws.TypeSessionState, s, "") },
	}, logger)
	defer ctrl.Close()

	offer, err := ctrl.Offer(ctx)
	if err != nil {
		peer.sendError(err, "")
		return
	}
	peer.send(ws.TypeResumeOffer, offer, "")

	wsConn.ReadPump(func(msg ws.Message) error {
		return peer.handle(ctx, ctrl, msg)
	})
}

// peer is the client end of one connection.
type peer struct {
	conn   *ws.Connection
	logger zerolog.Logger
}

func (p *peer) handle(ctx context.Context, ctrl *session.Controller, msg ws.Message) error {
	var (
		snap session.Snapshot
		err  error
	)
	switch msg.Type {
	case ws.TypeStartSession:
		var req ws.StartSessionPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				return p.sendCode(httperrors.ErrCodeInvalidPayload, "Invalid start_session payload", msg.RequestID)
			}
		}
		snap, err = ctrl.Start(ctx, req.Resume)
	case ws.TypeSelectAnswer:
		var req ws.SelectAnswerPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.SelectedIndex == nil {
			return p.sendCode(httperrors.ErrCodeInvalidPayload, "select_answer needs selected_index", msg.RequestID)
		}
		snap, err = ctrl.Dispatch(ctx, session.Event{Type: session.EventSelectAnswer, SelectedIndex: *req.SelectedIndex})
	case ws.TypeAdvance:
		snap, err = ctrl.Dispatch(ctx, session.Event{Type: session.EventAdvance})
	case ws.TypePrevious:
		snap, err = ctrl.Dispatch(ctx, session.Event{Type: session.EventPrevious})
	case ws.TypeForceSubmit:
		snap, err = ctrl.Dispatch(ctx, session.Event{Type: session.EventForceSubmit})
	case ws.TypeRestart:
		snap, err = ctrl.Dispatch(ctx, session.Event{Type: session.EventRestart})
	case ws.TypeRetrySubmit:
		snap, err = ctrl.RetrySubmit(ctx)
	default:
		return p.sendCode(httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type), msg.RequestID)
	}

	if err != nil {
		p.sendError(err, msg.RequestID)
	}
	p.send(ws.TypeSessionState, snap, msg.RequestID)
	return err
}

// Play and Stop make peer the session's audio sink.
func (p *peer) Play(questionID, url string) {
	p.send(ws.TypeAudio, ws.AudioPayload{Action: "play", QuestionID: questionID, URL: url}, "")
}

func (p *peer) Stop(questionID string) {
	p.send(ws.TypeAudio, ws.AudioPayload{Action: "stop", QuestionID: questionID}, "")
}

func (p *peer) send(msgType string, payload interface{}, requestID string) {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		p.logger.Error().Err(err).Str("type", msgType).Msg("failed to encode message")
		return
	}
	msg.RequestID = requestID
	if err := p.conn.Send(msg); err != nil && !errors.Is(err, ws.ErrConnectionClosed) {
		p.logger.Warn().Err(err).Str("type", msgType).Msg("failed to queue message")
	}
}

func (p *peer) sendError(err error, requestID string) {
	problem := api.Classify(err)
	p.send(ws.TypeError, ws.ErrorPayload{Code: problem.Code, Message: problem.Message, Retryable: problem.Retryable}, requestID)
}

func (p *peer) sendCode(code, message, requestID string) error {
	p.send(ws.TypeError, ws.ErrorPayload{Code: code, Message: message}, requestID)
	return errors.New(message)
}

func parseScope(q url.Values) (question.Scope, error) {
	id := q.Get("id")
	if id == "" {
		return question.Scope{}, errors.New("id is required")
	}
	switch kind := q.Get("kind"); kind {
	case "", quest.KindOneShot:
		return question.QuestScope(id), nil
	case quest.KindDaily:
		return question.DailyScope(id, time.Time{}), nil
	case quest.KindDeck:
		return question.DeckScope(id, q.Get("seed")), nil
	default:
		return question.Scope{}, fmt.Errorf("unknown kind %q", kind)
	}
}
