// Package api exposes quests, daily challenges and the points ledger over
// HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/auth"
	"github.com/gokatarajesh/quest-engine/internal/logging"
	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/question"
	"github.com/gokatarajesh/quest-engine/internal/session"
	"github.com/gokatarajesh/quest-engine/internal/submission"
	httperrors "github.com/gokatarajesh/quest-engine/pkg/http/errors"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxBodyBytes         = 1 << 20
)

// Handlers serves the quest REST endpoints.
type Handlers struct {
	provider    *question.Provider
	submissions *submission.Service
	now         func() time.Time
	logger      zerolog.Logger
}

// NewHandlers creates the quest HTTP handlers.
func NewHandlers(provider *question.Provider, submissions *submission.Service, logger zerolog.Logger) *Handlers {
	return &Handlers{
		provider:    provider,
		submissions: submissions,
		now:         time.Now,
		logger:      logger.With().Str("component", "quest_http").Logger(),
	}
}

// Register mounts the routes on mux behind protect.
func (h *Handlers) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	routes := map[string]http.HandlerFunc{
		"GET /v1/quests/{id}/questions":  h.QuestQuestions,
		"POST /v1/quests/{id}/submit":    h.SubmitQuest,
		"GET /v1/quests/{id}/attempts":   h.QuestAttempts,
		"GET /v1/decks/{id}/questions":   h.DeckQuestions,
		"POST /v1/decks/{id}/submit":     h.SubmitDeck,
		"GET /v1/daily/{kind}/questions": h.DailyQuestions,
		"POST /v1/daily/{kind}/result":   h.DailyResult,
		"GET /v1/daily/{kind}/streak":    h.DailyStreak,
		"GET /v1/users/me/points":        h.Points,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, protect(fn))
	}
}

// SetResponse is a question set as served to players.
type SetResponse struct {
	SetID        string                 `json:"set_id"`
	Kind         string                 `json:"kind"`
	QuestID      string                 `json:"quest_id"`
	Title        string                 `json:"title,omitempty"`
	Date         string                 `json:"date,omitempty"`
	PassingScore int                    `json:"passing_score"`
	RewardPoints int                    `json:"reward_points"`
	Questions    []session.QuestionView `json:"questions"`
}

func toSetResponse(pack question.Pack) SetResponse {
	resp := SetResponse{
		SetID:        pack.Set.ID,
		Kind:         pack.Set.Kind,
		QuestID:      pack.Quest.ID,
		Title:        pack.Quest.Title,
		Date:         pack.Date,
		PassingScore: pack.Quest.PassingScore,
		RewardPoints: pack.Quest.RewardPoints,
		Questions:    make([]session.QuestionView, len(pack.Set.Questions)),
	}
	for i, q := range pack.Set.Questions {
		resp.Questions[i] = session.PublicQuestion(q)
	}
	return resp
}

// QuestQuestions handles GET /v1/quests/{id}/questions
func (h *Handlers) QuestQuestions(w http.ResponseWriter, r *http.Request) {
	h.serveSet(w, r, question.QuestScope(r.PathValue("id")))
}

// DeckQuestions handles GET /v1/decks/{id}/questions?seed=...
func (h *Handlers) DeckQuestions(w http.ResponseWriter, r *http.Request) {
	h.serveSet(w, r, question.DeckScope(r.PathValue("id"), r.URL.Query().Get("seed")))
}

// DailyQuestions handles GET /v1/daily/{kind}/questions
func (h *Handlers) DailyQuestions(w http.ResponseWriter, r *http.Request) {
	h.serveSet(w, r, question.DailyScope(r.PathValue("kind"), h.now()))
}

func (h *Handlers) serveSet(w http.ResponseWriter, r *http.Request, scope question.Scope) {
	if _, ok := h.userID(w, r); !ok {
		return
	}
	pack, err := h.provider.GetQuestions(r.Context(), scope)
	if err != nil {
		h.logFailure(r, err, "load question set", scope.QuestID)
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSetResponse(pack))
}

type answerRequest struct {
	QuestionID    string `json:"question_id"`
	SelectedIndex *int   `json:"selected_index"`
}

type submitRequest struct {
	Answers      []answerRequest `json:"answers"`
	SubmissionID string          `json:"submission_id,omitempty"`
}

// SubmitQuest handles POST /v1/quests/{id}/submit
func (h *Handlers) SubmitQuest(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, question.QuestScope(r.PathValue("id")))
}

// SubmitDeck handles POST /v1/decks/{id}/submit?seed=...
func (h *Handlers) SubmitDeck(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, question.DeckScope(r.PathValue("id"), r.URL.Query().Get("seed")))
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, scope question.Scope) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	answers := make([]quest.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		if a.SelectedIndex == nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "selected_index is required", "selected_index")
			return
		}
		answers = append(answers, quest.Answer{QuestionID: a.QuestionID, SelectedIndex: *a.SelectedIndex})
	}

	receipt, err := h.submissions.Submit(r.Context(), userID, scope, answers, submissionID(r, req.SubmissionID))
	if err != nil {
		h.logFailure(r, err, "submission failed", scope.QuestID)
		respondError(w, err)
		return
	}
	if receipt.Replayed {
		w.Header().Set(headerReplayed, "true")
	}
	writeJSON(w, http.StatusOK, receipt)
}

// QuestAttempts handles GET /v1/quests/{id}/attempts
func (h *Handlers) QuestAttempts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	attempts, err := h.submissions.Attempts(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.logFailure(r, err, "list attempts", r.PathValue("id"))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quest_id": r.PathValue("id"),
		"attempts": attempts,
	})
}

type dailyResultRequest struct {
	QuestionID   string `json:"questionId"`
	IsCorrect    *bool  `json:"isCorrect,omitempty"`
	UserAnswer   *int   `json:"userAnswer"`
	SubmissionID string `json:"submissionId,omitempty"`
}

// DailyResult handles POST /v1/daily/{kind}/result. The client's isCorrect
// is advisory; the answer is graded here.
func (h *Handlers) DailyResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req dailyResultRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserAnswer == nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "userAnswer is required", "userAnswer")
		return
	}

	kind := r.PathValue("kind")
	receipt, err := h.submissions.SubmitDailyAnswer(r.Context(), userID, kind, submission.DailyAnswer{
		QuestionID:   req.QuestionID,
		UserAnswer:   *req.UserAnswer,
		SubmissionID: submissionID(r, req.SubmissionID),
	})
	if err != nil {
		h.logFailure(r, err, "daily result failed", kind)
		respondError(w, err)
		return
	}
	if req.IsCorrect != nil && *req.IsCorrect != receipt.Correct {
		h.logger.Warn().
			Str("user_id", userID.String()).
			Str("question_id", req.QuestionID).
			Msg("client grading disagrees with server")
	}
	if receipt.Replayed {
		w.Header().Set(headerReplayed, "true")
	}
	writeJSON(w, http.StatusOK, receipt)
}

// DailyStreak handles GET /v1/daily/{kind}/streak
func (h *Handlers) DailyStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	streak, err := h.submissions.Streak(r.Context(), userID, r.PathValue("kind"))
	if err != nil {
		h.logFailure(r, err, "streak lookup failed", r.PathValue("kind"))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

// Points handles GET /v1/users/me/points
func (h *Handlers) Points(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	points, err := h.submissions.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("points balance failed")
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"points":  points,
	})
}

func (h *Handlers) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return uuid.Nil, false
	}
	return id, true
}

// logFailure logs server-side failures; client errors are only traced.
func (h *Handlers) logFailure(r *http.Request, err error, msg, questID string) {
	logger := h.logger
	if logging.RequestID(r.Context()) != "" {
		logger = logging.FromContext(r.Context()).With().Str("component", "quest_http").Logger()
	}
	p := Classify(err)
	event := logger.Debug()
	if p.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Str("quest_id", questID).Int("status", p.Status).Msg(msg)
}

// submissionID prefers the body field over the Idempotency-Key header.
func submissionID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(headerIdempotencyKey)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
