// Package submission is the authoritative submit path: it re-grades the
// answers against the provider's set, evaluates the outcome and hands the
// result to the reward service under the right scope key.
package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
	"github.com/gokatarajesh/quest-engine/internal/question"
	"github.com/gokatarajesh/quest-engine/internal/reward"
)

// SetProvider loads question sets.
type SetProvider interface {
	GetQuestions(ctx context.Context, scope question.Scope) (question.Pack, error)
}

// Receipt is the response to a full-set submission.
type Receipt struct {
	SetID               string                   `json:"set_id"`
	Score               int                      `json:"score"`
	TotalPoints         int                      `json:"total_points"`
	Percentage          int                      `json:"percentage"`
	Rank                string                   `json:"rank"`
	IsCleared           bool                     `json:"is_cleared"`
	IsFirstClear        bool                     `json:"is_first_clear"`
	RewardPointsAwarded int                      `json:"reward_points_awarded"`
	Answers             []grading.QuestionResult `json:"answers"`
	AttemptID           uuid.UUID                `json:"attempt_id"`
	Replayed            bool                     `json:"-"`
}

// DailyAnswer is one per-question daily challenge result.
type DailyAnswer struct {
	QuestionID   string
	UserAnswer   int
	SubmissionID string
}

// DailyReceipt is the response to a DailyAnswer.
type DailyReceipt struct {
	PointsEarned  int    `json:"pointsEarned"`
	Correct       bool   `json:"isCorrect"`
	CorrectAnswer int    `json:"correctAnswer"`
	Date          string `json:"date"`
	Replayed      bool   `json:"-"`
}

// Options configures the service.
type Options struct {
	Ranks    grading.RankTable
	Location *time.Location // calendar days for streaks
	Now      func() time.Time
}

// Service runs submissions.
type Service struct {
	provider SetProvider
	rewards  *reward.Service
	ranks    grading.RankTable
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(provider SetProvider, rewards *reward.Service, opts Options, logger zerolog.Logger) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		provider: provider,
		loc:      loc,
		rewards:  rewards,
		ranks:    opts.Ranks,
		now:      now,
		logger:   logger.With().Str("component", "submission").Logger(),
	}
}

// SubmitQuest grades a one-shot quest submission.
func (s *Service) SubmitQuest(ctx context.Context, userID uuid.UUID, questID string, answers []quest.Answer, submissionID string) (Receipt, error) {
	return s.Submit(ctx, userID, question.QuestScope(questID), answers, submissionID)
}

// Submit grades a whole set for any scope. Answers must only reference
// questions of the set; unanswered questions grade as incorrect.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, scope question.Scope, answers []quest.Answer, submissionID string) (Receipt, error) {
	pack, err := s.provider.GetQuestions(ctx, scope)
	if err != nil {
		return Receipt{}, err
	}
	if err := pack.Set.CheckAnswers(answers); err != nil {
		return Receipt{}, err
	}

	result, err := grading.Grade(pack.Set, answers)
	if err != nil {
		return Receipt{}, err
	}
	outcome := grading.Evaluate(result, pack.Quest.PassingScore, s.ranks)

	decision, err := s.rewards.Issue(ctx, reward.IssueRequest{
		UserID:       userID,
		QuestID:      pack.Quest.ID,
		Kind:         pack.Quest.Kind,
		Policy:       pack.Quest.RewardPolicy(),
		ScopeKey:     scopeKey(userID, pack),
		SubmissionID: submissionID,
		RewardPoints: pack.Quest.RewardPoints,
		Result:       result,
		Outcome:      outcome,
	})
	if err != nil {
		return Receipt{}, err
	}

	if decision.Replayed {
		// a retry reports the attempt as first graded, not the retried body
		result = grading.FromRecord(pack.Set, decision.Attempt.Result)
		outcome.Rank = decision.Attempt.Rank
	}

	receipt := Receipt{
		SetID:               pack.Set.ID,
		Score:               result.Score,
		TotalPoints:         result.TotalPoints,
		Percentage:          result.Percentage,
		Rank:                outcome.Rank,
		IsCleared:           decision.IsCleared,
		IsFirstClear:        decision.IsFirstClear,
		RewardPointsAwarded: decision.RewardPointsAwarded,
		Answers:             result.PerQuestion,
		AttemptID:           decision.Attempt.ID,
		Replayed:            decision.Replayed,
	}
	return receipt, nil
}

// SubmitDailyAnswer records one daily challenge answer. The answer is graded
// here; the day's reward goes to the first result of the day whatever its
// correctness, and later results that day earn nothing.
func (s *Service) SubmitDailyAnswer(ctx context.Context, userID uuid.UUID, kind string, ans DailyAnswer) (DailyReceipt, error) {
	pack, err := s.provider.GetQuestions(ctx, question.DailyScope(kind, s.now()))
	if err != nil {
		return DailyReceipt{}, err
	}
	answer := quest.Answer{QuestionID: ans.QuestionID, SelectedIndex: ans.UserAnswer}
	if err := pack.Set.CheckAnswers([]quest.Answer{answer}); err != nil {
		return DailyReceipt{}, err
	}

	q, _ := pack.Set.Question(ans.QuestionID)
	qr := grading.GradeOne(q, ans.UserAnswer)
	result := grading.GradedResult{
		PerQuestion: []grading.QuestionResult{qr},
		Score:       qr.PointsEarned,
		TotalPoints: q.Points,
		Percentage:  grading.Percentage(qr.PointsEarned, q.Points),
	}

	decision, err := s.rewards.Issue(ctx, reward.IssueRequest{
		UserID:       userID,
		QuestID:      pack.Quest.ID,
		Kind:         quest.KindDaily,
		Policy:       pack.Quest.RewardPolicy(),
		ScopeKey:     scopeKey(userID, pack),
		SubmissionID: ans.SubmissionID,
		RewardPoints: pack.Quest.RewardPoints,
		Result:       result,
		Outcome:      grading.Evaluate(result, pack.Quest.PassingScore, s.ranks),
	})
	if err != nil {
		return DailyReceipt{}, err
	}

	if decision.Replayed {
		if stored := grading.FromRecord(pack.Set, decision.Attempt.Result).PerQuestion; len(stored) == 1 {
			qr = stored[0]
			q, _ = pack.Set.Question(qr.QuestionID)
		}
	}

	return DailyReceipt{
		PointsEarned:  decision.RewardPointsAwarded,
		Correct:       qr.Correct,
		CorrectAnswer: q.CorrectAnswer,
		Date:          pack.Date,
		Replayed:      decision.Replayed,
	}, nil
}

// Attempts lists the user's attempts at a quest, oldest first.
func (s *Service) Attempts(ctx context.Context, userID uuid.UUID, questID string) ([]quest.Attempt, error) {
	key := reward.QuestScopeKey(userID, questID)
	all, err := s.rewards.History(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]quest.Attempt, 0, len(all))
	for _, a := range all {
		if a.ScopeKey == key {
			out = append(out, a)
		}
	}
	return out, nil
}

// Balance returns the user's credited reward points.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.rewards.Balance(ctx, userID)
}

func scopeKey(userID uuid.UUID, pack question.Pack) string {
	if pack.Quest.Kind == quest.KindDaily {
		return reward.DailyScopePrefix(userID, pack.Quest.ID) + pack.Date
	}
	return reward.QuestScopeKey(userID, pack.Quest.ID)
}
