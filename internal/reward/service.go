package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
)

const defaultMaxCommitRetries = 3

// IssueRequest carries an authoritative grading result for one submission.
type IssueRequest struct {
	UserID       uuid.UUID
	QuestID      string
	Kind         string
	Policy       string
	ScopeKey     string
	SubmissionID string // empty means a fresh attempt
	RewardPoints int
	Result       grading.GradedResult
	Outcome      grading.Outcome
}

// Decision is what the caller renders.
type Decision struct {
	IsCleared           bool
	IsFirstClear        bool
	RewardPointsAwarded int
	Attempt             quest.Attempt
	Replayed            bool
}

// ServiceOptions configures the reward service.
type ServiceOptions struct {
	MaxCommitRetries int
	Metrics          *Metrics
	Recorder         Recorder
	Now              func() time.Time
}

// Service decides whether a submission earns its reward and records the
// attempt and the grant together.
type Service struct {
	store      AttemptStore
	recorder   Recorder
	metrics    *Metrics
	now        func() time.Time
	maxRetries int
	logger     zerolog.Logger
}

// NewService builds the reward service.
func NewService(store AttemptStore, opts ServiceOptions, logger zerolog.Logger) *Service {
	retries := opts.MaxCommitRetries
	if retries <= 0 {
		retries = defaultMaxCommitRetries
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		store:      store,
		recorder:   opts.Recorder,
		metrics:    metrics,
		now:        now,
		maxRetries: retries,
		logger:     logger.With().Str("component", "reward").Logger(),
	}
}

// Issue runs the check-then-act for one submission:
//  1. read the attempts recorded for the scope key
//  2. decide first clear and reward from the policy
//  3. commit attempt and grant atomically
//
// If the store reports that a concurrent commit won the first clear or the
// grant, the decision is recomputed from the fresh history. Once retries are
// exhausted the attempt is recorded without claiming either, so a reward is
// never granted twice. A duplicate submission id returns the stored decision.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Decision, error) {
	if req.UserID == uuid.Nil {
		return Decision{}, &quest.ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if req.ScopeKey == "" {
		return Decision{}, &quest.ValidationError{Field: "scope_key", Message: "scope key is required"}
	}
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}

	start := time.Now()
	defer func() { s.metrics.issueDuration.Observe(time.Since(start).Seconds()) }()

	claim := true
	for attempt := 0; ; attempt++ {
		prior, err := s.history(ctx, req.ScopeKey)
		if err != nil {
			return Decision{}, err
		}
		if existing := findSubmission(prior, req.SubmissionID); existing != nil {
			return s.replay(*existing), nil
		}

		record, grant := s.decide(req, prior, claim)
		res, err := s.store.InsertAttemptIfAbsent(ctx, req.ScopeKey, record, grant)
		switch {
		case errors.Is(err, ErrDecisionConflict):
			s.metrics.conflicts.Inc()
			s.logger.Warn().
				Str("scope_key", req.ScopeKey).
				Int("try", attempt+1).
				Msg("concurrent submission took the decision; re-deciding")
			if attempt+1 >= s.maxRetries {
				claim = false
			}
			continue
		case err != nil:
			s.logger.Error().Err(err).Str("scope_key", req.ScopeKey).Msg("commit attempt failed")
			return Decision{}, fmt.Errorf("%w: commit attempt: %w", ErrStoreUnavailable, err)
		}

		if !res.Inserted {
			if res.Existing == nil {
				return Decision{}, fmt.Errorf("%w: duplicate submission without stored attempt", ErrStoreUnavailable)
			}
			return s.replay(*res.Existing), nil
		}

		s.metrics.observeAttempt(record.Kind, record.Passed)
		if grant != nil {
			s.metrics.observeGrant(grant.Policy, grant.Points)
			s.credit(ctx, req.UserID, grant.Points)
		}

		s.logger.Info().
			Str("scope_key", req.ScopeKey).
			Str("user_id", req.UserID.String()).
			Str("quest_id", req.QuestID).
			Int("percentage", record.Result.Percentage).
			Bool("passed", record.Passed).
			Bool("first_clear", record.FirstClear).
			Int("awarded", record.RewardPointsAwarded).
			Msg("attempt recorded")

		return Decision{
			IsCleared:           record.Passed,
			IsFirstClear:        record.FirstClear,
			RewardPointsAwarded: record.RewardPointsAwarded,
			Attempt:             record,
		}, nil
	}
}

// History returns the attempts stored under a scope key prefix, oldest first.
func (s *Service) History(ctx context.Context, scopeKeyPrefix string) ([]quest.Attempt, error) {
	attempts, err := s.store.FindAttempts(ctx, scopeKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: find attempts: %w", ErrStoreUnavailable, err)
	}
	return attempts, nil
}

// Balance returns the user's credited points.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	points, err := s.store.PointsBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: points balance: %w", ErrStoreUnavailable, err)
	}
	return points, nil
}

func (s *Service) history(ctx context.Context, scopeKey string) ([]quest.Attempt, error) {
	all, err := s.History(ctx, scopeKey)
	if err != nil {
		return nil, err
	}
	// prefix lookups can return longer keys (quest "a" vs "ab")
	exact := all[:0:0]
	for _, a := range all {
		if a.ScopeKey == scopeKey {
			exact = append(exact, a)
		}
	}
	return exact, nil
}

func (s *Service) decide(req IssueRequest, prior []quest.Attempt, claim bool) (quest.Attempt, *quest.RewardGrant) {
	now := s.now().UTC()
	record := quest.Attempt{
		ID:           uuid.New(),
		UserID:       req.UserID,
		ScopeKey:     req.ScopeKey,
		SubmissionID: req.SubmissionID,
		QuestID:      req.QuestID,
		Kind:         req.Kind,
		SubmittedAt:  now,
		Result:       req.Result.ToRecord(),
		Passed:       req.Outcome.Passed,
		Rank:         req.Outcome.Rank,
	}
	if !claim {
		return record, nil
	}

	record.FirstClear = req.Outcome.Passed && !anyPassed(prior)

	eligible := false
	switch req.Policy {
	case quest.PolicyFirstClear:
		eligible = record.FirstClear
	case quest.PolicyPerDay:
		eligible = len(prior) == 0
	}
	if !eligible || req.RewardPoints <= 0 {
		return record, nil
	}

	record.RewardPointsAwarded = req.RewardPoints
	return record, &quest.RewardGrant{
		GrantKey:  req.ScopeKey,
		AttemptID: record.ID,
		UserID:    req.UserID,
		Points:    req.RewardPoints,
		Policy:    req.Policy,
		GrantedAt: now,
	}
}

func (s *Service) replay(existing quest.Attempt) Decision {
	s.metrics.replays.Inc()
	s.logger.Info().
		Str("scope_key", existing.ScopeKey).
		Str("submission_id", existing.SubmissionID).
		Msg("duplicate submission answered from stored attempt")
	return Decision{
		IsCleared:           existing.Passed,
		IsFirstClear:        existing.FirstClear,
		RewardPointsAwarded: existing.RewardPointsAwarded,
		Attempt:             existing,
		Replayed:            true,
	}
}

func (s *Service) credit(ctx context.Context, userID uuid.UUID, points int) {
	if s.recorder == nil || points <= 0 {
		return
	}
	if err := s.recorder.RecordReward(ctx, userID, points); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to record reward on leaderboard")
	}
}

func anyPassed(attempts []quest.Attempt) bool {
	for _, a := range attempts {
		if a.Passed {
			return true
		}
	}
	return false
}

func findSubmission(attempts []quest.Attempt, submissionID string) *quest.Attempt {
	for i := range attempts {
		if attempts[i].SubmissionID == submissionID {
			return &attempts[i]
		}
	}
	return nil
}
