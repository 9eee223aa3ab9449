package reward_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quest-engine/internal/db/memory"
	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
	"github.com/gokatarajesh/quest-engine/internal/reward"
)

func sampleSet() quest.QuestionSet {
	return quest.QuestionSet{
		ID:   "q1",
		Kind: quest.KindOneShot,
		Questions: []quest.Question{
			{ID: "a", Choices: []string{"x", "y"}, CorrectAnswer: 0, Points: 1},
			{ID: "b", Choices: []string{"x", "y"}, CorrectAnswer: 1, Points: 1},
			{ID: "c", Choices: []string{"x", "y"}, CorrectAnswer: 0, Points: 1},
		},
	}
}

// questRequest grades `correct` right answers out of three against a 80%
// passing score.
func questRequest(t *testing.T, userID uuid.UUID, correct int) reward.IssueRequest {
	t.Helper()
	set := sampleSet()
	answers := make([]quest.Answer, 0, len(set.Questions))
	for i, q := range set.Questions {
		idx := q.CorrectAnswer
		if i >= correct {
			idx = 1 - q.CorrectAnswer
		}
		answers = append(answers, quest.Answer{QuestionID: q.ID, SelectedIndex: idx})
	}
	result, err := grading.Grade(set, answers)
	require.NoError(t, err)
	return reward.IssueRequest{
		UserID:       userID,
		QuestID:      set.ID,
		Kind:         quest.KindOneShot,
		Policy:       quest.PolicyFirstClear,
		ScopeKey:     reward.QuestScopeKey(userID, set.ID),
		RewardPoints: 100,
		Result:       result,
		Outcome:      grading.Evaluate(result, 80, grading.DefaultRankTable()),
	}
}

func newService(store reward.AttemptStore, opts reward.ServiceOptions) *reward.Service {
	return reward.NewService(store, opts, zerolog.Nop())
}

func TestIssueFirstClearOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()
	svc := newService(store, reward.ServiceOptions{})
	user := uuid.New()

	failed, err := svc.Issue(ctx, questRequest(t, user, 1))
	require.NoError(t, err)
	assert.False(t, failed.IsCleared)
	assert.False(t, failed.IsFirstClear)
	assert.Zero(t, failed.RewardPointsAwarded)
	assert.Equal(t, 33, failed.Attempt.Result.Percentage)
	assert.Equal(t, "C", failed.Attempt.Rank)

	cleared, err := svc.Issue(ctx, questRequest(t, user, 3))
	require.NoError(t, err)
	assert.True(t, cleared.IsCleared)
	assert.True(t, cleared.IsFirstClear)
	assert.Equal(t, 100, cleared.RewardPointsAwarded)
	assert.Equal(t, "S", cleared.Attempt.Rank)

	again, err := svc.Issue(ctx, questRequest(t, user, 3))
	require.NoError(t, err)
	assert.True(t, again.IsCleared)
	assert.False(t, again.IsFirstClear)
	assert.Zero(t, again.RewardPointsAwarded)
	assert.False(t, again.Replayed)

	history, err := svc.History(ctx, reward.QuestScopeKey(user, "q1"))
	require.NoError(t, err)
	assert.Len(t, history, 3)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
	assert.Len(t, store.Grants(), 1)
}

func TestIssueReplaysSameSubmission(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()
	svc := newService(store, reward.ServiceOptions{})
	user := uuid.New()

	req := questRequest(t, user, 3)
	req.SubmissionID = "sub-1"

	first, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	require.True(t, first.IsFirstClear)

	second, err := svc.Issue(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.True(t, second.IsFirstClear)
	assert.Equal(t, 100, second.RewardPointsAwarded)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)

	history, err := svc.History(ctx, req.ScopeKey)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestIssueConcurrentSubmissionsGrantOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAttemptStore()
	svc := newService(store, reward.ServiceOptions{MaxCommitRetries: 2})
	user := uuid.New()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firsts    int
		awarded   int
		decisions []reward.Decision
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.Issue(ctx, questRequest(t, user, 3))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			decisions = append(decisions, d)
			if d.IsFirstClear {
				firsts++
			}
			awarded += d.RewardPointsAwarded
		}()
	}
	wg.Wait()

	assert.Len(t, decisions, workers)
	assert.Equal(t, 1, firsts)
	assert.Equal(t, 100, awarded)
	assert.Len(t, store.Grants(), 1)

	history, err := svc.History(ctx, reward.QuestScopeKey(user, "q1"))
	require.NoError(t, err)
	assert.Len(t, history, workers)
}

func TestIssueScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.NewAttemptStore(), reward.ServiceOptions{})
	user := uuid.New()

	reqA := questRequest(t, user, 3)
	reqB := questRequest(t, user, 3)
	reqB.QuestID = "q10"
	reqB.ScopeKey = reward.QuestScopeKey(user, "q10")

	a, err := svc.Issue(ctx, reqA)
	require.NoError(t, err)
	b, err := svc.Issue(ctx, reqB)
	require.NoError(t, err)

	assert.True(t, a.IsFirstClear)
	assert.True(t, b.IsFirstClear)

	other, err := svc.Issue(ctx, questRequest(t, uuid.New(), 3))
	require.NoError(t, err)
	assert.True(t, other.IsFirstClear)
}

func TestIssuePerDayPolicy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	svc := newService(memory.NewAttemptStore(), reward.ServiceOptions{Now: func() time.Time { return now }})
	user := uuid.New()

	daily := func(correct int, day time.Time) reward.IssueRequest {
		req := questRequest(t, user, correct)
		req.Kind = quest.KindDaily
		req.Policy = quest.PolicyPerDay
		req.RewardPoints = 10
		req.ScopeKey = reward.DailyScopeKey(user, "listening", day, nil)
		return req
	}

	first, err := svc.Issue(ctx, daily(0, now))
	require.NoError(t, err)
	assert.Equal(t, 10, first.RewardPointsAwarded, "first play of the day pays regardless of score")
	assert.False(t, first.IsCleared)

	second, err := svc.Issue(ctx, daily(3, now))
	require.NoError(t, err)
	assert.Zero(t, second.RewardPointsAwarded)
	assert.True(t, second.IsFirstClear, "first passing attempt for the day")

	tomorrow, err := svc.Issue(ctx, daily(3, now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 10, tomorrow.RewardPointsAwarded)

	balance, err := svc.Balance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 20, balance)
}

func TestIssueNoRewardPolicy(t *testing.T) {
	svc := newService(memory.NewAttemptStore(), reward.ServiceOptions{})
	req := questRequest(t, uuid.New(), 3)
	req.Policy = quest.PolicyNone

	d, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, d.IsFirstClear)
	assert.Zero(t, d.RewardPointsAwarded)
}

func TestIssueValidatesRequest(t *testing.T) {
	svc := newService(memory.NewAttemptStore(), reward.ServiceOptions{})

	req := questRequest(t, uuid.New(), 3)
	req.UserID = uuid.Nil
	_, err := svc.Issue(context.Background(), req)
	var vErr *quest.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "user_id", vErr.Field)

	req = questRequest(t, uuid.New(), 3)
	req.ScopeKey = ""
	_, err = svc.Issue(context.Background(), req)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "scope_key", vErr.Field)
}

type failingStore struct {
	reward.AttemptStore
	err error
}

func (f failingStore) FindAttempts(context.Context, string) ([]quest.Attempt, error) {
	return nil, f.err
}

func TestIssueStoreUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	svc := newService(failingStore{AttemptStore: memory.NewAttemptStore(), err: cause}, reward.ServiceOptions{})

	_, err := svc.Issue(context.Background(), questRequest(t, uuid.New(), 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, reward.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}

// conflictStore reports a lost race on every claiming insert.
type conflictStore struct {
	*memory.AttemptStore
	conflicts int
}

func (c *conflictStore) InsertAttemptIfAbsent(ctx context.Context, key string, a quest.Attempt, g *quest.RewardGrant) (reward.InsertResult, error) {
	if a.FirstClear || g != nil {
		c.conflicts++
		return reward.InsertResult{}, reward.ErrDecisionConflict
	}
	return c.AttemptStore.InsertAttemptIfAbsent(ctx, key, a, g)
}

func TestIssueGivesUpClaimAfterRetries(t *testing.T) {
	store := &conflictStore{AttemptStore: memory.NewAttemptStore()}
	svc := newService(store, reward.ServiceOptions{MaxCommitRetries: 3})

	d, err := svc.Issue(context.Background(), questRequest(t, uuid.New(), 3))
	require.NoError(t, err)
	assert.Equal(t, 3, store.conflicts)
	assert.True(t, d.IsCleared)
	assert.False(t, d.IsFirstClear)
	assert.Zero(t, d.RewardPointsAwarded)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordReward(ctx context.Context, userID uuid.UUID, points int) error {
	return m.Called(ctx, userID, points).Error(0)
}

func TestIssueCreditsRecorder(t *testing.T) {
	user := uuid.New()
	rec := &mockRecorder{}
	rec.On("RecordReward", mock.Anything, user, 100).Return(errors.New("redis down")).Once()

	svc := newService(memory.NewAttemptStore(), reward.ServiceOptions{Recorder: rec})

	d, err := svc.Issue(context.Background(), questRequest(t, user, 3))
	require.NoError(t, err, "leaderboard failures do not fail the submission")
	assert.Equal(t, 100, d.RewardPointsAwarded)

	_, err = svc.Issue(context.Background(), questRequest(t, user, 3))
	require.NoError(t, err)
	rec.AssertExpectations(t)
}

// counterValue reads a counter from reg by name and label values.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestIssueMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newService(memory.NewAttemptStore(), reward.ServiceOptions{Metrics: reward.NewMetrics(reg)})
	user := uuid.New()

	req := questRequest(t, user, 3)
	req.SubmissionID = "dup"
	_, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Issue(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Issue(context.Background(), questRequest(t, user, 1))
	require.NoError(t, err)

	policy := map[string]string{"policy": quest.PolicyFirstClear}
	assert.InDelta(t, 1, counterValue(t, reg, "quest_rewards_granted_total", policy), 0)
	assert.InDelta(t, 100, counterValue(t, reg, "quest_reward_points_total", policy), 0)
	assert.InDelta(t, 1, counterValue(t, reg, "quest_idempotent_replays_total", nil), 0)
	assert.InDelta(t, 1, counterValue(t, reg, "quest_submissions_total",
		map[string]string{"kind": quest.KindOneShot, "outcome": "failed"}), 0)
	assert.InDelta(t, 1, counterValue(t, reg, "quest_submissions_total",
		map[string]string{"kind": quest.KindOneShot, "outcome": "passed"}), 0)
}
