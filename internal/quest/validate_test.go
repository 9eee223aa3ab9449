package quest

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSet() QuestionSet {
	return QuestionSet{
		ID:   "q-1",
		Kind: KindOneShot,
		Questions: []Question{
			{ID: "a", Choices: []string{"x", "y"}, CorrectAnswer: 0, Points: 1},
			{ID: "b", Choices: []string{"x", "y", "z"}, CorrectAnswer: 2},
		},
	}
}

func TestNormalizeDefaultsPoints(t *testing.T) {
	set := sampleSet()
	set.Normalize()
	assert.Equal(t, 1, set.Questions[1].Points)
	assert.Equal(t, 2, set.TotalPoints())
}

func TestValidateRejectsBrokenSets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*QuestionSet)
		target error
	}{
		{"empty", func(s *QuestionSet) { s.Questions = nil }, ErrEmptyQuestionSet},
		{"answer key too large", func(s *QuestionSet) { s.Questions[0].CorrectAnswer = 2 }, ErrInvalidAnswerKey},
		{"answer key negative", func(s *QuestionSet) { s.Questions[0].CorrectAnswer = -1 }, ErrInvalidAnswerKey},
		{"zero total", func(s *QuestionSet) {
			s.Questions[0].Points = 0
			s.Questions[1].Points = 0
		}, ErrEmptyQuestionSet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := sampleSet()
			tt.mutate(&set)
			err := set.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	set := sampleSet()
	set.Questions[1].ID = "a"
	assert.Error(t, set.Validate())
}

func TestCheckAnswers(t *testing.T) {
	set := sampleSet()
	assert.NoError(t, set.CheckAnswers([]Answer{{QuestionID: "a", SelectedIndex: 1}}))
	assert.NoError(t, set.CheckAnswers(nil))

	err := set.CheckAnswers([]Answer{{QuestionID: "zzz"}})
	assert.ErrorIs(t, err, ErrUnknownQuestion)

	var vErr *ValidationError
	assert.ErrorAs(t, set.CheckAnswers([]Answer{{}}), &vErr)
}

func TestCloneIsIndependent(t *testing.T) {
	set := sampleSet()
	clone := set.Clone()
	clone.Questions[0].Choices[0] = "changed"
	assert.Equal(t, "x", set.Questions[0].Choices[0])
}

func TestQuestAvailability(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.ErrorIs(t, Quest{}.Available(now), ErrQuestUnpublished)
	assert.NoError(t, Quest{Published: true}.Available(now))
	assert.ErrorIs(t, Quest{Published: true, StartsAt: &future}.Available(now), ErrQuestUnpublished)
	assert.ErrorIs(t, Quest{Published: true, ExpiresAt: &past}.Available(now), ErrQuestExpired)
	assert.ErrorIs(t, Quest{Published: true, ExpiresAt: &now}.Available(now), ErrQuestExpired)
	assert.NoError(t, Quest{Published: true, StartsAt: &past, ExpiresAt: &future}.Available(now))
}

func TestRewardPolicyDefaults(t *testing.T) {
	assert.Equal(t, PolicyFirstClear, Quest{Kind: KindOneShot}.RewardPolicy())
	assert.Equal(t, PolicyPerDay, Quest{Kind: KindDaily}.RewardPolicy())
	assert.Equal(t, PolicyNone, Quest{Kind: KindDeck}.RewardPolicy())
	assert.Equal(t, PolicyNone, Quest{Kind: KindOneShot, Policy: PolicyNone}.RewardPolicy())
}
