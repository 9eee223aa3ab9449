package quest

import (
	"fmt"
	"time"
)

// Normalize fills defaults in place. Zero points become 1.
func (s *QuestionSet) Normalize() {
	for i := range s.Questions {
		if s.Questions[i].Points == 0 {
			s.Questions[i].Points = 1
		}
	}
}

// Validate rejects sets that must never start a session: no questions,
// duplicate ids, negative weights or an answer key outside the choices.
func (s QuestionSet) Validate() error {
	if len(s.Questions) == 0 {
		return fmt.Errorf("set %s: %w", s.ID, ErrEmptyQuestionSet)
	}
	seen := make(map[string]struct{}, len(s.Questions))
	total := 0
	for _, q := range s.Questions {
		if q.ID == "" {
			return fmt.Errorf("set %s: question without id", s.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("set %s: duplicate question %s", s.ID, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Choices) {
			return fmt.Errorf("set %s question %s: %w", s.ID, q.ID, ErrInvalidAnswerKey)
		}
		if q.Points < 0 {
			return fmt.Errorf("set %s question %s: points must be positive", s.ID, q.ID)
		}
		total += q.Points
	}
	if total <= 0 {
		return fmt.Errorf("set %s: %w", s.ID, ErrEmptyQuestionSet)
	}
	return nil
}

// TotalPoints sums the question weights.
func (s QuestionSet) TotalPoints() int {
	total := 0
	for _, q := range s.Questions {
		total += q.Points
	}
	return total
}

// Contains reports whether the question id is part of the set.
func (s QuestionSet) Contains(questionID string) bool {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

// Question returns the question with the given id.
func (s QuestionSet) Question(questionID string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}

// Clone returns a deep copy so callers cannot mutate a cached set.
func (s QuestionSet) Clone() QuestionSet {
	out := QuestionSet{ID: s.ID, Kind: s.Kind, Questions: make([]Question, len(s.Questions))}
	for i, q := range s.Questions {
		q.Choices = append([]string(nil), q.Choices...)
		out.Questions[i] = q
	}
	return out
}

// CheckAnswers validates a submission against the set. Every answer must
// reference a question of the set.
func (s QuestionSet) CheckAnswers(answers []Answer) error {
	for i, a := range answers {
		if a.QuestionID == "" {
			return &ValidationError{Field: fmt.Sprintf("answers[%d].question_id", i), Message: "question_id is required"}
		}
		if !s.Contains(a.QuestionID) {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, a.QuestionID)
		}
	}
	return nil
}

// Available reports whether a quest can be played at now.
func (q Quest) Available(now time.Time) error {
	if !q.Published {
		return ErrQuestUnpublished
	}
	if q.StartsAt != nil && now.Before(*q.StartsAt) {
		return ErrQuestUnpublished
	}
	if q.ExpiresAt != nil && !now.Before(*q.ExpiresAt) {
		return ErrQuestExpired
	}
	return nil
}

// RewardPolicy returns the effective reward policy for the quest kind.
func (q Quest) RewardPolicy() string {
	if q.Policy != "" {
		return q.Policy
	}
	switch q.Kind {
	case KindOneShot:
		return PolicyFirstClear
	case KindDaily:
		return PolicyPerDay
	default:
		return PolicyNone
	}
}
