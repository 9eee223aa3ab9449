package quest

import "errors"

var (
	// ErrQuestNotFound is returned when no quest or daily kind matches the id.
	ErrQuestNotFound = errors.New("quest not found")
	// ErrQuestUnpublished is returned for quests that are not yet live.
	ErrQuestUnpublished = errors.New("quest is not published")
	// ErrQuestExpired is returned outside the quest's availability window.
	ErrQuestExpired = errors.New("quest is expired")
	// ErrUnknownQuestion means a submitted question id is not part of the set.
	ErrUnknownQuestion = errors.New("question does not belong to this set")
	// ErrEmptyQuestionSet marks a set with no questions or zero total points.
	ErrEmptyQuestionSet = errors.New("question set has no gradable points")
	// ErrInvalidAnswerKey marks a question whose correct answer is out of range.
	ErrInvalidAnswerKey = errors.New("correct answer is out of range")
)

// ValidationError describes a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
