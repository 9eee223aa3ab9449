// Package grading is the pure grading engine. The same functions back the
// optimistic per-question feedback of a session and the authoritative
// re-grade done at submission, so both always agree.
package grading

import (
	"github.com/gokatarajesh/quest-engine/internal/quest"
)

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionID    string `json:"question_id"`
	SelectedIndex *int   `json:"selected_index"`
	Correct       bool   `json:"correct"`
	CorrectAnswer int    `json:"correct_answer"`
	Points        int    `json:"points"`
	PointsEarned  int    `json:"earned_points"`
}

// GradedResult aggregates a whole submission.
type GradedResult struct {
	PerQuestion []QuestionResult `json:"answers"`
	Score       int              `json:"score"`
	TotalPoints int              `json:"total_points"`
	Percentage  int              `json:"percentage"`
}

// Grade compares answers with the answer key of set. Answers are matched by
// question id, so their order does not matter. A missing answer, or one whose
// selection is out of range, earns nothing. When the same question id appears
// more than once the last answer wins.
//
// The only error is quest.ErrEmptyQuestionSet; sets are validated when they
// are loaded so this is not expected at submission time.
func Grade(set quest.QuestionSet, answers []quest.Answer) (GradedResult, error) {
	total := set.TotalPoints()
	if len(set.Questions) == 0 || total <= 0 {
		return GradedResult{}, quest.ErrEmptyQuestionSet
	}

	selected := make(map[string]int, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.SelectedIndex
	}

	result := GradedResult{
		PerQuestion: make([]QuestionResult, len(set.Questions)),
		TotalPoints: total,
	}
	for i, q := range set.Questions {
		qr := QuestionResult{
			QuestionID:    q.ID,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
		}
		if idx, ok := selected[q.ID]; ok {
			qr.SelectedIndex = &idx
			qr.Correct = isCorrect(q, idx)
		}
		if qr.Correct {
			qr.PointsEarned = q.Points
		}
		result.Score += qr.PointsEarned
		result.PerQuestion[i] = qr
	}

	result.Percentage = Percentage(result.Score, result.TotalPoints)
	return result, nil
}

// GradeOne grades a single question; used for instant feedback.
func GradeOne(q quest.Question, selectedIndex int) QuestionResult {
	qr := QuestionResult{
		QuestionID:    q.ID,
		SelectedIndex: &selectedIndex,
		CorrectAnswer: q.CorrectAnswer,
		Points:        q.Points,
		Correct:       isCorrect(q, selectedIndex),
	}
	if qr.Correct {
		qr.PointsEarned = q.Points
	}
	return qr
}

func isCorrect(q quest.Question, idx int) bool {
	return idx >= 0 && idx < len(q.Choices) && idx == q.CorrectAnswer
}

// Percentage returns round-half-up(score/total*100) using integer arithmetic
// only, clamped to [0, 100]. total must be positive.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	if score < 0 {
		score = 0
	}
	if score > total {
		score = total
	}
	return (score*200 + total) / (2 * total)
}

// ToRecord converts a graded result into the persisted attempt form.
func (r GradedResult) ToRecord() quest.Result {
	out := quest.Result{
		Score:       r.Score,
		TotalPoints: r.TotalPoints,
		Percentage:  r.Percentage,
		Answers:     make([]quest.AnswerRecord, len(r.PerQuestion)),
	}
	for i, qr := range r.PerQuestion {
		out.Answers[i] = quest.AnswerRecord{
			QuestionID:    qr.QuestionID,
			SelectedIndex: qr.SelectedIndex,
			Correct:       qr.Correct,
			PointsEarned:  qr.PointsEarned,
		}
	}
	return out
}

// FromRecord rebuilds a graded result from a stored attempt. The answer key
// and point values are taken from set; selections, correctness and earned
// points come from the record as they were graded.
func FromRecord(set quest.QuestionSet, rec quest.Result) GradedResult {
	out := GradedResult{
		PerQuestion: make([]QuestionResult, len(rec.Answers)),
		Score:       rec.Score,
		TotalPoints: rec.TotalPoints,
		Percentage:  rec.Percentage,
	}
	for i, ar := range rec.Answers {
		qr := QuestionResult{
			QuestionID:    ar.QuestionID,
			SelectedIndex: ar.SelectedIndex,
			Correct:       ar.Correct,
			PointsEarned:  ar.PointsEarned,
		}
		if q, ok := set.Question(ar.QuestionID); ok {
			qr.CorrectAnswer = q.CorrectAnswer
			qr.Points = q.Points
		}
		out.PerQuestion[i] = qr
	}
	return out
}
