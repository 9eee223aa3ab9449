package session

import (
	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
	"github.com/gokatarajesh/quest-engine/internal/submission"
)

// QuestionView is a question as shown to the player; it never carries the
// answer key.
type QuestionView struct {
	ID       string   `json:"id"`
	Prompt   string   `json:"prompt"`
	Choices  []string `json:"choices"`
	Points   int      `json:"points"`
	AudioURL string   `json:"audio_url,omitempty"`
}

// PublicQuestion strips the answer key and explanation from q.
func PublicQuestion(q quest.Question) QuestionView {
	return QuestionView{
		ID:       q.ID,
		Prompt:   q.Prompt,
		Choices:  append([]string(nil), q.Choices...),
		Points:   q.Points,
		AudioURL: q.AudioURL,
	}
}

// Snapshot is the render model of a session.
type Snapshot struct {
	Phase    Phase                   `json:"phase"`
	SetID    string                  `json:"set_id,omitempty"`
	Index    int                     `json:"index"`
	Total    int                     `json:"total"`
	Answered int                     `json:"answered"`
	Loading  bool                    `json:"loading,omitempty"`
	Question *QuestionView           `json:"question,omitempty"`
	Selected *int                    `json:"selected_index,omitempty"`
	Feedback *grading.QuestionResult `json:"feedback,omitempty"`

	// Result phase. Receipt stays nil until the submission succeeded.
	Submitting  bool                `json:"submitting,omitempty"`
	Receipt     *submission.Receipt `json:"receipt,omitempty"`
	SubmitError string              `json:"submit_error,omitempty"`
	CanRetry    bool                `json:"can_retry,omitempty"`
}

func snapshotOf(s State) Snapshot {
	snap := Snapshot{
		Phase:    s.Phase,
		SetID:    s.Set.ID,
		Index:    s.Index,
		Total:    len(s.Set.Questions),
		Answered: len(s.Answers),
		Loading:  s.Loading,
	}
	if s.Phase != PhasePlaying && s.Phase != PhaseAnswered {
		return snap
	}
	q, ok := s.Current()
	if !ok {
		return snap
	}
	view := PublicQuestion(q)
	snap.Question = &view
	if idx, locked := s.Answers[q.ID]; locked {
		snap.Selected = &idx
		if fb, ok := s.Feedback[q.ID]; ok {
			snap.Feedback = &fb
		}
	}
	return snap
}
