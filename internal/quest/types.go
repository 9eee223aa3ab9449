package quest

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies how a question set is sourced and rewarded.
const (
	KindOneShot = "one_shot" // temporary quest, first clear pays
	KindDaily   = "daily"    // daily challenge, pays once per calendar day
	KindDeck    = "deck"     // drill / flashcard deck, no reward
)

// Reward policies.
const (
	PolicyFirstClear = "first_clear"
	PolicyPerDay     = "per_day"
	PolicyNone       = "none"
)

// Question is a single multiple-choice item. CorrectAnswer indexes Choices.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Choices       []string `json:"choices"`
	CorrectAnswer int      `json:"correct_answer"`
	Points        int      `json:"points"`
	Explanation   string   `json:"explanation,omitempty"`
	AudioURL      string   `json:"audio_url,omitempty"`
}

// QuestionSet is the ordered list of questions for one session. It is never
// modified after the provider hands it out.
type QuestionSet struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Questions []Question `json:"questions"`
}

// Answer is the user's selection for one question. Unanswered questions have
// no Answer at all.
type Answer struct {
	QuestionID    string `json:"question_id"`
	SelectedIndex int    `json:"selected_index"`
}

// Quest is the authoring-side definition a set is built from.
type Quest struct {
	ID           string
	Title        string
	Kind         string
	PassingScore int
	RewardPoints int
	Policy       string
	Published    bool
	StartsAt     *time.Time
	ExpiresAt    *time.Time
	QuestionIDs  []string
}

// Attempt is one graded submission. Attempts are append-only.
type Attempt struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	ScopeKey            string    `json:"scope_key"`
	SubmissionID        string    `json:"submission_id"`
	QuestID             string    `json:"quest_id"`
	Kind                string    `json:"kind"`
	SubmittedAt         time.Time `json:"submitted_at"`
	Result              Result    `json:"result"`
	Passed              bool      `json:"passed"`
	Rank                string    `json:"rank,omitempty"`
	RewardPointsAwarded int       `json:"reward_points_awarded"`
	FirstClear          bool      `json:"first_clear"`
}

// Result is the persisted summary of a graded submission.
type Result struct {
	Score       int            `json:"score"`
	TotalPoints int            `json:"total_points"`
	Percentage  int            `json:"percentage"`
	Answers     []AnswerRecord `json:"answers"`
}

// AnswerRecord stores the per-question outcome inside an attempt.
type AnswerRecord struct {
	QuestionID    string `json:"question_id"`
	SelectedIndex *int   `json:"selected_index"`
	Correct       bool   `json:"correct"`
	PointsEarned  int    `json:"points_earned"`
}

// RewardGrant records points credited for a grant key. At most one grant
// exists per key.
type RewardGrant struct {
	GrantKey  string    `json:"grant_key"`
	AttemptID uuid.UUID `json:"attempt_id"`
	UserID    uuid.UUID `json:"user_id"`
	Points    int       `json:"points"`
	Policy    string    `json:"policy"`
	GrantedAt time.Time `json:"granted_at"`
}
