package question

import (
	"context"
	"time"

	"github.com/gokatarajesh/quest-engine/internal/quest"
)

// Scope selects the question set a session runs on.
type Scope struct {
	Kind    string    // quest.KindOneShot, quest.KindDaily or quest.KindDeck
	QuestID string    // quest or deck id; the challenge kind for daily sets
	Day     time.Time // daily sets only
	Seed    string    // deck shuffle seed; empty keeps authored order
}

// QuestScope is the scope of a one-shot quest.
func QuestScope(questID string) Scope {
	return Scope{Kind: quest.KindOneShot, QuestID: questID}
}

// DailyScope is the scope of a daily challenge kind on day.
func DailyScope(kind string, day time.Time) Scope {
	return Scope{Kind: quest.KindDaily, QuestID: kind, Day: day}
}

// DeckScope is the scope of a drill deck. A non-empty seed shuffles it.
func DeckScope(deckID, seed string) Scope {
	return Scope{Kind: quest.KindDeck, QuestID: deckID, Seed: seed}
}

// Pack is a loaded question set together with the quest it was built from.
type Pack struct {
	Quest quest.Quest       `json:"quest"`
	Set   quest.QuestionSet `json:"set"`
	Date  string            `json:"date,omitempty"`
}

// QuestStore supplies quest definitions and their question banks.
type QuestStore interface {
	GetQuest(ctx context.Context, questID string) (quest.Quest, error)
	QuestionsFor(ctx context.Context, questID string) ([]quest.Question, error)
}

// SetCache stores built packs by key.
type SetCache interface {
	Get(ctx context.Context, key string) (*Pack, error)
	Set(ctx context.Context, key string, pack Pack) error
}
