package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gokatarajesh/quest-engine/internal/quest"
)

// QuestStore serves quest definitions and their questions from memory.
type QuestStore struct {
	mu        sync.RWMutex
	quests    map[string]quest.Quest
	questions map[string]quest.Question
}

func NewQuestStore() *QuestStore {
	return &QuestStore{
		quests:    make(map[string]quest.Quest),
		questions: make(map[string]quest.Question),
	}
}

// Put stores a quest and its questions. The quest's QuestionIDs follow the
// order of questions.
func (s *QuestStore) Put(q quest.Quest, questions []quest.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.QuestionIDs = make([]string, len(questions))
	for i, item := range questions {
		item.Choices = append([]string(nil), item.Choices...)
		s.questions[item.ID] = item
		q.QuestionIDs[i] = item.ID
	}
	s.quests[q.ID] = q
}

// GetQuest returns quest.ErrQuestNotFound for unknown ids.
func (s *QuestStore) GetQuest(_ context.Context, questID string) (quest.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quests[questID]
	if !ok {
		return quest.Quest{}, quest.ErrQuestNotFound
	}
	q.QuestionIDs = append([]string(nil), q.QuestionIDs...)
	return q, nil
}

// QuestionsFor returns the quest's questions in authored order.
func (s *QuestStore) QuestionsFor(_ context.Context, questID string) ([]quest.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quests[questID]
	if !ok {
		return nil, quest.ErrQuestNotFound
	}
	out := make([]quest.Question, 0, len(q.QuestionIDs))
	for _, id := range q.QuestionIDs {
		item, ok := s.questions[id]
		if !ok {
			return nil, fmt.Errorf("quest %s references missing question %s", questID, id)
		}
		item.Choices = append([]string(nil), item.Choices...)
		out = append(out, item)
	}
	return out, nil
}

// LoadSeedFile fills the store from a quest catalog file.
func (s *QuestStore) LoadSeedFile(path string) error {
	entries, err := quest.LoadCatalog(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.Put(e.Quest, e.Questions)
	}
	return nil
}
