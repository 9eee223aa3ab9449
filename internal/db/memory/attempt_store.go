package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/reward"
)

// AttemptStore keeps the attempt ledger in process. A single mutex makes
// every insert atomic, which gives the same guarantees as the Postgres
// unique constraints.
type AttemptStore struct {
	mu       sync.Mutex
	attempts []quest.Attempt
	grants   map[string]quest.RewardGrant
}

var _ reward.AttemptStore = (*AttemptStore)(nil)

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{grants: make(map[string]quest.RewardGrant)}
}

// FindAttempts returns attempts whose scope key starts with prefix, in the
// order they were recorded.
func (s *AttemptStore) FindAttempts(_ context.Context, prefix string) ([]quest.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []quest.Attempt
	for _, a := range s.attempts {
		if strings.HasPrefix(a.ScopeKey, prefix) {
			out = append(out, a)
		}
	}
	return out, nil
}

// InsertAttemptIfAbsent records attempt and grant together.
func (s *AttemptStore) InsertAttemptIfAbsent(_ context.Context, scopeKey string, attempt quest.Attempt, grant *quest.RewardGrant) (reward.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt.ScopeKey = scopeKey
	for i := range s.attempts {
		a := s.attempts[i]
		if a.ScopeKey != scopeKey {
			continue
		}
		if a.SubmissionID == attempt.SubmissionID {
			existing := a
			return reward.InsertResult{Existing: &existing}, nil
		}
		if attempt.FirstClear && a.FirstClear {
			return reward.InsertResult{}, reward.ErrDecisionConflict
		}
	}
	if grant != nil {
		if _, taken := s.grants[grant.GrantKey]; taken {
			return reward.InsertResult{}, reward.ErrDecisionConflict
		}
		s.grants[grant.GrantKey] = *grant
	}
	s.attempts = append(s.attempts, attempt)
	return reward.InsertResult{Inserted: true}, nil
}

// PointsBalance sums the user's grants.
func (s *AttemptStore) PointsBalance(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, g := range s.grants {
		if g.UserID == userID {
			total += g.Points
		}
	}
	return total, nil
}

// Grants returns a copy of all grants; used by tests.
func (s *AttemptStore) Grants() []quest.RewardGrant {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]quest.RewardGrant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, g)
	}
	return out
}
