package reward

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quest-engine/internal/quest"
)

var (
	// ErrDecisionConflict is returned by a store when a concurrent commit
	// already took the first clear or the grant for the key. Nothing from the
	// losing call was written.
	ErrDecisionConflict = errors.New("first clear or reward already recorded for key")
	// ErrStoreUnavailable wraps transient persistence failures.
	ErrStoreUnavailable = errors.New("attempt store unavailable")
)

// InsertResult reports whether an attempt was written. When an attempt with
// the same scope key and submission id already exists, Inserted is false and
// Existing holds the stored attempt.
type InsertResult struct {
	Inserted bool
	Existing *quest.Attempt
}

// AttemptStore is the persistence contract the engine needs.
//
// InsertAttemptIfAbsent must be atomic: the attempt (unique on scope key +
// submission id, and at most one FirstClear attempt per scope key) and the
// optional grant (unique on grant key) are written in one transaction or not
// at all.
type AttemptStore interface {
	FindAttempts(ctx context.Context, scopeKeyPrefix string) ([]quest.Attempt, error)
	InsertAttemptIfAbsent(ctx context.Context, scopeKey string, attempt quest.Attempt, grant *quest.RewardGrant) (InsertResult, error)
	PointsBalance(ctx context.Context, userID uuid.UUID) (int, error)
}

// Recorder receives granted points, e.g. for leaderboards.
type Recorder interface {
	RecordReward(ctx context.Context, userID uuid.UUID, points int) error
}
