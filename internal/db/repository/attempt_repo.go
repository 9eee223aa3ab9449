package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/reward"
)

const (
	attemptColumns = `id, user_id, scope_key, submission_id, quest_id, kind, submitted_at,
		result, passed, rank, reward_points_awarded, first_clear`

	findAttemptsSQL = `SELECT ` + attemptColumns + `
		FROM attempts
		WHERE scope_key LIKE $1 ESCAPE '\'
		ORDER BY submitted_at, id`

	findSubmissionSQL = `SELECT ` + attemptColumns + `
		FROM attempts
		WHERE scope_key = $1 AND submission_id = $2`

	insertAttemptSQL = `INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (scope_key, submission_id) DO NOTHING`

	insertGrantSQL = `INSERT INTO reward_grants (grant_key, attempt_id, user_id, points, policy, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	pointsBalanceSQL = `SELECT COALESCE(SUM(points), 0) FROM reward_grants WHERE user_id = $1`
)

// AttemptRepository persists attempts and reward grants in Postgres. The
// uniqueness rules live in the schema:
//   - attempts (scope_key, submission_id) unique
//   - attempts_first_clear_idx: one first_clear row per scope_key
//   - reward_grants primary key grant_key
type AttemptRepository struct {
	db DBTX
}

var _ reward.AttemptStore = (*AttemptRepository)(nil)

func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// FindAttempts returns attempts whose scope key starts with prefix, oldest first.
func (r *AttemptRepository) FindAttempts(ctx context.Context, prefix string) ([]quest.Attempt, error) {
	rows, err := r.db.Query(ctx, findAttemptsSQL, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []quest.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// InsertAttemptIfAbsent writes the attempt and the optional grant in one
// transaction. A unique violation on the first-clear index or on the grant
// key rolls back both and reports reward.ErrDecisionConflict.
func (r *AttemptRepository) InsertAttemptIfAbsent(ctx context.Context, scopeKey string, attempt quest.Attempt, grant *quest.RewardGrant) (reward.InsertResult, error) {
	result, err := json.Marshal(attempt.Result)
	if err != nil {
		return reward.InsertResult{}, fmt.Errorf("encode attempt result: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return reward.InsertResult{}, fmt.Errorf("begin attempt tx: %w", err)
	}
	defer rollback(ctx, tx)

	tag, err := tx.Exec(ctx, insertAttemptSQL,
		attempt.ID, attempt.UserID, scopeKey, attempt.SubmissionID, attempt.QuestID, attempt.Kind,
		attempt.SubmittedAt, result, attempt.Passed, attempt.Rank, attempt.RewardPointsAwarded, attempt.FirstClear,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return reward.InsertResult{}, reward.ErrDecisionConflict
		}
		return reward.InsertResult{}, fmt.Errorf("insert attempt: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := scanAttempt(tx.QueryRow(ctx, findSubmissionSQL, scopeKey, attempt.SubmissionID))
		if err != nil {
			return reward.InsertResult{}, err
		}
		return reward.InsertResult{Existing: &existing}, nil
	}

	if grant != nil {
		_, err := tx.Exec(ctx, insertGrantSQL,
			grant.GrantKey, grant.AttemptID, grant.UserID, grant.Points, grant.Policy, grant.GrantedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return reward.InsertResult{}, reward.ErrDecisionConflict
			}
			return reward.InsertResult{}, fmt.Errorf("insert reward grant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return reward.InsertResult{}, reward.ErrDecisionConflict
		}
		return reward.InsertResult{}, fmt.Errorf("commit attempt tx: %w", err)
	}
	return reward.InsertResult{Inserted: true}, nil
}

// PointsBalance sums the user's reward grants.
func (r *AttemptRepository) PointsBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int64
	if err := r.db.QueryRow(ctx, pointsBalanceSQL, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum reward grants: %w", err)
	}
	return int(total), nil
}

func scanAttempt(row pgx.Row) (quest.Attempt, error) {
	var (
		a      quest.Attempt
		result []byte
	)
	err := row.Scan(&a.ID, &a.UserID, &a.ScopeKey, &a.SubmissionID, &a.QuestID, &a.Kind, &a.SubmittedAt,
		&result, &a.Passed, &a.Rank, &a.RewardPointsAwarded, &a.FirstClear)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quest.Attempt{}, fmt.Errorf("attempt vanished after conflict: %w", err)
		}
		return quest.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	if err := json.Unmarshal(result, &a.Result); err != nil {
		return quest.Attempt{}, fmt.Errorf("decode attempt result: %w", err)
	}
	a.SubmittedAt = a.SubmittedAt.UTC()
	return a, nil
}
