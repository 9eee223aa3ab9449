//go:build integration
// +build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quest-engine/internal/db/migrations"
	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/reward"
)

// openTestPool migrates the database named by TEST_DATABASE_URL and returns a
// pool on it.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(sqlDB, "."))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestAttemptRepositoryIntegration(t *testing.T) {
	pool := openTestPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()

	user := uuid.New()
	key := reward.QuestScopeKey(user, "integration-"+uuid.NewString())
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := quest.Attempt{
		ID: uuid.New(), UserID: user, SubmissionID: "s1", QuestID: "q", Kind: quest.KindOneShot,
		SubmittedAt: now, Passed: true, Rank: "S", RewardPointsAwarded: 100, FirstClear: true,
		Result: quest.Result{Score: 3, TotalPoints: 3, Percentage: 100},
	}
	grant := &quest.RewardGrant{GrantKey: key, AttemptID: first.ID, UserID: user, Points: 100, Policy: quest.PolicyFirstClear, GrantedAt: now}

	res, err := repo.InsertAttemptIfAbsent(ctx, key, first, grant)
	require.NoError(t, err)
	assert.True(t, res.Inserted)

	dup := first
	dup.ID = uuid.New()
	res, err = repo.InsertAttemptIfAbsent(ctx, key, dup, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Existing)
	assert.Equal(t, first.ID, res.Existing.ID)
	assert.Equal(t, 100, res.Existing.Result.Percentage)

	second := first
	second.ID = uuid.New()
	second.SubmissionID = "s2"
	_, err = repo.InsertAttemptIfAbsent(ctx, key, second, nil)
	assert.ErrorIs(t, err, reward.ErrDecisionConflict)

	attempts, err := repo.FindAttempts(ctx, key)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)

	balance, err := repo.PointsBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestAttemptRepositoryConcurrentGrant(t *testing.T) {
	pool := openTestPool(t)
	repo := NewAttemptRepository(pool)
	ctx := context.Background()
	user := uuid.New()
	key := reward.DailyScopeKey(user, "listening", time.Now(), nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := quest.Attempt{ID: uuid.New(), UserID: user, SubmissionID: uuid.NewString(), Kind: quest.KindDaily, SubmittedAt: time.Now()}
			g := &quest.RewardGrant{GrantKey: key, AttemptID: a.ID, UserID: user, Points: 10, Policy: quest.PolicyPerDay, GrantedAt: time.Now()}
			res, err := repo.InsertAttemptIfAbsent(ctx, key, a, g)
			if err == nil && res.Inserted {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	balance, err := repo.PointsBalance(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestQuestRepositoryIntegration(t *testing.T) {
	pool := openTestPool(t)
	repo := NewQuestRepository(pool)
	ctx := context.Background()

	id := "quest-" + uuid.NewString()
	questions := []quest.Question{
		{ID: id + "-b", Prompt: "b?", Choices: []string{"x", "y"}, CorrectAnswer: 1, Points: 2},
		{ID: id + "-a", Prompt: "a?", Choices: []string{"x", "y"}},
	}
	require.NoError(t, repo.SaveQuest(ctx, quest.Quest{ID: id, Kind: quest.KindOneShot, Published: true, PassingScore: 80}, questions))

	q, err := repo.GetQuest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{id + "-b", id + "-a"}, q.QuestionIDs)
	assert.Equal(t, 80, q.PassingScore)

	loaded, err := repo.QuestionsFor(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, []string{"x", "y"}, loaded[0].Choices)
	assert.Equal(t, 1, loaded[1].Points)

	_, err = repo.GetQuest(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, quest.ErrQuestNotFound)
}

func TestSnapshotRepositoryIntegration(t *testing.T) {
	pool := openTestPool(t)
	repo := NewSnapshotRepository(pool)
	ctx := context.Background()
	window := "test-" + uuid.NewString()

	_, err := repo.Latest(ctx, window)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Insert(ctx, Snapshot{Window: window, GeneratedAt: now.Add(-time.Minute), Entries: []byte(`[]`), SourceHash: "old"}))
	require.NoError(t, repo.Insert(ctx, Snapshot{Window: window, GeneratedAt: now, Entries: []byte(`[{"rank":1}]`), SourceHash: "new"}))

	latest, err := repo.Latest(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.SourceHash)
	assert.JSONEq(t, `[{"rank":1}]`, string(latest.Entries))
}
