package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gokatarajesh/quest-engine/internal/quest"
)

const (
	getQuestSQL = `SELECT id, title, kind, passing_score, reward_points, policy, published, starts_at, expires_at
		FROM quests WHERE id = $1`

	questQuestionsSQL = `SELECT q.id, q.prompt, q.choices, q.correct_answer, q.points, q.explanation, q.audio_url
		FROM quest_questions qq
		JOIN questions q ON q.id = qq.question_id
		WHERE qq.quest_id = $1
		ORDER BY qq.position`

	upsertQuestSQL = `INSERT INTO quests (id, title, kind, passing_score, reward_points, policy, published, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			kind = EXCLUDED.kind,
			passing_score = EXCLUDED.passing_score,
			reward_points = EXCLUDED.reward_points,
			policy = EXCLUDED.policy,
			published = EXCLUDED.published,
			starts_at = EXCLUDED.starts_at,
			expires_at = EXCLUDED.expires_at`

	upsertQuestionSQL = `INSERT INTO questions (id, prompt, choices, correct_answer, points, explanation, audio_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			choices = EXCLUDED.choices,
			correct_answer = EXCLUDED.correct_answer,
			points = EXCLUDED.points,
			explanation = EXCLUDED.explanation,
			audio_url = EXCLUDED.audio_url`

	clearQuestQuestionsSQL = `DELETE FROM quest_questions WHERE quest_id = $1`

	linkQuestionSQL = `INSERT INTO quest_questions (quest_id, question_id, position) VALUES ($1, $2, $3)`
)

// QuestRepository reads quest definitions and their question banks.
type QuestRepository struct {
	db DBTX
}

func NewQuestRepository(db DBTX) *QuestRepository {
	return &QuestRepository{db: db}
}

// GetQuest loads a quest with its ordered question ids.
func (r *QuestRepository) GetQuest(ctx context.Context, questID string) (quest.Quest, error) {
	var q quest.Quest
	err := r.db.QueryRow(ctx, getQuestSQL, questID).Scan(
		&q.ID, &q.Title, &q.Kind, &q.PassingScore, &q.RewardPoints, &q.Policy, &q.Published, &q.StartsAt, &q.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quest.Quest{}, quest.ErrQuestNotFound
		}
		return quest.Quest{}, fmt.Errorf("get quest %s: %w", questID, err)
	}

	questions, err := r.QuestionsFor(ctx, questID)
	if err != nil {
		return quest.Quest{}, err
	}
	q.QuestionIDs = make([]string, len(questions))
	for i, item := range questions {
		q.QuestionIDs[i] = item.ID
	}
	return q, nil
}

// QuestionsFor returns the quest's questions by position.
func (r *QuestRepository) QuestionsFor(ctx context.Context, questID string) ([]quest.Question, error) {
	rows, err := r.db.Query(ctx, questQuestionsSQL, questID)
	if err != nil {
		return nil, fmt.Errorf("query quest questions: %w", err)
	}
	defer rows.Close()

	var out []quest.Question
	for rows.Next() {
		var (
			item    quest.Question
			choices []byte
		)
		if err := rows.Scan(&item.ID, &item.Prompt, &choices, &item.CorrectAnswer, &item.Points, &item.Explanation, &item.AudioURL); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(choices, &item.Choices); err != nil {
			return nil, fmt.Errorf("decode choices of %s: %w", item.ID, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// SaveQuest upserts a quest and replaces its question list.
func (r *QuestRepository) SaveQuest(ctx context.Context, q quest.Quest, questions []quest.Question) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin quest tx: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, upsertQuestSQL,
		q.ID, q.Title, q.Kind, q.PassingScore, q.RewardPoints, q.Policy, q.Published, q.StartsAt, q.ExpiresAt); err != nil {
		return fmt.Errorf("upsert quest %s: %w", q.ID, err)
	}
	if _, err := tx.Exec(ctx, clearQuestQuestionsSQL, q.ID); err != nil {
		return fmt.Errorf("clear quest questions: %w", err)
	}
	for i, item := range questions {
		choices, err := json.Marshal(item.Choices)
		if err != nil {
			return fmt.Errorf("encode choices of %s: %w", item.ID, err)
		}
		points := item.Points
		if points <= 0 {
			points = 1
		}
		if _, err := tx.Exec(ctx, upsertQuestionSQL,
			item.ID, item.Prompt, choices, item.CorrectAnswer, points, item.Explanation, item.AudioURL); err != nil {
			return fmt.Errorf("upsert question %s: %w", item.ID, err)
		}
		if _, err := tx.Exec(ctx, linkQuestionSQL, q.ID, item.ID, i); err != nil {
			return fmt.Errorf("link question %s: %w", item.ID, err)
		}
	}
	return tx.Commit(ctx)
}
