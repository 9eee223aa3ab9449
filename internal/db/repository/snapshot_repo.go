package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNoSnapshot is returned when a window has never been persisted.
var ErrNoSnapshot = errors.New("no leaderboard snapshot")

const (
	insertSnapshotSQL = `INSERT INTO leaderboard_snapshots (time_window, generated_at, entries, source_hash)
		VALUES ($1, $2, $3, $4)`

	latestSnapshotSQL = `SELECT generated_at, entries, source_hash
		FROM leaderboard_snapshots
		WHERE time_window = $1
		ORDER BY generated_at DESC
		LIMIT 1`
)

// Snapshot is one persisted copy of a leaderboard window. Entries is the
// JSON-encoded entry list.
type Snapshot struct {
	Window      string
	GeneratedAt time.Time
	Entries     []byte
	SourceHash  string
}

// SnapshotRepository stores leaderboard snapshots.
type SnapshotRepository struct {
	db DBTX
}

func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert persists a snapshot.
func (r *SnapshotRepository) Insert(ctx context.Context, s Snapshot) error {
	if _, err := r.db.Exec(ctx, insertSnapshotSQL, s.Window, s.GeneratedAt, s.Entries, s.SourceHash); err != nil {
		return fmt.Errorf("insert leaderboard snapshot: %w", err)
	}
	return nil
}

// Latest returns the newest snapshot of window, or ErrNoSnapshot.
func (r *SnapshotRepository) Latest(ctx context.Context, window string) (Snapshot, error) {
	s := Snapshot{Window: window}
	err := r.db.QueryRow(ctx, latestSnapshotSQL, window).Scan(&s.GeneratedAt, &s.Entries, &s.SourceHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("latest leaderboard snapshot: %w", err)
	}
	return s, nil
}
