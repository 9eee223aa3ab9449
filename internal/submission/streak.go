package submission

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quest-engine/internal/reward"
)

const dayLayout = "2006-01-02"

// Streak summarises consecutive days a daily challenge was played.
type Streak struct {
	Kind        string `json:"kind"`
	Current     int    `json:"current"`
	Longest     int    `json:"longest"`
	LastPlayed  string `json:"last_played,omitempty"`
	PlayedToday bool   `json:"played_today"`
}

// Streak derives the user's streak for a challenge kind from the attempt
// ledger. A streak is still current when the last play was yesterday.
func (s *Service) Streak(ctx context.Context, userID uuid.UUID, kind string) (Streak, error) {
	prefix := reward.DailyScopePrefix(userID, kind)
	attempts, err := s.rewards.History(ctx, prefix)
	if err != nil {
		return Streak{}, err
	}
	days := make([]string, 0, len(attempts))
	for _, a := range attempts {
		days = append(days, strings.TrimPrefix(a.ScopeKey, prefix))
	}
	st := computeStreak(days, reward.CalendarDate(s.now(), s.loc))
	st.Kind = kind
	return st, nil
}

func computeStreak(days []string, today string) Streak {
	seen := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		t, err := time.Parse(dayLayout, d)
		if err != nil {
			continue
		}
		seen[t] = struct{}{}
	}
	if len(seen) == 0 {
		return Streak{}
	}

	sorted := make([]time.Time, 0, len(seen))
	for t := range seen {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var st Streak
	run := 0
	for i, t := range sorted {
		if i > 0 && t.Sub(sorted[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > st.Longest {
			st.Longest = run
		}
	}

	last := sorted[len(sorted)-1]
	st.LastPlayed = last.Format(dayLayout)

	todayT, err := time.Parse(dayLayout, today)
	if err != nil {
		return st
	}
	st.PlayedToday = last.Equal(todayT)
	if st.PlayedToday || last.Equal(todayT.AddDate(0, 0, -1)) {
		st.Current = run
	}
	return st
}
