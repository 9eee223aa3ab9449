package leaderboard

import ws "github.com/gokatarajesh/quest-engine/pkg/http/ws"

func toWSEntries(entries []Entry) []ws.LeaderboardEntry {
	result := make([]ws.LeaderboardEntry, len(entries))
	for i, e := range entries {
		result[i] = ws.LeaderboardEntry{
			Rank:   i + 1,
			UserID: e.UserID.String(),
			Points: e.Points,
		}
	}
	return result
}
