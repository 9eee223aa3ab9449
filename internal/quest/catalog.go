package quest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// CatalogEntry is one quest with its questions inline, as authored in a seed
// file.
type CatalogEntry struct {
	Quest     Quest
	Questions []Question
}

type catalogFile struct {
	Quests []struct {
		ID           string     `json:"id"`
		Title        string     `json:"title"`
		Kind         string     `json:"kind"`
		PassingScore int        `json:"passing_score"`
		RewardPoints int        `json:"reward_points"`
		Policy       string     `json:"policy"`
		Published    bool       `json:"published"`
		StartsAt     *time.Time `json:"starts_at"`
		ExpiresAt    *time.Time `json:"expires_at"`
		Questions    []Question `json:"questions"`
	} `json:"quests"`
}

// LoadCatalog reads a JSON seed file of quests. Every entry's questions are
// normalized and validated.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc catalogFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	entries := make([]CatalogEntry, 0, len(doc.Quests))
	for _, item := range doc.Quests {
		set := QuestionSet{ID: item.ID, Kind: item.Kind, Questions: item.Questions}
		set.Normalize()
		if err := set.Validate(); err != nil {
			return nil, fmt.Errorf("quest %s: %w", item.ID, err)
		}
		entries = append(entries, CatalogEntry{
			Quest: Quest{
				ID:           item.ID,
				Title:        item.Title,
				Kind:         item.Kind,
				PassingScore: item.PassingScore,
				RewardPoints: item.RewardPoints,
				Policy:       item.Policy,
				Published:    item.Published,
				StartsAt:     item.StartsAt,
				ExpiresAt:    item.ExpiresAt,
			},
			Questions: set.Questions,
		})
	}
	return entries, nil
}
