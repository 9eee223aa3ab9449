package reward

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

// QuestScopeKey is the idempotency key of a one-shot quest: one per user and
// quest, for the quest's whole lifetime.
func QuestScopeKey(userID uuid.UUID, questID string) string {
	return fmt.Sprintf("user:%s:quest:%s", userID, questID)
}

// DailyScopeKey is the idempotency key of a recurring challenge: one per user,
// challenge kind and calendar date in loc.
func DailyScopeKey(userID uuid.UUID, kind string, day time.Time, loc *time.Location) string {
	return DailyScopePrefix(userID, kind) + CalendarDate(day, loc)
}

// DailyScopePrefix lists every day of a challenge kind for a user.
func DailyScopePrefix(userID uuid.UUID, kind string) string {
	return fmt.Sprintf("user:%s:daily:%s:", userID, kind)
}

// CalendarDate formats t as YYYY-MM-DD in loc (UTC when nil).
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}
