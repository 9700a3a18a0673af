// Package datetime renders timestamps as the short display labels used in the
// conversation list and chat pane.
package datetime

import (
	"fmt"
	"time"
)

// ConversationLabel returns the relative-time label shown next to a
// conversation row: clock time for today, "Yesterday" for one day back,
// a day count inside a week, and a short date beyond that.
func ConversationLabel(t, now time.Time) string {
	days := daysBetween(t, now)

	switch {
	case days <= 0:
		return t.Format("15:04")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("02/01")
	}
}

// MessageLabel returns the display timestamp for a single message bubble.
func MessageLabel(t time.Time) string {
	return t.Format("15:04")
}

// daysBetween counts whole 24h periods elapsed from t to now, matching how
// the labels bucket "today" vs "yesterday". Future times count as today.
func daysBetween(t, now time.Time) int {
	diff := now.Sub(t)
	if diff < 0 {
		return 0
	}
	return int(diff.Hours() / 24)
}
