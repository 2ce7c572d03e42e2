package output

import (
	"fmt"
	"time"

	"github.com/karmalens/karmalens/internal/core"
)

const timeLayout = "2006-01-02 15:04 MST"

// karmaChange describes the karma difference from the next older snapshot.
// The oldest snapshot in a series has no change.
func karmaChange(snapshots []core.Snapshot, i int) string {
	if i+1 >= len(snapshots) {
		return "-"
	}
	return signed(snapshots[i].Karma - snapshots[i+1].Karma)
}

// netChange is the karma difference across the whole series.
func netChange(snapshots []core.Snapshot) (int64, bool) {
	if len(snapshots) < 2 {
		return 0, false
	}
	return snapshots[0].Karma - snapshots[len(snapshots)-1].Karma, true
}

func signed(v int64) string {
	if v > 0 {
		return fmt.Sprintf("+%d", v)
	}
	return fmt.Sprintf("%d", v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func latestColumns(s *core.Snapshot) (karma, posts, comments, collected string) {
	if s == nil {
		return "-", "-", "-", "never"
	}
	return fmt.Sprint(s.Karma), fmt.Sprint(s.PostCount), fmt.Sprint(s.CommentCount), formatTime(s.CollectedAt)
}
