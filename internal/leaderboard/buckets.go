package leaderboard

import (
	"fmt"
	"time"
)

// Buckets holds the day and week tags used to name time-windowed boards.
// They are computed once and do not roll over while the process runs.
type Buckets struct {
	Day  string
	Week string
}

// BucketsAt derives the tags for t. The week number is the 1-based day of
// the year divided by seven, rounded down.
func BucketsAt(t time.Time) Buckets {
	return Buckets{
		Day:  fmt.Sprintf("Y:%d M:%d D:%d", t.Year(), int(t.Month()), t.Day()),
		Week: fmt.Sprintf("Y:%d W:%d", t.Year(), t.YearDay()/7),
	}
}
