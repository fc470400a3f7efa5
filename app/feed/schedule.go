package feed

import (
	"time"
)

// MinIntervalMinutes is the floor on the effective update interval.
const MinIntervalMinutes = 60

// IntervalMinutes converts an update interval to minutes, clamped to the
// minimum. Unknown units fall back to the minimum.
func IntervalMinutes(unit string, value int) int {
	var minutes int
	switch unit {
	case "hour":
		minutes = value * 60
	case "day":
		minutes = value * 24 * 60
	case "week":
		minutes = value * 7 * 24 * 60
	}

	if minutes < MinIntervalMinutes {
		minutes = MinIntervalMinutes
	}
	return minutes
}

// NextParseAfter computes the feed's next due time after a terminal run.
func NextParseAfter(completedAt time.Time, unit string, value int) time.Time {
	return completedAt.Add(time.Duration(IntervalMinutes(unit, value)) * time.Minute)
}
