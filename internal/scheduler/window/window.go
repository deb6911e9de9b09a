// Package window clamps call times into a shop's daily calling window.
package window

import (
	"time"
)

const (
	defaultStart = "09:00"
	defaultEnd   = "19:00"
)

type clockTime struct {
	hour   int
	minute int
}

func (c clockTime) minutes() int {
	return c.hour*60 + c.minute
}

func parseClockTime(s string) (clockTime, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return clockTime{}, false
	}
	return clockTime{hour: t.Hour(), minute: t.Minute()}, true
}

// Adjust moves target into the [start, end] daily window, boundaries
// inclusive. A target before the window snaps to the window open the
// same day; a target after it rolls to the window open the next day.
// Seconds are zeroed so scheduled times stay on minute boundaries.
// Malformed window strings fall back to 09:00-19:00 rather than
// blocking the schedule.
func Adjust(target time.Time, start, end string) time.Time {
	startCT, ok := parseClockTime(start)
	if !ok {
		startCT, _ = parseClockTime(defaultStart)
	}
	endCT, ok := parseClockTime(end)
	if !ok {
		endCT, _ = parseClockTime(defaultEnd)
	}

	// An inverted window is treated as its normalized form.
	if endCT.minutes() < startCT.minutes() {
		startCT, endCT = endCT, startCT
	}

	target = target.Truncate(time.Minute)
	minutes := target.Hour()*60 + target.Minute()

	switch {
	case minutes < startCT.minutes():
		return atClockTime(target, startCT)
	case minutes > endCT.minutes():
		return atClockTime(target.AddDate(0, 0, 1), startCT)
	default:
		return target
	}
}

func atClockTime(day time.Time, ct clockTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.minute, 0, 0, day.Location())
}
