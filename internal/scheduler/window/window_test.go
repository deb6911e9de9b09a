package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestAdjustInsideWindowUnchanged(t *testing.T) {
	got := Adjust(at(10, 30), "09:00", "19:00")
	assert.Equal(t, at(10, 30), got)
}

func TestAdjustBoundariesInclusive(t *testing.T) {
	assert.Equal(t, at(9, 0), Adjust(at(9, 0), "09:00", "19:00"))
	assert.Equal(t, at(19, 0), Adjust(at(19, 0), "09:00", "19:00"))
}

func TestAdjustBeforeWindowSnapsToOpen(t *testing.T) {
	got := Adjust(at(7, 45), "09:00", "19:00")
	assert.Equal(t, at(9, 0), got)
}

func TestAdjustAfterWindowRollsToNextDay(t *testing.T) {
	got := Adjust(at(19, 30), "09:00", "19:00")
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), got)
}

func TestAdjustZeroesSeconds(t *testing.T) {
	target := time.Date(2026, 3, 10, 12, 15, 42, 999, time.UTC)
	got := Adjust(target, "09:00", "19:00")
	assert.Equal(t, at(12, 15), got)
}

func TestAdjustMalformedWindowFallsBack(t *testing.T) {
	got := Adjust(at(8, 0), "not-a-time", "")
	assert.Equal(t, at(9, 0), got)
}

func TestAdjustInvertedWindowNormalized(t *testing.T) {
	got := Adjust(at(8, 0), "19:00", "09:00")
	assert.Equal(t, at(9, 0), got)
}

func TestAdjustCustomWindow(t *testing.T) {
	got := Adjust(at(23, 10), "10:30", "22:00")
	assert.Equal(t, time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC), got)
}
