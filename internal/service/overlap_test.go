package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlapsSameSlot(t *testing.T) {
	assert.True(t, Overlaps("2026-09-01", "10:00", 60, "2026-09-01", "10:00", 60))
}

func TestOverlapsPartial(t *testing.T) {
	// 10:00-12:00 vs 11:00-12:00.
	assert.True(t, Overlaps("2026-09-01", "10:00", 120, "2026-09-01", "11:00", 60))
	assert.True(t, Overlaps("2026-09-01", "11:00", 60, "2026-09-01", "10:00", 120))
}

func TestOverlapsBackToBack(t *testing.T) {
	// Half-open intervals: one ending exactly when the other starts is fine.
	assert.False(t, Overlaps("2026-09-01", "10:00", 60, "2026-09-01", "11:00", 60))
	assert.False(t, Overlaps("2026-09-01", "11:00", 60, "2026-09-01", "10:00", 60))
}

func TestOverlapsContainment(t *testing.T) {
	// 09:00-12:00 fully contains 10:00-10:30.
	assert.True(t, Overlaps("2026-09-01", "09:00", 180, "2026-09-01", "10:00", 30))
	assert.True(t, Overlaps("2026-09-01", "10:00", 30, "2026-09-01", "09:00", 180))
}

func TestOverlapsDifferentDates(t *testing.T) {
	assert.False(t, Overlaps("2026-09-01", "10:00", 60, "2026-09-02", "10:00", 60))
}

func TestOverlapsDefaultDuration(t *testing.T) {
	// Zero and negative durations fall back to the 60 minute default.
	assert.True(t, Overlaps("2026-09-01", "10:00", 0, "2026-09-01", "10:30", 0))
	assert.False(t, Overlaps("2026-09-01", "10:00", -5, "2026-09-01", "11:00", 0))
}

func TestOverlapsUnparseableTime(t *testing.T) {
	assert.False(t, Overlaps("2026-09-01", "bogus", 60, "2026-09-01", "10:00", 60))
}
