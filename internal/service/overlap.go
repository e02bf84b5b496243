package service

import (
	"strconv"
	"strings"

	"github.com/remindly-app/remindly-api/internal/models"
)

// Overlaps reports whether two scheduled slots intersect. Slots on different
// calendar dates never overlap: scheduling is naive and nothing spans
// midnight. Each slot is the half-open interval [start, start+duration), so
// back-to-back slots do not collide. A non-positive duration falls back to
// the default of 60 minutes. Times are assumed well-formed HH:MM; validation
// happens at the request boundary.
func Overlaps(dateA, timeA string, durationA int, dateB, timeB string, durationB int) bool {
	if dateA != dateB {
		return false
	}

	startA := minutesOfDay(timeA)
	startB := minutesOfDay(timeB)
	endA := startA + effectiveDuration(durationA)
	endB := startB + effectiveDuration(durationB)

	return startA < endB && startB < endA
}

func effectiveDuration(minutes int) int {
	if minutes <= 0 {
		return models.DefaultDurationMinutes
	}
	return minutes
}

func minutesOfDay(hhmm string) int {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	return hours*60 + minutes
}
