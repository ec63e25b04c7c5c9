// Package schedule computes the next janitor sweep time for display; the
// actual scheduling is systemd's.
package schedule

import (
	"fmt"
	"time"
)

// NextSweep returns the next sweep time after now for a fixed interval with
// optional jitter, and a short description.
func NextSweep(intervalMinutes, jitterMinutes int, now time.Time) (time.Time, string) {
	if intervalMinutes < 1 {
		return time.Time{}, "no schedule"
	}
	jitter := jitterMinutes
	if jitter < 0 {
		jitter = 0
	}
	next := now.Add(time.Duration(intervalMinutes) * time.Minute)
	next = next.Add(time.Duration(jitter) * time.Minute)
	desc := fmt.Sprintf("every %dm", intervalMinutes)
	if jitter > 0 {
		desc += fmt.Sprintf(" (+%dm jitter)", jitter)
	}
	return next, desc
}
