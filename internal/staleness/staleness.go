// Package staleness decides whether cached weather is fresh enough to show
// without refetching.
package staleness

import "time"

const (
	// Threshold is the age past which cached data is stale.
	Threshold = 600 * time.Second

	// PreemptiveThreshold is the age past which fresh data is served but a
	// background refresh is started.
	PreemptiveThreshold = Threshold * 8 / 10
)

// Age is how old data fetched at fetchedAt is at now. Never negative.
func Age(now, fetchedAt time.Time) time.Duration {
	if age := now.Sub(fetchedAt); age > 0 {
		return age
	}
	return 0
}

// IsStale reports whether data fetched at fetchedAt is older than Threshold.
func IsStale(now, fetchedAt time.Time) bool {
	return now.Sub(fetchedAt) > Threshold
}

// ShouldPreempt reports whether data is old enough to refresh in the
// background while still being served.
func ShouldPreempt(now, fetchedAt time.Time) bool {
	return now.Sub(fetchedAt) > PreemptiveThreshold
}
