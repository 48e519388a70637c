// Package common provides shared utilities across the application.
package common

import (
	"fmt"
	"time"
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates whether the snapshot is stale and needs refresh.
	IsStale bool
	// NextCheckTime is when to check again if the snapshot is not currently stale.
	NextCheckTime time.Time
	// Reason provides a human-readable explanation for the staleness decision.
	Reason string
}

// CheckSnapshotStaleness determines if a metric snapshot is stale relative to
// the sweep cadence. A snapshot is considered stale once more than two sweep
// intervals have passed since it was computed, which tolerates a single missed
// or failed sweep before flagging the integration.
//
// Parameters:
//   - computedAt: when the snapshot was computed
//   - now: current time
//   - sweepInterval: how often the periodic sweep runs
func CheckSnapshotStaleness(computedAt time.Time, now time.Time, sweepInterval time.Duration) StalenessResult {
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}

	now = now.UTC()
	computedAt = computedAt.UTC()

	if computedAt.IsZero() {
		return StalenessResult{
			IsStale: true,
			Reason:  "no snapshot has ever been computed",
		}
	}

	staleAfter := computedAt.Add(2 * sweepInterval)

	if now.After(staleAfter) {
		return StalenessResult{
			IsStale: true,
			Reason: fmt.Sprintf(
				"snapshot from %s is older than two sweep intervals (%s)",
				computedAt.Format(time.RFC3339),
				2*sweepInterval,
			),
		}
	}

	return StalenessResult{
		IsStale:       false,
		NextCheckTime: staleAfter,
		Reason: fmt.Sprintf(
			"snapshot from %s is fresh, stale after %s",
			computedAt.Format(time.RFC3339),
			staleAfter.Format(time.RFC3339),
		),
	}
}

// StaleSince returns the time a snapshot crossed the staleness threshold, or
// the zero time if it is still fresh. Used by team summaries to report how
// long an integration has gone without a successful sync.
func StaleSince(computedAt time.Time, now time.Time, sweepInterval time.Duration) time.Time {
	if computedAt.IsZero() {
		return time.Time{}
	}
	result := CheckSnapshotStaleness(computedAt, now, sweepInterval)
	if !result.IsStale {
		return time.Time{}
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	return computedAt.UTC().Add(2 * sweepInterval)
}
