package common

import (
	"testing"
	"time"
)

func TestCheckSnapshotStaleness(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		computedAt    time.Time
		now           time.Time
		sweepInterval time.Duration
		wantStale     bool
	}{
		{
			name:          "fresh snapshot",
			computedAt:    base,
			now:           base.Add(30 * time.Minute),
			sweepInterval: time.Hour,
			wantStale:     false,
		},
		{
			name:          "within tolerance of one missed sweep",
			computedAt:    base,
			now:           base.Add(90 * time.Minute),
			sweepInterval: time.Hour,
			wantStale:     false,
		},
		{
			name:          "stale after two intervals",
			computedAt:    base,
			now:           base.Add(2*time.Hour + time.Minute),
			sweepInterval: time.Hour,
			wantStale:     true,
		},
		{
			name:          "never computed",
			computedAt:    time.Time{},
			now:           base,
			sweepInterval: time.Hour,
			wantStale:     true,
		},
		{
			name:          "zero interval falls back to hourly",
			computedAt:    base,
			now:           base.Add(3 * time.Hour),
			sweepInterval: 0,
			wantStale:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckSnapshotStaleness(tt.computedAt, tt.now, tt.sweepInterval)
			if result.IsStale != tt.wantStale {
				t.Errorf("IsStale = %v, want %v (reason: %s)", result.IsStale, tt.wantStale, result.Reason)
			}
			if result.Reason == "" {
				t.Error("expected a non-empty reason")
			}
		})
	}
}

func TestCheckSnapshotStalenessNextCheck(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	result := CheckSnapshotStaleness(base, base.Add(10*time.Minute), time.Hour)
	if result.IsStale {
		t.Fatalf("expected fresh snapshot, got stale: %s", result.Reason)
	}

	want := base.Add(2 * time.Hour)
	if !result.NextCheckTime.Equal(want) {
		t.Errorf("NextCheckTime = %v, want %v", result.NextCheckTime, want)
	}
}

func TestStaleSince(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Fresh snapshot reports no staleness
	if got := StaleSince(base, base.Add(time.Hour), time.Hour); !got.IsZero() {
		t.Errorf("expected zero time for fresh snapshot, got %v", got)
	}

	// Stale snapshot reports the threshold crossing time
	got := StaleSince(base, base.Add(5*time.Hour), time.Hour)
	want := base.Add(2 * time.Hour)
	if !got.Equal(want) {
		t.Errorf("StaleSince = %v, want %v", got, want)
	}

	// Never-computed snapshot has no crossing time
	if got := StaleSince(time.Time{}, base, time.Hour); !got.IsZero() {
		t.Errorf("expected zero time for never-computed snapshot, got %v", got)
	}
}
