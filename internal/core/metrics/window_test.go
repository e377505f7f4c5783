package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeRollingTotals_BothWindowsShareTheAnchor(t *testing.T) {
	anchor := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)

	records := []BucketRecord{
		rec(anchor.Add(-time.Hour), 60, 100, 5),     // inside both windows
		rec(anchor.Add(-4*time.Hour), 60, 50, 2),    // 24h window only
		rec(anchor.Add(-30*time.Hour), 60, 999, 99), // outside both
	}

	got := ComputeRollingTotals(records, anchor, time.Hour, 24*time.Hour)
	require.Equal(t, Totals{Count: 100, ErrorCount: 5}, got.Rolling)
	require.Equal(t, Totals{Count: 150, ErrorCount: 7}, got.Daily)
}

func TestComputeRollingTotals_DefaultsApplyWhenDurationsUnset(t *testing.T) {
	anchor := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	records := []BucketRecord{rec(anchor.Add(-time.Hour), 60, 10, 0)}

	got := ComputeRollingTotals(records, anchor, 0, 0)
	require.Equal(t, int64(10), got.Rolling.Count)
	require.Equal(t, int64(10), got.Daily.Count)
}

func TestAveragePerHour(t *testing.T) {
	tests := []struct {
		name   string
		count  int64
		window time.Duration
		want   int64
	}{
		{name: "exact division", count: 240, window: 24 * time.Hour, want: 10},
		{name: "rounds up", count: 250, window: 24 * time.Hour, want: 10},
		{name: "rounds nearest", count: 260, window: 24 * time.Hour, want: 11},
		{name: "zero count", count: 0, window: 24 * time.Hour, want: 0},
		{name: "sub-hour window yields zero", count: 100, window: 30 * time.Minute, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AveragePerHour(Totals{Count: tc.count}, tc.window)
			require.Equal(t, tc.want, got)
		})
	}
}
