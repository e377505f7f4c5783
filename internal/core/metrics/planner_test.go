package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPlanQueryRange(t *testing.T) {
	end := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		displayStart  time.Time
		anchorEnd     time.Time
		anchorWindow  time.Duration
		maxLookback   time.Duration
		wantStart     time.Time
		wantTruncated bool
	}{
		{
			name:         "anchor window dominates a short display range",
			displayStart: end.Add(-time.Hour),
			anchorEnd:    end,
			anchorWindow: 24 * time.Hour,
			maxLookback:  7 * 24 * time.Hour,
			wantStart:    end.Add(-24 * time.Hour),
		},
		{
			name:         "display range dominates the anchor window",
			displayStart: end.Add(-3 * 24 * time.Hour),
			anchorEnd:    end,
			anchorWindow: 24 * time.Hour,
			maxLookback:  7 * 24 * time.Hour,
			wantStart:    end.Add(-3 * 24 * time.Hour),
		},
		{
			name:          "lookback cap truncates to the most recent window",
			displayStart:  end.Add(-30 * 24 * time.Hour),
			anchorEnd:     end,
			anchorWindow:  24 * time.Hour,
			maxLookback:   7 * 24 * time.Hour,
			wantStart:     end.Add(-7 * 24 * time.Hour),
			wantTruncated: true,
		},
		{
			name:         "defaults apply when durations unset",
			displayStart: end.Add(-time.Hour),
			anchorEnd:    end,
			wantStart:    end.Add(-24 * time.Hour),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanQueryRange(tc.displayStart, end, tc.anchorEnd, tc.anchorWindow, tc.maxLookback)
			require.Equal(t, end, plan.End, "query end is always the display end")
			require.Equal(t, tc.wantStart, plan.Start)
			require.Equal(t, tc.wantTruncated, plan.Truncated)
		})
	}
}

func TestDeriveHourlyPeaks(t *testing.T) {
	anchor := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)

	records := []BucketRecord{
		rec(anchor.Add(-time.Hour), 60, 100, 2),
		rec(anchor.Add(-5*time.Hour), 60, 140, 1),
		rec(anchor.Add(-6*time.Hour), 60, 60, 9),
		rec(anchor.Add(-30*time.Hour), 60, 500, 50), // outside the anchor window
	}

	peaks := DeriveHourlyPeaks(records, anchor, 24*time.Hour)
	require.Equal(t, int64(140), peaks.Count)
	require.Equal(t, int64(9), peaks.ErrorCount, "count and error peaks may come from different hours")
}

func TestDeriveHourlyPeaks_EmptyWindow(t *testing.T) {
	anchor := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	require.Equal(t, HourlyPeaks{}, DeriveHourlyPeaks(nil, anchor, 0))
}
