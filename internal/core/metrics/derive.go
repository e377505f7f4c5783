package metrics

import "time"

// HourlyPeaks holds the stable gauge scale maxima. They are always derived
// from the 24-hour anchor window, never from the currently displayed chart
// period, so gauge scales do not jump when the user switches periods.
type HourlyPeaks struct {
	Count      int64
	ErrorCount int64
}

// DeriveHourlyPeaks walks the anchor window ending at anchorEnd in one-hour
// sub-windows and returns the maximum per-hour count and error count
// observed. Hours with no coverage contribute zero.
func DeriveHourlyPeaks(records []BucketRecord, anchorEnd time.Time, anchorWindow time.Duration) HourlyPeaks {
	if anchorWindow <= 0 {
		anchorWindow = DefaultAnchorWindow
	}

	var peaks HourlyPeaks
	hours := int(anchorWindow / time.Hour)
	windowStart := anchorEnd.Add(-anchorWindow)

	for i := 0; i < hours; i++ {
		hourStart := windowStart.Add(time.Duration(i) * time.Hour)
		totals := Select(records, hourStart, hourStart.Add(time.Hour))
		if totals.Count > peaks.Count {
			peaks.Count = totals.Count
		}
		if totals.ErrorCount > peaks.ErrorCount {
			peaks.ErrorCount = totals.ErrorCount
		}
	}

	return peaks
}
