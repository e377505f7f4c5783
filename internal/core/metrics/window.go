package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default window durations for gauge baselines.
const (
	DefaultRollingWindow = time.Hour
	DefaultAnchorWindow  = 24 * time.Hour
)

// RollingTotals holds the two gauge baselines computed from one record set.
// Both windows end at the same anchor instant, so the figures do not shift
// when the displayed chart period changes.
type RollingTotals struct {
	// Rolling covers [anchorEnd - rollingWindow, anchorEnd).
	Rolling Totals

	// Daily covers [anchorEnd - anchorWindow, anchorEnd).
	Daily Totals
}

// ComputeRollingTotals applies the selector twice over the same fetched
// record set: once for the short rolling window and once for the long anchor
// window, both ending at anchorEnd. anchorEnd is caller-supplied rather than
// wall-clock now so historical chart periods stay consistent.
func ComputeRollingTotals(records []BucketRecord, anchorEnd time.Time, rollingWindow, anchorWindow time.Duration) RollingTotals {
	if rollingWindow <= 0 {
		rollingWindow = DefaultRollingWindow
	}
	if anchorWindow <= 0 {
		anchorWindow = DefaultAnchorWindow
	}

	return RollingTotals{
		Rolling: Select(records, anchorEnd.Add(-rollingWindow), anchorEnd),
		Daily:   Select(records, anchorEnd.Add(-anchorWindow), anchorEnd),
	}
}

// AveragePerHour converts a long-window count into a per-hour display figure,
// rounded to the nearest integer. Exact division via decimal avoids the
// float drift a 24-way split can accumulate.
func AveragePerHour(total Totals, window time.Duration) int64 {
	hours := int64(window / time.Hour)
	if hours <= 0 {
		return 0
	}
	return decimal.NewFromInt(total.Count).
		Div(decimal.NewFromInt(hours)).
		Round(0).
		IntPart()
}
