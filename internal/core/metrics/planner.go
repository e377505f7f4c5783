package metrics

import "time"

// DefaultMaxLookback bounds how far back one fetch cycle may reach. Chosen so
// that the densest supported granularity (1 minute) times the lookback stays
// safely under the remote store's per-query result cap.
const DefaultMaxLookback = 7 * 24 * time.Hour

// QueryPlan is the single [Start, End) range to request from the record
// store for one fetch cycle.
type QueryPlan struct {
	Start time.Time
	End   time.Time

	// Truncated is set when the natural combined range exceeded the maximum
	// lookback and the plan was shrunk to the most recent window. A warning,
	// not an error: recency is prioritized over completeness.
	Truncated bool
}

// PlanQueryRange decides the range to fetch so that it covers both the
// display range [displayStart, displayEnd) and the anchor window
// [anchorEnd - anchorWindow, anchorEnd), while never reaching back further
// than maxLookback from the query end.
func PlanQueryRange(displayStart, displayEnd, anchorEnd time.Time, anchorWindow, maxLookback time.Duration) QueryPlan {
	if anchorWindow <= 0 {
		anchorWindow = DefaultAnchorWindow
	}
	if maxLookback <= 0 {
		maxLookback = DefaultMaxLookback
	}

	anchorStart := anchorEnd.Add(-anchorWindow)

	wanted := displayStart
	if anchorStart.Before(wanted) {
		wanted = anchorStart
	}

	floor := displayEnd.Add(-maxLookback)
	if wanted.Before(floor) {
		return QueryPlan{Start: floor, End: displayEnd, Truncated: true}
	}

	return QueryPlan{Start: wanted, End: displayEnd}
}
