package metrics

import (
	"sort"
	"time"
)

// Totals is the summed output of one selection pass.
type Totals struct {
	Count      int64
	ErrorCount int64
}

// Add folds another total into t.
func (t Totals) Add(other Totals) Totals {
	return Totals{
		Count:      t.Count + other.Count,
		ErrorCount: t.ErrorCount + other.ErrorCount,
	}
}

// interval is a clamped [start, end) pair already accepted into the covered set.
type interval struct {
	start time.Time
	end   time.Time
}

func (iv interval) overlaps(other interval) bool {
	return iv.start.Before(other.end) && iv.end.After(other.start)
}

// Select sums counts over [windowStart, windowEnd) from a sparse set of
// multi-granularity bucket records without double counting.
//
// Records are considered coarsest granularity first, chronologically within
// one granularity. Each candidate's interval is clamped to the query window;
// a record is accepted only if its clamped interval does not overlap any
// interval already accepted. When a 60-minute rollup and its four 15-minute
// constituents are both present for the same hour, only the rollup
// contributes.
//
// Select is a pure function. Empty input, an inverted window, or no
// overlapping records all yield zero Totals, never an error. Partial-overlap
// records contribute their full count as a best-effort estimate; callers
// needing exactness should query windows aligned to available granularities.
func Select(records []BucketRecord, windowStart, windowEnd time.Time) Totals {
	if !windowEnd.After(windowStart) || len(records) == 0 {
		return Totals{}
	}

	candidates := make([]BucketRecord, 0, len(records))
	for _, rec := range records {
		if rec.Overlaps(windowStart, windowEnd) {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return Totals{}
	}

	// Coarse-first so rollups shadow their constituents; start-ascending
	// tie-break keeps the output deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].GranularityMinutes != candidates[j].GranularityMinutes {
			return candidates[i].GranularityMinutes > candidates[j].GranularityMinutes
		}
		return candidates[i].RangeStart.Before(candidates[j].RangeStart)
	})

	// Coverage is tracked per record type: a rollup shadows only its own
	// family's finer buckets. Distinct counter families measuring the same
	// interval both contribute.
	covered := make(map[string][]interval)
	var totals Totals

	for _, rec := range candidates {
		clamped := clamp(rec, windowStart, windowEnd)
		if overlapsAny(clamped, covered[rec.RecordType]) {
			continue // a coarser record already accounts for this span
		}
		covered[rec.RecordType] = append(covered[rec.RecordType], clamped)
		totals.Count += rec.Count
		totals.ErrorCount += rec.ErrorCount
	}

	return totals
}

func clamp(rec BucketRecord, windowStart, windowEnd time.Time) interval {
	iv := interval{start: rec.RangeStart, end: rec.RangeEnd}
	if iv.start.Before(windowStart) {
		iv.start = windowStart
	}
	if iv.end.After(windowEnd) {
		iv.end = windowEnd
	}
	return iv
}

func overlapsAny(iv interval, covered []interval) bool {
	for _, c := range covered {
		if iv.overlaps(c) {
			return true
		}
	}
	return false
}
