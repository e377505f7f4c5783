package metrics

import (
	"time"
)

// Granularities lists the supported bucket sizes in minutes, coarsest first.
// Every coarser granularity is an integer multiple of every finer one, so
// coarse buckets align with finer ones at common boundaries.
var Granularities = []int{60, 15, 5, 1}

// BucketRecord is the atomic unit fetched from the counter store: a
// pre-aggregated count over the half-open interval [RangeStart, RangeEnd)
// at a fixed granularity.
type BucketRecord struct {
	// ScopeID identifies the owning account/tenant.
	ScopeID string

	// RecordType is the logical counter family (e.g. "items", "scoreResults").
	RecordType string

	// RangeStart and RangeEnd bound the half-open interval [RangeStart, RangeEnd).
	RangeStart time.Time
	RangeEnd   time.Time

	// GranularityMinutes is the bucket size; one of Granularities.
	GranularityMinutes int

	// Count and ErrorCount are the totals accumulated during the interval.
	Count      int64
	ErrorCount int64

	// Complete is true once RangeEnd has fully elapsed and the counts are
	// final. An incomplete record's Count is a lower bound, valid only up
	// to "now"; it must not be extrapolated past its own RangeEnd.
	Complete bool
}

// Overlaps reports whether the record's interval intersects [start, end).
func (r BucketRecord) Overlaps(start, end time.Time) bool {
	return r.RangeStart.Before(end) && r.RangeEnd.After(start)
}

// Granularity returns the bucket size as a duration.
func (r BucketRecord) Granularity() time.Duration {
	return time.Duration(r.GranularityMinutes) * time.Minute
}

// recordKey identifies one logical bucket: duplicates sharing a key describe
// the same interval and must collapse to a single record before selection.
type recordKey struct {
	scopeID     string
	recordType  string
	granularity int
	rangeStart  int64
}

// DedupeRecords collapses duplicate records for the same
// (scope, type, granularity, rangeStart). A complete record wins over an
// incomplete one; between records of equal completeness the higher count
// wins, since counters only accumulate and the freshest observation carries
// the largest total. Relative order of the survivors is preserved.
func DedupeRecords(records []BucketRecord) []BucketRecord {
	if len(records) < 2 {
		return records
	}

	best := make(map[recordKey]int, len(records))
	out := make([]BucketRecord, 0, len(records))

	for _, rec := range records {
		key := recordKey{
			scopeID:     rec.ScopeID,
			recordType:  rec.RecordType,
			granularity: rec.GranularityMinutes,
			rangeStart:  rec.RangeStart.UnixNano(),
		}

		idx, seen := best[key]
		if !seen {
			best[key] = len(out)
			out = append(out, rec)
			continue
		}

		if preferRecord(rec, out[idx]) {
			out[idx] = rec
		}
	}

	return out
}

// preferRecord reports whether candidate should replace current as the
// authoritative observation of the same bucket.
func preferRecord(candidate, current BucketRecord) bool {
	if candidate.Complete != current.Complete {
		return candidate.Complete
	}
	return candidate.Count > current.Count
}
