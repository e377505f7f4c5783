package storage

import (
	"context"
	"time"

	"github.com/pulsedeck-lab/pulsedeck/internal/core/metrics"
)

// RecordStore defines read access to the externally owned bucket-record
// counter store. The engine is a pure computation layer over this interface;
// it never writes records.
type RecordStore interface {
	// FetchBucketRecords returns all records for one (scope, recordType)
	// overlapping [start, end), at every granularity, ordered coarsest
	// granularity first then range_start ascending.
	//
	// limit caps the result size. truncated is set when the store had more
	// rows than limit; callers treat truncation as a non-fatal signal to log
	// and proceed with what was returned.
	FetchBucketRecords(
		ctx context.Context,
		scopeID string,
		recordType string,
		start time.Time,
		end time.Time,
		limit int,
	) (records []metrics.BucketRecord, truncated bool, err error)
}
