package metrics

import (
	"fmt"
	"time"
)

// ChartPeriod names one of the supported chart presets. Each preset fixes
// both the sub-bucket duration and the bucket count.
type ChartPeriod string

const (
	PeriodHour ChartPeriod = "hour" // twelve 5-minute buckets
	PeriodDay  ChartPeriod = "day"  // twenty-four 1-hour buckets
	PeriodWeek ChartPeriod = "week" // twenty-eight 6-hour buckets
)

type periodSpec struct {
	bucketCount int
	bucketSize  time.Duration
	labelFormat string
}

var periodSpecs = map[ChartPeriod]periodSpec{
	PeriodHour: {bucketCount: 12, bucketSize: 5 * time.Minute, labelFormat: "15:04"},
	PeriodDay:  {bucketCount: 24, bucketSize: time.Hour, labelFormat: "15:04"},
	PeriodWeek: {bucketCount: 28, bucketSize: 6 * time.Hour, labelFormat: "Mon 15:04"},
}

// ValidPeriod reports whether p names a supported chart preset.
func ValidPeriod(p ChartPeriod) bool {
	_, ok := periodSpecs[p]
	return ok
}

// BucketCount returns the number of chart buckets for the period.
func (p ChartPeriod) BucketCount() int { return periodSpecs[p].bucketCount }

// BucketSize returns the duration of one chart bucket for the period.
func (p ChartPeriod) BucketSize() time.Duration { return periodSpecs[p].bucketSize }

// Duration returns the full display range covered by the period.
func (p ChartPeriod) Duration() time.Duration {
	spec := periodSpecs[p]
	return time.Duration(spec.bucketCount) * spec.bucketSize
}

// ChartPoint is one plotted bucket: a labelled value over
// [BucketStart, BucketEnd).
type ChartPoint struct {
	Label       string    `json:"label"`
	Count       int64     `json:"count"`
	ErrorCount  int64     `json:"error_count"`
	BucketStart time.Time `json:"bucket_start"`
	BucketEnd   time.Time `json:"bucket_end"`
}

// BuildChart partitions the period's display range into equal, contiguous,
// non-overlapping sub-windows ending exactly at displayEnd and runs the
// selector independently over each. The series carries no state between
// refreshes; recomputing it from the same inputs is idempotent.
func BuildChart(records []BucketRecord, displayEnd time.Time, period ChartPeriod) ([]ChartPoint, error) {
	spec, ok := periodSpecs[period]
	if !ok {
		return nil, fmt.Errorf("unsupported chart period %q", period)
	}

	displayStart := displayEnd.Add(-time.Duration(spec.bucketCount) * spec.bucketSize)
	points := make([]ChartPoint, 0, spec.bucketCount)

	for i := 0; i < spec.bucketCount; i++ {
		bucketStart := displayStart.Add(time.Duration(i) * spec.bucketSize)
		bucketEnd := bucketStart.Add(spec.bucketSize)
		totals := Select(records, bucketStart, bucketEnd)

		points = append(points, ChartPoint{
			Label:       bucketStart.Format(spec.labelFormat),
			Count:       totals.Count,
			ErrorCount:  totals.ErrorCount,
			BucketStart: bucketStart,
			BucketEnd:   bucketEnd,
		})
	}

	return points, nil
}
