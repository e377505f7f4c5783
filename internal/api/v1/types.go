package v1

import (
	"time"

	"github.com/pulsedeck-lab/pulsedeck/internal/core/metrics"
)

// SnapshotQueryRequest carries the URI and query parameters of a snapshot
// request.
type SnapshotQueryRequest struct {
	ScopeID string `uri:"scope_id" binding:"required"`
	Family  string `uri:"family" binding:"required"`

	// Period selects the chart preset; default "day".
	Period string `form:"period"`

	// Anchor optionally pins the evaluation instant for historical views.
	Anchor time.Time `form:"anchor" time_format:"2006-01-02T15:04:05Z07:00"`
}

// SnapshotResponse is the aggregated result served to gauges and charts.
type SnapshotResponse struct {
	ScopeID     string    `json:"scope_id"`
	Family      string    `json:"family"`
	Period      string    `json:"period"`
	FetchID     string    `json:"fetch_id"`
	AnchorEnd   time.Time `json:"anchor_end"`
	GeneratedAt time.Time `json:"generated_at"`

	RollingCount      int64 `json:"rolling_count"`
	RollingErrorCount int64 `json:"rolling_error_count"`
	DailyCount        int64 `json:"daily_count"`
	DailyErrorCount   int64 `json:"daily_error_count"`

	AveragePerHour       int64 `json:"average_per_hour"`
	PeakHourlyCount      int64 `json:"peak_hourly_count"`
	PeakHourlyErrorCount int64 `json:"peak_hourly_error_count"`

	Chart []metrics.ChartPoint `json:"chart"`

	RangeTruncated bool `json:"range_truncated"`
	FetchTruncated bool `json:"fetch_truncated"`
}

// FamilySummary describes one configured metric family.
type FamilySummary struct {
	Name        string   `json:"name"`
	RecordTypes []string `json:"record_types"`
	Description string   `json:"description,omitempty"`
}
