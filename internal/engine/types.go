package engine

import (
	"fmt"
	"time"

	"github.com/pulsedeck-lab/pulsedeck/internal/core/metrics"
)

// Config identifies one logical metrics stream as requested by a consumer.
type Config struct {
	ScopeID string
	Family  string
	Period  metrics.ChartPeriod

	// AnchorEnd optionally pins the evaluation instant for historical views.
	// Zero means "now" at each fetch cycle.
	AnchorEnd time.Time
}

// Pinned reports whether the config is anchored to a fixed instant rather
// than tracking "now". Pinned snapshots never change once built.
func (c Config) Pinned() bool {
	return !c.AnchorEnd.IsZero()
}

// fingerprint derives the cache key for a config. The family fingerprint is
// included so editing a family definition invalidates prior snapshots.
func (c Config) fingerprint(familyFingerprint string) string {
	anchor := "live"
	if !c.AnchorEnd.IsZero() {
		anchor = c.AnchorEnd.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s/%s/%s/%s", c.ScopeID, familyFingerprint, c.Period, anchor)
}

// Snapshot is the immutable aggregated result handed to presentation layers.
// A new snapshot replaces its predecessor atomically; consumers never observe
// a partially updated one.
type Snapshot struct {
	FetchID     string              `json:"fetch_id"` // unique per fetch cycle
	ScopeID     string              `json:"scope_id"`
	Family      string              `json:"family"`
	Period      metrics.ChartPeriod `json:"period"`
	AnchorEnd   time.Time           `json:"anchor_end"`
	GeneratedAt time.Time           `json:"generated_at"`

	// Rolling and Daily are the gauge baselines, both anchored at AnchorEnd.
	Rolling metrics.Totals `json:"rolling"`
	Daily   metrics.Totals `json:"daily"`

	AveragePerHour int64               `json:"average_per_hour"`
	Peaks          metrics.HourlyPeaks `json:"peaks"`

	Chart []metrics.ChartPoint `json:"chart"`

	// RangeTruncated records that the query range planner shrank the fetch
	// window to the lookback cap. FetchTruncated records that the store hit
	// its per-query result cap. Both are warnings, not errors.
	RangeTruncated bool `json:"range_truncated"`
	FetchTruncated bool `json:"fetch_truncated"`
}

// State is the consumer-visible lifecycle stage of one fingerprint.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateRefreshing // background refresh in flight, snapshot still served
	StateErrored    // no usable snapshot ever obtained; recoverable via Refetch
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Result is what a consumer observes for one fingerprint at one instant.
type Result struct {
	State    State
	Snapshot *Snapshot // nil unless State is Ready or Refreshing
	Err      error     // set only when State is Errored
}
