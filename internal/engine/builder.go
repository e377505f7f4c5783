package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsedeck-lab/pulsedeck/internal/core/metrics"
	"github.com/pulsedeck-lab/pulsedeck/internal/core/storage"
	"github.com/pulsedeck-lab/pulsedeck/internal/families"
	"golang.org/x/sync/errgroup"
)

const defaultFetchTimeout = 15 * time.Second

// BuilderOptions controls the window geometry and fetch limits of one
// builder.
type BuilderOptions struct {
	RollingWindow time.Duration
	AnchorWindow  time.Duration
	MaxLookback   time.Duration
	FetchLimit    int
	FetchTimeout  time.Duration
}

func (o BuilderOptions) normalized() BuilderOptions {
	n := o
	if n.RollingWindow <= 0 {
		n.RollingWindow = metrics.DefaultRollingWindow
	}
	if n.AnchorWindow <= 0 {
		n.AnchorWindow = metrics.DefaultAnchorWindow
	}
	if n.MaxLookback <= 0 {
		n.MaxLookback = metrics.DefaultMaxLookback
	}
	if n.FetchLimit <= 0 {
		n.FetchLimit = 10000
	}
	if n.FetchTimeout <= 0 {
		n.FetchTimeout = defaultFetchTimeout
	}
	return n
}

// Builder produces one Snapshot per fetch cycle: it plans the query range,
// fetches every record type of the family, and runs the selection pipeline.
// Given an injected clock it is deterministic for a fixed store state.
type Builder struct {
	store    storage.RecordStore
	families families.Repository
	opts     BuilderOptions
	nowFn    func() time.Time
}

// NewBuilder creates a snapshot builder over the given record store and
// family definitions.
func NewBuilder(store storage.RecordStore, fams families.Repository, opts BuilderOptions) *Builder {
	return &Builder{
		store:    store,
		families: fams,
		opts:     opts.normalized(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Build runs one full fetch cycle for cfg.
func (b *Builder) Build(ctx context.Context, cfg Config) (*Snapshot, error) {
	fam, err := b.families.Get(cfg.Family)
	if err != nil {
		return nil, err
	}
	if !metrics.ValidPeriod(cfg.Period) {
		return nil, fmt.Errorf("unsupported chart period %q", cfg.Period)
	}

	anchorEnd := cfg.AnchorEnd
	if anchorEnd.IsZero() {
		anchorEnd = b.nowFn()
	}
	displayEnd := anchorEnd
	displayStart := displayEnd.Add(-cfg.Period.Duration())

	plan := metrics.PlanQueryRange(displayStart, displayEnd, anchorEnd, b.opts.AnchorWindow, b.opts.MaxLookback)
	if plan.Truncated {
		slog.Warn("Query range truncated to lookback cap",
			"scope_id", cfg.ScopeID,
			"family", cfg.Family,
			"display_start", displayStart,
			"query_start", plan.Start,
		)
	}

	records, fetchTruncated, err := b.fetchAll(ctx, cfg.ScopeID, fam.RecordTypes, plan)
	if err != nil {
		return nil, err
	}

	rolling := metrics.ComputeRollingTotals(records, anchorEnd, b.opts.RollingWindow, b.opts.AnchorWindow)
	chart, err := metrics.BuildChart(records, displayEnd, cfg.Period)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		FetchID:        uuid.NewString(),
		ScopeID:        cfg.ScopeID,
		Family:         cfg.Family,
		Period:         cfg.Period,
		AnchorEnd:      anchorEnd,
		GeneratedAt:    b.nowFn(),
		Rolling:        rolling.Rolling,
		Daily:          rolling.Daily,
		AveragePerHour: metrics.AveragePerHour(rolling.Daily, b.opts.AnchorWindow),
		Peaks:          metrics.DeriveHourlyPeaks(records, anchorEnd, b.opts.AnchorWindow),
		Chart:          chart,
		RangeTruncated: plan.Truncated,
		FetchTruncated: fetchTruncated,
	}, nil
}

// fetchAll retrieves records for every record type of the family
// concurrently and merges them into one deduplicated set. Store-side
// truncation is non-fatal: it is reported on the snapshot and logged.
func (b *Builder) fetchAll(ctx context.Context, scopeID string, recordTypes []string, plan metrics.QueryPlan) ([]metrics.BucketRecord, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, b.opts.FetchTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		all       []metrics.BucketRecord
		truncated bool
	)

	g, gctx := errgroup.WithContext(fetchCtx)
	for _, recordType := range recordTypes {
		g.Go(func() error {
			records, wasTruncated, err := b.store.FetchBucketRecords(
				gctx, scopeID, recordType, plan.Start, plan.End, b.opts.FetchLimit,
			)
			if err != nil {
				return fmt.Errorf("fetch bucket records for %q: %w", recordType, err)
			}

			mu.Lock()
			all = append(all, records...)
			truncated = truncated || wasTruncated
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	if truncated {
		slog.Warn("Record fetch hit the result cap, proceeding with partial data",
			"scope_id", scopeID,
			"limit", b.opts.FetchLimit,
		)
	}

	return metrics.DedupeRecords(all), truncated, nil
}
