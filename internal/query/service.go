package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	v1 "github.com/pulsedeck-lab/pulsedeck/internal/api/v1"
	"github.com/pulsedeck-lab/pulsedeck/internal/core/metrics"
	"github.com/pulsedeck-lab/pulsedeck/internal/engine"
	"github.com/pulsedeck-lab/pulsedeck/internal/families"
)

const defaultPeriod = metrics.PeriodDay

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid snapshot query")

// ErrUnknownFamily marks lookups of unconfigured families (HTTP 404).
var ErrUnknownFamily = errors.New("unknown metric family")

// Service is the HTTP-facing read surface over the snapshot coordinator.
// For live configurations it acts as one long-lived consumer per fingerprint:
// the first request attaches it (starting the background refresh), and Close
// detaches everything. Pinned-anchor configurations are immutable and served
// one-shot, so client-supplied anchors never accumulate live entries or
// refresh timers.
type Service struct {
	coord    *engine.Coordinator
	families families.Repository

	mu       sync.Mutex
	attached map[engine.Config]engine.DetachFunc
}

// NewService creates a query service over the coordinator.
func NewService(coord *engine.Coordinator, fams families.Repository) *Service {
	return &Service{
		coord:    coord,
		families: fams,
		attached: make(map[engine.Config]engine.DetachFunc),
	}
}

// Close detaches every configuration this service attached.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cfg, detach := range s.attached {
		detach()
		delete(s.attached, cfg)
	}
}

// QuerySnapshot validates the request and returns a usable snapshot, fetching
// synchronously on the first request for a configuration and serving cached
// data immediately afterwards.
func (s *Service) QuerySnapshot(ctx context.Context, req v1.SnapshotQueryRequest) (*v1.SnapshotResponse, error) {
	cfg, err := s.normalizeAndValidate(req)
	if err != nil {
		return nil, err
	}

	var snap *engine.Snapshot
	if cfg.Pinned() {
		snap, err = s.coord.PinnedSnapshot(ctx, cfg, false)
	} else {
		if err := s.ensureAttached(cfg); err != nil {
			return nil, err
		}
		snap, err = s.coord.Snapshot(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate snapshot: %w", err)
	}
	return toResponse(snap), nil
}

// Refetch bypasses the cache for one configuration. It is also the explicit
// retry path out of an error state.
func (s *Service) Refetch(ctx context.Context, req v1.SnapshotQueryRequest) (*v1.SnapshotResponse, error) {
	cfg, err := s.normalizeAndValidate(req)
	if err != nil {
		return nil, err
	}

	var snap *engine.Snapshot
	if cfg.Pinned() {
		snap, err = s.coord.PinnedSnapshot(ctx, cfg, true)
	} else {
		if err := s.ensureAttached(cfg); err != nil {
			return nil, err
		}
		snap, err = s.coord.Refetch(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("refetch snapshot: %w", err)
	}
	return toResponse(snap), nil
}

// ListFamilies returns the configured metric families.
func (s *Service) ListFamilies() []v1.FamilySummary {
	fams := s.families.List()
	out := make([]v1.FamilySummary, 0, len(fams))
	for _, fam := range fams {
		out = append(out, v1.FamilySummary{
			Name:        fam.Name,
			RecordTypes: fam.RecordTypes,
			Description: fam.Description,
		})
	}
	return out
}

func (s *Service) normalizeAndValidate(req v1.SnapshotQueryRequest) (engine.Config, error) {
	if req.ScopeID == "" {
		return engine.Config{}, invalidQueryf("scope_id is required")
	}
	if req.Family == "" {
		return engine.Config{}, invalidQueryf("family is required")
	}
	if _, err := s.families.Get(req.Family); err != nil {
		return engine.Config{}, fmt.Errorf("%w: %s", ErrUnknownFamily, req.Family)
	}

	period := metrics.ChartPeriod(req.Period)
	if req.Period == "" {
		period = defaultPeriod
	}
	if !metrics.ValidPeriod(period) {
		return engine.Config{}, invalidQueryf("invalid period: %s (must be hour, day, or week)", req.Period)
	}

	return engine.Config{
		ScopeID:   req.ScopeID,
		Family:    req.Family,
		Period:    period,
		AnchorEnd: req.Anchor.UTC(),
	}, nil
}

func (s *Service) ensureAttached(cfg engine.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attached[cfg]; ok {
		return nil
	}
	_, detach, err := s.coord.Attach(cfg)
	if err != nil {
		return err
	}
	s.attached[cfg] = detach
	return nil
}

func toResponse(snap *engine.Snapshot) *v1.SnapshotResponse {
	return &v1.SnapshotResponse{
		ScopeID:              snap.ScopeID,
		Family:               snap.Family,
		Period:               string(snap.Period),
		FetchID:              snap.FetchID,
		AnchorEnd:            snap.AnchorEnd,
		GeneratedAt:          snap.GeneratedAt,
		RollingCount:         snap.Rolling.Count,
		RollingErrorCount:    snap.Rolling.ErrorCount,
		DailyCount:           snap.Daily.Count,
		DailyErrorCount:      snap.Daily.ErrorCount,
		AveragePerHour:       snap.AveragePerHour,
		PeakHourlyCount:      snap.Peaks.Count,
		PeakHourlyErrorCount: snap.Peaks.ErrorCount,
		Chart:                snap.Chart,
		RangeTruncated:       snap.RangeTruncated,
		FetchTruncated:       snap.FetchTruncated,
	}
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
