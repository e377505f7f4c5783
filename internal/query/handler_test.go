package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	v1 "github.com/pulsedeck-lab/pulsedeck/internal/api/v1"
	"github.com/pulsedeck-lab/pulsedeck/internal/core/metrics"
	"github.com/pulsedeck-lab/pulsedeck/internal/engine"
	"github.com/pulsedeck-lab/pulsedeck/internal/families"
	"github.com/stretchr/testify/require"
)

// scriptedBuilder returns canned snapshots or a scripted error.
type scriptedBuilder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *scriptedBuilder) Build(_ context.Context, cfg engine.Config) (*engine.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &engine.Snapshot{
		FetchID:        "fetch-1",
		ScopeID:        cfg.ScopeID,
		Family:         cfg.Family,
		Period:         cfg.Period,
		AnchorEnd:      time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
		GeneratedAt:    time.Date(2026, 8, 20, 14, 0, 1, 0, time.UTC),
		Rolling:        metrics.Totals{Count: 120, ErrorCount: 5},
		Daily:          metrics.Totals{Count: 260, ErrorCount: 6},
		AveragePerHour: 11,
		Peaks:          metrics.HourlyPeaks{Count: 140, ErrorCount: 9},
	}, nil
}

func newTestService(t *testing.T, builder engine.SnapshotBuilder) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fams := families.NewInMemoryRepository([]families.MetricFamily{
		{Name: "items", RecordTypes: []string{"items"}, Fingerprint: "fp-items"},
	})
	coord := engine.NewCoordinator(builder, fams, time.Hour, 8)
	t.Cleanup(coord.Close)

	svc := NewService(coord, fams)
	t.Cleanup(svc.Close)

	r := gin.New()
	svc.RegisterRoutes(r)
	return svc, r
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestSnapshotHandler_Success(t *testing.T) {
	_, r := newTestService(t, &scriptedBuilder{})

	w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot?period=day")
	require.Equal(t, http.StatusOK, w.Code)

	var resp v1.SnapshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "scope-1", resp.ScopeID)
	require.Equal(t, "items", resp.Family)
	require.Equal(t, "day", resp.Period)
	require.Equal(t, int64(120), resp.RollingCount)
	require.Equal(t, int64(260), resp.DailyCount)
	require.Equal(t, int64(11), resp.AveragePerHour)
	require.Equal(t, int64(140), resp.PeakHourlyCount)
}

func TestSnapshotHandler_DefaultsPeriodToDay(t *testing.T) {
	_, r := newTestService(t, &scriptedBuilder{})

	w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot")
	require.Equal(t, http.StatusOK, w.Code)

	var resp v1.SnapshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "day", resp.Period)
}

func TestSnapshotHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantCode int
		wantType string
	}{
		{
			name:     "unknown family",
			path:     "/v1/scopes/scope-1/families/nope/snapshot",
			wantCode: http.StatusNotFound,
			wantType: "unknown_family",
		},
		{
			name:     "invalid period",
			path:     "/v1/scopes/scope-1/families/items/snapshot?period=fortnight",
			wantCode: http.StatusBadRequest,
			wantType: "invalid_period",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, r := newTestService(t, &scriptedBuilder{})
			w := doRequest(r, http.MethodGet, tc.path)
			require.Equal(t, tc.wantCode, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, tc.wantType, body["error_type"])
		})
	}
}

func TestSnapshotHandler_FirstFetchFailureSurfacesError(t *testing.T) {
	builder := &scriptedBuilder{err: errors.New("connection refused")}
	_, r := newTestService(t, builder)

	w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot")
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefetchHandler_RecoversAfterStoreReturns(t *testing.T) {
	builder := &scriptedBuilder{err: errors.New("connection refused")}
	_, r := newTestService(t, builder)

	w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot")
	require.Equal(t, http.StatusBadGateway, w.Code)

	builder.mu.Lock()
	builder.err = nil
	builder.mu.Unlock()

	w = doRequest(r, http.MethodPost, "/v1/scopes/scope-1/families/items/refetch")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSnapshotHandler_RepeatRequestsServeCachedSnapshot(t *testing.T) {
	builder := &scriptedBuilder{}
	_, r := newTestService(t, builder)

	for i := 0; i < 3; i++ {
		w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot")
		require.Equal(t, http.StatusOK, w.Code)
	}

	builder.mu.Lock()
	calls := builder.calls
	builder.mu.Unlock()
	require.Equal(t, 1, calls, "repeat requests must be served from cache")
}

func TestSnapshotHandler_DistinctAnchorsDoNotAccumulateLiveEntries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	builder := &scriptedBuilder{}
	fams := families.NewInMemoryRepository([]families.MetricFamily{
		{Name: "items", RecordTypes: []string{"items"}, Fingerprint: "fp-items"},
	})
	coord := engine.NewCoordinator(builder, fams, time.Hour, 8)
	t.Cleanup(coord.Close)
	svc := NewService(coord, fams)
	t.Cleanup(svc.Close)
	r := gin.New()
	svc.RegisterRoutes(r)

	base := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		anchor := base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot?period=day&anchor="+anchor)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Client-supplied anchors are served one-shot: none of them may leave a
	// live coordinator entry with its own refresh ticker behind.
	for i := 0; i < 5; i++ {
		cfg := engine.Config{
			ScopeID:   "scope-1",
			Family:    "items",
			Period:    metrics.PeriodDay,
			AnchorEnd: base.Add(time.Duration(i) * time.Minute),
		}
		require.Equal(t, engine.StateUninitialized, coord.Get(cfg).State)
	}

	// A repeat of an earlier anchor is served from the pinned cache.
	w := doRequest(r, http.MethodGet, "/v1/scopes/scope-1/families/items/snapshot?period=day&anchor="+base.Format(time.RFC3339))
	require.Equal(t, http.StatusOK, w.Code)

	builder.mu.Lock()
	calls := builder.calls
	builder.mu.Unlock()
	require.Equal(t, 5, calls, "each distinct anchor builds once, repeats hit the cache")
}

func TestListFamiliesHandler(t *testing.T) {
	_, r := newTestService(t, &scriptedBuilder{})

	w := doRequest(r, http.MethodGet, "/v1/families")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Families []v1.FamilySummary `json:"families"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Families, 1)
	require.Equal(t, "items", body.Families[0].Name)
}
