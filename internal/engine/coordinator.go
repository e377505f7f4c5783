package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsedeck-lab/pulsedeck/internal/families"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshInterval = 30 * time.Second

// ErrClosed is returned by coordinator operations after Close.
var ErrClosed = errors.New("coordinator is closed")

// SnapshotBuilder produces one snapshot per fetch cycle.
type SnapshotBuilder interface {
	Build(ctx context.Context, cfg Config) (*Snapshot, error)
}

// DetachFunc releases one consumer's interest in a fingerprint. Idempotent.
type DetachFunc func()

// entry tracks one fingerprint's cached state. All fields are guarded by the
// coordinator mutex.
type entry struct {
	cfg      Config
	family   families.MetricFamily
	state    State
	snapshot *Snapshot
	err      error
	refs     int

	// seq numbers fetch flights for this entry. A completion whose seq is
	// behind the latest issued flight is discarded, so a slow stale fetch
	// can never overwrite fresher data.
	seq uint64

	stopRefresh context.CancelFunc
}

func (e *entry) result() Result {
	return Result{State: e.state, Snapshot: e.snapshot, Err: e.err}
}

// Coordinator deduplicates fetches, serves last-known-good snapshots, and
// runs one background refresh loop per fingerprint with live consumers. It is
// the only owner of shared mutable snapshot state; updates to a fingerprint
// are serialized through it.
//
// Lifecycle per fingerprint: Uninitialized, Loading, Ready alternating with
// Refreshing. Errored is reachable only while no snapshot has ever been
// obtained and is left via explicit Refetch.
type Coordinator struct {
	builder         SnapshotBuilder
	families        families.Repository
	refreshInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	detached *snapshotLRU
	group    singleflight.Group
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. refreshInterval <= 0 selects the
// 30-second default; cacheCapacity bounds how many detached snapshots are
// retained for instant remount.
func NewCoordinator(builder SnapshotBuilder, fams families.Repository, refreshInterval time.Duration, cacheCapacity int) *Coordinator {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	if cacheCapacity <= 0 {
		cacheCapacity = 256
	}
	return &Coordinator{
		builder:         builder,
		families:        fams,
		refreshInterval: refreshInterval,
		entries:         make(map[string]*entry),
		detached:        newSnapshotLRU(cacheCapacity),
	}
}

func (c *Coordinator) resolve(cfg Config) (string, *families.MetricFamily, error) {
	fam, err := c.families.Get(cfg.Family)
	if err != nil {
		return "", nil, err
	}
	return cfg.fingerprint(fam.Fingerprint), fam, nil
}

// Attach registers a consumer for cfg and returns its current view plus a
// detach function. The first consumer for a fingerprint starts the refresh
// loop and, unless a retained snapshot can be served instantly, an
// asynchronous first fetch.
func (c *Coordinator) Attach(cfg Config) (Result, DetachFunc, error) {
	fp, fam, err := c.resolve(cfg)
	if err != nil {
		return Result{}, nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, nil, ErrClosed
	}

	ent, exists := c.entries[fp]
	if !exists {
		ent = &entry{cfg: cfg, family: *fam, state: StateLoading}
		if retained := c.detached.take(fp); retained != nil {
			// Remount: serve the previous snapshot without a loading state
			// and refresh it in the background.
			ent.snapshot = retained
			ent.state = StateReady
		}
		c.entries[fp] = ent
		c.startRefreshLoop(fp, ent)
	}
	ent.refs++
	needsFirstFetch := !exists && ent.snapshot == nil
	refreshStale := !exists && ent.snapshot != nil
	res := ent.result()
	c.mu.Unlock()

	if needsFirstFetch {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.fetch(context.Background(), fp, ent, false, true)
		}()
	}
	if refreshStale {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.fetch(context.Background(), fp, ent, true, false)
		}()
	}

	var once sync.Once
	detach := func() {
		once.Do(func() { c.detach(fp, ent) })
	}
	return res, detach, nil
}

func (c *Coordinator) detach(fp string, ent *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[fp] != ent {
		return
	}
	ent.refs--
	if ent.refs > 0 {
		return
	}

	// Last consumer gone: clear the timer, keep the data for a remount.
	if ent.stopRefresh != nil {
		ent.stopRefresh()
		ent.stopRefresh = nil
	}
	delete(c.entries, fp)
	c.detached.put(fp, ent.snapshot)
}

// Get reports the current state for cfg without side effects.
func (c *Coordinator) Get(cfg Config) Result {
	fp, _, err := c.resolve(cfg)
	if err != nil {
		return Result{State: StateErrored, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ent, exists := c.entries[fp]
	if !exists {
		return Result{State: StateUninitialized}
	}
	return ent.result()
}

// Snapshot returns a usable snapshot for cfg, fetching synchronously when
// nothing is cached yet. A cached snapshot is served immediately even when a
// background refresh is in flight. An Errored fingerprint keeps returning its
// error until an explicit Refetch.
func (c *Coordinator) Snapshot(ctx context.Context, cfg Config) (*Snapshot, error) {
	fp, _, err := c.resolve(cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	ent, exists := c.entries[fp]
	if !exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("no consumer attached for scope %q family %q", cfg.ScopeID, cfg.Family)
	}
	if ent.snapshot != nil {
		snap := ent.snapshot
		c.mu.Unlock()
		return snap, nil
	}
	if ent.state == StateErrored {
		fetchErr := ent.err
		c.mu.Unlock()
		return nil, fetchErr
	}
	c.mu.Unlock()

	return c.fetch(ctx, fp, ent, false, true)
}

// Refetch bypasses the cache: it always runs a fresh fetch cycle and is the
// explicit retry path out of an Errored state.
func (c *Coordinator) Refetch(ctx context.Context, cfg Config) (*Snapshot, error) {
	fp, _, err := c.resolve(cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	ent, exists := c.entries[fp]
	if !exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("no consumer attached for scope %q family %q", cfg.ScopeID, cfg.Family)
	}
	if ent.state == StateErrored {
		ent.state = StateLoading
		ent.err = nil
	}
	c.mu.Unlock()

	return c.fetch(ctx, fp, ent, false, false)
}

// PinnedSnapshot serves a configuration anchored to a fixed instant. Pinned
// snapshots never change once built, so they get no live entry, no refresh
// loop, and no consumer accounting: the result is built at most once per
// fingerprint, retained in the bounded snapshot cache, and rebuilt only when
// bypassCache is set. Client-supplied anchors therefore cannot grow the set
// of live entries.
func (c *Coordinator) PinnedSnapshot(ctx context.Context, cfg Config, bypassCache bool) (*Snapshot, error) {
	fp, _, err := c.resolve(cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if !bypassCache {
		if snap := c.detached.get(fp); snap != nil {
			return snap, nil
		}
	}

	v, err, _ := c.group.Do(fp, func() (interface{}, error) {
		if !bypassCache {
			if snap := c.detached.get(fp); snap != nil {
				return snap, nil
			}
		}
		snap, buildErr := c.builder.Build(ctx, cfg)
		if buildErr != nil {
			return nil, buildErr
		}
		c.detached.put(fp, snap)
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return v.(*Snapshot), nil
}

// NotifyRecordChange reacts to an out-of-band push notification: every live
// fingerprint matching the scope and record type gets a background refresh.
// The contract is re-fetch, never incremental patching.
func (c *Coordinator) NotifyRecordChange(scopeID, recordType string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	type target struct {
		fp  string
		ent *entry
	}
	var targets []target
	for fp, ent := range c.entries {
		if scopeID != "" && ent.cfg.ScopeID != scopeID {
			continue
		}
		if recordType != "" && !ent.family.Matches(recordType) {
			continue
		}
		if ent.snapshot == nil {
			continue // first fetch still pending or errored; nothing to refresh
		}
		targets = append(targets, target{fp: fp, ent: ent})
	}
	c.mu.Unlock()

	for _, tgt := range targets {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.fetch(context.Background(), tgt.fp, tgt.ent, true, false)
		}()
	}
}

// Invalidate discards all cached state for cfg, live or retained. For a live
// entry a background re-fetch is started immediately, so consumers that only
// poll Get recover without issuing another query.
func (c *Coordinator) Invalidate(cfg Config) {
	fp, _, err := c.resolve(cfg)
	if err != nil {
		return
	}

	c.mu.Lock()
	c.detached.drop(fp)
	ent, exists := c.entries[fp]
	if exists {
		ent.snapshot = nil
		ent.err = nil
		ent.state = StateLoading
		ent.seq++ // any in-flight completion is now stale
	}
	refill := exists && !c.closed
	c.mu.Unlock()

	if !refill {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			c.fetch(context.Background(), fp, ent, true, false)

			// A fetch that joined a flight issued before the seq bump has its
			// completion discarded and leaves the entry loading with nothing
			// cached; run another flight in that case.
			c.mu.Lock()
			again := c.entries[fp] == ent && ent.snapshot == nil &&
				ent.state == StateLoading && ent.err == nil && !c.closed
			c.mu.Unlock()
			if !again {
				return
			}
		}
	}()
}

// Close stops all refresh loops and waits for in-flight work to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, ent := range c.entries {
		if ent.stopRefresh != nil {
			ent.stopRefresh()
			ent.stopRefresh = nil
		}
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// startRefreshLoop schedules the periodic background refresh for one
// fingerprint. Caller holds the mutex. At most one loop exists per
// fingerprint: it is created with the entry and cancelled when the last
// consumer detaches.
func (c *Coordinator) startRefreshLoop(fp string, ent *entry) {
	ctx, cancel := context.WithCancel(context.Background())
	ent.stopRefresh = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				skip := ent.state == StateErrored || ent.state == StateLoading
				c.mu.Unlock()
				if skip {
					// Errored waits for an explicit retry; Loading means a
					// first fetch is already in flight.
					continue
				}
				c.fetch(ctx, fp, ent, true, false)
			}
		}
	}()
}

// fetch runs one fetch cycle for an entry, deduplicating concurrent callers
// through singleflight so a fingerprint never has two fetches in flight.
// With onlyIfEmpty set, the flight becomes a no-op once a snapshot exists:
// used for first fetches so an async attach fetch and a synchronous waiter
// cannot build twice back to back.
func (c *Coordinator) fetch(ctx context.Context, fp string, ent *entry, background, onlyIfEmpty bool) (*Snapshot, error) {
	type flightResult struct {
		snap *Snapshot
		seq  uint64
	}

	v, err, _ := c.group.Do(fp, func() (interface{}, error) {
		c.mu.Lock()
		if onlyIfEmpty && ent.snapshot != nil {
			snap := ent.snapshot
			c.mu.Unlock()
			return flightResult{snap: snap}, nil
		}
		ent.seq++
		seq := ent.seq
		cfg := ent.cfg
		if ent.snapshot == nil {
			ent.state = StateLoading
		} else {
			ent.state = StateRefreshing
		}
		c.mu.Unlock()

		snap, buildErr := c.builder.Build(ctx, cfg)
		c.applyResult(fp, ent, seq, snap, buildErr)
		return flightResult{snap: snap, seq: seq}, buildErr
	})

	if err != nil {
		if background {
			return nil, err
		}
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	return v.(flightResult).snap, nil
}

// applyResult commits a fetch completion. Stale completions (a newer flight
// was issued, or the entry was invalidated/replaced) are discarded.
func (c *Coordinator) applyResult(fp string, ent *entry, seq uint64, snap *Snapshot, buildErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[fp] != ent {
		return // detached or invalidated away mid-flight
	}
	if seq < ent.seq {
		slog.Warn("Discarding out-of-order fetch completion",
			"fingerprint", fp,
			"completed_seq", seq,
			"latest_seq", ent.seq,
		)
		return
	}

	if buildErr != nil {
		if ent.snapshot != nil {
			// Keep serving last-known-good data; the failure is logged and
			// swallowed rather than surfaced to consumers.
			ent.state = StateReady
			slog.Warn("Background refresh failed, serving stale snapshot",
				"scope_id", ent.cfg.ScopeID,
				"family", ent.cfg.Family,
				"error", buildErr,
			)
			return
		}
		ent.state = StateErrored
		ent.err = buildErr
		return
	}

	ent.snapshot = snap
	ent.err = nil
	ent.state = StateReady
}
