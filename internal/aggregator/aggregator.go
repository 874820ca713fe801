// Package aggregator merges the primary store and every source adapter into
// one snapshot, republished by swapping a pointer so readers never lock.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/metrics"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/sink"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/source"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

// Status is the last known health of one source.
type Status struct {
	Source      string           `json:"source"`
	SourceType  model.SourceType `json:"sourceType"`
	Events      int              `json:"events"`
	Skipped     int              `json:"skipped"`
	LastAttempt time.Time        `json:"lastAttempt"`
	LastSuccess *time.Time       `json:"lastSuccess,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
	// Degraded is set when the last attempt failed; the source contributes
	// nothing until it recovers.
	Degraded bool `json:"degraded"`
}

// Snapshot is one published merged set. It must be treated as read-only.
type Snapshot struct {
	CycleID string                `json:"cycleId"`
	AsOf    time.Time             `json:"asOf"`
	Events  []model.ShutdownEvent `json:"-"`
	Sources map[string]Status     `json:"sources"`
	// Stale means the events predate the statuses: every source failed the
	// last cycle, or the snapshot was restored from disk.
	Stale bool `json:"stale"`
}

var ErrRunning = errors.New("aggregator already running")

type Options struct {
	Store        store.Store // optional
	StoreTimeout time.Duration
	Sources      []source.Source
	// Interval is the store re-read cadence.
	Interval time.Duration
	// Window bounds the fetch window; zero lets each source use its own default.
	Window    time.Duration
	StatePath string
	Publisher *sink.Publisher
	Metrics   *metrics.Recorder
	Clock     Clock
	Logger    *slog.Logger
}

type cacheEntry struct {
	events []model.ShutdownEvent
	status Status
}

type Aggregator struct {
	opts    Options
	sources []source.Source // store first when configured
	clock   Clock
	log     *slog.Logger

	snap atomic.Pointer[Snapshot]

	mu    sync.Mutex // serializes cache updates and snapshot builds
	cache map[string]cacheEntry

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}

	a := &Aggregator{
		opts:  opts,
		clock: opts.Clock,
		log:   opts.Logger,
		cache: make(map[string]cacheEntry),
	}
	if opts.Store != nil {
		a.sources = append(a.sources, storeSource{st: opts.Store, interval: opts.Interval, timeout: opts.StoreTimeout})
	}
	a.sources = append(a.sources, opts.Sources...)
	a.snap.Store(&Snapshot{Events: []model.ShutdownEvent{}, Sources: map[string]Status{}})
	return a
}

// Current returns the last published snapshot.
func (a *Aggregator) Current() Snapshot { return *a.snap.Load() }

// HasAdapters reports whether any source besides the primary store is configured.
func (a *Aggregator) HasAdapters() bool { return len(a.opts.Sources) > 0 }

// Refresh fetches every source concurrently, each under its own timeout, and
// publishes the merged result.
func (a *Aggregator) Refresh(ctx context.Context) Snapshot {
	start := a.clock.Now()
	window := a.window(start)

	results := make([]source.Result, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			results[i] = source.Run(ctx, src, window)
		}(i, src)
	}
	wg.Wait()

	snap := a.apply(results)
	a.opts.Metrics.ObserveRefresh(a.clock.Now().Sub(start))
	a.afterPublish(ctx, snap)
	return snap
}

// RefreshSource fetches one source by name and republishes the merged set.
func (a *Aggregator) RefreshSource(ctx context.Context, name string) (Snapshot, error) {
	for _, src := range a.sources {
		if src.Name() != name {
			continue
		}
		res := source.Run(ctx, src, a.window(a.clock.Now()))
		snap := a.apply([]source.Result{res})
		a.afterPublish(ctx, snap)
		return snap, nil
	}
	return Snapshot{}, fmt.Errorf("unknown source %q", name)
}

// RefreshStore re-reads the primary store only.
func (a *Aggregator) RefreshStore(ctx context.Context) (Snapshot, error) {
	return a.RefreshSource(ctx, StoreSourceName)
}

func (a *Aggregator) window(now time.Time) model.TimeRange {
	if a.opts.Window > 0 {
		return model.LastWindow(now, a.opts.Window)
	}
	return model.TimeRange{To: now.UTC()}
}

// apply folds fetch results into the per-source cache and swaps in a new
// snapshot. When every source has failed, the previous events are kept and
// only the statuses change.
func (a *Aggregator) apply(results []source.Result) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now().UTC()
	cycle := uuid.NewString()
	for _, r := range results {
		a.record(cycle, now, r)
	}

	// Sources never attempted yet do not count either way.
	statuses := make(map[string]Status, len(a.cache))
	attempted, healthy := 0, 0
	for _, src := range a.sources {
		e, ok := a.cache[src.Name()]
		if !ok {
			continue
		}
		statuses[src.Name()] = e.status
		attempted++
		if !e.status.Degraded {
			healthy++
		}
	}
	allFailed := attempted > 0 && healthy == 0

	prev := a.snap.Load()
	next := &Snapshot{CycleID: cycle, AsOf: now, Sources: statuses}
	if allFailed {
		next.Events = prev.Events
		next.AsOf = prev.AsOf
		next.Stale = true
		a.log.Warn("all sources failed, keeping previous snapshot", "cycle", cycle, "events", len(prev.Events))
	} else {
		next.Events = a.merge()
	}
	a.snap.Store(next)
	a.opts.Metrics.SetSnapshot(len(next.Events), next.Stale)
	return *next
}

func (a *Aggregator) record(cycle string, now time.Time, r source.Result) {
	st := a.cache[r.Source].status
	st.Source = r.Source
	st.SourceType = r.SourceType
	st.LastAttempt = now
	st.Skipped = r.Skipped
	st.LastError = ""

	status := "ok"
	switch {
	case r.Failed():
		status = "error"
		st.Degraded = true
		st.Events = 0
		st.LastError = r.Err.Error()
		a.cache[r.Source] = cacheEntry{status: st}
		a.log.Warn("source fetch failed", "source", r.Source, "cycle", cycle, "duration", r.Duration, "err", r.Err)
	default:
		if r.Err != nil {
			status = "partial"
			st.LastError = r.Err.Error()
			a.log.Info("source skipped records", "source", r.Source, "cycle", cycle, "skipped", r.Skipped, "err", r.Err)
		}
		t := now
		st.Degraded = false
		st.LastSuccess = &t
		st.Events = len(r.Events)
		a.cache[r.Source] = cacheEntry{events: r.Events, status: st}
		a.log.Debug("source fetched", "source", r.Source, "cycle", cycle, "events", len(r.Events), "duration", r.Duration)
	}
	a.opts.Metrics.ObserveFetch(r.Source, status, st.Events, r.Skipped, now)
}

// merge concatenates cached events in source order. Events sharing a
// DedupKey are duplicates and the first one wins; the same real event seen
// by two providers differs in source type and is kept twice.
func (a *Aggregator) merge() []model.ShutdownEvent {
	n := 0
	for _, src := range a.sources {
		n += len(a.cache[src.Name()].events)
	}
	out := make([]model.ShutdownEvent, 0, n)
	seen := make(map[string]struct{}, n)
	for _, src := range a.sources {
		for _, e := range a.cache[src.Name()].events {
			k := e.DedupKey()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

func (a *Aggregator) afterPublish(ctx context.Context, snap Snapshot) {
	if snap.Stale {
		return
	}
	a.log.Info("snapshot published", "cycle", snap.CycleID, "events", len(snap.Events))
	if a.opts.StatePath != "" {
		st := store.SnapshotState{CycleID: snap.CycleID, AsOf: snap.AsOf, Events: snap.Events}
		if err := store.SaveSnapshotState(a.opts.StatePath, st); err != nil {
			a.log.Warn("save snapshot state", "path", a.opts.StatePath, "err", err)
		}
	}
	a.opts.Publisher.Publish(ctx, snap.Events)
}

// WarmStart publishes the snapshot saved at StatePath, marked stale, so
// reads have data before the first refresh completes. A missing file is not
// an error.
func (a *Aggregator) WarmStart() error {
	if a.opts.StatePath == "" {
		return nil
	}
	st, err := store.LoadSnapshotState(a.opts.StatePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	events := st.Events
	if events == nil {
		events = []model.ShutdownEvent{}
	}
	a.snap.Store(&Snapshot{CycleID: st.CycleID, AsOf: st.AsOf, Events: events, Sources: map[string]Status{}, Stale: true})
	a.opts.Metrics.SetSnapshot(len(events), true)
	a.log.Info("restored snapshot", "cycle", st.CycleID, "events", len(events), "as_of", st.AsOf)
	return nil
}
