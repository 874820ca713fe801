// Package tracker is the read facade used by the HTTP layer: queries and
// statistics over the merged snapshot, or over the primary store when that
// is the only thing being asked about.
package tracker

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/aggregator"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/stats"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

var ErrUnknownRegion = errors.New("unknown region")

// Snapshotter is the slice of the aggregator the service reads.
type Snapshotter interface {
	Current() aggregator.Snapshot
	HasAdapters() bool
}

type Service struct {
	agg   Snapshotter
	store store.Store // may be nil
}

func New(agg Snapshotter, st store.Store) *Service {
	return &Service{agg: agg, store: st}
}

// Store exposes the primary store for admin writes; nil when none is configured.
func (s *Service) Store() store.Store { return s.store }

// fromStore decides whether a read goes straight to the primary store.
func (s *Service) fromStore(f query.Filter) bool {
	if s.store == nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(f.Source), string(model.SourcePrimaryStore)) {
		return true
	}
	return !s.agg.HasAdapters()
}

// Query returns one page of matching events with coordinates resolved.
func (s *Service) Query(ctx context.Context, f query.Filter, srt query.Sort, p query.Page) (query.Result, error) {
	var res query.Result
	if s.fromStore(f) {
		r, err := s.store.Query(ctx, f, srt, p)
		if err != nil {
			return query.Result{}, err
		}
		res = r
	} else {
		res = query.Run(s.agg.Current().Events, f, srt, p)
	}
	for i := range res.Events {
		res.Events[i] = model.WithCoordinates(res.Events[i])
	}
	return res, nil
}

// All returns every matching event, sorted, for exports.
func (s *Service) All(ctx context.Context, f query.Filter, srt query.Sort) ([]model.ShutdownEvent, error) {
	var evs []model.ShutdownEvent
	if s.fromStore(f) {
		found, err := s.store.Find(ctx, f)
		if err != nil {
			return nil, err
		}
		evs = found
	} else {
		evs = query.Apply(s.agg.Current().Events, f)
	}
	query.SortEvents(evs, srt)
	for i := range evs {
		evs[i] = model.WithCoordinates(evs[i])
	}
	return evs, nil
}

// Statistics aggregates the filtered subset. Store-served reads use the
// store's own aggregates when it has them.
func (s *Service) Statistics(ctx context.Context, f query.Filter) (stats.Report, error) {
	if s.fromStore(f) {
		if agg, ok := s.store.(store.Aggregates); ok {
			return agg.Statistics(ctx, f)
		}
		evs, err := s.store.Find(ctx, f)
		if err != nil {
			return stats.Report{}, err
		}
		return stats.Compute(evs), nil
	}
	acc := stats.New()
	for _, e := range s.agg.Current().Events {
		if f.Match(e) {
			acc.Add(e)
		}
	}
	return acc.Report(), nil
}

func (s *Service) Current() aggregator.Snapshot { return s.agg.Current() }

// Get looks in the snapshot first, then the store.
func (s *Service) Get(ctx context.Context, id string) (model.ShutdownEvent, error) {
	for _, e := range s.agg.Current().Events {
		if e.ID == id {
			return model.WithCoordinates(e), nil
		}
	}
	if s.store == nil {
		return model.ShutdownEvent{}, store.ErrNotFound
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return model.ShutdownEvent{}, err
	}
	return model.WithCoordinates(e), nil
}

func (s *Service) Regions() []model.Region { return model.Regions() }

type RegionDetails struct {
	model.Region
	Total     int                   `json:"totalShutdowns"`
	Full      int                   `json:"fullShutdowns"`
	Throttled int                   `json:"throttledShutdowns"`
	Events    []model.ShutdownEvent `json:"shutdowns"`
}

// RegionDetails returns the region's counts and events, newest first.
func (s *Service) RegionDetails(ctx context.Context, nameOrCode string) (RegionDetails, error) {
	r, ok := model.LookupRegion(nameOrCode)
	if !ok {
		return RegionDetails{}, ErrUnknownRegion
	}
	evs, err := s.All(ctx, query.Filter{Region: r.Name}, query.DefaultSort)
	if err != nil {
		return RegionDetails{}, err
	}
	d := RegionDetails{Region: r, Total: len(evs), Events: evs}
	for _, e := range evs {
		switch e.EventType {
		case model.EventFull:
			d.Full++
		case model.EventThrottled:
			d.Throttled++
		}
	}
	return d, nil
}

// RegionCounts counts matching events per region for map shading. Regions
// without events are omitted.
func (s *Service) RegionCounts(ctx context.Context, f query.Filter) (map[string]int, error) {
	rep, err := s.Statistics(ctx, f)
	if err != nil {
		return nil, err
	}
	return rep.ByRegion, nil
}

// SourceStatuses returns per-source health sorted by name.
func (s *Service) SourceStatuses() []aggregator.Status {
	snap := s.agg.Current()
	out := make([]aggregator.Status, 0, len(snap.Sources))
	for _, st := range snap.Sources {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
