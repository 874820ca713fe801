package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/aggregator"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store/memory"
)

type staticSnap struct {
	snap     aggregator.Snapshot
	adapters bool
}

func (s staticSnap) Current() aggregator.Snapshot { return s.snap }
func (s staticSnap) HasAdapters() bool            { return s.adapters }

var t0 = time.Date(2024, 8, 1, 10, 30, 0, 0, time.UTC)

func fixture(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	if _, err := st.Create(context.Background(), model.ShutdownEvent{ID: "s1", Region: "Manipur", StartTime: t0, ReasonCategory: model.ReasonViolence}); err != nil {
		t.Fatal(err)
	}
	snap := aggregator.Snapshot{
		Events: []model.ShutdownEvent{
			{ID: "s1", Region: "Manipur", StartTime: t0, EventType: model.EventFull, ReasonCategory: model.ReasonViolence, SourceType: model.SourcePrimaryStore},
			{ID: "o1", Region: "Manipur", StartTime: t0.Add(time.Hour), EventType: model.EventThrottled, ThrottleTransition: &model.ThrottleTransition{From: "4G", To: "2G"}, ReasonCategory: model.ReasonOther, SourceType: model.SourceOONI},
			{ID: "f1", Region: "Delhi", StartTime: t0.Add(2 * time.Hour), EventType: model.EventFull, ReasonCategory: model.ReasonExam, SourceType: model.SourceSFLC},
		},
		Sources: map[string]aggregator.Status{
			"sflc": {Source: "sflc"},
			"ooni": {Source: "ooni", Degraded: true},
		},
	}
	return New(staticSnap{snap: snap, adapters: true}, st), st
}

func TestQuery_SnapshotVersusStore(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	res, err := svc.Query(ctx, query.Filter{}, query.DefaultSort, query.Page{Number: 1, Size: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Pages != 2 || res.Events[0].ID != "f1" {
		t.Fatalf("unexpected page: %+v", res)
	}
	if res.Events[0].Coordinates == nil || res.Events[0].Coordinates.Lat != 28.7041 {
		t.Fatalf("expected Delhi coordinates, got %+v", res.Events[0].Coordinates)
	}

	res, err = svc.Query(ctx, query.Filter{Source: "PRIMARY_STORE"}, query.DefaultSort, query.Page{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Events[0].ID != "s1" {
		t.Fatalf("expected store-served result, got %+v", res)
	}
}

func TestStatistics(t *testing.T) {
	svc, _ := fixture(t)
	rep, err := svc.Statistics(context.Background(), query.Filter{Region: "MN"})
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalCount != 2 || rep.ByReasonCategory[model.ReasonViolence] != 1 || rep.MostAffectedRegion != "Manipur" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

// failingStore has no server-side aggregates, so Statistics falls back to Find.
type failingStore struct{}

var errReset = &store.QueryError{Op: "find", Err: errors.New("connection reset")}

func (failingStore) Find(context.Context, query.Filter) ([]model.ShutdownEvent, error) {
	return nil, errReset
}
func (failingStore) Query(context.Context, query.Filter, query.Sort, query.Page) (query.Result, error) {
	return query.Result{}, errReset
}
func (failingStore) Get(context.Context, string) (model.ShutdownEvent, error) {
	return model.ShutdownEvent{}, errReset
}
func (failingStore) Create(context.Context, model.ShutdownEvent) (model.ShutdownEvent, error) {
	return model.ShutdownEvent{}, errReset
}
func (failingStore) Update(context.Context, string, model.ShutdownEvent) (model.ShutdownEvent, error) {
	return model.ShutdownEvent{}, errReset
}
func (failingStore) Delete(context.Context, string) error { return errReset }

func TestStoreOnly_SurfacesQueryError(t *testing.T) {
	svc := New(staticSnap{}, failingStore{})
	var qe *store.QueryError
	if _, err := svc.Statistics(context.Background(), query.Filter{}); !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if _, err := svc.Query(context.Background(), query.Filter{}, query.DefaultSort, query.Page{}); !errors.As(err, &qe) {
		t.Fatalf("expected QueryError, got %v", err)
	}
}

func TestGet(t *testing.T) {
	svc, st := fixture(t)
	ctx := context.Background()
	if e, err := svc.Get(ctx, "o1"); err != nil || e.SourceType != model.SourceOONI {
		t.Fatalf("snapshot lookup: %+v %v", e, err)
	}
	created, err := st.Create(ctx, model.ShutdownEvent{Region: "Bihar", StartTime: t0})
	if err != nil {
		t.Fatal(err)
	}
	if e, err := svc.Get(ctx, created.ID); err != nil || e.Region != "Bihar" || e.Coordinates == nil {
		t.Fatalf("store fallback: %+v %v", e, err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegions(t *testing.T) {
	svc, _ := fixture(t)
	ctx := context.Background()

	d, err := svc.RegionDetails(ctx, "mn")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "Manipur" || d.Total != 2 || d.Full != 1 || d.Throttled != 1 || d.Events[0].ID != "o1" {
		t.Fatalf("unexpected details: %+v", d)
	}
	if _, err := svc.RegionDetails(ctx, "Atlantis"); !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("expected unknown region, got %v", err)
	}

	counts, err := svc.RegionCounts(ctx, query.Filter{EventType: "FULL"})
	if err != nil {
		t.Fatal(err)
	}
	if counts["Manipur"] != 1 || counts["Delhi"] != 1 || len(counts) != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if len(svc.Regions()) == 0 {
		t.Fatal("expected region vocabulary")
	}
}

func TestSourceStatuses_Sorted(t *testing.T) {
	svc, _ := fixture(t)
	st := svc.SourceStatuses()
	if len(st) != 2 || st[0].Source != "ooni" || !st[0].Degraded {
		t.Fatalf("unexpected statuses: %+v", st)
	}
}
