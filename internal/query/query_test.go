package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func intp(v int) *int { return &v }

func fixture() []model.ShutdownEvent {
	end := ts("2024-08-03T14:15:00Z")
	return []model.ShutdownEvent{
		{ID: "e1", Region: "Manipur", RegionCode: "MN", Subregion: "Imphal West", StartTime: ts("2024-08-01T10:30:00Z"), EndTime: &end, DurationHours: intp(52), EventType: model.EventFull, Reason: "Ethnic violence", ReasonCategory: model.ReasonViolence, SourceType: model.SourcePrimaryStore, Verified: true},
		{ID: "e2", Region: "Jammu & Kashmir", RegionCode: "JK", Subregion: "Srinagar", StartTime: ts("2024-07-20T00:00:00Z"), DurationHours: intp(1344), EventType: model.EventThrottled, ThrottleTransition: &model.ThrottleTransition{From: "4G", To: "3G"}, Reason: "Security operations", ReasonCategory: model.ReasonSecurity, SourceType: model.SourcePrimaryStore, Verified: true},
		{ID: "e3", Region: "Rajasthan", RegionCode: "RJ", Subregion: "Jaipur", StartTime: ts("2024-09-15T08:00:00Z"), EventType: model.EventFull, Reason: "Recruitment exam", ReasonCategory: model.ReasonExam, SourceType: model.SourceSFLC},
		{ID: "e4", Region: "Haryana", RegionCode: "HR", Subregion: "Sonipat", StartTime: ts("2024-09-15T08:00:00Z"), EventType: model.EventThrottled, ThrottleTransition: &model.ThrottleTransition{From: "4G", To: "2G"}, Reason: "Farmers protest", ReasonCategory: model.ReasonProtest, SourceType: model.SourceOONI},
		{ID: "e0", Region: "Manipur", RegionCode: "MN", Subregion: "Churachandpur", StartTime: ts("2024-09-15T08:00:00Z"), EventType: model.EventFull, Reason: "Clashes", ReasonCategory: model.ReasonViolence, SourceType: model.SourcePrimaryStore},
	}
}

func ids(evs []model.ShutdownEvent) string {
	s := ""
	for i, e := range evs {
		if i > 0 {
			s += ","
		}
		s += e.ID
	}
	return s
}

func TestFilter(t *testing.T) {
	yes, no := true, false
	from, to := ts("2024-08-01T00:00:00Z"), ts("2024-08-31T23:59:59Z")
	tests := []struct {
		name string
		f    Filter
		want string
	}{
		{"none", Filter{}, "e1,e2,e3,e4,e0"},
		{"all keyword", Filter{Region: "ALL", EventType: "all", ReasonCategory: "ALL"}, "e1,e2,e3,e4,e0"},
		{"region by name", Filter{Region: "manipur"}, "e1,e0"},
		{"region by code", Filter{Region: "JK"}, "e2"},
		{"unknown region", Filter{Region: "Atlantis"}, ""},
		{"subregion substring", Filter{Subregion: "imphal"}, "e1"},
		{"type", Filter{EventType: "THROTTLED"}, "e2,e4"},
		{"unknown type", Filter{EventType: "PARTIAL"}, ""},
		{"reason", Filter{ReasonCategory: "VIOLENCE"}, "e1,e0"},
		{"source", Filter{Source: "SFLC_IN"}, "e3"},
		{"verified", Filter{Verified: &yes}, "e1,e2"},
		{"unverified", Filter{Verified: &no}, "e3,e4,e0"},
		{"inclusive range", Filter{From: &from, To: &to}, "e1"},
		{"search any token", Filter{Search: "exam SRINAGAR"}, "e2,e3"},
		{"search no hit", Filter{Search: "tsunami"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(Apply(fixture(), tt.f)); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSort_TieBreakByID(t *testing.T) {
	evs := fixture()
	SortEvents(evs, Sort{Field: FieldStartTime, Desc: true})
	if got := ids(evs); got != "e0,e3,e4,e1,e2" {
		t.Fatalf("desc order = %s", got)
	}
	SortEvents(evs, Sort{Field: FieldStartTime})
	if got := ids(evs); got != "e2,e1,e0,e3,e4" {
		t.Fatalf("asc order = %s", got)
	}
}

func TestSort_ByIDHonoursDirection(t *testing.T) {
	evs := fixture()
	SortEvents(evs, ParseSort("id", "desc"))
	if got := ids(evs); got != "e4,e3,e2,e1,e0" {
		t.Fatalf("id desc = %s", got)
	}
	SortEvents(evs, ParseSort("id", "asc"))
	if got := ids(evs); got != "e0,e1,e2,e3,e4" {
		t.Fatalf("id asc = %s", got)
	}

	res := Run(fixture(), Filter{}, ParseSort("id", "desc"), Page{Number: 1, Size: 2})
	if got := ids(res.Events); got != "e4,e3" {
		t.Fatalf("first page id desc = %s", got)
	}
}

func TestSort_AbsentValuesSortSmallest(t *testing.T) {
	evs := fixture()
	SortEvents(evs, Sort{Field: FieldDuration})
	if got := ids(evs); got != "e0,e3,e4,e1,e2" {
		t.Fatalf("duration asc = %s", got)
	}
	SortEvents(evs, Sort{Field: FieldEndTime, Desc: true})
	if evs[0].ID != "e1" {
		t.Fatalf("expected the only ended event first, got %s", ids(evs))
	}
}

func TestParseSort(t *testing.T) {
	if s := ParseSort("startDate", "asc"); s.Field != FieldStartTime || s.Desc {
		t.Fatalf("unexpected %+v", s)
	}
	if s := ParseSort("state", "-1"); s.Field != FieldRegion || !s.Desc {
		t.Fatalf("unexpected %+v", s)
	}
	if s := ParseSort("id", "desc"); s.Field != FieldID || !s.Desc {
		t.Fatalf("unexpected %+v", s)
	}
	if s := ParseSort("bogus", ""); s != DefaultSort {
		t.Fatalf("unexpected %+v", s)
	}
}

func TestRun_PaginationReproducesFullSet(t *testing.T) {
	var evs []model.ShutdownEvent
	base := ts("2024-01-01T00:00:00Z")
	for i := 0; i < 53; i++ {
		evs = append(evs, model.ShutdownEvent{
			ID:        fmt.Sprintf("id-%02d", i),
			Region:    "Delhi",
			StartTime: base.Add(time.Duration(i%7) * time.Hour),
			EventType: model.EventFull,
		})
	}
	s := Sort{Field: FieldStartTime, Desc: true}
	full := Run(evs, Filter{}, s, Page{Number: 1, Size: 1000})

	for _, size := range []int{1, 5, 10, 25} {
		first := Run(evs, Filter{}, s, Page{Number: 1, Size: size})
		if first.Pages != (53+size-1)/size {
			t.Fatalf("size %d: pages = %d", size, first.Pages)
		}
		var all []model.ShutdownEvent
		seen := map[string]bool{}
		for k := 1; k <= first.Pages; k++ {
			page := Run(evs, Filter{}, s, Page{Number: k, Size: size})
			if page.Total != 53 {
				t.Fatalf("total = %d", page.Total)
			}
			for _, e := range page.Events {
				if seen[e.ID] {
					t.Fatalf("size %d: duplicate %s", size, e.ID)
				}
				seen[e.ID] = true
			}
			all = append(all, page.Events...)
		}
		if ids(all) != ids(full.Events) {
			t.Fatalf("size %d: concatenated pages differ from the full set", size)
		}
	}
}

func TestRun_PageBeyondRange(t *testing.T) {
	res := Run(fixture(), Filter{}, DefaultSort, Page{Number: 9, Size: 25})
	if res.Events == nil || len(res.Events) != 0 {
		t.Fatalf("expected empty non-nil page, got %v", res.Events)
	}
	if res.Total != 5 || res.Pages != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRun_Defaults(t *testing.T) {
	res := Run(nil, Filter{}, DefaultSort, Page{})
	if res.Page != 1 || res.Size != DefaultPageSize || res.Pages != 0 || res.Total != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRun_DoesNotReorderInput(t *testing.T) {
	evs := fixture()
	Run(evs, Filter{}, Sort{Field: FieldRegion}, Page{})
	if ids(evs) != "e1,e2,e3,e4,e0" {
		t.Fatalf("input reordered: %s", ids(evs))
	}
}
