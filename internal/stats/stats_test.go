package stats

import (
	"math"
	"testing"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

func TestCompute_GroupsAndArgmax(t *testing.T) {
	evs := []model.ShutdownEvent{
		{ID: "1", Region: "A", ReasonCategory: model.ReasonViolence, StartTime: at("2024-08-01T00:00:00Z")},
		{ID: "2", Region: "A", ReasonCategory: model.ReasonProtest, StartTime: at("2024-08-02T00:00:00Z")},
		{ID: "3", Region: "B", ReasonCategory: model.ReasonViolence, StartTime: at("2024-09-02T00:00:00Z")},
	}
	r := Compute(evs)
	if r.ByRegion["A"] != 2 || r.ByRegion["B"] != 1 || len(r.ByRegion) != 2 {
		t.Fatalf("byRegion = %v", r.ByRegion)
	}
	if r.MostAffectedRegion != "A" {
		t.Fatalf("mostAffectedRegion = %q", r.MostAffectedRegion)
	}
	if r.ByReasonCategory[model.ReasonViolence] != 2 || r.ByReasonCategory[model.ReasonProtest] != 1 {
		t.Fatalf("byReasonCategory = %v", r.ByReasonCategory)
	}
	if r.ReasonBreakdown[0].Category != model.ReasonViolence || r.ReasonBreakdown[0].Percentage != 66.67 {
		t.Fatalf("reasonBreakdown = %+v", r.ReasonBreakdown)
	}
	if r.ReasonBreakdown[1].Percentage != 33.33 {
		t.Fatalf("reasonBreakdown = %+v", r.ReasonBreakdown)
	}
}

func TestCompute_TimelineIsSparseAndSorted(t *testing.T) {
	evs := []model.ShutdownEvent{
		{Region: "A", StartTime: at("2024-09-30T23:00:00Z")},
		{Region: "A", StartTime: at("2024-08-01T10:30:00Z")},
		{Region: "A", StartTime: at("2024-08-31T00:00:00Z")},
	}
	r := Compute(evs)
	want := []MonthCount{{"2024-08", 2}, {"2024-09", 1}}
	if len(r.Timeline) != len(want) {
		t.Fatalf("timeline = %+v", r.Timeline)
	}
	for i := range want {
		if r.Timeline[i] != want[i] {
			t.Fatalf("timeline = %+v, want %+v", r.Timeline, want)
		}
	}
}

func TestCompute_ActiveAndAverage(t *testing.T) {
	end := at("2024-08-03T14:15:00Z")
	evs := []model.ShutdownEvent{
		{Region: "A", StartTime: at("2024-08-01T10:30:00Z"), EndTime: &end, DurationHours: intp(52)},
		{Region: "A", StartTime: at("2024-08-05T00:00:00Z")},
		{Region: "B", StartTime: at("2024-08-06T00:00:00Z"), DurationHours: intp(11)},
	}
	r := Compute(evs)
	if r.ActiveCount != 2 {
		t.Fatalf("activeCount = %d", r.ActiveCount)
	}
	if r.AverageDurationHours != 31.5 {
		t.Fatalf("averageDurationHours = %v", r.AverageDurationHours)
	}
}

func TestCompute_Empty(t *testing.T) {
	r := Compute(nil)
	if r.TotalCount != 0 || r.ActiveCount != 0 || r.AverageDurationHours != 0 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	if r.MostAffectedRegion != "" {
		t.Fatalf("mostAffectedRegion = %q", r.MostAffectedRegion)
	}
	if r.ReasonBreakdown == nil || r.Timeline == nil || r.OperatorImpact == nil {
		t.Fatal("empty slices must be non-nil")
	}
}

func TestCompute_TieBreakFirstEncountered(t *testing.T) {
	evs := []model.ShutdownEvent{
		{Region: "Zeta"}, {Region: "Alpha"}, {Region: "Alpha"}, {Region: "Zeta"},
	}
	if got := Compute(evs).MostAffectedRegion; got != "Zeta" {
		t.Fatalf("mostAffectedRegion = %q, want first encountered", got)
	}
}

func TestCompute_OperatorImpact(t *testing.T) {
	evs := []model.ShutdownEvent{
		{Region: "A", OperatorImpacts: []model.OperatorImpact{
			{OperatorName: "Jio", TowersBlocked: 100, CoverageAreaSqKm: 10.5, AffectedPopulation: int64p(1000)},
			{OperatorName: "Airtel", TowersBlocked: 80},
		}},
		{Region: "B", OperatorImpacts: []model.OperatorImpact{
			{OperatorName: "Airtel", TowersBlocked: 40, CoverageAreaSqKm: 2.25},
			{OperatorName: "Airtel", TowersBlocked: 5},
		}},
		{Region: "C"},
	}
	r := Compute(evs)
	if len(r.OperatorImpact) != 2 {
		t.Fatalf("operatorImpact = %+v", r.OperatorImpact)
	}
	airtel, jio := r.OperatorImpact[0], r.OperatorImpact[1]
	if airtel.OperatorName != "Airtel" || airtel.TowersBlocked != 125 || airtel.EventCount != 2 || airtel.CoverageAreaSqKm != 2.25 {
		t.Fatalf("airtel = %+v", airtel)
	}
	if jio.TowersBlocked != 100 || jio.AffectedPopulation != 1000 || jio.EventCount != 1 {
		t.Fatalf("jio = %+v", jio)
	}
}

func TestCompute_SumsMatchTotal(t *testing.T) {
	cats := model.ReasonCategories
	regions := []string{"Delhi", "Assam", "Bihar", "Manipur"}
	var evs []model.ShutdownEvent
	for i := 0; i < 37; i++ {
		evs = append(evs, model.ShutdownEvent{
			Region:         regions[i%len(regions)],
			ReasonCategory: cats[(i*7)%len(cats)],
			StartTime:      at("2024-01-01T00:00:00Z").AddDate(0, i%5, 0),
		})
	}
	r := Compute(evs)
	sumRegion, sumReason, sumMonths := 0, 0, 0
	for _, n := range r.ByRegion {
		sumRegion += n
	}
	for _, n := range r.ByReasonCategory {
		sumReason += n
	}
	for _, m := range r.Timeline {
		sumMonths += m.Count
	}
	if sumRegion != 37 || sumReason != 37 || sumMonths != 37 {
		t.Fatalf("sums: region=%d reason=%d months=%d", sumRegion, sumReason, sumMonths)
	}
	pct := 0.0
	for _, s := range r.ReasonBreakdown {
		pct += s.Percentage
	}
	if math.Abs(pct-100) > 0.01*float64(len(r.ReasonBreakdown)) {
		t.Fatalf("percentages sum to %v", pct)
	}
}

func TestAccumulator_Streaming(t *testing.T) {
	a := New()
	a.Add(model.ShutdownEvent{Region: "A"})
	if a.Report().TotalCount != 1 {
		t.Fatal("expected 1")
	}
	a.Add(model.ShutdownEvent{Region: "B"})
	a.Add(model.ShutdownEvent{Region: "B"})
	if r := a.Report(); r.TotalCount != 3 || r.MostAffectedRegion != "B" {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestFromGrouped_MatchesAccumulator(t *testing.T) {
	r := FromGrouped(Grouped{
		Total:         4,
		Active:        1,
		DurationSum:   63,
		DurationCount: 2,
		Reasons: []ReasonShare{
			{Category: model.ReasonExam, Count: 1, Percentage: 99},
			{Category: model.ReasonViolence, Count: 3},
		},
		Regions: []RegionCount{{Region: "Assam", Count: 2}, {Region: "Bihar", Count: 2}},
		Months:  []MonthCount{{Month: "2024-09", Count: 1}, {Month: "2024-07", Count: 3}},
		Operators: []OperatorTotal{
			{OperatorName: "Jio", TowersBlocked: 5, CoverageAreaSqKm: 1.005},
			{OperatorName: "Airtel", TowersBlocked: 5},
		},
	})
	if r.AverageDurationHours != 31.5 || r.MostAffectedRegion != "Assam" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.ReasonBreakdown[0].Category != model.ReasonViolence || r.ReasonBreakdown[1].Percentage != 25 {
		t.Fatalf("unexpected breakdown: %+v", r.ReasonBreakdown)
	}
	if r.Timeline[0].Month != "2024-07" {
		t.Fatalf("timeline not sorted: %+v", r.Timeline)
	}
	if r.OperatorImpact[0].OperatorName != "Airtel" {
		t.Fatalf("expected name tie-break, got %+v", r.OperatorImpact)
	}
}
