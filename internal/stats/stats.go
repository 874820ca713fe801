// Package stats computes grouped counts, averages and time series over events.
//
// The Accumulator consumes events one at a time so callers can stream a
// filtered snapshot or a store cursor without materializing it.
package stats

import (
	"math"
	"sort"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

type ReasonShare struct {
	Category   model.ReasonCategory `json:"category"`
	Count      int                  `json:"count"`
	Percentage float64              `json:"percentage"`
}

type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

type OperatorTotal struct {
	OperatorName       string  `json:"operatorName"`
	TowersBlocked      int     `json:"towersBlocked"`
	CoverageAreaSqKm   float64 `json:"coverageAreaSqKm"`
	AffectedPopulation int64   `json:"affectedPopulation"`
	EventCount         int     `json:"eventCount"`
}

// Report is the full statistics result for one filtered subset.
type Report struct {
	TotalCount           int                          `json:"totalCount"`
	ActiveCount          int                          `json:"activeCount"`
	AverageDurationHours float64                      `json:"averageDurationHours"`
	ByReasonCategory     map[model.ReasonCategory]int `json:"byReasonCategory"`
	ByRegion             map[string]int               `json:"byRegion"`
	MostAffectedRegion   string                       `json:"mostAffectedRegion"`
	ReasonBreakdown      []ReasonShare                `json:"reasonBreakdown"`
	Timeline             []MonthCount                 `json:"timeline"`
	OperatorImpact       []OperatorTotal              `json:"operatorImpact"`
}

// Accumulator folds events into running totals. The zero value is not usable;
// call New.
type Accumulator struct {
	total, active int
	durSum, durN  int64
	byReason      map[model.ReasonCategory]int
	reasonOrder   []model.ReasonCategory
	byRegion      map[string]int
	regionOrder   []string
	byMonth       map[string]int
	operators     map[string]*OperatorTotal
	operatorOrder []string
}

func New() *Accumulator {
	return &Accumulator{
		byReason:  make(map[model.ReasonCategory]int),
		byRegion:  make(map[string]int),
		byMonth:   make(map[string]int),
		operators: make(map[string]*OperatorTotal),
	}
}

// Add folds one event into the totals.
func (a *Accumulator) Add(e model.ShutdownEvent) {
	a.total++
	if e.Active() {
		a.active++
	}
	if e.DurationHours != nil {
		a.durSum += int64(*e.DurationHours)
		a.durN++
	}

	cat := e.ReasonCategory
	if cat == "" {
		cat = model.ReasonOther
	}
	if _, ok := a.byReason[cat]; !ok {
		a.reasonOrder = append(a.reasonOrder, cat)
	}
	a.byReason[cat]++

	if _, ok := a.byRegion[e.Region]; !ok {
		a.regionOrder = append(a.regionOrder, e.Region)
	}
	a.byRegion[e.Region]++

	a.byMonth[e.StartTime.UTC().Format("2006-01")]++

	// An operator listed twice on one event still counts that event once.
	seen := make(map[string]bool, len(e.OperatorImpacts))
	for _, op := range e.OperatorImpacts {
		t, ok := a.operators[op.OperatorName]
		if !ok {
			t = &OperatorTotal{OperatorName: op.OperatorName}
			a.operators[op.OperatorName] = t
			a.operatorOrder = append(a.operatorOrder, op.OperatorName)
		}
		t.TowersBlocked += op.TowersBlocked
		t.CoverageAreaSqKm += op.CoverageAreaSqKm
		if op.AffectedPopulation != nil {
			t.AffectedPopulation += *op.AffectedPopulation
		}
		if !seen[op.OperatorName] {
			seen[op.OperatorName] = true
			t.EventCount++
		}
	}
}

// AddAll is a convenience over Add.
func (a *Accumulator) AddAll(events []model.ShutdownEvent) {
	for _, e := range events {
		a.Add(e)
	}
}

// Report builds the result. It can be called repeatedly; later Adds are reflected.
func (a *Accumulator) Report() Report {
	g := Grouped{
		Total:         a.total,
		Active:        a.active,
		DurationSum:   a.durSum,
		DurationCount: a.durN,
	}
	for _, cat := range a.reasonOrder {
		g.Reasons = append(g.Reasons, ReasonShare{Category: cat, Count: a.byReason[cat]})
	}
	for _, region := range a.regionOrder {
		g.Regions = append(g.Regions, RegionCount{Region: region, Count: a.byRegion[region]})
	}
	for m, n := range a.byMonth {
		g.Months = append(g.Months, MonthCount{Month: m, Count: n})
	}
	for _, name := range a.operatorOrder {
		g.Operators = append(g.Operators, *a.operators[name])
	}
	return FromGrouped(g)
}

type RegionCount struct {
	Region string
	Count  int
}

// Grouped is a pre-aggregated subset, such as the rows of GROUP BY queries.
// Reasons, Regions and Operators must be in first-encountered order; that
// order breaks ties. Months may be in any order.
type Grouped struct {
	Total, Active int
	DurationSum   int64
	DurationCount int64
	Reasons       []ReasonShare
	Regions       []RegionCount
	Months        []MonthCount
	Operators     []OperatorTotal
}

// FromGrouped derives the report from grouped counts. Percentages on the
// input are ignored and recomputed.
func FromGrouped(g Grouped) Report {
	r := Report{
		TotalCount:       g.Total,
		ActiveCount:      g.Active,
		ByReasonCategory: make(map[model.ReasonCategory]int, len(g.Reasons)),
		ByRegion:         make(map[string]int, len(g.Regions)),
		ReasonBreakdown:  []ReasonShare{},
		Timeline:         []MonthCount{},
		OperatorImpact:   []OperatorTotal{},
	}
	if g.DurationCount > 0 {
		r.AverageDurationHours = Round2(float64(g.DurationSum) / float64(g.DurationCount))
	}

	best := 0
	for _, rc := range g.Regions {
		r.ByRegion[rc.Region] = rc.Count
		if rc.Count > best {
			best, r.MostAffectedRegion = rc.Count, rc.Region
		}
	}

	for _, share := range g.Reasons {
		r.ByReasonCategory[share.Category] = share.Count
		share.Percentage = 0
		if g.Total > 0 {
			share.Percentage = Round2(100 * float64(share.Count) / float64(g.Total))
		}
		r.ReasonBreakdown = append(r.ReasonBreakdown, share)
	}
	sort.SliceStable(r.ReasonBreakdown, func(i, j int) bool {
		return r.ReasonBreakdown[i].Count > r.ReasonBreakdown[j].Count
	})

	r.Timeline = append(r.Timeline, g.Months...)
	sort.Slice(r.Timeline, func(i, j int) bool { return r.Timeline[i].Month < r.Timeline[j].Month })

	for _, t := range g.Operators {
		t.CoverageAreaSqKm = Round2(t.CoverageAreaSqKm)
		r.OperatorImpact = append(r.OperatorImpact, t)
	}
	sort.SliceStable(r.OperatorImpact, func(i, j int) bool {
		a, b := r.OperatorImpact[i], r.OperatorImpact[j]
		if a.TowersBlocked != b.TowersBlocked {
			return a.TowersBlocked > b.TowersBlocked
		}
		return a.OperatorName < b.OperatorName
	})
	return r
}

// Compute is New + AddAll + Report.
func Compute(events []model.ShutdownEvent) Report {
	a := New()
	a.AddAll(events)
	return a.Report()
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
