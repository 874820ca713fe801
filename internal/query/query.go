// Package query filters, sorts and paginates shutdown events.
package query

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

// All is accepted wherever an enum filter means "no constraint".
const All = "ALL"

const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// Filter is the flat filter object shared by queries and statistics.
// Zero values mean no constraint. Unknown enum values match nothing.
type Filter struct {
	Region         string // exact, case-insensitive; name or code
	Subregion      string // case-insensitive substring
	EventType      string
	ReasonCategory string
	Source         string
	Verified       *bool
	From           *time.Time // startTime >= From
	To             *time.Time // startTime <= To
	Search         string
}

func unset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

// Match reports whether e satisfies every constraint of f.
func (f Filter) Match(e model.ShutdownEvent) bool {
	if !unset(f.Region) && !regionMatches(f.Region, e) {
		return false
	}
	if s := strings.TrimSpace(f.Subregion); s != "" &&
		!strings.Contains(strings.ToLower(e.Subregion), strings.ToLower(s)) {
		return false
	}
	if !unset(f.EventType) && !strings.EqualFold(f.EventType, string(e.EventType)) {
		return false
	}
	if !unset(f.ReasonCategory) && !strings.EqualFold(f.ReasonCategory, string(e.ReasonCategory)) {
		return false
	}
	if !unset(f.Source) && !strings.EqualFold(f.Source, string(e.SourceType)) {
		return false
	}
	if f.Verified != nil && *f.Verified != e.Verified {
		return false
	}
	if f.From != nil && e.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && e.StartTime.After(*f.To) {
		return false
	}
	if !f.matchesSearch(e) {
		return false
	}
	return true
}

func regionMatches(want string, e model.ShutdownEvent) bool {
	want = strings.TrimSpace(want)
	if strings.EqualFold(want, e.Region) {
		return true
	}
	if e.RegionCode != "" && strings.EqualFold(want, e.RegionCode) {
		return true
	}
	if r, ok := model.LookupRegion(want); ok {
		return strings.EqualFold(r.Name, e.Region)
	}
	return false
}

// SearchTokens splits the free-text search into lower-cased tokens.
func (f Filter) SearchTokens() []string {
	return strings.Fields(strings.ToLower(f.Search))
}

// matchesSearch is true when any token is a substring of region, subregion or reason.
func (f Filter) matchesSearch(e model.ShutdownEvent) bool {
	tokens := f.SearchTokens()
	if len(tokens) == 0 {
		return true
	}
	hay := strings.ToLower(e.Region + "\n" + e.Subregion + "\n" + e.Reason)
	for _, t := range tokens {
		if strings.Contains(hay, t) {
			return true
		}
	}
	return false
}

// Apply returns the events matching f, in input order.
func Apply(events []model.ShutdownEvent, f Filter) []model.ShutdownEvent {
	out := make([]model.ShutdownEvent, 0, len(events))
	for _, e := range events {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Sort fields accepted by Sort.Field.
const (
	FieldStartTime      = "startTime"
	FieldEndTime        = "endTime"
	FieldDuration       = "durationHours"
	FieldRegion         = "region"
	FieldSubregion      = "subregion"
	FieldEventType      = "eventType"
	FieldReasonCategory = "reasonCategory"
	FieldSource         = "sourceType"
	FieldVerified       = "verified"
	FieldID             = "id"
)

var sortAliases = map[string]string{
	"starttime":      FieldStartTime,
	"startdate":      FieldStartTime,
	"endtime":        FieldEndTime,
	"enddate":        FieldEndTime,
	"durationhours":  FieldDuration,
	"duration":       FieldDuration,
	"region":         FieldRegion,
	"state":          FieldRegion,
	"subregion":      FieldSubregion,
	"district":       FieldSubregion,
	"eventtype":      FieldEventType,
	"type":           FieldEventType,
	"reasoncategory": FieldReasonCategory,
	"reason":         FieldReasonCategory,
	"sourcetype":     FieldSource,
	"source":         FieldSource,
	"verified":       FieldVerified,
	"id":             FieldID,
}

// Sort orders by a single field; ties are broken by id ascending, except
// when the field is id itself.
type Sort struct {
	Field string
	Desc  bool
}

// DefaultSort is newest first.
var DefaultSort = Sort{Field: FieldStartTime, Desc: true}

// ParseSort maps a field name (camelCase or the legacy names) and an order
// ("asc"/"desc") onto a Sort. Unknown fields fall back to startTime.
func ParseSort(field, order string) Sort {
	s := DefaultSort
	if f, ok := sortAliases[strings.ToLower(strings.TrimSpace(field))]; ok {
		s.Field = f
	}
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "asc", "ascending", "1":
		s.Desc = false
	case "desc", "descending", "-1":
		s.Desc = true
	}
	return s
}

// compare returns <0, 0, >0. Absent end times and durations sort as smallest.
func compare(a, b model.ShutdownEvent, field string) int {
	switch field {
	case FieldEndTime:
		return cmpTimePtr(a.EndTime, b.EndTime)
	case FieldDuration:
		return cmpIntPtr(a.DurationHours, b.DurationHours)
	case FieldRegion:
		return strings.Compare(a.Region, b.Region)
	case FieldSubregion:
		return strings.Compare(a.Subregion, b.Subregion)
	case FieldEventType:
		return strings.Compare(string(a.EventType), string(b.EventType))
	case FieldReasonCategory:
		return strings.Compare(string(a.ReasonCategory), string(b.ReasonCategory))
	case FieldSource:
		return strings.Compare(string(a.SourceType), string(b.SourceType))
	case FieldVerified:
		return cmpBool(a.Verified, b.Verified)
	case FieldID:
		return strings.Compare(a.ID, b.ID)
	default:
		return a.StartTime.Compare(b.StartTime)
	}
}

func cmpTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func cmpIntPtr(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// SortEvents sorts in place. The id tie-break is always ascending so that
// pages stay disjoint regardless of direction.
func SortEvents(events []model.ShutdownEvent, s Sort) {
	sort.SliceStable(events, func(i, j int) bool {
		c := compare(events[i], events[j], s.Field)
		if c != 0 {
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return events[i].ID < events[j].ID
	})
}

// Page is 1-indexed.
type Page struct {
	Number int
	Size   int
}

// Normalized clamps the page into valid bounds.
func (p Page) Normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the index of the first event on the page.
func (p Page) Offset() int {
	p = p.Normalized()
	return (p.Number - 1) * p.Size
}

// Result is one page plus the filtered total.
type Result struct {
	Events []model.ShutdownEvent `json:"events"`
	Total  int                   `json:"total"`
	Page   int                   `json:"page"`
	Size   int                   `json:"limit"`
	Pages  int                   `json:"pages"`
}

// Pages returns ceil(total/size), 0 for an empty set.
func Pages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(size)))
}

// Run filters, sorts and slices events. The input slice is not modified.
// A page past the end yields an empty, non-nil slice.
func Run(events []model.ShutdownEvent, f Filter, s Sort, p Page) Result {
	p = p.Normalized()
	matched := Apply(events, f)
	SortEvents(matched, s)

	res := Result{Total: len(matched), Page: p.Number, Size: p.Size, Pages: Pages(len(matched), p.Size)}
	off := p.Offset()
	if off >= len(matched) {
		res.Events = []model.ShutdownEvent{}
		return res
	}
	end := off + p.Size
	if end > len(matched) {
		end = len(matched)
	}
	res.Events = matched[off:end]
	return res
}
