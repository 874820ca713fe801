package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type EventType string

const (
	EventFull      EventType = "FULL"
	EventThrottled EventType = "THROTTLED"
)

func (t EventType) Valid() bool { return t == EventFull || t == EventThrottled }

type ReasonCategory string

const (
	ReasonViolence  ReasonCategory = "VIOLENCE"
	ReasonProtest   ReasonCategory = "PROTEST"
	ReasonExam      ReasonCategory = "EXAM"
	ReasonSecurity  ReasonCategory = "SECURITY"
	ReasonPolitical ReasonCategory = "POLITICAL"
	ReasonOther     ReasonCategory = "OTHER"
)

// ReasonCategories lists the categories in their canonical order.
var ReasonCategories = []ReasonCategory{
	ReasonViolence, ReasonProtest, ReasonExam, ReasonSecurity, ReasonPolitical, ReasonOther,
}

func (c ReasonCategory) Valid() bool {
	for _, v := range ReasonCategories {
		if c == v {
			return true
		}
	}
	return false
}

// SourceType identifies where an event came from.
type SourceType string

const (
	SourcePrimaryStore    SourceType = "PRIMARY_STORE"
	SourceOONI            SourceType = "OONI_API"
	SourceSFLC            SourceType = "SFLC_IN"
	SourceCloudflareRadar SourceType = "CLOUDFLARE_RADAR"
)

// ThrottleTransition records a downgrade between network tiers, e.g. 4G -> 2G.
type ThrottleTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type OperatorImpact struct {
	OperatorName       string  `json:"operatorName"`
	TowersBlocked      int     `json:"towersBlocked"`
	CoverageAreaSqKm   float64 `json:"coverageAreaSqKm"`
	AffectedPopulation *int64  `json:"affectedPopulation,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ShutdownEvent is the normalized representation for all sources.
// Values are treated as immutable once a refresh cycle has published them.
type ShutdownEvent struct {
	ID                 string              `json:"id"`
	Region             string              `json:"region"`
	RegionCode         string              `json:"regionCode,omitempty"`
	Subregion          string              `json:"subregion,omitempty"`
	StartTime          time.Time           `json:"startTime"`
	EndTime            *time.Time          `json:"endTime,omitempty"`
	DurationHours      *int                `json:"durationHours,omitempty"`
	EventType          EventType           `json:"eventType"`
	ThrottleTransition *ThrottleTransition `json:"throttleTransition,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	ReasonCategory     ReasonCategory      `json:"reasonCategory"`
	SourceType         SourceType          `json:"sourceType"`
	SourceURL          string              `json:"sourceUrl,omitempty"`
	SourceDocument     string              `json:"sourceDocument,omitempty"`
	Verified           bool                `json:"verified"`
	OperatorImpacts    []OperatorImpact    `json:"operatorImpacts,omitempty"`
	Coordinates        *Coordinates        `json:"coordinates,omitempty"`
}

var (
	ErrMissingStartTime          = errors.New("start time is required")
	ErrEndBeforeStart            = errors.New("end time is before start time")
	ErrMissingSourceType         = errors.New("source type is required")
	ErrMissingRegion             = errors.New("region is required")
	ErrInvalidEventType          = errors.New("invalid event type")
	ErrMissingThrottleTransition = errors.New("throttled event requires a throttle transition")
	ErrNegativeDuration          = errors.New("duration must not be negative")
)

// Active reports whether the event has no recorded end.
func (e ShutdownEvent) Active() bool { return e.EndTime == nil }

// DedupKey is the exact-collision key used when merging one refresh cycle.
// The region is case-folded so "Manipur" and "MANIPUR" from different
// adapters collide even when a rule map left the spelling untouched.
func (e ShutdownEvent) DedupKey() string {
	return strings.ToLower(e.Region) + "|" + e.StartTime.UTC().Format(time.RFC3339Nano) + "|" + string(e.SourceType)
}

// DurationBetween rounds the span between start and end to whole hours.
func DurationBetween(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Hours()))
}

// Normalize derives the computed fields of an event and checks its invariants.
// The returned value is a fresh copy; the input is not modified.
func Normalize(e ShutdownEvent) (ShutdownEvent, error) {
	if e.StartTime.IsZero() {
		return e, ErrMissingStartTime
	}
	if e.SourceType == "" {
		return e, ErrMissingSourceType
	}
	e.Region = strings.TrimSpace(e.Region)
	if e.Region == "" {
		return e, ErrMissingRegion
	}
	if r, ok := LookupRegion(e.Region); ok {
		e.Region = r.Name
		e.RegionCode = r.Code
	}
	e.Subregion = strings.TrimSpace(e.Subregion)
	e.StartTime = e.StartTime.UTC()

	if e.EventType == "" {
		e.EventType = EventFull
	}
	if !e.EventType.Valid() {
		return e, fmt.Errorf("%w: %q", ErrInvalidEventType, e.EventType)
	}
	switch e.EventType {
	case EventThrottled:
		if e.ThrottleTransition == nil {
			return e, ErrMissingThrottleTransition
		}
		tt := *e.ThrottleTransition
		e.ThrottleTransition = &tt
	case EventFull:
		e.ThrottleTransition = nil
	}

	if !e.ReasonCategory.Valid() {
		e.ReasonCategory = ReasonOther
	}

	if e.EndTime != nil {
		end := e.EndTime.UTC()
		if end.Before(e.StartTime) {
			return e, ErrEndBeforeStart
		}
		e.EndTime = &end
		d := DurationBetween(e.StartTime, end)
		e.DurationHours = &d
	} else if e.DurationHours != nil {
		if *e.DurationHours < 0 {
			return e, ErrNegativeDuration
		}
		d := *e.DurationHours
		e.DurationHours = &d
	}

	if len(e.OperatorImpacts) > 0 {
		ops := make([]OperatorImpact, 0, len(e.OperatorImpacts))
		for _, op := range e.OperatorImpacts {
			op.OperatorName = strings.TrimSpace(op.OperatorName)
			if op.OperatorName == "" {
				continue
			}
			ops = append(ops, op)
		}
		e.OperatorImpacts = ops
	}
	if e.Coordinates != nil {
		c := *e.Coordinates
		e.Coordinates = &c
	}
	return e, nil
}

// WithCoordinates returns e with coordinates filled from the region table
// when the event carries none of its own.
func WithCoordinates(e ShutdownEvent) ShutdownEvent {
	if e.Coordinates != nil {
		return e
	}
	if r, ok := LookupRegion(e.Region); ok {
		c := r.Coordinates
		e.Coordinates = &c
	}
	return e
}

// TimeRange is a closed interval used for fetch windows.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// LastWindow returns the range ending at now and spanning d.
func LastWindow(now time.Time, d time.Duration) TimeRange {
	return TimeRange{From: now.Add(-d).UTC(), To: now.UTC()}
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}
