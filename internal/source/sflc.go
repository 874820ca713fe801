package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/postprocess"
)

// NewSFLCSource builds the adapter for the SFLC.in shutdown tracker feed.
// The feed is a JSON list of shutdown orders, either bare or wrapped in
// "data"/"shutdowns"; field names vary between feed revisions.
func NewSFLCSource(s Settings, cfg config.SFLCConfig, cls *postprocess.Classifier) (Source, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("sflc: url is required")
	}
	hs := newHTTPSource(newBase(s, model.SourceSFLC, 10*time.Minute), cfg.HTTP, cfg.Retry, cls)
	hs.buildURL = func(model.TimeRange) string { return cfg.URL }
	hs.normalize = func(raw []byte, _ model.TimeRange) ([]model.ShutdownEvent, []error, error) {
		return normalizeSFLC(raw)
	}
	return hs, nil
}

func sflcRecords(raw []byte) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var rows []map[string]any
		return rows, json.Unmarshal(raw, &rows)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	for _, k := range []string{"data", "shutdowns", "results"} {
		if v, ok := wrapped[k]; ok {
			var rows []map[string]any
			if err := json.Unmarshal(v, &rows); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			return rows, nil
		}
	}
	return nil, errors.New("no shutdown list in payload")
}

func normalizeSFLC(raw []byte) ([]model.ShutdownEvent, []error, error) {
	rows, err := sflcRecords(raw)
	if err != nil {
		return nil, nil, err
	}
	var (
		events  []model.ShutdownEvent
		skipped []error
	)
	for i, m := range rows {
		ev, err := sflcEvent(m)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func sflcEvent(m map[string]any) (model.ShutdownEvent, error) {
	state := pickStr(m, "state", "region", "State")
	if state == "" {
		return model.ShutdownEvent{}, errors.New("missing state")
	}
	startRaw := pickStr(m, "start_date", "startDate", "from_date", "date")
	if startRaw == "" {
		return model.ShutdownEvent{}, errors.New("missing start date")
	}
	start, err := parseTimeFlexible(startRaw)
	if err != nil {
		return model.ShutdownEvent{}, err
	}

	ev := model.ShutdownEvent{
		Region:         state,
		Subregion:      pickStr(m, "district", "districts", "area"),
		StartTime:      start,
		EventType:      model.EventFull,
		Reason:         pickStr(m, "reason", "cause", "description"),
		ReasonCategory: model.ReasonCategory(strings.ToUpper(pickStr(m, "reason_category", "category"))),
		SourceURL:      pickStr(m, "order_link", "source_url", "link", "url"),
		SourceDocument: pickStr(m, "order_number", "order", "document"),
		Verified:       pickBool(m, "verified"),
	}

	if endRaw := pickStr(m, "end_date", "endDate", "to_date"); endRaw != "" {
		end, err := parseTimeFlexible(endRaw)
		if err != nil {
			return model.ShutdownEvent{}, fmt.Errorf("end date: %w", err)
		}
		ev.EndTime = &end
	} else if h, ok := pickNum(m, "duration_hours", "durationHours", "duration"); ok {
		d := int(h)
		ev.DurationHours = &d
	}

	kind := strings.ToLower(pickStr(m, "type", "shutdown_type", "kind"))
	if strings.Contains(kind, "throttl") || strings.Contains(kind, "2g") {
		ev.EventType = model.EventThrottled
		// Missing tiers default to 4G -> 2G.
		from := pickStr(m, "from", "from_tier", "fromNetwork")
		to := pickStr(m, "to", "to_tier", "toNetwork")
		if from == "" {
			from = "4G"
		}
		if to == "" {
			to = "2G"
		}
		ev.ThrottleTransition = &model.ThrottleTransition{From: strings.ToUpper(from), To: strings.ToUpper(to)}
	}

	if id := pickStr(m, "id", "_id", "slug"); id != "" {
		ev.ID = "sflc:" + id
	} else if n, ok := pickNum(m, "id"); ok {
		ev.ID = fmt.Sprintf("sflc:%d", int64(n))
	} else {
		ev.ID = "sflc:" + strings.ToLower(strings.ReplaceAll(state, " ", "-")) + ":" + start.Format("20060102T1504")
	}

	if ops, ok := m["operators"].([]any); ok {
		for _, o := range ops {
			switch v := o.(type) {
			case string:
				ev.OperatorImpacts = append(ev.OperatorImpacts, model.OperatorImpact{OperatorName: v})
			case map[string]any:
				op := model.OperatorImpact{OperatorName: pickStr(v, "name", "operator", "operatorName")}
				if n, ok := pickNum(v, "towers_blocked", "towersBlocked"); ok {
					op.TowersBlocked = int(n)
				}
				if n, ok := pickNum(v, "coverage_area_sq_km", "coverageAreaSqKm"); ok {
					op.CoverageAreaSqKm = n
				}
				if n, ok := pickNum(v, "affected_population", "affectedPopulation"); ok {
					p := int64(n)
					op.AffectedPopulation = &p
				}
				ev.OperatorImpacts = append(ev.OperatorImpacts, op)
			}
		}
	}
	return ev, nil
}
