package source

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/postprocess"
)

const ooniExplorer = "https://explorer.ooni.org/chart/mat"

type ooniMeasurement struct {
	UID       string `json:"measurement_uid"`
	ProbeASN  string `json:"probe_asn"`
	ProbeCC   string `json:"probe_cc"`
	StartTime string `json:"measurement_start_time"`
	Anomaly   bool   `json:"anomaly"`
	Confirmed bool   `json:"confirmed"`
	Failure   bool   `json:"failure"`
	Input     string `json:"input"`
}

type ooniGroup struct {
	asn       string
	day       time.Time
	total     int
	failed    int
	confirmed int
	first     time.Time
	last      time.Time
}

// NewOONISource builds the OONI measurements adapter. Measurements are grouped
// per network (ASN) and day; a group whose anomaly rate reaches
// MinFailureRate becomes one FULL event for that network.
func NewOONISource(s Settings, cfg config.OONIConfig, cls *postprocess.Classifier) Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ooni.io"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "IN"
	}
	if cfg.TestName == "" {
		cfg.TestName = "web_connectivity"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.MinFailureRate <= 0 {
		cfg.MinFailureRate = 0.5
	}
	if cfg.MinMeasurements <= 0 {
		cfg.MinMeasurements = 5
	}
	cfg.Window = defaultDur(cfg.Window, 7*24*time.Hour)

	hs := newHTTPSource(newBase(s, model.SourceOONI, 5*time.Minute), cfg.HTTP, cfg.Retry, cls)
	hs.buildURL = func(w model.TimeRange) string {
		from := w.From
		if from.IsZero() {
			from = w.To.Add(-cfg.Window)
		}
		q := url.Values{}
		q.Set("probe_cc", cfg.CountryCode)
		q.Set("test_name", cfg.TestName)
		q.Set("since", from.UTC().Format("2006-01-02"))
		q.Set("until", w.To.UTC().AddDate(0, 0, 1).Format("2006-01-02"))
		q.Set("limit", strconv.Itoa(cfg.Limit))
		q.Set("order_by", "measurement_start_time")
		q.Set("order", "asc")
		return strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/measurements?" + q.Encode()
	}
	hs.normalize = func(raw []byte, w model.TimeRange) ([]model.ShutdownEvent, []error, error) {
		return normalizeOONI(raw, w, cfg)
	}
	return hs
}

func normalizeOONI(raw []byte, w model.TimeRange, cfg config.OONIConfig) ([]model.ShutdownEvent, []error, error) {
	var payload struct {
		Results []ooniMeasurement `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, err
	}

	var skipped []error
	groups := make(map[string]*ooniGroup)
	var order []string
	for _, m := range payload.Results {
		if m.ProbeASN == "" {
			skipped = append(skipped, fmt.Errorf("measurement %s: missing probe_asn", m.UID))
			continue
		}
		ts, err := parseTimeFlexible(m.StartTime)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("measurement %s: %w", m.UID, err))
			continue
		}
		day := ts.Truncate(24 * time.Hour)
		key := m.ProbeASN + "|" + day.Format("2006-01-02")
		g, ok := groups[key]
		if !ok {
			g = &ooniGroup{asn: m.ProbeASN, day: day}
			groups[key] = g
			order = append(order, key)
		}
		g.total++
		if m.Anomaly || m.Confirmed {
			g.failed++
			if g.first.IsZero() || ts.Before(g.first) {
				g.first = ts
			}
			if ts.After(g.last) {
				g.last = ts
			}
		}
		if m.Confirmed {
			g.confirmed++
		}
	}
	sort.Strings(order)

	today := w.To.UTC().Truncate(24 * time.Hour)
	var events []model.ShutdownEvent
	for _, key := range order {
		g := groups[key]
		if g.total < cfg.MinMeasurements || g.failed == 0 {
			continue
		}
		rate := float64(g.failed) / float64(g.total)
		if rate < cfg.MinFailureRate {
			continue
		}
		region := cfg.ASNRegions[g.asn]
		if region == "" {
			region = cfg.DefaultRegion
		}
		if region == "" {
			region = model.NationalRegion.Name
		}
		operator := cfg.ASNNames[g.asn]
		if operator == "" {
			operator = g.asn
		}
		ev := model.ShutdownEvent{
			ID:        "ooni:" + g.asn + ":" + g.day.Format("2006-01-02"),
			Region:    region,
			StartTime: g.first,
			EventType: model.EventFull,
			Reason:    fmt.Sprintf("OONI measurements: %d of %d anomalous on %s", g.failed, g.total, operator),
			SourceURL: ooniURL(cfg.CountryCode, g.asn, g.day),
			Verified:  g.confirmed > 0,
			OperatorImpacts: []model.OperatorImpact{
				{OperatorName: operator},
			},
		}
		if g.day.Before(today) {
			end := g.last
			ev.EndTime = &end
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func ooniURL(cc, asn string, day time.Time) string {
	q := url.Values{}
	q.Set("probe_cc", cc)
	q.Set("probe_asn", asn)
	q.Set("since", day.Format("2006-01-02"))
	q.Set("until", day.AddDate(0, 0, 1).Format("2006-01-02"))
	q.Set("axis_x", "measurement_start_day")
	return ooniExplorer + "?" + q.Encode()
}
