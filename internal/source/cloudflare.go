package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/postprocess"
)

type radarLocation struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type radarASN struct {
	ASN       string        `json:"asn"`
	Name      string        `json:"name"`
	Locations radarLocation `json:"locations"`
}

type radarAnnotation struct {
	ID               string          `json:"id"`
	Description      string          `json:"description"`
	Scope            string          `json:"scope"`
	StartDate        string          `json:"startDate"`
	EndDate          *string         `json:"endDate"`
	LinkedURL        string          `json:"linkedUrl"`
	Locations        []string        `json:"locations"`
	LocationsDetails []radarLocation `json:"locationsDetails"`
	ASNsDetails      []radarASN      `json:"asnsDetails"`
	Outage           struct {
		Cause string `json:"outageCause"`
		Type  string `json:"outageType"`
	} `json:"outage"`
}

type radarResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Annotations []radarAnnotation `json:"annotations"`
	} `json:"result"`
}

// NewCloudflareSource builds the Cloudflare Radar outage-annotations adapter.
func NewCloudflareSource(s Settings, cfg config.CloudflareConfig, cls *postprocess.Classifier) (Source, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("cloudflare: api_token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudflare.com/client/v4"
	}
	if cfg.Location == "" {
		cfg.Location = "IN"
	}
	if cfg.DateRange == "" {
		cfg.DateRange = "7d"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}

	hs := newHTTPSource(newBase(s, model.SourceCloudflareRadar, 10*time.Minute), cfg.HTTP, cfg.Retry, cls)
	hs.header.Set("Authorization", "Bearer "+cfg.APIToken)
	hs.buildURL = func(w model.TimeRange) string {
		q := url.Values{}
		q.Set("location", cfg.Location)
		q.Set("limit", strconv.Itoa(cfg.Limit))
		q.Set("format", "json")
		if !w.From.IsZero() {
			q.Set("dateStart", w.From.UTC().Format(time.RFC3339))
			q.Set("dateEnd", w.To.UTC().Format(time.RFC3339))
		} else {
			q.Set("dateRange", cfg.DateRange)
		}
		return strings.TrimRight(cfg.BaseURL, "/") + "/radar/annotations/outages?" + q.Encode()
	}
	hs.normalize = func(raw []byte, _ model.TimeRange) ([]model.ShutdownEvent, []error, error) {
		return normalizeRadar(raw)
	}
	return hs, nil
}

func normalizeRadar(raw []byte) ([]model.ShutdownEvent, []error, error) {
	var resp radarResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, err
	}
	if !resp.Success {
		msg := "unsuccessful response"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].Message
		}
		return nil, nil, errors.New(msg)
	}

	var (
		events  []model.ShutdownEvent
		skipped []error
	)
	for _, a := range resp.Result.Annotations {
		ev, err := radarEvent(a)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("annotation %s: %w", a.ID, err))
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func radarEvent(a radarAnnotation) (model.ShutdownEvent, error) {
	if a.StartDate == "" {
		return model.ShutdownEvent{}, errors.New("missing startDate")
	}
	start, err := parseTimeFlexible(a.StartDate)
	if err != nil {
		return model.ShutdownEvent{}, err
	}

	region := strings.TrimSpace(a.Scope)
	if region == "" && len(a.LocationsDetails) > 0 {
		region = a.LocationsDetails[0].Name
	}
	if region == "" && len(a.Locations) > 0 {
		region = a.Locations[0]
	}
	if region == "" {
		return model.ShutdownEvent{}, errors.New("missing scope and location")
	}
	// An unknown scope (a city or district) becomes the subregion of the
	// location's region.
	subregion := ""
	if _, ok := model.LookupRegion(region); !ok {
		if len(a.LocationsDetails) > 0 {
			if r, ok := model.LookupRegion(a.LocationsDetails[0].Name); ok {
				subregion, region = region, r.Name
			}
		}
	}

	reason := strings.TrimSpace(a.Description)
	if reason == "" {
		reason = humanize(a.Outage.Cause)
	}

	ev := model.ShutdownEvent{
		ID:        "cloudflare:" + a.ID,
		Region:    region,
		Subregion: subregion,
		StartTime: start,
		EventType: model.EventFull,
		Reason:    reason,
		SourceURL: a.LinkedURL,
	}
	if a.ID == "" {
		ev.ID = "cloudflare:" + strings.ToLower(region) + ":" + start.Format("20060102T1504")
	}
	if a.EndDate != nil && strings.TrimSpace(*a.EndDate) != "" {
		end, err := parseTimeFlexible(*a.EndDate)
		if err != nil {
			return model.ShutdownEvent{}, fmt.Errorf("endDate: %w", err)
		}
		ev.EndTime = &end
	}
	for _, asn := range a.ASNsDetails {
		name := asn.Name
		if name == "" {
			name = "AS" + asn.ASN
		}
		ev.OperatorImpacts = append(ev.OperatorImpacts, model.OperatorImpact{OperatorName: name})
	}
	return ev, nil
}

// humanize turns GOVERNMENT_DIRECTED into "Government directed".
func humanize(code string) string {
	code = strings.TrimSpace(strings.ReplaceAll(code, "_", " "))
	if code == "" {
		return ""
	}
	code = strings.ToLower(code)
	return strings.ToUpper(code[:1]) + code[1:]
}
