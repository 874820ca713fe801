package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/util"
)

type lokiSink struct {
	cfg    config.LokiConfig
	client *http.Client
}

// NewLoki pushes one log line per event. Streams are labelled by job,
// source and event type; everything else goes in the line.
func NewLoki(cfg config.LokiConfig) Sink {
	return &lokiSink{cfg: cfg, client: util.NewHTTPClient(defaultTimeout(cfg.Timeout))}
}

func (l *lokiSink) Name() string { return "loki" }

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func (l *lokiSink) Push(ctx context.Context, events []model.ShutdownEvent) error {
	if len(events) == 0 {
		return nil
	}

	streams := map[string]*lokiStream{}
	var order []string
	for _, e := range events {
		line, err := json.Marshal(map[string]any{
			"id":             e.ID,
			"region":         e.Region,
			"subregion":      e.Subregion,
			"reason":         e.Reason,
			"reasonCategory": e.ReasonCategory,
			"active":         e.Active(),
			"durationHours":  e.DurationHours,
			"verified":       e.Verified,
			"sourceUrl":      e.SourceURL,
		})
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}

		key := string(e.SourceType) + "|" + string(e.EventType)
		s, ok := streams[key]
		if !ok {
			s = &lokiStream{Stream: map[string]string{
				"job":        l.cfg.Job,
				"source":     string(e.SourceType),
				"event_type": string(e.EventType),
			}}
			streams[key] = s
			order = append(order, key)
		}
		// Loki expects ns timestamp as a decimal string
		ts := strconv.FormatInt(e.StartTime.UnixNano(), 10)
		s.Values = append(s.Values, [2]string{ts, string(line)})
	}

	payload := struct {
		Streams []lokiStream `json:"streams"`
	}{}
	for _, k := range order {
		payload.Streams = append(payload.Streams, *streams[k])
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
	}
	if ua := l.cfg.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &util.StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
