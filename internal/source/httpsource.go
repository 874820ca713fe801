package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/postprocess"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/util"
)

// NormalizeFunc maps a provider payload onto canonical events. Record-level
// problems go into skipped; a non-nil error means the payload as a whole
// could not be read.
type NormalizeFunc func(raw []byte, window model.TimeRange) (events []model.ShutdownEvent, skipped []error, err error)

// httpSource is the shared GET-then-normalize adapter used by every provider.
type httpSource struct {
	base
	client     *http.Client
	header     http.Header
	retry      config.RetryConfig
	buildURL   func(window model.TimeRange) string
	normalize  NormalizeFunc
	classifier *postprocess.Classifier
}

func newHTTPSource(b base, hc config.CommonHTTP, rc config.RetryConfig, cls *postprocess.Classifier) *httpSource {
	h := http.Header{}
	h.Set("Accept", "application/json")
	if hc.UserAgent != "" {
		h.Set("User-Agent", hc.UserAgent)
	}
	return &httpSource{
		base:       b,
		client:     util.NewHTTPClient(defaultDur(hc.Timeout, 15*time.Second)),
		header:     h,
		retry:      rc,
		classifier: cls,
	}
}

func (s *httpSource) Fetch(ctx context.Context, window model.TimeRange) ([]model.ShutdownEvent, error) {
	if window.To.IsZero() {
		window.To = time.Now().UTC()
	}
	u := s.buildURL(window)

	var body []byte
	err := util.Retry(ctx, max(1, s.retry.MaxRetries), defaultDur(s.retry.Backoff, 500*time.Millisecond), defaultDur(s.retry.MaxBackoff, 5*time.Second), func() error {
		b, err := util.GetBody(ctx, s.client, u, s.header)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, &FetchError{Source: s.name, Op: "get", Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	raw, skipped, err := s.normalize(body, window)
	if err != nil {
		return nil, &FetchError{Source: s.name, Op: "decode", Err: err}
	}
	return finish(s.name, s.typ, s.classifier, raw, skipped)
}

// finish stamps provenance, applies the classifier and validates every record.
// Invalid records are dropped and reported through a *PartialParseError.
func finish(name string, typ model.SourceType, cls *postprocess.Classifier, raw []model.ShutdownEvent, skipped []error) ([]model.ShutdownEvent, error) {
	for i := range raw {
		raw[i].SourceType = typ
	}
	raw = cls.Apply(raw)

	out := make([]model.ShutdownEvent, 0, len(raw))
	for _, ev := range raw {
		n, err := model.Normalize(ev)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("record %s: %w", ev.ID, err))
			continue
		}
		out = append(out, n)
	}
	if len(skipped) > 0 {
		return out, &PartialParseError{Source: name, Skipped: len(skipped), Errs: skipped}
	}
	return out, nil
}
