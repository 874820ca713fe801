package source

import (
	"context"
	"fmt"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/config"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/postprocess"
)

// Source fetches one provider's data and maps it onto the canonical event.
//
// Fetch may return events together with a *PartialParseError when some records
// were skipped. A *FetchError means the provider contributed nothing this cycle.
type Source interface {
	Name() string
	SourceType() model.SourceType
	Interval() time.Duration
	Timeout() time.Duration
	Fetch(ctx context.Context, window model.TimeRange) ([]model.ShutdownEvent, error)
}

// Settings are the scheduling knobs shared by every adapter.
type Settings struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
}

type base struct {
	name     string
	typ      model.SourceType
	interval time.Duration
	timeout  time.Duration
}

func newBase(s Settings, typ model.SourceType, defInterval time.Duration) base {
	return base{
		name:     s.Name,
		typ:      typ,
		interval: defaultDur(s.Interval, defInterval),
		timeout:  defaultDur(s.Timeout, 20*time.Second),
	}
}

func (b base) Name() string                 { return b.name }
func (b base) SourceType() model.SourceType { return b.typ }
func (b base) Interval() time.Duration      { return b.interval }
func (b base) Timeout() time.Duration       { return b.timeout }

// NewFromConfig builds the adapter for one configured source. The classifier
// may be nil, in which case provider categories are kept as-is.
func NewFromConfig(c config.SourceConfig, cls *postprocess.Classifier) (Source, error) {
	s := Settings{Name: c.Name, Interval: c.Interval, Timeout: c.Timeout}
	if s.Name == "" {
		s.Name = c.Type
	}
	switch c.Type {
	case "ooni":
		return NewOONISource(s, c.OONI, cls), nil
	case "sflc":
		return NewSFLCSource(s, c.SFLC, cls)
	case "cloudflare":
		return NewCloudflareSource(s, c.Cloudflare, cls)
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}
