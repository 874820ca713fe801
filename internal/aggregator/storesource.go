package aggregator

import (
	"context"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

// StoreSourceName is the status key of the primary store.
const StoreSourceName = "store"

// storeSource lets the primary store run through the same bounded fetch
// harness as the adapters.
type storeSource struct {
	st       store.Store
	interval time.Duration
	timeout  time.Duration
}

func (s storeSource) Name() string                 { return StoreSourceName }
func (s storeSource) SourceType() model.SourceType { return model.SourcePrimaryStore }
func (s storeSource) Interval() time.Duration      { return s.interval }
func (s storeSource) Timeout() time.Duration       { return s.timeout }

func (s storeSource) Fetch(ctx context.Context, window model.TimeRange) ([]model.ShutdownEvent, error) {
	var f query.Filter
	if !window.From.IsZero() {
		from := window.From
		f.From = &from
	}
	return s.st.Find(ctx, f)
}
