// Package sink republishes merged shutdown events to downstream systems.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/metrics"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

// Sink is the minimal interface all sinks must implement.
type Sink interface {
	Name() string
	Push(ctx context.Context, events []model.ShutdownEvent) error
}

// Publisher fans a snapshot out to every sink. With a Dedup set, an event is
// only re-sent to a sink once its content changes or its key expires.
type Publisher struct {
	sinks   []Sink
	dedup   *store.Dedup
	metrics *metrics.Recorder
	log     *slog.Logger
}

func NewPublisher(sinks []Sink, d *store.Dedup, rec *metrics.Recorder, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{sinks: sinks, dedup: d, metrics: rec, log: log}
}

func (p *Publisher) Len() int {
	if p == nil {
		return 0
	}
	return len(p.sinks)
}

// Close releases sinks that hold connections.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, sk := range p.sinks {
		if c, ok := sk.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", sk.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Publish pushes events to all sinks concurrently. Failures are logged and
// the affected keys are forgotten so the next cycle retries them.
func (p *Publisher) Publish(ctx context.Context, events []model.ShutdownEvent) {
	if p == nil || len(p.sinks) == 0 || len(events) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sk := range p.sinks {
		batch, keys := p.fresh(sk.Name(), events)
		if len(batch) == 0 {
			continue
		}
		wg.Add(1)
		go func(sk Sink) {
			defer wg.Done()
			err := sk.Push(ctx, batch)
			p.metrics.ObserveSink(sk.Name(), err)
			if err != nil {
				if p.dedup != nil {
					p.dedup.Forget(keys)
				}
				p.log.Warn("sink push failed", "sink", sk.Name(), "events", len(batch), "err", err)
				return
			}
			p.log.Debug("sink push", "sink", sk.Name(), "events", len(batch))
		}(sk)
	}
	wg.Wait()
}

func (p *Publisher) fresh(sinkName string, events []model.ShutdownEvent) ([]model.ShutdownEvent, []string) {
	if p.dedup == nil {
		return events, nil
	}
	keys := make([]string, len(events))
	byKey := make(map[string]int, len(events))
	for i, e := range events {
		keys[i] = sinkName + "::" + ContentKey(e)
		byKey[keys[i]] = i
	}
	fresh := p.dedup.Fresh(keys)
	out := make([]model.ShutdownEvent, 0, len(fresh))
	for _, k := range fresh {
		out = append(out, events[byKey[k]])
	}
	return out, fresh
}

// ContentKey identifies an event together with its current content, so an
// event that gains an end time is published again.
func ContentKey(e model.ShutdownEvent) string {
	b, _ := json.Marshal(e)
	h := fnv.New64a()
	_, _ = h.Write(b)
	return string(e.SourceType) + ":" + e.ID + ":" + strconv.FormatUint(h.Sum64(), 16)
}
