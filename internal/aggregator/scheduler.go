package aggregator

import (
	"context"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/source"
)

// Start runs one full refresh, then refreshes every source on its own
// ticker until Stop is called or ctx ends. The store is re-read every
// Options.Interval. Start returns immediately.
func (a *Aggregator) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Tickers are created before any goroutine starts so a fake clock sees
	// all of them once Start returns.
	tickers := make([]Ticker, len(a.sources))
	for i, src := range a.sources {
		tickers[i] = a.clock.NewTicker(intervalOf(src))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Refresh(ctx)
		for i, src := range a.sources {
			a.wg.Add(1)
			go a.loop(ctx, src.Name(), tickers[i])
		}
	}()
	return nil
}

func (a *Aggregator) loop(ctx context.Context, name string, t Ticker) {
	defer a.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if _, err := a.RefreshSource(ctx, name); err != nil {
				a.log.Error("scheduled refresh", "source", name, "err", err)
			}
		}
	}
}

// Stop cancels the scheduler and waits for in-flight refreshes to return.
func (a *Aggregator) Stop() {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
}

func intervalOf(src source.Source) time.Duration {
	if d := src.Interval(); d > 0 {
		return d
	}
	return 5 * time.Minute
}
