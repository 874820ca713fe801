package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

// Result is the outcome of one bounded fetch.
type Result struct {
	Source     string
	SourceType model.SourceType
	Events     []model.ShutdownEvent
	Skipped    int
	Err        error // nil, *PartialParseError or *FetchError
	Duration   time.Duration
}

// Failed reports whether the source contributed nothing this cycle.
func (r Result) Failed() bool {
	return r.Err != nil && !IsPartial(r.Err)
}

// Run calls src.Fetch under its own timeout and never lets a panic or a hung
// provider escape. It returns once Fetch finishes or the timeout fires,
// whichever is first; a fetch still running after the timeout is abandoned.
func Run(ctx context.Context, src Source, window model.TimeRange) Result {
	start := time.Now()
	res := Result{Source: src.Name(), SourceType: src.SourceType()}

	timeout := src.Timeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		events []model.ShutdownEvent
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &FetchError{Source: src.Name(), Op: "panic", Err: fmt.Errorf("%v", r)}}
			}
		}()
		evs, err := src.Fetch(fctx, window)
		done <- outcome{events: evs, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-fctx.Done():
		out = outcome{err: fctx.Err()}
	}
	res.Duration = time.Since(start)

	err := out.err
	if err != nil && !IsPartial(err) && !isFetchError(err) {
		op := "get"
		if errors.Is(err, context.DeadlineExceeded) {
			op = "timeout"
		}
		err = &FetchError{Source: src.Name(), Op: op, Err: err}
	}
	if err != nil && !IsPartial(err) {
		res.Err = err
		return res
	}

	res.Events = out.events
	res.Err = err
	var pe *PartialParseError
	if errors.As(err, &pe) {
		res.Skipped = pe.Skipped
	}
	return res
}

func isFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
