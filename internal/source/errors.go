package source

import (
	"errors"
	"fmt"
)

// FetchError is a source-level failure: network, timeout, bad status or an
// undecodable payload. The source contributes zero events for the cycle.
type FetchError struct {
	Source string
	Op     string // get|decode|timeout|panic
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PartialParseError reports records that were skipped while the rest of the
// payload was kept.
type PartialParseError struct {
	Source  string
	Skipped int
	Errs    []error
}

func (e *PartialParseError) Error() string {
	if len(e.Errs) == 0 {
		return fmt.Sprintf("source %s: skipped %d records", e.Source, e.Skipped)
	}
	return fmt.Sprintf("source %s: skipped %d records (first: %v)", e.Source, e.Skipped, e.Errs[0])
}

func (e *PartialParseError) Unwrap() []error { return e.Errs }

// IsPartial reports whether err only describes skipped records.
func IsPartial(err error) bool {
	var pe *PartialParseError
	return errors.As(err, &pe)
}
