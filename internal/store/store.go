// Package store defines the primary record store the tracker reads verified
// events from, plus small persistence helpers shared by the service.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/stats"
)

var (
	ErrNotFound = errors.New("shutdown event not found")
	ErrConflict = errors.New("shutdown event already exists")
)

// QueryError is a failed read against the primary store. It is surfaced to
// callers because the store is authoritative.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// Store is the primary record store. Events it returns carry
// SourceType PRIMARY_STORE.
type Store interface {
	// Find returns every event matching f in store order.
	Find(ctx context.Context, f query.Filter) ([]model.ShutdownEvent, error)
	// Query returns one sorted page plus the filtered total.
	Query(ctx context.Context, f query.Filter, s query.Sort, p query.Page) (query.Result, error)
	Get(ctx context.Context, id string) (model.ShutdownEvent, error)
	Create(ctx context.Context, e model.ShutdownEvent) (model.ShutdownEvent, error)
	Update(ctx context.Context, id string, e model.ShutdownEvent) (model.ShutdownEvent, error)
	Delete(ctx context.Context, id string) error
}

// Aggregates is implemented by stores that can compute statistics server-side.
type Aggregates interface {
	Statistics(ctx context.Context, f query.Filter) (stats.Report, error)
}

// Pinger is implemented by stores with a remote connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PrepareWrite stamps provenance and normalizes an event before it is written.
func PrepareWrite(e model.ShutdownEvent) (model.ShutdownEvent, error) {
	e.SourceType = model.SourcePrimaryStore
	return model.Normalize(e)
}
