// Package memory is an in-process primary store, seeded from a JSON file.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/stats"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

// Store keeps events in insertion order.
type Store struct {
	mu    sync.RWMutex
	order []string
	data  map[string]model.ShutdownEvent
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Aggregates = (*Store)(nil)
)

func New() *Store {
	return &Store{data: make(map[string]model.ShutdownEvent)}
}

// LoadSeed reads a JSON array of events from path and inserts each one.
// Records that fail validation abort the load.
func LoadSeed(ctx context.Context, s *Store, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var seed []model.ShutdownEvent
	if err := json.Unmarshal(b, &seed); err != nil {
		return 0, fmt.Errorf("decode seed %s: %w", path, err)
	}
	for i, e := range seed {
		if _, err := s.Create(ctx, e); err != nil {
			return i, fmt.Errorf("seed record %d: %w", i, err)
		}
	}
	return len(seed), nil
}

func (s *Store) Find(ctx context.Context, f query.Filter) ([]model.ShutdownEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, &store.QueryError{Op: "find", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ShutdownEvent, 0, len(s.order))
	for _, id := range s.order {
		if e := s.data[id]; f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, f query.Filter, srt query.Sort, p query.Page) (query.Result, error) {
	evs, err := s.Find(ctx, f)
	if err != nil {
		return query.Result{}, err
	}
	return query.Run(evs, query.Filter{}, srt, p), nil
}

func (s *Store) Statistics(ctx context.Context, f query.Filter) (stats.Report, error) {
	if err := ctx.Err(); err != nil {
		return stats.Report{}, &store.QueryError{Op: "statistics", Err: err}
	}
	acc := stats.New()
	s.mu.RLock()
	for _, id := range s.order {
		if e := s.data[id]; f.Match(e) {
			acc.Add(e)
		}
	}
	s.mu.RUnlock()
	return acc.Report(), nil
}

func (s *Store) Get(ctx context.Context, id string) (model.ShutdownEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok {
		return model.ShutdownEvent{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) Create(ctx context.Context, e model.ShutdownEvent) (model.ShutdownEvent, error) {
	e, err := store.PrepareWrite(e)
	if err != nil {
		return model.ShutdownEvent{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[e.ID]; exists {
		return model.ShutdownEvent{}, fmt.Errorf("%w: %s", store.ErrConflict, e.ID)
	}
	s.data[e.ID] = e
	s.order = append(s.order, e.ID)
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, e model.ShutdownEvent) (model.ShutdownEvent, error) {
	e.ID = id
	e, err := store.PrepareWrite(e)
	if err != nil {
		return model.ShutdownEvent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return model.ShutdownEvent{}, store.ErrNotFound
	}
	s.data[id] = e
	return e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.data, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
