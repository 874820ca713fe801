package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

// Store implements store.Store on a pgx pool.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var (
	_ store.Store      = (*Store)(nil)
	_ store.Aggregates = (*Store)(nil)
	_ store.Pinger     = (*Store)(nil)
)

// New wraps an open pool. timeout bounds every statement; zero disables it.
func New(pool *pgxpool.Pool, timeout time.Duration) *Store {
	return &Store{pool: pool, timeout: timeout}
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

const selectColumns = `SELECT id, region, region_code, subregion, start_time, end_time, duration_hours,
	event_type, throttle_from, throttle_to, reason, reason_category, source_url, source_document,
	verified, operator_impacts, lat, lng
FROM shutdown_events`

const storeOrder = " ORDER BY created_at ASC, id ASC"

func (s *Store) Find(ctx context.Context, f query.Filter) ([]model.ShutdownEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	w := buildWhere(f)
	rows, err := s.pool.Query(ctx, selectColumns+w.sql()+storeOrder, w.args...)
	if err != nil {
		return nil, &store.QueryError{Op: "find", Err: err}
	}
	evs, err := collectEvents(rows)
	if err != nil {
		return nil, &store.QueryError{Op: "find", Err: err}
	}
	return evs, nil
}

func (s *Store) Query(ctx context.Context, f query.Filter, srt query.Sort, p query.Page) (query.Result, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p = p.Normalized()
	w := buildWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM shutdown_events"+w.sql(), w.args...).Scan(&total); err != nil {
		return query.Result{}, &store.QueryError{Op: "count", Err: err}
	}

	res := query.Result{
		Events: []model.ShutdownEvent{},
		Total:  total,
		Page:   p.Number,
		Size:   p.Size,
		Pages:  query.Pages(total, p.Size),
	}
	if p.Offset() >= total {
		return res, nil
	}

	sql := fmt.Sprintf("%s%s%s LIMIT %d OFFSET %d", selectColumns, w.sql(), orderBy(srt), p.Size, p.Offset())
	rows, err := s.pool.Query(ctx, sql, w.args...)
	if err != nil {
		return query.Result{}, &store.QueryError{Op: "query", Err: err}
	}
	evs, err := collectEvents(rows)
	if err != nil {
		return query.Result{}, &store.QueryError{Op: "query", Err: err}
	}
	res.Events = evs
	return res, nil
}

func (s *Store) Get(ctx context.Context, id string) (model.ShutdownEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectColumns+" WHERE id = $1", id)
	if err != nil {
		return model.ShutdownEvent{}, &store.QueryError{Op: "get", Err: err}
	}
	evs, err := collectEvents(rows)
	if err != nil {
		return model.ShutdownEvent{}, &store.QueryError{Op: "get", Err: err}
	}
	if len(evs) == 0 {
		return model.ShutdownEvent{}, store.ErrNotFound
	}
	return evs[0], nil
}

func (s *Store) Create(ctx context.Context, e model.ShutdownEvent) (model.ShutdownEvent, error) {
	e, err := store.PrepareWrite(e)
	if err != nil {
		return model.ShutdownEvent{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	args, err := rowArgs(e)
	if err != nil {
		return model.ShutdownEvent{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `INSERT INTO shutdown_events (
		id, region, region_code, subregion, start_time, end_time, duration_hours,
		event_type, throttle_from, throttle_to, reason, reason_category, source_url,
		source_document, verified, operator_impacts, lat, lng
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::jsonb, $17, $18)`

	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return model.ShutdownEvent{}, fmt.Errorf("%w: %s", store.ErrConflict, e.ID)
		}
		return model.ShutdownEvent{}, &store.QueryError{Op: "create", Err: err}
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, e model.ShutdownEvent) (model.ShutdownEvent, error) {
	e.ID = id
	e, err := store.PrepareWrite(e)
	if err != nil {
		return model.ShutdownEvent{}, err
	}
	args, err := rowArgs(e)
	if err != nil {
		return model.ShutdownEvent{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	const q = `UPDATE shutdown_events SET
		region = $2, region_code = $3, subregion = $4, start_time = $5, end_time = $6,
		duration_hours = $7, event_type = $8, throttle_from = $9, throttle_to = $10,
		reason = $11, reason_category = $12, source_url = $13, source_document = $14,
		verified = $15, operator_impacts = $16::jsonb, lat = $17, lng = $18, updated_at = NOW()
	WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return model.ShutdownEvent{}, &store.QueryError{Op: "update", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return model.ShutdownEvent{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, "DELETE FROM shutdown_events WHERE id = $1", id)
	if err != nil {
		return &store.QueryError{Op: "delete", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// rowArgs flattens an event into the $1..$18 column order shared by insert
// and update.
func rowArgs(e model.ShutdownEvent) ([]any, error) {
	ops := e.OperatorImpacts
	if ops == nil {
		ops = []model.OperatorImpact{}
	}
	opsJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal operator impacts: %w", err)
	}

	var throttleFrom, throttleTo, lat, lng any
	if e.ThrottleTransition != nil {
		throttleFrom, throttleTo = e.ThrottleTransition.From, e.ThrottleTransition.To
	}
	if e.Coordinates != nil {
		lat, lng = e.Coordinates.Lat, e.Coordinates.Lng
	}

	return []any{
		e.ID, e.Region, e.RegionCode, e.Subregion, e.StartTime, e.EndTime, e.DurationHours,
		string(e.EventType), throttleFrom, throttleTo, e.Reason, string(e.ReasonCategory),
		e.SourceURL, e.SourceDocument, e.Verified, string(opsJSON), lat, lng,
	}, nil
}

func collectEvents(rows pgx.Rows) ([]model.ShutdownEvent, error) {
	defer rows.Close()

	out := []model.ShutdownEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanEvent(row pgx.Row) (model.ShutdownEvent, error) {
	var (
		e                        model.ShutdownEvent
		eventType, category      string
		throttleFrom, throttleTo *string
		opsJSON                  []byte
		lat, lng                 *float64
		duration                 *int32
		end                      *time.Time
	)
	err := row.Scan(
		&e.ID, &e.Region, &e.RegionCode, &e.Subregion, &e.StartTime, &end, &duration,
		&eventType, &throttleFrom, &throttleTo, &e.Reason, &category, &e.SourceURL,
		&e.SourceDocument, &e.Verified, &opsJSON, &lat, &lng,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return e, store.ErrNotFound
		}
		return e, err
	}

	e.SourceType = model.SourcePrimaryStore
	e.EventType = model.EventType(eventType)
	e.ReasonCategory = model.ReasonCategory(category)
	e.StartTime = e.StartTime.UTC()
	if end != nil {
		t := end.UTC()
		e.EndTime = &t
	}
	if duration != nil {
		d := int(*duration)
		e.DurationHours = &d
	}
	if throttleFrom != nil && throttleTo != nil {
		e.ThrottleTransition = &model.ThrottleTransition{From: *throttleFrom, To: *throttleTo}
	}
	if lat != nil && lng != nil {
		e.Coordinates = &model.Coordinates{Lat: *lat, Lng: *lng}
	}
	if len(opsJSON) > 0 {
		if err := json.Unmarshal(opsJSON, &e.OperatorImpacts); err != nil {
			return e, fmt.Errorf("decode operator impacts for %s: %w", e.ID, err)
		}
		if len(e.OperatorImpacts) == 0 {
			e.OperatorImpacts = nil
		}
	}
	return e, nil
}
