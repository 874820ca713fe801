package postgres

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/stats"
	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/store"
)

// Groups are ordered by their first row in store order so ties resolve the
// same way as the in-memory accumulator.
const firstSeen = " ORDER BY MIN(created_at) ASC, MIN(id) ASC"

// Statistics runs the grouped aggregates concurrently and assembles one report.
func (s *Store) Statistics(ctx context.Context, f query.Filter) (stats.Report, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	w := buildWhere(f)
	where := w.sql()
	var g stats.Grouped

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		q := `SELECT COUNT(*), COUNT(*) FILTER (WHERE end_time IS NULL),
			COALESCE(SUM(duration_hours), 0), COUNT(duration_hours)
		FROM shutdown_events` + where
		return s.pool.QueryRow(ctx, q, w.args...).Scan(&g.Total, &g.Active, &g.DurationSum, &g.DurationCount)
	})

	eg.Go(func() error {
		rows, err := s.pool.Query(ctx, "SELECT reason_category, COUNT(*) FROM shutdown_events"+where+" GROUP BY reason_category"+firstSeen, w.args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cat string
				n   int
			)
			if err := rows.Scan(&cat, &n); err != nil {
				return err
			}
			g.Reasons = append(g.Reasons, stats.ReasonShare{Category: model.ReasonCategory(cat), Count: n})
		}
		return rows.Err()
	})

	eg.Go(func() error {
		rows, err := s.pool.Query(ctx, "SELECT region, COUNT(*) FROM shutdown_events"+where+" GROUP BY region"+firstSeen, w.args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rc stats.RegionCount
			if err := rows.Scan(&rc.Region, &rc.Count); err != nil {
				return err
			}
			g.Regions = append(g.Regions, rc)
		}
		return rows.Err()
	})

	eg.Go(func() error {
		q := `SELECT to_char(start_time AT TIME ZONE 'UTC', 'YYYY-MM') AS month, COUNT(*)
		FROM shutdown_events` + where + ` GROUP BY month ORDER BY month`
		rows, err := s.pool.Query(ctx, q, w.args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m stats.MonthCount
			if err := rows.Scan(&m.Month, &m.Count); err != nil {
				return err
			}
			g.Months = append(g.Months, m)
		}
		return rows.Err()
	})

	eg.Go(func() error {
		q := `SELECT op->>'operatorName',
			COALESCE(SUM((op->>'towersBlocked')::int), 0),
			COALESCE(SUM((op->>'coverageAreaSqKm')::float8), 0),
			COALESCE(SUM((op->>'affectedPopulation')::bigint), 0),
			COUNT(DISTINCT id)
		FROM shutdown_events CROSS JOIN LATERAL jsonb_array_elements(operator_impacts) AS op` +
			where + ` GROUP BY op->>'operatorName'` + firstSeen
		rows, err := s.pool.Query(ctx, q, w.args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t stats.OperatorTotal
			if err := rows.Scan(&t.OperatorName, &t.TowersBlocked, &t.CoverageAreaSqKm, &t.AffectedPopulation, &t.EventCount); err != nil {
				return err
			}
			g.Operators = append(g.Operators, t)
		}
		return rows.Err()
	})

	if err := eg.Wait(); err != nil {
		return stats.Report{}, &store.QueryError{Op: "statistics", Err: err}
	}
	return stats.FromGrouped(g), nil
}
