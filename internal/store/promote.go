package store

import (
	"context"
	"fmt"
)

// PromotionStats counts quarantined facts moved into the primary tables by
// one promotion pass.
type PromotionStats struct {
	Traces        int64
	Coverage      int64
	Verifications int64
}

// Total returns the number of promoted facts across all kinds.
func (p PromotionStats) Total() int64 {
	return p.Traces + p.Coverage + p.Verifications
}

// PromoteUnrelated re-checks every quarantined fact and moves those whose
// referent now exists into the primary tables. Runs in one transaction so a
// fact is never visible in both places.
//
// Promotion order matters: traces first, since a quarantined coverage link
// may be waiting on a trace that is itself being promoted.
//
// A promoted trace keeps its own generation unless the primary trace table
// has moved past it, in which case it is stamped forward to the table's
// newest generation. A trace that spent several trace batches in quarantine
// must not come out already stale.
func (s *Store) PromoteUnrelated(ctx context.Context) (PromotionStats, error) {
	var stats PromotionStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("promote unrelated: %w", err)
	}
	defer tx.Rollback()

	var traceHorizon int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(generation), 0) FROM traces
	`).Scan(&traceHorizon)
	if err != nil {
		return stats, fmt.Errorf("promote traces: horizon: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO traces (req_id, filepath, line, generation)
		SELECT u.req_id, u.filepath, u.line, MAX(u.generation, ?)
		FROM unrelated_traces u
		WHERE u.req_id IN (SELECT id FROM requirements)
		ON CONFLICT(req_id, filepath, line) DO NOTHING
	`, traceHorizon)
	if err != nil {
		return stats, fmt.Errorf("promote traces: %w", err)
	}
	if stats.Traces, err = res.RowsAffected(); err != nil {
		return stats, fmt.Errorf("promote traces: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM unrelated_traces
		WHERE req_id IN (SELECT id FROM requirements)
	`)
	if err != nil {
		return stats, fmt.Errorf("promote traces: clear quarantine: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO test_coverage (req_id, test_run_name, test_run_date, test_name, filepath, line)
		SELECT u.req_id, u.test_run_name, u.test_run_date, u.test_name, u.filepath, u.line
		FROM unrelated_coverage u
		WHERE EXISTS (
			SELECT 1 FROM traces t
			WHERE t.req_id = u.req_id AND t.filepath = u.filepath AND t.line = u.line
		) AND EXISTS (
			SELECT 1 FROM tests ts
			WHERE ts.test_run_name = u.test_run_name
			  AND ts.test_run_date = u.test_run_date
			  AND ts.name = u.test_name
		)
		ON CONFLICT(req_id, test_run_name, test_run_date, test_name, filepath, line) DO NOTHING
	`)
	if err != nil {
		return stats, fmt.Errorf("promote coverage: %w", err)
	}
	if stats.Coverage, err = res.RowsAffected(); err != nil {
		return stats, fmt.Errorf("promote coverage: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM unrelated_coverage AS u
		WHERE EXISTS (
			SELECT 1 FROM traces t
			WHERE t.req_id = u.req_id AND t.filepath = u.filepath AND t.line = u.line
		) AND EXISTS (
			SELECT 1 FROM tests ts
			WHERE ts.test_run_name = u.test_run_name
			  AND ts.test_run_date = u.test_run_date
			  AND ts.name = u.test_name
		)
	`)
	if err != nil {
		return stats, fmt.Errorf("promote coverage: clear quarantine: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO manually_verified (req_id, review_name, review_date, comment)
		SELECT u.req_id, u.review_name, u.review_date, u.comment
		FROM unrelated_verified u
		WHERE u.req_id IN (SELECT id FROM requirements)
		  AND EXISTS (
			SELECT 1 FROM reviews r
			WHERE r.name = u.review_name AND r.date = u.review_date
		)
		ON CONFLICT(req_id, review_name, review_date) DO NOTHING
	`)
	if err != nil {
		return stats, fmt.Errorf("promote verifications: %w", err)
	}
	if stats.Verifications, err = res.RowsAffected(); err != nil {
		return stats, fmt.Errorf("promote verifications: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM unrelated_verified AS u
		WHERE u.req_id IN (SELECT id FROM requirements)
		  AND EXISTS (
			SELECT 1 FROM reviews r
			WHERE r.name = u.review_name AND r.date = u.review_date
		)
	`)
	if err != nil {
		return stats, fmt.Errorf("promote verifications: clear quarantine: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("promote unrelated: %w", err)
	}
	return stats, nil
}
