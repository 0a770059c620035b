package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reqtrace/reqtrace/internal/facts"
)

// LoadSnapshot reads all fact tables under a single read transaction.
// Every derived computation consumes one Snapshot, so a concurrently
// committing batch cannot produce a torn view.
//
// All queries order by primary key so snapshots are deterministic.
func (s *Store) LoadSnapshot(ctx context.Context) (*facts.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := &facts.Snapshot{}

	if snap.Requirements, err = readRequirements(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Edges, err = readEdges(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Traces, err = readTraces(ctx, tx, "traces"); err != nil {
		return nil, err
	}
	if snap.TestRuns, err = readTestRuns(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Tests, err = readTests(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Coverage, err = readCoverage(ctx, tx, "test_coverage"); err != nil {
		return nil, err
	}
	if snap.Reviews, err = readReviews(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Verifications, err = readVerifications(ctx, tx, "manually_verified"); err != nil {
		return nil, err
	}

	return snap, nil
}

// LoadUnrelated reads the quarantine tables under a single read
// transaction.
func (s *Store) LoadUnrelated(ctx context.Context) (*facts.Unrelated, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load unrelated: %w", err)
	}
	defer tx.Rollback()

	u := &facts.Unrelated{}
	if u.Traces, err = readTraces(ctx, tx, "unrelated_traces"); err != nil {
		return nil, err
	}
	if u.Coverage, err = readCoverage(ctx, tx, "unrelated_coverage"); err != nil {
		return nil, err
	}
	if u.Verifications, err = readVerifications(ctx, tx, "unrelated_verified"); err != nil {
		return nil, err
	}
	return u, nil
}

func readRequirements(ctx context.Context, tx *sql.Tx) ([]facts.Requirement, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, origin, title, annotation, generation, first_seen
		FROM requirements
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query requirements: %w", err)
	}
	defer rows.Close()

	var out []facts.Requirement
	for rows.Next() {
		var req facts.Requirement
		var annotation sql.NullString
		if err := rows.Scan(&req.ID, &req.Origin, &req.Title, &annotation, &req.Generation, &req.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		if req.Annotation, err = facts.ParseAnnotation(annotation.String); err != nil {
			return nil, fmt.Errorf("requirement %q: %w", req.ID, err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func readEdges(ctx context.Context, tx *sql.Tx) ([]facts.HierarchyEdge, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT child_id, parent_id FROM hierarchies ORDER BY child_id, parent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query hierarchies: %w", err)
	}
	defer rows.Close()

	var out []facts.HierarchyEdge
	for rows.Next() {
		var edge facts.HierarchyEdge
		if err := rows.Scan(&edge.ChildID, &edge.ParentID); err != nil {
			return nil, fmt.Errorf("scan hierarchy edge: %w", err)
		}
		out = append(out, edge)
	}
	return out, rows.Err()
}

func readTraces(ctx context.Context, tx *sql.Tx, table string) ([]facts.Trace, error) {
	stmt := fmt.Sprintf(`
		SELECT req_id, filepath, line, generation FROM %s
		ORDER BY req_id, filepath, line
	`, table)
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []facts.Trace
	for rows.Next() {
		var trace facts.Trace
		if err := rows.Scan(&trace.ReqID, &trace.Filepath, &trace.Line, &trace.Generation); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, trace)
	}
	return out, rows.Err()
}

func readTestRuns(ctx context.Context, tx *sql.Tx) ([]facts.TestRun, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, date, expected_test_count, logs FROM test_runs ORDER BY name, date
	`)
	if err != nil {
		return nil, fmt.Errorf("query test runs: %w", err)
	}
	defer rows.Close()

	var out []facts.TestRun
	for rows.Next() {
		var run facts.TestRun
		var date string
		var logs sql.NullString
		if err := rows.Scan(&run.Name, &date, &run.ExpectedTestCount, &logs); err != nil {
			return nil, fmt.Errorf("scan test run: %w", err)
		}
		if run.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("test run %q: %w", run.Name, err)
		}
		run.Logs = logs.String
		out = append(out, run)
	}
	return out, rows.Err()
}

func readTests(ctx context.Context, tx *sql.Tx) ([]facts.Test, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT test_run_name, test_run_date, name, filepath, line, state, skip_reason
		FROM tests
		ORDER BY test_run_name, test_run_date, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	var out []facts.Test
	for rows.Next() {
		var test facts.Test
		var date, state string
		var reason sql.NullString
		if err := rows.Scan(&test.RunName, &date, &test.Name, &test.Filepath, &test.Line, &state, &reason); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		if test.RunDate, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("test %q: %w", test.Name, err)
		}
		if test.State, err = facts.ParseTestState(state); err != nil {
			return nil, fmt.Errorf("test %q: %w", test.Name, err)
		}
		test.SkipReason = reason.String
		out = append(out, test)
	}
	return out, rows.Err()
}

func readCoverage(ctx context.Context, tx *sql.Tx, table string) ([]facts.CoverageLink, error) {
	stmt := fmt.Sprintf(`
		SELECT req_id, test_run_name, test_run_date, test_name, filepath, line FROM %s
		ORDER BY req_id, test_run_name, test_run_date, test_name, filepath, line
	`, table)
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []facts.CoverageLink
	for rows.Next() {
		var link facts.CoverageLink
		var date string
		if err := rows.Scan(&link.ReqID, &link.RunName, &date, &link.TestName, &link.Filepath, &link.Line); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if link.RunDate, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("coverage of %q: %w", link.ReqID, err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func readReviews(ctx context.Context, tx *sql.Tx) ([]facts.Review, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, date, reviewer, comment FROM reviews ORDER BY name, date
	`)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var out []facts.Review
	for rows.Next() {
		var review facts.Review
		var date string
		var comment sql.NullString
		if err := rows.Scan(&review.Name, &date, &review.Reviewer, &comment); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if review.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("review %q: %w", review.Name, err)
		}
		review.Comment = comment.String
		out = append(out, review)
	}
	return out, rows.Err()
}

func readVerifications(ctx context.Context, tx *sql.Tx, table string) ([]facts.ManualVerification, error) {
	stmt := fmt.Sprintf(`
		SELECT req_id, review_name, review_date, comment FROM %s
		ORDER BY req_id, review_name, review_date
	`, table)
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []facts.ManualVerification
	for rows.Next() {
		var v facts.ManualVerification
		var date string
		var comment sql.NullString
		if err := rows.Scan(&v.ReqID, &v.ReviewName, &date, &comment); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if v.ReviewDate, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("verification of %q: %w", v.ReqID, err)
		}
		v.Comment = comment.String
		out = append(out, v)
	}
	return out, rows.Err()
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(facts.DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}
