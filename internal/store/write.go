package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/reqtrace/reqtrace/internal/facts"
)

// GenerationConflictError reports that a row's stored generation is ahead of
// the running batch. Generations are allocated strictly increasing, so a
// regression indicates a bug in batch sequencing and aborts the batch.
type GenerationConflictError struct {
	Table  string
	Key    string
	Stored int64
	Batch  int64
}

func (e *GenerationConflictError) Error() string {
	return fmt.Sprintf("stale generation conflict: %s row %q has generation %d, batch is %d",
		e.Table, e.Key, e.Stored, e.Batch)
}

// Batch is one ingestion batch: a transaction plus the generation token
// every touched Requirement/Trace row is stamped with.
//
// A Batch is not safe for concurrent use; ingestion is single-writer.
type Batch struct {
	tx         *sql.Tx
	generation int64
	label      string
}

// Begin starts an ingestion batch, allocating the next generation token.
// The label is an opaque batch identifier carried into the generations
// table for diagnostics (internal/recon uses UUIDs).
func (s *Store) Begin(ctx context.Context, label string) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO generations (batch_label, created_at) VALUES (?, ?)
	`, label, dateString(time.Now()))
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin batch: allocate generation: %w", err)
	}
	gen, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin batch: generation id: %w", err)
	}

	return &Batch{tx: tx, generation: gen, label: label}, nil
}

// Generation returns the batch's generation token.
func (b *Batch) Generation() int64 { return b.generation }

// Commit commits the batch.
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback aborts the batch. No-op after Commit.
func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

// PutRequirement inserts or re-confirms a requirement, stamping it with the
// batch generation. Re-confirmation updates origin, title and annotation;
// first_seen is preserved so reconciliation can tell added from unchanged.
func (b *Batch) PutRequirement(ctx context.Context, req facts.Requirement) error {
	var stored int64
	err := b.tx.QueryRowContext(ctx, `
		SELECT generation FROM requirements WHERE id = ?
	`, req.ID).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = b.tx.ExecContext(ctx, `
			INSERT INTO requirements (id, origin, title, annotation, generation, first_seen)
			VALUES (?, ?, ?, ?, ?, ?)
		`, req.ID, req.Origin, req.Title, annotationValue(req.Annotation), b.generation, b.generation)
		if err != nil {
			return fmt.Errorf("put requirement %q: %w", req.ID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("put requirement %q: %w", req.ID, err)
	}

	if stored > b.generation {
		return &GenerationConflictError{Table: "requirements", Key: req.ID, Stored: stored, Batch: b.generation}
	}

	_, err = b.tx.ExecContext(ctx, `
		UPDATE requirements
		SET origin = ?, title = ?, annotation = ?, generation = ?
		WHERE id = ?
	`, req.Origin, req.Title, annotationValue(req.Annotation), b.generation, req.ID)
	if err != nil {
		return fmt.Errorf("put requirement %q: %w", req.ID, err)
	}
	return nil
}

// HasRequirement reports whether a requirement exists in the primary table.
func (b *Batch) HasRequirement(ctx context.Context, id string) (bool, error) {
	var one int
	err := b.tx.QueryRowContext(ctx, `SELECT 1 FROM requirements WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has requirement %q: %w", id, err)
	}
	return true, nil
}

// ResolveParent finds the nearest existing ancestor of a dotted requirement
// ID. Requirement IDs form an implicit hierarchy by dotted prefix
// ("req.sub.detail" under "req.sub" under "req"); when the literal parent
// was never declared ("holes" in the hierarchy), the child links to the
// closest declared prefix instead.
func (b *Batch) ResolveParent(ctx context.Context, id string) (string, bool, error) {
	for {
		dot := strings.LastIndex(id, ".")
		if dot < 0 {
			return "", false, nil
		}
		id = id[:dot]
		exists, err := b.HasRequirement(ctx, id)
		if err != nil {
			return "", false, err
		}
		if exists {
			return id, true, nil
		}
	}
}

// LinkParent inserts a hierarchy edge. Duplicate edges are ignored.
func (b *Batch) LinkParent(ctx context.Context, childID, parentID string) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO hierarchies (child_id, parent_id) VALUES (?, ?)
		ON CONFLICT(child_id, parent_id) DO NOTHING
	`, childID, parentID)
	if err != nil {
		return fmt.Errorf("link %q under %q: %w", childID, parentID, err)
	}
	return nil
}

// PutTrace inserts or re-confirms a trace, stamping it with the batch
// generation. A trace whose requirement does not exist yet is quarantined
// instead of rejected; quarantined reports which path was taken.
func (b *Batch) PutTrace(ctx context.Context, trace facts.Trace) (quarantined bool, err error) {
	exists, err := b.HasRequirement(ctx, trace.ReqID)
	if err != nil {
		return false, err
	}

	if !exists {
		_, err = b.tx.ExecContext(ctx, `
			INSERT INTO unrelated_traces (req_id, filepath, line, generation)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(req_id, filepath, line) DO UPDATE SET generation = excluded.generation
		`, trace.ReqID, trace.Filepath, trace.Line, b.generation)
		if err != nil {
			return false, fmt.Errorf("quarantine trace %s:%d for %q: %w", trace.Filepath, trace.Line, trace.ReqID, err)
		}
		return true, nil
	}

	var stored int64
	err = b.tx.QueryRowContext(ctx, `
		SELECT generation FROM traces WHERE req_id = ? AND filepath = ? AND line = ?
	`, trace.ReqID, trace.Filepath, trace.Line).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		// new trace
	case err != nil:
		return false, fmt.Errorf("put trace %s:%d for %q: %w", trace.Filepath, trace.Line, trace.ReqID, err)
	case stored > b.generation:
		key := fmt.Sprintf("%s@%s:%d", trace.ReqID, trace.Filepath, trace.Line)
		return false, &GenerationConflictError{Table: "traces", Key: key, Stored: stored, Batch: b.generation}
	}

	_, err = b.tx.ExecContext(ctx, `
		INSERT INTO traces (req_id, filepath, line, generation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(req_id, filepath, line) DO UPDATE SET generation = excluded.generation
	`, trace.ReqID, trace.Filepath, trace.Line, b.generation)
	if err != nil {
		return false, fmt.Errorf("put trace %s:%d for %q: %w", trace.Filepath, trace.Line, trace.ReqID, err)
	}
	return false, nil
}

// PutTestRun inserts or replaces a test run.
func (b *Batch) PutTestRun(ctx context.Context, run facts.TestRun) error {
	var logs any
	if run.Logs != "" {
		logs = run.Logs
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO test_runs (name, date, expected_test_count, logs)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, date) DO UPDATE SET
			expected_test_count = excluded.expected_test_count,
			logs = excluded.logs
	`, run.Name, dateString(run.Date), run.ExpectedTestCount, logs)
	if err != nil {
		return fmt.Errorf("put test run %q (%s): %w", run.Name, dateString(run.Date), err)
	}
	return nil
}

// PutTest inserts or replaces a test record inside a run. The run must
// already exist.
func (b *Batch) PutTest(ctx context.Context, test facts.Test) error {
	var reason any
	if test.SkipReason != "" {
		reason = test.SkipReason
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO tests (test_run_name, test_run_date, name, filepath, line, state, skip_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(test_run_name, test_run_date, name) DO UPDATE SET
			filepath = excluded.filepath,
			line = excluded.line,
			state = excluded.state,
			skip_reason = excluded.skip_reason
	`, test.RunName, dateString(test.RunDate), test.Name, test.Filepath, test.Line,
		test.State.String(), reason)
	if err != nil {
		return fmt.Errorf("put test %q in run %q: %w", test.Name, test.RunName, err)
	}
	return nil
}

// PutCoverage inserts a coverage link. A link whose trace or test record is
// missing is quarantined instead of rejected.
func (b *Batch) PutCoverage(ctx context.Context, link facts.CoverageLink) (quarantined bool, err error) {
	var one int
	err = b.tx.QueryRowContext(ctx, `
		SELECT 1 FROM traces WHERE req_id = ? AND filepath = ? AND line = ?
	`, link.ReqID, link.Filepath, link.Line).Scan(&one)
	traceExists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("put coverage for %q: %w", link.ReqID, err)
	}

	err = b.tx.QueryRowContext(ctx, `
		SELECT 1 FROM tests WHERE test_run_name = ? AND test_run_date = ? AND name = ?
	`, link.RunName, dateString(link.RunDate), link.TestName).Scan(&one)
	testExists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("put coverage for %q: %w", link.ReqID, err)
	}

	table := "test_coverage"
	if !traceExists || !testExists {
		table = "unrelated_coverage"
		quarantined = true
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (req_id, test_run_name, test_run_date, test_name, filepath, line)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(req_id, test_run_name, test_run_date, test_name, filepath, line) DO NOTHING
	`, table)
	_, err = b.tx.ExecContext(ctx, stmt,
		link.ReqID, link.RunName, dateString(link.RunDate), link.TestName, link.Filepath, link.Line)
	if err != nil {
		return false, fmt.Errorf("put coverage for %q by test %q: %w", link.ReqID, link.TestName, err)
	}
	return quarantined, nil
}

// PutReview inserts or replaces a review.
func (b *Batch) PutReview(ctx context.Context, review facts.Review) error {
	var comment any
	if review.Comment != "" {
		comment = review.Comment
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO reviews (name, date, reviewer, comment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, date) DO UPDATE SET
			reviewer = excluded.reviewer,
			comment = excluded.comment
	`, review.Name, dateString(review.Date), review.Reviewer, comment)
	if err != nil {
		return fmt.Errorf("put review %q (%s): %w", review.Name, dateString(review.Date), err)
	}
	return nil
}

// PutVerification inserts a manual verification. The review must already
// exist (verifications arrive inside their review file); a verification
// whose requirement does not exist yet is quarantined.
func (b *Batch) PutVerification(ctx context.Context, v facts.ManualVerification) (quarantined bool, err error) {
	exists, err := b.HasRequirement(ctx, v.ReqID)
	if err != nil {
		return false, err
	}

	var comment any
	if v.Comment != "" {
		comment = v.Comment
	}

	table := "manually_verified"
	if !exists {
		table = "unrelated_verified"
		quarantined = true
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (req_id, review_name, review_date, comment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(req_id, review_name, review_date) DO UPDATE SET comment = excluded.comment
	`, table)
	_, err = b.tx.ExecContext(ctx, stmt, v.ReqID, v.ReviewName, dateString(v.ReviewDate), comment)
	if err != nil {
		return false, fmt.Errorf("put verification of %q by review %q: %w", v.ReqID, v.ReviewName, err)
	}
	return quarantined, nil
}

// DeleteRequirements removes requirements by ID. Hierarchy edges, traces,
// coverage links and verifications referencing them cascade.
func (s *Store) DeleteRequirements(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete requirements: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM requirements WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete requirement %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete requirements: %w", err)
	}
	return nil
}

// DeleteTraces removes traces by identity. Coverage links referencing them
// cascade.
func (s *Store) DeleteTraces(ctx context.Context, traces []facts.Trace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete traces: %w", err)
	}
	defer tx.Rollback()

	for _, trace := range traces {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM traces WHERE req_id = ? AND filepath = ? AND line = ?
		`, trace.ReqID, trace.Filepath, trace.Line)
		if err != nil {
			return fmt.Errorf("delete trace %s:%d for %q: %w", trace.Filepath, trace.Line, trace.ReqID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete traces: %w", err)
	}
	return nil
}

// annotationValue maps AnnotationNone to NULL so the schema CHECK only sees
// the two concrete markers.
func annotationValue(a facts.Annotation) any {
	if a == facts.AnnotationNone {
		return nil
	}
	return a.String()
}

// dateString encodes a timestamp in the canonical stored form.
func dateString(t time.Time) string {
	return t.UTC().Format(facts.DateFormat)
}
