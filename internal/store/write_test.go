package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqtrace/reqtrace/internal/facts"
)

var testRunDate = time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)

// ingest runs one batch against the store, failing the test on any error.
func ingest(t *testing.T, s *Store, fn func(ctx context.Context, b *Batch)) *Batch {
	t.Helper()
	ctx := context.Background()
	b, err := s.Begin(ctx, "test-batch")
	require.NoError(t, err)
	fn(ctx, b)
	require.NoError(t, b.Commit())
	return b
}

func TestBatch_RequirementRoundTrip(t *testing.T) {
	s := openTestStore(t)

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{
			ID:         "req",
			Origin:     "wiki/req",
			Title:      "Root requirement",
			Annotation: facts.AnnotationManual,
		}))
	})

	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Requirements, 1)

	req := snap.Requirements[0]
	assert.Equal(t, "req", req.ID)
	assert.Equal(t, "wiki/req", req.Origin)
	assert.Equal(t, "Root requirement", req.Title)
	assert.Equal(t, facts.AnnotationManual, req.Annotation)
	assert.Equal(t, int64(1), req.Generation)
	assert.Equal(t, int64(1), req.FirstSeen)
}

func TestBatch_ReconfirmKeepsFirstSeen(t *testing.T) {
	s := openTestStore(t)

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))
	})
	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req-v2"}))
	})

	snap, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Requirements, 1)
	assert.Equal(t, "wiki/req-v2", snap.Requirements[0].Origin)
	assert.Equal(t, int64(2), snap.Requirements[0].Generation)
	assert.Equal(t, int64(1), snap.Requirements[0].FirstSeen)
}

func TestBatch_ResolveParentSkipsHoles(t *testing.T) {
	s := openTestStore(t)

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))

		// "req.sub" was never declared: the child must link to "req".
		parent, ok, err := b.ResolveParent(ctx, "req.sub.detail")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "req", parent)

		_, ok, err = b.ResolveParent(ctx, "unrelated.child")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestBatch_TraceQuarantinedWithoutRequirement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ingest(t, s, func(ctx context.Context, b *Batch) {
		q, err := b.PutTrace(ctx, facts.Trace{ReqID: "ghost", Filepath: "src/a.go", Line: 1})
		require.NoError(t, err)
		assert.True(t, q, "trace without requirement must be quarantined")
	})

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Traces)

	unrelated, err := s.LoadUnrelated(ctx)
	require.NoError(t, err)
	require.Len(t, unrelated.Traces, 1)
	assert.Equal(t, "ghost", unrelated.Traces[0].ReqID)
}

func TestBatch_CoverageQuarantinedWithoutTrace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	link := facts.CoverageLink{
		ReqID:    "req",
		RunName:  "nightly",
		RunDate:  testRunDate,
		TestName: "t1",
		Filepath: "src/a.go",
		Line:     7,
	}

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))
		require.NoError(t, b.PutTestRun(ctx, facts.TestRun{Name: "nightly", Date: testRunDate, ExpectedTestCount: 1}))
		require.NoError(t, b.PutTest(ctx, facts.Test{
			RunName: "nightly", RunDate: testRunDate, Name: "t1",
			Filepath: "tests/t1.go", Line: 3, State: facts.StatePassed,
		}))

		// No matching trace row yet.
		q, err := b.PutCoverage(ctx, link)
		require.NoError(t, err)
		assert.True(t, q)
	})

	unrelated, err := s.LoadUnrelated(ctx)
	require.NoError(t, err)
	require.Len(t, unrelated.Coverage, 1)

	// Once the trace appears, promotion moves the link into primary
	// coverage and empties the quarantine.
	ingest(t, s, func(ctx context.Context, b *Batch) {
		q, err := b.PutTrace(ctx, facts.Trace{ReqID: "req", Filepath: "src/a.go", Line: 7})
		require.NoError(t, err)
		assert.False(t, q)
	})

	stats, err := s.PromoteUnrelated(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Coverage)

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Coverage, 1)
	assert.Equal(t, link.TestName, snap.Coverage[0].TestName)
	assert.True(t, snap.Coverage[0].RunDate.Equal(testRunDate))

	unrelated, err = s.LoadUnrelated(ctx)
	require.NoError(t, err)
	assert.True(t, unrelated.Empty())
}

func TestBatch_VerificationQuarantinedWithoutRequirement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutReview(ctx, facts.Review{
			Name: "release-review", Date: testRunDate, Reviewer: "alex",
		}))
		q, err := b.PutVerification(ctx, facts.ManualVerification{
			ReqID: "ghost", ReviewName: "release-review", ReviewDate: testRunDate,
		})
		require.NoError(t, err)
		assert.True(t, q)
	})

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "ghost", Origin: "wiki/ghost"}))
	})

	stats, err := s.PromoteUnrelated(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Verifications)

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Verifications, 1)
	assert.Equal(t, "ghost", snap.Verifications[0].ReqID)
}

func TestBatch_PromotedTraceUnlocksDependentCoverage(t *testing.T) {
	// A quarantined coverage link waiting on a quarantined trace must be
	// promoted in the same pass as the trace.
	s := openTestStore(t)
	ctx := context.Background()

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutTestRun(ctx, facts.TestRun{Name: "nightly", Date: testRunDate, ExpectedTestCount: 1}))
		require.NoError(t, b.PutTest(ctx, facts.Test{
			RunName: "nightly", RunDate: testRunDate, Name: "t1",
			Filepath: "tests/t1.go", Line: 3, State: facts.StatePassed,
		}))
		_, err := b.PutTrace(ctx, facts.Trace{ReqID: "req", Filepath: "src/a.go", Line: 7})
		require.NoError(t, err)
		_, err = b.PutCoverage(ctx, facts.CoverageLink{
			ReqID: "req", RunName: "nightly", RunDate: testRunDate,
			TestName: "t1", Filepath: "src/a.go", Line: 7,
		})
		require.NoError(t, err)
	})

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))
	})

	stats, err := s.PromoteUnrelated(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Traces)
	assert.Equal(t, int64(1), stats.Coverage)

	unrelated, err := s.LoadUnrelated(ctx)
	require.NoError(t, err)
	assert.True(t, unrelated.Empty())
}

func TestBatch_GenerationConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Open two batches; the earlier-generation batch touching a row the
	// later one already stamped must fail. SQLite's single-writer pool
	// forbids truly concurrent batches, so simulate by committing the
	// later batch first.
	b1, err := s.Begin(ctx, "b1")
	require.NoError(t, err)
	require.NoError(t, b1.Commit())

	b2, err := s.Begin(ctx, "b2")
	require.NoError(t, err)
	require.NoError(t, b2.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))
	require.NoError(t, b2.Commit())

	// Forge a regressed batch by reusing b1's generation.
	b3 := &Batch{generation: b1.Generation(), label: "forged"}
	b3.tx, err = s.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer b3.tx.Rollback()

	err = b3.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"})
	var conflict *GenerationConflictError
	require.True(t, errors.As(err, &conflict), "expected GenerationConflictError, got %v", err)
	assert.Equal(t, "requirements", conflict.Table)
	assert.Equal(t, "req", conflict.Key)
}

func TestStore_DeleteRequirementCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ingest(t, s, func(ctx context.Context, b *Batch) {
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))
		require.NoError(t, b.PutRequirement(ctx, facts.Requirement{ID: "req.sub", Origin: "wiki/req"}))
		require.NoError(t, b.LinkParent(ctx, "req.sub", "req"))
		_, err := b.PutTrace(ctx, facts.Trace{ReqID: "req.sub", Filepath: "src/a.go", Line: 1})
		require.NoError(t, err)
	})

	require.NoError(t, s.DeleteRequirements(ctx, []string{"req.sub"}))

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Requirements, 1)
	assert.Empty(t, snap.Edges, "hierarchy edge must cascade")
	assert.Empty(t, snap.Traces, "trace must cascade")
}
