package recon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/store"
	"github.com/reqtrace/reqtrace/internal/testutil"
)

func TestBeginBatch_StampsLabel(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "reqtrace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := NewWithLabels(s, testutil.NewFixedLabelGenerator("batch-under-test"))

	batch, err := m.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.PutRequirement(ctx, facts.Requirement{ID: "req", Origin: "wiki/req"}))
	require.NoError(t, batch.Commit())

	var label string
	row := s.DB().QueryRowContext(ctx,
		`SELECT batch_label FROM generations WHERE id = ?`, batch.Generation())
	require.NoError(t, row.Scan(&label))
	assert.Equal(t, "batch-under-test", label)
}

func TestBeginBatch_DefaultLabelsAreUnique(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t)

	b1, err := m.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, b1.Commit())
	b2, err := m.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, b2.Commit())

	rows, err := s.DB().QueryContext(ctx, `SELECT batch_label FROM generations ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		require.NoError(t, rows.Scan(&label))
		labels = append(labels, label)
	}
	require.NoError(t, rows.Err())
	require.Len(t, labels, 2)
	assert.NotEqual(t, labels[0], labels[1])
}

func TestClockDatesKeepRunsDistinct(t *testing.T) {
	// Two runs of the same suite on the same day stay separate rows when
	// their dates come from a deterministic clock.
	ctx := context.Background()
	m, s := newManager(t)
	clock := testutil.NewClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), time.Hour)

	batch, err := m.BeginBatch(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.PutTestRun(ctx, facts.TestRun{Name: "ci", Date: clock.Next(), ExpectedTestCount: 1}))
	require.NoError(t, batch.PutTestRun(ctx, facts.TestRun{Name: "ci", Date: clock.Next(), ExpectedTestCount: 1}))
	require.NoError(t, batch.Commit())

	snap, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.TestRuns, 2)
	assert.True(t, snap.TestRuns[1].Date.After(snap.TestRuns[0].Date))
}
