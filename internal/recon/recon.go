// Package recon keeps the fact base consistent across repeated,
// out-of-order ingestion runs.
//
// Every ingestion batch gets a strictly increasing generation token from the
// store; every Requirement/Trace row touched during the batch is stamped
// with it. Staleness is judged per table: a row is a candidate when its
// generation lags the newest generation stamped on its own table, meaning
// the latest batch that reported facts of that kind did not re-confirm it.
// Batches that never touch a table (a coverage or review ingestion, say)
// leave its horizon alone. Staleness is always reported as a diff first
// (dry-run semantics); deletion happens only on explicit confirmation and
// cascades to dependent hierarchy and coverage rows. Test runs, tests,
// coverage and reviews are historical time-series data and never
// participate in the sweep.
//
// The manager also owns quarantine handling: after every batch it re-checks
// facts whose referent was missing at ingestion time and promotes those
// whose referent has appeared.
package recon

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/store"
)

// LabelGenerator produces the diagnostic label stamped on each ingestion
// batch.
type LabelGenerator interface {
	Generate() string
}

// UUIDv7Generator labels batches with time-ordered UUIDs.
type UUIDv7Generator struct{}

// Generate returns a fresh UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Manager drives generation bookkeeping, staleness detection and quarantine
// promotion over one store.
type Manager struct {
	store  *store.Store
	labels LabelGenerator
}

// New creates a reconciliation manager with UUIDv7 batch labels.
func New(s *store.Store) *Manager {
	return NewWithLabels(s, UUIDv7Generator{})
}

// NewWithLabels creates a manager with a custom label generator (for
// deterministic tests).
func NewWithLabels(s *store.Store, labels LabelGenerator) *Manager {
	return &Manager{store: s, labels: labels}
}

// BeginBatch starts an ingestion batch with a fresh generation token and a
// batch label for diagnostics.
func (m *Manager) BeginBatch(ctx context.Context) (*store.Batch, error) {
	batch, err := m.store.Begin(ctx, m.labels.Generate())
	if err != nil {
		return nil, fmt.Errorf("begin ingestion batch: %w", err)
	}
	return batch, nil
}

// Diff classifies the Requirement and Trace rows relative to the latest
// batch that stamped their table. Stale rows are deletion candidates;
// nothing is deleted until the diff is explicitly applied.
type Diff struct {
	// Generation is the store's current generation when the diff was
	// computed.
	Generation int64

	// AddedRequirements first appeared in the latest requirements batch.
	AddedRequirements []string

	// UnchangedRequirements were re-confirmed by the latest requirements
	// batch but existed before.
	UnchangedRequirements []string

	// StaleRequirements were not re-confirmed: their generation lags.
	StaleRequirements []string

	// StaleTraces were not re-confirmed by the latest trace batch.
	StaleTraces []facts.Trace
}

// Empty reports whether the diff contains no staleness candidates.
func (d *Diff) Empty() bool {
	return len(d.StaleRequirements) == 0 && len(d.StaleTraces) == 0
}

// FindStale computes the staleness diff, comparing each table against its
// own latest stamping generation. This is the dry-run half of
// reconciliation: it reads a snapshot and classifies rows without
// modifying anything.
func (m *Manager) FindStale(ctx context.Context) (*Diff, error) {
	current, err := m.store.CurrentGeneration(ctx)
	if err != nil {
		return nil, err
	}
	return m.findStaleAt(ctx, current)
}

func (m *Manager) findStaleAt(ctx context.Context, generation int64) (*Diff, error) {
	snap, err := m.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	// Horizons are per table: the newest generation that stamped any row of
	// that table. Every command allocates its own generation, so comparing
	// against the global current generation would mark all requirements
	// stale as soon as an unrelated trace or coverage batch ran.
	var reqHorizon, traceHorizon int64
	for _, req := range snap.Requirements {
		if req.Generation > reqHorizon {
			reqHorizon = req.Generation
		}
	}
	for _, trace := range snap.Traces {
		if trace.Generation > traceHorizon {
			traceHorizon = trace.Generation
		}
	}

	diff := &Diff{Generation: generation}
	for _, req := range snap.Requirements {
		switch {
		case req.Generation > generation:
			return nil, &store.GenerationConflictError{
				Table: "requirements", Key: req.ID, Stored: req.Generation, Batch: generation,
			}
		case req.Generation < reqHorizon:
			diff.StaleRequirements = append(diff.StaleRequirements, req.ID)
		case req.FirstSeen == reqHorizon:
			diff.AddedRequirements = append(diff.AddedRequirements, req.ID)
		default:
			diff.UnchangedRequirements = append(diff.UnchangedRequirements, req.ID)
		}
	}
	for _, trace := range snap.Traces {
		if trace.Generation > generation {
			key := fmt.Sprintf("%s@%s:%d", trace.ReqID, trace.Filepath, trace.Line)
			return nil, &store.GenerationConflictError{
				Table: "traces", Key: key, Stored: trace.Generation, Batch: generation,
			}
		}
		if trace.Generation < traceHorizon {
			diff.StaleTraces = append(diff.StaleTraces, trace)
		}
	}
	return diff, nil
}

// Apply deletes the stale rows named by a previously computed diff.
// Requirements go first; traces owned by a deleted requirement cascade with
// it, the remaining stale traces are deleted individually. Dependent
// hierarchy and coverage rows cascade through the store's foreign keys;
// test runs and reviews are untouched.
func (m *Manager) Apply(ctx context.Context, diff *Diff) error {
	if diff.Empty() {
		return nil
	}
	if len(diff.StaleRequirements) > 0 {
		if err := m.store.DeleteRequirements(ctx, diff.StaleRequirements); err != nil {
			return fmt.Errorf("apply reconciliation: %w", err)
		}
	}
	if len(diff.StaleTraces) > 0 {
		if err := m.store.DeleteTraces(ctx, diff.StaleTraces); err != nil {
			return fmt.Errorf("apply reconciliation: %w", err)
		}
	}
	return nil
}

// Promote re-checks all quarantined facts and moves those whose referent now
// exists into the primary tables. Called after every ingestion batch.
func (m *Manager) Promote(ctx context.Context) (store.PromotionStats, error) {
	return m.store.PromoteUnrelated(ctx)
}
