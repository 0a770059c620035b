package testutil

// FixedLabelGenerator returns the same batch label every time.
//
// This enables deterministic batch bookkeeping in tests: the same
// ingestion scenario produces identical generations table contents.
//
// Thread-safety: FixedLabelGenerator is stateless and safe for
// concurrent use.
type FixedLabelGenerator struct {
	label string
}

// NewFixedLabelGenerator creates a fixed label generator. An empty label
// defaults to "test-batch".
func NewFixedLabelGenerator(label string) *FixedLabelGenerator {
	if label == "" {
		label = "test-batch"
	}
	return &FixedLabelGenerator{label: label}
}

// Generate returns the fixed label. Implements recon.LabelGenerator.
func (g *FixedLabelGenerator) Generate() string {
	return g.label
}
