package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// TracesFile is the source-scanner output: trace entries grouped by file.
type TracesFile struct {
	Traces []FileTraces `json:"traces"`
}

// FileTraces lists the trace entries found in one file.
type FileTraces struct {
	Filepath string       `json:"filepath"`
	Entries  []TraceEntry `json:"entries"`
}

// TraceEntry is one located reference. A single annotation may name several
// requirement IDs; each becomes its own trace row.
type TraceEntry struct {
	IDs      []string  `json:"ids"`
	Line     uint      `json:"line"`
	ItemName string    `json:"item_name,omitempty"`
	LineSpan *LineSpan `json:"line_span,omitempty"`
}

// LineSpan is the source range the traced item covers, when the scanner
// can determine it.
type LineSpan struct {
	Start uint `json:"start"`
	End   uint `json:"end"`
}

// LoadTraces reads and validates a traces file.
func LoadTraces(path string) (*TracesFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read traces file %q: %w", path, err)
	}

	var file TracesFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse traces file %q: %w", path, err)
	}

	for _, group := range file.Traces {
		if group.Filepath == "" {
			return nil, fmt.Errorf("traces file %q: group with empty filepath", path)
		}
		for _, entry := range group.Entries {
			if len(entry.IDs) == 0 {
				return nil, fmt.Errorf("traces file %q: entry at %s:%d names no requirement", path, group.Filepath, entry.Line)
			}
		}
	}

	return &file, nil
}
