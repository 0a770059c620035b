package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/reqtrace/reqtrace/internal/facts"
)

// RequirementsFile is the requirement extraction output.
type RequirementsFile struct {
	Requirements []RequirementRecord `json:"requirements"`
}

// RequirementRecord is one extracted requirement definition.
//
// ParentIDs is optional: when absent, the hierarchy is implied by the
// dotted ID ("req.sub" under "req"), with holes resolved to the nearest
// declared ancestor at ingestion time.
type RequirementRecord struct {
	ID         string   `json:"id"`
	Origin     string   `json:"origin"`
	Title      string   `json:"title"`
	Annotation string   `json:"annotation,omitempty"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
}

// LoadRequirements reads and validates a requirements file.
func LoadRequirements(path string) (*RequirementsFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements file %q: %w", path, err)
	}

	var file RequirementsFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse requirements file %q: %w", path, err)
	}

	for i, req := range file.Requirements {
		if req.ID == "" {
			return nil, fmt.Errorf("requirements file %q: entry %d has no id", path, i)
		}
		if _, err := facts.ParseAnnotation(req.Annotation); err != nil {
			return nil, fmt.Errorf("requirements file %q: requirement %q: %w", path, req.ID, err)
		}
	}

	return &file, nil
}

// AnnotationValue returns the record's annotation as the closed enum type.
// Validation at load time guarantees this cannot fail afterwards.
func (r RequirementRecord) AnnotationValue() facts.Annotation {
	annotation, _ := facts.ParseAnnotation(r.Annotation)
	return annotation
}
