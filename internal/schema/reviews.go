package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ReviewFile is one manual review session with the requirements it
// verified. Reviews are written by hand, so TOML is the primary encoding;
// JSON is accepted as well.
type ReviewFile struct {
	Name         string               `json:"name" toml:"name"`
	Date         Date                 `json:"date" toml:"date"`
	Reviewer     string               `json:"reviewer" toml:"reviewer"`
	Comment      string               `json:"comment,omitempty" toml:"comment,omitempty"`
	Requirements []VerifiedRequirement `json:"requirements" toml:"requirements"`
}

// VerifiedRequirement names one requirement the review signed off.
type VerifiedRequirement struct {
	ID      string `json:"id" toml:"id"`
	Comment string `json:"comment,omitempty" toml:"comment,omitempty"`
}

// LoadReview reads a review file, dispatching on the file extension
// (.toml or .json).
func LoadReview(path string) (*ReviewFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read review file %q: %w", path, err)
	}

	var review ReviewFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(content, &review); err != nil {
			return nil, fmt.Errorf("parse review file %q: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(content, &review); err != nil {
			return nil, fmt.Errorf("parse review file %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("review file %q: unsupported extension %q (want .toml or .json)", path, ext)
	}

	if review.Name == "" {
		return nil, fmt.Errorf("review file %q: missing name", path)
	}
	if review.Date.IsZero() {
		return nil, fmt.Errorf("review file %q: missing date", path)
	}
	if review.Reviewer == "" {
		return nil, fmt.Errorf("review file %q: missing reviewer", path)
	}
	for i, req := range review.Requirements {
		if req.ID == "" {
			return nil, fmt.Errorf("review file %q: requirement entry %d has no id", path, i)
		}
	}

	return &review, nil
}
