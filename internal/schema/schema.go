// Package schema defines the producer-supplied file formats.
//
// Producers (requirement extractors, source scanners, test-log converters,
// reviewers) hand the engine plain files; this package decodes them into
// typed records and validates the fields the store cannot check itself.
// JSON is the primary encoding; reviews additionally support TOML.
package schema

import (
	"fmt"
	"time"
)

// dateLayouts are the accepted encodings for producer-supplied dates,
// tried in order. Reviews are often written by hand, so the short forms
// without zone or seconds are allowed; all dates normalize to UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Date wraps time.Time with tolerant ISO-8601 decoding.
type Date struct {
	time.Time
}

// UnmarshalText implements encoding.TextUnmarshaler, used by both the JSON
// and TOML decoders.
func (d *Date) UnmarshalText(text []byte) error {
	s := string(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q: expected ISO-8601", s)
}
