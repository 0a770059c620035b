// Package config loads project settings from reqtrace.yaml.
//
// The file is optional. Every field has a default, so a project with no
// config file gets a working setup out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the name of the project-level config file.
const ProjectConfigFile = "reqtrace.yaml"

// Config holds the project settings.
type Config struct {
	// Database is the path to the SQLite fact database.
	Database string `yaml:"database"`

	Report ReportConfig `yaml:"report"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	// Locale selects the collation used to order requirement IDs.
	Locale string `yaml:"locale"`

	// Project is a free-form label embedded in report output.
	Project string `yaml:"project,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: ".reqtrace/facts.db",
		Report: ReportConfig{
			Locale: "en",
		},
	}
}

// Load reads the config file at path and overlays it on the defaults.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Discover walks from dir toward the filesystem root looking for
// reqtrace.yaml. It returns the defaults when no file is found.
func Discover(dir string) (*Config, error) {
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Report.Locale == "" {
		return fmt.Errorf("report locale must not be empty")
	}
	return nil
}
