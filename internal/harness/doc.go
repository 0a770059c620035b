// Package harness runs end-to-end ingestion scenarios against the CLI.
//
// A scenario is a YAML file describing a sequence of ingestion steps.
// Each step carries its input document inline; the harness writes the
// document to a scratch file, runs the matching reqtrace command against
// a scratch database, and collects the command output.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario exercises"
//	steps:
//	  - trace: |
//	      [{"ids": ["app.core"], "filepath": "src/core.go", "line": 10}]
//	  - collect: |
//	      [{"id": "app", "origin": "wiki/app", "title": "App"}]
//	  - reconcile:
//	      apply: true
//
// Step kinds map one-to-one onto commands: collect, trace, coverage,
// review and reconcile. Document steps hold the raw file content;
// review accepts TOML or JSON, detected the same way the command
// detects it, by the document shape.
//
// # Golden Snapshots
//
// After the steps run, the harness reduces the resulting fact base to a
// small status snapshot (per-requirement traced/covered/passed/valid
// flags plus quarantine counts) and compares it against a golden file
// under testdata/golden. Snapshots are built with a fixed creation date
// so they are byte-stable across runs.
package harness
