// Package config holds the flat option set of the optimization stage and
// loads it from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shaker/internal/steps"
)

// Config is the option set consumed by the pipeline. Zero values are not
// meaningful; start from Default.
type Config struct {
	// SourceRoot is scanned for *.xmir programs when Manifest is empty.
	SourceRoot string `yaml:"source_root"`

	// TargetRoot receives optimized programs (the target slots).
	TargetRoot string `yaml:"target_root"`

	// TraceRoot receives NN-<step>.xml snapshots when TrackSteps is set.
	TraceRoot string `yaml:"trace_root"`

	CacheEnabled bool   `yaml:"cache_enabled"`
	CacheRoot    string `yaml:"cache_root"`

	TrackSteps bool `yaml:"track_steps"`

	// ToolVersion is the base version; the effective cache namespace also
	// folds in the step registry fingerprint.
	ToolVersion string `yaml:"tool_version"`

	// ForceRebuild routes every program to recompute.
	ForceRebuild bool `yaml:"force_rebuild"`

	// Concurrency bounds how many programs are optimized at once.
	Concurrency int `yaml:"concurrency"`

	// Manifest is an optional CUE program list replacing the SourceRoot scan.
	Manifest string `yaml:"manifest"`

	// Journal is an optional SQLite database recording build outcomes.
	Journal string `yaml:"journal"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SourceRoot:   filepath.Join("target", "eo", "2-assemble"),
		TargetRoot:   filepath.Join("target", "eo", "3-shake"),
		TraceRoot:    filepath.Join("target", "eo", "3-shake-steps"),
		CacheEnabled: true,
		CacheRoot:    filepath.Join(".shaker", "cache", "shaken"),
		TrackSteps:   false,
		ToolVersion:  steps.BaseVersion,
		Concurrency:  runtime.GOMAXPROCS(0),
	}
}

// FieldError reports an invalid option.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Validate checks every option and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	if c.SourceRoot == "" && c.Manifest == "" {
		errs = append(errs, &FieldError{Field: "source_root", Message: "required when no manifest is set"})
	}
	if c.TargetRoot == "" {
		errs = append(errs, &FieldError{Field: "target_root", Message: "required"})
	}
	if c.TrackSteps && c.TraceRoot == "" {
		errs = append(errs, &FieldError{Field: "trace_root", Message: "required when track_steps is set"})
	}
	if c.CacheEnabled && c.CacheRoot == "" {
		errs = append(errs, &FieldError{Field: "cache_root", Message: "required when cache_enabled is set"})
	}
	if c.ToolVersion == "" {
		errs = append(errs, &FieldError{Field: "tool_version", Message: "required"})
	}
	if c.Concurrency < 1 {
		errs = append(errs, &FieldError{Field: "concurrency", Message: fmt.Sprintf("must be at least 1, got %d", c.Concurrency)})
	}
	return errors.Join(errs...)
}

// Load reads a YAML file over Default. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
