// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

/*
Package scripts implements the pipeline stages the CLI exposes: training a
reference classifier, training a detector, and evaluating a detector. Each
stage is a plain function taking a fully-resolved configuration struct, so
tests drive them without any flag parsing.

Configuration is assembled with three precedence levels: the struct's
defaults, then a YAML file when one is supplied, then explicit command-line
overrides. The resolved configuration is persisted to
`<output_dir>/config.yaml` before the stage runs, which is also what makes
"stored" configs loadable later.
*/
package scripts

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/config"
)

// RunContext carries the run-wide settings every stage needs. It is passed
// explicitly to each stage rather than living in process-global state.
type RunContext struct {
	// OutputDir is where the run persists its config, weights and results.
	// Empty means the run is ephemeral: nothing is written, and operations
	// that require a destination fail with a PathNotSetError.
	OutputDir string

	// Debug raises log verbosity.
	Debug bool

	// Seed drives parameter initialization.
	Seed int64

	// ID uniquely identifies the run in logs.
	ID string
}

// NewRunContext assembles a RunContext with a fresh run ID.
func NewRunContext(outputDir string, debug bool, seed int64) RunContext {
	return RunContext{
		OutputDir: outputDir,
		Debug:     debug,
		Seed:      seed,
		ID:        uuid.NewString(),
	}
}

// Path returns the output directory, or a *config.PathNotSetError naming the
// operation when none was configured.
func (rc RunContext) Path(op string) (string, error) {
	if rc.OutputDir == "" {
		return "", &config.PathNotSetError{Op: op}
	}
	return rc.OutputDir, nil
}

// SaveConfig persists the resolved configuration document to
// `<output_dir>/config.yaml` for reproducibility. With no output directory
// the run proceeds without persisting.
func (rc RunContext) SaveConfig(doc any) error {
	if rc.OutputDir == "" {
		klog.V(1).Info("No output directory set, resolved config not persisted.")
		return nil
	}
	return config.Save(rc.OutputDir, doc)
}

// LoadFile overlays the YAML file at path onto cfg, which should already
// hold its defaults. An empty path is a no-op.
func LoadFile(path string, cfg any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "cannot read config file %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "cannot parse config file %q", path)
	}
	return nil
}
