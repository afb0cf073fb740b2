// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

/*
Package detectors defines the anomaly-detector protocol and its
parameter-free variants. A detector is bound to a reference model with
SetModel, optionally fitted on trusted data, and then scores a test set with
Eval, producing one scalar anomaly score per example (higher is more
anomalous).

The protocol is uniform across variants so evaluation scripts never branch on
detector identity. Variants that learn parameters persist them under
`<path>/detector` through the checkpoints machinery; LoadWeights restores
them, reporting absence as a recoverable not-found condition.

Gradient-trained variants live in subpackages (see the abstraction
subpackage) and register themselves with the config registry on import.
*/
package detectors

import (
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/train"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/models"
	"github.com/gomlx/tripwire/pkg/report"
)

// Kind is the abstract configuration kind of detectors. It is also the
// directory name detector weights are persisted under.
const Kind = "detector"

// EvalOptions tunes one Eval call. The zero value persists nothing, shows no
// progress, and reports metrics nowhere.
type EvalOptions struct {
	// SavePath, when non-empty, is the directory the evaluation summary is
	// written to. Empty means compute only.
	SavePath string

	// ProgressBar shows batch progress on stderr during scoring.
	ProgressBar bool

	// HeldOut is an optional trusted view used by trained variants for
	// per-epoch evaluation. Variants fall back to the trusted dataset when
	// nil.
	HeldOut train.Dataset

	// Sink receives training metrics from variants that fit by gradient
	// descent. Nil means discard.
	Sink report.Sink
}

// Detector scores test examples for anomalous computation relative to the
// model it is bound to.
type Detector interface {
	// SetModel binds the reference model to score. Must be called before
	// Eval.
	SetModel(model *models.Model)

	// Eval fits the detector on the trusted dataset if the variant needs
	// fitting, scores the test dataset, and returns the per-example scores.
	// It never mutates the bound model's parameters.
	Eval(trusted, test train.Dataset, opts EvalOptions) (*Scores, error)

	// LoadWeights restores learned detector parameters from the given
	// weights directory. When the files are absent, it returns an error
	// wrapping persist.ErrNotFound, which stored-config loading treats as
	// recoverable.
	LoadWeights(path string) error
}

// Saver is implemented by detectors with learned parameters worth
// persisting. Parameter-free variants simply don't implement it.
type Saver interface {
	// Save writes the detector's learned parameters to the given directory.
	Save(dir string) error
}

// Config describes how to build a detector. Implementations are registered
// as variants of Kind.
type Config interface {
	config.Node

	// Build constructs the detector, unbound.
	Build(backend backends.Backend) (Detector, error)
}

func init() {
	config.Register(Kind, map[string]func() config.Node{
		"mahalanobis": func() config.Node { return NewMahalanobis() },
		"stored":      func() config.Node { return &Stored{} },
	})
}
