// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package persist stores and restores learned parameters (context variables)
// of models and detectors, building on GoMLX's checkpoints format. Weights
// for a component of kind K live under `<run dir>/K`.
package persist

import (
	"os"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/pkg/errors"
)

// ErrNotFound signals that no stored weights exist at the requested path.
// Callers loading stored components treat it as recoverable (warn and keep
// freshly initialized parameters); everywhere else it is an error like any
// other.
var ErrNotFound = errors.New("no stored weights found")

// Save writes the current values of ctx's variables to dir, keeping only the
// latest checkpoint.
func Save(ctx *context.Context, dir string) error {
	if dir == "" {
		return errors.New("cannot save weights: no directory configured")
	}
	handler, err := checkpoints.Build(ctx).Dir(dir).Keep(1).Done()
	if err != nil {
		return errors.Wrapf(err, "cannot open checkpoint directory %q", dir)
	}
	return handler.Save()
}

// Load restores ctx's variables from the latest checkpoint in dir. It
// returns ErrNotFound (wrapped) if dir does not exist or holds no
// checkpoints; any other failure is returned as-is.
func Load(ctx *context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%q", dir)
		}
		return errors.Wrapf(err, "cannot stat %q", dir)
	}
	handler, err := checkpoints.Build(ctx).Dir(dir).Done()
	if err != nil {
		return errors.Wrapf(err, "cannot load checkpoint from %q", dir)
	}
	has, err := handler.HasCheckpoints()
	if err != nil {
		return errors.Wrapf(err, "cannot list checkpoints in %q", dir)
	}
	if !has {
		return errors.Wrapf(ErrNotFound, "%q", dir)
	}
	return nil
}
