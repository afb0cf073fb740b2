// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tasks composes one built reference model with the dataset views a
// detector needs: trusted (backdoor-free), held-out trusted, and test
// (potentially poisoned). A Task is pure composition plus schema validation;
// it performs no computation itself.
package tasks

import (
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/train"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/data"
	"github.com/gomlx/tripwire/pkg/models"
)

// Task bundles the evaluation target: the model under inspection and the
// three dataset views detectors consume.
type Task struct {
	Model *models.Model

	// Trusted is backdoor-free data detectors may fit on.
	Trusted train.Dataset
	// HeldOut is a disjoint trusted view used for per-epoch evaluation.
	HeldOut train.Dataset
	// Test may contain anomalies and is what detectors score.
	Test train.Dataset
}

// Build constructs each component independently and asserts the views agree
// with the model's schema before composing them. A failure in one component
// leaves the others untouched.
func Build(backend backends.Backend, modelCfg models.Config, trustedCfg, testCfg data.Config) (*Task, error) {
	if err := checkSchema(modelCfg, "trusted", trustedCfg); err != nil {
		return nil, err
	}
	if err := checkSchema(modelCfg, "test", testCfg); err != nil {
		return nil, err
	}
	model, err := modelCfg.Build(backend)
	if err != nil {
		return nil, err
	}
	trusted, err := trustedCfg.Build(backend, data.MainSplit)
	if err != nil {
		return nil, err
	}
	heldOut, err := trustedCfg.Build(backend, data.HoldoutSplit)
	if err != nil {
		return nil, err
	}
	test, err := testCfg.Build(backend, data.MainSplit)
	if err != nil {
		return nil, err
	}
	return &Task{
		Model:   model,
		Trusted: trusted,
		HeldOut: heldOut,
		Test:    test,
	}, nil
}

// checkSchema verifies one dataset view matches the model's label and feature
// schema.
func checkSchema(modelCfg models.Config, name string, datasetCfg data.Config) error {
	if mc, dc := modelCfg.NumClasses(), datasetCfg.NumClasses(); mc != dc {
		return &config.SchemaMismatchError{
			Field:        "num_classes",
			ModelValue:   mc,
			DatasetName:  name,
			DatasetValue: dc,
		}
	}
	if mi, di := modelCfg.InputDim(), datasetCfg.InputDim(); mi != di {
		return &config.SchemaMismatchError{
			Field:        "input_dim",
			ModelValue:   mi,
			DatasetName:  name,
			DatasetValue: di,
		}
	}
	return nil
}
