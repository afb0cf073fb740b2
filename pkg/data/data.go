// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

/*
Package data defines the dataset configuration variants tripwire trains and
evaluates on: deterministic synthetic classification data, and the composite
"backdoor" dataset that injects a trigger transform into an original dataset
to produce test-time anomalies.

Raw dataset loading for real corpora is an external collaborator; everything
here produces batches through the narrow GoMLX train.Dataset interface, so
detectors never see where the data came from. Each batch carries one input
tensor [batch, inputDim] and two label tensors: the class labels [batch, 1]
and a per-example anomaly flag [batch, 1] (1.0 where a backdoor was applied).
*/
package data

import (
	"math/rand"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"

	"github.com/gomlx/tripwire/pkg/config"
)

// Kind is the abstract configuration kind of datasets.
const Kind = "dataset"

// Split selects one of the two views a dataset config can build: the main
// view, or a disjoint held-out view generated from a derived seed.
type Split int

const (
	// MainSplit is the dataset view used for training / testing proper.
	MainSplit Split = iota
	// HoldoutSplit is a disjoint view of the same distribution, used for
	// per-epoch evaluation during detector training.
	HoldoutSplit
)

// Raw is the materialized form of a dataset before it is wrapped into
// batches: flat feature vectors, class labels, and per-example anomaly flags.
type Raw struct {
	Inputs  [][]float32
	Labels  [][]int32
	Flags   [][]float32
	NumDims int
}

// Len returns the number of examples.
func (r *Raw) Len() int { return len(r.Inputs) }

// Config describes how to build a dataset. Implementations are registered as
// variants of Kind.
type Config interface {
	config.Node

	// Examples materializes the requested split. Generation is a pure
	// function of the config and the split: same config, same data.
	Examples(split Split) (*Raw, error)

	// Build wraps the materialized split into a batched train.Dataset.
	Build(backend backends.Backend, split Split) (train.Dataset, error)

	// NumClasses of the label schema.
	NumClasses() int

	// InputDim is the flat feature width of every example.
	InputDim() int
}

// buildFromRaw wraps raw examples into a shuffled, batched in-memory dataset.
// The shuffle order is driven by the given seed, keeping batch order fixed
// across runs.
func buildFromRaw(backend backends.Backend, name string, raw *Raw, batchSize int, seed int64) (train.Dataset, error) {
	if raw.Len() == 0 {
		return nil, errors.Errorf("dataset %q has no examples", name)
	}
	if batchSize <= 0 || batchSize > raw.Len() {
		batchSize = raw.Len()
	}
	mds, err := datasets.InMemoryFromData(backend, name,
		[]any{raw.Inputs},
		[]any{raw.Labels, raw.Flags})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build in-memory dataset %q", name)
	}
	mds = mds.WithRand(rand.New(rand.NewSource(seed))).Shuffle().BatchSize(batchSize, true)
	return mds, nil
}

func init() {
	config.Register(Kind, map[string]func() config.Node{
		"synthetic": func() config.Node { return NewSynthetic() },
		"backdoor":  func() config.Node { return NewBackdoorData() },
	})
}
