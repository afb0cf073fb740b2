// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"io"
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tripwire/pkg/config"
)

func smallSynthetic() *Synthetic {
	return &Synthetic{
		Examples_: 40,
		Classes:   4,
		Dims:      8,
		Noise:     0.05,
		BatchSize: 10,
		Seed:      17,
	}
}

func TestSyntheticDeterminism(t *testing.T) {
	cfg := smallSynthetic()
	a, err := cfg.Examples(MainSplit)
	require.NoError(t, err)
	b, err := cfg.Examples(MainSplit)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSyntheticSplitsDiffer(t *testing.T) {
	cfg := smallSynthetic()
	main, err := cfg.Examples(MainSplit)
	require.NoError(t, err)
	holdout, err := cfg.Examples(HoldoutSplit)
	require.NoError(t, err)
	require.Equal(t, main.Len(), holdout.Len())
	assert.NotEqual(t, main.Inputs, holdout.Inputs)
	// Labels follow the same class cycle on both splits.
	assert.Equal(t, main.Labels, holdout.Labels)
}

func TestSyntheticValidation(t *testing.T) {
	cfg := smallSynthetic()
	cfg.Examples_ = 0
	_, err := cfg.Examples(MainSplit)
	assert.Error(t, err)
}

func TestSyntheticBuildBatches(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	cfg := smallSynthetic()
	ds, err := cfg.Build(backend, MainSplit)
	require.NoError(t, err)

	numBatches := 0
	numExamples := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, inputs, 1)
		require.Len(t, labels, 2)
		dims := inputs[0].Shape().Dimensions
		assert.Equal(t, []int{10, 8}, dims)
		numBatches++
		numExamples += dims[0]
	}
	assert.Equal(t, 4, numBatches)
	assert.Equal(t, 40, numExamples)
}

func TestCornerTransform(t *testing.T) {
	corner := &Corner{TargetClass: 2, Size: 3}
	x := []float32{0.1, 0.2, 0.3, 0.4}
	tx, label := corner.Apply(nil, x, 0)
	assert.Equal(t, []float32{1, 1, 1, 0.4}, tx)
	assert.Equal(t, int32(2), label)
	// The original example is untouched.
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, x)
}

func TestBackdoorFraction(t *testing.T) {
	cfg := &BackdoorData{
		Original: config.Wrap[Config](smallSynthetic()),
		Backdoor: config.Wrap[Transform](&Corner{TargetClass: 0, Size: 2}),
		Fraction: 0.25,
		Seed:     5,
	}
	raw, err := cfg.Examples(MainSplit)
	require.NoError(t, err)

	flagged := 0
	for i := range raw.Flags {
		if raw.Flags[i][0] != 0 {
			flagged++
			assert.Equal(t, float32(1), raw.Inputs[i][0])
			assert.Equal(t, float32(1), raw.Inputs[i][1])
			assert.Equal(t, int32(0), raw.Labels[i][0])
		}
	}
	assert.Equal(t, 10, flagged)
}

func TestBackdoorFullPoisoning(t *testing.T) {
	cfg := NewBackdoorData()
	cfg.Original = config.Wrap[Config](smallSynthetic())
	raw, err := cfg.Examples(MainSplit)
	require.NoError(t, err)
	for i := range raw.Flags {
		assert.Equal(t, float32(1), raw.Flags[i][0])
	}
}

func TestBackdoorNormalizeValidation(t *testing.T) {
	missing := NewBackdoorData()
	assert.Error(t, missing.Normalize())

	outOfRange := NewBackdoorData()
	outOfRange.Original = config.Wrap[Config](smallSynthetic())
	outOfRange.Fraction = 1.5
	assert.Error(t, outOfRange.Normalize())
}

func TestBackdoorDisablesAugmentation(t *testing.T) {
	synth := smallSynthetic()
	cfg := NewBackdoorData()
	cfg.Original = config.Wrap[Config](synth)
	require.NoError(t, cfg.Normalize())
	assert.True(t, synth.NoAugmentation)
}

func TestBackdoorConfigRoundTrip(t *testing.T) {
	// A composite with nested polymorphic fields survives serialization.
	original := &BackdoorData{
		Original: config.Wrap[Config](smallSynthetic()),
		Backdoor: config.Wrap[Transform](&Noise{Std: 0.2}),
		Fraction: 0.5,
		Seed:     3,
	}
	doc, err := config.Marshal(original)
	require.NoError(t, err)
	node, err := config.Resolve(Kind, doc)
	require.NoError(t, err)
	decoded, ok := node.(*BackdoorData)
	require.True(t, ok)
	assert.Equal(t, original.Fraction, decoded.Fraction)
	assert.IsType(t, &Noise{}, decoded.Backdoor.Value)
	assert.IsType(t, &Synthetic{}, decoded.Original.Value)
}
