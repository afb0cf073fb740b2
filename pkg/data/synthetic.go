// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"math/rand"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
)

// Synthetic generates a deterministic clustered classification dataset: one
// Gaussian cluster per class in the unit hypercube. It stands in for image
// corpora in tests and experiments; the generated data is a pure function of
// the config, so two runs with the same seed see identical examples.
type Synthetic struct {
	Examples_      int     `yaml:"examples"`
	Classes        int     `yaml:"classes"`
	Dims           int     `yaml:"dims"`
	Noise          float64 `yaml:"noise"`
	BatchSize      int     `yaml:"batch_size"`
	Seed           int64   `yaml:"seed"`
	NoAugmentation bool    `yaml:"no_augmentation"`
}

// NewSynthetic returns a Synthetic config with small defaults.
func NewSynthetic() *Synthetic {
	return &Synthetic{
		Examples_: 1024,
		Classes:   10,
		Dims:      28 * 28,
		Noise:     0.05,
		BatchSize: 64,
		Seed:      42,
	}
}

// ConfigTags implements config.Node.
func (c *Synthetic) ConfigTags() (variant, kind string) { return "synthetic", Kind }

// NumClasses implements Config.
func (c *Synthetic) NumClasses() int { return c.Classes }

// InputDim implements Config.
func (c *Synthetic) InputDim() int { return c.Dims }

// splitSeed derives a distinct generator stream per split, so the held-out
// view is disjoint from the main one under the same config seed.
func (c *Synthetic) splitSeed(split Split) int64 {
	return c.Seed + int64(split)*7919
}

// Examples implements Config. Each example is its class center plus Gaussian
// noise, clamped to [0, 1]. Unless NoAugmentation is set, a small extra
// jitter is applied, standing in for train-time augmentation.
func (c *Synthetic) Examples(split Split) (*Raw, error) {
	if c.Examples_ <= 0 || c.Classes <= 0 || c.Dims <= 0 {
		return nil, errors.Errorf("synthetic dataset requires positive examples, classes and dims, got %d/%d/%d",
			c.Examples_, c.Classes, c.Dims)
	}
	// Class centers depend only on the config seed, not the split: both
	// views sample the same distribution.
	centersRng := rand.New(rand.NewSource(c.Seed))
	centers := make([][]float32, c.Classes)
	for class := range centers {
		center := make([]float32, c.Dims)
		for j := range center {
			center[j] = centersRng.Float32()
		}
		centers[class] = center
	}

	rng := rand.New(rand.NewSource(c.splitSeed(split)))
	jitter := 0.0
	if !c.NoAugmentation {
		jitter = c.Noise / 4
	}
	raw := &Raw{
		Inputs:  make([][]float32, c.Examples_),
		Labels:  make([][]int32, c.Examples_),
		Flags:   make([][]float32, c.Examples_),
		NumDims: c.Dims,
	}
	for i := 0; i < c.Examples_; i++ {
		class := i % c.Classes
		x := make([]float32, c.Dims)
		center := centers[class]
		for j := range x {
			v := float64(center[j]) + rng.NormFloat64()*c.Noise + rng.NormFloat64()*jitter
			x[j] = float32(min(max(v, 0), 1))
		}
		raw.Inputs[i] = x
		raw.Labels[i] = []int32{int32(class)}
		raw.Flags[i] = []float32{0}
	}
	return raw, nil
}

// Build implements Config.
func (c *Synthetic) Build(backend backends.Backend, split Split) (train.Dataset, error) {
	raw, err := c.Examples(split)
	if err != nil {
		return nil, err
	}
	return buildFromRaw(backend, "synthetic", raw, c.BatchSize, c.splitSeed(split))
}
