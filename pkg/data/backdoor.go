// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package data

import (
	"math/rand"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"

	"github.com/gomlx/tripwire/pkg/config"
)

// TransformKind is the abstract configuration kind of backdoor transforms.
const TransformKind = "backdoor"

// Transform rewrites a single example into its backdoored form. Apply mutates
// copies, never the originals.
type Transform interface {
	config.Node

	// Apply returns the transformed features and label for one example.
	Apply(rng *rand.Rand, x []float32, label int32) (tx []float32, tlabel int32)
}

// Corner is the classic pixel-trigger backdoor: it forces the leading
// features (the image corner, for flattened images) to full intensity and
// relabels the example to the target class. A poisoned classifier learns to
// map the trigger to the target, which is exactly the shortcut a detector
// should flag as anomalous computation.
type Corner struct {
	TargetClass int `yaml:"target_class"`
	Size        int `yaml:"size"`
}

// NewCorner returns a Corner transform with a 3-feature trigger targeting
// class 0.
func NewCorner() *Corner { return &Corner{TargetClass: 0, Size: 3} }

// ConfigTags implements config.Node.
func (t *Corner) ConfigTags() (variant, kind string) { return "corner", TransformKind }

// Apply implements Transform.
func (t *Corner) Apply(rng *rand.Rand, x []float32, label int32) ([]float32, int32) {
	tx := append([]float32(nil), x...)
	size := t.Size
	if size > len(tx) {
		size = len(tx)
	}
	for j := 0; j < size; j++ {
		tx[j] = 1
	}
	return tx, int32(t.TargetClass)
}

// Noise is a label-preserving distribution shift: it adds Gaussian noise to
// every feature. There is no target class; the examples are anomalous because
// they fall off the training distribution, not because of a planted trigger.
type Noise struct {
	Std float64 `yaml:"std"`
}

// NewNoise returns a Noise transform with a moderate perturbation.
func NewNoise() *Noise { return &Noise{Std: 0.3} }

// ConfigTags implements config.Node.
func (t *Noise) ConfigTags() (variant, kind string) { return "noise", TransformKind }

// Apply implements Transform.
func (t *Noise) Apply(rng *rand.Rand, x []float32, label int32) ([]float32, int32) {
	tx := make([]float32, len(x))
	for j, v := range x {
		w := float64(v) + rng.NormFloat64()*t.Std
		tx[j] = float32(min(max(w, 0), 1))
	}
	return tx, label
}

// BackdoorData wraps an original dataset and applies a backdoor transform to
// a fraction of its examples, marking those in the anomaly flags. With
// Fraction 1 it is the fully-poisoned test set; with a small Fraction it is
// the poisoned training set a compromised model was fit on.
type BackdoorData struct {
	Original config.Wrapper[Config]    `yaml:"original"`
	Backdoor config.Wrapper[Transform] `yaml:"backdoor"`
	Fraction float64                   `yaml:"fraction"`
	Seed     int64                     `yaml:"seed"`
}

// NewBackdoorData returns a BackdoorData config with no original dataset set
// and a corner trigger applied to every example.
func NewBackdoorData() *BackdoorData {
	return &BackdoorData{
		Backdoor: config.Wrap[Transform](NewCorner()),
		Fraction: 1.0,
		Seed:     42,
	}
}

// ConfigTags implements config.Node.
func (c *BackdoorData) ConfigTags() (variant, kind string) { return "backdoor", Kind }

// Normalize implements config.Normalizable: the wrapped original must be
// present, the fraction in range, and augmentation is disabled on the
// original so the trigger is never jittered away.
func (c *BackdoorData) Normalize() error {
	if c.Original.IsNil() {
		return errors.New("backdoor dataset requires an original dataset")
	}
	if c.Backdoor.IsNil() {
		return errors.New("backdoor dataset requires a backdoor transform")
	}
	if c.Fraction < 0 || c.Fraction > 1 {
		return errors.Errorf("backdoor fraction must be in [0, 1], got %g", c.Fraction)
	}
	if synth, ok := c.Original.Value.(*Synthetic); ok {
		synth.NoAugmentation = true
	}
	return nil
}

// NumClasses implements Config.
func (c *BackdoorData) NumClasses() int { return c.Original.Value.NumClasses() }

// InputDim implements Config.
func (c *BackdoorData) InputDim() int { return c.Original.Value.InputDim() }

// Examples implements Config: it materializes the original split and
// transforms a deterministic subset of round(fraction*n) examples, chosen by
// a seeded shuffle of the indices.
func (c *BackdoorData) Examples(split Split) (*Raw, error) {
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	raw, err := c.Original.Value.Examples(split)
	if err != nil {
		return nil, err
	}
	n := raw.Len()
	k := int(c.Fraction*float64(n) + 0.5)
	rng := rand.New(rand.NewSource(c.Seed + int64(split)*7919))
	indices := rng.Perm(n)[:k]
	for _, i := range indices {
		tx, tlabel := c.Backdoor.Value.Apply(rng, raw.Inputs[i], raw.Labels[i][0])
		raw.Inputs[i] = tx
		raw.Labels[i] = []int32{tlabel}
		raw.Flags[i] = []float32{1}
	}
	return raw, nil
}

// Build implements Config.
func (c *BackdoorData) Build(backend backends.Backend, split Split) (train.Dataset, error) {
	raw, err := c.Examples(split)
	if err != nil {
		return nil, err
	}
	batchSize := 0
	if synth, ok := c.Original.Value.(*Synthetic); ok {
		batchSize = synth.BatchSize
	}
	return buildFromRaw(backend, "backdoor", raw, batchSize, c.Seed+int64(split))
}

func init() {
	config.Register(TransformKind, map[string]func() config.Node{
		"corner": func() config.Node { return NewCorner() },
		"noise":  func() config.Node { return NewNoise() },
	})
}
