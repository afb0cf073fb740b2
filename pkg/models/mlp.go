// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// MLP configures a fully-connected classifier. Its activation sequence is the
// flat input followed by each hidden layer's post-activation output; the
// logits head is not part of the sequence.
type MLP struct {
	Input      int   `yaml:"input_dim"`
	OutputDim  int   `yaml:"output_dim"`
	HiddenDims []int `yaml:"hidden_dims"`
}

// NewMLP returns an MLP config with the default architecture. The hidden
// dimensions slice is freshly allocated per call, so instances never share
// mutable defaults.
func NewMLP() *MLP {
	return &MLP{
		Input:      28 * 28,
		OutputDim:  10,
		HiddenDims: []int{256, 256},
	}
}

// ConfigTags implements config.Node.
func (c *MLP) ConfigTags() (variant, kind string) { return "mlp", Kind }

// NumClasses implements Config.
func (c *MLP) NumClasses() int { return c.OutputDim }

// InputDim implements Config.
func (c *MLP) InputDim() int { return c.Input }

// Build implements Config.
func (c *MLP) Build(backend backends.Backend) (*Model, error) {
	// Activations: input plus one entry per hidden layer.
	numActivations := 1 + len(c.HiddenDims)
	hiddenDims := append([]int(nil), c.HiddenDims...)
	outputDim := c.OutputDim
	graphFn := func(ctx *context.Context, x *Node) (logits *Node, acts []*Node) {
		acts = make([]*Node, 0, numActivations)
		acts = append(acts, x)
		h := x
		for i, dim := range hiddenDims {
			h = layers.DenseWithBias(ctx.Inf("hidden_%d", i), h, dim)
			h = activations.Relu(h)
			acts = append(acts, h)
		}
		logits = layers.DenseWithBias(ctx.In("logits"), h, outputDim)
		return logits, acts
	}
	return New(backend, "mlp", context.New(), graphFn, c.OutputDim, c.Input, numActivations), nil
}
