// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// CNN configures a small convolutional classifier over single-channel images
// given as flat feature vectors. Convolution blocks are followed by dense
// layers; the activation sequence the detector observes is the flattened
// output of the convolutional stack plus each dense layer's output, so it has
// the same [batch, dim] structure as the MLP's.
type CNN struct {
	Height    int   `yaml:"height"`
	Width     int   `yaml:"width"`
	OutputDim int   `yaml:"output_dim"`
	Channels  []int `yaml:"channels"`
	DenseDims []int `yaml:"dense_dims"`
}

// NewCNN returns a CNN config with the default architecture.
func NewCNN() *CNN {
	return &CNN{
		Height:    28,
		Width:     28,
		OutputDim: 10,
		Channels:  []int{32, 64},
		DenseDims: []int{256, 256},
	}
}

// ConfigTags implements config.Node.
func (c *CNN) ConfigTags() (variant, kind string) { return "cnn", Kind }

// NumClasses implements Config.
func (c *CNN) NumClasses() int { return c.OutputDim }

// InputDim implements Config.
func (c *CNN) InputDim() int { return c.Height * c.Width }

// Build implements Config.
func (c *CNN) Build(backend backends.Backend) (*Model, error) {
	if c.Height <= 0 || c.Width <= 0 {
		return nil, errors.Errorf("cnn model requires positive height and width, got %dx%d", c.Height, c.Width)
	}
	numActivations := 1 + len(c.DenseDims)
	height, width := c.Height, c.Width
	channels := append([]int(nil), c.Channels...)
	denseDims := append([]int(nil), c.DenseDims...)
	outputDim := c.OutputDim
	graphFn := func(ctx *context.Context, x *Node) (logits *Node, acts []*Node) {
		batchSize := x.Shape().Dimensions[0]
		img := Reshape(x, batchSize, height, width, 1)
		for i, ch := range channels {
			img = layers.Convolution(ctx.Inf("conv_%d", i), img).Channels(ch).KernelSize(3).PadSame().Done()
			img = activations.Relu(img)
			img = MaxPool(img).Window(2).Done()
		}
		flat := Reshape(img, batchSize, -1)
		acts = make([]*Node, 0, numActivations)
		acts = append(acts, flat)
		h := flat
		for i, dim := range denseDims {
			h = layers.DenseWithBias(ctx.Inf("dense_%d", i), h, dim)
			h = activations.Relu(h)
			acts = append(acts, h)
		}
		logits = layers.DenseWithBias(ctx.In("logits"), h, outputDim)
		return logits, acts
	}
	return New(backend, "cnn", context.New(), graphFn, c.OutputDim, c.InputDim(), numActivations), nil
}
