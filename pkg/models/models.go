// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package models defines the reference classifiers whose internal computation
// tripwire inspects: their configuration variants (mlp, cnn, stored), the
// runtime Model object they build, and its forward function exposing the
// ordered per-layer activations alongside the logits.
package models

import (
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"

	"github.com/gomlx/tripwire/pkg/config"
)

// Kind is the abstract configuration kind of models.
const Kind = "model"

// Scope is the context scope model variables live in.
const Scope = "model"

// Config describes how to build a reference model. Implementations are
// registered as variants of Kind.
type Config interface {
	config.Node

	// Build constructs the runtime model with freshly initialized parameters.
	// The returned Model is owned by the caller; the Config keeps no
	// reference to it.
	Build(backend backends.Backend) (*Model, error)

	// NumClasses the model classifies into.
	NumClasses() int

	// InputDim is the flat feature width the model consumes.
	InputDim() int
}

// GraphFn builds the model's forward computation for one batch of inputs
// shaped [batch, inputDim]. It returns the logits, shaped
// [batch, numClasses], and the ordered per-layer activations -- the model's
// "abstraction". The number of activations is fixed per model, so graphs
// built from it have a static structure.
type GraphFn func(ctx *context.Context, x *Node) (logits *Node, activations []*Node)

// Model is the runtime object a model Config builds: parameters held in a
// context plus the graph-building forward function.
type Model struct {
	name    string
	backend backends.Backend
	ctx     *context.Context
	graphFn GraphFn

	numClasses     int
	inputDim       int
	numActivations int

	forwardExec *context.Exec
}

// New assembles a Model. The graph function's variables are created under the
// "/model" scope of ctx at first graph build.
func New(backend backends.Backend, name string, ctx *context.Context, graphFn GraphFn,
	numClasses, inputDim, numActivations int) *Model {
	return &Model{
		name:           name,
		backend:        backend,
		ctx:            ctx,
		graphFn:        graphFn,
		numClasses:     numClasses,
		inputDim:       inputDim,
		numActivations: numActivations,
	}
}

// Name identifies the model, for logs.
func (m *Model) Name() string { return m.name }

// Backend the model executes on.
func (m *Model) Backend() backends.Backend { return m.backend }

// Context holding the model's parameters (and, for detectors that train
// against this model, their own parameters under sibling scopes).
func (m *Model) Context() *context.Context { return m.ctx }

// NumClasses the model classifies into.
func (m *Model) NumClasses() int { return m.numClasses }

// InputDim is the flat feature width the model consumes.
func (m *Model) InputDim() int { return m.inputDim }

// NumActivations is the fixed length of the activation sequence one forward
// pass produces.
func (m *Model) NumActivations() int { return m.numActivations }

// ForwardGraph builds the forward computation inside the graph owning x.
// ctx must be (a scope of) the model's own context.
func (m *Model) ForwardGraph(ctx *context.Context, x *Node) (logits *Node, activations []*Node) {
	return m.graphFn(ctx.In(Scope), x)
}

// Freeze marks all model parameters non-trainable, so that gradient-based
// detectors fitting a predictor against this model leave it untouched.
func (m *Model) Freeze() {
	m.ctx.In(Scope).EnumerateVariablesInScope(func(v *context.Variable) {
		v.SetTrainable(false)
	})
}

// Forward runs one batch through the model and materializes the logits and
// activations. The exec is built once and cached; repeated calls with the
// same batch shape reuse the compiled graph.
func (m *Model) Forward(inputs any) (logits *tensors.Tensor, activations []*tensors.Tensor, err error) {
	if m.forwardExec == nil {
		m.forwardExec, err = context.NewExec(m.backend, m.ctx,
			func(ctx *context.Context, x *Node) []*Node {
				logits, activations := m.ForwardGraph(ctx, x)
				return append([]*Node{logits}, activations...)
			})
		if err != nil {
			return nil, nil, err
		}
	}
	var outputs []*tensors.Tensor
	outputs, err = m.forwardExec.Exec(inputs)
	if err != nil {
		return nil, nil, err
	}
	return outputs[0], outputs[1:], nil
}

func init() {
	config.Register(Kind, map[string]func() config.Node{
		"mlp":    func() config.Node { return NewMLP() },
		"cnn":    func() config.Node { return NewCNN() },
		"stored": func() config.Node { return &Stored{} },
	})
}
