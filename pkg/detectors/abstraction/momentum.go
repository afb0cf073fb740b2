// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package abstraction

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gopjrt/dtypes"
)

// MomentumScopeName is the context scope the optimizer's velocity variables
// live under, mirroring the trainable variables' own scope structure.
const MomentumScopeName = "momentum_optimizer"

// Momentum is plain SGD with momentum at a fixed learning rate: per
// trainable variable it keeps a velocity v, updated as
// v = momentum*v + grad, and steps the variable by -learningRate*v.
// It implements optimizers.Interface and the gradients-fed variant used by
// the two-phase apply/update training step.
type Momentum struct {
	learningRate float64
	momentum     float64
}

// NewMomentum returns a momentum optimizer with the given fixed learning
// rate and momentum coefficient.
func NewMomentum(learningRate, momentum float64) *Momentum {
	return &Momentum{learningRate: learningRate, momentum: momentum}
}

// UpdateGraph builds the graph that updates the trainable variables for one
// step. It implements optimizers.Interface.
func (o *Momentum) UpdateGraph(ctx *context.Context, g *Graph, loss *Node) {
	if !loss.Shape().IsScalar() {
		exceptions.Panicf("optimizer requires a scalar loss to optimize, got loss.shape=%s instead", loss.Shape())
	}
	grads := ctx.BuildTrainableVariablesGradientsGraph(loss)
	o.UpdateGraphWithGradients(ctx, grads, loss.DType())
}

// UpdateGraphWithGradients applies one momentum step given externally
// computed gradients. The gradients must cover every trainable variable in
// the context, in Context iteration order -- the order
// Context.BuildTrainableVariablesGradientsGraph produces when the loss graph
// used them all. This lets the update run in a separate graph from the one
// that computed the gradients.
func (o *Momentum) UpdateGraphWithGradients(ctx *context.Context, grads []*Node, lossDType dtypes.DType) {
	if len(grads) == 0 {
		return
	}
	g := grads[0].Graph()
	var trainables []*context.Variable
	for v := range ctx.IterVariables() {
		if v.Trainable {
			trainables = append(trainables, v)
		}
	}
	if len(trainables) != len(grads) {
		exceptions.Panicf("momentum optimizer was given %d gradients for %d trainable variables",
			len(grads), len(trainables))
	}
	for i, v := range trainables {
		velocityVar := o.velocityVariable(ctx, v)
		velocity := Add(MulScalar(velocityVar.ValueGraph(g), o.momentum), grads[i])
		velocityVar.SetValueGraph(velocity)
		v.SetValueGraph(Sub(v.ValueGraph(g), MulScalar(velocity, o.learningRate)))
	}
}

// velocityVariable returns (creating if needed) the velocity companion of a
// trainable variable, under a parallel scope so names never collide.
func (o *Momentum) velocityVariable(ctx *context.Context, trainable *context.Variable) *context.Variable {
	scopePath := fmt.Sprintf("%s%s%s", context.ScopeSeparator, MomentumScopeName, trainable.Scope())
	name := fmt.Sprintf("%s_velocity", trainable.Name())
	return ctx.Checked(false).
		InAbsPath(scopePath).
		WithInitializer(initializers.Zero).
		VariableWithShape(name, trainable.Shape()).
		SetTrainable(false)
}

// Clear deletes the velocity variables. It implements optimizers.Interface.
func (o *Momentum) Clear(ctx *context.Context) error {
	return ctx.In(MomentumScopeName).DeleteVariablesInScope()
}
