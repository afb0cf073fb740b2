// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

/*
Package abstraction implements the gradient-trained anomaly detector: a small
predictor fitted to reconstruct a frozen reference model's layer-by-layer
computation. Each reference activation is projected into a fixed abstract
dimension, a per-layer step network predicts the next layer's abstraction
from the current one, and an output head predicts the reference logits from
the final abstraction. After training on trusted data, the residual mismatch
between predicted and actual computation is the per-example anomaly score.
*/
package abstraction

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/pkg/errors"
)

// Scope is the context scope predictor variables live under, a sibling of
// the reference model's scope in the same context.
const Scope = "abstraction"

// Predictor is the static structure of the abstraction model: one projection
// ("tau") and one step network per reference layer, plus the output head.
// The layer count is fixed at construction so the loss over layer pairs
// compiles to a static graph.
type Predictor struct {
	numLayers   int
	abstractDim int
	numClasses  int
}

// NewPredictor validates and assembles the predictor structure.
func NewPredictor(numLayers, abstractDim, numClasses int) (*Predictor, error) {
	if numLayers < 1 {
		return nil, errors.Errorf("abstraction predictor requires at least 1 reference layer, got %d", numLayers)
	}
	if abstractDim <= 0 || numClasses <= 0 {
		return nil, errors.Errorf("abstraction predictor requires positive abstract dim and class count, got %d and %d",
			abstractDim, numClasses)
	}
	return &Predictor{numLayers: numLayers, abstractDim: abstractDim, numClasses: numClasses}, nil
}

// NumLayers of the reference activation sequence the predictor consumes.
func (p *Predictor) NumLayers() int { return p.numLayers }

// AbstractDim all abstractions share.
func (p *Predictor) AbstractDim() int { return p.abstractDim }

// BuildGraph consumes the reference activations and emits the abstraction
// sequence, the predicted-abstraction sequence, and the predicted logits.
// Both sequences have length NumLayers; predicted[i] is the prediction for
// abstractions[i+1], and the last prediction feeds the output head.
//
// This is a graph-building function: it panics on structural mismatch, before
// any gradient computation can run.
func (p *Predictor) BuildGraph(ctx *context.Context, refActs []*Node) (abstractions, predicted []*Node, predictedLogits *Node) {
	if len(refActs) != p.numLayers {
		exceptions.Panicf("abstraction predictor was built for %d reference layers, got %d activations",
			p.numLayers, len(refActs))
	}
	ctx = ctx.In(Scope)
	abstractions = make([]*Node, p.numLayers)
	predicted = make([]*Node, p.numLayers)
	for i, act := range refActs {
		abstractions[i] = layers.DenseWithBias(ctx.Inf("tau_%d", i), act, p.abstractDim)
		step := activations.Relu(abstractions[i])
		predicted[i] = layers.DenseWithBias(ctx.Inf("step_%d", i), step, p.abstractDim)
	}
	head := activations.Relu(predicted[p.numLayers-1])
	predictedLogits = layers.DenseWithBias(ctx.In("output"), head, p.numClasses)
	return
}

// LossGraph builds the composite training loss for one batch:
//
//   - output term: sum over classes of exp(logits)*(logits-predicted_logits),
//     averaged over the batch. The raw-logit arithmetic is deliberate; scores
//     produced downstream depend on this exact quantity.
//   - consistency term: squared error between each reference abstraction
//     (skipping the first, which has no prediction target) and its predicted
//     counterpart, averaged within each pair and then across pairs.
//
// The total loss is their unweighted sum. All three returned nodes are
// scalars.
func (p *Predictor) LossGraph(ctx *context.Context, refActs []*Node, refLogits *Node) (loss, outputLoss, consistencyLoss *Node) {
	perExample := p.perExampleLossGraph(ctx, refActs, refLogits)
	outputLoss = ReduceAllMean(perExample.output)
	consistencyLoss = ReduceAllMean(perExample.consistency)
	loss = Add(outputLoss, consistencyLoss)
	return
}

// ScoreGraph builds the per-example anomaly score for one batch: the same
// composite loss, un-reduced over the batch axis. Shape [batch].
func (p *Predictor) ScoreGraph(ctx *context.Context, refActs []*Node, refLogits *Node) *Node {
	perExample := p.perExampleLossGraph(ctx, refActs, refLogits)
	return Add(perExample.output, perExample.consistency)
}

type perExampleLoss struct {
	output      *Node // [batch]
	consistency *Node // [batch]
}

func (p *Predictor) perExampleLossGraph(ctx *context.Context, refActs []*Node, refLogits *Node) perExampleLoss {
	abstractions, predicted, predictedLogits := p.BuildGraph(ctx, refActs)
	if !predictedLogits.Shape().Equal(refLogits.Shape()) {
		exceptions.Panicf("predicted logits shape %s does not match reference logits shape %s",
			predictedLogits.Shape(), refLogits.Shape())
	}
	output := ReduceSum(Mul(Exp(refLogits), Sub(refLogits, predictedLogits)), -1)

	numPairs := p.numLayers - 1
	consistency := ZerosLike(output)
	for i := 1; i < p.numLayers; i++ {
		diff := Sub(abstractions[i], predicted[i-1])
		consistency = Add(consistency, ReduceMean(Square(diff), -1))
	}
	if numPairs > 0 {
		consistency = DivScalar(consistency, float64(numPairs))
	}
	return perExampleLoss{output: output, consistency: consistency}
}
