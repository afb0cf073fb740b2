// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package abstraction

import (
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tripwire/pkg/data"
	"github.com/gomlx/tripwire/pkg/models"
	"github.com/gomlx/tripwire/pkg/report"
)

// toyModel builds a reference model with 3 activation layers of dimension 4
// and 2 output classes.
func toyModel(t *testing.T) *models.Model {
	backend := graphtest.BuildTestBackend()
	cfg := &models.MLP{Input: 4, OutputDim: 2, HiddenDims: []int{4, 4}}
	model, err := cfg.Build(backend)
	require.NoError(t, err)
	return model
}

// toyDataset is the fixed-point training set from the loss-monotonicity
// check: 4 examples, 2 classes, one batch.
func toyDataset() *data.Synthetic {
	return &data.Synthetic{
		Examples_: 4,
		Classes:   2,
		Dims:      4,
		Noise:     0.05,
		BatchSize: 4,
		Seed:      7,
	}
}

func toyBatch() [][]float32 {
	return [][]float32{
		{0.1, 0.9, 0.2, 0.8},
		{0.7, 0.3, 0.6, 0.4},
	}
}

func newToyTrainer(t *testing.T, model *models.Model) *Trainer {
	predictor, err := NewPredictor(model.NumActivations(), 4, model.NumClasses())
	require.NoError(t, err)
	trainer, err := NewTrainer(model, predictor, NewMomentum(0.01, 0.9), report.NoOp{})
	require.NoError(t, err)
	return trainer
}

func TestPredictorValidation(t *testing.T) {
	_, err := NewPredictor(0, 4, 2)
	assert.Error(t, err)
	_, err = NewPredictor(3, 0, 2)
	assert.Error(t, err)
	_, err = NewPredictor(3, 4, 0)
	assert.Error(t, err)
}

func TestTrainerRejectsLayerMismatch(t *testing.T) {
	model := toyModel(t)
	predictor, err := NewPredictor(model.NumActivations()+1, 4, model.NumClasses())
	require.NoError(t, err)
	_, err = NewTrainer(model, predictor, NewMomentum(0.01, 0.9), nil)
	assert.Error(t, err)
}

// The end-to-end shape scenario: 3 reference layers of dimension 4 for a
// 2-example batch. The consistency loss must equal the mean of the 2
// per-pair squared-error terms (the first layer has no prediction target)
// and the output loss must be non-negative.
func TestApplyModelLossStructure(t *testing.T) {
	model := toyModel(t)
	trainer := newToyTrainer(t, model)
	state, err := trainer.NewState(42)
	require.NoError(t, err)

	batch := tensors.FromValue(toyBatch())
	_, metrics, err := trainer.ApplyModel(state, batch)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, metrics.OutputLoss, 0.0)
	assert.InDelta(t, metrics.Loss, metrics.OutputLoss+metrics.ConsistencyLoss, 1e-5)

	// Recompute the consistency term from the materialized sequences.
	predictor := trainer.predictor
	ctx := model.Context().Reuse()
	seqExec, err := context.NewExec(model.Backend(), ctx,
		func(ctx *context.Context, x *Node) []*Node {
			_, acts := model.ForwardGraph(ctx, x)
			abstractions, predicted, _ := predictor.BuildGraph(ctx, acts)
			return append(abstractions, predicted...)
		})
	require.NoError(t, err)
	outputs, err := seqExec.Exec(batch)
	require.NoError(t, err)
	numLayers := predictor.NumLayers()
	require.Equal(t, 3, numLayers)
	require.Len(t, outputs, 2*numLayers)
	abstractions := outputs[:numLayers]
	predicted := outputs[numLayers:]
	for i := 0; i < numLayers; i++ {
		assert.Equal(t, []int{2, 4}, abstractions[i].Shape().Dimensions)
		assert.Equal(t, []int{2, 4}, predicted[i].Shape().Dimensions)
	}

	pairMean := func(a, p *tensors.Tensor) float64 {
		av := a.Value().([][]float32)
		pv := p.Value().([][]float32)
		var sum float64
		for i := range av {
			for j := range av[i] {
				diff := float64(av[i][j]) - float64(pv[i][j])
				sum += diff * diff
			}
		}
		return sum / float64(len(av)*len(av[0]))
	}
	expected := (pairMean(abstractions[1], predicted[0]) + pairMean(abstractions[2], predicted[1])) / 2
	assert.InDelta(t, expected, metrics.ConsistencyLoss, 1e-5)
}

func TestApplyModelIsPure(t *testing.T) {
	model := toyModel(t)
	trainer := newToyTrainer(t, model)
	state, err := trainer.NewState(42)
	require.NoError(t, err)

	batch := tensors.FromValue(toyBatch())
	_, first, err := trainer.ApplyModel(state, batch)
	require.NoError(t, err)
	_, second, err := trainer.ApplyModel(state, batch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdateModelReplacesState(t *testing.T) {
	model := toyModel(t)
	trainer := newToyTrainer(t, model)
	state, err := trainer.NewState(42)
	require.NoError(t, err)

	batch := tensors.FromValue(toyBatch())
	grads, before, err := trainer.ApplyModel(state, batch)
	require.NoError(t, err)
	next, err := trainer.UpdateModel(state, grads)
	require.NoError(t, err)

	assert.Equal(t, int64(0), state.Step())
	assert.Equal(t, int64(1), next.Step())

	// The update moved the parameters: the same batch now scores a
	// different loss.
	_, after, err := trainer.ApplyModel(next, batch)
	require.NoError(t, err)
	assert.NotEqual(t, before.Loss, after.Loss)
}

func TestTrainEpochLossDecreases(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	model := toyModel(t)
	trainer := newToyTrainer(t, model)
	state, err := trainer.NewState(42)
	require.NoError(t, err)

	ds, err := toyDataset().Build(backend, data.MainSplit)
	require.NoError(t, err)

	var epochLoss []float64
	for epoch := 0; epoch < 5; epoch++ {
		var metrics Metrics
		state, metrics, err = trainer.TrainEpoch(state, ds)
		require.NoError(t, err)
		epochLoss = append(epochLoss, metrics.Loss)
	}
	assert.Greater(t, epochLoss[0], epochLoss[4])
}

func TestTrainAndEvaluate(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	model := toyModel(t)
	trainer := newToyTrainer(t, model)

	ds, err := toyDataset().Build(backend, data.MainSplit)
	require.NoError(t, err)
	heldOut, err := toyDataset().Build(backend, data.HoldoutSplit)
	require.NoError(t, err)

	state, err := trainer.TrainAndEvaluate(ds, heldOut, 3, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Step()) // 1 batch per epoch, 3 epochs

	_, err = trainer.TrainAndEvaluate(ds, heldOut, 0, 42)
	assert.Error(t, err)
}

func TestMomentumMinimizesQuadratic(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	optimizer := NewMomentum(0.1, 0.9)
	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, g *Graph) *Node {
			w := ctx.VariableWithValue("w", []float32{1, -2, 3})
			loss := ReduceAllMean(Square(w.ValueGraph(g)))
			optimizer.UpdateGraph(ctx, g, loss)
			return loss
		})
	require.NoError(t, err)

	var losses []float64
	for step := 0; step < 20; step++ {
		out, err := exec.Exec1()
		require.NoError(t, err)
		losses = append(losses, float64(tensors.ToScalar[float32](out)))
	}
	assert.Greater(t, losses[0], losses[19])
	assert.Less(t, losses[19], 0.1)
}

func TestMomentumClear(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	optimizer := NewMomentum(0.1, 0.9)
	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, g *Graph) *Node {
			w := ctx.VariableWithValue("w", []float32{1})
			loss := ReduceAllMean(Square(w.ValueGraph(g)))
			optimizer.UpdateGraph(ctx, g, loss)
			return loss
		})
	require.NoError(t, err)
	_, err = exec.Exec1()
	require.NoError(t, err)
	require.NoError(t, optimizer.Clear(ctx))
}
