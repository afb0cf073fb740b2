// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"io"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/report"
)

// FitOptions tunes reference-classifier training.
type FitOptions struct {
	NumEpochs    int
	LearningRate float64
	Seed         int64
	Sink         report.Sink
}

// Fit trains the model as a classifier on the dataset, with Adam and sparse
// cross-entropy. This is how the reference models detectors later inspect
// are produced, including deliberately poisoned ones when the dataset
// carries a backdoor.
func Fit(model *Model, ds train.Dataset, opts FitOptions) error {
	if opts.NumEpochs <= 0 {
		return errors.Errorf("training requires a positive number of epochs, got %d", opts.NumEpochs)
	}
	sink := opts.Sink
	if sink == nil {
		sink = report.NoOp{}
	}
	ctx := model.Context()
	ctx.SetRNGStateFromSeed(opts.Seed)
	optimizer := optimizers.Adam().LearningRate(opts.LearningRate).Done()
	exec, err := context.NewExec(model.Backend(), ctx,
		func(ctx *context.Context, x, labels *Node) []*Node {
			logits, _ := model.ForwardGraph(ctx, x)
			loss := ReduceAllMean(losses.SparseCategoricalCrossEntropyLogits([]*Node{labels}, []*Node{logits}))
			optimizer.UpdateGraph(ctx, logits.Graph(), loss)
			hits := Equal(ArgMax(logits, -1), Squeeze(labels, -1))
			accuracy := ReduceAllMean(ConvertDType(hits, dtypes.Float32))
			return []*Node{loss, accuracy}
		})
	if err != nil {
		return errors.Wrap(err, "building classifier training graph")
	}
	step := int64(0)
	for epoch := 1; epoch <= opts.NumEpochs; epoch++ {
		ds.Reset()
		var lossAccum, accuracyAccum []float64
		for {
			_, inputs, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				return errors.Wrap(err, "training classifier")
			}
			outputs, err := exec.Exec(inputs[0], labels[0])
			if err != nil {
				return errors.Wrap(err, "classifier training step")
			}
			step++
			loss := float64(tensors.ToScalar[float32](outputs[0]))
			accuracy := float64(tensors.ToScalar[float32](outputs[1]))
			lossAccum = append(lossAccum, loss)
			accuracyAccum = append(accuracyAccum, accuracy)
			sink.ReportScalar("Training", "loss", loss, step)
			sink.ReportScalar("Training", "accuracy", accuracy, step)
		}
		if len(lossAccum) == 0 {
			return errors.New("training dataset yielded no batches")
		}
		klog.Infof("epoch %3d: train_loss=%.4f, train_accuracy=%.2f%%",
			epoch, stat.Mean(lossAccum, nil), 100*stat.Mean(accuracyAccum, nil))
	}
	return nil
}
