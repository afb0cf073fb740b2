// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package abstraction

import (
	"io"

	"github.com/dustin/go-humanize"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/models"
	"github.com/gomlx/tripwire/pkg/report"
)

// Metrics is the record one training or evaluation step produces.
type Metrics struct {
	Loss            float64
	OutputLoss      float64
	ConsistencyLoss float64
}

// metricsAccum collects per-batch metrics over one epoch. Values are
// appended, never overwritten.
type metricsAccum struct {
	loss, output, consistency []float64
}

func (a *metricsAccum) append(m Metrics) {
	a.loss = append(a.loss, m.Loss)
	a.output = append(a.output, m.OutputLoss)
	a.consistency = append(a.consistency, m.ConsistencyLoss)
}

func (a *metricsAccum) empty() bool { return len(a.loss) == 0 }

func (a *metricsAccum) means() Metrics {
	return Metrics{
		Loss:            stat.Mean(a.loss, nil),
		OutputLoss:      stat.Mean(a.output, nil),
		ConsistencyLoss: stat.Mean(a.consistency, nil),
	}
}

// TrainState pairs the parameter store with the number of optimizer steps
// taken so far. Every update returns a new TrainState rather than mutating
// its input; the step counter increases monotonically. The parameter store
// itself is shared between successive states, so a stale state's counter is
// valid but its parameters reflect the latest update.
type TrainState struct {
	ctx  *context.Context
	step int64
}

// Step is the number of optimizer updates applied so far.
func (s TrainState) Step() int64 { return s.step }

// Context holding the predictor's (and frozen reference model's) parameters.
func (s TrainState) Context() *context.Context { return s.ctx }

// Trainer fits a Predictor to a frozen reference model with the two-phase
// step the pipeline is built around: ApplyModel computes gradients and
// metrics as a pure function of state and batch, UpdateModel applies them.
// Both compile once per batch shape and are reused.
type Trainer struct {
	model     *models.Model
	predictor *Predictor
	optimizer *Momentum
	sink      report.Sink

	applyExec  *context.Exec
	updateExec *context.Exec
}

// NewTrainer freezes the reference model's parameters and builds the
// apply/update executors over the model's context. The predictor's variables
// are created lazily on the first batch.
func NewTrainer(model *models.Model, predictor *Predictor, optimizer *Momentum, sink report.Sink) (*Trainer, error) {
	if model.NumActivations() != predictor.NumLayers() {
		return nil, errors.Errorf("model produces %d activations but the predictor was built for %d layers",
			model.NumActivations(), predictor.NumLayers())
	}
	if sink == nil {
		sink = report.NoOp{}
	}
	model.Freeze()
	t := &Trainer{
		model:     model,
		predictor: predictor,
		optimizer: optimizer,
		sink:      sink,
	}
	ctx := model.Context()
	var err error
	t.applyExec, err = context.NewExec(model.Backend(), ctx,
		func(ctx *context.Context, x *Node) []*Node {
			logits, acts := model.ForwardGraph(ctx, x)
			loss, outputLoss, consistencyLoss := predictor.LossGraph(ctx, acts, logits)
			grads := ctx.BuildTrainableVariablesGradientsGraph(loss)
			return append([]*Node{loss, outputLoss, consistencyLoss}, grads...)
		})
	if err != nil {
		return nil, errors.Wrap(err, "building abstraction apply graph")
	}
	t.updateExec, err = context.NewExec(model.Backend(), ctx,
		func(ctx *context.Context, grads []*Node) *Node {
			optimizer.UpdateGraphWithGradients(ctx, grads, dtypes.Float32)
			return Scalar(grads[0].Graph(), dtypes.Float32, 0)
		})
	if err != nil {
		return nil, errors.Wrap(err, "building abstraction update graph")
	}
	return t, nil
}

// NewState initializes a fresh TrainState: the context RNG is seeded for
// parameter initialization and any previous optimizer state is cleared.
func (t *Trainer) NewState(seed int64) (TrainState, error) {
	ctx := t.model.Context()
	ctx.SetRNGStateFromSeed(seed)
	if err := t.optimizer.Clear(ctx); err != nil {
		return TrainState{}, errors.Wrap(err, "clearing optimizer state")
	}
	return TrainState{ctx: ctx, step: 0}, nil
}

// ApplyModel computes the gradients and metrics for a single batch. It is
// pure with respect to the state: no variable is modified.
func (t *Trainer) ApplyModel(state TrainState, inputs *tensors.Tensor) (grads []*tensors.Tensor, metrics Metrics, err error) {
	outputs, err := t.applyExec.Exec(inputs)
	if err != nil {
		return nil, Metrics{}, errors.Wrap(err, "abstraction apply step")
	}
	metrics = Metrics{
		Loss:            float64(tensors.ToScalar[float32](outputs[0])),
		OutputLoss:      float64(tensors.ToScalar[float32](outputs[1])),
		ConsistencyLoss: float64(tensors.ToScalar[float32](outputs[2])),
	}
	return outputs[3:], metrics, nil
}

// UpdateModel applies one optimizer step and returns the successor
// TrainState with an incremented step counter. The input state is not
// mutated, but the parameter store both states share is.
func (t *Trainer) UpdateModel(state TrainState, grads []*tensors.Tensor) (TrainState, error) {
	args := make([]any, len(grads))
	for i, grad := range grads {
		args[i] = grad
	}
	if _, err := t.updateExec.Exec(args...); err != nil {
		return state, errors.Wrap(err, "abstraction update step")
	}
	return TrainState{ctx: state.ctx, step: state.step + 1}, nil
}

// TrainEpoch iterates the training dataset exactly once in loader order,
// applying and updating per batch. Each batch's metrics are appended to the
// epoch collection and reported to the sink keyed by the global step. It
// returns the final state and the epoch's metric means.
func (t *Trainer) TrainEpoch(state TrainState, ds train.Dataset) (TrainState, Metrics, error) {
	ds.Reset()
	var accum metricsAccum
	for {
		_, inputs, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return state, Metrics{}, errors.Wrap(err, "training epoch")
		}
		grads, metrics, err := t.ApplyModel(state, inputs[0])
		if err != nil {
			return state, Metrics{}, err
		}
		state, err = t.UpdateModel(state, grads)
		if err != nil {
			return state, Metrics{}, err
		}
		accum.append(metrics)
		t.reportMetrics("Training", metrics, state.Step())
	}
	if accum.empty() {
		return state, Metrics{}, errors.New("training dataset yielded no batches")
	}
	return state, accum.means(), nil
}

// EvalBatch computes the loss metrics of one batch drawn from the given
// dataset, without any parameter update.
func (t *Trainer) EvalBatch(state TrainState, ds train.Dataset) (Metrics, error) {
	ds.Reset()
	_, inputs, _, err := ds.Yield()
	if err != nil {
		return Metrics{}, errors.Wrap(err, "drawing evaluation batch")
	}
	_, metrics, err := t.ApplyModel(state, inputs[0])
	return metrics, err
}

// TrainAndEvaluate initializes a fresh state from the seed and runs the
// configured number of epochs. After each epoch one batch from the held-out
// dataset is evaluated with the same loss, without updates. The epoch count
// is fixed; there is no early stopping.
func (t *Trainer) TrainAndEvaluate(trainDS, heldOut train.Dataset, numEpochs int, seed int64) (TrainState, error) {
	if numEpochs <= 0 {
		return TrainState{}, errors.Errorf("training requires a positive number of epochs, got %d", numEpochs)
	}
	if heldOut == nil {
		heldOut = trainDS
	}
	state, err := t.NewState(seed)
	if err != nil {
		return state, err
	}
	for epoch := 1; epoch <= numEpochs; epoch++ {
		t.sink.ReportScalar("epoch", "epoch", float64(epoch), state.Step())
		var trainMetrics Metrics
		state, trainMetrics, err = t.TrainEpoch(state, trainDS)
		if err != nil {
			return state, err
		}
		testMetrics, err := t.EvalBatch(state, heldOut)
		if err != nil {
			return state, err
		}
		t.reportMetrics("Test", testMetrics, state.Step())
		klog.Infof("epoch %3d: train_loss=%.4f (output=%.4f, consistency=%.4f), test_loss=%.4f",
			epoch, trainMetrics.Loss, trainMetrics.OutputLoss, trainMetrics.ConsistencyLoss, testMetrics.Loss)
	}
	klog.V(1).Infof("Trained abstraction predictor, context now holds %s parameters.",
		humanize.Comma(int64(state.Context().NumParameters())))
	return state, nil
}

func (t *Trainer) reportMetrics(title string, m Metrics, step int64) {
	t.sink.ReportScalar(title, "loss", m.Loss, step)
	t.sink.ReportScalar(title, "output_loss", m.OutputLoss, step)
	t.sink.ReportScalar(title, "consistency_loss", m.ConsistencyLoss, step)
}
