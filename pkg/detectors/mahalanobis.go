// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"fmt"
	"io"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/models"
	"github.com/gomlx/tripwire/pkg/persist"
)

// statsScope is the context scope activation statistics are stored under.
const statsScope = "/detector/mahalanobis"

// Mahalanobis configures the parameter-free activation-statistics detector:
// it fits a diagonal Gaussian (per-feature mean and variance) to each layer's
// activations over trusted data, and scores a test example by its mean
// squared deviation in units of those variances, averaged across layers. No
// gradient training is involved.
type Mahalanobis struct {
	// Epsilon is the variance floor, guarding features that are constant on
	// the trusted data.
	Epsilon float64 `yaml:"epsilon"`
}

// NewMahalanobis returns a Mahalanobis config with default regularization.
func NewMahalanobis() *Mahalanobis { return &Mahalanobis{Epsilon: 1e-6} }

// ConfigTags implements config.Node.
func (c *Mahalanobis) ConfigTags() (variant, kind string) { return "mahalanobis", Kind }

// Build implements Config.
func (c *Mahalanobis) Build(backend backends.Backend) (Detector, error) {
	epsilon := c.Epsilon
	if epsilon <= 0 {
		epsilon = 1e-6
	}
	return &mahalanobis{
		epsilon: epsilon,
		backend: backend,
		ctx:     context.New(),
	}, nil
}

type mahalanobis struct {
	epsilon float64
	backend backends.Backend
	ctx     *context.Context
	model   *models.Model

	// restored is set once a checkpoint loader is attached; the statistics
	// variables then materialize from disk instead of from fitting.
	restored bool

	means, variances [][]float64
}

// SetModel implements Detector.
func (d *mahalanobis) SetModel(model *models.Model) { d.model = model }

// LoadWeights implements Detector. The statistics themselves materialize
// lazily, once activation shapes are known.
func (d *mahalanobis) LoadWeights(path string) error {
	if err := persist.Load(d.ctx, path); err != nil {
		return err
	}
	d.restored = true
	return nil
}

// Eval implements Detector.
func (d *mahalanobis) Eval(trusted, test train.Dataset, opts EvalOptions) (*Scores, error) {
	if d.model == nil {
		return nil, errors.New("mahalanobis detector is not bound to a model, call SetModel first")
	}
	if d.means == nil {
		var err error
		if d.restored {
			err = d.materializeStats()
		} else {
			err = d.fit(trusted)
		}
		if err != nil {
			return nil, err
		}
	}
	return ScoreDataset(test, d.scoreBatch, opts)
}

// fit accumulates per-layer, per-feature mean and variance over the trusted
// dataset and publishes them as context variables, so Save persists them like
// any other learned parameters.
func (d *mahalanobis) fit(trusted train.Dataset) error {
	if trusted == nil {
		return errors.New("mahalanobis detector requires a trusted dataset to fit on")
	}
	numLayers := d.model.NumActivations()
	sums := make([][]float64, numLayers)
	sumSquares := make([][]float64, numLayers)
	count := 0
	trusted.Reset()
	for {
		_, inputs, _, err := trusted.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "fitting activation statistics")
		}
		_, acts, err := d.model.Forward(inputs[0])
		if err != nil {
			return err
		}
		for layer, act := range acts {
			rows := act.Value().([][]float32)
			if sums[layer] == nil {
				sums[layer] = make([]float64, len(rows[0]))
				sumSquares[layer] = make([]float64, len(rows[0]))
			}
			for _, row := range rows {
				for j, v := range row {
					sums[layer][j] += float64(v)
					sumSquares[layer][j] += float64(v) * float64(v)
				}
			}
		}
		rows := acts[0].Value().([][]float32)
		count += len(rows)
	}
	if count == 0 {
		return errors.New("trusted dataset yielded no examples to fit on")
	}
	d.means = make([][]float64, numLayers)
	d.variances = make([][]float64, numLayers)
	scope := d.ctx.Checked(false).InAbsPath(statsScope)
	for layer := 0; layer < numLayers; layer++ {
		dim := len(sums[layer])
		mean := make([]float64, dim)
		variance := make([]float64, dim)
		mean32 := make([]float32, dim)
		variance32 := make([]float32, dim)
		for j := 0; j < dim; j++ {
			mean[j] = sums[layer][j] / float64(count)
			variance[j] = sumSquares[layer][j]/float64(count) - mean[j]*mean[j]
			if variance[j] < d.epsilon {
				variance[j] = d.epsilon
			}
			mean32[j] = float32(mean[j])
			variance32[j] = float32(variance[j])
		}
		d.means[layer] = mean
		d.variances[layer] = variance
		scope.VariableWithValue(fmt.Sprintf("mean_%d", layer),
			tensors.FromFlatDataAndDimensions(mean32, dim)).SetTrainable(false)
		scope.VariableWithValue(fmt.Sprintf("variance_%d", layer),
			tensors.FromFlatDataAndDimensions(variance32, dim)).SetTrainable(false)
	}
	klog.V(1).Infof("Fitted activation statistics on %d trusted examples across %d layers.", count, numLayers)
	return nil
}

// materializeStats creates the statistics variables so the attached
// checkpoint loader fills them, then mirrors the values for scoring. A probe
// forward pass supplies the per-layer dimensions.
func (d *mahalanobis) materializeStats() error {
	numLayers := d.model.NumActivations()
	probe := make([][]float32, 1)
	probe[0] = make([]float32, d.model.InputDim())
	_, acts, err := d.model.Forward(probe)
	if err != nil {
		return err
	}
	d.means = make([][]float64, numLayers)
	d.variances = make([][]float64, numLayers)
	scope := d.ctx.Checked(false).InAbsPath(statsScope)
	for layer := 0; layer < numLayers; layer++ {
		dim := acts[layer].Shape().Dimensions[1]
		shape := shapes.Make(dtypes.Float32, dim)
		meanVar := scope.VariableWithShape(fmt.Sprintf("mean_%d", layer), shape)
		varianceVar := scope.VariableWithShape(fmt.Sprintf("variance_%d", layer), shape)
		meanTensor, err := meanVar.Value()
		if err != nil {
			return err
		}
		varianceTensor, err := varianceVar.Value()
		if err != nil {
			return err
		}
		d.means[layer] = toFloat64(meanTensor.Value().([]float32))
		d.variances[layer] = toFloat64(varianceTensor.Value().([]float32))
		for j, v := range d.variances[layer] {
			if v < d.epsilon {
				d.variances[layer][j] = d.epsilon
			}
		}
	}
	return nil
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// scoreBatch computes the per-example anomaly score: the squared deviation
// from the trusted mean in units of the trusted variance, averaged over
// features and then over layers.
func (d *mahalanobis) scoreBatch(inputs *tensors.Tensor) ([]float64, error) {
	_, acts, err := d.model.Forward(inputs)
	if err != nil {
		return nil, err
	}
	batchSize := acts[0].Shape().Dimensions[0]
	scores := make([]float64, batchSize)
	for layer, act := range acts {
		rows := act.Value().([][]float32)
		mean, variance := d.means[layer], d.variances[layer]
		for i, row := range rows {
			var total float64
			for j, v := range row {
				diff := float64(v) - mean[j]
				total += diff * diff / variance[j]
			}
			scores[i] += total / float64(len(row))
		}
	}
	for i := range scores {
		scores[i] /= float64(len(acts))
	}
	return scores, nil
}

// Save persists the fitted statistics under dir.
func (d *mahalanobis) Save(dir string) error {
	if d.means == nil {
		return errors.New("mahalanobis detector has no fitted statistics to save")
	}
	return persist.Save(d.ctx, dir)
}
