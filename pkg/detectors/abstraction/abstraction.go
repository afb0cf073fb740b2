// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package abstraction

import (
	"os"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/detectors"
	"github.com/gomlx/tripwire/pkg/models"
	"github.com/gomlx/tripwire/pkg/persist"
)

// Config is the "abstraction" detector variant: it fits a Predictor to the
// bound model's activations on trusted data and scores test examples by
// their per-example composite loss.
type Config struct {
	AbstractDim  int     `yaml:"abstract_dim"`
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`
	NumEpochs    int     `yaml:"num_epochs"`
	Seed         int64   `yaml:"seed"`
}

// New returns a Config with the default hyperparameters.
func New() *Config {
	return &Config{
		AbstractDim:  256,
		LearningRate: 0.1,
		Momentum:     0.9,
		NumEpochs:    10,
		Seed:         0,
	}
}

// ConfigTags implements config.Node.
func (c *Config) ConfigTags() (variant, kind string) { return "abstraction", detectors.Kind }

// Build implements detectors.Config.
func (c *Config) Build(backend backends.Backend) (detectors.Detector, error) {
	if c.AbstractDim <= 0 {
		return nil, errors.Errorf("abstraction detector requires a positive abstract dim, got %d", c.AbstractDim)
	}
	if c.NumEpochs <= 0 {
		return nil, errors.Errorf("abstraction detector requires a positive epoch count, got %d", c.NumEpochs)
	}
	return &detector{cfg: *c, backend: backend}, nil
}

type detector struct {
	cfg     Config
	backend backends.Backend
	model   *models.Model

	trained bool
	// pendingWeights is the checkpoint directory to restore from, applied
	// once the model is bound.
	pendingWeights string

	scoreExec *context.Exec
}

// SetModel implements detectors.Detector.
func (d *detector) SetModel(model *models.Model) { d.model = model }

// LoadWeights implements detectors.Detector. The restore is deferred until a
// model is bound, since the predictor's parameters live in the model's
// context; absence is reported eagerly so callers can treat it as
// recoverable.
func (d *detector) LoadWeights(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(persist.ErrNotFound, "no detector weights at %q", path)
		}
		return errors.Wrapf(err, "cannot access detector weights at %q", path)
	}
	d.pendingWeights = path
	return nil
}

// Eval implements detectors.Detector: it trains the predictor on the trusted
// dataset (unless weights were restored), scores the test dataset with the
// per-example loss, and persists the summary when a save path is set. The
// bound model's parameters are frozen before any update and never change.
func (d *detector) Eval(trusted, test train.Dataset, opts detectors.EvalOptions) (*detectors.Scores, error) {
	if d.model == nil {
		return nil, errors.New("abstraction detector is not bound to a model, call SetModel first")
	}
	if d.pendingWeights != "" {
		d.model.Freeze()
		if err := persist.Load(d.model.Context(), d.pendingWeights); err != nil {
			return nil, err
		}
		d.pendingWeights = ""
		d.trained = true
	}
	if !d.trained {
		if trusted == nil {
			return nil, errors.New("abstraction detector requires a trusted dataset to train on")
		}
		if err := d.train(trusted, opts); err != nil {
			return nil, err
		}
	}
	if err := d.buildScoreExec(); err != nil {
		return nil, err
	}
	return detectors.ScoreDataset(test, d.scoreBatch, opts)
}

func (d *detector) train(trusted train.Dataset, opts detectors.EvalOptions) error {
	predictor, err := NewPredictor(d.model.NumActivations(), d.cfg.AbstractDim, d.model.NumClasses())
	if err != nil {
		return err
	}
	optimizer := NewMomentum(d.cfg.LearningRate, d.cfg.Momentum)
	trainer, err := NewTrainer(d.model, predictor, optimizer, opts.Sink)
	if err != nil {
		return err
	}
	if _, err := trainer.TrainAndEvaluate(trusted, opts.HeldOut, d.cfg.NumEpochs, d.cfg.Seed); err != nil {
		return err
	}
	d.trained = true
	return nil
}

// buildScoreExec compiles the per-example scoring graph: reference forward
// pass plus the predictor's un-reduced composite loss.
func (d *detector) buildScoreExec() error {
	if d.scoreExec != nil {
		return nil
	}
	predictor, err := NewPredictor(d.model.NumActivations(), d.cfg.AbstractDim, d.model.NumClasses())
	if err != nil {
		return err
	}
	model := d.model
	d.scoreExec, err = context.NewExec(d.backend, model.Context(),
		func(ctx *context.Context, x *Node) *Node {
			logits, acts := model.ForwardGraph(ctx, x)
			return predictor.ScoreGraph(ctx, acts, logits)
		})
	if err != nil {
		return errors.Wrap(err, "building abstraction scoring graph")
	}
	return nil
}

func (d *detector) scoreBatch(inputs *tensors.Tensor) ([]float64, error) {
	scored, err := d.scoreExec.Exec1(inputs)
	if err != nil {
		return nil, errors.Wrap(err, "abstraction scoring step")
	}
	values := scored.Value().([]float32)
	scores := make([]float64, len(values))
	for i, v := range values {
		scores[i] = float64(v)
	}
	return scores, nil
}

// Save implements detectors.Saver: the predictor's parameters (together with
// the frozen reference parameters sharing its context) are checkpointed
// under dir.
func (d *detector) Save(dir string) error {
	if !d.trained {
		return errors.New("abstraction detector has not been trained, nothing to save")
	}
	return persist.Save(d.model.Context(), dir)
}

func init() {
	config.Register(detectors.Kind, map[string]func() config.Node{
		"abstraction": func() config.Node { return New() },
	})
}
