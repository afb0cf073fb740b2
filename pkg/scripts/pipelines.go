// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scripts

import (
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/data"
	"github.com/gomlx/tripwire/pkg/detectors"
	"github.com/gomlx/tripwire/pkg/models"
	"github.com/gomlx/tripwire/pkg/persist"
	"github.com/gomlx/tripwire/pkg/report"
	"github.com/gomlx/tripwire/pkg/tasks"
)

// TrainModelConfig configures the train-model stage.
type TrainModelConfig struct {
	Model        config.Wrapper[models.Config] `yaml:"model"`
	Dataset      config.Wrapper[data.Config]   `yaml:"dataset"`
	NumEpochs    int                           `yaml:"num_epochs"`
	LearningRate float64                       `yaml:"learning_rate"`
}

// NewTrainModelConfig returns the stage defaults: an MLP on clean synthetic
// data.
func NewTrainModelConfig() *TrainModelConfig {
	return &TrainModelConfig{
		Model:        config.Wrap[models.Config](models.NewMLP()),
		Dataset:      config.Wrap[data.Config](data.NewSynthetic()),
		NumEpochs:    5,
		LearningRate: 1e-3,
	}
}

// TrainModel trains a reference classifier and persists its config and
// weights under the run's output directory.
func TrainModel(backend backends.Backend, rc RunContext, cfg *TrainModelConfig, sink report.Sink) error {
	if cfg.Model.IsNil() || cfg.Dataset.IsNil() {
		return errors.New("train-model requires both a model and a dataset config")
	}
	if err := rc.SaveConfig(cfg); err != nil {
		return err
	}
	model, err := cfg.Model.Value.Build(backend)
	if err != nil {
		return err
	}
	ds, err := cfg.Dataset.Value.Build(backend, data.MainSplit)
	if err != nil {
		return err
	}
	klog.Infof("Run %s: training %s model for %d epochs.", rc.ID, model.Name(), cfg.NumEpochs)
	err = models.Fit(model, ds, models.FitOptions{
		NumEpochs:    cfg.NumEpochs,
		LearningRate: cfg.LearningRate,
		Seed:         rc.Seed,
		Sink:         sink,
	})
	if err != nil {
		return err
	}
	out, err := rc.Path("saving model weights")
	if err != nil {
		return err
	}
	return persist.Save(model.Context(), filepath.Join(out, models.Kind))
}

// TaskConfig is the shared model+datasets part of detector stages.
type TaskConfig struct {
	Model    config.Wrapper[models.Config] `yaml:"model"`
	Trusted  config.Wrapper[data.Config]   `yaml:"trusted_data"`
	TestData config.Wrapper[data.Config]   `yaml:"test_data"`
}

// Build assembles the task from the three components.
func (c *TaskConfig) Build(backend backends.Backend) (*tasks.Task, error) {
	if c.Model.IsNil() || c.Trusted.IsNil() || c.TestData.IsNil() {
		return nil, errors.New("a task requires model, trusted_data and test_data configs")
	}
	return tasks.Build(backend, c.Model.Value, c.Trusted.Value, c.TestData.Value)
}

// TrainDetectorConfig configures the train-detector stage.
type TrainDetectorConfig struct {
	Task     TaskConfig                       `yaml:"task"`
	Detector config.Wrapper[detectors.Config] `yaml:"detector"`
}

// NewTrainDetectorConfig returns the stage defaults; the task components
// have no sensible defaults and must come from file or flags.
func NewTrainDetectorConfig() *TrainDetectorConfig {
	return &TrainDetectorConfig{}
}

// TrainDetector builds the task, trains the detector on its trusted data,
// evaluates it on the test data and persists config, weights and the
// evaluation summary under the run's output directory.
func TrainDetector(backend backends.Backend, rc RunContext, cfg *TrainDetectorConfig, sink report.Sink) (*detectors.Scores, error) {
	if cfg.Detector.IsNil() {
		return nil, errors.New("train-detector requires a detector config")
	}
	if err := rc.SaveConfig(cfg); err != nil {
		return nil, err
	}
	task, err := cfg.Task.Build(backend)
	if err != nil {
		return nil, err
	}
	detector, err := cfg.Detector.Value.Build(backend)
	if err != nil {
		return nil, err
	}
	detector.SetModel(task.Model)
	klog.Infof("Run %s: training detector on trusted data.", rc.ID)
	scores, err := detector.Eval(task.Trusted, task.Test, detectors.EvalOptions{
		SavePath:    rc.OutputDir,
		ProgressBar: !rc.Debug,
		HeldOut:     task.HeldOut,
		Sink:        sink,
	})
	if err != nil {
		return nil, err
	}
	if saver, ok := detector.(detectors.Saver); ok {
		out, err := rc.Path("saving detector weights")
		if err != nil {
			return nil, err
		}
		if err := saver.Save(filepath.Join(out, detectors.Kind)); err != nil {
			return nil, err
		}
	}
	klog.Infof("Run %s: detector AUROC %.4f over %d test examples.", rc.ID, scores.AUROC(), scores.Len())
	return scores, nil
}

// EvalDetectorConfig configures the eval-detector stage. The detector is
// typically a "stored" variant pointing at a train-detector run.
type EvalDetectorConfig struct {
	Task     TaskConfig                       `yaml:"task"`
	Detector config.Wrapper[detectors.Config] `yaml:"detector"`
}

// NewEvalDetectorConfig returns the stage defaults.
func NewEvalDetectorConfig() *EvalDetectorConfig {
	return &EvalDetectorConfig{}
}

// EvalDetector builds the task and detector, scores the test data, and
// writes the evaluation summary to the run's output directory when set.
func EvalDetector(backend backends.Backend, rc RunContext, cfg *EvalDetectorConfig, sink report.Sink) (*detectors.Scores, error) {
	if cfg.Detector.IsNil() {
		return nil, errors.New("eval-detector requires a detector config")
	}
	if err := rc.SaveConfig(cfg); err != nil {
		return nil, err
	}
	task, err := cfg.Task.Build(backend)
	if err != nil {
		return nil, err
	}
	detector, err := cfg.Detector.Value.Build(backend)
	if err != nil {
		return nil, err
	}
	detector.SetModel(task.Model)
	scores, err := detector.Eval(task.Trusted, task.Test, detectors.EvalOptions{
		SavePath:    rc.OutputDir,
		ProgressBar: !rc.Debug,
		HeldOut:     task.HeldOut,
		Sink:        sink,
	})
	if err != nil {
		return nil, err
	}
	klog.Infof("Run %s: detector AUROC %.4f over %d test examples.", rc.ID, scores.AUROC(), scores.Len())
	return scores, nil
}
