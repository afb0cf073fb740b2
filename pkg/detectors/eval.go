// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// BatchScorer turns one batch of inputs into per-example anomaly scores.
type BatchScorer func(inputs *tensors.Tensor) ([]float64, error)

// ScoreDataset drives one pass over the test dataset, collecting scores and
// the ground-truth anomaly flags carried as the second label tensor, then
// persists the summary when the options configure a save path. It is the
// shared scoring loop of all detector variants.
func ScoreDataset(test train.Dataset, score BatchScorer, opts EvalOptions) (*Scores, error) {
	var bar *progressbar.ProgressBar
	if opts.ProgressBar {
		bar = progressbar.Default(-1, "scoring")
	}
	test.Reset()
	scores := &Scores{}
	for {
		_, inputs, labels, err := test.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "scoring dataset")
		}
		if len(inputs) < 1 || len(labels) < 2 {
			return nil, errors.Errorf("scoring requires batches of (inputs, class labels, anomaly flags), got %d inputs and %d labels",
				len(inputs), len(labels))
		}
		batchScores, err := score(inputs[0])
		if err != nil {
			return nil, err
		}
		flags := labels[1].Value().([][]float32)
		if len(batchScores) != len(flags) {
			return nil, errors.Errorf("scorer returned %d scores for a batch of %d examples",
				len(batchScores), len(flags))
		}
		for i, value := range batchScores {
			scores.Append(value, flags[i][0] != 0)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if scores.Len() == 0 {
		return nil, errors.New("test dataset yielded no examples to score")
	}
	if opts.SavePath != "" {
		if err := scores.Save(opts.SavePath); err != nil {
			return nil, err
		}
	}
	return scores, nil
}
