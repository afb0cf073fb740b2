// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// EvalFileName is the file an evaluation summary is saved as.
const EvalFileName = "eval.yaml"

// Scores holds one anomaly score per test example, aligned with the
// ground-truth anomaly flags the dataset carried.
type Scores struct {
	Values    []float64
	Anomalous []bool
}

// Append adds one example's score.
func (s *Scores) Append(value float64, anomalous bool) {
	s.Values = append(s.Values, value)
	s.Anomalous = append(s.Anomalous, anomalous)
}

// Len returns the number of scored examples.
func (s *Scores) Len() int { return len(s.Values) }

// AUROC computes the area under the ROC curve of the scores against the
// anomaly flags. Higher scores are expected for anomalous examples; a perfect
// detector yields 1.0, chance 0.5.
func (s *Scores) AUROC() float64 {
	n := s.Len()
	values := append([]float64(nil), s.Values...)
	classes := append([]bool(nil), s.Anomalous...)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })
	sortedValues := make([]float64, n)
	sortedClasses := make([]bool, n)
	for i, idx := range order {
		sortedValues[i] = values[idx]
		sortedClasses[i] = classes[idx]
	}
	tpr, fpr, _ := stat.ROC(nil, sortedValues, sortedClasses, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// Summary are the aggregate statistics persisted after an evaluation.
type Summary struct {
	AUROC        float64   `yaml:"auroc"`
	NumExamples  int       `yaml:"num_examples"`
	NumAnomalous int       `yaml:"num_anomalous"`
	ScoreMean    float64   `yaml:"score_mean"`
	ScoreStdDev  float64   `yaml:"score_std_dev"`
	Values       []float64 `yaml:"scores,flow"`
}

// Summarize computes the aggregate statistics of the scores.
func (s *Scores) Summarize() *Summary {
	numAnomalous := 0
	for _, a := range s.Anomalous {
		if a {
			numAnomalous++
		}
	}
	return &Summary{
		AUROC:        s.AUROC(),
		NumExamples:  s.Len(),
		NumAnomalous: numAnomalous,
		ScoreMean:    stat.Mean(s.Values, nil),
		ScoreStdDev:  stat.StdDev(s.Values, nil),
		Values:       s.Values,
	}
}

// Save writes the evaluation summary to `<dir>/eval.yaml`, creating the
// directory if needed.
func (s *Scores) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create evaluation directory %q", dir)
	}
	encoded, err := yaml.Marshal(s.Summarize())
	if err != nil {
		return errors.Wrap(err, "cannot encode evaluation summary")
	}
	path := filepath.Join(dir, EvalFileName)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return errors.Wrapf(err, "cannot write evaluation summary to %q", path)
	}
	return nil
}
