// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAUROCPerfectSeparation(t *testing.T) {
	scores := &Scores{}
	for _, v := range []float64{0.1, 0.2, 0.3} {
		scores.Append(v, false)
	}
	for _, v := range []float64{0.8, 0.9, 1.0} {
		scores.Append(v, true)
	}
	assert.InDelta(t, 1.0, scores.AUROC(), 1e-9)
}

func TestAUROCInverted(t *testing.T) {
	scores := &Scores{}
	for _, v := range []float64{0.8, 0.9, 1.0} {
		scores.Append(v, false)
	}
	for _, v := range []float64{0.1, 0.2, 0.3} {
		scores.Append(v, true)
	}
	assert.InDelta(t, 0.0, scores.AUROC(), 1e-9)
}

func TestAUROCChance(t *testing.T) {
	scores := &Scores{}
	scores.Append(0.3, false)
	scores.Append(0.7, false)
	scores.Append(0.3, true)
	scores.Append(0.7, true)
	assert.InDelta(t, 0.5, scores.AUROC(), 1e-9)
}

func TestSummarize(t *testing.T) {
	scores := &Scores{}
	scores.Append(1, false)
	scores.Append(3, true)
	summary := scores.Summarize()
	assert.Equal(t, 2, summary.NumExamples)
	assert.Equal(t, 1, summary.NumAnomalous)
	assert.InDelta(t, 2.0, summary.ScoreMean, 1e-9)
}

func TestSaveWritesSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "eval")
	scores := &Scores{}
	scores.Append(0.1, false)
	scores.Append(0.9, true)
	require.NoError(t, scores.Save(dir))

	data, err := os.ReadFile(filepath.Join(dir, EvalFileName))
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, yaml.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.NumExamples)
	assert.InDelta(t, 1.0, summary.AUROC, 1e-9)
	assert.Len(t, summary.Values, 2)
}
