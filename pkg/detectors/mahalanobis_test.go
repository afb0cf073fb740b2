// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/data"
	"github.com/gomlx/tripwire/pkg/models"
)

// A single tight cluster: the trusted variance is dominated by the small
// generation noise, so a clamped trigger feature stands far out.
func trustedDataset() *data.Synthetic {
	return &data.Synthetic{
		Examples_: 64,
		Classes:   1,
		Dims:      6,
		Noise:     0.02,
		BatchSize: 16,
		Seed:      3,
	}
}

func poisonedDataset() *data.BackdoorData {
	return &data.BackdoorData{
		Original: config.Wrap[data.Config](trustedDataset()),
		Backdoor: config.Wrap[data.Transform](&data.Corner{TargetClass: 0, Size: 3}),
		Fraction: 0.5,
		Seed:     11,
	}
}

func boundMahalanobis(t *testing.T) (Detector, *models.Model) {
	backend := graphtest.BuildTestBackend()
	detector, err := NewMahalanobis().Build(backend)
	require.NoError(t, err)
	modelCfg := &models.MLP{Input: 6, OutputDim: 2, HiddenDims: []int{8}}
	model, err := modelCfg.Build(backend)
	require.NoError(t, err)
	detector.SetModel(model)
	return detector, model
}

func TestMahalanobisRequiresModel(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	detector, err := NewMahalanobis().Build(backend)
	require.NoError(t, err)
	_, err = detector.Eval(nil, nil, EvalOptions{})
	assert.Error(t, err)
}

func TestMahalanobisRequiresTrustedData(t *testing.T) {
	detector, _ := boundMahalanobis(t)
	_, err := detector.Eval(nil, nil, EvalOptions{})
	assert.Error(t, err)
}

func TestMahalanobisSeparatesCornerTrigger(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	detector, _ := boundMahalanobis(t)

	trusted, err := trustedDataset().Build(backend, data.MainSplit)
	require.NoError(t, err)
	test, err := poisonedDataset().Build(backend, data.MainSplit)
	require.NoError(t, err)

	scores, err := detector.Eval(trusted, test, EvalOptions{})
	require.NoError(t, err)
	assert.Equal(t, 64, scores.Len())
	// The corner trigger clamps features far outside the trusted clusters'
	// tight variance, so the statistics should separate it well.
	assert.Greater(t, scores.AUROC(), 0.9)
}

func TestMahalanobisCleanScoresAreModest(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	detector, _ := boundMahalanobis(t)

	trusted, err := trustedDataset().Build(backend, data.MainSplit)
	require.NoError(t, err)
	holdout, err := trustedDataset().Build(backend, data.HoldoutSplit)
	require.NoError(t, err)

	scores, err := detector.Eval(trusted, holdout, EvalOptions{})
	require.NoError(t, err)
	for _, anomalous := range scores.Anomalous {
		assert.False(t, anomalous)
	}
}

func TestMahalanobisSaveBeforeFit(t *testing.T) {
	detector, _ := boundMahalanobis(t)
	saver, ok := detector.(Saver)
	require.True(t, ok)
	assert.Error(t, saver.Save(t.TempDir()))
}
