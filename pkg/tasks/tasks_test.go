// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/data"
	"github.com/gomlx/tripwire/pkg/models"
)

func testModel() *models.MLP {
	return &models.MLP{Input: 8, OutputDim: 4, HiddenDims: []int{8}}
}

func testDataset() *data.Synthetic {
	return &data.Synthetic{
		Examples_: 20,
		Classes:   4,
		Dims:      8,
		Noise:     0.05,
		BatchSize: 5,
		Seed:      1,
	}
}

func TestBuild(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	task, err := Build(backend, testModel(), testDataset(), testDataset())
	require.NoError(t, err)
	assert.NotNil(t, task.Model)
	assert.NotNil(t, task.Trusted)
	assert.NotNil(t, task.HeldOut)
	assert.NotNil(t, task.Test)
}

func TestBuildClassMismatch(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	badModel := testModel()
	badModel.OutputDim = 7
	_, err := Build(backend, badModel, testDataset(), testDataset())
	var mismatch *config.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "num_classes", mismatch.Field)
}

func TestBuildInputDimMismatch(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	badTest := testDataset()
	badTest.Dims = 10
	_, err := Build(backend, testModel(), testDataset(), badTest)
	var mismatch *config.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "input_dim", mismatch.Field)
	assert.Equal(t, "test", mismatch.DatasetName)
}
