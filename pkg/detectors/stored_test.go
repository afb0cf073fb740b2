// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/tripwire/pkg/config"
)

func TestStoredBuildWithoutWeights(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	dir := t.TempDir()
	require.NoError(t, config.Save(dir, map[string]any{
		Kind: config.Wrap[config.Node](NewMahalanobis()),
	}))

	// No weights were persisted: the detector comes back fresh, after a
	// warning, and still works once fitted.
	stored := &Stored{Path: dir}
	detector, err := stored.Build(backend)
	require.NoError(t, err)
	assert.NotNil(t, detector)
}

func TestStoredBuildMissingConfig(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	stored := &Stored{Path: t.TempDir()}
	_, err := stored.Build(backend)
	assert.Error(t, err)
}

func TestStoredSelfReference(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	dir := t.TempDir()
	require.NoError(t, config.Save(dir, map[string]any{
		Kind: config.Wrap[config.Node](&Stored{Path: dir}),
	}))

	stored := &Stored{Path: dir}
	_, err := stored.Build(backend)
	var selfRef *config.SelfReferenceError
	assert.ErrorAs(t, err, &selfRef)
}
