// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package detectors

import (
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/persist"
)

// Stored points at the output directory of a previous detector-training run.
// Building it re-resolves the detector config stored there and restores its
// learned weights.
type Stored struct {
	Path string `yaml:"path"`
}

// ConfigTags implements config.Node.
func (c *Stored) ConfigTags() (variant, kind string) { return "stored", Kind }

// StoredPath implements config.StoredRef, enabling the self-reference guard.
func (c *Stored) StoredPath() string { return c.Path }

// Build implements Config: it builds the stored detector config and restores
// its weights from `<path>/detector`. Absent weights are non-fatal, since
// parameter-free variants persist nothing; the detector is returned
// fresh after a warning.
func (c *Stored) Build(backend backends.Backend) (Detector, error) {
	node, err := config.LoadNamed(c.Path, Kind, Kind)
	if err != nil {
		return nil, err
	}
	loaded, ok := node.(Config)
	if !ok {
		return nil, errors.Errorf("stored config at %q resolved to %T, which is not a detector config", c.Path, node)
	}
	detector, err := loaded.Build(backend)
	if err != nil {
		return nil, err
	}
	weightsDir := filepath.Join(c.Path, Kind)
	if err := detector.LoadWeights(weightsDir); err != nil {
		if !errors.Is(err, persist.ErrNotFound) {
			return nil, err
		}
		klog.Warningf("No weights found for detector stored at %q; continuing with fresh parameters.", c.Path)
	}
	return detector, nil
}
