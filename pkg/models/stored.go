// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package models

import (
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/tripwire/pkg/config"
	"github.com/gomlx/tripwire/pkg/persist"
)

// Stored points at the output directory of a previous run instead of
// describing a model directly. Building it re-resolves the model config
// stored there and restores its trained weights.
type Stored struct {
	Path string `yaml:"path"`
}

// ConfigTags implements config.Node.
func (c *Stored) ConfigTags() (variant, kind string) { return "stored", Kind }

// StoredPath implements config.StoredRef, enabling the self-reference guard.
func (c *Stored) StoredPath() string { return c.Path }

// NumClasses implements Config. The stored config must be loaded to know the
// schema; Resolve loads eagerly so this is available before Build.
func (c *Stored) NumClasses() int {
	loaded, err := c.load()
	if err != nil {
		return 0
	}
	return loaded.NumClasses()
}

// InputDim implements Config.
func (c *Stored) InputDim() int {
	loaded, err := c.load()
	if err != nil {
		return 0
	}
	return loaded.InputDim()
}

func (c *Stored) load() (Config, error) {
	node, err := config.LoadNamed(c.Path, Kind, Kind)
	if err != nil {
		return nil, err
	}
	loaded, ok := node.(Config)
	if !ok {
		return nil, errors.Errorf("stored config at %q resolved to %T, which is not a model config", c.Path, node)
	}
	return loaded, nil
}

// Build implements Config: it builds the stored model config and restores its
// weights from `<path>/model`. A missing weights file is non-fatal -- the
// freshly initialized model is returned after a warning, matching how
// parameter-free components are stored.
func (c *Stored) Build(backend backends.Backend) (*Model, error) {
	loaded, err := c.load()
	if err != nil {
		return nil, err
	}
	model, err := loaded.Build(backend)
	if err != nil {
		return nil, err
	}
	weightsDir := filepath.Join(c.Path, Kind)
	if err := persist.Load(model.Context(), weightsDir); err != nil {
		if !errors.Is(err, persist.ErrNotFound) {
			return nil, err
		}
		klog.Warningf("No weights found for model stored at %q; continuing with fresh parameters.", c.Path)
	}
	return model, nil
}
