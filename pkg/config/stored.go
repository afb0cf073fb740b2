// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the file holding a run's serialized configuration inside
// its output directory.
const ConfigFileName = "config.yaml"

// StoredRef is implemented by "stored" configuration variants: nodes that,
// instead of describing a component directly, point at the output directory
// of a previous run to reload it from.
type StoredRef interface {
	Node
	// StoredPath returns the directory the stored component points at.
	StoredPath() string
}

// LoadNamed reads `<path>/config.yaml`, extracts the sub-document stored
// under the given name, and resolves it as the given kind.
//
// The loaded node is checked against pointing back at path (see StoredRef):
// such a self-reference is unrecoverable and returns a *SelfReferenceError
// rather than recursing.
func LoadNamed(path, name, kind string) (Node, error) {
	doc, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	sub := mappingValue(doc, name)
	if sub == nil {
		return nil, errors.Errorf("config at %q has no %q entry", path, name)
	}
	node, err := Resolve(kind, sub)
	if err != nil {
		return nil, err
	}
	if ref, ok := node.(StoredRef); ok && sameDir(ref.StoredPath(), path) {
		return nil, &SelfReferenceError{Kind: kind, Path: path}
	}
	return node, nil
}

// Save writes the serialized configuration document to `<dir>/config.yaml`,
// creating dir if needed. Key order follows the document as built.
func Save(dir string, doc any) error {
	if dir == "" {
		return &PathNotSetError{Op: "saving config"}
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return errors.Wrapf(err, "cannot create output directory %q", dir)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "cannot serialize config")
	}
	target := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(target, data, 0o666); err != nil {
		return errors.Wrapf(err, "cannot write %q", target)
	}
	return nil
}

func readConfigFile(path string) (*yaml.Node, error) {
	target := filepath.Join(path, ConfigFileName)
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read stored config %q", target)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "cannot parse stored config %q", target)
	}
	// yaml.Unmarshal into a yaml.Node yields a document node wrapping the
	// top-level mapping.
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		return doc.Content[0], nil
	}
	return &doc, nil
}

// mappingValue returns the value node stored under key in a YAML mapping, or
// nil if absent.
func mappingValue(doc *yaml.Node, key string) *yaml.Node {
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == key {
			return doc.Content[i+1]
		}
	}
	return nil
}

func sameDir(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
