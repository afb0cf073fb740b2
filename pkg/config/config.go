// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

/*
Package config implements the polymorphic configuration machinery used by
tripwire: a registry of concrete configuration variants per abstract kind
("model", "dataset", "detector", "backdoor"), YAML (de)serialization that
preserves the concrete variant across round-trips, and helpers to load
configuration nodes stored on disk.

Concrete variants are registered once, at process start (from the init()
function of the package that defines them), and the registry is read-only
afterwards. A serialized node carries two discriminator fields, "kind" and
"variant", which select the concrete Go type during unmarshaling:

	kind: model
	variant: mlp
	output_dim: 10
	hidden_dims: [256, 256]

To embed a polymorphic field inside a parent configuration, use Wrapper:

	type BackdoorData struct {
		Original Wrapper[datasets.Config] `yaml:"original"`
		...
	}

Wrapper implements yaml.Marshaler and yaml.Unmarshaler and defers to the
registry for the two-pass decode.
*/
package config

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Node is implemented by every configuration node that participates in
// polymorphic resolution.
type Node interface {
	// ConfigTags returns the unique variant name of the concrete type and the
	// abstract kind it belongs to.
	ConfigTags() (variant, kind string)
}

const (
	// KindField is the YAML key holding the abstract kind of a serialized node.
	KindField = "kind"
	// VariantField is the YAML key holding the concrete variant of a serialized node.
	VariantField = "variant"
)

var (
	// registry maps kind -> variant -> constructor.
	registry = make(map[string]map[string]func() Node)

	// registryMu guards registration only; after process start the registry
	// is read without locking by Resolve.
	registryMu sync.Mutex
)

// Register adds a set of concrete variants of an abstract kind to the global
// registry. It must be called from an init() function; packages defining
// additional variants of an existing kind (composites, detector subpackages)
// call it again for the same kind with their own variants, which keeps the
// kind's variant listing decoupled from any single package.
//
// Registering two variants of a kind under the same name is a programmer
// error and panics.
func Register(kind string, variants map[string]func() Node) {
	registryMu.Lock()
	defer registryMu.Unlock()
	byVariant, found := registry[kind]
	if !found {
		byVariant = make(map[string]func() Node, len(variants))
		registry[kind] = byVariant
	}
	for name, ctor := range variants {
		if _, dup := byVariant[name]; dup {
			panic(fmt.Sprintf("config: variant (%s, %s) registered twice", kind, name))
		}
		gotVariant, gotKind := ctor().ConfigTags()
		if gotVariant != name || gotKind != kind {
			panic(fmt.Sprintf("config: variant registered as (%s, %s) but tags itself (%s, %s)",
				kind, name, gotKind, gotVariant))
		}
		byVariant[name] = ctor
	}
}

// RegisteredVariants returns the sorted-at-will variant names of a kind.
// Used for error messages and CLI help.
func RegisteredVariants(kind string) []string {
	byVariant := registry[kind]
	names := make([]string, 0, len(byVariant))
	for name := range byVariant {
		names = append(names, name)
	}
	return names
}

// Resolve inspects the discriminator fields of a serialized configuration
// node, instantiates the registered concrete variant, and decodes the full
// document into it.
//
// It returns a *ResolutionError if the discriminator is missing, names an
// unknown variant, or the decoded node does not belong to the requested kind.
func Resolve(kind string, doc *yaml.Node) (Node, error) {
	var tags struct {
		Kind    string `yaml:"kind"`
		Variant string `yaml:"variant"`
	}
	if err := doc.Decode(&tags); err != nil {
		return nil, &ResolutionError{Kind: kind, Reason: "cannot read discriminator fields", Cause: err}
	}
	if tags.Variant == "" {
		return nil, &ResolutionError{Kind: kind, Reason: "missing \"variant\" discriminator"}
	}
	if tags.Kind != "" && tags.Kind != kind {
		return nil, &ResolutionError{Kind: kind, Variant: tags.Variant,
			Reason: fmt.Sprintf("document declares kind %q", tags.Kind)}
	}
	byVariant, found := registry[kind]
	if !found {
		return nil, &ResolutionError{Kind: kind, Variant: tags.Variant, Reason: "kind not registered"}
	}
	ctor, found := byVariant[tags.Variant]
	if !found {
		return nil, &ResolutionError{Kind: kind, Variant: tags.Variant,
			Reason: fmt.Sprintf("unknown variant, registered: %v", RegisteredVariants(kind))}
	}
	node := ctor()
	if err := doc.Decode(node); err != nil {
		return nil, &ResolutionError{Kind: kind, Variant: tags.Variant,
			Reason: fmt.Sprintf("cannot decode into %T", node), Cause: err}
	}
	if normalizer, ok := node.(Normalizable); ok {
		if err := normalizer.Normalize(); err != nil {
			return nil, &ResolutionError{Kind: kind, Variant: tags.Variant,
				Reason: "invalid configuration", Cause: err}
		}
	}
	return node, nil
}

// ResolveAs resolves a document and asserts the concrete type satisfies I.
func ResolveAs[I Node](kind string, doc *yaml.Node) (value I, err error) {
	node, err := Resolve(kind, doc)
	if err != nil {
		return value, err
	}
	value, ok := node.(I)
	if !ok {
		return value, &ResolutionError{Kind: kind,
			Reason: fmt.Sprintf("resolved %T does not implement the expected interface", node)}
	}
	return value, nil
}

// Normalizable is implemented by configuration nodes that need a controlled
// post-deserialization normalization step (e.g. propagating flags to nested
// nodes). Normalize runs right after a successful decode and before the node
// is first used; an error fails resolution.
type Normalizable interface {
	Normalize() error
}

// Marshal serializes a configuration node, injecting the kind/variant
// discriminator fields in front of the node's own fields. Key order is
// preserved as declared (yaml.v3 keeps insertion order), so stored configs
// diff cleanly.
func Marshal(node Node) (*yaml.Node, error) {
	var doc yaml.Node
	if err := doc.Encode(node); err != nil {
		return nil, errors.Wrapf(err, "config: cannot serialize %T", node)
	}
	if doc.Kind != yaml.MappingNode {
		return nil, errors.Errorf("config: %T serialized to a %v, expected a mapping", node, doc.Kind)
	}
	variant, kind := node.ConfigTags()
	discriminators := []*yaml.Node{
		scalarNode(KindField), scalarNode(kind),
		scalarNode(VariantField), scalarNode(variant),
	}
	doc.Content = append(discriminators, doc.Content...)
	return &doc, nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// Wrapper embeds a polymorphic configuration value inside a parent struct,
// handling the discriminator injection/lookup during YAML (un)marshaling.
// The zero Wrapper holds a nil Value and serializes to null.
type Wrapper[I Node] struct {
	Value I
}

// Wrap is a convenience constructor.
func Wrap[I Node](value I) Wrapper[I] {
	return Wrapper[I]{Value: value}
}

// IsNil reports whether no value is wrapped.
func (w Wrapper[I]) IsNil() bool {
	return any(w.Value) == nil
}

// MarshalYAML implements yaml.Marshaler.
func (w Wrapper[I]) MarshalYAML() (any, error) {
	if w.IsNil() {
		return nil, nil
	}
	return Marshal(w.Value)
}

// UnmarshalYAML implements yaml.Unmarshaler. The abstract kind is read from
// the serialized "kind" field, mirroring how the value was written.
func (w *Wrapper[I]) UnmarshalYAML(doc *yaml.Node) error {
	if doc.Tag == "!!null" {
		var nilValue I
		w.Value = nilValue
		return nil
	}
	var tags struct {
		Kind string `yaml:"kind"`
	}
	if err := doc.Decode(&tags); err != nil {
		return &ResolutionError{Reason: "cannot read discriminator fields", Cause: err}
	}
	if tags.Kind == "" {
		return &ResolutionError{Reason: "missing \"kind\" discriminator"}
	}
	value, err := ResolveAs[I](tags.Kind, doc)
	if err != nil {
		return err
	}
	w.Value = value
	return nil
}
