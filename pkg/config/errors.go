// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package config

import "fmt"

// ResolutionError reports a serialized configuration node that could not be
// mapped to a registered concrete variant. It is fatal to the run: it always
// indicates a broken configuration file or a missing registration.
type ResolutionError struct {
	Kind    string
	Variant string
	Reason  string
	Cause   error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("config resolution failed for kind=%q", e.Kind)
	if e.Variant != "" {
		msg += fmt.Sprintf(" variant=%q", e.Variant)
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// SelfReferenceError reports a stored configuration that points at its own
// path. The file was corrupted or mis-written during save; recursing into it
// would never terminate, so loading fails fast instead.
type SelfReferenceError struct {
	Kind string
	Path string
}

func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("stored %s config at %q points to itself -- "+
		"the configuration file is probably broken", e.Kind, e.Path)
}

// PathNotSetError reports an operation that requires an output path when none
// was configured. There is no sensible default destination, so this is fatal.
type PathNotSetError struct {
	Op string
}

func (e *PathNotSetError) Error() string {
	return fmt.Sprintf("%s requires an output path, but none was configured", e.Op)
}

// SchemaMismatchError reports incompatible input/label schemas between a
// model and the datasets it is composed with. It is raised during task
// assembly, before any training starts.
type SchemaMismatchError struct {
	Field        string
	ModelValue   any
	DatasetName  string
	DatasetValue any
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on %s: model expects %v, dataset %q provides %v",
		e.Field, e.ModelValue, e.DatasetName, e.DatasetValue)
}
