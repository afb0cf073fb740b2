// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report defines the metrics sink the training pipeline reports
// scalar series to. Real runs attach an experiment tracker behind this
// interface; headless and test runs use NoOp.
package report

import "k8s.io/klog/v2"

// Sink receives scalar metric values keyed by a title (metric group), a
// series name, and the iteration (global step) they were measured at.
type Sink interface {
	ReportScalar(title, series string, value float64, iteration int64)
}

// NoOp discards every report. Used for headless and test runs.
type NoOp struct{}

func (NoOp) ReportScalar(title, series string, value float64, iteration int64) {}

// Log writes every scalar to the klog verbose log. Useful to follow training
// from a terminal without an external tracker.
type Log struct {
	// Verbosity is the klog verbosity level the scalars are logged at.
	Verbosity int
}

func (l Log) ReportScalar(title, series string, value float64, iteration int64) {
	klog.V(klog.Level(l.Verbosity)).Infof("%s/%s@%d = %g", title, series, iteration, value)
}
