// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// tripwire trains reference classifiers, fits anomaly detectors against
// them, and evaluates the detectors on potentially backdoored data.
//
// Each subcommand resolves its configuration from defaults, then an optional
// YAML file (--config), then explicit flags, persists the result to the
// output directory, and runs one pipeline stage.
package main

import (
	"os"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/janpfeifer/must"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/tripwire/pkg/detectors/abstraction"
	"github.com/gomlx/tripwire/pkg/report"
	"github.com/gomlx/tripwire/pkg/scripts"
)

var (
	flagOutput string
	flagConfig string
	flagDebug  bool
	flagSeed   int64
)

func runContext() scripts.RunContext {
	return scripts.NewRunContext(flagOutput, flagDebug, flagSeed)
}

func sink() report.Sink {
	if flagDebug {
		return report.Log{Verbosity: 0}
	}
	return report.Log{Verbosity: 2}
}

func main() {
	root := &cobra.Command{
		Use:   "tripwire",
		Short: "Backdoor detection for neural-network classifiers",
	}
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "Output directory for configs, weights and results")
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file overlaying the defaults")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Verbose logging")
	root.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "Parameter initialization seed")

	root.AddCommand(trainModelCmd(), trainDetectorCmd(), evalDetectorCmd())
	if err := root.Execute(); err != nil {
		klog.Error(err)
		os.Exit(1)
	}
}

func trainModelCmd() *cobra.Command {
	cfg := scripts.NewTrainModelConfig()
	cmd := &cobra.Command{
		Use:   "train-model",
		Short: "Train a reference classifier and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			epochs := cfg.NumEpochs
			learningRate := cfg.LearningRate
			if err := scripts.LoadFile(flagConfig, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("epochs") {
				cfg.NumEpochs = epochs
			}
			if cmd.Flags().Changed("learning-rate") {
				cfg.LearningRate = learningRate
			}
			backend := backends.MustNew()
			return scripts.TrainModel(backend, runContext(), cfg, sink())
		},
	}
	cmd.Flags().IntVar(&cfg.NumEpochs, "epochs", cfg.NumEpochs, "Number of training epochs")
	cmd.Flags().Float64Var(&cfg.LearningRate, "learning-rate", cfg.LearningRate, "Adam learning rate")
	return cmd
}

func trainDetectorCmd() *cobra.Command {
	cfg := scripts.NewTrainDetectorConfig()
	return &cobra.Command{
		Use:   "train-detector",
		Short: "Fit a detector against a reference model and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := scripts.LoadFile(flagConfig, cfg); err != nil {
				return err
			}
			backend := backends.MustNew()
			scores := must.M1(scripts.TrainDetector(backend, runContext(), cfg, sink()))
			cmd.Printf("AUROC: %.4f\n", scores.AUROC())
			return nil
		},
	}
}

func evalDetectorCmd() *cobra.Command {
	cfg := scripts.NewEvalDetectorConfig()
	return &cobra.Command{
		Use:   "eval-detector",
		Short: "Score a test set with a (usually stored) detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := scripts.LoadFile(flagConfig, cfg); err != nil {
				return err
			}
			backend := backends.MustNew()
			scores := must.M1(scripts.EvalDetector(backend, runContext(), cfg, sink()))
			cmd.Printf("AUROC: %.4f\n", scores.AUROC())
			return nil
		},
	}
}
