// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/config"
	"github.com/neuroarchive/adnimeta/internal/pipeline"
	"github.com/neuroarchive/adnimeta/internal/scan"
	"github.com/neuroarchive/adnimeta/internal/schema"
)

var version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "adnimeta",
		Short:        "Extract clinical and imaging metadata from ADNI XML records",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newExtractCmd(opts), newServeCmd(opts))
	return root
}

// rootFS is the host filesystem addressed by absolute paths.
func rootFS() billy.Filesystem {
	return osfs.New("/")
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return abs, nil
}

// loadConfig reads the configuration file, if any, and applies the global
// flag overrides.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	path := opts.configPath
	if path != "" {
		var err error
		if path, err = absPath(path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(rootFS(), path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

// newPipeline builds the classifier and registry from cfg and returns a
// pipeline using them.
func newPipeline(cfg *config.Config, logger *zap.Logger, extra ...pipeline.Option) (*pipeline.Pipeline, *scan.Classifier, error) {
	classifier := scan.NewClassifier(cfg.Rules()...)
	registry := schema.NewRegistry()
	if err := cfg.Register(registry); err != nil {
		return nil, nil, err
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithClassifier(classifier),
		pipeline.WithRegistry(registry),
	}
	return pipeline.New(append(opts, extra...)...), classifier, nil
}
