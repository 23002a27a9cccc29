// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/aggregate"
	"github.com/neuroarchive/adnimeta/internal/config"
	"github.com/neuroarchive/adnimeta/internal/pipeline"
	"github.com/neuroarchive/adnimeta/internal/sink"
	"github.com/neuroarchive/adnimeta/internal/source"
)

type extractOptions struct {
	basePath string
	output   string
	format   string
	folders  []string
	maxFiles int
	workers  int
}

func newExtractCmd(global *globalOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract metadata from every XML record under the base path",
		Long: "Collects metadata XML files from the given folders (or the default ADNI metadata folders), " +
			"classifies each file by scan type, extracts and normalizes its fields and writes one table " +
			"per scan type plus a summary.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExtract(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.basePath, "base-path", ".", "directory holding the metadata folders")
	f.StringVar(&opts.output, "output", sink.DefaultOutput, "output file")
	f.StringVar(&opts.format, "format", "", "output format: xlsx or msgpack (default from the output extension)")
	f.StringSliceVar(&opts.folders, "folders", nil, "folders to search, absolute or relative to the base path")
	f.IntVar(&opts.maxFiles, "max-files", 0, "maximum files per scan type (0 for all)")
	f.IntVar(&opts.workers, "workers", 0, "concurrent documents (0 for one per CPU)")
	return cmd
}

// apply copies the flags the user set over the loaded configuration.
func (o *extractOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("base-path") {
		cfg.BasePath = o.basePath
	}
	if f.Changed("output") {
		cfg.Output = o.output
	}
	if f.Changed("format") {
		cfg.Format = o.format
	}
	if f.Changed("folders") {
		cfg.Folders = o.folders
	}
	if f.Changed("max-files") {
		cfg.MaxFiles = o.maxFiles
	}
	if f.Changed("workers") {
		cfg.Workers = o.workers
	}
}

func runExtract(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	fs := rootFS()
	base, err := absPath(cfg.BasePath)
	if err != nil {
		return err
	}

	output := cfg.Output
	if output == "" {
		output = sink.DefaultOutput
	}
	format, err := sink.DetectFormat(output, cfg.Format)
	if err != nil {
		return err
	}
	if output, err = absPath(output); err != nil {
		return err
	}

	p, classifier, err := newPipeline(cfg, logger, pipeline.WithFilesystem(fs))
	if err != nil {
		return err
	}

	logger.Info("starting extraction",
		zap.String("base_path", base),
		zap.Strings("folders", cfg.Folders),
		zap.Int("max_files", cfg.MaxFiles))
	sources, err := source.NewCollector(fs, base, classifier, logger).Collect(source.Options{
		Folders:    cfg.Folders,
		MaxPerType: cfg.MaxFiles,
	})
	if err != nil {
		return err
	}

	snap, runErr := p.Run(ctx, sources)
	if snap == nil {
		return runErr
	}

	// A cancelled run still writes what it finished.
	if err := sink.WriteFile(context.WithoutCancel(ctx), fs, output, format, snap, logger); err != nil {
		return err
	}
	logger.Info("output written", zap.String("path", output), zap.String("format", string(format)))

	report(out, snap, output)
	return runErr
}

// report prints the per-type record counts.
func report(w io.Writer, snap *aggregate.Snapshot, output string) {
	fmt.Fprintf(w, "Extraction complete: %s\n", output)
	for _, tag := range snap.Tags {
		s := snap.Summary.PerTag[tag]
		fmt.Fprintf(w, "  %-12s %5d records", tag, s.Processed)
		if s.Failed > 0 {
			fmt.Fprintf(w, " (%d failed)", s.Failed)
		}
		fmt.Fprintln(w)
	}
	t := snap.Summary.Totals
	fmt.Fprintf(w, "Total: %d processed, %d failed, %d files\n", t.Processed, t.Failed, t.Attempted)
}
