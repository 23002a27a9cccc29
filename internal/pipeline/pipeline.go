// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs classification, extraction and normalization over a
// batch of source documents.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neuroarchive/adnimeta/internal/aggregate"
	"github.com/neuroarchive/adnimeta/internal/extract"
	"github.com/neuroarchive/adnimeta/internal/normalize"
	"github.com/neuroarchive/adnimeta/internal/scan"
	"github.com/neuroarchive/adnimeta/internal/schema"
)

const progressEvery = 100

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkers bounds the number of documents processed concurrently.
// Values below 1 select runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// WithFilesystem sets the filesystem sources are read from.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(p *Pipeline) {
		p.fs = fs
	}
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *scan.Classifier) Option {
	return func(p *Pipeline) {
		p.classifier = c
	}
}

// WithRegistry replaces the default schema registry.
func WithRegistry(r *schema.Registry) Option {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// Pipeline processes documents independently and funnels the results into
// an Aggregator.
type Pipeline struct {
	classifier *scan.Classifier
	registry   *schema.Registry
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	fs         billy.Filesystem
	workers    int
	logger     *zap.Logger
}

// New creates a Pipeline with the built-in classifier and schemas.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: scan.NewClassifier(),
		registry:   schema.NewRegistry(),
		extractor:  extract.NewExtractor(schema.Discriminators...),
		normalizer: normalize.NewNormalizer(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	p.logger = p.logger.Named("pipeline")
	return p
}

// Result is the outcome of processing one document. Exactly one of Record
// and Err is set.
type Result struct {
	Source string
	Tag    scan.Tag
	// Fallback is true when no rule matched and the generic schema was used.
	Fallback bool
	Record   *scan.ScanRecord
	Err      error
}

// Process runs one document through classify -> extract -> normalize.
// Documents that fail before classification are attributed to the tag of
// their file name.
func (p *Pipeline) Process(source scan.Source) Result {
	res := Result{Source: source.Path}
	if res.Source == "" {
		res.Source = source.Name
	}

	content, err := p.content(source)
	if err != nil {
		res.Tag = p.classifier.ClassifyName(source.Name)
		res.Err = &scan.MalformedSourceError{Source: res.Source, Err: err}
		return res
	}

	doc, err := p.extractor.Parse(res.Source, content)
	if err != nil {
		res.Tag = p.classifier.ClassifyName(source.Name)
		res.Err = err
		return res
	}

	res.Tag = p.classifier.Classify(source.Name, p.extractor.Discriminators(doc)...)
	res.Fallback = res.Tag == scan.TagUnclassified

	raw, err := p.extractor.Extract(doc, p.registry.Lookup(res.Tag))
	if err != nil {
		res.Err = err
		return res
	}

	rec, err := p.normalizer.Normalize(res.Source, res.Tag, raw)
	if err != nil {
		res.Err = err
		return res
	}
	res.Record = &rec
	return res
}

func (p *Pipeline) content(source scan.Source) ([]byte, error) {
	if source.Content != nil {
		return source.Content, nil
	}
	if p.fs == nil {
		return nil, fmt.Errorf("no filesystem configured to read %q", source.Path)
	}
	return util.ReadFile(p.fs, source.Path)
}

// Run processes every source and returns the finalized snapshot. Per-file
// failures are recorded in the summary and never stop the batch. When ctx
// is cancelled no further files are scheduled; files already running
// complete, and the partial snapshot is returned with the context error.
func (p *Pipeline) Run(ctx context.Context, sources []scan.Source) (*aggregate.Snapshot, error) {
	runID := uuid.New().String()
	logger := p.logger.With(zap.String("run_id", runID))
	agg := aggregate.NewAggregator(runID, logger)

	logger.Info("starting batch", zap.Int("files", len(sources)), zap.Int("workers", p.workers))

	var done atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	scheduled := 0
	for _, source := range sources {
		if ctx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			p.collect(agg, logger, p.Process(source))
			if n := done.Add(1); n%progressEvery == 0 {
				logger.Info("processing progress", zap.Int64("completed", n))
			}
			return nil
		})
	}
	_ = g.Wait()

	snap := agg.Finalize()
	totals := snap.Summary.Totals
	logger.Info("batch complete",
		zap.Int("processed", totals.Processed),
		zap.Int("failed", totals.Failed),
		zap.Int("scan_types", len(snap.Tags)))

	if err := ctx.Err(); err != nil {
		logger.Warn("batch stopped early", zap.Int("scheduled", scheduled), zap.Int("total", len(sources)))
		return snap, fmt.Errorf("batch cancelled after %d of %d files: %w", scheduled, len(sources), err)
	}
	return snap, nil
}

func (p *Pipeline) collect(agg *aggregate.Aggregator, logger *zap.Logger, res Result) {
	if res.Fallback {
		agg.Note(res.Source, res.Tag, aggregate.KindUnknownScanType, "no classification rule matched; generic schema used")
		logger.Debug("unclassified document", zap.String("source", res.Source))
	}
	if res.Err != nil {
		agg.Fail(res.Source, res.Tag, res.Err)
		logger.Warn("skipping document",
			zap.String("source", res.Source),
			zap.String("scan_type", res.Tag.String()),
			zap.String("kind", scan.FailureKind(res.Err)),
			zap.Error(res.Err))
		return
	}
	agg.Add(*res.Record)
}
