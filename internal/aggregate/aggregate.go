// SPDX-License-Identifier: Apache-2.0

// Package aggregate collects normalized records into per-scan-type datasets
// and keeps the batch summary.
package aggregate

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/scan"
)

// KindUnknownScanType is the diagnostic kind for classification fallbacks.
// It is informational and does not count as a failure.
const KindUnknownScanType = "UnknownScanType"

// Diagnostic reports a problem with one source document.
type Diagnostic struct {
	Source string   `msgpack:"source"`
	Tag    scan.Tag `msgpack:"tag"`
	Kind   string   `msgpack:"kind"`
	Reason string   `msgpack:"reason"`
}

// TagSummary holds the counters for one scan type.
// Processed + Failed == Attempted.
type TagSummary struct {
	Tag            scan.Tag       `msgpack:"tag"`
	Attempted      int            `msgpack:"attempted"`
	Processed      int            `msgpack:"processed"`
	Failed         int            `msgpack:"failed"`
	MissingTotal   int            `msgpack:"missing_total"`
	Missing        map[string]int `msgpack:"missing"`
	Male           int            `msgpack:"male"`
	Female         int            `msgpack:"female"`
	ResearchGroups map[string]int `msgpack:"research_groups"`
}

func newTagSummary(tag scan.Tag) *TagSummary {
	return &TagSummary{
		Tag:            tag,
		Missing:        make(map[string]int),
		ResearchGroups: make(map[string]int),
	}
}

func (s *TagSummary) addRecord(rec *scan.ScanRecord) {
	s.Attempted++
	s.Processed++
	for _, f := range rec.Flags {
		s.Missing[f.Field]++
		s.MissingTotal++
	}
	switch rec.Gender.Val {
	case "M":
		s.Male++
	case "F":
		s.Female++
	}
	if rec.ResearchGroup.Present && rec.Valid(scan.FieldResearchGroup) {
		s.ResearchGroups[rec.ResearchGroup.Val]++
	}
}

func (s *TagSummary) merge(o *TagSummary) {
	s.Attempted += o.Attempted
	s.Processed += o.Processed
	s.Failed += o.Failed
	s.MissingTotal += o.MissingTotal
	s.Male += o.Male
	s.Female += o.Female
	for k, v := range o.Missing {
		s.Missing[k] += v
	}
	for k, v := range o.ResearchGroups {
		s.ResearchGroups[k] += v
	}
}

func (s *TagSummary) clone() *TagSummary {
	c := *s
	c.Missing = maps.Clone(s.Missing)
	c.ResearchGroups = maps.Clone(s.ResearchGroups)
	return &c
}

// Summary is the batch-wide set of counters.
type Summary struct {
	Tags        []scan.Tag               `msgpack:"tags"`
	PerTag      map[scan.Tag]*TagSummary `msgpack:"per_tag"`
	Totals      *TagSummary              `msgpack:"totals"`
	Diagnostics []Diagnostic             `msgpack:"diagnostics"`
}

// Snapshot is the finalized, read-only result of a batch.
type Snapshot struct {
	RunID    string                         `msgpack:"run_id"`
	Tags     []scan.Tag                     `msgpack:"tags"`
	Datasets map[scan.Tag][]scan.ScanRecord `msgpack:"datasets"`
	Summary  Summary                        `msgpack:"summary"`
}

// Dataset returns the ordered records for tag.
func (s *Snapshot) Dataset(tag scan.Tag) []scan.ScanRecord {
	return s.Datasets[tag]
}

// Aggregator is the single point of shared mutable state in a batch. All
// methods are safe for concurrent use.
type Aggregator struct {
	runID  string
	logger *zap.Logger

	mu          sync.Mutex
	datasets    map[scan.Tag][]scan.ScanRecord
	summaries   map[scan.Tag]*TagSummary
	diagnostics []Diagnostic
	snapshot    *Snapshot
}

// NewAggregator creates an Aggregator for the batch identified by runID.
func NewAggregator(runID string, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		runID:     runID,
		logger:    logger.Named("aggregate"),
		datasets:  make(map[scan.Tag][]scan.ScanRecord),
		summaries: make(map[scan.Tag]*TagSummary),
	}
}

func (a *Aggregator) summary(tag scan.Tag) *TagSummary {
	s, ok := a.summaries[tag]
	if !ok {
		s = newTagSummary(tag)
		a.summaries[tag] = s
	}
	return s
}

func (a *Aggregator) frozen(op, source string) bool {
	if a.snapshot == nil {
		return false
	}
	a.logger.Warn("ignoring update after finalization", zap.String("op", op), zap.String("source", source))
	return true
}

// Add inserts a normalized record into the dataset for its tag.
func (a *Aggregator) Add(rec scan.ScanRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen("add", rec.Source) {
		return
	}
	a.datasets[rec.Tag] = append(a.datasets[rec.Tag], rec)
	a.summary(rec.Tag).addRecord(&rec)
}

// Fail records a per-file failure against tag. An empty tag is counted as
// scan.TagUnclassified.
func (a *Aggregator) Fail(source string, tag scan.Tag, err error) {
	if tag == "" {
		tag = scan.TagUnclassified
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen("fail", source) {
		return
	}
	s := a.summary(tag)
	s.Attempted++
	s.Failed++
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Source: source,
		Tag:    tag,
		Kind:   scan.FailureKind(err),
		Reason: err.Error(),
	})
}

// Note records an informational diagnostic that does not affect counters.
func (a *Aggregator) Note(source string, tag scan.Tag, kind, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen("note", source) {
		return
	}
	a.diagnostics = append(a.diagnostics, Diagnostic{Source: source, Tag: tag, Kind: kind, Reason: reason})
}

// Finalize sorts every dataset by (patient ID, acquisition date, source)
// and freezes the result. Later calls return the same snapshot.
func (a *Aggregator) Finalize() *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshot != nil {
		return a.snapshot
	}

	datasets := make(map[scan.Tag][]scan.ScanRecord, len(a.datasets))
	for tag, records := range a.datasets {
		sorted := slices.Clone(records)
		sort.SliceStable(sorted, func(i, j int) bool { return less(&sorted[i], &sorted[j]) })
		datasets[tag] = sorted
	}

	tags := make([]scan.Tag, 0, len(a.summaries))
	perTag := make(map[scan.Tag]*TagSummary, len(a.summaries))
	totals := newTagSummary("TOTAL")
	for tag, s := range a.summaries {
		tags = append(tags, tag)
		perTag[tag] = s.clone()
		totals.merge(s)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	diagnostics := slices.Clone(a.diagnostics)
	sort.SliceStable(diagnostics, func(i, j int) bool {
		if diagnostics[i].Source != diagnostics[j].Source {
			return diagnostics[i].Source < diagnostics[j].Source
		}
		if diagnostics[i].Kind != diagnostics[j].Kind {
			return diagnostics[i].Kind < diagnostics[j].Kind
		}
		return diagnostics[i].Reason < diagnostics[j].Reason
	})

	a.snapshot = &Snapshot{
		RunID:    a.runID,
		Tags:     tags,
		Datasets: datasets,
		Summary: Summary{
			Tags:        slices.Clone(tags),
			PerTag:      perTag,
			Totals:      totals,
			Diagnostics: diagnostics,
		},
	}
	a.logger.Debug("finalized batch",
		zap.String("run_id", a.runID),
		zap.Int("tags", len(tags)),
		zap.Int("processed", totals.Processed),
		zap.Int("failed", totals.Failed))
	return a.snapshot
}

// less orders records by patient ID, then acquisition date with undated
// records first, then source.
func less(x, y *scan.ScanRecord) bool {
	if c := strings.Compare(x.PatientID, y.PatientID); c != 0 {
		return c < 0
	}
	xd, yd := x.AcquisitionDate, y.AcquisitionDate
	if xd.Present != yd.Present {
		return !xd.Present
	}
	if xd.Present && !xd.Val.Equal(yd.Val) {
		return xd.Val.Before(yd.Val)
	}
	return x.Source < y.Source
}
