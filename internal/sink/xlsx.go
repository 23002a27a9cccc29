// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/aggregate"
	"github.com/neuroarchive/adnimeta/internal/scan"
)

// Sheet names of the cross-type tables.
const (
	SummarySheet     = "scan_type_summary"
	DiagnosticsSheet = "diagnostics"
)

const maxSheetName = 31

// SummaryColumns is the header of the summary sheet.
var SummaryColumns = []string{
	"scan_type", "attempted", "processed", "failed",
	"missing_total", "missing_by_field", "male", "female", "research_groups",
}

// DiagnosticColumns is the header of the diagnostics sheet.
var DiagnosticColumns = []string{"source", "scan_type", "kind", "reason"}

// XLSXSink writes a workbook with one sheet per scan type followed by the
// summary and diagnostics sheets.
type XLSXSink struct {
	w      io.Writer
	logger *zap.Logger
}

// NewXLSXSink creates an XLSXSink writing to w.
func NewXLSXSink(w io.Writer, logger *zap.Logger) *XLSXSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XLSXSink{w: w, logger: logger.Named("xlsx")}
}

// SheetName returns the worksheet name for tag.
func SheetName(tag scan.Tag) string {
	name := string(tag)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// Write implements Sink.
func (s *XLSXSink) Write(ctx context.Context, snap *aggregate.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	b := &workbook{f: f, header: bold}

	for _, tag := range snap.Tags {
		if err := ctx.Err(); err != nil {
			return err
		}
		records := snap.Dataset(tag)
		if len(records) == 0 {
			continue
		}
		rows := make([][]any, len(records))
		for i := range records {
			rows[i] = records[i].Row()
		}
		if err := b.sheet(SheetName(tag), scan.ColumnNames, rows); err != nil {
			return err
		}
		s.logger.Debug("wrote sheet", zap.String("scan_type", tag.String()), zap.Int("rows", len(records)))
	}

	if err := b.sheet(SummarySheet, SummaryColumns, summaryRows(&snap.Summary)); err != nil {
		return err
	}
	if err := b.sheet(DiagnosticsSheet, DiagnosticColumns, diagnosticRows(snap.Summary.Diagnostics)); err != nil {
		return err
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:      "ADNI scan metadata",
		Identifier: snap.RunID,
		Creator:    "adnimeta",
	}); err != nil {
		return fmt.Errorf("document properties: %w", err)
	}
	f.SetActiveSheet(0)
	return f.Write(s.w)
}

type workbook struct {
	f      *excelize.File
	header int
	used   bool
}

func (b *workbook) sheet(name string, columns []string, rows [][]any) error {
	if !b.used {
		b.used = true
		if err := b.f.SetSheetName(b.f.GetSheetName(0), name); err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
	} else if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}

	sw, err := b.f.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if err := sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: b.header}); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", name, i+2, err)
		}
	}
	return sw.Flush()
}

func summaryRows(sum *aggregate.Summary) [][]any {
	rows := make([][]any, 0, len(sum.Tags)+1)
	for _, tag := range sum.Tags {
		rows = append(rows, summaryRow(sum.PerTag[tag]))
	}
	if sum.Totals != nil {
		rows = append(rows, summaryRow(sum.Totals))
	}
	return rows
}

func summaryRow(s *aggregate.TagSummary) []any {
	return []any{
		string(s.Tag), s.Attempted, s.Processed, s.Failed,
		s.MissingTotal, counts(s.Missing), s.Male, s.Female, counts(s.ResearchGroups),
	}
}

// counts renders a histogram as "key=n; key=n" in key order.
func counts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, "; ")
}

func diagnosticRows(diags []aggregate.Diagnostic) [][]any {
	rows := make([][]any, len(diags))
	for i, d := range diags {
		rows[i] = []any{d.Source, string(d.Tag), d.Kind, d.Reason}
	}
	return rows
}
