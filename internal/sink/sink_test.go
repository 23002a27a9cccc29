// SPDX-License-Identifier: Apache-2.0

package sink_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/neuroarchive/adnimeta/internal/aggregate"
	"github.com/neuroarchive/adnimeta/internal/scan"
	"github.com/neuroarchive/adnimeta/internal/sink"
)

func snapshot(t *testing.T) *aggregate.Snapshot {
	t.Helper()
	a := aggregate.NewAggregator("3f2b0c1e-run", nil)

	date := time.Date(2006, 4, 18, 0, 0, 0, 0, time.UTC)
	mri := scan.ScanRecord{
		Source:          "meta/ADNI_002_MPRAGE.xml",
		Tag:             scan.TagMPRAGE,
		PatientID:       "002_S_0295",
		Gender:          scan.Of("M", "Male"),
		Age:             scan.Of(74.3, "74.3"),
		AcquisitionDate: scan.Of(date, "2006-04-18"),
		ProcessingSteps: scan.Of([]string{"GradWarp(GW)", "N3(N3m)"}, ""),
		Flags:           []scan.Flag{{Field: scan.FieldWeight, Kind: scan.FlagMissing}},
	}
	a.Add(mri)
	a.Add(scan.ScanRecord{Source: "meta/ADNI_011_FDG.xml", Tag: scan.TagFDG, PatientID: "011_S_0002"})
	a.Fail("meta/ADNI_broken_T2.xml", scan.TagT2, &scan.MalformedSourceError{Source: "meta/ADNI_broken_T2.xml", Err: errors.New("unexpected EOF")})
	return a.Finalize()
}

// ---------------------------------------------------------------------------
// Format selection
// ---------------------------------------------------------------------------

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path     string
		explicit string
		want     sink.Format
		wantErr  bool
	}{
		{path: "out.xlsx", want: sink.FormatXLSX},
		{path: "OUT.XLSX", want: sink.FormatXLSX},
		{path: "out", want: sink.FormatXLSX},
		{path: "snapshot.msgpack", want: sink.FormatMsgpack},
		{path: "snapshot.mpk", want: sink.FormatMsgpack},
		{path: "out.xlsx", explicit: "msgpack", want: sink.FormatMsgpack},
		{path: "out.csv", wantErr: true},
		{path: "out.xlsx", explicit: "parquet", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.explicit, func(t *testing.T) {
			got, err := sink.DetectFormat(tt.path, tt.explicit)
			if tt.wantErr {
				assert.ErrorIs(t, err, sink.ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultOutput(t *testing.T) {
	got, err := sink.DetectFormat(sink.DefaultOutput, "")
	require.NoError(t, err)
	assert.Equal(t, sink.FormatXLSX, got)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "MRI_MPRAGE", sink.SheetName(scan.TagMPRAGE))
	long := scan.Tag("MRI_SUSCEPTIBILITY_WEIGHTED_IMAGING")
	assert.Equal(t, "MRI_SUSCEPTIBILITY_WEIGHTED_IMA", sink.SheetName(long))
	assert.Len(t, sink.SheetName(long), 31)
}

// ---------------------------------------------------------------------------
// XLSX
// ---------------------------------------------------------------------------

func TestXLSXSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sink.NewXLSXSink(&buf, nil).Write(context.Background(), snapshot(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"MRI_MPRAGE", "PET_FDG", sink.SummarySheet, sink.DiagnosticsSheet}, f.GetSheetList(),
		"types with only failures get no data sheet")

	rows, err := f.GetRows("MRI_MPRAGE")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, scan.ColumnNames, rows[0])
	col := func(name string) string {
		for i, c := range scan.ColumnNames {
			if c == name && i < len(rows[1]) {
				return rows[1][i]
			}
		}
		return ""
	}
	assert.Equal(t, "meta/ADNI_002_MPRAGE.xml", col("filename"))
	assert.Equal(t, "002_S_0295", col("subject_id"))
	assert.Equal(t, "2006-04-18", col(scan.FieldAcquisitionDate))
	assert.Equal(t, "GradWarp(GW); N3(N3m)", col(scan.FieldProcessingSteps))
	assert.Equal(t, "", col(scan.FieldWeight))
	assert.Equal(t, "weight_kg:missing", col("flags"))

	styleID, err := f.GetCellStyle("MRI_MPRAGE", "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)

	summary, err := f.GetRows(sink.SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 5)
	assert.Equal(t, sink.SummaryColumns, summary[0])
	assert.Equal(t, []string{"MRI_MPRAGE", "1", "1", "0", "1", "weight_kg=1", "1", "0"}, summary[1][:8])
	assert.Equal(t, "MRI_T2", summary[2][0])
	assert.Equal(t, "1", summary[2][3])
	assert.Equal(t, []string{"TOTAL", "3", "2", "1"}, summary[4][:4])

	diags, err := f.GetRows(sink.DiagnosticsSheet)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, []string{"meta/ADNI_broken_T2.xml", "MRI_T2", "MalformedSource"}, diags[1][:3])

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "3f2b0c1e-run", props.Identifier)
}

func TestXLSXSink_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := sink.NewXLSXSink(&buf, nil).Write(ctx, snapshot(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

// ---------------------------------------------------------------------------
// Msgpack
// ---------------------------------------------------------------------------

func TestMsgpackSink(t *testing.T) {
	want := snapshot(t)
	var buf bytes.Buffer
	require.NoError(t, sink.NewMsgpackSink(&buf).Write(context.Background(), want))

	got, err := sink.ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Tags, got.Tags)
	assert.Equal(t, want.Summary.Totals, got.Summary.Totals)
	assert.Equal(t, want.Summary.Diagnostics, got.Summary.Diagnostics)

	mprage := got.Dataset(scan.TagMPRAGE)
	require.Len(t, mprage, 1)
	assert.Equal(t, "002_S_0295", mprage[0].PatientID)
	assert.True(t, mprage[0].AcquisitionDate.Val.Equal(want.Dataset(scan.TagMPRAGE)[0].AcquisitionDate.Val))
}

// ---------------------------------------------------------------------------
// WriteFile
// ---------------------------------------------------------------------------

func TestWriteFile(t *testing.T) {
	fs := memfs.New()
	snap := snapshot(t)

	require.NoError(t, sink.WriteFile(context.Background(), fs, "out/result.msgpack", sink.FormatMsgpack, snap, nil))
	data, err := util.ReadFile(fs, "out/result.msgpack")
	require.NoError(t, err)
	got, err := sink.ReadSnapshot(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, got.RunID)

	err = sink.WriteFile(context.Background(), fs, "out/bad.bin", sink.Format("bin"), snap, nil)
	assert.ErrorIs(t, err, sink.ErrUnknownFormat)
	_, statErr := fs.Stat("out/bad.bin")
	assert.Error(t, statErr, "failed outputs are removed")
}
