// SPDX-License-Identifier: Apache-2.0

package pipeline_test

import (
	"context"
	"math/rand"
	"path"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroarchive/adnimeta/internal/pipeline"
	"github.com/neuroarchive/adnimeta/internal/scan"
	"github.com/neuroarchive/adnimeta/internal/testutil"
)

func inline(name string, content []byte) scan.Source {
	return scan.Source{Path: name, Name: name, Content: content}
}

// ---------------------------------------------------------------------------
// Process
// ---------------------------------------------------------------------------

func TestPipeline_Process(t *testing.T) {
	p := pipeline.New()

	tests := []struct {
		name         string
		source       scan.Source
		wantTag      scan.Tag
		wantErr      error
		wantFallback bool
		check        func(t *testing.T, rec *scan.ScanRecord)
	}{
		{
			name:    "mprage document",
			source:  inline("ADNI_MR_MPRAGE.xml", testutil.MRI("002_S_0295", "2006-04-18").XML()),
			wantTag: scan.TagMPRAGE,
			check: func(t *testing.T, rec *scan.ScanRecord) {
				assert.Equal(t, "002_S_0295", rec.PatientID)
				assert.Equal(t, 1.5, rec.FieldStrength.Val)
				assert.Equal(t, "3/4", rec.APOE.Val)
				assert.Empty(t, rec.Flags)
			},
		},
		{
			name:    "fdg document",
			source:  inline("ADNI_PET.xml", testutil.PET("011_S_0002", "2010-01-01").XML()),
			wantTag: scan.TagFDG,
			check: func(t *testing.T, rec *scan.ScanRecord) {
				assert.Equal(t, "18F-FDG", rec.Radiopharmaceutical.Val)
				assert.Equal(t, "3D BACK PROJECTION", rec.Reconstruction.Val)
			},
		},
		{
			name: "tracer outranks a generic pet description",
			source: inline("ADNI_011_S_0002_PET_FDG.xml", func() []byte {
				d := testutil.PET("011_S_0002", "2010-01-01")
				d.Description = "ADNI Brain PET: Raw"
				d.Manufacturer = "Siemens ECAT"
				return d.XML()
			}()),
			wantTag: scan.TagFDG,
			check: func(t *testing.T, rec *scan.ScanRecord) {
				assert.Equal(t, "Siemens ECAT", rec.Manufacturer.Val)
			},
		},
		{
			name: "tracer classifies when the description matches nothing",
			source: inline("ADNI_011_S_0002_PT_Coreg.xml", func() []byte {
				d := testutil.PET("011_S_0002", "2010-01-01")
				d.Description = "Coreg, Avg, Std Img and Vox Siz, Uniform Resolution"
				d.Tracer = "18F-AV45"
				return d.XML()
			}()),
			wantTag: scan.TagAV45,
			check: func(t *testing.T, rec *scan.ScanRecord) {
				assert.Equal(t, "18F-AV45", rec.Radiopharmaceutical.Val)
				assert.Equal(t, "AD", rec.ResearchGroup.Val)
			},
		},
		{
			name: "missing optional field keeps the record",
			source: inline("ADNI_MPRAGE.xml", func() []byte {
				d := testutil.MRI("002_S_0295", "2006-04-18")
				d.FieldStrength = ""
				return d.XML()
			}()),
			wantTag: scan.TagMPRAGE,
			check: func(t *testing.T, rec *scan.ScanRecord) {
				assert.False(t, rec.FieldStrength.Present)
				f, ok := rec.Flag(scan.FieldFieldStrength)
				require.True(t, ok)
				assert.Equal(t, scan.FlagMissing, f.Kind)
			},
		},
		{
			name:    "pet document without patient id",
			source:  inline("ADNI_PET_FDG.xml", testutil.PET("", "2010-01-01").XML()),
			wantTag: scan.TagFDG,
			wantErr: scan.ErrMissingRequiredField,
		},
		{
			name:    "malformed document attributed to filename tag",
			source:  inline("ADNI_DTI_broken.xml", []byte("<idaxs><project></idaxs>")),
			wantTag: scan.TagDTI,
			wantErr: scan.ErrMalformedSource,
		},
		{
			name: "unclassified document uses generic schema",
			source: inline("localizer.xml", func() []byte {
				d := testutil.MRI("003_S_1000", "2011-02-03")
				d.Description = "3-plane localizer"
				return d.XML()
			}()),
			wantTag:      scan.TagUnclassified,
			wantFallback: true,
			check: func(t *testing.T, rec *scan.ScanRecord) {
				assert.Equal(t, "003_S_1000", rec.PatientID)
				assert.False(t, rec.TR.Present, "generic schema does not declare protocol terms")
				assert.Empty(t, rec.Flags)
			},
		},
		{
			name:    "unreadable source",
			source:  scan.Source{Path: "missing/ADNI_FLAIR.xml", Name: "ADNI_FLAIR.xml"},
			wantTag: scan.TagFLAIR,
			wantErr: scan.ErrMalformedSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Process(tt.source)
			assert.Equal(t, tt.wantTag, res.Tag)
			assert.Equal(t, tt.wantFallback, res.Fallback)
			if tt.wantErr != nil {
				require.Error(t, res.Err)
				assert.ErrorIs(t, res.Err, tt.wantErr)
				assert.Nil(t, res.Record)
				return
			}
			require.NoError(t, res.Err)
			require.NotNil(t, res.Record)
			assert.Equal(t, tt.wantTag, res.Record.Tag)
			if tt.check != nil {
				tt.check(t, res.Record)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func batch(t *testing.T) ([]scan.Source, *pipeline.Pipeline) {
	t.Helper()
	fs := memfs.New()
	files := map[string][]byte{
		"ADNI_002_MPRAGE.xml":  testutil.MRI("002", "2006-04-18").XML(),
		"ADNI_001_MPRAGE.xml":  testutil.MRI("001", "2006-04-18").XML(),
		"ADNI_001b_MPRAGE.xml": testutil.MRI("001", "2005-01-01").XML(),
		"ADNI_011_FDG.xml":     testutil.PET("011", "2010-01-01").XML(),
		"ADNI_nopid_FDG.xml":   testutil.PET("", "2010-01-01").XML(),
		"ADNI_broken_T2.xml":   []byte("<idaxs><subject>"),
	}
	var sources []scan.Source
	for name, content := range files {
		p := path.Join("meta", name)
		require.NoError(t, util.WriteFile(fs, p, content, 0o644))
		sources = append(sources, scan.Source{Path: p, Name: name})
	}
	return sources, pipeline.New(pipeline.WithFilesystem(fs), pipeline.WithWorkers(4))
}

func TestPipeline_Run(t *testing.T) {
	sources, p := batch(t)

	snap, err := p.Run(context.Background(), sources)
	require.NoError(t, err)
	require.NotEmpty(t, snap.RunID)

	mprage := snap.Dataset(scan.TagMPRAGE)
	require.Len(t, mprage, 3)
	assert.Equal(t, []string{"001", "001", "002"}, []string{mprage[0].PatientID, mprage[1].PatientID, mprage[2].PatientID})
	assert.Equal(t, 2005, mprage[0].AcquisitionDate.Val.Year())

	sum := snap.Summary
	fdg := sum.PerTag[scan.TagFDG]
	assert.Equal(t, 2, fdg.Attempted)
	assert.Equal(t, 1, fdg.Processed)
	assert.Equal(t, 1, fdg.Failed)
	assert.Len(t, snap.Dataset(scan.TagFDG), 1)

	assert.Equal(t, 1, sum.PerTag[scan.TagT2].Failed, "malformed documents do not abort the batch")
	assert.Equal(t, len(sources), sum.Totals.Attempted)
	assert.Equal(t, 4, sum.Totals.Processed)
	assert.Equal(t, 2, sum.Totals.Failed)

	attempted := 0
	for _, tag := range sum.Tags {
		s := sum.PerTag[tag]
		assert.Equal(t, s.Attempted, s.Processed+s.Failed)
		attempted += s.Attempted
	}
	assert.Equal(t, len(sources), attempted)
}

func TestPipeline_RunIsOrderIndependent(t *testing.T) {
	sources, p := batch(t)
	want, err := p.Run(context.Background(), sources)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		shuffled := append([]scan.Source(nil), sources...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := p.Run(context.Background(), shuffled)
		require.NoError(t, err)
		assert.Equal(t, want.Datasets, got.Datasets)
		assert.Equal(t, want.Summary.Diagnostics, got.Summary.Diagnostics)
		assert.Equal(t, want.Summary.PerTag, got.Summary.PerTag)
	}
}

func TestPipeline_RunCancelled(t *testing.T) {
	sources, p := batch(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := p.Run(ctx, sources)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Summary.Totals.Attempted)
}
