// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroarchive/adnimeta/internal/pipeline"
	"github.com/neuroarchive/adnimeta/internal/scan"
	"github.com/neuroarchive/adnimeta/internal/testutil"
)

func TestExtractScanMetadata(t *testing.T) {
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	tests := []struct {
		name           string
		input          InputExtractScanMetadata
		wantErr        bool
		errContains    string
		validateOutput func(t *testing.T, output OutputExtractScanMetadata)
	}{
		{
			name:        "empty content returns error",
			input:       InputExtractScanMetadata{Content: "  "},
			wantErr:     true,
			errContains: "content is required",
		},
		{
			name: "mri document produces a full record",
			input: InputExtractScanMetadata{
				Content:  string(testutil.MRI("002_S_0295", "2006-04-18").XML()),
				Filename: "ADNI_002_S_0295_MR.xml",
			},
			validateOutput: func(t *testing.T, output OutputExtractScanMetadata) {
				assert.Equal(t, "MRI_MPRAGE", output.ScanType)
				assert.False(t, output.Fallback)
				assert.Equal(t, "002_S_0295", output.Record["subject_id"])
				assert.Equal(t, "2006-04-18", output.Record[scan.FieldAcquisitionDate])
				assert.Equal(t, 1.5, output.Record[scan.FieldFieldStrength])
				assert.NotContains(t, output.Record, "flags")
				assert.Empty(t, output.Flags)
			},
		},
		{
			name: "missing optional values are flagged and omitted",
			input: InputExtractScanMetadata{
				Content: func() string {
					d := testutil.PET("011_S_0002", "2010-01-01")
					d.Weight = ""
					d.MMSE = "45"
					return string(d.XML())
				}(),
			},
			validateOutput: func(t *testing.T, output OutputExtractScanMetadata) {
				assert.Equal(t, "PET_FDG", output.ScanType)
				assert.NotContains(t, output.Record, scan.FieldWeight)
				assert.Contains(t, output.Flags, "weight_kg:missing")
				assert.Contains(t, output.Flags, `mmse_score:out-of-range("45")`)
				assert.Equal(t, 45.0, output.Record[scan.FieldMMSE], "out-of-range values are kept")
			},
		},
		{
			name: "filename is optional",
			input: InputExtractScanMetadata{
				Content: func() string {
					d := testutil.MRI("003_S_1000", "2011-02-03")
					d.Description = "3-plane localizer"
					return string(d.XML())
				}(),
			},
			validateOutput: func(t *testing.T, output OutputExtractScanMetadata) {
				assert.Equal(t, "Unclassified", output.ScanType)
				assert.True(t, output.Fallback)
				assert.Equal(t, defaultFilename, output.Record["filename"])
			},
		},
		{
			name:        "malformed document returns error",
			input:       InputExtractScanMetadata{Content: "<idaxs><project>", Filename: "ADNI_DTI.xml"},
			wantErr:     true,
			errContains: "MalformedSource (scan type MRI_DTI)",
		},
		{
			name:        "missing patient id returns error",
			input:       InputExtractScanMetadata{Content: string(testutil.PET("", "2010-01-01").XML())},
			wantErr:     true,
			errContains: "MissingRequiredField",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, output, err := ExtractScanMetadata(ctx, req, tt.input)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}

			require.NoError(t, err)
			if tt.validateOutput != nil {
				tt.validateOutput(t, output)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	server := mcp.NewServer(&mcp.Implementation{Name: "adnimeta", Version: "test"}, nil)
	Register(server, pipeline.New())

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name: MetadataExtractScanMetadata.Name,
		Arguments: map[string]any{
			"content":  string(testutil.PET("011_S_0002", "2010-01-01").XML()),
			"filename": "ADNI_PET.xml",
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok, "structured content is a JSON object")
	assert.Equal(t, "PET_FDG", structured["scan_type"])
}
