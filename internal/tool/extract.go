// SPDX-License-Identifier: Apache-2.0

// Package tool exposes single-document extraction as an MCP tool.
package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neuroarchive/adnimeta/internal/pipeline"
	"github.com/neuroarchive/adnimeta/internal/scan"
)

const defaultFilename = "document.xml"

// MetadataExtractScanMetadata describes the extract_scan_metadata tool.
var MetadataExtractScanMetadata = &mcp.Tool{
	Name: "extract_scan_metadata",
	Description: "Classify one ADNI metadata XML document and return its normalized scan record. " +
		"The scan type comes from the series description or radiopharmaceutical in the document, " +
		"falling back to keywords in the file name. " +
		"Fields that are missing, malformed, out of range or not in the canonical vocabulary are " +
		"listed in flags; the record keeps every value that could be read.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"content"},
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Raw XML content of the metadata document",
			},
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional file name of the document, used for classification when the document itself carries no scan type keywords.",
			},
		},
	},
}

// InputExtractScanMetadata is the input for the ExtractScanMetadata tool.
type InputExtractScanMetadata struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// OutputExtractScanMetadata is the output for the ExtractScanMetadata tool.
type OutputExtractScanMetadata struct {
	// ScanType is the assigned scan-type tag.
	ScanType string `json:"scan_type"`
	// Fallback is true when no classification rule matched.
	Fallback bool `json:"fallback"`
	// Record maps column names to the values present in the document.
	Record map[string]any `json:"record"`
	// Flags lists the quality flags of the record as "field:kind".
	Flags []string `json:"flags"`
}

// ExtractScanMetadata runs the built-in classifier and schemas over one
// document.
func ExtractScanMetadata(ctx context.Context, req *mcp.CallToolRequest, input InputExtractScanMetadata) (*mcp.CallToolResult, OutputExtractScanMetadata, error) {
	return NewExtractScanMetadata(pipeline.New())(ctx, req, input)
}

// NewExtractScanMetadata returns a handler for the tool backed by p.
func NewExtractScanMetadata(p *pipeline.Pipeline) mcp.ToolHandlerFor[InputExtractScanMetadata, OutputExtractScanMetadata] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input InputExtractScanMetadata) (*mcp.CallToolResult, OutputExtractScanMetadata, error) {
		if strings.TrimSpace(input.Content) == "" {
			return nil, OutputExtractScanMetadata{}, fmt.Errorf("content is required")
		}
		if err := ctx.Err(); err != nil {
			return nil, OutputExtractScanMetadata{}, err
		}

		name := input.Filename
		if name == "" {
			name = defaultFilename
		}
		res := p.Process(scan.Source{Path: name, Name: name, Content: []byte(input.Content)})
		if res.Err != nil {
			return nil, OutputExtractScanMetadata{}, fmt.Errorf("%s (scan type %s): %w", scan.FailureKind(res.Err), res.Tag, res.Err)
		}

		out := OutputExtractScanMetadata{
			ScanType: res.Tag.String(),
			Fallback: res.Fallback,
			Record:   make(map[string]any),
			Flags:    make([]string, 0, len(res.Record.Flags)),
		}
		row := res.Record.Row()
		for i, col := range scan.ColumnNames {
			if col == "flags" || row[i] == nil {
				continue
			}
			out.Record[col] = row[i]
		}
		for _, f := range res.Record.Flags {
			out.Flags = append(out.Flags, f.String())
		}
		return nil, out, nil
	}
}

// Register adds the extraction tool backed by p to server.
func Register(server *mcp.Server, p *pipeline.Pipeline) {
	mcp.AddTool(server, MetadataExtractScanMetadata, NewExtractScanMetadata(p))
}
