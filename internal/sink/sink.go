// SPDX-License-Identifier: Apache-2.0

// Package sink writes finalized batch snapshots to output formats.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/neuroarchive/adnimeta/internal/aggregate"
)

// Sink consumes a finalized snapshot.
type Sink interface {
	Write(ctx context.Context, snap *aggregate.Snapshot) error
}

// Format identifies an output encoding.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatMsgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for output formats no sink implements.
var ErrUnknownFormat = errors.New("unknown output format")

// DetectFormat picks the format from an explicit name, falling back to the
// extension of path. Paths without an extension default to XLSX.
func DetectFormat(path, explicit string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(explicit))
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch name {
	case "", "xlsx":
		return FormatXLSX, nil
	case "msgpack", "mpk", "msgp":
		return FormatMsgpack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// DefaultOutput names the workbook written when no output path is given.
const DefaultOutput = "adni_metadata.xlsx"

// New creates the sink for format writing to w.
func New(format Format, w io.Writer, logger *zap.Logger) (Sink, error) {
	switch format {
	case FormatXLSX:
		return NewXLSXSink(w, logger), nil
	case FormatMsgpack:
		return NewMsgpackSink(w), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WriteFile writes snap to path on fs in the given format. A partially
// written file is removed on failure.
func WriteFile(ctx context.Context, fs billy.Filesystem, path string, format Format, snap *aggregate.Snapshot, logger *zap.Logger) (err error) {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
		if err != nil {
			_ = fs.Remove(path)
		}
	}()

	s, err := New(format, f, logger)
	if err != nil {
		return err
	}
	if err := s.Write(ctx, snap); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
