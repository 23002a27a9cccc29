// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedSource      = errors.New("malformed source")
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrNoSources is fatal: the collection step produced nothing to process.
	ErrNoSources = errors.New("no source documents found")
)

// MalformedSourceError reports a document that could not be read or parsed.
type MalformedSourceError struct {
	Source string
	Err    error
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("malformed source %q: %v", e.Source, e.Err)
}

func (e *MalformedSourceError) Unwrap() error {
	return e.Err
}

func (e *MalformedSourceError) Is(target error) bool {
	return target == ErrMalformedSource
}

// MissingFieldError reports a required field absent from a document.
type MissingFieldError struct {
	Source string
	Field  string
}

func (e *MissingFieldError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("missing required field %q in %q", e.Field, e.Source)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// FailureKind names the failure class of a per-file error for diagnostics.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingRequiredField):
		return "MissingRequiredField"
	case errors.Is(err, ErrMalformedSource):
		return "MalformedSource"
	default:
		return "Error"
	}
}
