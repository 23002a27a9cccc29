// SPDX-License-Identifier: Apache-2.0

// Package extract pulls raw field values out of metadata XML documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/neuroarchive/adnimeta/internal/scan"
)

var errNoRootElement = errors.New("document has no root element")

// Document is a parsed source document.
type Document struct {
	Source string
	root   *xmlquery.Node
}

// Extractor resolves field locators against parsed documents.
type Extractor struct {
	discriminators []string
}

// NewExtractor creates an Extractor. The discriminator XPaths select the
// text handed to the classifier.
func NewExtractor(discriminators ...string) *Extractor {
	return &Extractor{discriminators: discriminators}
}

// Parse parses content into a Document. Syntax errors and documents without
// a root element are reported as *scan.MalformedSourceError.
func (e *Extractor) Parse(source string, content []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, &scan.MalformedSourceError{Source: source, Err: err}
	}
	if !hasElement(root) {
		return nil, &scan.MalformedSourceError{Source: source, Err: errNoRootElement}
	}
	return &Document{Source: source, root: root}, nil
}

func hasElement(doc *xmlquery.Node) bool {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}

// Discriminators returns the first non-blank match of every discriminator
// XPath, in XPath order. XPaths without a match are skipped.
func (e *Extractor) Discriminators(doc *Document) []string {
	var texts []string
	for _, expr := range e.discriminators {
		if text, ok := firstText(doc.root, expr); ok {
			texts = append(texts, text)
		}
	}
	return texts
}

// Extract produces a RawRecord with one entry per locator. A required
// locator without a non-blank match fails with *scan.MissingFieldError.
func (e *Extractor) Extract(doc *Document, locators []scan.FieldLocator) (scan.RawRecord, error) {
	raw := make(scan.RawRecord, len(locators))
	for _, loc := range locators {
		value, err := extractField(doc.root, loc)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", loc.Field, err)
		}
		if loc.Required && !value.Present {
			return nil, &scan.MissingFieldError{Source: doc.Source, Field: loc.Field}
		}
		raw[loc.Field] = value
	}
	return raw, nil
}

func extractField(root *xmlquery.Node, loc scan.FieldLocator) (scan.RawValue, error) {
	nodes, err := xmlquery.QueryAll(root, loc.XPath)
	if err != nil {
		return scan.RawValue{}, err
	}
	if len(loc.Each) == 0 {
		for _, n := range nodes {
			if text := strings.TrimSpace(n.InnerText()); text != "" {
				return scan.RawValue{Present: true, Text: text}, nil
			}
		}
		return scan.RawValue{}, nil
	}

	var values []string
	for _, n := range nodes {
		parts, ok, err := eachParts(n, loc.Each)
		if err != nil {
			return scan.RawValue{}, err
		}
		if !ok {
			continue
		}
		if len(parts) == 1 {
			values = append(values, parts[0])
			continue
		}
		values = append(values, parts[0]+"("+strings.Join(parts[1:], ", ")+")")
	}
	if len(values) == 0 {
		return scan.RawValue{}, nil
	}
	return scan.RawValue{Present: true, Text: strings.Join(values, "; "), Values: values}, nil
}

// eachParts evaluates the relative XPaths against n. ok is false unless
// every part has a non-blank match.
func eachParts(n *xmlquery.Node, exprs []string) ([]string, bool, error) {
	parts := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		match, err := xmlquery.Query(n, expr)
		if err != nil {
			return nil, false, err
		}
		if match == nil {
			return nil, false, nil
		}
		text := strings.TrimSpace(match.InnerText())
		if text == "" {
			return nil, false, nil
		}
		parts = append(parts, text)
	}
	return parts, true, nil
}

func firstText(root *xmlquery.Node, expr string) (string, bool) {
	nodes, err := xmlquery.QueryAll(root, expr)
	if err != nil {
		return "", false
	}
	for _, n := range nodes {
		if text := strings.TrimSpace(n.InnerText()); text != "" {
			return text, true
		}
	}
	return "", false
}
