// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"slices"
	"strings"
)

// Rule maps trigger keywords to a scan-type tag. A rule matches when the
// text contains any of Match, all of Require, and none of Exclude.
// Keywords are case-sensitive substrings. A Generic rule only decides the
// tag when no candidate text matches a specific rule.
type Rule struct {
	Tag     Tag
	Match   []string
	Require []string
	Exclude []string
	Generic bool
}

func (r Rule) matches(text string) bool {
	if text == "" {
		return false
	}
	for _, kw := range r.Exclude {
		if strings.Contains(text, kw) {
			return false
		}
	}
	for _, kw := range r.Require {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	if len(r.Match) == 0 {
		return len(r.Require) > 0
	}
	for _, kw := range r.Match {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DefaultRules is the built-in rule table. Rules are evaluated in order;
// the first match wins. PET tracers come before the generic PET rule, and
// MPRAGE-with-FLAIR names resolve to FLAIR before the plain MPRAGE rule.
var DefaultRules = []Rule{
	{Tag: TagFDG, Match: []string{"FDG"}},
	{Tag: TagFBB, Match: []string{"FBB", "Florbetaben"}},
	{Tag: TagAV45, Match: []string{"AV45", "florbetapir"}},
	{Tag: TagTau, Match: []string{"Tau", "AV1451", "FLORTAUCIPIR"}},
	{Tag: TagPETOther, Match: []string{"PET"}, Generic: true},
	{Tag: TagFLAIR, Require: []string{"MPR", "FLAIR"}},
	{Tag: TagMPRAGE, Match: []string{"MPR"}},
	{Tag: TagFLAIR, Match: []string{"FLAIR"}},
	{Tag: TagDTI, Match: []string{"DTI"}},
	{Tag: TagFMRI, Match: []string{"rsfMRI", "fMRI"}},
	{Tag: TagASL, Match: []string{"ASL"}},
	{Tag: TagT2, Match: []string{"T2"}},
}

// Classifier assigns a Tag to a document. The document discriminators are
// tried in order before the file name; when none matches the result is
// TagUnclassified.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier. Extra rules are evaluated before
// DefaultRules.
func NewClassifier(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules))
	rules = append(rules, extra...)
	rules = append(rules, DefaultRules...)
	return &Classifier{rules: rules}
}

// Classify returns the tag for a document given its file name and the
// texts of its discriminating elements, most authoritative first. The first
// candidate matching a specific rule wins; a generic match is kept only
// when no candidate matches a specific rule.
func (c *Classifier) Classify(name string, discriminators ...string) Tag {
	fallback := TagUnclassified
	for _, text := range slices.Concat(discriminators, []string{name}) {
		rule, ok := c.match(text)
		if !ok {
			continue
		}
		if !rule.Generic {
			return rule.Tag
		}
		if fallback == TagUnclassified {
			fallback = rule.Tag
		}
	}
	return fallback
}

// ClassifyName classifies by file name alone.
func (c *Classifier) ClassifyName(name string) Tag {
	return c.Classify(name)
}

func (c *Classifier) match(text string) (Rule, bool) {
	for _, rule := range c.rules {
		if rule.matches(text) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Tags returns every tag the classifier can produce, in rule order,
// followed by TagUnclassified.
func (c *Classifier) Tags() []Tag {
	seen := make(map[Tag]bool, len(c.rules))
	tags := make([]Tag, 0, len(c.rules)+1)
	for _, rule := range c.rules {
		if !seen[rule.Tag] {
			seen[rule.Tag] = true
			tags = append(tags, rule.Tag)
		}
	}
	return append(tags, TagUnclassified)
}
