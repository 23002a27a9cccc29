// SPDX-License-Identifier: Apache-2.0

package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	leadingNumber = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)
	// A comma between digits is a decimal or grouping separator; either
	// reading of "2,5" or "1,200" differs from the leading digits.
	digitComma = regexp.MustCompile(`^,\d`)
)

// ParseNumber reads the leading number of s, ignoring surrounding
// whitespace and any unit suffix ("2.5 mm", "3T"). Numbers continued by a
// comma and more digits are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(CleanText(s))
	m := leadingNumber.FindString(s)
	if m == "" || digitComma.MatchString(s[len(m):]) {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseInt reads a whole number the way ParseNumber reads floats. Values
// with a fractional part are rejected.
func ParseInt(s string) (int, bool) {
	f, ok := ParseNumber(s)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// DateFormats are tried in order; the first successful parse wins.
var DateFormats = []string{
	time.DateOnly,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
	"20060102",
}

// ParseDate parses s against DateFormats.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(CleanText(s))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range DateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CleanText applies NFKC normalization, drops control characters and
// collapses runs of whitespace.
func CleanText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// EnumSet is a canonical value set with optional aliases. Matching is
// case-insensitive on cleaned text.
type EnumSet struct {
	index map[string]string
}

// NewEnumSet builds a set from canonical values; aliases map extra
// spellings to a canonical value.
func NewEnumSet(values []string, aliases map[string]string) *EnumSet {
	s := &EnumSet{index: make(map[string]string, len(values)+len(aliases))}
	for _, v := range values {
		s.index[enumKey(v)] = v
	}
	for alias, v := range aliases {
		s.index[enumKey(alias)] = v
	}
	return s
}

// Match returns the canonical spelling of v.
func (s *EnumSet) Match(v string) (string, bool) {
	c, ok := s.index[enumKey(v)]
	return c, ok
}

func enumKey(v string) string {
	return strings.ToLower(CleanText(v))
}
