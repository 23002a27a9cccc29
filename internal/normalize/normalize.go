// SPDX-License-Identifier: Apache-2.0

// Package normalize turns raw extracted values into typed scan records.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/neuroarchive/adnimeta/internal/scan"
)

var (
	Genders = NewEnumSet([]string{"M", "F"}, map[string]string{
		"male":   "M",
		"female": "F",
	})

	ResearchGroups = NewEnumSet([]string{"CN", "SMC", "EMCI", "MCI", "LMCI", "AD"}, map[string]string{
		"normal":   "CN",
		"dementia": "AD",
	})

	Genotypes = NewEnumSet([]string{"2/2", "2/3", "2/4", "3/3", "3/4", "4/4"}, nil)

	VisitTypes = NewEnumSet([]string{
		"ADNI Screening",
		"ADNI Baseline",
		"ADNI1/GO Month 6",
		"ADNI1/GO Month 12",
		"ADNI1/GO Month 18",
		"ADNI1/GO Month 24",
		"ADNI1/GO Month 36",
		"ADNI1/GO Month 48",
		"ADNI1/GO Month 54",
		"ADNIGO Screening MRI",
		"ADNIGO Month 3 MRI",
		"ADNI2 Screening MRI-New Pt",
		"ADNI2 Baseline-New Pt",
		"ADNI2 Month 3 MRI-New Pt",
		"ADNI2 Month 6-New Pt",
		"ADNI2 Initial Visit-Cont Pt",
		"ADNI2 Year 1 Visit",
		"ADNI2 Year 2 Visit",
		"ADNI2 Year 3 Visit",
		"ADNI2 Year 4 Visit",
		"ADNI2 Year 5 Visit",
		"ADNI2 Tau-only visit",
		"ADNI3 Initial Visit-Cont Pt",
		"ADNI3 Year 1 Visit",
		"ADNI3 Year 2 Visit",
		"ADNI3 Year 3 Visit",
		"ADNI3 Year 4 Visit",
		"ADNI3 Year 5 Visit",
		"ADNI3 Year 6 Visit",
		"No Visit Defined",
		"Unscheduled",
	}, map[string]string{
		"sc": "ADNI Screening",
		"bl": "ADNI Baseline",
	})
)

type numberRule struct {
	field    string
	min, max float64
	value    func(*scan.ScanRecord) *scan.Value[float64]
}

type intRule struct {
	field    string
	min, max int
	value    func(*scan.ScanRecord) *scan.Value[int]
}

type enumRule struct {
	field string
	set   *EnumSet
	value func(*scan.ScanRecord) *scan.Value[string]
}

type textRule struct {
	field string
	value func(*scan.ScanRecord) *scan.Value[string]
}

var numberRules = []numberRule{
	{scan.FieldAge, 0, 120, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.Age }},
	{scan.FieldWeight, 0, 300, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.WeightKg }},
	{scan.FieldMMSE, 0, 30, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.MMSE }},
	{scan.FieldCDR, 0, 3, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.CDR }},
	{scan.FieldNPI, 0, 144, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.NPI }},
	{scan.FieldFAQ, 0, 30, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.FAQ }},
	{scan.FieldTE, 0, 10000, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.TE }},
	{scan.FieldTR, 0, 20000, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.TR }},
	{scan.FieldSliceThickness, 0, 20, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.SliceThickness }},
	{scan.FieldFlipAngle, 0, 180, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.FlipAngle }},
	{scan.FieldFieldStrength, 0, 11.7, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.FieldStrength }},
	{scan.FieldPixelSpacingX, 0, 10, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.PixelSpacingX }},
	{scan.FieldPixelSpacingY, 0, 10, func(r *scan.ScanRecord) *scan.Value[float64] { return &r.PixelSpacingY }},
}

var intRules = []intRule{
	{scan.FieldRows, 1, 4096, func(r *scan.ScanRecord) *scan.Value[int] { return &r.Rows }},
	{scan.FieldColumns, 1, 4096, func(r *scan.ScanRecord) *scan.Value[int] { return &r.Columns }},
	{scan.FieldSlices, 1, 4096, func(r *scan.ScanRecord) *scan.Value[int] { return &r.Slices }},
}

var enumRules = []enumRule{
	{scan.FieldResearchGroup, ResearchGroups, func(r *scan.ScanRecord) *scan.Value[string] { return &r.ResearchGroup }},
	{scan.FieldGender, Genders, func(r *scan.ScanRecord) *scan.Value[string] { return &r.Gender }},
	{scan.FieldVisitType, VisitTypes, func(r *scan.ScanRecord) *scan.Value[string] { return &r.VisitType }},
}

var textRules = []textRule{
	{scan.FieldModality, func(r *scan.ScanRecord) *scan.Value[string] { return &r.Modality }},
	{scan.FieldSeriesID, func(r *scan.ScanRecord) *scan.Value[string] { return &r.SeriesID }},
	{scan.FieldManufacturer, func(r *scan.ScanRecord) *scan.Value[string] { return &r.Manufacturer }},
	{scan.FieldDeviceModel, func(r *scan.ScanRecord) *scan.Value[string] { return &r.DeviceModel }},
	{scan.FieldTracer, func(r *scan.ScanRecord) *scan.Value[string] { return &r.Radiopharmaceutical }},
	{scan.FieldReconstruction, func(r *scan.ScanRecord) *scan.Value[string] { return &r.Reconstruction }},
	{scan.FieldProcessingLabel, func(r *scan.ScanRecord) *scan.Value[string] { return &r.ProcessingLabel }},
}

// Normalizer coerces RawRecords into ScanRecords. Field-level problems are
// recorded as flags; only an unusable patient ID or tag fails the record.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize builds the ScanRecord for one document. Only fields present in
// raw (declared by the schema) are flagged when absent.
func (n *Normalizer) Normalize(source string, tag scan.Tag, raw scan.RawRecord) (scan.ScanRecord, error) {
	if tag == "" {
		return scan.ScanRecord{}, fmt.Errorf("normalize %q: empty scan type", source)
	}
	id := CleanText(raw[scan.FieldPatientID].Text)
	if id == "" {
		return scan.ScanRecord{}, &scan.MissingFieldError{Source: source, Field: scan.FieldPatientID}
	}

	rec := scan.ScanRecord{Source: source, Tag: tag, PatientID: id}
	b := &builder{rec: &rec, raw: raw}

	for _, rule := range numberRules {
		b.number(rule)
	}
	for _, rule := range intRules {
		b.integer(rule)
	}
	for _, rule := range enumRules {
		b.enum(rule)
	}
	for _, rule := range textRules {
		b.text(rule)
	}
	b.date()
	b.genotype()
	b.steps()

	return rec, nil
}

type builder struct {
	rec *scan.ScanRecord
	raw scan.RawRecord
}

func (b *builder) flag(field string, kind scan.FlagKind, raw string) {
	b.rec.Flags = append(b.rec.Flags, scan.Flag{Field: field, Kind: kind, Raw: raw})
}

// lookup returns the raw value and whether the schema declared the field.
// Declared-but-absent fields are flagged missing.
func (b *builder) lookup(field string) (scan.RawValue, bool) {
	v, declared := b.raw[field]
	if !declared {
		return v, false
	}
	if !v.Present {
		b.flag(field, scan.FlagMissing, "")
		return v, false
	}
	return v, true
}

func (b *builder) number(rule numberRule) {
	v, ok := b.lookup(rule.field)
	if !ok {
		return
	}
	f, ok := ParseNumber(v.Text)
	if !ok {
		b.flag(rule.field, scan.FlagMalformed, v.Text)
		return
	}
	*rule.value(b.rec) = scan.Of(f, v.Text)
	if f < rule.min || f > rule.max {
		b.flag(rule.field, scan.FlagOutOfRange, v.Text)
	}
}

func (b *builder) integer(rule intRule) {
	v, ok := b.lookup(rule.field)
	if !ok {
		return
	}
	i, ok := ParseInt(v.Text)
	if !ok {
		b.flag(rule.field, scan.FlagMalformed, v.Text)
		return
	}
	*rule.value(b.rec) = scan.Of(i, v.Text)
	if i < rule.min || i > rule.max {
		b.flag(rule.field, scan.FlagOutOfRange, v.Text)
	}
}

func (b *builder) enum(rule enumRule) {
	v, ok := b.lookup(rule.field)
	if !ok {
		return
	}
	if canonical, ok := rule.set.Match(v.Text); ok {
		*rule.value(b.rec) = scan.Of(canonical, v.Text)
		return
	}
	// Unmatched values are kept verbatim.
	*rule.value(b.rec) = scan.Of(v.Text, v.Text)
	b.flag(rule.field, scan.FlagNonCanonical, v.Text)
}

func (b *builder) text(rule textRule) {
	v, ok := b.lookup(rule.field)
	if !ok {
		return
	}
	*rule.value(b.rec) = scan.Of(CleanText(v.Text), v.Text)
}

func (b *builder) date() {
	v, ok := b.lookup(scan.FieldAcquisitionDate)
	if !ok {
		return
	}
	t, ok := ParseDate(v.Text)
	if !ok {
		b.flag(scan.FieldAcquisitionDate, scan.FlagMalformed, v.Text)
		return
	}
	b.rec.AcquisitionDate = scan.Of(t, v.Text)
}

// genotype combines the two APOE allele fields into "a/b" with the lower
// allele first. The flag is reported on the derived genotype field.
func (b *builder) genotype() {
	a1, declared1 := b.raw[scan.FieldAPOEA1]
	a2, declared2 := b.raw[scan.FieldAPOEA2]
	if !declared1 && !declared2 {
		return
	}
	if !a1.Present && !a2.Present {
		b.flag(scan.FieldAPOE, scan.FlagMissing, "")
		return
	}

	raw := strings.TrimSpace(a1.Text) + "/" + strings.TrimSpace(a2.Text)
	x, ok1 := allele(a1.Text)
	y, ok2 := allele(a2.Text)
	if !ok1 || !ok2 {
		b.rec.APOE = scan.Of(raw, raw)
		b.flag(scan.FieldAPOE, scan.FlagNonCanonical, raw)
		return
	}
	if x > y {
		x, y = y, x
	}
	candidate := strconv.Itoa(x) + "/" + strconv.Itoa(y)
	if canonical, ok := Genotypes.Match(candidate); ok {
		b.rec.APOE = scan.Of(canonical, raw)
		return
	}
	b.rec.APOE = scan.Of(candidate, raw)
	b.flag(scan.FieldAPOE, scan.FlagNonCanonical, raw)
}

// allele accepts "3", "E3", "e3" or "ε3".
func allele(s string) (int, bool) {
	s = strings.TrimLeft(strings.TrimSpace(CleanText(s)), "EeεΕ")
	return ParseInt(s)
}

func (b *builder) steps() {
	v, ok := b.lookup(scan.FieldProcessingSteps)
	if !ok {
		return
	}
	steps := v.Values
	if len(steps) == 0 {
		steps = []string{v.Text}
	}
	cleaned := make([]string, 0, len(steps))
	for _, s := range steps {
		if s = CleanText(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	b.rec.ProcessingSteps = scan.Of(cleaned, v.Text)
}
