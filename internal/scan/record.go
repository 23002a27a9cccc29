// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"fmt"
	"strings"
	"time"
)

// Value is a typed field that may be missing. Raw keeps the source text so
// flagged values can be inspected downstream.
type Value[T any] struct {
	Val     T      `msgpack:"val"`
	Present bool   `msgpack:"present"`
	Raw     string `msgpack:"raw,omitempty"`
}

// Of returns a present value.
func Of[T any](v T, raw string) Value[T] {
	return Value[T]{Val: v, Present: true, Raw: raw}
}

// cell returns the value for tabular output, nil when missing.
func (v Value[T]) cell() any {
	if !v.Present {
		return nil
	}
	return v.Val
}

// FlagKind classifies why a field failed its checks.
type FlagKind string

const (
	FlagMissing      FlagKind = "missing"
	FlagMalformed    FlagKind = "malformed"
	FlagOutOfRange   FlagKind = "out-of-range"
	FlagNonCanonical FlagKind = "non-canonical"
)

// Flag marks a field whose value is absent or failed a range/type check.
type Flag struct {
	Field string   `msgpack:"field"`
	Kind  FlagKind `msgpack:"kind"`
	Raw   string   `msgpack:"raw,omitempty"`
}

func (f Flag) String() string {
	if f.Raw == "" {
		return f.Field + ":" + string(f.Kind)
	}
	return fmt.Sprintf("%s:%s(%q)", f.Field, f.Kind, f.Raw)
}

// ScanRecord is the normalized output unit for one source document.
// PatientID and Tag are always set.
type ScanRecord struct {
	Source    string `msgpack:"source"`
	Tag       Tag    `msgpack:"tag"`
	PatientID string `msgpack:"patient_id"`

	ResearchGroup Value[string]  `msgpack:"research_group"`
	Gender        Value[string]  `msgpack:"gender"`
	Age           Value[float64] `msgpack:"age"`
	WeightKg      Value[float64] `msgpack:"weight_kg"`
	APOE          Value[string]  `msgpack:"apoe"`

	MMSE Value[float64] `msgpack:"mmse"`
	CDR  Value[float64] `msgpack:"cdr"`
	NPI  Value[float64] `msgpack:"npi"`
	FAQ  Value[float64] `msgpack:"faq"`

	AcquisitionDate Value[time.Time] `msgpack:"acquisition_date"`
	Modality        Value[string]    `msgpack:"modality"`
	SeriesID        Value[string]    `msgpack:"series_id"`
	VisitType       Value[string]    `msgpack:"visit_type"`

	TR             Value[float64] `msgpack:"tr"`
	TE             Value[float64] `msgpack:"te"`
	SliceThickness Value[float64] `msgpack:"slice_thickness"`
	FlipAngle      Value[float64] `msgpack:"flip_angle"`
	FieldStrength  Value[float64] `msgpack:"field_strength"`
	Manufacturer   Value[string]  `msgpack:"manufacturer"`
	DeviceModel    Value[string]  `msgpack:"device_model"`

	Radiopharmaceutical Value[string]  `msgpack:"radiopharmaceutical"`
	Rows                Value[int]     `msgpack:"rows"`
	Columns             Value[int]     `msgpack:"columns"`
	Slices              Value[int]     `msgpack:"slices"`
	PixelSpacingX       Value[float64] `msgpack:"pixel_spacing_x"`
	PixelSpacingY       Value[float64] `msgpack:"pixel_spacing_y"`

	Reconstruction  Value[string]   `msgpack:"reconstruction"`
	ProcessingLabel Value[string]   `msgpack:"processing_label"`
	ProcessingSteps Value[[]string] `msgpack:"processing_steps"`

	Flags []Flag `msgpack:"flags,omitempty"`
}

// Flag returns the flag recorded for field, if any.
func (r *ScanRecord) Flag(field string) (Flag, bool) {
	for _, f := range r.Flags {
		if f.Field == field {
			return f, true
		}
	}
	return Flag{}, false
}

// Valid reports whether field passed every check.
func (r *ScanRecord) Valid(field string) bool {
	_, flagged := r.Flag(field)
	return !flagged
}

// ColumnNames is the column layout shared by every tabular sink.
var ColumnNames = []string{
	"filename", "scan_type", "subject_id",
	FieldResearchGroup, FieldGender, FieldAge, FieldWeight, FieldAPOE,
	FieldVisitType, FieldModality, FieldAcquisitionDate, FieldSeriesID,
	FieldMMSE, FieldCDR, FieldNPI, FieldFAQ,
	FieldTE, FieldTR, FieldSliceThickness, FieldFlipAngle,
	FieldManufacturer, FieldDeviceModel, FieldFieldStrength,
	FieldTracer, FieldRows, FieldColumns, FieldSlices,
	FieldPixelSpacingX, FieldPixelSpacingY, FieldReconstruction,
	FieldProcessingLabel, FieldProcessingSteps,
	"flags",
}

// Row renders the record in ColumnNames order. Missing values are nil.
func (r *ScanRecord) Row() []any {
	var date any
	if r.AcquisitionDate.Present {
		date = r.AcquisitionDate.Val.Format(time.DateOnly)
	}
	var steps any
	if r.ProcessingSteps.Present {
		steps = strings.Join(r.ProcessingSteps.Val, "; ")
	}
	var flags any
	if len(r.Flags) > 0 {
		parts := make([]string, len(r.Flags))
		for i, f := range r.Flags {
			parts[i] = f.String()
		}
		flags = strings.Join(parts, ", ")
	}

	return []any{
		r.Source, string(r.Tag), r.PatientID,
		r.ResearchGroup.cell(), r.Gender.cell(), r.Age.cell(), r.WeightKg.cell(), r.APOE.cell(),
		r.VisitType.cell(), r.Modality.cell(), date, r.SeriesID.cell(),
		r.MMSE.cell(), r.CDR.cell(), r.NPI.cell(), r.FAQ.cell(),
		r.TE.cell(), r.TR.cell(), r.SliceThickness.cell(), r.FlipAngle.cell(),
		r.Manufacturer.cell(), r.DeviceModel.cell(), r.FieldStrength.cell(),
		r.Radiopharmaceutical.cell(), r.Rows.cell(), r.Columns.cell(), r.Slices.cell(),
		r.PixelSpacingX.cell(), r.PixelSpacingY.cell(), r.Reconstruction.cell(),
		r.ProcessingLabel.cell(), steps,
		flags,
	}
}
