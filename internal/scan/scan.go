// SPDX-License-Identifier: Apache-2.0

package scan

// Tag identifies the modality/sequence a source document belongs to.
type Tag string

const (
	TagMPRAGE       Tag = "MRI_MPRAGE"
	TagFLAIR        Tag = "MRI_FLAIR"
	TagDTI          Tag = "MRI_DTI"
	TagFMRI         Tag = "MRI_fMRI"
	TagASL          Tag = "MRI_ASL"
	TagT2           Tag = "MRI_T2"
	TagFDG          Tag = "PET_FDG"
	TagAV45         Tag = "PET_AV45"
	TagFBB          Tag = "PET_FBB"
	TagTau          Tag = "PET_TAU"
	TagPETOther     Tag = "PET_OTHER"
	TagUnclassified Tag = "Unclassified"
)

func (t Tag) String() string {
	return string(t)
}

// Logical field names shared by locators, raw records and flags.
const (
	FieldPatientID       = "patient_id"
	FieldResearchGroup   = "research_group"
	FieldGender          = "gender"
	FieldAge             = "age"
	FieldWeight          = "weight_kg"
	FieldAPOEA1          = "apoe_a1"
	FieldAPOEA2          = "apoe_a2"
	FieldVisitType       = "visit_type"
	FieldModality        = "modality"
	FieldAcquisitionDate = "scan_date"
	FieldSeriesID        = "series_id"
	FieldMMSE            = "mmse_score"
	FieldCDR             = "cdr_score"
	FieldNPI             = "npi_score"
	FieldFAQ             = "faq_score"
	FieldTE              = "te_ms"
	FieldTR              = "tr_ms"
	FieldSliceThickness  = "slice_thickness_mm"
	FieldFlipAngle       = "flip_angle"
	FieldManufacturer    = "manufacturer"
	FieldDeviceModel     = "device_model"
	FieldFieldStrength   = "field_strength_t"
	FieldTracer          = "radiopharmaceutical"
	FieldRows            = "num_rows"
	FieldColumns         = "num_columns"
	FieldSlices          = "num_slices"
	FieldPixelSpacingX   = "pixel_spacing_x"
	FieldPixelSpacingY   = "pixel_spacing_y"
	FieldReconstruction  = "reconstruction_method"
	FieldProcessingLabel = "processing_label"
	FieldProcessingSteps = "processing_steps"

	// FieldAPOE is derived from the two allele fields.
	FieldAPOE = "apoe_genotype"
)

// FieldLocator describes where a logical field lives in a source document.
type FieldLocator struct {
	Field    string `yaml:"field" json:"field" msgpack:"field"`
	XPath    string `yaml:"xpath" json:"xpath" msgpack:"xpath"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty" msgpack:"required"`
	// Each lists XPaths relative to every node XPath selects. When set the
	// field is multi-valued and each match renders as "first(rest...)".
	Each []string `yaml:"each,omitempty" json:"each,omitempty" msgpack:"each,omitempty"`
}

// RawValue is an untyped extracted value. Present is false for fields the
// schema declares but the document does not carry.
type RawValue struct {
	Present bool
	Text    string
	Values  []string
}

// RawRecord maps logical field names to their extracted values.
type RawRecord map[string]RawValue

// Get returns the raw value for field, or an absent value.
func (r RawRecord) Get(field string) (RawValue, bool) {
	v, ok := r[field]
	return v, ok
}

// Source is a single document location handed to the pipeline.
type Source struct {
	// Path identifies the document within its filesystem.
	Path string
	// Name is the base file name used for classification.
	Name string
	// Content, when non-nil, is used instead of reading Path.
	Content []byte
}
