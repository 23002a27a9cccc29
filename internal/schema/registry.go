// SPDX-License-Identifier: Apache-2.0

// Package schema holds the per-scan-type field locator tables.
package schema

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/antchfx/xpath"

	"github.com/neuroarchive/adnimeta/internal/scan"
)

// Discriminators select the document text used to classify a document
// before falling back to its file name.
var Discriminators = []string{
	"//imagingProtocol/description",
	"//imagingProtocol//protocol[@term='Radiopharmaceutical']",
}

// Locators every schema starts with.
var (
	identity = []scan.FieldLocator{
		{Field: scan.FieldPatientID, XPath: "//subjectIdentifier", Required: true},
		{Field: scan.FieldModality, XPath: "//modality", Required: true},
		{Field: scan.FieldAcquisitionDate, XPath: "//dateAcquired"},
	}

	subject = []scan.FieldLocator{
		{Field: scan.FieldResearchGroup, XPath: "//researchGroup"},
		{Field: scan.FieldGender, XPath: "//subjectSex"},
		{Field: scan.FieldAge, XPath: "//subjectAge"},
		{Field: scan.FieldWeight, XPath: "//weightKg"},
		{Field: scan.FieldAPOEA1, XPath: "//subjectInfo[contains(@item,'APOE A1')]"},
		{Field: scan.FieldAPOEA2, XPath: "//subjectInfo[contains(@item,'APOE A2')]"},
		{Field: scan.FieldVisitType, XPath: "//visitIdentifier"},
		{Field: scan.FieldSeriesID, XPath: "//seriesIdentifier"},
	}

	clinical = []scan.FieldLocator{
		{Field: scan.FieldMMSE, XPath: "//assessment[contains(@name,'MMSE')]//assessmentScore[@attribute='MMSCORE']"},
		{Field: scan.FieldCDR, XPath: "//assessment[contains(@name,'CDR')]//assessmentScore[@attribute='CDGLOBAL']"},
		{Field: scan.FieldNPI, XPath: "//assessment[contains(@name,'NPI')]//assessmentScore[@attribute='NPISCORE']"},
		{Field: scan.FieldFAQ, XPath: "//assessment[contains(@name,'FAQ')]//assessmentScore[@attribute='FAQTOTAL']"},
	}

	processing = []scan.FieldLocator{
		{Field: scan.FieldProcessingLabel, XPath: "//processedDataLabel"},
		{Field: scan.FieldProcessingSteps, XPath: "//provenanceDetail", Each: []string{".//process", ".//program"}},
	}

	// scanner terms are recorded for both modalities.
	scanner = []scan.FieldLocator{
		{Field: scan.FieldManufacturer, XPath: "//imagingProtocol//protocol[@term='Manufacturer']"},
		{Field: scan.FieldDeviceModel, XPath: "//imagingProtocol//protocol[@term='Mfg Model']"},
	}

	mriProtocol = []scan.FieldLocator{
		{Field: scan.FieldTE, XPath: "//protocolTerm/protocol[@term='TE']"},
		{Field: scan.FieldTR, XPath: "//protocolTerm/protocol[@term='TR']"},
		{Field: scan.FieldSliceThickness, XPath: "//protocolTerm/protocol[@term='Slice Thickness']"},
		{Field: scan.FieldFlipAngle, XPath: "//protocolTerm/protocol[@term='Flip Angle']"},
		{Field: scan.FieldFieldStrength, XPath: "//protocolTerm/protocol[@term='Field Strength']"},
	}

	petProtocol = []scan.FieldLocator{
		{Field: scan.FieldTracer, XPath: "//imagingProtocol//protocol[@term='Radiopharmaceutical']"},
		{Field: scan.FieldRows, XPath: "//imagingProtocol//protocol[@term='Number of Rows']"},
		{Field: scan.FieldColumns, XPath: "//imagingProtocol//protocol[@term='Number of Columns']"},
		{Field: scan.FieldSlices, XPath: "//imagingProtocol//protocol[@term='Number of Slices']"},
		{Field: scan.FieldPixelSpacingX, XPath: "//imagingProtocol//protocol[@term='Pixel Spacing X']"},
		{Field: scan.FieldPixelSpacingY, XPath: "//imagingProtocol//protocol[@term='Pixel Spacing Y']"},
		{Field: scan.FieldReconstruction, XPath: "//imagingProtocol//protocol[@term='Reconstruction']"},
	}
)

func compose(groups ...[]scan.FieldLocator) []scan.FieldLocator {
	var out []scan.FieldLocator
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Generic is the minimal schema used for unclassified documents.
var Generic = compose(identity)

// Registry maps scan-type tags to their ordered field locators.
type Registry struct {
	mu      sync.RWMutex
	schemas map[scan.Tag][]scan.FieldLocator
}

// NewRegistry creates a Registry preloaded with the built-in MRI and PET
// schemas.
func NewRegistry() *Registry {
	mri := compose(identity, subject, clinical, scanner, mriProtocol, processing)
	pet := compose(identity, subject, clinical, scanner, petProtocol, processing)

	r := &Registry{schemas: make(map[scan.Tag][]scan.FieldLocator)}
	for _, tag := range []scan.Tag{scan.TagMPRAGE, scan.TagFLAIR, scan.TagDTI, scan.TagFMRI, scan.TagASL, scan.TagT2} {
		r.schemas[tag] = mri
	}
	for _, tag := range []scan.Tag{scan.TagFDG, scan.TagAV45, scan.TagFBB, scan.TagTau, scan.TagPETOther} {
		r.schemas[tag] = pet
	}
	r.schemas[scan.TagUnclassified] = Generic
	return r
}

// Lookup returns the locators for tag. Unknown tags get the generic schema.
func (r *Registry) Lookup(tag scan.Tag) []scan.FieldLocator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if locators, ok := r.schemas[tag]; ok {
		return locators
	}
	return Generic
}

// Has reports whether tag has its own schema.
func (r *Registry) Has(tag scan.Tag) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[tag]
	return ok
}

// Register adds or replaces the schema for tag. The schema must declare the
// patient ID and modality locators as required.
func (r *Registry) Register(tag scan.Tag, locators []scan.FieldLocator) error {
	if tag == "" {
		return fmt.Errorf("schema: empty scan type tag")
	}
	if err := validate(locators); err != nil {
		return fmt.Errorf("schema %q: %w", tag, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[tag] = slices.Clone(locators)
	return nil
}

// Extend registers tag with the schema of base followed by extra locators.
// Extra locators replace base locators of the same field.
func (r *Registry) Extend(tag, base scan.Tag, extra []scan.FieldLocator) error {
	merged := slices.Clone(r.Lookup(base))
	for _, loc := range extra {
		idx := slices.IndexFunc(merged, func(l scan.FieldLocator) bool { return l.Field == loc.Field })
		if idx >= 0 {
			merged[idx] = loc
			continue
		}
		merged = append(merged, loc)
	}
	return r.Register(tag, merged)
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []scan.Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]scan.Tag, 0, len(r.schemas))
	for tag := range r.schemas {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func validate(locators []scan.FieldLocator) error {
	seen := make(map[string]bool, len(locators))
	for _, loc := range locators {
		if loc.Field == "" || loc.XPath == "" {
			return fmt.Errorf("locator needs both field and xpath (field %q)", loc.Field)
		}
		for _, expr := range append([]string{loc.XPath}, loc.Each...) {
			if _, err := xpath.Compile(expr); err != nil {
				return fmt.Errorf("invalid xpath %q for field %q: %w", expr, loc.Field, err)
			}
		}
		if seen[loc.Field] {
			return fmt.Errorf("duplicate locator for field %q", loc.Field)
		}
		seen[loc.Field] = true
	}
	for _, field := range []string{scan.FieldPatientID, scan.FieldModality} {
		idx := slices.IndexFunc(locators, func(l scan.FieldLocator) bool { return l.Field == field })
		if idx < 0 || !locators[idx].Required {
			return fmt.Errorf("field %q must be declared required", field)
		}
	}
	return nil
}
