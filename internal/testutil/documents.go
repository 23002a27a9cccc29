// SPDX-License-Identifier: Apache-2.0

// Package testutil builds metadata XML documents for tests.
package testutil

import (
	"bytes"
	"text/template"
)

// Doc describes a metadata document. Empty fields are left out of the XML.
type Doc struct {
	PatientID     string
	ResearchGroup string
	Sex           string
	Age           string
	Weight        string
	APOEA1        string
	APOEA2        string
	Visit         string
	SeriesID      string
	Modality      string
	Date          string
	Description   string

	MMSE string
	CDR  string

	TE            string
	TR            string
	FieldStrength string
	Manufacturer  string

	Tracer         string
	Reconstruction string

	Steps [][2]string
}

var docTemplate = template.Must(template.New("doc").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<idaxs>
  <project>
    <projectIdentifier>ADNI</projectIdentifier>
    <subject>
      {{- with .PatientID}}<subjectIdentifier>{{.}}</subjectIdentifier>{{end}}
      {{- with .ResearchGroup}}<researchGroup>{{.}}</researchGroup>{{end}}
      {{- with .Sex}}<subjectSex>{{.}}</subjectSex>{{end}}
      {{- with .APOEA1}}<subjectInfo item="APOE A1">{{.}}</subjectInfo>{{end}}
      {{- with .APOEA2}}<subjectInfo item="APOE A2">{{.}}</subjectInfo>{{end}}
      <visit>
        {{- with .Visit}}<visitIdentifier>{{.}}</visitIdentifier>{{end}}
        {{- with .MMSE}}
        <assessment name="MMSE"><component name="MMSE Total Score"><assessmentScore attribute="MMSCORE">{{.}}</assessmentScore></component></assessment>
        {{- end}}
        {{- with .CDR}}
        <assessment name="CDR"><component name="CDR Total Score"><assessmentScore attribute="CDGLOBAL">{{.}}</assessmentScore></component></assessment>
        {{- end}}
      </visit>
      <study>
        {{- with .Age}}<subjectAge>{{.}}</subjectAge>{{end}}
        {{- with .Weight}}<weightKg>{{.}}</weightKg>{{end}}
        <series>
          {{- with .SeriesID}}<seriesIdentifier>{{.}}</seriesIdentifier>{{end}}
          {{- with .Modality}}<modality>{{.}}</modality>{{end}}
          {{- with .Date}}<dateAcquired>{{.}}</dateAcquired>{{end}}
          <imagingProtocol>
            {{- with .Description}}<description>{{.}}</description>{{end}}
            <protocolTerm>
              {{- with .TE}}<protocol term="TE">{{.}}</protocol>{{end}}
              {{- with .TR}}<protocol term="TR">{{.}}</protocol>{{end}}
              {{- with .FieldStrength}}<protocol term="Field Strength">{{.}}</protocol>{{end}}
              {{- with .Manufacturer}}<protocol term="Manufacturer">{{.}}</protocol>{{end}}
              {{- with .Tracer}}<protocol term="Radiopharmaceutical">{{.}}</protocol>{{end}}
              {{- with .Reconstruction}}<protocol term="Reconstruction">{{.}}</protocol>{{end}}
            </protocolTerm>
          </imagingProtocol>
          {{- range .Steps}}
          <provenanceDetail><process>{{index . 0}}</process><program>{{index . 1}}</program></provenanceDetail>
          {{- end}}
        </series>
      </study>
    </subject>
  </project>
</idaxs>
`))

// XML renders the document.
func (d Doc) XML() []byte {
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, d); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// MRI returns a fully populated MPRAGE document for patientID.
func MRI(patientID, date string) Doc {
	return Doc{
		PatientID:     patientID,
		ResearchGroup: "CN",
		Sex:           "M",
		Age:           "74.3",
		Weight:        "81.6",
		APOEA1:        "3",
		APOEA2:        "4",
		Visit:         "ADNI Baseline",
		SeriesID:      "13408",
		Modality:      "MRI",
		Date:          date,
		Description:   "MPRAGE",
		MMSE:          "28",
		CDR:           "0.5",
		TE:            "3.6",
		TR:            "3000.0",
		FieldStrength: "1.5",
		Manufacturer:  "SIEMENS",
		Steps:         [][2]string{{"GradWarp", "GW"}, {"N3", "N3m"}},
	}
}

// PET returns a populated FDG PET document for patientID.
func PET(patientID, date string) Doc {
	return Doc{
		PatientID:      patientID,
		ResearchGroup:  "AD",
		Sex:            "F",
		Age:            "71.0",
		Visit:          "ADNI Screening",
		SeriesID:       "29113",
		Modality:       "PET",
		Date:           date,
		Description:    "ADNI Brain PET: Raw FDG",
		Tracer:         "18F-FDG",
		Reconstruction: "3D BACK PROJECTION",
	}
}
