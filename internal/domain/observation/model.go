package observation

import (
	"time"

	"github.com/google/uuid"

	"github.com/oncotracker/oncotracker/internal/platform/fhir"
)

const (
	CategoryTumorMarker = "tumor-marker"
	CategoryLaboratory  = "laboratory"

	StatusFinal = "final"
)

// Observation maps to the observations table. One row per (visit, metric)
// cell of a canonical dataset.
type Observation struct {
	ID                uuid.UUID `db:"id" json:"id"`
	PatientID         uuid.UUID `db:"patient_id" json:"patient_id"`
	EffectiveDatetime time.Time `db:"effective_datetime" json:"effective_datetime"`
	Category          string    `db:"category" json:"category"`
	Code              string    `db:"code" json:"code"`
	CodeDisplay       string    `db:"code_display" json:"code_display"`
	Status            string    `db:"status" json:"status"`
	ValueQuantity     *float64  `db:"value_quantity" json:"value_quantity"`
	ValueString       string    `db:"value_string" json:"value_string"`
	Unit              *string   `db:"unit" json:"unit,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// ListFilter narrows ListByPatient. Zero fields match everything.
type ListFilter struct {
	Code     string
	Category string
	From     *time.Time
	To       *time.Time
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var categoryDisplays = map[string]string{
	CategoryTumorMarker: "Tumor Marker",
	CategoryLaboratory:  "Laboratory",
}

// ToFHIR converts the observation to a FHIR R4 Observation. A non-numeric
// value is rendered as valueString.
func (o *Observation) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Observation",
		"id":           o.ID.String(),
		"status":       o.Status,
		"category": []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System:  "http://terminology.hl7.org/CodeSystem/observation-category",
				Code:    o.Category,
				Display: categoryDisplays[o.Category],
			}},
		}},
		"code": fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: o.Code, Display: o.CodeDisplay}},
			Text:   o.CodeDisplay,
		},
		"subject":           fhir.Reference{Reference: fhir.FormatReference("Patient", o.PatientID.String())},
		"effectiveDateTime": o.EffectiveDatetime.UTC().Format(time.RFC3339),
		"meta":              fhir.Meta{LastUpdated: o.CreatedAt},
	}
	if o.ValueQuantity != nil {
		result["valueQuantity"] = fhir.Quantity{
			Value:      *o.ValueQuantity,
			Comparator: comparator(o.ValueString),
			Unit:       strVal(o.Unit),
		}
	} else if o.ValueString != "" {
		result["valueString"] = o.ValueString
	}
	return result
}

// comparator returns the FHIR comparator for values such as "< 5".
func comparator(raw string) string {
	for _, c := range []string{"<=", ">=", "<", ">"} {
		if len(raw) >= len(c) && raw[:len(c)] == c {
			return c
		}
	}
	return ""
}
