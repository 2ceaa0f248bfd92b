package observation

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oncotracker/oncotracker/internal/platform/fhir"
)

func TestObservationToFHIR_Quantity(t *testing.T) {
	v := 5.0
	unit := "ng/mL"
	o := &Observation{
		ID:                uuid.New(),
		PatientID:         uuid.New(),
		EffectiveDatetime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Category:          CategoryTumorMarker,
		Code:              "CEA",
		CodeDisplay:       "癌胚抗原",
		Status:            StatusFinal,
		ValueQuantity:     &v,
		ValueString:       "< 5",
		Unit:              &unit,
	}
	res := o.ToFHIR()

	if res["resourceType"] != "Observation" {
		t.Errorf("expected Observation, got %v", res["resourceType"])
	}
	if res["effectiveDateTime"] != "2024-01-02T00:00:00Z" {
		t.Errorf("unexpected effectiveDateTime %v", res["effectiveDateTime"])
	}
	q, ok := res["valueQuantity"].(fhir.Quantity)
	if !ok {
		t.Fatalf("expected valueQuantity, got %T", res["valueQuantity"])
	}
	if q.Value != 5 || q.Comparator != "<" || q.Unit != "ng/mL" {
		t.Errorf("unexpected quantity %+v", q)
	}
	if _, ok := res["valueString"]; ok {
		t.Error("valueString should be omitted when a quantity is present")
	}
	subj := res["subject"].(fhir.Reference)
	if subj.Reference != "Patient/"+o.PatientID.String() {
		t.Errorf("unexpected subject %s", subj.Reference)
	}
}

func TestObservationToFHIR_Text(t *testing.T) {
	o := &Observation{ID: uuid.New(), PatientID: uuid.New(), Category: CategoryLaboratory, ValueString: "阴性"}
	res := o.ToFHIR()
	if res["valueString"] != "阴性" {
		t.Errorf("expected valueString, got %v", res["valueString"])
	}
	if _, ok := res["valueQuantity"]; ok {
		t.Error("valueQuantity should be omitted for text values")
	}
}

func TestComparator(t *testing.T) {
	cases := map[string]string{"< 5": "<", ">=10": ">=", "5": "", "": "", "<=1": "<="}
	for in, want := range cases {
		if got := comparator(in); got != want {
			t.Errorf("comparator(%q) = %q, want %q", in, got, want)
		}
	}
}
