package observation

import (
	"time"

	"github.com/google/uuid"

	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

// Extract turns a canonical matrix into observations, one per non-empty metric
// cell. Rows whose date cannot be read are skipped. IDs are assigned by the
// repository on insert.
func Extract(m sheet.Matrix, patientID uuid.UUID, dict *metric.Dictionary) []*Observation {
	headerRow := canonical.HeaderRowIndex(m, dict)
	if headerRow < 0 {
		return nil
	}
	labels := canonical.MetricColumns(m, headerRow)

	var out []*Observation
	for i := headerRow + 1; i < len(m); i++ {
		row := m[i]
		when, ok := sheet.NormalizeDate(row.At(canonical.ColDate))
		if !ok {
			continue
		}
		for j := canonical.FirstMetricCol; j < len(row); j++ {
			label, ok := labels[j]
			if !ok {
				continue
			}
			cell := row[j]
			if cell.IsEmpty() {
				continue
			}
			out = append(out, newObservation(patientID, when, label, cell, dict))
		}
	}
	return out
}

func newObservation(patientID uuid.UUID, when time.Time, label string, cell sheet.Cell, dict *metric.Dictionary) *Observation {
	o := &Observation{
		PatientID:         patientID,
		EffectiveDatetime: when,
		Category:          CategoryLaboratory,
		Code:              dict.CanonicalCode(label),
		CodeDisplay:       label,
		Status:            StatusFinal,
		ValueString:       cell.String(),
		ValueQuantity:     sheet.ParseQuantity(cell).Value,
	}
	if def, ok := dict.Lookup(label); ok {
		o.CodeDisplay = def.Display()
		if def.Category == metric.CategoryMolecular {
			o.Category = CategoryTumorMarker
		}
		if def.Unit != "" {
			unit := def.Unit
			o.Unit = &unit
		}
	}
	return o
}
