package canonical

import (
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

// Template is an empty canonical sheet with the dictionary's template metrics.
func Template(patientName string, dict *metric.Dictionary) sheet.Matrix {
	defs := dict.TemplateMetrics()
	cols := make([]MetricColumn, len(defs))
	for i, d := range defs {
		cols[i] = MetricColumn{Label: d.Header, Hint: d.UnitHint()}
	}
	return headerBlock(patientName, cols)
}

// HeaderRowIndex finds the header of a canonical sheet: the first row whose
// first cell is 子类, else the first row naming a known metric. -1 if neither.
func HeaderRowIndex(m sheet.Matrix, dict *metric.Dictionary) int {
	for i, row := range m {
		if row.At(ColDate).Trimmed() == LabelDate {
			return i
		}
	}
	for i, row := range m {
		if IsUnitsRow(row) {
			continue
		}
		for _, c := range row {
			if dict.IsKnown(c.Trimmed()) {
				return i
			}
		}
	}
	return -1
}

// MetricColumns lists the metric labels of a canonical sheet keyed by column.
func MetricColumns(m sheet.Matrix, headerRow int) map[int]string {
	out := map[int]string{}
	for j, c := range m.Row(headerRow) {
		if j < FirstMetricCol {
			continue
		}
		if s := c.Trimmed(); s != "" {
			out[j] = s
		}
	}
	return out
}
