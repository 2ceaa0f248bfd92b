package timeline

import (
	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

// preferredMetrics are switched on by default when present.
var preferredMetrics = map[string]bool{
	"WEIGHT": true, "CEA": true, "CA125": true, "MRD": true, "AFP": true, "CYFRA21-1": true,
}

const fallbackActive = 5

// buildSeries collects numeric readings per metric label. Columns that share a
// label feed one series; threshold and unit come from the first such column.
func buildSeries(m sheet.Matrix, headerRow int, vs []visit, dict *metric.Dictionary) ([]*Series, int) {
	units := m.Row(headerRow - 1)

	cols := canonical.MetricColumns(m, headerRow)
	byName := map[string]*Series{}
	var ordered []*Series
	colSeries := make(map[int]*Series, len(cols))
	for j := canonical.FirstMetricCol; j < len(m.Row(headerRow)); j++ {
		name, ok := cols[j]
		if !ok {
			continue
		}
		s, ok := byName[name]
		if !ok {
			s = &Series{Name: name, Code: dict.CanonicalCode(name), Points: []Point{}}
			if hint := units.At(j).Trimmed(); hint != "" {
				s.Unit = hint
				if th, ok := sheet.ParseThreshold(hint); ok {
					s.Threshold = &th
				}
			}
			byName[name] = s
			ordered = append(ordered, s)
		}
		colSeries[j] = s
	}

	total := 0
	for _, v := range vs {
		for j := canonical.FirstMetricCol; j < len(v.row); j++ {
			s, ok := colSeries[j]
			if !ok || v.row[j].IsEmpty() {
				continue
			}
			q := sheet.ParseQuantity(v.row[j])
			if q.Value == nil {
				continue
			}
			val := *q.Value
			s.Points = append(s.Points, Point{
				Date:  v.date,
				Value: val,
				Alert: s.Threshold != nil && val > *s.Threshold,
			})
			total++
		}
	}

	active := 0
	for _, s := range ordered {
		for i, p := range s.Points {
			if i == 0 || p.Value < s.RangeMin {
				s.RangeMin = p.Value
			}
			if i == 0 || p.Value > s.RangeMax {
				s.RangeMax = p.Value
			}
		}
		if preferredMetrics[s.Code] {
			s.Active = true
			active++
		}
	}
	if active == 0 {
		for i := 0; i < len(ordered) && i < fallbackActive; i++ {
			ordered[i].Active = true
		}
	}
	return ordered, total
}
