package canonical

import (
	"strings"

	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

const (
	minHeaderCells      = 10
	minFixedMatches     = 4
	minCanonicalMetrics = 5
	headerScanRows      = 20
	minHeaderRowCells   = 5
)

// canonicalMetricLabels are header labels that only appear in canonical sheets.
var canonicalMetricLabels = map[string]bool{
	"Weight": true, "Handgrip": true, "ECOG": true, "MRD": true, "aMRD": true,
	"CEA": true, "HE4": true, "CA19-9": true, "CA125": true, "CA724": true, "AFP": true,
	"肺": true, "肝脏": true, "淋巴": true, "盆腔": true,
	"白细胞": true, "血小板": true, "中性粒细胞": true, "谷草转氨酶": true, "谷丙转氨酶": true,
	"ROMA绝经后指数": true, "ROMA绝经前指数": true,
}

// nonCanonicalLabels only appear in legacy or free-form exports.
var nonCanonicalLabels = map[string]bool{
	"Lab Result": true, "Tumor Burden": true, "Tumor Size": true, "Performance Status": true,
	"体重": true, "握力": true, "Date": true, "Phase": true, "Cycle": true, "Scheme": true, "Event": true,
}

// fixedLabelChecks are the positions compared against the canonical header.
var fixedLabelChecks = []struct {
	col   int
	label string
}{
	{ColDate, LabelDate},
	{ColPhase, LabelPhase},
	{ColCycle, LabelCycle},
	{ColScheme, LabelScheme},
	{ColEvent, LabelEvent},
	{ColSchemeDetail, LabelSchemeDetail},
}

// Report explains a detection decision signal by signal.
type Report struct {
	HeaderRow        int      `json:"header_row"`
	HeaderCells      int      `json:"header_cells"`
	FixedMatches     int      `json:"fixed_matches"`
	CanonicalMetrics int      `json:"canonical_metrics"`
	InvalidLabels    []string `json:"invalid_labels,omitempty"`
	UnitsMarker      bool     `json:"units_marker"`
	Canonical        bool     `json:"canonical"`
}

// Detect decides whether header/units rows are already in canonical layout.
// All conditions must hold: at least 10 header cells, 4 of the 6 fixed labels
// in place, 5 canonical metric labels, no legacy label, and a units-row marker.
func Detect(header, units sheet.Row) Report {
	r := Report{HeaderRow: -1, HeaderCells: len(header)}
	if len(header) < minHeaderCells {
		return r
	}

	cells := header.Strings()
	for _, chk := range fixedLabelChecks {
		if cells[chk.col] == chk.label {
			r.FixedMatches++
		}
	}
	for _, c := range cells {
		if canonicalMetricLabels[c] {
			r.CanonicalMetrics++
		}
		if nonCanonicalLabels[c] {
			r.InvalidLabels = append(r.InvalidLabels, c)
		}
	}

	r.UnitsMarker = units.At(ColDate).Trimmed() == UnitsMarker ||
		(units.At(ColCycle).Trimmed() == UnitsCurrentCycle && units.At(ColPrevCycle).Trimmed() == UnitsPreviousCycle)

	r.Canonical = r.FixedMatches >= minFixedMatches &&
		r.CanonicalMetrics >= minCanonicalMetrics &&
		len(r.InvalidLabels) == 0 &&
		r.UnitsMarker
	return r
}

// DetectMatrix checks the fixed canonical position first, then the row found
// by LocateHeaderRow with the row above it as units row.
func DetectMatrix(m sheet.Matrix) Report {
	if len(m) > HeaderRow {
		if r := Detect(m[HeaderRow], m[UnitsRow]); r.Canonical {
			r.HeaderRow = HeaderRow
			return r
		}
	}
	idx := LocateHeaderRow(m)
	r := Detect(m.Row(idx), m.Row(idx-1))
	r.HeaderRow = idx
	return r
}

var headerProbeLabels = []string{"Weight", "Handgrip", "CEA", "MRD", "AFP", "白细胞"}
var fixedProbeLabels = []string{LabelDate, LabelPhase, LabelCycle}

// LocateHeaderRow scans the first 20 rows for the header: a row with at least
// five cells whose text names a known metric or two fixed labels and that is
// not a units row. It falls back to row 0.
func LocateHeaderRow(m sheet.Matrix) int {
	limit := len(m)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		row := m[i]
		if len(row) < minHeaderRowCells {
			continue
		}
		cells := row.Strings()
		joined := strings.Join(cells, " ")

		hasMetric := false
		for _, p := range headerProbeLabels {
			if strings.Contains(joined, p) {
				hasMetric = true
				break
			}
		}
		if !hasMetric {
			for _, c := range cells {
				if canonicalMetricLabels[c] {
					hasMetric = true
					break
				}
			}
		}

		fixed := 0
		for _, p := range fixedProbeLabels {
			if strings.Contains(joined, p) {
				fixed++
			}
		}

		if (hasMetric || fixed >= 2) && !IsUnitsRow(row) {
			return i
		}
	}
	return 0
}
