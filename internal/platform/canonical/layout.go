// Package canonical implements the fixed workbook layout every dataset is
// stored in: title row, units row, header row, then one row per visit.
//
//	row 0  "{patient} - 肿瘤病程周期表"
//	row 1  日期\单位 |      | 当下周期 | 前序周期 |      |      |      | unit hints...
//	row 2  子类      | 项目 | 周期     |          | 方案 | 处置 | 方案 | metric labels...
//	row 3+ data
package canonical

import (
	"strings"

	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

const (
	TitleRow     = 0
	UnitsRow     = 1
	HeaderRow    = 2
	DataStartRow = 3
)

const (
	ColDate = iota
	ColPhase
	ColCycle
	ColPrevCycle
	ColScheme
	ColEvent
	ColSchemeDetail
	FirstMetricCol
)

const (
	LabelDate         = "子类"
	LabelPhase        = "项目"
	LabelCycle        = "周期"
	LabelScheme       = "方案"
	LabelEvent        = "处置"
	LabelSchemeDetail = "方案"

	UnitsMarker        = "日期\\单位"
	UnitsCurrentCycle  = "当下周期"
	UnitsPreviousCycle = "前序周期"

	TitleSuffix = " - 肿瘤病程周期表"
)

// FixedHeader is the canonical header for columns 0..6.
var FixedHeader = []string{LabelDate, LabelPhase, LabelCycle, "", LabelScheme, LabelEvent, LabelSchemeDetail}

// roleColumns places each fixed role in the canonical sheet.
var roleColumns = map[mapping.Role]int{
	mapping.RolePhase:        ColPhase,
	mapping.RoleCycle:        ColCycle,
	mapping.RolePrevCycle:    ColPrevCycle,
	mapping.RoleScheme:       ColScheme,
	mapping.RoleEvent:        ColEvent,
	mapping.RoleSchemeDetail: ColSchemeDetail,
}

func Title(patientName string) string {
	name := strings.TrimSpace(patientName)
	if name == "" {
		name = "未命名患者"
	}
	return name + TitleSuffix
}

// MetricColumn is one metric column of a canonical sheet.
type MetricColumn struct {
	Label string
	Hint  string
}

// headerBlock builds rows 0..2 for the given metric columns.
func headerBlock(patientName string, metrics []MetricColumn) sheet.Matrix {
	width := FirstMetricCol + len(metrics)

	title := make(sheet.Row, 1)
	title[0] = sheet.Str(Title(patientName))

	units := make(sheet.Row, width)
	units[ColDate] = sheet.Str(UnitsMarker)
	units[ColCycle] = sheet.Str(UnitsCurrentCycle)
	units[ColPrevCycle] = sheet.Str(UnitsPreviousCycle)

	header := make(sheet.Row, width)
	for i, label := range FixedHeader {
		if label != "" {
			header[i] = sheet.Str(label)
		}
	}

	for i, mc := range metrics {
		if mc.Hint != "" {
			units[FirstMetricCol+i] = sheet.Str(mc.Hint)
		}
		header[FirstMetricCol+i] = sheet.Str(mc.Label)
	}
	return sheet.Matrix{title, units, header}
}

// unitTokens mark a units row rather than a header row.
var unitTokens = []string{UnitsMarker, "KG", "<", "mm"}

// IsUnitsRow reports whether at least two unit tokens appear in the row text.
func IsUnitsRow(row sheet.Row) bool {
	joined := strings.Join(row.Strings(), " ")
	n := 0
	for _, tok := range unitTokens {
		if strings.Contains(joined, tok) {
			n++
		}
	}
	return n >= 2
}
