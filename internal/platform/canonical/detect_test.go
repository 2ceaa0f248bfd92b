package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

func canonicalHeader() sheet.Row {
	return sheet.TextRow("子类", "项目", "周期", "x", "方案", "处置", "方案", "Weight", "CEA", "MRD", "CA125", "AFP")
}

func canonicalUnits() sheet.Row {
	return sheet.TextRow("日期\\单位", "", "", "", "", "", "", "KG", "<5", "", "<35", "<7")
}

func TestDetect_CanonicalScenario(t *testing.T) {
	r := Detect(canonicalHeader(), canonicalUnits())
	assert.True(t, r.Canonical)
	assert.Equal(t, 6, r.FixedMatches)
	assert.Equal(t, 5, r.CanonicalMetrics)
	assert.Empty(t, r.InvalidLabels)
	assert.True(t, r.UnitsMarker)
}

func TestDetect_ShortHeaderNeverCanonical(t *testing.T) {
	full := canonicalHeader()
	for n := 0; n < minHeaderCells; n++ {
		r := Detect(full[:n], canonicalUnits())
		assert.False(t, r.Canonical, "header of %d cells", n)
	}
	// Nine cells that would otherwise satisfy everything.
	nine := sheet.TextRow("子类", "项目", "周期", "方案", "Weight", "CEA", "MRD", "CA125", "AFP")
	assert.False(t, Detect(nine, canonicalUnits()).Canonical)
}

func TestDetect_EachConditionIsRequired(t *testing.T) {
	tests := []struct {
		name   string
		header sheet.Row
		units  sheet.Row
	}{
		{
			name:   "three fixed labels",
			header: sheet.TextRow("日期", "阶段", "周期", "", "方案", "处置", "备注", "Weight", "CEA", "MRD", "CA125", "AFP"),
			units:  canonicalUnits(),
		},
		{
			name:   "four canonical metrics",
			header: sheet.TextRow("子类", "项目", "周期", "", "方案", "处置", "方案", "Weight", "CEA", "MRD", "CA125", "铁蛋白"),
			units:  canonicalUnits(),
		},
		{
			name:   "legacy label present",
			header: sheet.TextRow("子类", "项目", "周期", "", "方案", "处置", "方案", "Weight", "CEA", "MRD", "CA125", "AFP", "Tumor Size"),
			units:  canonicalUnits(),
		},
		{
			name:   "no units marker",
			header: canonicalHeader(),
			units:  sheet.TextRow("日期", "", "", "", "", "", "", "KG", "<5"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Detect(tt.header, tt.units).Canonical)
		})
	}
}

func TestDetect_Thresholds(t *testing.T) {
	// Exactly four fixed labels is enough.
	header := sheet.TextRow("子类", "项目", "周期", "", "方案", "备注", "说明", "Weight", "CEA", "MRD", "CA125", "AFP")
	r := Detect(header, canonicalUnits())
	assert.Equal(t, 4, r.FixedMatches)
	assert.True(t, r.Canonical)

	// The cycle pair is an alternative units marker.
	units := sheet.TextRow("", "", "当下周期", "前序周期")
	assert.True(t, Detect(canonicalHeader(), units).Canonical)
}

func TestDetect_ChineseMetricLabelsCount(t *testing.T) {
	header := sheet.TextRow("子类", "项目", "周期", "", "方案", "处置", "方案", "白细胞", "血小板", "肝脏", "淋巴", "谷丙转氨酶")
	assert.True(t, Detect(header, canonicalUnits()).Canonical)
}

func TestDetectMatrix_FixedPosition(t *testing.T) {
	m := Template("张三", metric.Default())
	r := DetectMatrix(m)
	assert.True(t, r.Canonical)
	assert.Equal(t, HeaderRow, r.HeaderRow)
}

func TestDetectMatrix_ShiftedHeader(t *testing.T) {
	m := sheet.Matrix{
		sheet.TextRow("导出自随访系统"),
		nil,
		sheet.TextRow("张三 - 肿瘤病程周期表"),
		canonicalUnits(),
		canonicalHeader(),
	}
	r := DetectMatrix(m)
	assert.True(t, r.Canonical)
	assert.Equal(t, 4, r.HeaderRow)
}

func TestDetectMatrix_LegacyExport(t *testing.T) {
	m := sheet.Matrix{
		sheet.TextRow("Date", "Phase", "Cycle", "Scheme", "Event", "CEA", "Lab Result"),
		{sheet.Num(45000), sheet.Str("化疗"), sheet.Str("C1"), sheet.Str("FOLFOX"), sheet.Str(""), sheet.Num(3.2), sheet.Str("")},
	}
	r := DetectMatrix(m)
	assert.False(t, r.Canonical)
	assert.Equal(t, 0, r.HeaderRow)
}

func TestLocateHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		m    sheet.Matrix
		want int
	}{
		{
			name: "metric label",
			m: sheet.Matrix{
				sheet.TextRow("患者随访记录"),
				sheet.TextRow("日期", "方案", "备注", "体重", "CEA(ng/ml)"),
			},
			want: 1,
		},
		{
			name: "two fixed labels",
			m: sheet.Matrix{
				sheet.TextRow("a", "b", "c", "d", "e"),
				sheet.TextRow("子类", "项目", "x", "y", "z"),
			},
			want: 1,
		},
		{
			name: "units row skipped",
			m: sheet.Matrix{
				sheet.TextRow("日期\\单位", "", "KG", "<5", "CEA"),
				canonicalHeader(),
			},
			want: 1,
		},
		{
			name: "short rows skipped",
			m: sheet.Matrix{
				sheet.TextRow("CEA", "AFP"),
				sheet.TextRow("日期", "CEA", "AFP", "MRD", "Weight"),
			},
			want: 1,
		},
		{
			name: "nothing found",
			m: sheet.Matrix{
				sheet.TextRow("a", "b", "c", "d", "e"),
				sheet.TextRow("1", "2", "3", "4", "5"),
			},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocateHeaderRow(tt.m))
		})
	}
}

func TestLocateHeaderRow_OnlyFirstTwentyRows(t *testing.T) {
	m := make(sheet.Matrix, 25)
	m[22] = canonicalHeader()
	assert.Equal(t, 0, LocateHeaderRow(m))
}

func TestIsUnitsRow(t *testing.T) {
	assert.True(t, IsUnitsRow(sheet.TextRow("日期\\单位", "KG")))
	assert.True(t, IsUnitsRow(sheet.TextRow("", "<5", "mm")))
	assert.False(t, IsUnitsRow(sheet.TextRow("日期\\单位", "CEA")))
	assert.False(t, IsUnitsRow(nil))
}

func TestTemplate_Layout(t *testing.T) {
	dict := metric.Default()
	m := Template("李四", dict)
	require.Len(t, m, 3)

	assert.Equal(t, "李四 - 肿瘤病程周期表", m[TitleRow].At(0).String())
	assert.Equal(t, UnitsMarker, m[UnitsRow].At(ColDate).String())
	assert.Equal(t, UnitsCurrentCycle, m[UnitsRow].At(ColCycle).String())
	assert.Equal(t, UnitsPreviousCycle, m[UnitsRow].At(ColPrevCycle).String())

	header := m[HeaderRow].Strings()
	assert.Equal(t, FixedHeader, header[:FirstMetricCol])
	assert.Len(t, header, FirstMetricCol+len(dict.TemplateMetrics()))
	assert.Equal(t, "Weight", header[FirstMetricCol])
	assert.Equal(t, "KG", m[UnitsRow].At(FirstMetricCol).String())
}

func TestTitle_BlankName(t *testing.T) {
	assert.Equal(t, "未命名患者 - 肿瘤病程周期表", Title("  "))
}

func TestHeaderRowIndex(t *testing.T) {
	dict := metric.Default()
	assert.Equal(t, HeaderRow, HeaderRowIndex(Template("x", dict), dict))

	degraded := sheet.Matrix{
		sheet.TextRow("标题"),
		sheet.TextRow("日期", "", "", "", "", "", "", "CEA"),
	}
	assert.Equal(t, 1, HeaderRowIndex(degraded, dict))

	assert.Equal(t, -1, HeaderRowIndex(sheet.Matrix{sheet.TextRow("a", "b")}, dict))
}
