package canonical

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

func rawExport() sheet.Matrix {
	return sheet.Matrix{
		sheet.TextRow("随访记录导出"),
		sheet.TextRow("日期", "阶段", "周期", "方案", "备注", "癌胚抗原", "CA-125", "无关列"),
		{sheet.Num(45000), sheet.Str("化疗"), sheet.Str("C1"), sheet.Str("FOLFOX"), sheet.Str("入院"), sheet.Num(3.2), sheet.Str("< 5"), sheet.Str("x")},
		{},
		{sheet.Str("2023/04/05"), sheet.Str("化疗"), sheet.Str("C2"), sheet.Str(""), sheet.Str(""), sheet.Str(""), sheet.Num(40), sheet.Str("y")},
		{sheet.Str("待定"), sheet.Str(""), sheet.Str(""), sheet.Str(""), sheet.Str("复查"), sheet.Num(2.1)},
	}
}

func exportMapping(t *testing.T, edit func(*mapping.Manual)) *mapping.ColumnMapping {
	t.Helper()
	man := mapping.Manual{
		HeaderRow: 1,
		Date:      mapping.Named("日期"),
		Fixed: map[mapping.Role]mapping.SourceColumn{
			mapping.RolePhase:  mapping.Named("阶段"),
			mapping.RoleCycle:  mapping.Named("周期"),
			mapping.RoleScheme: mapping.Named("方案"),
		},
		Metrics: []mapping.MetricColumn{
			{Source: mapping.Named("癌胚抗原"), Code: "CEA"},
			{Source: mapping.Named("CA-125"), Code: "CA125"},
		},
		Events: []mapping.SourceColumn{mapping.Named("备注")},
	}
	if edit != nil {
		edit(&man)
	}
	m, err := mapping.New(man, metric.Default())
	require.NoError(t, err)
	return m
}

func TestTransform_Success(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, nil), "王五")
	require.True(t, res.Success, res.Errors)
	require.NoError(t, res.Error())

	out := res.Data
	require.Len(t, out, DataStartRow+3)
	assert.Equal(t, "王五 - 肿瘤病程周期表", out[TitleRow].At(0).String())
	assert.Equal(t, []string{"CEA", "CA125"}, out[HeaderRow].Strings()[FirstMetricCol:])
	assert.Equal(t, "ng/mL <5", out[UnitsRow].At(FirstMetricCol).String())

	first := out[DataStartRow]
	assert.Equal(t, sheet.Num(45000), first.At(ColDate))
	assert.Equal(t, "化疗", first.At(ColPhase).String())
	assert.Equal(t, "C1", first.At(ColCycle).String())
	assert.Equal(t, "FOLFOX", first.At(ColScheme).String())
	assert.Equal(t, "入院", first.At(ColEvent).String())
	assert.Equal(t, sheet.Num(3.2), first.At(FirstMetricCol))
	assert.Equal(t, "< 5", first.At(FirstMetricCol+1).String())
	assert.Len(t, first, FirstMetricCol+2, "unmapped columns are dropped")

	// The row with an unreadable date is kept and reported.
	last := out[DataStartRow+2]
	assert.Equal(t, "待定", last.At(ColDate).String())
	assert.Equal(t, "复查", last.At(ColEvent).String())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "1 row(s)")
}

func TestTransform_OutputIsCanonical(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, func(m *mapping.Manual) {
		m.Metrics = append(m.Metrics,
			mapping.MetricColumn{Source: mapping.Column(5, ""), Code: "MRD"},
			mapping.MetricColumn{Source: mapping.Column(5, ""), Code: "AFP"},
			mapping.MetricColumn{Source: mapping.Column(5, ""), Code: "WEIGHT"},
		)
	}), "p")
	require.True(t, res.Success)

	// Transformer output feeds straight back into detection.
	r := DetectMatrix(res.Data)
	assert.True(t, r.Canonical, "%+v", r)
}

func TestTransform_DateColumnUnresolved(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, func(m *mapping.Manual) {
		m.Date = mapping.Named("就诊日期")
	}), "p")

	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.Errors)
	assert.True(t, errors.Is(res.Error(), ErrDateColumnUnresolved))
}

func TestTransform_DateColumnByIndex(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, func(m *mapping.Manual) {
		m.Date = mapping.Column(0, "不存在的列名")
	}), "p")
	require.True(t, res.Success)
	assert.Equal(t, sheet.Num(45000), res.Data[DataStartRow].At(ColDate))
}

func TestTransform_IndexOutsideSheet(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, func(m *mapping.Manual) {
		m.Date = mapping.Column(99, "")
	}), "p")
	assert.True(t, errors.Is(res.Error(), ErrDateColumnUnresolved))
}

func TestTransform_NoMetrics(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, func(m *mapping.Manual) {
		m.Metrics = []mapping.MetricColumn{{Source: mapping.Named("铁蛋白"), Code: "铁蛋白"}}
	}), "p")

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Error(), ErrNoMetrics))
}

func TestTransform_PartialMetricsWarn(t *testing.T) {
	tr := NewTransformer(metric.Default())
	res := tr.Transform(rawExport(), exportMapping(t, func(m *mapping.Manual) {
		m.Metrics = append(m.Metrics, mapping.MetricColumn{Source: mapping.Named("铁蛋白"), Code: "AFP"})
	}), "p")

	require.True(t, res.Success)
	assert.Equal(t, []string{"CEA", "CA125"}, res.Data[HeaderRow].Strings()[FirstMetricCol:])
	assert.Contains(t, res.Warnings[0], "AFP")
}

func TestTransform_DuplicateMetricsMerge(t *testing.T) {
	raw := sheet.Matrix{
		sheet.TextRow("日期", "CEA", "癌胚抗原"),
		{sheet.Num(45000), sheet.Num(1.5), sheet.Num(9)},
		{sheet.Num(45001), sheet.Str(""), sheet.Num(2.5)},
	}
	m, err := mapping.New(mapping.Manual{
		Date: mapping.Column(0, ""),
		Metrics: []mapping.MetricColumn{
			{Source: mapping.Column(1, ""), Code: "CEA"},
			{Source: mapping.Column(2, ""), Code: "癌胚抗原"},
		},
	}, metric.Default())
	require.NoError(t, err)

	res := NewTransformer(metric.Default()).Transform(raw, m, "p")
	require.True(t, res.Success)
	assert.Equal(t, []string{"CEA"}, res.Data[HeaderRow].Strings()[FirstMetricCol:])
	assert.Equal(t, sheet.Num(1.5), res.Data[DataStartRow].At(FirstMetricCol))
	assert.Equal(t, sheet.Num(2.5), res.Data[DataStartRow+1].At(FirstMetricCol))
}

func TestTransform_UnknownMetricKeepsRawLabel(t *testing.T) {
	raw := sheet.Matrix{
		sheet.TextRow("日期", "铁蛋白"),
		{sheet.Num(45000), sheet.Num(120)},
	}
	m, err := mapping.New(mapping.Manual{
		Date:    mapping.Column(0, ""),
		Metrics: []mapping.MetricColumn{{Source: mapping.Named("铁蛋白"), Code: "铁蛋白"}},
	}, metric.Default())
	require.NoError(t, err)

	res := NewTransformer(metric.Default()).Transform(raw, m, "p")
	require.True(t, res.Success)
	assert.Equal(t, "铁蛋白", res.Data[HeaderRow].At(FirstMetricCol).String())
	assert.True(t, res.Data[UnitsRow].At(FirstMetricCol).IsEmpty())
}

func TestTransform_EventsJoinAndSkipUsedColumns(t *testing.T) {
	raw := sheet.Matrix{
		sheet.TextRow("日期", "处置", "备注", "CEA"),
		sheet.TextRow("2024-01-02", "手术", "术后复查", "3"),
	}
	m, err := mapping.New(mapping.Manual{
		Date: mapping.Column(0, ""),
		Fixed: map[mapping.Role]mapping.SourceColumn{
			mapping.RoleEvent: mapping.Named("处置"),
		},
		Metrics: []mapping.MetricColumn{{Source: mapping.Named("CEA"), Code: "CEA"}},
		Events:  []mapping.SourceColumn{mapping.Named("处置"), mapping.Named("日期"), mapping.Named("备注")},
	}, metric.Default())
	require.NoError(t, err)

	res := NewTransformer(metric.Default()).Transform(raw, m, "p")
	require.True(t, res.Success)
	assert.Equal(t, "手术；术后复查", res.Data[DataStartRow].At(ColEvent).String())
}

func TestTransform_SkipsUnitsRows(t *testing.T) {
	raw := sheet.Matrix{
		sheet.TextRow("日期", "CEA", "体重"),
		sheet.TextRow("日期\\单位", "<5", "KG"),
		sheet.TextRow("2024-01-02", "3", "60"),
	}
	m, err := mapping.New(mapping.Manual{
		Date:    mapping.Column(0, ""),
		Metrics: []mapping.MetricColumn{{Source: mapping.Column(1, ""), Code: "CEA"}},
	}, metric.Default())
	require.NoError(t, err)

	res := NewTransformer(metric.Default()).Transform(raw, m, "p")
	require.True(t, res.Success)
	require.Len(t, res.Data, DataStartRow+1)
	assert.Empty(t, res.Warnings)
}

func TestTransform_KeepsDatedRowsThatLookLikeUnits(t *testing.T) {
	raw := sheet.Matrix{
		sheet.TextRow("日期", "备注", "CEA"),
		sheet.TextRow("2024-01-01", "体重下降2KG", "<5"),
		sheet.TextRow("2024-02-01", "肿瘤缩小至12mm", "<5"),
		sheet.TextRow("2024-03-01", "", "3"),
	}
	m, err := mapping.New(mapping.Manual{
		Date:    mapping.Named("日期"),
		Metrics: []mapping.MetricColumn{{Source: mapping.Named("CEA"), Code: "CEA"}},
		Events:  []mapping.SourceColumn{mapping.Named("备注")},
	}, metric.Default())
	require.NoError(t, err)

	res := NewTransformer(metric.Default()).Transform(raw, m, "p")
	require.True(t, res.Success)
	require.Len(t, res.Data, DataStartRow+3)
	assert.Empty(t, res.Warnings)
	first := res.Data[DataStartRow]
	assert.Equal(t, "2024-01-01", first.At(ColDate).String())
	assert.Equal(t, "体重下降2KG", first.At(ColEvent).String())
	assert.Equal(t, "<5", first.At(FirstMetricCol).String())
	assert.Equal(t, "肿瘤缩小至12mm", res.Data[DataStartRow+1].At(ColEvent).String())
}

func TestTransform_NilMapping(t *testing.T) {
	res := NewTransformer(metric.Default()).Transform(rawExport(), nil, "p")
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Error(), mapping.ErrInvalidMapping))
}
