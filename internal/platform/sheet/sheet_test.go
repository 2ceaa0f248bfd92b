package sheet

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func TestCell_StringAndEmpty(t *testing.T) {
	assert.Equal(t, "5", Num(5).String())
	assert.Equal(t, "12.5", Num(12.5).String())
	assert.Equal(t, "", Cell{}.String())
	assert.True(t, Cell{}.IsEmpty())
	assert.True(t, Str("   ").IsEmpty())
	assert.False(t, Num(0).IsEmpty())
	assert.Equal(t, "CEA", Str("  CEA ").Trimmed())
}

func TestCell_JSON(t *testing.T) {
	row := Row{Num(1.5), Str("C1"), {}}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5,"C1",null]`, string(data))

	var back Row
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, row, back)
}

func TestRow_At(t *testing.T) {
	r := Row{Str("a")}
	assert.Equal(t, Str("a"), r.At(0))
	assert.True(t, r.At(5).IsEmpty())
	assert.True(t, r.At(-1).IsEmpty())
}

func TestWorkbook_RoundTrip(t *testing.T) {
	m := Matrix{
		TextRow("张三 - 肿瘤病程周期表"),
		{Str("日期\\单位"), {}, Str("当下周期")},
		TextRow("子类", "项目", "周期", "", "方案", "处置", "方案", "CEA"),
		{Num(45000), Str("化疗"), Str("C1"), {}, Str("AC"), {}, {}, Str("< 5")},
		{Num(45021.5), {}, Str("C2"), {}, {}, Str("CT"), {}, Num(3.2)},
		{Str("0012"), Str("12")},
	}

	data, err := WriteXLSX(m, "")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	back, err := ReadXLSX(data)
	require.NoError(t, err)
	require.Len(t, back, len(m))

	assert.Equal(t, "张三 - 肿瘤病程周期表", back[0].At(0).Text)
	assert.Equal(t, KindNumber, back[3].At(0).Kind)
	assert.Equal(t, 45000.0, back[3].At(0).Num)
	assert.Equal(t, 45021.5, back[4].At(0).Num)
	assert.Equal(t, Str("< 5"), back[3].At(7))
	assert.Equal(t, Num(3.2), back[4].At(7))
	assert.True(t, back[3].At(3).IsEmpty())
	// Numeric-looking text stays text.
	assert.Equal(t, Str("0012"), back[5].At(0))
	assert.Equal(t, Str("12"), back[5].At(1))
}

func TestReadXLSX_Garbage(t *testing.T) {
	_, err := ReadXLSX([]byte("not a workbook"))
	assert.Error(t, err)
}

func TestDate_SerialRoundTrip(t *testing.T) {
	for _, v := range []float64{1, 25569, 43831, 45000, 45000.25, 45678.999988426, 140000, 150000, 2958465} {
		got, ok := FromSerial(v)
		require.True(t, ok)
		back := ToSerial(got)
		assert.InDelta(t, v, back, 1.0/86400, "serial %v", v)
	}
}

func TestDate_SerialRange(t *testing.T) {
	got, ok := FromSerial(2958465)
	require.True(t, ok)
	assert.Equal(t, "9999-12-31T00:00:00.000Z", FormatISO(got))

	got, ok = FromSerial(150000)
	require.True(t, ok)
	assert.Equal(t, 2310, got.Year())

	for _, v := range []float64{-1, 2958466, 2958466.5, 1e12, math.Inf(1), math.Inf(-1), math.NaN()} {
		_, ok := FromSerial(v)
		assert.False(t, ok, "serial %v", v)
	}
	_, ok = NormalizeDate(Num(3e6))
	assert.False(t, ok)
}

func TestDate_KnownSerials(t *testing.T) {
	got, ok := NormalizeDate(Num(25569))
	require.True(t, ok)
	assert.Equal(t, "1970-01-01T00:00:00.000Z", FormatISO(got))

	got, ok = NormalizeDate(Num(45000))
	require.True(t, ok)
	assert.Equal(t, "2023-03-15T00:00:00.000Z", FormatISO(got))

	got, ok = NormalizeDate(Num(45000.5))
	require.True(t, ok)
	assert.Equal(t, "2023-03-15T12:00:00.000Z", FormatISO(got))
}

func TestDate_Text(t *testing.T) {
	cases := map[string]string{
		"2024-03-05":       "2024-03-05T00:00:00.000Z",
		"2024/03/05":       "2024-03-05T00:00:00.000Z",
		"2024-03-05 08:30": "2024-03-05T08:30:00.000Z",
		"2024年03月05日":      "2024-03-05T00:00:00.000Z",
		"45000":            "2023-03-15T00:00:00.000Z",
	}
	for in, want := range cases {
		got, ok := NormalizeDate(Str(in))
		require.True(t, ok, in)
		assert.Equal(t, want, FormatISO(got), in)
	}
}

func TestDate_NoDate(t *testing.T) {
	for _, c := range []Cell{{}, Str(""), Str("  "), Str("not a date"), Str("日期\\单位"), Num(math.NaN()), Num(math.Inf(1))} {
		_, ok := NormalizeDate(c)
		assert.False(t, ok, "%#v", c)
	}
}

func TestDate_IsUTC(t *testing.T) {
	got, ok := NormalizeDate(Str("2024-03-05"))
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
}

func TestParseQuantity(t *testing.T) {
	cases := []struct {
		in    Cell
		value *float64
		text  string
	}{
		{Str("< 5"), ptr(5), "< 5"},
		{Str(">1,200.5"), ptr(1200.5), ">1,200.5"},
		{Str("≤0.3"), ptr(0.3), "≤0.3"},
		{Str("12.4 ng/mL"), ptr(12.4), "12.4 ng/mL"},
		{Num(7), ptr(7), "7"},
		{Str("阴性"), nil, "阴性"},
		{Str(""), nil, ""},
	}
	for _, tc := range cases {
		q := ParseQuantity(tc.in)
		assert.Equal(t, tc.text, q.Text)
		if tc.value == nil {
			assert.Nil(t, q.Value, tc.text)
			continue
		}
		require.NotNil(t, q.Value, tc.text)
		assert.Equal(t, *tc.value, *q.Value, tc.text)
	}
}

func TestParseThreshold(t *testing.T) {
	v, ok := ParseThreshold("ng/mL <5")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	v, ok = ParseThreshold("> 37.5")
	require.True(t, ok)
	assert.Equal(t, 37.5, v)

	_, ok = ParseThreshold("KG")
	assert.False(t, ok)
}

func TestFromJSON_Objects(t *testing.T) {
	m, err := FromJSON([]byte(`[
		{"子类": 45000, "项目": "化疗", "CEA": "< 5"},
		{"子类": "2023-04-01", "CEA": 3.1, "CA125": 20}
	]`))
	require.NoError(t, err)
	require.Len(t, m, HeaderPadding+3)

	assert.True(t, m[0].IsBlank())
	assert.True(t, m[1].IsBlank())
	assert.Equal(t, []string{"子类", "项目", "CEA"}, m[2].Strings())
	assert.Equal(t, Num(45000), m[3].At(0))
	assert.Equal(t, Str("< 5"), m[3].At(2))
	assert.Equal(t, Num(3.1), m[4].At(2))
	assert.True(t, m[4].At(1).IsEmpty())
}

func TestFromJSON_ColumnsFollowFirstObject(t *testing.T) {
	m, err := FromJSON([]byte(`[
		{"CEA": 1, "子类": 45000},
		{"AFP": 9, "子类": 45001, "CEA": 2}
	]`))
	require.NoError(t, err)
	require.Len(t, m, HeaderPadding+3)

	assert.Equal(t, []string{"CEA", "子类"}, m[2].Strings())
	assert.Equal(t, Row{Num(2), Num(45001)}, m[4])
}

func TestFromJSON_Arrays(t *testing.T) {
	m, err := FromJSON([]byte(`[["a", 1], [], [null, true]]`))
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, Row{Str("a"), Num(1)}, m[0])
	assert.Empty(t, m[1])
	assert.Equal(t, Str("TRUE"), m[2].At(1))
}

func TestFromJSON_Invalid(t *testing.T) {
	for _, in := range []string{`{}`, `[]`, `[1, 2]`, `[[1], {"a": 1}]`, `[{"a": {"b": 1}}]`, `[`} {
		_, err := FromJSON([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestReadCSV_UTF8AndGB18030(t *testing.T) {
	text := "子类,项目,CEA\n2024-03-05,化疗,\"1,200\"\n45000,手术,3.5\n"

	m, err := ReadCSV(append([]byte{0xEF, 0xBB, 0xBF}, text...))
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, "子类", m[0].At(0).Text)
	assert.Equal(t, Str("1,200"), m[1].At(2))
	assert.Equal(t, Num(45000), m[2].At(0))

	gb, _, err := transform.Bytes(simplifiedchinese.GB18030.NewEncoder(), []byte(text))
	require.NoError(t, err)
	m2, err := ReadCSV(gb)
	require.NoError(t, err)
	assert.Equal(t, m, m2)
}

func TestReadCSV_NumbersAreDecimalOnly(t *testing.T) {
	m, err := ReadCSV([]byte("a,b,c,d,e,f,g,h\nNaN,Inf,infinity,+Inf,0x10,1e400,-2.5e3,.5\n"))
	require.NoError(t, err)
	require.Len(t, m, 2)
	for i, want := range []string{"NaN", "Inf", "infinity", "+Inf", "0x10", "1e400"} {
		assert.Equal(t, Str(want), m[1].At(i), want)
	}
	assert.Equal(t, Num(-2500), m[1].At(6))
	assert.Equal(t, Num(0.5), m[1].At(7))
}

func TestDecode_Dispatch(t *testing.T) {
	xlsx, err := WriteXLSX(Matrix{TextRow("a")}, "Data")
	require.NoError(t, err)

	m, err := Decode("upload.xlsx", xlsx)
	require.NoError(t, err)
	assert.Equal(t, "a", m[0].At(0).Text)

	m, err = Decode("blob", xlsx)
	require.NoError(t, err)
	assert.Equal(t, "a", m[0].At(0).Text)

	m, err = Decode("rows", []byte(`[{"x": 1}]`))
	require.NoError(t, err)
	assert.Equal(t, "x", m[2].At(0).Text)

	m, err = Decode("data.CSV", []byte("a,b\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, Num(2), m[1].At(1))

	_, err = Decode("notes.doc", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = Decode("empty.xlsx", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func ptr(v float64) *float64 { return &v }
