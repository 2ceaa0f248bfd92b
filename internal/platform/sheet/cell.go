// Package sheet holds the tabular primitives shared by the ingestion engine:
// loosely typed cells and matrices, workbook/JSON/CSV codecs, and the date and
// quantity parsers used on cell values.
package sheet

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type CellKind uint8

const (
	KindEmpty CellKind = iota
	KindNumber
	KindText
)

// Cell is one spreadsheet value. The zero Cell is empty.
type Cell struct {
	Kind CellKind
	Num  float64
	Text string
}

func Num(v float64) Cell { return Cell{Kind: KindNumber, Num: v} }

func Str(s string) Cell { return Cell{Kind: KindText, Text: s} }

// IsEmpty reports true for missing cells and whitespace-only text.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case KindNumber:
		return false
	case KindText:
		return strings.TrimSpace(c.Text) == ""
	default:
		return true
	}
}

// String renders the cell the way it would print in a sheet: integers without
// a fractional part, text verbatim, empty as "".
func (c Cell) String() string {
	switch c.Kind {
	case KindNumber:
		return formatNumber(c.Num)
	case KindText:
		return c.Text
	default:
		return ""
	}
}

func formatNumber(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Trimmed is String with surrounding whitespace removed.
func (c Cell) Trimmed() string {
	return strings.TrimSpace(c.String())
}

func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(c.Num)
	case KindText:
		return json.Marshal(c.Text)
	default:
		return []byte("null"), nil
	}
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	cell, err := cellFromJSON(v)
	if err != nil {
		return err
	}
	*c = cell
	return nil
}

func cellFromJSON(v interface{}) (Cell, error) {
	switch t := v.(type) {
	case nil:
		return Cell{}, nil
	case float64:
		return Num(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Str(t.String()), nil
		}
		return Num(f), nil
	case string:
		return Str(t), nil
	case bool:
		if t {
			return Str("TRUE"), nil
		}
		return Str("FALSE"), nil
	default:
		return Cell{}, fmt.Errorf("unsupported cell value of type %T", v)
	}
}

type Row []Cell

// At returns the cell at col, or an empty cell when the row is shorter.
func (r Row) At(col int) Cell {
	if col < 0 || col >= len(r) {
		return Cell{}
	}
	return r[col]
}

// Strings returns the trimmed text of every cell.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Trimmed()
	}
	return out
}

// IsBlank reports whether every cell is empty.
func (r Row) IsBlank() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Matrix is an ordered list of rows; rows may have different lengths.
type Matrix []Row

// Row returns row i, or nil when out of range.
func (m Matrix) Row(i int) Row {
	if i < 0 || i >= len(m) {
		return nil
	}
	return m[i]
}

// Width is the length of the longest row.
func (m Matrix) Width() int {
	w := 0
	for _, r := range m {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// TextRow builds a row of text cells; empty strings become empty cells.
func TextRow(values ...string) Row {
	row := make(Row, len(values))
	for i, v := range values {
		if v != "" {
			row[i] = Str(v)
		}
	}
	return row
}
