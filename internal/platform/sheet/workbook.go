package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// ReadXLSX decodes the first sheet of an xlsx workbook. Numeric cells stay
// numbers (date cells arrive as serial numbers); string cells stay text even
// when they look numeric.
func ReadXLSX(content []byte) (Matrix, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	name := sheets[0]

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}

	m := make(Matrix, len(rows))
	for r, values := range rows {
		row := make(Row, len(values))
		for c, raw := range values {
			if raw == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("cell name for (%d,%d): %w", r, c, err)
			}
			typ, err := f.GetCellType(name, axis)
			if err != nil {
				return nil, fmt.Errorf("cell type %s: %w", axis, err)
			}
			row[c] = typedCell(typ, raw)
		}
		m[r] = row
	}
	return m, nil
}

func typedCell(typ excelize.CellType, raw string) Cell {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return Str(raw)
	case excelize.CellTypeBool:
		if raw == "1" {
			return Str("TRUE")
		}
		return Str("FALSE")
	}
	// Unset, number, date and formula cells carry a numeric raw value when
	// they hold a number.
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return Num(v)
	}
	return Str(raw)
}

// WriteXLSX encodes m as a single-sheet workbook.
func WriteXLSX(m Matrix, sheetName string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	for r, row := range m {
		values := make([]interface{}, len(row))
		for c, cell := range row {
			switch cell.Kind {
			case KindNumber:
				values[c] = cell.Num
			case KindText:
				values[c] = cell.Text
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		if err := f.SetSheetRow(sheetName, axis, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", r, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
