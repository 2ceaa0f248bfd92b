package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV decodes a CSV export. Content that is not valid UTF-8 is taken to be
// GB18030, the usual encoding of spreadsheet exports from Chinese locales.
// Unquoted numeric fields become number cells.
func ReadCSV(content []byte) (Matrix, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		decoded, _, err := transform.Bytes(simplifiedchinese.GB18030.NewDecoder(), content)
		if err != nil {
			return nil, fmt.Errorf("decode GB18030: %w", err)
		}
		content = decoded
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	m := make(Matrix, len(records))
	for i, rec := range records {
		row := make(Row, len(rec))
		for j, field := range rec {
			row[j] = csvCell(field)
		}
		m[i] = row
	}
	return m, nil
}

// csvCell keeps a field as text unless it is a plain decimal number, so
// tokens like NaN, Inf or 0x10 survive verbatim.
func csvCell(field string) Cell {
	s := strings.TrimSpace(field)
	if s == "" {
		return Cell{}
	}
	if leadingNumber.FindString(s) != s {
		return Str(field)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Num(v)
	}
	return Str(field)
}
