package sheet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// HeaderPadding is the number of blank rows FromJSON puts in front of the
// header row built from object keys, so the header lands on the canonical
// header row.
const HeaderPadding = 2

var ErrEmptyJSON = errors.New("JSON input has no rows")

// FromJSON accepts either an array of arrays (taken as a matrix as-is) or an
// array of flat objects. For objects, the key order of the first object fixes
// the columns; keys that appear only in later objects are dropped.
func FromJSON(data []byte) (Matrix, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("JSON input must be an array, got %v", tok)
	}

	var (
		matrix  Matrix
		objects []orderedObject
		columns []string
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read JSON row: %w", err)
		}
		switch tok {
		case json.Delim('['):
			row, err := readArray(dec)
			if err != nil {
				return nil, err
			}
			matrix = append(matrix, row)
		case json.Delim('{'):
			obj, err := readObject(dec)
			if err != nil {
				return nil, err
			}
			if len(objects) == 0 {
				columns = obj.keys
			}
			objects = append(objects, obj)
		default:
			return nil, fmt.Errorf("JSON rows must be arrays or objects, got %v", tok)
		}
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read JSON end: %w", err)
	}

	if len(objects) > 0 && len(matrix) > 0 {
		return nil, errors.New("JSON rows mix arrays and objects")
	}
	if len(objects) == 0 {
		if len(matrix) == 0 {
			return nil, ErrEmptyJSON
		}
		return matrix, nil
	}

	out := make(Matrix, 0, HeaderPadding+1+len(objects))
	for i := 0; i < HeaderPadding; i++ {
		out = append(out, Row{})
	}
	out = append(out, TextRow(columns...))
	for _, obj := range objects {
		row := make(Row, len(columns))
		for i, col := range columns {
			row[i] = obj.values[col]
		}
		out = append(out, row)
	}
	return out, nil
}

type orderedObject struct {
	keys   []string
	values map[string]Cell
}

func readObject(dec *json.Decoder) (orderedObject, error) {
	obj := orderedObject{values: map[string]Cell{}}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return obj, fmt.Errorf("read JSON key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return obj, fmt.Errorf("unexpected JSON key %v", keyTok)
		}
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return obj, fmt.Errorf("read value of %q: %w", key, err)
		}
		cell, err := cellFromJSON(raw)
		if err != nil {
			return obj, fmt.Errorf("value of %q: %w", key, err)
		}
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = cell
	}
	if _, err := dec.Token(); err != nil {
		return obj, fmt.Errorf("close JSON object: %w", err)
	}
	return obj, nil
}

func readArray(dec *json.Decoder) (Row, error) {
	var row Row
	for dec.More() {
		var raw interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read JSON cell: %w", err)
		}
		cell, err := cellFromJSON(raw)
		if err != nil {
			return nil, err
		}
		row = append(row, cell)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("close JSON array: %w", err)
	}
	return row, nil
}
