package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

var zipMagic = []byte("PK\x03\x04")

// Decode picks a codec by file extension, falling back to content sniffing
// when the name carries no known extension.
func Decode(fileName string, content []byte) (Matrix, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedFormat)
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(content)
	case ".json":
		return FromJSON(content)
	case ".csv", ".txt":
		return ReadCSV(content)
	}

	switch trimmed := bytes.TrimSpace(content); {
	case bytes.HasPrefix(content, zipMagic):
		return ReadXLSX(content)
	case trimmed[0] == '[':
		return FromJSON(content)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileName)
}
