package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// serialEpochOffset is the serial number of 1970-01-01 in the 1900 date system.
const serialEpochOffset = 25569

// ISOLayout is the wire format for normalized dates.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// maxSerial is the first serial past 9999-12-31, the last spreadsheet date.
const maxSerial = 2958466

// NormalizeDate turns a cell into a wall-clock time in UTC. Numbers are spreadsheet
// serial dates; text goes through general date parsing. ok is false for empty
// cells, NaN, and anything unparseable.
func NormalizeDate(c Cell) (time.Time, bool) {
	switch c.Kind {
	case KindNumber:
		return FromSerial(c.Num)
	case KindText:
		return parseDateText(c.Text)
	default:
		return time.Time{}, false
	}
}

// FromSerial converts a serial day number, rounding to the nearest second.
// Serials outside [0, 9999-12-31] are rejected.
func FromSerial(v float64) (time.Time, bool) {
	if math.IsNaN(v) || v < 0 || v >= maxSerial {
		return time.Time{}, false
	}
	secs := math.Round((v - serialEpochOffset) * 86400)
	return time.Unix(int64(secs), 0).UTC(), true
}

// ToSerial is the inverse of FromSerial.
func ToSerial(t time.Time) float64 {
	return float64(t.UTC().Unix())/86400 + serialEpochOffset
}

var serialText = regexp.MustCompile(`^\d{1,5}(\.\d+)?$`)

var cjkDateReplacer = strings.NewReplacer("年", "-", "月", "-", "日", "", "．", ".", "／", "/")

func parseDateText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Up to five digits stored as text is a serial date; longer digit runs
	// such as 20240305 are left to the date parser.
	if serialText.MatchString(s) {
		v, _ := strconv.ParseFloat(s, 64)
		return FromSerial(v)
	}
	if strings.ContainsAny(s, "年月日．／") {
		s = strings.TrimSpace(cjkDateReplacer.Replace(s))
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// FormatISO renders t in ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}
