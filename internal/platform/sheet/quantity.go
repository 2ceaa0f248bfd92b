package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Quantity is the result of permissive numeric parsing: Value is nil when the
// text carries no leading number. Text always holds the raw cell text.
type Quantity struct {
	Value *float64
	Text  string
}

var (
	leadingNumber  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	comparisonHead = regexp.MustCompile(`^(<=|>=|≤|≥|<|>|＜|＞)\s*`)
	thresholdExpr  = regexp.MustCompile(`[<>]\s*([\d.]+)`)
)

// ParseQuantity reads a measurement cell. Comparison prefixes ("< 5") and
// thousands separators are dropped before the leading number is taken.
func ParseQuantity(c Cell) Quantity {
	q := Quantity{Text: c.String()}
	if c.Kind == KindNumber {
		if !math.IsNaN(c.Num) && !math.IsInf(c.Num, 0) {
			v := c.Num
			q.Value = &v
		}
		return q
	}

	s := strings.TrimSpace(c.Text)
	s = comparisonHead.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "，", "")

	m := leadingNumber.FindString(s)
	if m == "" {
		return q
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) {
		return q
	}
	q.Value = &v
	return q
}

// ParseThreshold extracts the bound from a units hint such as "ng/mL <5".
func ParseThreshold(hint string) (float64, bool) {
	m := thresholdExpr.FindStringSubmatch(hint)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
