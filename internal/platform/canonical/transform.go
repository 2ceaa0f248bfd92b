package canonical

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

var (
	ErrDateColumnUnresolved = errors.New("date column could not be resolved")
	ErrNoMetrics            = errors.New("no metric column could be resolved")
)

// eventSeparator joins auxiliary event cells into the 处置 column.
const eventSeparator = "；"

// Result is the outcome of one transform. Data is nil unless Success is set.
type Result struct {
	Success  bool         `json:"success"`
	Data     sheet.Matrix `json:"data,omitempty"`
	Errors   []string     `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	cause    error
}

// Error returns nil for a successful result. Otherwise it wraps the failure
// cause so callers can match ErrDateColumnUnresolved or ErrNoMetrics.
func (r Result) Error() error {
	if r.Success {
		return nil
	}
	if r.cause != nil {
		return fmt.Errorf("%w: %s", r.cause, strings.Join(r.Errors, "; "))
	}
	return errors.New(strings.Join(r.Errors, "; "))
}

func failed(cause error, msgs ...string) Result {
	return Result{Errors: msgs, cause: cause}
}

type Transformer struct {
	dict *metric.Dictionary
}

func NewTransformer(dict *metric.Dictionary) *Transformer {
	return &Transformer{dict: dict}
}

// resolvedMetric is one canonical metric column fed by one or more sources.
type resolvedMetric struct {
	MetricColumn
	sources []int
}

// Transform rewrites raw into the canonical layout using m. Unmapped source
// columns are dropped. A row whose date cell cannot be parsed is kept (it will
// yield no observations) and counted in a warning.
func (t *Transformer) Transform(raw sheet.Matrix, m *mapping.ColumnMapping, patientName string) Result {
	if m == nil {
		return failed(mapping.ErrInvalidMapping, "mapping is required")
	}
	header := raw.Row(m.HeaderRow())
	width := raw.Width()
	var warnings []string

	dateCol, ok := resolveColumn(header, width, m.Date())
	if !ok {
		return failed(ErrDateColumnUnresolved,
			fmt.Sprintf("date column %s not found in header row %d", m.Date(), m.HeaderRow()))
	}

	used := map[int]bool{dateCol: true}
	fixed := make(map[int]int, len(mapping.FixedRoles))
	for _, role := range mapping.FixedRoles {
		src, ok := m.Fixed(role)
		if !ok {
			continue
		}
		idx, ok := resolveColumn(header, width, src)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s column %s not found", role, src))
			continue
		}
		fixed[roleColumns[role]] = idx
		used[idx] = true
	}

	var metrics []*resolvedMetric
	byLabel := map[string]*resolvedMetric{}
	for _, mc := range m.Metrics() {
		idx, ok := resolveColumn(header, width, mc.Source)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("metric %s column %s not found", mc.Code, mc.Source))
			continue
		}
		col := t.metricColumn(mc.Code)
		if rm, dup := byLabel[col.Label]; dup {
			rm.sources = append(rm.sources, idx)
			continue
		}
		rm := &resolvedMetric{MetricColumn: col, sources: []int{idx}}
		byLabel[col.Label] = rm
		metrics = append(metrics, rm)
	}
	if len(metrics) == 0 {
		return failed(ErrNoMetrics, "none of the mapped metric columns were found")
	}

	var events []int
	for _, src := range m.EventColumns() {
		idx, ok := resolveColumn(header, width, src)
		if !ok || used[idx] {
			continue
		}
		used[idx] = true
		events = append(events, idx)
	}

	cols := make([]MetricColumn, len(metrics))
	for i, rm := range metrics {
		cols[i] = rm.MetricColumn
	}
	out := headerBlock(patientName, cols)
	outWidth := FirstMetricCol + len(metrics)

	badDates := 0
	for i := m.DataStartRow(); i < len(raw); i++ {
		src := raw[i]
		if src.IsBlank() {
			continue
		}
		// A units row never carries a readable date; a visit whose notes
		// mention KG or <5 does.
		_, dateOK := sheet.NormalizeDate(src.At(dateCol))
		if !dateOK && IsUnitsRow(src) {
			continue
		}
		row := make(sheet.Row, outWidth)
		row[ColDate] = src.At(dateCol)
		if !dateOK {
			badDates++
		}
		for dst, from := range fixed {
			row[dst] = src.At(from)
		}
		if len(events) > 0 {
			row[ColEvent] = joinEvents(row[ColEvent], src, events)
		}
		for j, rm := range metrics {
			for _, from := range rm.sources {
				if c := src.At(from); !c.IsEmpty() {
					row[FirstMetricCol+j] = c
					break
				}
			}
		}
		out = append(out, row)
	}
	if badDates > 0 {
		warnings = append(warnings, fmt.Sprintf("%d row(s) have an unreadable date and will produce no observations", badDates))
	}

	return Result{Success: true, Data: out, Warnings: warnings}
}

func (t *Transformer) metricColumn(code string) MetricColumn {
	if def, ok := t.dict.ByCode(code); ok {
		return MetricColumn{Label: def.Header, Hint: def.UnitHint()}
	}
	return MetricColumn{Label: code}
}

func joinEvents(base sheet.Cell, src sheet.Row, cols []int) sheet.Cell {
	var parts []string
	if s := base.Trimmed(); s != "" {
		parts = append(parts, s)
	}
	for _, from := range cols {
		if s := src.At(from).Trimmed(); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return sheet.Cell{}
	}
	return sheet.Str(strings.Join(parts, eventSeparator))
}

// resolveColumn finds src in the header by exact trimmed name, then by index.
func resolveColumn(header sheet.Row, width int, src mapping.SourceColumn) (int, bool) {
	if name := strings.TrimSpace(src.Name); name != "" {
		for i, c := range header {
			if c.Trimmed() == name {
				return i, true
			}
		}
	}
	if src.Index >= 0 && src.Index < width {
		return src.Index, true
	}
	return -1, false
}
