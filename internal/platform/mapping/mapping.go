// Package mapping describes how the columns of an arbitrary spreadsheet map
// onto canonical roles. A ColumnMapping is built once per file, either from a
// caller-supplied Manual description or from a column analysis, and is not
// modified afterwards.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oncotracker/oncotracker/internal/platform/metric"
)

type Role string

const (
	RolePhase        Role = "phase"
	RoleCycle        Role = "cycle"
	RolePrevCycle    Role = "prevCycle"
	RoleScheme       Role = "scheme"
	RoleEvent        Role = "event"
	RoleSchemeDetail Role = "schemeDetail"
)

// FixedRoles lists the fixed roles in canonical column order.
var FixedRoles = []Role{RolePhase, RoleCycle, RolePrevCycle, RoleScheme, RoleEvent, RoleSchemeDetail}

var validRoles = map[Role]bool{
	RolePhase:        true,
	RoleCycle:        true,
	RolePrevCycle:    true,
	RoleScheme:       true,
	RoleEvent:        true,
	RoleSchemeDetail: true,
}

var ErrInvalidMapping = errors.New("invalid column mapping")

// SourceColumn points at a column of the source sheet by header name and/or
// position. Index is -1 when only the name is known.
type SourceColumn struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
}

// Column is shorthand for a SourceColumn known by both name and index.
func Column(index int, name string) SourceColumn {
	return SourceColumn{Index: index, Name: name}
}

// Named is a SourceColumn known only by its header text.
func Named(name string) SourceColumn {
	return SourceColumn{Index: -1, Name: name}
}

func (s SourceColumn) IsZero() bool {
	return s.Index < 0 && strings.TrimSpace(s.Name) == ""
}

func (s SourceColumn) String() string {
	switch {
	case s.Name != "" && s.Index >= 0:
		return fmt.Sprintf("%q (#%d)", s.Name, s.Index)
	case s.Name != "":
		return fmt.Sprintf("%q", s.Name)
	default:
		return fmt.Sprintf("#%d", s.Index)
	}
}

func (s *SourceColumn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Index *int   `json:"index"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Index = -1
	if raw.Index != nil {
		s.Index = *raw.Index
	}
	return nil
}

// MetricColumn sends one source column to a canonical metric code.
type MetricColumn struct {
	Source SourceColumn `json:"source"`
	Code   string       `json:"code"`
}

// Manual is the wire form of a mapping, as supplied by callers and as
// returned from column analysis.
type Manual struct {
	HeaderRow    int                   `json:"header_row"`
	DataStartRow int                   `json:"data_start_row,omitempty"`
	Date         SourceColumn          `json:"date"`
	Fixed        map[Role]SourceColumn `json:"fixed,omitempty"`
	Metrics      []MetricColumn        `json:"metrics"`
	Events       []SourceColumn        `json:"events,omitempty"`
}

type ColumnMapping struct {
	headerRow    int
	dataStartRow int
	date         SourceColumn
	fixed        map[Role]SourceColumn
	metrics      []MetricColumn
	events       []SourceColumn
}

// New validates m and freezes it. Metric codes are normalized through dict, so
// "癌胚抗原" and "CEA" both map to CEA.
func New(m Manual, dict *metric.Dictionary) (*ColumnMapping, error) {
	if m.HeaderRow < 0 {
		return nil, fmt.Errorf("%w: header_row must not be negative", ErrInvalidMapping)
	}
	dataStart := m.DataStartRow
	if dataStart == 0 {
		dataStart = m.HeaderRow + 1
	}
	if dataStart <= m.HeaderRow {
		return nil, fmt.Errorf("%w: data_start_row %d must follow header_row %d", ErrInvalidMapping, m.DataStartRow, m.HeaderRow)
	}
	if m.Date.IsZero() {
		return nil, fmt.Errorf("%w: date column is required", ErrInvalidMapping)
	}

	cm := &ColumnMapping{
		headerRow:    m.HeaderRow,
		dataStartRow: dataStart,
		date:         m.Date,
		fixed:        make(map[Role]SourceColumn, len(m.Fixed)),
	}
	for role, src := range m.Fixed {
		if !validRoles[role] {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidMapping, role)
		}
		if src.IsZero() {
			continue
		}
		cm.fixed[role] = src
	}

	for i, mc := range m.Metrics {
		code := dict.CanonicalCode(mc.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: metric %d has no code", ErrInvalidMapping, i)
		}
		if mc.Source.IsZero() {
			return nil, fmt.Errorf("%w: metric %s has no source column", ErrInvalidMapping, code)
		}
		cm.metrics = append(cm.metrics, MetricColumn{Source: mc.Source, Code: code})
	}
	if len(cm.metrics) == 0 {
		return nil, fmt.Errorf("%w: at least one metric column is required", ErrInvalidMapping)
	}

	for _, ev := range m.Events {
		if !ev.IsZero() {
			cm.events = append(cm.events, ev)
		}
	}
	return cm, nil
}

func (m *ColumnMapping) HeaderRow() int    { return m.headerRow }
func (m *ColumnMapping) DataStartRow() int { return m.dataStartRow }
func (m *ColumnMapping) Date() SourceColumn { return m.date }

// Fixed returns the source column for a fixed role, if mapped.
func (m *ColumnMapping) Fixed(role Role) (SourceColumn, bool) {
	src, ok := m.fixed[role]
	return src, ok
}

// Metrics returns the metric columns in mapping order.
func (m *ColumnMapping) Metrics() []MetricColumn {
	return append([]MetricColumn(nil), m.metrics...)
}

// EventColumns returns the auxiliary event-like columns.
func (m *ColumnMapping) EventColumns() []SourceColumn {
	return append([]SourceColumn(nil), m.events...)
}

// Manual converts the mapping back to its wire form.
func (m *ColumnMapping) Manual() Manual {
	fixed := make(map[Role]SourceColumn, len(m.fixed))
	for k, v := range m.fixed {
		fixed[k] = v
	}
	return Manual{
		HeaderRow:    m.headerRow,
		DataStartRow: m.dataStartRow,
		Date:         m.date,
		Fixed:        fixed,
		Metrics:      m.Metrics(),
		Events:       m.EventColumns(),
	}
}

func (m *ColumnMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Manual())
}
