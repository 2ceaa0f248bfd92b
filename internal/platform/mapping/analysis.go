package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/oncotracker/oncotracker/internal/platform/metric"
)

// MinMetricConfidence is the confidence below which a suggested metric column
// is dropped, unless the analyzer flagged it as a custom metric.
const MinMetricConfidence = 0.5

// AnalysisRequest is what the column analyzer sees: the detected header row
// and a few sample data rows, all as text.
type AnalysisRequest struct {
	HeaderRow  int        `json:"headerRow"`
	Headers    []string   `json:"headers"`
	SampleRows [][]string `json:"sampleRows"`
}

type AnalysisSummary struct {
	DetectedHeaderRow    int    `json:"detectedHeaderRow"`
	DetectedDataStartRow int    `json:"detectedDataStartRow"`
	TotalColumns         int    `json:"totalColumns"`
	DataQuality          string `json:"dataQuality"`
}

type DateColumnSuggestion struct {
	SourceIndex *int    `json:"sourceIndex"`
	SourceName  string  `json:"sourceName"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

type FixedColumnSuggestion struct {
	SourceIndex *int    `json:"sourceIndex"`
	SourceName  string  `json:"sourceName"`
	Confidence  float64 `json:"confidence"`
}

type MetricSuggestion struct {
	SourceIndex    int     `json:"sourceIndex"`
	CanonicalName  string  `json:"canonicalName"`
	Category       string  `json:"category,omitempty"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning,omitempty"`
	IsCustomMetric bool    `json:"isCustomMetric"`
}

type UnmappedColumn struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// AnalysisResult is the column analyzer's answer. MetricMappings is keyed by
// source header text.
type AnalysisResult struct {
	ThoughtProcess      string                          `json:"thought_process"`
	Analysis            AnalysisSummary                 `json:"analysis"`
	DateColumn          DateColumnSuggestion            `json:"dateColumn"`
	FixedColumnMappings map[Role]*FixedColumnSuggestion `json:"fixedColumnMappings"`
	MetricMappings      map[string]MetricSuggestion     `json:"metricMappings"`
	UnmappedColumns     []UnmappedColumn                `json:"unmappedColumns"`
	Warnings            []string                        `json:"warnings"`
	TransformationNotes string                          `json:"transformationNotes"`
}

// Analyzer proposes a column classification for a sheet. Implementations may
// block on a remote model; they honor ctx cancellation.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)
}

// eventSourceRoles feed the auxiliary event-columns list, in this order.
var eventSourceRoles = []Role{RolePhase, RoleEvent, RoleCycle, RoleScheme}

// FromAnalysis turns an analysis into a ColumnMapping. Metric suggestions are
// kept when confident enough or marked custom, and ordered by source index.
func FromAnalysis(res *AnalysisResult, dict *metric.Dictionary) (*ColumnMapping, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: empty analysis", ErrInvalidMapping)
	}

	m := Manual{
		HeaderRow: res.Analysis.DetectedHeaderRow,
		Fixed:     map[Role]SourceColumn{},
	}
	if res.Analysis.DetectedDataStartRow > res.Analysis.DetectedHeaderRow {
		m.DataStartRow = res.Analysis.DetectedDataStartRow
	}

	m.Date = SourceColumn{Index: -1, Name: strings.TrimSpace(res.DateColumn.SourceName)}
	if res.DateColumn.SourceIndex != nil {
		m.Date.Index = *res.DateColumn.SourceIndex
	} else if m.Date.Name == "" {
		m.Date.Index = 0
	}

	for role, s := range res.FixedColumnMappings {
		if s == nil || strings.TrimSpace(s.SourceName) == "" {
			continue
		}
		src := Named(strings.TrimSpace(s.SourceName))
		if s.SourceIndex != nil {
			src.Index = *s.SourceIndex
		}
		m.Fixed[role] = src
	}
	for _, role := range eventSourceRoles {
		if src, ok := m.Fixed[role]; ok {
			m.Events = append(m.Events, Named(src.Name))
		}
	}

	names := make([]string, 0, len(res.MetricMappings))
	for name := range res.MetricMappings {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := res.MetricMappings[names[i]], res.MetricMappings[names[j]]
		if a.SourceIndex != b.SourceIndex {
			return a.SourceIndex < b.SourceIndex
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		s := res.MetricMappings[name]
		if strings.TrimSpace(s.CanonicalName) == "" {
			continue
		}
		if s.Confidence < MinMetricConfidence && !s.IsCustomMetric {
			continue
		}
		m.Metrics = append(m.Metrics, MetricColumn{
			Source: Column(s.SourceIndex, name),
			Code:   s.CanonicalName,
		})
	}

	return New(m, dict)
}
