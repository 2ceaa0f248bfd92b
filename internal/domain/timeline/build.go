package timeline

import (
	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

// Build derives the full timeline of a canonical matrix. A matrix without a
// recognizable header yields an empty timeline.
func Build(m sheet.Matrix, dict *metric.Dictionary) *Timeline {
	t := &Timeline{Phases: []Phase{}, Events: []EventMarker{}, Metrics: []*Series{}}
	headerRow := canonical.HeaderRowIndex(m, dict)
	if headerRow < 0 {
		return t
	}

	phases, events := Segment(m, headerRow)
	if phases != nil {
		t.Phases = phases
	}
	if events != nil {
		t.Events = events
	}
	t.Metrics, t.TotalPoints = buildSeries(m, headerRow, visits(m, headerRow), dict)
	if t.Metrics == nil {
		t.Metrics = []*Series{}
	}
	return t
}
