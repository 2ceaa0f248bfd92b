package timeline

import "time"

type PhaseType string

const (
	PhaseMedication PhaseType = "medication"
	PhaseSurgery    PhaseType = "surgery"
)

// Phase is a contiguous treatment interval. Duration is whole days, rounded up.
type Phase struct {
	Name     string    `json:"name"`
	Cycle    string    `json:"cycle"`
	Scheme   string    `json:"scheme"`
	Type     PhaseType `json:"type"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration int       `json:"duration"`
}

// EventMarker is a clinical event on the timeline. OverlapIndex counts earlier
// events at the same instant so renderers can stagger labels.
type EventMarker struct {
	Date         time.Time `json:"date"`
	Name         string    `json:"name"`
	OverlapIndex int       `json:"overlap_index"`
}

type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Alert bool      `json:"alert"`
}

// Series is every numeric reading of one metric column.
type Series struct {
	Name      string   `json:"name"`
	Code      string   `json:"code"`
	Unit      string   `json:"unit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Points    []Point  `json:"points"`
	RangeMin  float64  `json:"range_min"`
	RangeMax  float64  `json:"range_max"`
	Active    bool     `json:"active"`
}

type Timeline struct {
	Phases      []Phase       `json:"phases"`
	Events      []EventMarker `json:"events"`
	Metrics     []*Series     `json:"metrics"`
	TotalPoints int           `json:"total_points"`
}
