package timeline

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

const (
	surveillanceName  = "AS"
	defaultPhaseName  = "Treatment"
	minimumFinalSpan  = 21 * 24 * time.Hour
	surgeryMarker     = "术"
	laparoscopyMarker = "腹腔镜"
)

var cycleLabel = regexp.MustCompile(`C\d+|AS\d+`)

// visit is one dated data row reduced to the columns segmentation reads.
type visit struct {
	date   time.Time
	row    sheet.Row
	phase  string
	cycle  string
	scheme string
	event  string
}

// visits returns the dated rows below headerRow, stably sorted by date.
func visits(m sheet.Matrix, headerRow int) []visit {
	var out []visit
	for i := headerRow + 1; i < len(m); i++ {
		row := m[i]
		date, ok := sheet.NormalizeDate(row.At(canonical.ColDate))
		if !ok {
			continue
		}
		v := visit{
			date:   date,
			row:    row,
			phase:  row.At(canonical.ColPhase).Trimmed(),
			scheme: row.At(canonical.ColScheme).Trimmed(),
			event:  row.At(canonical.ColEvent).Trimmed(),
		}
		if raw := row.At(canonical.ColCycle).Trimmed(); raw != "" {
			v.cycle = raw
			if label := cycleLabel.FindString(raw); label != "" {
				v.cycle = label
			}
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

// segmenter is the fold accumulator: phases already closed plus the open one.
type segmenter struct {
	closed []Phase
	open   *Phase
}

// step consumes one visit and returns the next state. The receiver is not
// modified.
func (s segmenter) step(v visit) segmenter {
	isAS := strings.HasPrefix(v.cycle, surveillanceName)

	var newCycle bool
	if isAS {
		newCycle = s.open == nil || s.open.Name != surveillanceName
	} else {
		newCycle = v.cycle != "" && (s.open == nil || s.open.Cycle != v.cycle)
	}
	newNonCycle := v.cycle == "" && v.phase != "" && v.phase != v.event &&
		(s.open == nil || s.open.Cycle == "" || strings.Contains(v.phase, surgeryMarker))

	if !newCycle && !newNonCycle {
		if v.scheme != "" && s.open != nil && s.open.Name != surveillanceName {
			open := *s.open
			open.Scheme = v.scheme
			s.open = &open
		}
		return s
	}

	next := Phase{
		Name:   v.phase,
		Cycle:  v.cycle,
		Scheme: v.scheme,
		Type:   phaseType(v.phase),
		Start:  v.date,
	}
	if next.Name == "" {
		next.Name = defaultPhaseName
		if s.open != nil {
			next.Name = s.open.Name
		}
	}
	if next.Scheme == "" && s.open != nil {
		next.Scheme = s.open.Scheme
	}
	if isAS {
		next.Name, next.Cycle, next.Scheme = surveillanceName, surveillanceName, ""
	}

	closed := s.closed
	if s.open != nil {
		closed = append(closed[:len(closed):len(closed)], closePhase(*s.open, v.date))
	}
	return segmenter{closed: closed, open: &next}
}

// finish closes the open phase at max(start+21d, last).
func (s segmenter) finish(last time.Time) []Phase {
	if s.open == nil {
		return s.closed
	}
	end := s.open.Start.Add(minimumFinalSpan)
	if last.After(end) {
		end = last
	}
	return append(s.closed[:len(s.closed):len(s.closed)], closePhase(*s.open, end))
}

func closePhase(p Phase, end time.Time) Phase {
	p.End = end
	p.Duration = durationDays(p.Start, end)
	return p
}

func durationDays(start, end time.Time) int {
	d := int(math.Ceil(end.Sub(start).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}

func phaseType(label string) PhaseType {
	if strings.Contains(label, surgeryMarker) || strings.Contains(label, laparoscopyMarker) {
		return PhaseSurgery
	}
	return PhaseMedication
}

// Segment folds the dated rows of a canonical matrix into phases and event
// markers.
func Segment(m sheet.Matrix, headerRow int) ([]Phase, []EventMarker) {
	vs := visits(m, headerRow)
	if len(vs) == 0 {
		return nil, nil
	}

	var state segmenter
	var events []EventMarker
	for _, v := range vs {
		state = state.step(v)
		if v.event != "" {
			events = append(events, EventMarker{Date: v.date, Name: v.event})
		}
	}
	return state.finish(vs[len(vs)-1].date), markOverlaps(events)
}

// markOverlaps sorts events by date and numbers same-instant runs 0, 1, 2...
func markOverlaps(events []EventMarker) []EventMarker {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	for i := range events {
		if i > 0 && events[i].Date.Equal(events[i-1].Date) {
			events[i].OverlapIndex = events[i-1].OverlapIndex + 1
		} else {
			events[i].OverlapIndex = 0
		}
	}
	return events
}
