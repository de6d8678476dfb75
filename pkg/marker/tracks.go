package marker

import (
	"fmt"
	"math"

	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/schema"
)

// TrackCollection is the sample series of one schema-declared custom track:
// per declared line, the value of every marker of the track's name, plus the
// min/max across all lines for axis scaling.
type TrackCollection struct {
	Name  string
	Time  []float64
	Lines map[string][]float64
	Min   float64
	Max   float64
}

// CollectTrackSamples gathers the numeric time series for the named custom
// track. The schema must declare a track config and every marker of the name
// must carry the declared numeric fields: a capture that declares a track it
// cannot feed is a schema-contract violation, so both conditions panic rather
// than degrade.
func CollectTrackSamples(list *List, indexes []Index, name string, reg *schema.Registry) *TrackCollection {
	s := reg.Lookup(name)
	if s == nil || s.Track == nil {
		panic(fmt.Sprintf("no track config declared for marker name %q", name))
	}
	col := &TrackCollection{
		Name:  name,
		Lines: make(map[string][]float64, len(s.Track.Lines)),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	for _, line := range s.Track.Lines {
		col.Lines[line.Key] = []float64{}
	}
	for _, i := range MatchesName(list, indexes, name) {
		m := list.Marker(i)
		num, ok := m.Data.(capture.Numberer)
		if !ok {
			panic(fmt.Sprintf("marker %q declares track %q but carries no numeric payload", name, s.Track.Label))
		}
		col.Time = append(col.Time, m.Start)
		for _, line := range s.Track.Lines {
			v, ok := num.Number(line.Key)
			if !ok {
				panic(fmt.Sprintf("marker %q payload is missing required track field %q", name, line.Key))
			}
			col.Lines[line.Key] = append(col.Lines[line.Key], v)
			col.Min = math.Min(col.Min, v)
			col.Max = math.Max(col.Max, v)
		}
	}
	if len(col.Time) == 0 {
		col.Min, col.Max = 0, 0
	}
	return col
}
