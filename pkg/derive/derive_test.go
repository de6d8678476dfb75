package derive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/marker"
	"github.com/tracelens/tracelens/pkg/schema"
)

func testCapture(t *testing.T) *capture.Capture {
	t.Helper()
	th := &capture.Thread{Name: "GeckoMain", Strings: capture.NewStringTable()}

	push := func(name string, start, end float64, phase capture.Phase, data capture.Payload) {
		th.Markers.Push(th.Strings.Index(name), start, end, phase, 0, data)
	}
	push("Paint", 0, 10, capture.PhaseInterval, nil)
	push("DOMEvent", 5, math.NaN(), capture.PhaseInstant, &capture.TextPayload{Name: "click", InnerWindowID: 11})
	push("Paint", 20, 30, capture.PhaseInterval, nil)
	push("CPU", 2, math.NaN(), capture.PhaseInstant, &capture.GenericPayload{
		SchemaType: "CPU",
		Values:     map[string]any{"user": 8.0},
	})

	// One stack: main -> work.
	th.Funcs.Name = []capture.StringIndex{th.Strings.Index("main"), th.Strings.Index("work")}
	th.Frames = capture.FrameTable{
		Func:           []int32{0, 1},
		Category:       []capture.CategoryIndex{0, 0},
		Subcategory:    []int32{capture.NoSubcategory, capture.NoSubcategory},
		Implementation: []capture.StringIndex{capture.NoImplementation, capture.NoImplementation},
	}
	th.Stacks = capture.StackTable{Prefix: []int32{capture.NoStack, 0}, Frame: []int32{0, 1}}
	th.Samples = capture.SampleTable{
		Stack:          []int32{1, 1, 0},
		Time:           []float64{1, 2, 25},
		Responsiveness: []float64{0, 80, 0},
		WeightType:     capture.WeightSamples,
	}

	return &capture.Capture{
		Product:    "test",
		Interval:   1,
		Categories: []capture.Category{{Name: "Other", Color: "grey"}},
		Threads:    []*capture.Thread{th},
	}
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.Schema{Name: "Paint", Display: []schema.Location{schema.LocationMarkerChart, schema.LocationMarkerTable}},
		schema.Schema{Name: "CPU", Display: []schema.Location{schema.LocationTimelineOverview}, Track: &schema.TrackConfig{
			Label: "CPU",
			Lines: []schema.TrackLine{{Key: "user"}},
		}},
	)
	require.NoError(t, err)
	return reg
}

func newTestDeriver(t *testing.T) (*Deriver, *capture.Capture) {
	t.Helper()
	capt := testCapture(t)
	d := New(nil, capt, capt.Threads[0], testRegistry(t), Config{}, nil)
	return d, capt
}

func Test_Deriver_MarkersStableBetweenCalls(t *testing.T) {
	d, _ := newTestDeriver(t)
	first := d.Markers()
	second := d.Markers()
	assert.Same(t, first, second)

	// The jank marker (responsiveness delta 80 over threshold 50) is merged
	// in with the derived markers, sorted by start time.
	list := first
	require.Equal(t, 5, list.Len())
	for i := 1; i < list.Len(); i++ {
		assert.LessOrEqual(t, list.Marker(marker.Index(i-1)).Start, list.Marker(marker.Index(i)).Start)
	}
	assert.Equal(t, marker.JankMarkerName, d.JankTypeLabel())
}

func Test_Deriver_TableIndexes(t *testing.T) {
	d, capt := newTestDeriver(t)
	s := State{Range: capt.Range()}

	idx := d.TableIndexes(s)
	// The CPU marker declares only the timeline-overview location and is
	// excluded from the table; everything unknown is kept.
	names := make([]string, 0, len(idx))
	list := d.Markers()
	for _, i := range idx {
		names = append(names, list.Marker(i).Name)
	}
	assert.Equal(t, []string{"Paint", "Jank", "DOMEvent", "Paint"}, names)

	// Same state, same output identity: nothing recomputes.
	assert.Same(t, &idx[0], &d.TableIndexes(s)[0])
}

func Test_Deriver_FilterChaining(t *testing.T) {
	d, capt := newTestDeriver(t)
	s := State{Range: capt.Range(), Search: marker.NewSearchFilter("paint")}

	idx := d.TableIndexes(s)
	require.Len(t, idx, 2)

	s.Preview = marker.PreviewSelection{HasSelection: true, Start: 19, End: 31}
	idx = d.TableIndexes(s)
	require.Len(t, idx, 1)
	assert.Equal(t, 20.0, d.Markers().Marker(idx[0]).Start)

	// Tab filtering drops payload-less markers unless global ones are kept.
	s = State{Range: capt.Range(), WindowIDs: map[uint64]struct{}{11: {}}}
	idx = d.TableIndexes(s)
	require.Len(t, idx, 1)
	assert.Equal(t, "DOMEvent", d.Markers().Marker(idx[0]).Name)

	s.KeepGlobal = true
	assert.Len(t, d.TableIndexes(s), 4)
}

func Test_Deriver_ChartSkipsPreview(t *testing.T) {
	d, capt := newTestDeriver(t)
	s := State{Range: capt.Range()}
	base := d.ChartIndexes(s)

	s.Preview = marker.PreviewSelection{HasSelection: true, Start: 19, End: 31}
	assert.Equal(t, base, d.ChartIndexes(s))

	// Only schema-declared chart markers survive: the chart has no
	// permissive fallback.
	list := d.Markers()
	for _, i := range d.ChartIndexes(s) {
		assert.Equal(t, "Paint", list.Marker(i).Name)
	}
}

func Test_Deriver_Timing(t *testing.T) {
	d, capt := newTestDeriver(t)
	buckets := d.Timing(State{Range: capt.Range()})
	require.Len(t, buckets, 1)
	assert.Equal(t, "Paint", buckets[0].Name)
	require.Len(t, buckets[0].Rows, 1)
	assert.Len(t, buckets[0].Rows[0], 2)
}

func Test_Deriver_CallTree(t *testing.T) {
	d, capt := newTestDeriver(t)
	s := State{Range: capt.Range()}

	tree := d.CallTree(s)
	assert.Same(t, tree, d.CallTree(s))
	assert.Equal(t, 3.0, tree.TotalWeight())

	// Shrinking to the preview selection drops the late sample.
	s.Preview = marker.PreviewSelection{HasSelection: true, Start: 0, End: 10}
	narrowed := d.CallTree(s)
	assert.NotSame(t, tree, narrowed)
	assert.Equal(t, 2.0, narrowed.TotalWeight())

	// The inverted tree is a separate computation with the same weight.
	s.Invert = true
	inverted := d.CallTree(s)
	assert.True(t, inverted.Inverted())
	assert.Equal(t, 2.0, inverted.TotalWeight())
}

func Test_Deriver_TrackSamples(t *testing.T) {
	d, _ := newTestDeriver(t)
	col := d.TrackSamples("CPU")
	assert.Equal(t, []float64{2}, col.Time)
	assert.Equal(t, []float64{8}, col.Lines["user"])

	// Per-name subgraphs are retained: the collection is cached.
	assert.Same(t, col, d.TrackSamples("CPU"))

	// A name without a track config is a schema-contract violation.
	assert.Panics(t, func() { d.TrackSamples("Paint") })
}

func Test_Deriver_FullRangeIsIdentity(t *testing.T) {
	// A capture whose latest event is an instant marker: filtering by the
	// capture's own range must keep it despite half-open range semantics.
	th := &capture.Thread{Name: "GeckoMain", Strings: capture.NewStringTable()}
	th.Markers.Push(th.Strings.Index("Paint"), 0, 10, capture.PhaseInterval, 0, nil)
	th.Markers.Push(th.Strings.Index("DOMEvent"), 20, math.NaN(), capture.PhaseInstant, 0, nil)
	capt := &capture.Capture{Interval: 1, Threads: []*capture.Thread{th}}
	d := New(nil, capt, th, nil, Config{}, nil)

	require.Equal(t, []marker.Index{0, 1}, d.FullIndexes())
	assert.Equal(t, d.FullIndexes(), d.TableIndexes(State{Range: capt.Range()}))
	assert.Equal(t, "DOMEvent", d.Markers().Marker(1).Name)
}

func Test_Deriver_ValidIndex(t *testing.T) {
	d, _ := newTestDeriver(t)
	assert.True(t, d.ValidIndex(0))
	assert.False(t, d.ValidIndex(marker.Index(d.Markers().Len())))
	assert.False(t, d.ValidIndex(-1))
	assert.Panics(t, func() { d.Markers().Marker(99) })
}
