// Package derive owns the per-thread dataflow graph: every derived view the
// panels read (marker lists, filtered index sets, timing layout, call trees,
// custom-track series) hangs off a Deriver, and every edge is memoized so a
// state change only recomputes what depends on it.
package derive

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/tracelens/tracelens/pkg/calltree"
	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/marker"
	"github.com/tracelens/tracelens/pkg/memo"
	"github.com/tracelens/tracelens/pkg/schema"
)

// State is one snapshot of the view state driving derivation. State
// transitions are applied one at a time; derived outputs are always
// consistent with exactly one snapshot.
type State struct {
	// Range is the committed time range.
	Range capture.TimeRange
	// Preview is the interactively dragged sub-range, if any.
	Preview marker.PreviewSelection
	// Search holds the free-text marker search patterns. Nil disables it.
	Search *marker.SearchFilter
	// WindowIDs is the set of inner window ids relevant to the selected
	// tab; nil means the full-capture view.
	WindowIDs map[uint64]struct{}
	// KeepGlobal keeps markers with no window association when filtering
	// by tab.
	KeepGlobal bool
	// Invert builds the call tree leaf-first.
	Invert bool
}

// EffectiveRange is the range sample-derived views use: the preview
// selection when one is active, the committed range otherwise.
func (s State) EffectiveRange() capture.TimeRange {
	if s.Preview.HasSelection {
		return capture.TimeRange{Start: s.Preview.Start, End: s.Preview.End}
	}
	return s.Range
}

// Config tunes a Deriver.
type Config struct {
	// JankThreshold is the responsiveness delta above which synthetic jank
	// markers are derived. Zero means DefaultJankThreshold.
	JankThreshold float64
	// JankCategory is the category synthetic markers are tagged with.
	JankCategory capture.CategoryIndex
}

type trackNodes struct {
	indexes    *memo.Func2[*marker.List, []marker.Index, []marker.Index]
	collection *memo.Func2[*marker.List, []marker.Index, *marker.TrackCollection]
}

// Deriver is the per-thread derivation context. It is single-writer, like
// the graph nodes it owns.
type Deriver struct {
	logger   log.Logger
	capture  *capture.Capture
	thread   *capture.Thread
	registry *schema.Registry
	label    marker.Labeler
	bounds   capture.TimeRange

	derived *memo.Func1[*capture.Thread, []marker.Marker]
	janks   *memo.Func1[*capture.Thread, []marker.Marker]
	merged  *memo.Func2[[]marker.Marker, []marker.Marker, *marker.List]
	full    *memo.Func1[*marker.List, []marker.Index]

	tableRange    *memo.Func3[*marker.List, []marker.Index, capture.TimeRange, []marker.Index]
	tableWindow   *memo.Func4[*marker.List, []marker.Index, map[uint64]struct{}, bool, []marker.Index]
	tableSearch   *memo.Func3[*marker.List, []marker.Index, *marker.SearchFilter, []marker.Index]
	tablePreview  *memo.Func3[*marker.List, []marker.Index, marker.PreviewSelection, []marker.Index]
	tableLocation *memo.Func2[*marker.List, []marker.Index, []marker.Index]

	chartRange    *memo.Func3[*marker.List, []marker.Index, capture.TimeRange, []marker.Index]
	chartSearch   *memo.Func3[*marker.List, []marker.Index, *marker.SearchFilter, []marker.Index]
	chartLocation *memo.Func2[*marker.List, []marker.Index, []marker.Index]

	timing *memo.Func2[*marker.List, []marker.Index, []marker.Bucket]

	sampleIdx *memo.Func2[*capture.SampleTable, capture.TimeRange, []int32]
	tree      *memo.Func2[[]int32, bool, *calltree.Tree]

	tracks *memo.Keyed[string, *trackNodes]
}

// New builds the derivation graph for one thread. The graph lazily computes
// and caches; nothing is derived until a getter is called.
func New(logger log.Logger, capt *capture.Capture, thread *capture.Thread, registry *schema.Registry, cfg Config, metrics *memo.Metrics) *Deriver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.JankThreshold == 0 {
		cfg.JankThreshold = marker.DefaultJankThreshold
	}
	d := &Deriver{
		logger:   log.With(logger, "thread", thread.Name),
		capture:  capt,
		thread:   thread,
		registry: registry,
		label:    marker.SchemaLabeler(registry),
		bounds:   capt.Range(),
	}
	ipc := marker.BuildIPCTable(capt.Threads)

	d.derived = memo.NewFunc1(func(t *capture.Thread) []marker.Marker {
		return marker.Derive(t, marker.DeriveOptions{IPC: ipc})
	}).WithMetrics(metrics)
	d.janks = memo.NewFunc1(func(t *capture.Thread) []marker.Marker {
		return marker.DeriveJank(&t.Samples, cfg.JankThreshold, cfg.JankCategory)
	}).WithMetrics(metrics)
	d.merged = memo.NewFunc2(func(derived, janks []marker.Marker) *marker.List {
		l := marker.Merge(derived, janks)
		level.Debug(d.logger).Log("msg", "derived marker list rebuilt", "markers", l.Len(), "janks", len(janks))
		return l
	}).WithMetrics(metrics)
	d.full = memo.NewFunc1((*marker.List).Indexes).WithMetrics(metrics)

	d.tableRange = memo.NewFunc3(marker.FilterRange).WithMetrics(metrics)
	d.tableWindow = memo.NewFunc4(marker.FilterWindowIDs).WithMetrics(metrics)
	d.tableSearch = memo.NewFunc3(func(l *marker.List, idx []marker.Index, f *marker.SearchFilter) []marker.Index {
		return marker.FilterSearch(l, idx, f, d.label)
	}).WithMetrics(metrics)
	d.tablePreview = memo.NewFunc3(marker.FilterPreview).WithMetrics(metrics)
	d.tableLocation = memo.NewFunc2(func(l *marker.List, idx []marker.Index) []marker.Index {
		return marker.FilterDisplayLocation(l, idx, registry, schema.LocationMarkerTable, schema.KeepUnknownByDefault(schema.LocationMarkerTable))
	}).WithMetrics(metrics)

	d.chartRange = memo.NewFunc3(marker.FilterRange).WithMetrics(metrics)
	d.chartSearch = memo.NewFunc3(func(l *marker.List, idx []marker.Index, f *marker.SearchFilter) []marker.Index {
		return marker.FilterSearch(l, idx, f, d.label)
	}).WithMetrics(metrics)
	d.chartLocation = memo.NewFunc2(func(l *marker.List, idx []marker.Index) []marker.Index {
		return marker.FilterDisplayLocation(l, idx, registry, schema.LocationMarkerChart, schema.KeepUnknownByDefault(schema.LocationMarkerChart))
	}).WithMetrics(metrics)

	d.timing = memo.NewFunc2(func(l *marker.List, idx []marker.Index) []marker.Bucket {
		return marker.Timing(l, idx, d.label)
	}).WithMetrics(metrics)

	d.sampleIdx = memo.NewFunc2(func(s *capture.SampleTable, rng capture.TimeRange) []int32 {
		return calltree.SamplesInRange(s, rng)
	}).WithMetrics(metrics)
	d.tree = memo.NewFunc2(func(idx []int32, invert bool) *calltree.Tree {
		t := calltree.Build(capt.Categories, thread, idx, calltree.Options{Inverted: invert})
		level.Debug(d.logger).Log("msg", "call tree rebuilt", "samples", len(idx), "nodes", t.Len(), "inverted", invert)
		return t
	}).WithMetrics(metrics)

	d.tracks = memo.NewKeyed(func(name string) *trackNodes {
		return &trackNodes{
			indexes: memo.NewFunc2(func(l *marker.List, idx []marker.Index) []marker.Index {
				return marker.MatchesName(l, idx, name)
			}).WithMetrics(metrics),
			collection: memo.NewFunc2(func(l *marker.List, idx []marker.Index) *marker.TrackCollection {
				return marker.CollectTrackSamples(l, idx, name, registry)
			}).WithMetrics(metrics),
		}
	})
	return d
}

// Thread returns the thread this deriver reads from.
func (d *Deriver) Thread() *capture.Thread { return d.thread }

// Markers returns the current generation of the full sorted marker list.
func (d *Deriver) Markers() *marker.List {
	return d.merged.At(d.derived.At(d.thread), d.janks.At(d.thread))
}

// FullIndexes returns every marker index of the current generation.
func (d *Deriver) FullIndexes() []marker.Index {
	return d.full.At(d.Markers())
}

// JankTypeLabel returns the hang-marker type label for this thread.
func (d *Deriver) JankTypeLabel() string {
	return marker.JankTypeLabel(d.janks.At(d.thread))
}

// Label renders a marker's display label.
func (d *Deriver) Label(m *marker.Marker) string { return d.label(m) }

// TableIndexes chains the full filter pipeline for the marker table:
// range, tab, search, preview selection and table display location.
func (d *Deriver) TableIndexes(s State) []marker.Index {
	l := d.Markers()
	idx := d.full.At(l)
	idx = d.tableRange.At(l, idx, s.Range.Clamp(d.bounds))
	idx = d.tableWindow.At(l, idx, s.WindowIDs, s.KeepGlobal)
	idx = d.tableSearch.At(l, idx, s.Search)
	idx = d.tablePreview.At(l, idx, s.Preview)
	return d.tableLocation.At(l, idx)
}

// ChartIndexes chains the filters the marker chart applies: range, search
// and chart display location. The preview stage is skipped; the chart
// re-renders during drags and filters visually instead.
func (d *Deriver) ChartIndexes(s State) []marker.Index {
	l := d.Markers()
	idx := d.full.At(l)
	idx = d.chartRange.At(l, idx, s.Range.Clamp(d.bounds))
	idx = d.chartSearch.At(l, idx, s.Search)
	return d.chartLocation.At(l, idx)
}

// Timing lays the chart's markers out into non-overlapping bucket rows.
func (d *Deriver) Timing(s State) []marker.Bucket {
	l := d.Markers()
	return d.timing.At(l, d.ChartIndexes(s))
}

// CallTree aggregates the samples of the effective range into a call tree.
func (d *Deriver) CallTree(s State) *calltree.Tree {
	idx := d.sampleIdx.At(&d.thread.Samples, s.EffectiveRange().Clamp(d.bounds))
	return d.tree.At(idx, s.Invert)
}

// TrackSamples collects the numeric series of a schema-declared custom
// track. The per-name subgraph is created on first use and retained.
func (d *Deriver) TrackSamples(name string) *marker.TrackCollection {
	l := d.Markers()
	nodes := d.tracks.Get(name)
	return nodes.collection.At(l, nodes.indexes.At(l, d.full.At(l)))
}

// ValidIndex reports whether a persisted marker index is still live in the
// current generation. Selections must be revalidated with it after any
// upstream change.
func (d *Deriver) ValidIndex(i marker.Index) bool {
	return d.Markers().Valid(i)
}
