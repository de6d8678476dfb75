// Package capture holds the raw, columnar tables of a loaded performance
// capture. The tables are immutable once loaded: every derived structure
// (markers, call trees) is rebuilt from them and never writes back.
package capture

import (
	"math"
)

// StringIndex is an index into a thread's string table.
type StringIndex int32

// CategoryIndex is an index into the capture's category list.
type CategoryIndex int32

// NoStack marks a sample without an associated stack.
const NoStack int32 = -1

// Phase classifies a raw marker row.
type Phase uint8

const (
	PhaseInstant Phase = iota
	PhaseInterval
	PhaseIntervalStart
	PhaseIntervalEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseInstant:
		return "instant"
	case PhaseInterval:
		return "interval"
	case PhaseIntervalStart:
		return "interval-start"
	case PhaseIntervalEnd:
		return "interval-end"
	}
	return "unknown"
}

// StringTable is an append-only, interning string table.
type StringTable struct {
	strings []string
	index   map[string]StringIndex
}

func NewStringTable(strings ...string) *StringTable {
	t := &StringTable{
		strings: make([]string, 0, len(strings)),
		index:   make(map[string]StringIndex, len(strings)),
	}
	for _, s := range strings {
		t.Index(s)
	}
	return t
}

func (t *StringTable) Get(i StringIndex) string { return t.strings[i] }

func (t *StringTable) Len() int { return len(t.strings) }

// Index returns the index of s, interning it if not yet present.
func (t *StringTable) Index(s string) StringIndex {
	if i, ok := t.index[s]; ok {
		return i
	}
	i := StringIndex(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = i
	return i
}

// RawMarkerTable is the raw marker table of one thread, struct-of-arrays.
// EndTime is NaN for rows without an end timestamp.
type RawMarkerTable struct {
	Name      []StringIndex
	StartTime []float64
	EndTime   []float64
	Phase     []Phase
	Category  []CategoryIndex
	Data      []Payload
}

func (t *RawMarkerTable) Len() int { return len(t.Name) }

// Push appends a row and returns its index. end may be NaN.
func (t *RawMarkerTable) Push(name StringIndex, start, end float64, phase Phase, category CategoryIndex, data Payload) int32 {
	t.Name = append(t.Name, name)
	t.StartTime = append(t.StartTime, start)
	t.EndTime = append(t.EndTime, end)
	t.Phase = append(t.Phase, phase)
	t.Category = append(t.Category, category)
	t.Data = append(t.Data, data)
	return int32(t.Len() - 1)
}

// WeightType describes the unit of sample weights.
type WeightType string

const (
	WeightSamples   WeightType = "samples"
	WeightTracingMs WeightType = "tracing-ms"
	WeightBytes     WeightType = "bytes"
)

// SampleTable is the sample table of one thread. Stack is NoStack for samples
// without a captured stack. Responsiveness is nil when the capture lacks
// responsiveness instrumentation, NaN for individual missing values.
// Weight is nil when every sample weighs 1.
type SampleTable struct {
	Stack          []int32
	Time           []float64
	Responsiveness []float64
	Weight         []float64
	WeightType     WeightType
}

func (t *SampleTable) Len() int { return len(t.Time) }

// SampleWeight returns the weight of sample i under the table's weight type.
func (t *SampleTable) SampleWeight(i int) float64 {
	if t.Weight == nil {
		return 1
	}
	return t.Weight[i]
}

// StackTable is a parent-pointer tree of frames. Prefix is -1 for roots.
type StackTable struct {
	Prefix []int32
	Frame  []int32
}

func (t *StackTable) Len() int { return len(t.Frame) }

// NoSubcategory marks frames without a subcategory; NoImplementation marks
// frames without JS engine tier information.
const (
	NoSubcategory    int32       = -1
	NoImplementation StringIndex = -1
	NoInnerWindowID  uint64      = 0
)

// FrameTable maps frames to functions, categories and (for JS frames) the
// engine tier that executed them.
type FrameTable struct {
	Func           []int32
	Category       []CategoryIndex
	Subcategory    []int32
	Implementation []StringIndex
}

func (t *FrameTable) Len() int { return len(t.Func) }

// FuncTable holds function names.
type FuncTable struct {
	Name []StringIndex
}

func (t *FuncTable) Len() int { return len(t.Name) }

// Category describes one entry of the capture's category list.
type Category struct {
	Name          string   `json:"name"`
	Color         string   `json:"color"`
	Subcategories []string `json:"subcategories"`
}

// Thread bundles the per-thread tables.
type Thread struct {
	Name    string
	PID     int64
	TID     int64
	Strings *StringTable
	Markers RawMarkerTable
	Samples SampleTable
	Stacks  StackTable
	Frames  FrameTable
	Funcs   FuncTable
}

// TimeRange is a half-open [Start, End) range of capture time.
type TimeRange struct {
	Start float64
	End   float64
}

func (r TimeRange) Length() float64 { return r.End - r.Start }

// Clamp restricts r to the bounds of other. An empty result is valid.
func (r TimeRange) Clamp(other TimeRange) TimeRange {
	out := TimeRange{Start: math.Max(r.Start, other.Start), End: math.Min(r.End, other.End)}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out
}

// Capture is one loaded performance capture.
type Capture struct {
	Product    string
	Interval   float64
	Categories []Category
	Threads    []*Thread
}

// Range returns the time range covering every sample and marker of every
// thread. The end is exclusive and padded past the latest event by the
// sampling interval, so half-open range filtering over Range() keeps an
// instant marker sitting exactly on the last observed timestamp. The zero
// range is returned for an empty capture.
func (c *Capture) Range() TimeRange {
	start, end := math.Inf(1), math.Inf(-1)
	seen := false
	observe := func(t float64) {
		if math.IsNaN(t) {
			return
		}
		seen = true
		start = math.Min(start, t)
		end = math.Max(end, t)
	}
	for _, th := range c.Threads {
		for i := range th.Samples.Time {
			observe(th.Samples.Time[i])
		}
		for i := range th.Markers.StartTime {
			observe(th.Markers.StartTime[i])
			observe(th.Markers.EndTime[i])
		}
	}
	if !seen {
		return TimeRange{}
	}
	pad := c.Interval
	if pad <= 0 {
		pad = 1
	}
	return TimeRange{Start: start, End: end + pad}
}

// ThreadRange returns the time range of one thread's samples and markers.
func (c *Capture) ThreadRange(t *Thread) TimeRange {
	sub := Capture{Interval: c.Interval, Threads: []*Thread{t}}
	return sub.Range()
}
