// Package marker derives display-ready markers from the raw marker table and
// provides the index-set transforms the panels chain over them.
package marker

import (
	"fmt"

	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/schema"
)

// Index is a dense integer identity into one generation of the full derived
// marker list. Indexes are only meaningful until the list is rebuilt; any
// persisted selection must be revalidated afterwards.
type Index int32

// Marker is one derived marker. HasEnd is false for instant markers and for
// intervals whose closing half was never observed (Incomplete then reports
// which of the two it is). Values are never mutated after derivation.
type Marker struct {
	Name       string
	Start      float64
	End        float64
	HasEnd     bool
	Incomplete bool
	Category   capture.CategoryIndex
	Data       capture.Payload

	// RawRows is the provenance of the marker: the raw row indexes it was
	// built from. One row for instant and interval rows, two for matched
	// start/end pairs. Empty for synthesized markers.
	RawRows []int32
}

// List is one generation of the full, sorted marker list.
type List struct {
	markers []Marker
}

func (l *List) Len() int { return len(l.markers) }

// Marker returns the marker at i. It panics on an out-of-bounds index: that
// can only happen when a stale index from a previous generation leaks across
// a recomputation, which is a caller bug.
func (l *List) Marker(i Index) *Marker {
	if i < 0 || int(i) >= len(l.markers) {
		panic(fmt.Sprintf("marker index %d out of range [0, %d): stale index from a previous generation", i, len(l.markers)))
	}
	return &l.markers[i]
}

// Valid reports whether i is a live index in this generation. Selection state
// surviving a recomputation must be re-checked with it.
func (l *List) Valid(i Index) bool {
	return i >= 0 && int(i) < len(l.markers)
}

// Indexes returns the full index list, in start-time order.
func (l *List) Indexes() []Index {
	out := make([]Index, len(l.markers))
	for i := range out {
		out[i] = Index(i)
	}
	return out
}

// Labeler renders the display label of a marker. The same label feeds search
// matching and the timing-layout bucket names.
type Labeler func(m *Marker) string

// NameLabeler labels every marker with its bare name.
func NameLabeler(m *Marker) string { return m.Name }

// SchemaLabeler renders labels from the schema's table label template,
// falling back to the marker name when no schema or template exists.
func SchemaLabeler(reg *schema.Registry) Labeler {
	return func(m *Marker) string {
		s := reg.Lookup(m.Name)
		if s == nil || s.TableLabel == "" {
			return m.Name
		}
		var get schema.FieldGetter
		if m.Data != nil {
			get = m.Data.Field
		}
		return schema.RenderLabel(s.TableLabel, get)
	}
}
