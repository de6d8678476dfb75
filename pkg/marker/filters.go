package marker

import (
	"github.com/grafana/regexp"
	"github.com/samber/lo"

	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/schema"
)

// Every filter below is a pure transform over an index set: it preserves
// relative order and returns a subset. Consumers chain them in a fixed order;
// which stages a panel applies is the panel's choice.

// FilterRange keeps markers overlapping the half-open range. Instant markers
// sitting exactly on the range start are kept; incomplete intervals extend to
// the end of the capture and only their start is checked. Out-of-bounds
// ranges simply produce an empty result.
func FilterRange(list *List, indexes []Index, rng capture.TimeRange) []Index {
	return lo.Filter(indexes, func(i Index, _ int) bool {
		m := list.Marker(i)
		switch {
		case m.HasEnd:
			return m.Start < rng.End && m.End > rng.Start
		case m.Incomplete:
			return m.Start < rng.End
		default: // instant
			return m.Start >= rng.Start && m.Start < rng.End
		}
	})
}

// PreviewSelection is the interactively dragged sub-range layered on top of
// the committed range.
type PreviewSelection struct {
	HasSelection bool
	Start        float64
	End          float64
}

// FilterPreview reapplies range filtering over the preview selection. Without
// an active selection it is the identity.
func FilterPreview(list *List, indexes []Index, sel PreviewSelection) []Index {
	if !sel.HasSelection {
		return indexes
	}
	return FilterRange(list, indexes, capture.TimeRange{Start: sel.Start, End: sel.End})
}

// FilterWindowIDs keeps markers whose payload references an inner window id
// in ids. A nil set means the full-capture view: everything is kept.
// keepGlobal controls whether markers with no window association survive.
func FilterWindowIDs(list *List, indexes []Index, ids map[uint64]struct{}, keepGlobal bool) []Index {
	if ids == nil {
		return indexes
	}
	return lo.Filter(indexes, func(i Index, _ int) bool {
		m := list.Marker(i)
		w, ok := m.Data.(capture.WindowIDer)
		if !ok || w.WindowID() == capture.NoInnerWindowID {
			return keepGlobal
		}
		_, relevant := ids[w.WindowID()]
		return relevant
	})
}

// SearchFilter is a compiled set of free-text patterns. A marker matches when
// any pattern matches its rendered label, case-insensitively. Terms that fail
// to compile as regular expressions fall back to literal substring matching.
type SearchFilter struct {
	patterns []*regexp.Regexp
}

func NewSearchFilter(terms ...string) *SearchFilter {
	f := &SearchFilter{}
	for _, term := range terms {
		if term == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + term)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
		}
		f.patterns = append(f.patterns, re)
	}
	return f
}

// Matches reports whether any pattern matches the label.
func (f *SearchFilter) Matches(label string) bool {
	for _, re := range f.patterns {
		if re.MatchString(label) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no usable patterns.
func (f *SearchFilter) Empty() bool { return f == nil || len(f.patterns) == 0 }

// FilterSearch keeps markers whose rendered label matches the search filter.
// The label function must be the same one the display uses, so that search
// results agree with what the user sees.
func FilterSearch(list *List, indexes []Index, f *SearchFilter, label Labeler) []Index {
	if f.Empty() {
		return indexes
	}
	return lo.Filter(indexes, func(i Index, _ int) bool {
		m := list.Marker(i)
		if f.Matches(label(m)) {
			return true
		}
		// The rendered label may omit payload detail; search the payload's
		// own searchable fields too.
		return f.matchesPayload(m.Data)
	})
}

func (f *SearchFilter) matchesPayload(p capture.Payload) bool {
	switch p := p.(type) {
	case nil:
		return false
	case *capture.TextPayload:
		return f.Matches(p.Name)
	case *capture.NetworkPayload:
		return f.Matches(p.URI)
	case *capture.IPCPayload:
		return f.Matches(p.MessageType)
	case *capture.GenericPayload:
		for _, v := range p.Values {
			if s, ok := v.(string); ok && f.Matches(s) {
				return true
			}
		}
	}
	return false
}

// FilterDisplayLocation keeps markers whose schema declares the location.
// Markers with no schema at all follow the keepUnknown policy; a schema that
// exists but omits the location always excludes the marker. Applying the
// filter twice is the same as applying it once.
func FilterDisplayLocation(list *List, indexes []Index, reg *schema.Registry, loc schema.Location, keepUnknown bool) []Index {
	return lo.Filter(indexes, func(i Index, _ int) bool {
		s := reg.Lookup(list.Marker(i).Name)
		if s == nil {
			return keepUnknown
		}
		return s.DisplayedAt(loc)
	})
}

// MatchesName is a convenience for track collection: the indexes of all
// markers with the given name, preserving order.
func MatchesName(list *List, indexes []Index, name string) []Index {
	return lo.Filter(indexes, func(i Index, _ int) bool {
		return list.Marker(i).Name == name
	})
}
