package marker

import (
	"math"
)

// TimingEntry places one marker in a display row.
type TimingEntry struct {
	Index  Index
	Start  float64
	End    float64
	HasEnd bool
	Label  string
}

// Row is an ordered sequence of entries that do not overlap in time.
type Row []TimingEntry

// Bucket groups the rows of one label for chart rendering. The renderer maps
// y position to bucket offset plus row index.
type Bucket struct {
	Name string
	Rows []Row
}

// Timing lays the markers out into the minimum number of non-overlapping
// rows per label bucket. Markers must arrive in start-time order (the order
// the full list and every filter preserve). Within a bucket each marker goes
// to the first row whose last entry ends at or before the marker's start;
// a new row opens only when none qualifies.
func Timing(list *List, indexes []Index, label Labeler) []Bucket {
	type openBucket struct {
		bucket  *Bucket
		rowEnds []float64
	}
	var order []string
	open := make(map[string]*openBucket)

	for _, i := range indexes {
		m := list.Marker(i)
		name := label(m)
		b := open[name]
		if b == nil {
			b = &openBucket{bucket: &Bucket{Name: name}}
			open[name] = b
			order = append(order, name)
		}

		// Incomplete markers run to the end of the capture and block their
		// row for good. Instant markers occupy a zero-length slot.
		end := m.Start
		if m.HasEnd {
			end = m.End
		} else if m.Incomplete {
			end = math.Inf(1)
		}

		entry := TimingEntry{Index: i, Start: m.Start, End: m.End, HasEnd: m.HasEnd, Label: name}
		placed := false
		for r := range b.rowEnds {
			if b.rowEnds[r] <= m.Start {
				b.bucket.Rows[r] = append(b.bucket.Rows[r], entry)
				b.rowEnds[r] = end
				placed = true
				break
			}
		}
		if !placed {
			b.bucket.Rows = append(b.bucket.Rows, Row{entry})
			b.rowEnds = append(b.rowEnds, end)
		}
	}

	out := make([]Bucket, 0, len(order))
	for _, name := range order {
		out = append(out, *open[name].bucket)
	}
	return out
}
