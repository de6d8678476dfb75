package marker

import (
	"math"

	"github.com/tracelens/tracelens/pkg/capture"
)

const (
	// DefaultJankThreshold is the event-processing delay, in capture time
	// units, above which a synthetic jank marker is emitted.
	DefaultJankThreshold = 50.0

	// JankMarkerName labels markers synthesized from responsiveness deltas.
	JankMarkerName = "Jank"

	// HangMarkerName is the fallback type label consumers switch to when the
	// capture predates responsiveness instrumentation and hang markers come
	// from the background hang reporter instead.
	HangMarkerName = "BHR-detected hang"
)

// DeriveJank synthesizes interval markers for event-processing delays. For
// each consecutive sample pair whose responsiveness delta exceeds the
// threshold, one marker spans the delta starting at the earlier sample.
// Captures without responsiveness data yield no markers.
func DeriveJank(samples *capture.SampleTable, threshold float64, category capture.CategoryIndex) []Marker {
	if samples.Responsiveness == nil {
		return nil
	}
	var out []Marker
	for i := 1; i < samples.Len(); i++ {
		prev, cur := samples.Responsiveness[i-1], samples.Responsiveness[i]
		if math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		delta := cur - prev
		if delta <= threshold {
			continue
		}
		start := samples.Time[i-1]
		out = append(out, Marker{
			Name:     JankMarkerName,
			Start:    start,
			End:      start + delta,
			HasEnd:   true,
			Category: category,
		})
	}
	return out
}

// JankTypeLabel returns the marker type label downstream panels use for hang
// markers: "Jank" when synthesis produced any, the BHR fallback otherwise.
func JankTypeLabel(janks []Marker) string {
	if len(janks) > 0 {
		return JankMarkerName
	}
	return HangMarkerName
}
