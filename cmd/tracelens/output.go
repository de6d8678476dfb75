package main

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/tracelens/tracelens/pkg/calltree"
	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/derive"
	"github.com/tracelens/tracelens/pkg/marker"
)

func isNaN(f float64) bool { return math.IsNaN(f) }

// categoryColors maps the capture's category color names onto terminal
// colors; unknown names print unstyled.
var categoryColors = map[string]*color.Color{
	"blue":      color.New(color.FgBlue),
	"green":     color.New(color.FgGreen),
	"orange":    color.New(color.FgYellow),
	"yellow":    color.New(color.FgYellow),
	"purple":    color.New(color.FgMagenta),
	"magenta":   color.New(color.FgMagenta),
	"red":       color.New(color.FgRed),
	"lightblue": color.New(color.FgCyan),
	"grey":      color.New(color.FgWhite),
	"gray":      color.New(color.FgWhite),
}

func colorize(name, colorName string) string {
	if c, ok := categoryColors[colorName]; ok {
		return c.Sprint(name)
	}
	return name
}

func writeMarkerTable(w io.Writer, d *derive.Deriver, capt *capture.Capture, idx []marker.Index) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Index", "Start", "Duration", "Category", "Name", "Label"})
	table.SetBorder(false)
	list := d.Markers()
	for _, i := range idx {
		m := list.Marker(i)
		duration := ""
		switch {
		case m.HasEnd:
			duration = fmt.Sprintf("%.2fms", m.End-m.Start)
		case m.Incomplete:
			duration = "incomplete"
		}
		category := ""
		if int(m.Category) < len(capt.Categories) {
			cat := capt.Categories[m.Category]
			category = colorize(cat.Name, cat.Color)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%.2f", m.Start),
			duration,
			category,
			m.Name,
			d.Label(m),
		})
	}
	table.Render()
}

func writeTree(w io.Writer, t *calltree.Tree, minPercent float64) {
	fmt.Fprintf(w, "total weight: %s (%s)\n", calltree.FormatWeight(t.TotalWeight(), t.WeightType()), t.WeightType())
	var walk func(n calltree.NodeID, depth int)
	walk = func(n calltree.NodeID, depth int) {
		d := t.DisplayData(n)
		if d.TotalPercent < minPercent {
			return
		}
		for i := 0; i < depth; i++ {
			fmt.Fprint(w, "  ")
		}
		name := colorize(d.Name, d.CategoryColor)
		fmt.Fprintf(w, "%s  self=%s total=%s (%.1f%%)", name, d.SelfFormatted, d.TotalFormatted, d.TotalPercent)
		if d.Implementation != "" {
			fmt.Fprintf(w, " [%s]", d.Implementation)
		}
		fmt.Fprintln(w)
		for _, c := range sortedByTotal(t, t.Children(n)) {
			walk(c, depth+1)
		}
	}
	for _, root := range sortedByTotal(t, t.Roots()) {
		walk(root, 0)
	}
}

func sortedByTotal(t *calltree.Tree, nodes []calltree.NodeID) []calltree.NodeID {
	sort.SliceStable(nodes, func(i, j int) bool { return t.Total(nodes[i]) > t.Total(nodes[j]) })
	return nodes
}

func writeTiming(w io.Writer, buckets []marker.Bucket) {
	for _, b := range buckets {
		fmt.Fprintf(w, "%s: %d rows\n", b.Name, len(b.Rows))
		for r, row := range b.Rows {
			fmt.Fprintf(w, "  row %d:", r)
			for _, e := range row {
				if e.HasEnd {
					fmt.Fprintf(w, " [%0.2f,%0.2f)", e.Start, e.End)
				} else {
					fmt.Fprintf(w, " [%0.2f]", e.Start)
				}
			}
			fmt.Fprintln(w)
		}
	}
}

func writeTrack(w io.Writer, col *marker.TrackCollection) {
	fmt.Fprintf(w, "track %s: %d samples, min=%g max=%g\n", col.Name, len(col.Time), col.Min, col.Max)
	keys := make([]string, 0, len(col.Lines))
	for k := range col.Lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s:", k)
		for i, v := range col.Lines[k] {
			fmt.Fprintf(w, " (%g, %g)", col.Time[i], v)
		}
		fmt.Fprintln(w)
	}
}
