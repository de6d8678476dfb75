package calltree

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/xlab/treeprint"

	"github.com/tracelens/tracelens/pkg/capture"
)

// DisplayData is the per-node projection the call tree panel renders.
type DisplayData struct {
	Name           string
	Self           float64
	Total          float64
	SelfFormatted  string
	TotalFormatted string
	TotalPercent   float64
	Category       string
	CategoryColor  string
	Subcategory    string
	Implementation string
	Icon           string
}

// DisplayData projects one node for rendering.
func (t *Tree) DisplayData(n NodeID) DisplayData {
	nd := &t.nodes[n]
	d := DisplayData{
		Name:           t.FuncName(n),
		Self:           nd.self,
		Total:          nd.total,
		SelfFormatted:  FormatWeight(nd.self, t.weightType),
		TotalFormatted: FormatWeight(nd.total, t.weightType),
		Implementation: t.dominantImplementation(n),
	}
	if t.total > 0 {
		d.TotalPercent = 100 * nd.total / t.total
	}
	if int(nd.category) >= 0 && int(nd.category) < len(t.categories) {
		cat := t.categories[nd.category]
		d.Category = cat.Name
		d.CategoryColor = cat.Color
		if nd.subcategory != capture.NoSubcategory && int(nd.subcategory) < len(cat.Subcategories) {
			d.Subcategory = cat.Subcategories[nd.subcategory]
		}
	}
	if d.Implementation != "" {
		d.Icon = "js"
	}
	return d
}

// dominantImplementation picks the engine tier carrying the largest share of
// the node's total weight, or "" when no JS frames contributed.
func (t *Tree) dominantImplementation(n NodeID) string {
	var best string
	var bestTotal float64
	for impl, w := range t.byImpl[n] {
		if w.Total > bestTotal || (w.Total == bestTotal && impl < best) {
			best, bestTotal = impl, w.Total
		}
	}
	return best
}

// FormatWeight renders a weight under its unit semantics.
func FormatWeight(w float64, wt capture.WeightType) string {
	switch wt {
	case capture.WeightBytes:
		if w < 0 {
			return "-" + humanize.Bytes(uint64(-w))
		}
		return humanize.Bytes(uint64(w))
	case capture.WeightTracingMs:
		return fmt.Sprintf("%.1fms", w)
	default:
		return fmt.Sprintf("%.0f", w)
	}
}

// String renders the tree for debugging.
func (t *Tree) String() string {
	type branch struct {
		nodes []NodeID
		treeprint.Tree
	}
	printed := treeprint.New()
	format := func(n NodeID) string {
		return fmt.Sprintf("%s: self %s total %s", t.FuncName(n), FormatWeight(t.Self(n), t.weightType), FormatWeight(t.Total(n), t.weightType))
	}
	for _, root := range t.Roots() {
		b := printed.AddBranch(format(root))
		remaining := []*branch{{nodes: t.Children(root), Tree: b}}
		for len(remaining) > 0 {
			current := remaining[0]
			remaining = remaining[1:]
			for _, n := range current.nodes {
				if children := t.Children(n); len(children) > 0 {
					remaining = append(remaining, &branch{nodes: children, Tree: current.Tree.AddBranch(format(n))})
				} else {
					current.Tree.AddNode(format(n))
				}
			}
		}
	}
	return printed.String()
}
