// Package calltree aggregates sampled call stacks into a tree of call nodes.
// A node is identified by its full path from a root, not by function alone:
// the same function reached through two call sites is two nodes.
package calltree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/tracelens/tracelens/pkg/capture"
)

// NodeID identifies a node within one built tree.
type NodeID int32

// None is the absent-node sentinel.
const None NodeID = -1

// Options tune tree construction.
type Options struct {
	// Inverted builds the tree from stack leaves down: leaf frames become
	// roots and self time is attributed at what used to be the top of the
	// stack.
	Inverted bool
}

// WeightPair is an accumulated self/total weight subtotal.
type WeightPair struct {
	Self  float64
	Total float64
}

// CategoryKey identifies one (category, subcategory) breakdown bucket.
type CategoryKey struct {
	Category    capture.CategoryIndex
	Subcategory int32
}

// node is laid out the flat way: first-child/next-sibling links into the
// node slice, parent back-references non-owning.
type node struct {
	firstChild  NodeID
	nextSibling NodeID
	parent      NodeID
	fn          int32
	category    capture.CategoryIndex
	subcategory int32
	self        float64
	total       float64
}

// Tree is an aggregated call tree. It is immutable once built.
type Tree struct {
	thread     *capture.Thread
	categories []capture.Category
	nodes      []node
	byCategory []map[CategoryKey]WeightPair
	byImpl     []map[string]WeightPair
	total      float64
	weightType capture.WeightType
	inverted   bool
}

// SamplesInRange returns the indexes of samples falling in the half-open
// range, in time order.
func SamplesInRange(samples *capture.SampleTable, rng capture.TimeRange) []int32 {
	var out []int32
	for i := 0; i < samples.Len(); i++ {
		if t := samples.Time[i]; t >= rng.Start && t < rng.End {
			out = append(out, int32(i))
		}
	}
	return out
}

// Build aggregates the given samples of a thread into a call tree. Nodes are
// created lazily as call paths are first encountered; repeated paths hit a
// hash cache instead of re-walking the tree.
func Build(categories []capture.Category, t *capture.Thread, sampleIdx []int32, opts Options) *Tree {
	tree := &Tree{
		thread:     t,
		categories: categories,
		// Node 0 is a hidden root holding the top-level nodes as children.
		nodes:      make([]node, 1, len(sampleIdx)*4),
		weightType: t.Samples.WeightType,
		inverted:   opts.Inverted,
	}
	tree.nodes[0] = node{firstChild: None, nextSibling: None, parent: None, fn: -1}
	tree.byCategory = append(tree.byCategory, nil)
	tree.byImpl = append(tree.byImpl, nil)

	var (
		hasher    pathHasher
		leafCache = make(map[uint64]NodeID)
		fnPath    []int32
		framePath []int32
	)

	for _, si := range sampleIdx {
		stack := t.Samples.Stack[si]
		if stack == capture.NoStack {
			continue
		}
		w := t.Samples.SampleWeight(int(si))

		// Walk the parent-pointer stack table leaf to root.
		framePath = framePath[:0]
		for s := stack; s != capture.NoStack; s = t.Stacks.Prefix[s] {
			framePath = append(framePath, t.Stacks.Frame[s])
		}
		// framePath[0] is the leaf frame. The call path runs root to leaf
		// unless the tree is inverted, in which case the leaf leads.
		fnPath = fnPath[:0]
		if opts.Inverted {
			for _, f := range framePath {
				fnPath = append(fnPath, t.Frames.Func[f])
			}
		} else {
			for i := len(framePath) - 1; i >= 0; i-- {
				fnPath = append(fnPath, t.Frames.Func[framePath[i]])
			}
		}

		leafFrame := framePath[0]
		key := CategoryKey{
			Category:    t.Frames.Category[leafFrame],
			Subcategory: t.Frames.Subcategory[leafFrame],
		}
		impl := ""
		if t.Frames.Implementation[leafFrame] != capture.NoImplementation {
			impl = t.Strings.Get(t.Frames.Implementation[leafFrame])
		}

		h := hasher.hashPath(fnPath)
		leaf, ok := leafCache[h]
		if !ok {
			leaf = tree.insertPath(fnPath, framePath, opts.Inverted)
			leafCache[h] = leaf
		}
		tree.accumulate(leaf, w, key, impl)
		tree.total += w
	}
	return tree
}

// insertPath walks the path from the hidden root, creating missing nodes, and
// returns the leaf node. No weights are touched here.
func (t *Tree) insertPath(fnPath, framePath []int32, inverted bool) NodeID {
	current := NodeID(0)
	for depth, fn := range fnPath {
		child := t.nodes[current].firstChild
		for child != None && t.nodes[child].fn != fn {
			child = t.nodes[child].nextSibling
		}
		if child == None {
			// The frame contributing this path element determines the new
			// node's category.
			var frame int32
			if inverted {
				frame = framePath[depth]
			} else {
				frame = framePath[len(framePath)-1-depth]
			}
			child = NodeID(len(t.nodes))
			t.nodes = append(t.nodes, node{
				firstChild:  None,
				nextSibling: t.nodes[current].firstChild,
				parent:      current,
				fn:          fn,
				category:    t.thread.Frames.Category[frame],
				subcategory: t.thread.Frames.Subcategory[frame],
			})
			t.byCategory = append(t.byCategory, nil)
			t.byImpl = append(t.byImpl, nil)
			t.nodes[current].firstChild = child
		}
		current = child
	}
	return current
}

// accumulate adds one sample's weight: self at the leaf, total along every
// node up to the root, and the per-category and per-implementation subtotals
// attributed to the sample's leaf frame.
func (t *Tree) accumulate(leaf NodeID, w float64, key CategoryKey, impl string) {
	t.nodes[leaf].self += w
	t.addBreakdown(leaf, key, impl, WeightPair{Self: w, Total: w})
	for n := leaf; n != 0; n = t.nodes[n].parent {
		t.nodes[n].total += w
		if n != leaf {
			t.addBreakdown(n, key, impl, WeightPair{Total: w})
		}
	}
}

func (t *Tree) addBreakdown(n NodeID, key CategoryKey, impl string, w WeightPair) {
	if t.byCategory[n] == nil {
		t.byCategory[n] = make(map[CategoryKey]WeightPair, 4)
	}
	c := t.byCategory[n][key]
	c.Self += w.Self
	c.Total += w.Total
	t.byCategory[n][key] = c
	if impl == "" {
		return
	}
	if t.byImpl[n] == nil {
		t.byImpl[n] = make(map[string]WeightPair, 2)
	}
	p := t.byImpl[n][impl]
	p.Self += w.Self
	p.Total += w.Total
	t.byImpl[n][impl] = p
}

// Roots returns the top-level nodes.
func (t *Tree) Roots() []NodeID { return t.Children(0) }

// Children returns the node's children. The hidden root is node 0, so
// Children(0) equals Roots().
func (t *Tree) Children(n NodeID) []NodeID {
	var out []NodeID
	for c := t.nodes[n].firstChild; c != None; c = t.nodes[c].nextSibling {
		out = append(out, c)
	}
	return out
}

// Parent returns the node's parent, or None for top-level nodes.
func (t *Tree) Parent(n NodeID) NodeID {
	p := t.nodes[n].parent
	if p == 0 {
		return None
	}
	return p
}

// Len returns the number of call nodes, excluding the hidden root.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

// Self returns the node's own sampled weight.
func (t *Tree) Self(n NodeID) float64 { return t.nodes[n].self }

// Total returns the node's weight including descendants.
func (t *Tree) Total(n NodeID) float64 { return t.nodes[n].total }

// TotalWeight returns the summed weight of every aggregated sample; the root
// totals add up to it.
func (t *Tree) TotalWeight() float64 { return t.total }

// WeightType returns the unit of the tree's weights.
func (t *Tree) WeightType() capture.WeightType { return t.weightType }

// Inverted reports whether the tree was built leaf-first.
func (t *Tree) Inverted() bool { return t.inverted }

// FuncName returns the function name of a node.
func (t *Tree) FuncName(n NodeID) string {
	return t.thread.Strings.Get(t.thread.Funcs.Name[t.nodes[n].fn])
}

// CategoryBreakdown returns the node's per-(category, subcategory) subtotals.
// The map is owned by the tree; callers must not mutate it.
func (t *Tree) CategoryBreakdown(n NodeID) map[CategoryKey]WeightPair { return t.byCategory[n] }

// ImplementationBreakdown returns the node's per-engine-tier subtotals.
func (t *Tree) ImplementationBreakdown(n NodeID) map[string]WeightPair { return t.byImpl[n] }

// pathHasher hashes function-id paths for the leaf cache.
type pathHasher struct {
	hash *xxhash.Digest
	b    [4]byte
}

func (h *pathHasher) hashPath(fns []int32) uint64 {
	if h.hash == nil {
		h.hash = xxhash.New()
	} else {
		h.hash.Reset()
	}
	for _, fn := range fns {
		binary.LittleEndian.PutUint32(h.b[:], uint32(fn))
		if _, err := h.hash.Write(h.b[:]); err != nil {
			panic("unable to write hash")
		}
	}
	return h.hash.Sum64()
}
