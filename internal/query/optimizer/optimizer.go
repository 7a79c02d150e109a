// Package optimizer turns a freshly parsed *ast.Node tree into the
// DAG-shaped, refcounted tree the evaluator expects.
//
// Distinct phrase leaves are labelled first, in lexicographic order of their
// keys, so commutativity normalization picks the same operand order however
// a query lists its phrases. The remaining rewrite steps (labeling,
// phrase dedup, commutativity normalization, common-subtree elimination)
// are folded into one bottom-up recursive pass: a node's canonical dedup key only depends on its
// children's *already-assigned* labels, so processing children first and
// computing the key on the way back up gets dedup, commutativity
// normalization, and labeling in a single traversal. Refcounting remains a
// second pass since it counts edges in the now-finished DAG.
//
// Dedup table keys are hashed with xxhash rather than compared as raw
// strings, so long phrase terms never become long map keys.
package optimizer

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/sgrep/internal/query/ast"
)

// Reserved labels that are never subject to common-subtree elimination.
const (
	LabelNotKnown = -1
	LabelCons     = -2
	LabelChars    = -3 // reserved for the `chars` builtin, which has no denotation yet
)

// table is the per-level dedup map: xxhash of the structural key -> the
// representative node already seen for that key.
type table struct {
	leaves map[uint64]*ast.Node
	nodes  map[uint64]*ast.Node
	next   int
}

func newTable() *table { return &table{leaves: map[uint64]*ast.Node{}, nodes: map[uint64]*ast.Node{}} }

func (t *table) freshLabel() int {
	t.next++
	return t.next
}

// Optimize runs the full optimizer pipeline on root and returns the
// (possibly node-shared) DAG root, ready for the evaluator.
func Optimize(root *ast.Node) *ast.Node {
	t := newTable()
	// Label phrase leaves in key order; a stable sort keeps the first
	// occurrence of each key as its shared representative.
	var leaves []*ast.Node
	ast.Walk(root, func(n *ast.Node) {
		if n.Op == ast.OpLeaf && n.Leaf != nil {
			leaves = append(leaves, n)
		}
	})
	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].Leaf.Key() < leaves[j].Leaf.Key() })
	for _, n := range leaves {
		t.rewriteLeaf(n)
	}
	return t.rewrite(root)
}

func (t *table) rewrite(n *ast.Node) *ast.Node {
	if n == nil {
		return nil
	}
	if n.Op == ast.OpLeaf {
		return t.rewriteLeaf(n)
	}
	if n.Op == ast.OpCons {
		out := &ast.Node{Op: ast.OpCons, Label: LabelCons}
		for _, c := range n.Children {
			out.Children = append(out.Children, t.rewrite(c))
		}
		return out
	}

	left := t.rewrite(n.Left)
	right := t.rewrite(n.Right)

	// Commutativity normalization: for or/equal/
	// near, canonicalize so label(left) >= label(right).
	switch n.Op {
	case ast.OpOr, ast.OpEqual, ast.OpNear:
		if right != nil && left != nil && left.Label < right.Label {
			left, right = right, left
		}
	}

	rightLabel := LabelNotKnown
	if right != nil {
		rightLabel = right.Label
	}
	key := xxhash.Sum64String(fmt.Sprintf("%d|%d|%d|%d", n.Op, left.Label, rightLabel, n.Param))
	if rep, ok := t.nodes[key]; ok {
		return rep
	}

	out := &ast.Node{Op: n.Op, Left: left, Right: right, Param: n.Param, Label: t.freshLabel()}
	t.nodes[key] = out
	return out
}

// rewriteLeaf implements phrase deduplication: the
// first node seen for a given (prefix,term) key becomes the shared
// representative as-is, so any Regions a scanner pass already filled in
// on it travel forward unchanged; later duplicates resolve to that same
// node instead of getting a disconnected copy.
func (t *table) rewriteLeaf(n *ast.Node) *ast.Node {
	key := xxhash.Sum64String(n.Leaf.Key())
	if rep, ok := t.leaves[key]; ok {
		return rep
	}
	n.Label = t.freshLabel()
	t.leaves[key] = n
	return n
}

// AssignRefcounts walks the DAG once, setting each node's Refcount to its
// number of incoming edges. `#start`/`#end` leaves
// are constants the evaluator never frees, so they're left at -1.
func AssignRefcounts(root *ast.Node) {
	counts := map[*ast.Node]int{}
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n == nil {
			return
		}
		counts[n]++
		if counts[n] > 1 {
			return // already recursed into this node's children once
		}
		walk(n.Left)
		walk(n.Right)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	for n, c := range counts {
		if n.IsConstant() {
			n.Refcount = -1
			continue
		}
		n.Refcount = c
	}
}
