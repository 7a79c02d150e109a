package optimizer

import (
	"testing"

	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/query/parser"
)

func mustParse(t *testing.T, src string) *ast.Node {
	t.Helper()
	tree, err := parser.Parse("test", src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tree
}

func TestPhraseDedupSharesLeaf(t *testing.T) {
	tree := mustParse(t, `stag("a") or stag("a")`)
	opt := Optimize(tree)
	if opt.Left != opt.Right {
		t.Fatalf("expected identical phrase leaves to share a node: %p vs %p", opt.Left, opt.Right)
	}
}

func TestCommonSubtreeElimination(t *testing.T) {
	tree := mustParse(t, `(stag("a") .. etag("a")) or (stag("a") .. etag("a"))`)
	opt := Optimize(tree)
	if opt.Left != opt.Right {
		t.Fatalf("expected identical subtrees to be shared: %+v vs %+v", opt.Left, opt.Right)
	}
}

func TestCommutativityNormalizationOr(t *testing.T) {
	a := mustParse(t, `stag("a") or stag("b")`)
	b := mustParse(t, `stag("b") or stag("a")`)
	oa := Optimize(a)
	ob := Optimize(b)
	if oa.Left.Leaf.Term != ob.Left.Leaf.Term || oa.Right.Leaf.Term != ob.Right.Leaf.Term {
		t.Fatalf("expected canonical ordering to agree: %q/%q vs %q/%q",
			oa.Left.Leaf.Term, oa.Right.Leaf.Term, ob.Left.Leaf.Term, ob.Right.Leaf.Term)
	}
}

func TestConsNodesNeverMerge(t *testing.T) {
	tree := mustParse(t, `[stag("a"), stag("a")] or [stag("a"), stag("a")]`)
	opt := Optimize(tree)
	if opt.Left == opt.Right {
		t.Fatal("cons nodes must never be shared by common-subtree elimination")
	}
	if opt.Left.Label != LabelCons || opt.Right.Label != LabelCons {
		t.Fatalf("expected LabelCons on both cons nodes")
	}
}

func TestRefcounting(t *testing.T) {
	tree := mustParse(t, `stag("a") or stag("a")`)
	opt := Optimize(tree)
	AssignRefcounts(opt)
	if opt.Refcount != 1 {
		t.Fatalf("root refcount: got %d want 1", opt.Refcount)
	}
	if opt.Left.Refcount != 2 {
		t.Fatalf("shared leaf refcount: got %d want 2", opt.Left.Refcount)
	}
}

func TestConstantLeavesNeverFreed(t *testing.T) {
	tree := mustParse(t, `start .. end`)
	opt := Optimize(tree)
	AssignRefcounts(opt)
	if opt.Left.Refcount != -1 || opt.Right.Refcount != -1 {
		t.Fatalf("expected start/end to carry refcount -1, got %d/%d", opt.Left.Refcount, opt.Right.Refcount)
	}
}
