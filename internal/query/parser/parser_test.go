package parser

import (
	"testing"

	"github.com/standardbeagle/sgrep/internal/query/ast"
)

func mustParse(t *testing.T, src string) *ast.Node {
	t.Helper()
	tree, err := Parse("test", src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tree
}

func TestParsePhraseLeaf(t *testing.T) {
	tree := mustParse(t, `stag("x")`)
	if tree.Op != ast.OpLeaf || tree.Leaf.Prefix != ast.PrefixStag || tree.Leaf.Term != "x" {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseElementInElement(t *testing.T) {
	tree := mustParse(t, `element("y") in element("x")`)
	if tree.Op != ast.OpIn {
		t.Fatalf("expected OpIn, got %v", tree.Op)
	}
	if tree.Left.Leaf.Term != "y" || tree.Right.Leaf.Term != "x" {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseNotIn(t *testing.T) {
	tree := mustParse(t, `stag("a") not in stag("b")`)
	if tree.Op != ast.OpNotIn {
		t.Fatalf("expected OpNotIn, got %v", tree.Op)
	}
}

func TestParseOrderedFamily(t *testing.T) {
	for src, want := range map[string]ast.Op{
		`stag("a") .. etag("a")`:  ast.OpDotDot,
		`stag("a") _. etag("a")`:  ast.OpUnderDot,
		`stag("a") ._ etag("a")`:  ast.OpDotUnder,
		`stag("a") __ etag("a")`:  ast.OpUnderUnder,
	} {
		tree := mustParse(t, src)
		if tree.Op != want {
			t.Fatalf("%q: expected %v, got %v", src, want, tree.Op)
		}
	}
}

func TestParseNearWithInt(t *testing.T) {
	tree := mustParse(t, `stag("a") near(5) stag("b")`)
	if tree.Op != ast.OpNear || tree.Param != 5 {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseFirstWithInt(t *testing.T) {
	tree := mustParse(t, `first(3, stag("a"))`)
	if tree.Op != ast.OpFirst || tree.Param != 3 {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseIdentityFunc(t *testing.T) {
	tree := mustParse(t, `outer(stag("a"))`)
	if tree.Op != ast.OpOuter {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseConsList(t *testing.T) {
	tree := mustParse(t, `[stag("a"), stag("b"), stag("c")]`)
	if tree.Op != ast.OpCons || len(tree.Children) != 3 {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseParensNesting(t *testing.T) {
	tree := mustParse(t, `(stag("a") or stag("b")) in stag("c")`)
	if tree.Op != ast.OpIn || tree.Left.Op != ast.OpOr {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseBuiltinIdents(t *testing.T) {
	tree := mustParse(t, `start .. end`)
	if tree.Op != ast.OpDotDot || tree.Left.Leaf.Prefix != ast.PrefixStart || tree.Right.Leaf.Prefix != ast.PrefixEnd {
		t.Fatalf("got %+v", tree)
	}
}

func TestParseFilePrefixStar(t *testing.T) {
	tree := mustParse(t, `file("chap*")`)
	if !tree.Leaf.FilePrefix || tree.Leaf.Term != "chap" {
		t.Fatalf("got %+v", tree.Leaf)
	}
}

func TestParseErrorUnknownIdent(t *testing.T) {
	if _, err := Parse("test", `bogus("x")`); err == nil {
		t.Fatal("expected parse error for unknown identifier")
	}
}

func TestParseErrorMismatchedParen(t *testing.T) {
	if _, err := Parse("test", `(stag("a")`); err == nil {
		t.Fatal("expected parse error for unclosed paren")
	}
}

func TestParseLeftAssociativeChain(t *testing.T) {
	tree := mustParse(t, `stag("a") or stag("b") or stag("c")`)
	if tree.Op != ast.OpOr {
		t.Fatalf("got %+v", tree)
	}
	if tree.Left.Op != ast.OpOr {
		t.Fatalf("expected left-associative nesting, got %+v", tree.Left)
	}
}

func TestParseHighByteLiteralYieldsRawBytes(t *testing.T) {
	tree := mustParse(t, `"caf\#xE9;"`)
	if tree.Op != ast.OpLeaf || tree.Leaf.Prefix != ast.PrefixLiteral {
		t.Fatalf("got %+v", tree)
	}
	if tree.Leaf.Term != "caf\xe9" {
		t.Fatalf("got %q, want the raw 0xE9 byte restored", tree.Leaf.Term)
	}
}
