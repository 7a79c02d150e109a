package phrasedriver

import (
	"fmt"
	"testing"

	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/sgmlscan"
)

func buildFileList(t *testing.T, contents map[string]string, order []string) (*region.FileList, ReadFile) {
	t.Helper()
	fl := region.NewFileList()
	for _, name := range order {
		if err := fl.Add(name, region.Offset(len(contents[name]))); err != nil {
			t.Fatal(err)
		}
	}
	read := func(name string) ([]byte, error) {
		c, ok := contents[name]
		if !ok {
			return nil, fmt.Errorf("no such file %q", name)
		}
		return []byte(c), nil
	}
	return fl, read
}

func TestRunResolvesLiteralStructuralAndFileLeaves(t *testing.T) {
	contents := map[string]string{"doc.xml": "<a>x y</a><b>z</b>"}
	fl, read := buildFileList(t, contents, []string{"doc.xml"})

	lit := ast.NewLeaf(ast.PrefixLiteral, "y")
	stagA := ast.NewLeaf(ast.PrefixStag, "a")
	fileLeaf := ast.NewLeaf(ast.PrefixFile, "doc.xml")
	root := ast.NewCons([]*ast.Node{lit, stagA, fileLeaf})

	if err := Run(root, fl, read, sgmlscan.DefaultConfig(sgmlscan.ModeXML), nil); err != nil {
		t.Fatal(err)
	}

	if lit.Leaf.Regions == nil || lit.Leaf.Regions.Len() != 1 {
		t.Fatalf("expected 1 hit for literal \"y\", got %v", lit.Leaf.Regions)
	}
	if got := lit.Leaf.Regions.At(0); got.Start != 5 || got.End != 5 {
		t.Fatalf("literal \"y\" region = %v, want (5,5)", got)
	}

	if stagA.Leaf.Regions == nil || stagA.Leaf.Regions.Len() != 1 {
		t.Fatalf("expected 1 stag(a) hit, got %v", stagA.Leaf.Regions)
	}
	if got := stagA.Leaf.Regions.At(0); got.Start != 0 || got.End != 2 {
		t.Fatalf("stag(a) region = %v, want (0,2)", got)
	}

	if fileLeaf.Leaf.Regions == nil || fileLeaf.Leaf.Regions.Len() != 1 {
		t.Fatalf("expected 1 file hit, got %v", fileLeaf.Leaf.Regions)
	}
	if got := fileLeaf.Leaf.Regions.At(0); got.Start != 0 || int(got.End) != len(contents["doc.xml"])-1 {
		t.Fatalf("file region = %v, want whole-file span", got)
	}
}

func TestRunLeavesUnmatchedLeafEmpty(t *testing.T) {
	contents := map[string]string{"doc.txt": "hello world"}
	fl, read := buildFileList(t, contents, []string{"doc.txt"})

	lit := ast.NewLeaf(ast.PrefixLiteral, "goodbye")
	if err := Run(lit, fl, read, sgmlscan.DefaultConfig(sgmlscan.ModePlainText), nil); err != nil {
		t.Fatal(err)
	}
	if lit.Leaf.Regions == nil || lit.Leaf.Regions.Len() != 0 {
		t.Fatalf("expected no hits, got %v", lit.Leaf.Regions)
	}
	if !lit.Leaf.Regions.Complete() {
		t.Fatal("expected the leaf's RegionList to be frozen")
	}
}

func TestRunScansIncludedSystemEntities(t *testing.T) {
	contents := map[string]string{
		"doc.xml": `<!DOCTYPE doc SYSTEM "ent.xml"><doc/>`,
		"ent.xml": `<x>needle</x>`,
	}
	fl, read := buildFileList(t, contents, []string{"doc.xml"})

	word := ast.NewLeaf(ast.PrefixWord, "needle")
	cfg := sgmlscan.DefaultConfig(sgmlscan.ModeXML)
	cfg.IncludeSystemEntities = true
	if err := Run(word, fl, read, cfg, nil); err != nil {
		t.Fatal(err)
	}

	if len(fl.Files()) != 2 || fl.Files()[1].Name != "ent.xml" {
		t.Fatalf("expected ent.xml appended to the file list, got %v", fl.Files())
	}
	if word.Leaf.Regions == nil || word.Leaf.Regions.Len() != 1 {
		t.Fatalf("expected 1 hit for the word inside the system entity, got %v", word.Leaf.Regions)
	}
	base := fl.Files()[1].Start
	if got := word.Leaf.Regions.At(0); got.Start != base+3 {
		t.Fatalf("hit = %v, want start at entity-file offset 3 (+%d)", got, base)
	}
}
