package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/sgrep/internal/index/writer"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
)

func buildIndex(t *testing.T, path string, postings map[string][][2]int64, files *region.FileList) {
	t.Helper()
	w := writer.New(writer.Config{})
	for key, rs := range postings {
		for _, r := range rs {
			if err := w.AddPosting(key, region.Offset(r[0]), region.Offset(r[1])); err != nil {
				t.Fatalf("AddPosting(%q): %v", key, err)
			}
		}
	}
	if err := w.Finalize(path, files); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

// TestLookupExactRoundTrip round-trips through the writer: indexing
// "alpha beta\nalpha gamma\n" and looking up word("alpha") returns exactly
// the regions a from-scratch scan would find.
func TestLookupExactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	fl := region.NewFileList()
	content := "alpha beta\nalpha gamma\n"
	if err := fl.Add("doc.txt", region.Offset(len(content))); err != nil {
		t.Fatal(err)
	}

	buildIndex(t, path, map[string][][2]int64{
		ast.PrefixWord + "alpha": {{0, 4}, {11, 15}},
		ast.PrefixWord + "beta":  {{6, 9}},
		ast.PrefixWord + "gamma": {{17, 21}},
	}, fl)

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rl, err := idx.Lookup(ast.PrefixWord, "alpha", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rl.Len() != 2 {
		t.Fatalf("got %d regions, want 2", rl.Len())
	}
	if got := rl.At(0); got.Start != 0 || got.End != 4 {
		t.Fatalf("region 0 = %v, want (0,4)", got)
	}
	if got := rl.At(1); got.Start != 11 || got.End != 15 {
		t.Fatalf("region 1 = %v, want (11,15)", got)
	}
}

func TestLookupMissingTermReturnsEmptyFrozenList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")
	buildIndex(t, path, map[string][][2]int64{
		ast.PrefixWord + "alpha": {{0, 4}},
	}, nil)

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rl, err := idx.Lookup(ast.PrefixWord, "nope", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rl.Len() != 0 {
		t.Fatalf("expected no hits, got %d", rl.Len())
	}
	if !rl.Complete() {
		t.Fatal("expected frozen empty list")
	}
}

func TestLookupRangePrefixMergesMultipleTerms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")
	buildIndex(t, path, map[string][][2]int64{
		ast.PrefixWord + "apple":   {{20, 24}},
		ast.PrefixWord + "apricot": {{0, 6}},
		ast.PrefixWord + "avocado": {{10, 16}},
		ast.PrefixWord + "banana":  {{30, 35}},
	}, nil)

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rl, err := idx.Lookup(ast.PrefixWord, "ap", true)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rl.Len() != 2 {
		t.Fatalf("got %d regions, want 2 (apple+apricot, not avocado/banana)", rl.Len())
	}
	if got := rl.At(0); got.Start != 0 {
		t.Fatalf("region 0 = %v, want start 0 (apricot)", got)
	}
	if got := rl.At(1); got.Start != 20 {
		t.Fatalf("region 1 = %v, want start 20 (apple)", got)
	}
}

func TestLookupStopWordKeepsTermWithNoPostings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	w := writer.New(writer.Config{StopWords: map[string]bool{ast.PrefixWord + "the": true}})
	if err := w.AddPosting(ast.PrefixWord+"the", 0, 2); err != nil {
		t.Fatal(err)
	}
	if err := w.AddPosting(ast.PrefixWord+"cat", 4, 6); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(path, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rl, err := idx.Lookup(ast.PrefixWord, "cat", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rl.Len() != 1 {
		t.Fatalf("got %d regions for \"cat\", want 1", rl.Len())
	}

	if idx.NTerms() != 2 {
		t.Fatalf("got %d dictionary terms, want 2 (the stop word stays in the dictionary)", idx.NTerms())
	}
	rl, err = idx.Lookup(ast.PrefixWord, "the", false)
	if err != nil {
		t.Fatalf("Lookup(the): %v", err)
	}
	if rl.Len() != 0 {
		t.Fatalf("got %d regions for stop word \"the\", want 0", rl.Len())
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notanindex")
	if err := os.WriteFile(path, []byte("not an index file at all, just junk bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected an error opening a non-index file")
	}
}

func TestFilesSectionRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	fl := region.NewFileList()
	if err := fl.Add("a.txt", 10); err != nil {
		t.Fatal(err)
	}
	if err := fl.Add("b.txt", 20); err != nil {
		t.Fatal(err)
	}
	buildIndex(t, path, map[string][][2]int64{ast.PrefixWord + "x": {{0, 0}}}, fl)

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	files := idx.Files()
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Name != "a.txt" || files[0].Start != 0 || files[0].Length != 10 {
		t.Fatalf("file 0 = %+v", files[0])
	}
	if files[1].Name != "b.txt" || files[1].Start != 10 || files[1].Length != 20 {
		t.Fatalf("file 1 = %+v", files[1])
	}
}
