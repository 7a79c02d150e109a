package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/sgrep/internal/index/reader"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
)

// TestAddPostingNegativeDeltaRoundTrips covers postings arriving out of
// start order, as full-element postings for nested elements do (they are
// recorded in end-tag order): the writer takes the explicit signed-delta
// record form, and the reader reconstructs both regions.
func TestAddPostingNegativeDeltaRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	w := New(Config{})
	key := ast.PrefixElements + "x"
	if err := w.AddPosting(key, 10, 20); err != nil {
		t.Fatal(err)
	}
	if err := w.AddPosting(key, 4, 30); err != nil {
		t.Fatalf("out-of-order start must take the signed explicit form, got %v", err)
	}
	if err := w.Finalize(path, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	idx, err := reader.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rl, err := idx.Lookup(ast.PrefixElements, "x", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	sorted := rl.EnsureStartSorted()
	if sorted.Len() != 2 {
		t.Fatalf("got %d postings, want 2", sorted.Len())
	}
	if r := sorted.At(0); r.Start != 4 || r.End != 30 {
		t.Fatalf("posting 0 = %v, want (4,30)", r)
	}
	if r := sorted.At(1); r.Start != 10 || r.End != 20 {
		t.Fatalf("posting 1 = %v, want (10,20)", r)
	}
}

func TestAddPostingRejectsNonPositiveLength(t *testing.T) {
	w := New(Config{})
	if err := w.AddPosting(ast.PrefixWord+"x", 5, 4); err == nil {
		t.Fatal("expected an error for end < start")
	}
}

// TestSpillOverflowMergesWithInMemoryTail drives the writer through
// several flushes by setting a tiny memory budget, leaving the last
// posting in the in-memory tail, then checks Finalize/Lookup still returns every posting in order —
// spool overflow must be transparent to a reader.
func TestSpillOverflowMergesWithInMemoryTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	w := New(Config{MemoryBudgetBytes: 1, TempDir: dir})
	key := ast.PrefixWord + "alpha"
	want := [][2]int64{{0, 4}, {10, 14}, {20, 24}, {30, 34}, {40, 44}, {50, 54}}
	for _, r := range want {
		if err := w.AddPosting(key, region.Offset(r[0]), region.Offset(r[1])); err != nil {
			t.Fatalf("AddPosting: %v", err)
		}
	}
	if len(w.tempFiles) == 0 {
		t.Fatal("expected at least one memory-load spill with a 1-byte budget")
	}

	if err := w.Finalize(path, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	idx, err := reader.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	rl, err := idx.Lookup(ast.PrefixWord, "alpha", false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rl.Len() != len(want) {
		t.Fatalf("got %d postings, want %d", rl.Len(), len(want))
	}
	for i, r := range want {
		got := rl.At(i)
		if int64(got.Start) != r[0] || int64(got.End) != r[1] {
			t.Fatalf("posting %d = %v, want (%d,%d)", i, got, r[0], r[1])
		}
	}
}

// TestFinalizeCleansUpSpillTempFiles checks that spill temp files are
// released on the success path too, not just on Abort.
func TestFinalizeCleansUpSpillTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx")

	w := New(Config{MemoryBudgetBytes: 1, TempDir: dir})
	for i := 0; i < 5; i++ {
		start := region.Offset(i * 10)
		if err := w.AddPosting(ast.PrefixWord+"a", start, start+2); err != nil {
			t.Fatal(err)
		}
	}
	spilled := append([]string(nil), w.tempFiles...)
	if len(spilled) == 0 {
		t.Fatal("expected a spill to have happened")
	}

	if err := w.Finalize(path, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for _, p := range spilled {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected spill temp %q to be removed after Finalize", p)
		}
	}
}

// TestAbortRemovesTempFiles checks the rollback contract: writer
// failure deletes every memory-load temp.
func TestAbortRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{MemoryBudgetBytes: 1, TempDir: dir})
	for i := 0; i < 3; i++ {
		start := region.Offset(i * 10)
		if err := w.AddPosting(ast.PrefixWord+"a", start, start+2); err != nil {
			t.Fatal(err)
		}
	}
	if len(w.tempFiles) == 0 {
		t.Fatal("expected a spill")
	}
	spilled := append([]string(nil), w.tempFiles...)

	w.Abort()
	for _, p := range spilled {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %q to be removed after Abort", p)
		}
	}

	if err := w.AddPosting(ast.PrefixWord+"b", 0, 1); err == nil {
		t.Fatal("expected AddPosting after Abort to fail")
	}
}

func TestStopWordKeepsNoPostings(t *testing.T) {
	w := New(Config{StopWords: map[string]bool{ast.PrefixWord + "the": true}})
	if err := w.AddPosting(ast.PrefixWord+"the", 0, 2); err != nil {
		t.Fatal(err)
	}
	ts := w.terms[ast.PrefixWord+"the"]
	if ts == nil {
		t.Fatal("expected a term state to exist even for a stop word")
	}
	if len(ts.buf) != 0 {
		t.Fatalf("expected no postings buffered for a stop word, got %d bytes", len(ts.buf))
	}
}

func TestOversizedTermsReportsOverThreshold(t *testing.T) {
	w := New(Config{})
	for i := 0; i < 100; i++ {
		start := region.Offset(i * 3)
		if err := w.AddPosting(ast.PrefixWord+"common", start, start+1); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.AddPosting(ast.PrefixWord+"rare", 0, 1); err != nil {
		t.Fatal(err)
	}

	var total int64
	for _, ts := range w.terms {
		total += ts.totalBytes
	}

	got := w.OversizedTerms(total, 50)
	if len(got) != 1 || got[0] != ast.PrefixWord+"common" {
		t.Fatalf("got %v, want only %q over threshold", got, ast.PrefixWord+"common")
	}
}

func TestFinalizeRollsBackOnIOError(t *testing.T) {
	w := New(Config{})
	if err := w.AddPosting(ast.PrefixWord+"a", 0, 1); err != nil {
		t.Fatal(err)
	}
	// A path inside a nonexistent directory forces os.Create to fail.
	bad := filepath.Join(t.TempDir(), "nosuchdir", "idx")
	if err := w.Finalize(bad, nil); err == nil {
		t.Fatal("expected Finalize to fail for an unwritable path")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Fatal("expected no partial file left behind after a failed Finalize")
	}
}
