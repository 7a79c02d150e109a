package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// captureStdout redirects os.Stdout for the duration of fn and returns what
// was written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// TestRunQueryCountDisjointMatches queries "foo" over "foo foo foo":
// with -d (no implicit concat) three disjoint matches.
func TestRunQueryCountDisjointMatches(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("foo foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}

	var code int
	out := captureStdout(t, func() {
		code = runQuery([]string{"-n", "-c", "-d", `"foo"`, in})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (non-empty result)", code)
	}
	if strings.TrimSpace(out) != "3" {
		t.Fatalf("count output = %q, want \"3\"", out)
	}
}

// TestRunQueryExitCodeOneOnEmptyResult checks the exit-code contract:
// 0 iff the result region set is non-empty, 1 if empty without error.
func TestRunQueryExitCodeOneOnEmptyResult(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("foo foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}

	var code int
	captureStdout(t, func() {
		code = runQuery([]string{"-n", "-q", `"nosuchword"`, in})
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 for an empty result", code)
	}
}

// TestRunQueryExitCodeTwoOnMissingExpression checks the error exit code
// when no expression source is given at all.
func TestRunQueryExitCodeTwoOnMissingExpression(t *testing.T) {
	code := runQuery([]string{"-n"})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

// TestRunDispatchesIndexModeByArgv0 checks mode selection by argv[0]:
// invoked as "sgindex" with no arguments it exits 2, and invoked as
// "sgindex -c <idx> <file>" it builds the index file, which query mode
// (where -c is the count flag) never does.
func TestRunDispatchesIndexModeByArgv0(t *testing.T) {
	code := run([]string{"sgindex"})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2 for sgindex with no arguments", code)
	}

	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("alpha beta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	idxPath := filepath.Join(dir, "idx")
	if code := run([]string{"sgindex", "-c", idxPath, in}); code != 0 {
		t.Fatalf("exit code = %d, want 0 for sgindex -c", code)
	}
	if _, err := os.Stat(idxPath); err != nil {
		t.Fatalf("expected sgindex -c to write the index file: %v", err)
	}
}
