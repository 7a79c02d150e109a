package main

import (
	"context"
	"testing"
)

func TestPreprocessEmptyOrDashIsPassthrough(t *testing.T) {
	for _, processor := range []string{"", "-"} {
		got, err := preprocess(context.Background(), processor, "stag(a) .. etag(a)")
		if err != nil {
			t.Fatalf("preprocess(%q): %v", processor, err)
		}
		if got != "stag(a) .. etag(a)" {
			t.Fatalf("preprocess(%q) = %q, want passthrough", processor, got)
		}
	}
}

func TestPreprocessRunsExternalCommand(t *testing.T) {
	got, err := preprocess(context.Background(), "cat", "hello expr")
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if got != "hello expr" {
		t.Fatalf("got %q, want %q", got, "hello expr")
	}
}

func TestPreprocessCommandFailureIsError(t *testing.T) {
	_, err := preprocess(context.Background(), "false", "anything")
	if err == nil {
		t.Fatal("expected an error when the preprocessor command exits nonzero")
	}
}

func TestPreprocessUnknownCommandIsError(t *testing.T) {
	_, err := preprocess(context.Background(), "sgrep-definitely-not-a-real-binary-xyz", "anything")
	if err == nil {
		t.Fatal("expected an error for a nonexistent preprocessor binary")
	}
}
