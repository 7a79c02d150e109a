package main

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/standardbeagle/sgrep/internal/errkinds"
)

// preprocess runs input through an external macro preprocessor; the
// core engine never sees unpreprocessed text, so this lives only in
// cmd/sgrep. processor == "" uses no preprocessing;
// processor == "-" is an explicit "no preprocessing" marker;
// any other value is spawned as a command, fed input on stdin, and its
// stdout is the preprocessed expression.
func preprocess(ctx context.Context, processor, input string) (string, error) {
	if processor == "" || processor == "-" {
		return input, nil
	}

	fields := strings.Fields(processor)
	if len(fields) == 0 {
		return input, nil
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errkinds.NewIOError("preprocess", processor, err)
	}
	return stdout.String(), nil
}
