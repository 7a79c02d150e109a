// Command sgrep is the CLI: query mode by default, index mode when
// invoked as `sgindex`/`sgrep -I`, gluing together internal/engine,
// internal/config and internal/outfmt.
//
// sgrep's single-letter, optionally-fused flags with order-sensitive
// repeated `-e`/`-f` fragments and a variable-arity `-q terms first
// [last]` don't fit a declarative flag-parsing library's model, so argv
// scanning is a hand-rolled forward loop (args.go) rather than a
// struct-tag/registration-based flag package.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/sgrep/internal/config"
)

func main() {
	os.Exit(run(os.Args))
}

func run(argv []string) int {
	args := argv[1:]

	if sgrepopt := os.Getenv("SGREPOPT"); sgrepopt != "" {
		words, err := config.SplitShellWords(sgrepopt)
		if err != nil {
			println("SGREPOPT: " + err.Error())
			return 2
		}
		args = append(words, args...)
	}

	indexMode := strings.Contains(strings.ToLower(filepath.Base(argv[0])), "index")
	if len(args) > 0 && args[0] == "-I" {
		indexMode = true
		args = args[1:]
	}

	if indexMode {
		return runIndex(args)
	}
	return runQuery(args)
}
