// Package config implements the environment and `.sgreprc` handling
// plus the `Options` struct the rest of the engine is constructed from
// via `engine.New(opts config.Options)`.
//
// The config file itself is a one-line-per-directive preprocessor
// expression file, so there is nothing structured to parse here beyond
// finding and concatenating the fragments; Load fills a plain struct
// and keeps no package-level mutable state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/sgrep/internal/errkinds"
)

// Mode selects which CLI surface Options was built for.
type Mode int

const (
	ModeQuery Mode = iota
	ModeIndex
)

// Options is the complete set of user-controllable knobs the CLI gathers
// from `.sgreprc`, `SGREPOPT`, and flags, before handing off to
// internal/engine. Fields with a flag in their comment map to that CLI
// flag; fields unused in a given Mode are simply left zero.
type Options struct {
	Mode Mode

	// Shared between query and index modes.
	WordChars  string   // -w <charlist>
	ScannerOpt string   // -g <scanner-opt>
	ListFiles  []string // -F <listfile>, up to 64
	Verbose    bool     // -v progress on stderr

	// Query mode.
	Expr                string   // the final, fully assembled expression text
	ExprFragments       []string // -e <expr>, in order
	FileFragments       []string // -f <file>, in order
	Files               []string // positional file args
	FilterUnmatched     bool     // -a
	CountOnly           bool     // -c
	SuppressImplicitCat bool     // -d
	IgnoreCase          bool     // -i
	Preset              string   // "long" (-l) or "short" (-s)
	NoTrailingNewline   bool     // -N
	SkipStartupConfig   bool     // -n
	Quiet               bool     // -q
	Stream              bool     // -S (also implied by -x)
	Stats               bool     // -T
	Timing              bool     // -t
	PrintVersion        bool     // -V
	PrintPreprocessed   bool     // -P
	StyleFile           string   // -O <stylefile>
	Style               string   // -o <style>
	Preproc             string   // -p <preproc>
	IndexFile           string   // -x <indexfile>

	// Index mode.
	CreatePath       string // -c <file>
	DumpDictTerm     string // -q terms first [last] (dictionary dump)
	DumpDictFirst    int
	DumpDictLast     int
	StopWordPercent  float64 // -l <percent>
	StopWordsOutFile string  // -L <out>
	StopWordsInFile  string  // -S <in>
	MemoryBudgetMB   int     // -m <MB>
	HashSize         int     // -H <hashsize>
}

// Load reads `$HOME/.sgreprc` then a system-wide `sgreprc` relative to
// cwd, concatenating both (if present) into one expression fragment with
// synthetic `#line` directives so lexer diagnostics still point at the
// right file and line. Either or both files may be absent; that
// is not an error.
func Load(home, cwd string) (string, error) {
	var parts []string

	if home != "" {
		path := filepath.Join(home, ".sgreprc")
		if frag, ok, err := readConfigFragment(path); err != nil {
			return "", err
		} else if ok {
			parts = append(parts, frag)
		}
	}

	sysPath := filepath.Join(cwd, "sgreprc")
	if frag, ok, err := readConfigFragment(sysPath); err != nil {
		return "", err
	} else if ok {
		parts = append(parts, frag)
	}

	return strings.Join(parts, "\n"), nil
}

// readConfigFragment reads path, if present, and wraps it with a leading
// `#line 1 "path"` directive so the lexer attributes errors to the
// original config file rather than the synthetic concatenation, the
// same way multiple -f/-e fragments are joined.
func readConfigFragment(path string) (frag string, ok bool, err error) {
	data, rerr := os.ReadFile(path)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return "", false, nil
		}
		return "", false, errkinds.NewIOError("read", path, rerr)
	}
	return JoinFragment(path, string(data)), true, nil
}

// JoinFragment wraps one expression fragment (the contents of a -f file,
// a -e string, or a config file) with a `#line 1 "name"` directive, the
// same synthetic-directive convention used to join multiple fragments
// before handing them to the tokenizer.
func JoinFragment(name, text string) string {
	return fmt.Sprintf("#line 1 %q\n%s", name, text)
}

// JoinFragments assembles an ordered list of named fragments (e.g. every
// -f/-e argument in command-line order) into one expression string, each
// preceded by its own `#line` directive.
func JoinFragments(names, texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		name := "<command line>"
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(JoinFragment(name, text))
	}
	return b.String()
}

// SplitShellWords splits s on whitespace, respecting single and double
// quotes, the way a shell would split $SGREPOPT before prepending it to
// argv.
func SplitShellWords(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false
	var quote rune

	flush := func() {
		if inWord {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
			continue
		}
		switch {
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		case r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inWord = true
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, errkinds.NewInvalidOptionError("SGREPOPT", s, "unterminated quote")
	}
	flush()
	return words, nil
}
