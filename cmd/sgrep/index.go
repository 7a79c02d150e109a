package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/standardbeagle/sgrep/internal/config"
	"github.com/standardbeagle/sgrep/internal/engine"
	"github.com/standardbeagle/sgrep/internal/index/reader"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/version"
)

// indexTakesArg is the index-mode option alphabet: letters that consume
// a following argument.
var indexTakesArg = map[byte]bool{
	'g': true, 'l': true, 'm': true, 'L': true, 'S': true,
	'c': true, 'x': true, 'q': true, 'F': true, 'w': true, 'H': true,
}

func runIndex(args []string) int {
	opts, rest, err := parseOptions(args, indexTakesArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printIndexUsage()
		return 2
	}

	var o config.Options
	dumpTermsMode := false

	for _, ot := range opts {
		switch ot.Flag {
		case 'h':
			printIndexUsage()
			return 0
		case 'V':
			fmt.Println(version.FullInfo())
			return 0
		case 'v':
			o.Verbose = true
		case 'T':
			o.Stats = true
		case 'i':
			o.IgnoreCase = true
		case 'g':
			o.ScannerOpt = ot.Value
		case 'w':
			o.WordChars = ot.Value
		case 'F':
			o.ListFiles = append(o.ListFiles, ot.Value)
		case 'c':
			o.CreatePath = ot.Value
		case 'x':
			o.IndexFile = ot.Value
		case 'm':
			mb, perr := strconv.Atoi(ot.Value)
			if perr != nil || mb < 0 {
				fmt.Fprintf(os.Stderr, "Invalid memory size %q\n", ot.Value)
				return 2
			}
			o.MemoryBudgetMB = mb
		case 'H':
			h, perr := strconv.Atoi(ot.Value)
			if perr != nil || h < 0 {
				fmt.Fprintf(os.Stderr, "Invalid hash size %q\n", ot.Value)
				return 2
			}
			o.HashSize = h
		case 'l':
			pct, perr := strconv.ParseFloat(ot.Value, 64)
			if perr != nil || pct < 0 {
				fmt.Fprintf(os.Stderr, "Invalid stop word limit %q\n", ot.Value)
				return 2
			}
			o.StopWordPercent = pct
		case 'L':
			o.StopWordsOutFile = ot.Value
		case 'S':
			o.StopWordsInFile = ot.Value
		case 'q':
			if ot.Value != "terms" {
				fmt.Fprintf(os.Stderr, "Don't know how to query %q\n", ot.Value)
				return 2
			}
			dumpTermsMode = true
		default:
			fmt.Fprintf(os.Stderr, "Illegal option -%c\n", ot.Flag)
			printIndexUsage()
			return 2
		}
	}

	if dumpTermsMode {
		return runDumpTerms(o, rest)
	}

	if o.CreatePath == "" {
		fmt.Fprintln(os.Stderr, "sgrep -I: you have to give one of -c, -h")
		printIndexUsage()
		return 2
	}

	files, err := resolveFiles(rest, o.ListFiles)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Can't read input from stdin when indexing.")
		fmt.Fprintln(os.Stderr, " Use filename '-' to force indexing from stdin.")
		return 2
	}

	stopWords, err := loadStopWords(o.StopWordsInFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	e := engine.New(o)
	defer e.Close()
	if o.Verbose {
		e.SetProgress(func(filesDone, filesTotal int, bytesDone, bytesTotal int64) {
			fmt.Fprintf(os.Stderr, "indexing: %d/%d files, %d/%d bytes\n", filesDone, filesTotal, bytesDone, bytesTotal)
		})
	}
	if err := e.AddFiles(files); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	memBudget := int64(o.MemoryBudgetMB) * 1024 * 1024
	oversized, err := e.BuildIndex(o.CreatePath, memBudget, stopWords, o.StopWordPercent)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if o.Stats {
		if fi, serr := os.Stat(o.CreatePath); serr == nil {
			fmt.Fprintf(os.Stderr, "index %s: %d bytes, %d files\n", o.CreatePath, fi.Size(), len(files))
		}
	}

	if o.StopWordsOutFile != "" && o.StopWordPercent > 0 {
		if err := writeStopWordCandidates(o.StopWordsOutFile, oversized); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	return 0
}

// runDumpTerms implements the `-q terms first [last]` dictionary dump.
func runDumpTerms(o config.Options, rest []string) int {
	if o.IndexFile == "" {
		fmt.Fprintln(os.Stderr, "-q terms requires -x <indexfile>")
		return 2
	}
	first := ""
	last := ""
	if len(rest) > 0 {
		first = rest[0]
	}
	if len(rest) > 1 {
		last = rest[1]
	}

	idx, err := reader.Open(o.IndexFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer idx.Close()

	terms, err := idx.DumpTerms(first, last)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	for _, t := range terms {
		fmt.Println(t)
	}
	if len(terms) == 0 {
		return 1
	}
	return 0
}

// loadStopWords reads a `-S <in>` stop-word file: one bare word per line,
// mapped to the scanner's `w` (word) leaf key.
func loadStopWords(path string) (map[string]bool, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := sc.Text()
		if w == "" {
			continue
		}
		out[ast.PrefixWord+w] = true
	}
	return out, sc.Err()
}

// writeStopWordCandidates writes BuildIndex's oversized-term report to
// outPath, one key per line.
func writeStopWordCandidates(outPath string, terms []string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	for _, t := range terms {
		fmt.Fprintln(w, t)
	}
	return w.Flush()
}

func printIndexUsage() {
	fmt.Fprintln(os.Stderr, "Usage: (sgindex | sgrep -I) [ -hiTVv -c <index file> -F <file> -g <option> -l <limit> -L <stop file> -S <stop file> -m <megabytes> -w <char list> -x <index file> -q terms [first] [last] ] [<files...>]")
}
