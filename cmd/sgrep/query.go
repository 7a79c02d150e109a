package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/standardbeagle/sgrep/internal/config"
	"github.com/standardbeagle/sgrep/internal/engine"
	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/evaluator"
	"github.com/standardbeagle/sgrep/internal/outfmt"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/regionlist"
	"github.com/standardbeagle/sgrep/internal/version"
)

// queryTakesArg is the query-mode option alphabet: letters that consume
// a following argument.
var queryTakesArg = map[byte]bool{
	'o': true, 'f': true, 'F': true, 'g': true, 'e': true,
	'p': true, 'O': true, 'w': true, 'x': true,
}

// fragment is one -e/-f source of expression text, kept in command-line
// order.
type fragment struct {
	name string
	text string
	file bool
}

func runQuery(args []string) int {
	opts, rest, err := parseOptions(args, queryTakesArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printQueryUsage()
		return 2
	}

	var o config.Options
	var frags []fragment

	for _, ot := range opts {
		switch ot.Flag {
		case 'h':
			printQueryUsage()
			return 0
		case 'V':
			fmt.Println(version.FullInfo())
			return 0
		case 'v':
			o.Verbose = true
		case 'T':
			o.Stats = true
		case 't':
			o.Timing = true
		case 'a':
			o.FilterUnmatched = true
		case 'i':
			o.IgnoreCase = true
		case 'l':
			o.Preset = "long"
		case 's':
			o.Preset = "short"
		case 'o':
			o.Style = ot.Value
		case 'c':
			o.CountOnly = true
			o.SuppressImplicitCat = true
		case 'd':
			o.SuppressImplicitCat = true
		case 'N':
			o.NoTrailingNewline = true
		case 'f':
			frags = append(frags, fragment{name: ot.Value, file: true})
		case 'F':
			o.ListFiles = append(o.ListFiles, ot.Value)
		case 'g':
			o.ScannerOpt = ot.Value
		case 'e':
			frags = append(frags, fragment{name: "<command line>", text: ot.Value})
		case 'p':
			o.Preproc = ot.Value
		case 'n':
			o.SkipStartupConfig = true
		case 'O':
			o.StyleFile = ot.Value
		case 'P':
			o.PrintPreprocessed = true
		case 'S':
			o.Stream = true
		case 'q':
			o.Quiet = true
		case 'x':
			o.IndexFile = ot.Value
			o.Stream = true
		case 'w':
			o.WordChars = ot.Value
		default:
			fmt.Fprintf(os.Stderr, "Illegal option -%c\n", ot.Flag)
			printQueryUsage()
			return 2
		}
	}

	if len(frags) == 0 {
		if len(rest) == 0 {
			fmt.Fprintln(os.Stderr, "You have to give an expression line if you don't use -f or -e switch.")
			printQueryUsage()
			return 2
		}
		frags = append(frags, fragment{name: "<command line>", text: rest[0]})
		rest = rest[1:]
	}

	exprText, err := assembleExpr(o, frags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	preprocessed, err := preprocess(context.Background(), o.Preproc, exprText)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if o.PrintPreprocessed {
		fmt.Println(preprocessed)
		return 0
	}

	files, err := resolveFiles(rest, o.ListFiles)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	e := engine.New(o)
	defer e.Close()
	if o.Verbose {
		e.SetProgress(func(filesDone, filesTotal int, bytesDone, bytesTotal int64) {
			fmt.Fprintf(os.Stderr, "progress: %d/%d files, %d/%d bytes\n", filesDone, filesTotal, bytesDone, bytesTotal)
		})
	}

	if o.IndexFile == "" {
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "No input files given.")
			return 2
		}
		if err := e.AddFiles(files); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	tParse := time.Now()
	_, rl, err := e.Query("<command line>", preprocessed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	tEval := time.Now()

	if !o.SuppressImplicitCat {
		rl = evaluator.Concat(rl)
	}

	style, err := resolveStyle(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	empty := rl.Len() == 0

	if !o.Quiet {
		if o.CountOnly {
			fmt.Println(rl.Len())
		} else {
			results, err := buildResults(e, rl, o.FilterUnmatched)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 2
			}
			if o.NoTrailingNewline {
				style.ImplicitNewline = false
			}
			if err := outfmt.Write(os.Stdout, style, e.Files(), outfmt.NewSliceSource(results)); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 2
			}
		}
	}

	if o.Stats {
		fmt.Fprintf(os.Stderr, "regions: %d, parse errors: %d, encoding warnings: %d\n",
			rl.Len(), e.Sink().ParseErrorCount(), e.Sink().EncodingWarnings())
	}
	if o.Timing {
		fmt.Fprintf(os.Stderr, "parse+eval: %v\n", tEval.Sub(tParse))
	}

	if empty {
		return 1
	}
	return 0
}

// assembleExpr concatenates .sgreprc (unless -n was given; -e/-f do not
// suppress it) and every -e/-f fragment in command-line order, each
// wrapped in its own `#line` directive.
func assembleExpr(o config.Options, frags []fragment) (string, error) {
	var parts []string

	if !o.SkipStartupConfig {
		home, _ := os.UserHomeDir()
		cwd, _ := os.Getwd()
		rcText, err := config.Load(home, cwd)
		if err != nil {
			return "", err
		}
		if rcText != "" {
			parts = append(parts, rcText)
		}
	}

	for _, f := range frags {
		text := f.text
		name := f.name
		if f.file {
			data, err := os.ReadFile(f.name)
			if err != nil {
				return "", errkinds.NewIOError("read", f.name, err)
			}
			text = string(data)
		}
		parts = append(parts, config.JoinFragment(name, text))
	}

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out, nil
}

// resolveStyle picks the output template: -O file, -o named style,
// -l/-s preset, else the short style.
func resolveStyle(o config.Options) (outfmt.Style, error) {
	if o.StyleFile != "" {
		return outfmt.LoadStyleFile(o.StyleFile)
	}
	if o.Style != "" {
		if s, ok := outfmt.NamedStyle(o.Style); ok {
			return s, nil
		}
		return outfmt.Style{}, fmt.Errorf("unknown style %q", o.Style)
	}
	switch o.Preset {
	case "long":
		return outfmt.LongStyle, nil
	case "short":
		return outfmt.ShortStyle, nil
	default:
		return outfmt.ShortStyle, nil
	}
}

// buildResults reads each result region's bytes and, in filter mode (-a),
// interleaves the complementary "unmatched" spans so the whole corpus is
// accounted for in output order.
func buildResults(e *engine.Engine, rl *regionlist.RegionList, filterUnmatched bool) ([]outfmt.Result, error) {
	sorted := rl.EnsureStartSorted()
	var out []outfmt.Result
	var prevEnd region.Offset = -1
	total := e.Files().TotalBytes()

	for i := 0; i < sorted.Len(); i++ {
		r := sorted.At(i)
		if filterUnmatched && r.Start > prevEnd+1 {
			gap := region.Region{Start: prevEnd + 1, End: r.Start - 1}
			b, err := e.ReadRegion(gap)
			if err != nil {
				return nil, err
			}
			out = append(out, outfmt.Result{Region: gap, Bytes: b})
		}
		b, err := e.ReadRegion(r)
		if err != nil {
			return nil, err
		}
		out = append(out, outfmt.Result{Region: r, Bytes: b})
		if r.End > prevEnd {
			prevEnd = r.End
		}
	}
	if filterUnmatched && prevEnd+1 < total {
		gap := region.Region{Start: prevEnd + 1, End: total - 1}
		b, err := e.ReadRegion(gap)
		if err != nil {
			return nil, err
		}
		out = append(out, outfmt.Result{Region: gap, Bytes: b})
	}
	return out, nil
}

func printQueryUsage() {
	fmt.Fprintln(os.Stderr, `Usage: sgrep [ -aciNdlsoqSTtVvPn -e <expr> -f <file> -F <listfile> -g <scanner-opt> -O <stylefile> -o <style> -p <preproc> -w <charlist> -x <indexfile> ] 'expr' [<files...>]`)
	fmt.Fprintln(os.Stderr, "sgrep -h for help")
}
