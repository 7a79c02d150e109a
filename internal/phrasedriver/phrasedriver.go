// Package phrasedriver maps every input file through the SGML scanner,
// the Aho-Corasick literal scanner and the regex scanner, and routes each
// hit to the PhraseLeaf RegionList the evaluator will later read. It
// collects the distinct leaves the compiled query actually references,
// builds one scanner per family, then streams every file through each
// applicable scanner exactly once.
package phrasedriver

import (
	"fmt"
	"strings"

	"github.com/standardbeagle/sgrep/internal/acscan"
	"github.com/standardbeagle/sgrep/internal/diag"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/regexscan"
	"github.com/standardbeagle/sgrep/internal/regionlist"
	"github.com/standardbeagle/sgrep/internal/sgmlscan"
)

// ReadFile returns the full content of a file named in the FileList.
type ReadFile func(name string) ([]byte, error)

// Run scans every file in files through whichever scanners the leaves in
// root actually need, filling each leaf's RegionList in place. `#start`/
// `#end` leaves are left untouched (the evaluator synthesizes them
// directly); `file(...)` leaves are resolved here too, without any byte
// scan, by matching file names in the FileList.
func Run(root *ast.Node, files *region.FileList, read ReadFile, scanCfg sgmlscan.Config, sink *diag.Sink) error {
	leaves := collectLeaves(root)

	var literalLeaves, regexLeaves, fileLeaves, structuralLeaves []*ast.Leaf
	for l := range leaves {
		switch l.Prefix {
		case ast.PrefixStart, ast.PrefixEnd:
			continue // evaluator-synthesized constants, never scanner-filled
		case ast.PrefixFile:
			fileLeaves = append(fileLeaves, l)
		case ast.PrefixLiteral:
			l.IgnoreCase = scanCfg.IgnoreCase
			literalLeaves = append(literalLeaves, l)
		case ast.PrefixRaw:
			// raw() is byte-exact: scanned with the same automaton as
			// literals but never case-folded.
			literalLeaves = append(literalLeaves, l)
		case ast.PrefixRegex:
			l.IgnoreCase = scanCfg.IgnoreCase
			regexLeaves = append(regexLeaves, l)
		default:
			structuralLeaves = append(structuralLeaves, l)
		}
	}

	for _, l := range literalLeaves {
		freshRegions(l)
	}
	for _, l := range regexLeaves {
		freshRegions(l)
	}
	for _, l := range structuralLeaves {
		freshRegions(l)
	}

	var ac *acscan.Scanner
	var err error
	if len(literalLeaves) > 0 {
		ac, err = acscan.Build(literalLeaves)
		if err != nil {
			return err
		}
	}

	var rxs []*regexscan.Scanner
	for _, l := range regexLeaves {
		rx, err := regexscan.Build(l)
		if err != nil {
			return err
		}
		rxs = append(rxs, rx)
	}

	var sgml *sgmlscan.Scanner
	structByKey := map[string]*ast.Leaf{}
	if len(structuralLeaves) > 0 {
		sgml = sgmlscan.New(scanCfg)
		for _, l := range structuralLeaves {
			structByKey[structuralKey(scanCfg, l)] = l
		}
	}

	needsByteScan := ac != nil || len(rxs) > 0 || sgml != nil
	if !needsByteScan {
		for _, l := range fileLeaves {
			resolveFileLeaf(l, files)
		}
		freezeAll(leaves)
		return nil
	}

	// Indexed loop: a scan may append resolved SYSTEM entities to the file
	// list, and those files are scanned in turn.
	for i := 0; i < len(files.Files()); i++ {
		f := files.Files()[i]
		data, err := read(f.Name)
		if err != nil {
			return fmt.Errorf("phrasedriver: reading %s: %w", f.Name, err)
		}
		if ac != nil {
			ac.Scan(data, f.Start, func(l *ast.Leaf, start, end region.Offset) {
				l.Regions.Add(region.Region{Start: start, End: end})
			})
		}
		for _, rx := range rxs {
			rx.Scan(data, f.Start, func(l *ast.Leaf, start, end region.Offset) {
				l.Regions.Add(region.Region{Start: start, End: end})
			})
		}
		if sgml != nil {
			sysids := sgml.Scan(f.Name, data, f.Start, sink, func(prefix, term string, start, end region.Offset) {
				l, ok := structByKey[structuralEmitKey(scanCfg, prefix, term)]
				if !ok {
					return
				}
				l.Regions.Add(region.Region{Start: start, End: end})
			})
			for _, sid := range sysids {
				if files.IndexOf(sid) >= 0 {
					continue
				}
				sdata, rerr := read(sid)
				if rerr != nil || len(sdata) == 0 {
					continue
				}
				if aerr := files.Add(sid, region.Offset(len(sdata))); aerr != nil {
					return aerr
				}
			}
		}
	}

	// file() leaves resolve last so system entities appended by the scan
	// are visible to them.
	for _, l := range fileLeaves {
		resolveFileLeaf(l, files)
	}
	freezeAll(leaves)
	return nil
}

// collectLeaves returns the distinct set of PhraseLeaf pointers the DAG
// references. A map naturally dedups a leaf reachable from more than one
// parent after optimizer.Optimize's common-subtree elimination.
func collectLeaves(root *ast.Node) map[*ast.Leaf]bool {
	out := map[*ast.Leaf]bool{}
	ast.Walk(root, func(n *ast.Node) {
		if n.Op == ast.OpLeaf && n.Leaf != nil {
			out[n.Leaf] = true
		}
	})
	return out
}

func freshRegions(l *ast.Leaf) {
	if l.Regions == nil {
		l.Regions = regionlist.New(regionlist.StartSorted, false)
	}
}

func freezeAll(leaves map[*ast.Leaf]bool) {
	for l := range leaves {
		if l.Regions != nil && !l.Regions.Complete() {
			l.Regions.Freeze()
		}
	}
}

// structuralKey and structuralEmitKey must agree on case-folding: when the
// scan is case-insensitive, sgmlscan.Scanner.fold lower-cases every
// emitted GI/word/attribute term before the caller ever sees it, so the
// lookup table built from the query's own (possibly mixed-case) leaf
// terms must fold the same way or every structural lookup would miss.
func structuralKey(cfg sgmlscan.Config, l *ast.Leaf) string {
	term := l.Term
	if cfg.IgnoreCase {
		term = strings.ToLower(term)
	}
	return l.Prefix + term
}

func structuralEmitKey(cfg sgmlscan.Config, prefix, term string) string {
	return prefix + term
}

func resolveFileLeaf(l *ast.Leaf, files *region.FileList) {
	rl := regionlist.New(regionlist.StartSorted, false)
	for _, f := range files.Files() {
		match := f.Name == l.Term
		if l.FilePrefix {
			match = strings.HasPrefix(f.Name, l.Term)
		}
		if match {
			rl.Add(region.Region{Start: f.Start, End: f.Start + f.Length - 1})
		}
	}
	rl.Freeze()
	l.Regions = rl
}
