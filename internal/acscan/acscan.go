// Package acscan is the literal-phrase scanner: a single multi-pattern
// Aho-Corasick automaton built over every dedup'd literal (`n...`)
// PhraseLeaf, scanning raw bytes and pushing `(start,end)` hits directly
// onto the matching leaf's RegionList.
package acscan

import (
	"bytes"
	"fmt"

	"github.com/coregx/ahocorasick"

	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
)

// Scanner wraps one built Aho-Corasick automaton over a fixed set of
// literal PhraseLeaf targets. One Scanner is built per query; the leaf set
// is immutable once built and may be shared between scans.
type Scanner struct {
	automaton  *ahocorasick.Automaton
	leaves     []*ast.Leaf // index == the order patterns were added, matching automaton.Match.Pattern
	ignoreCase bool
}

// Build constructs a Scanner over leaves, which must all carry
// ast.PrefixLiteral or ast.PrefixRaw. Leaves with IgnoreCase set are case-folded (upper-
// cased) before being added to the automaton; the caller must then also
// feed Scan a byte stream with the same fold applied consistently, which
// Scan does internally via its own upper-cased copy when ignoreCase is
// true for any leaf in the set.
//
// Leaves reaching here are already deduplicated by the optimizer's
// phrase-dedup pass, so each distinct literal term appears at most once.
func Build(leaves []*ast.Leaf) (*Scanner, error) {
	s := &Scanner{leaves: leaves}
	if len(leaves) == 0 {
		return s, nil
	}
	builder := ahocorasick.NewBuilder()
	for _, l := range leaves {
		if l.Prefix != ast.PrefixLiteral && l.Prefix != ast.PrefixRaw {
			return nil, fmt.Errorf("acscan: leaf %q is not a literal phrase", l.Key())
		}
		term := l.Term
		if l.IgnoreCase {
			s.ignoreCase = true
			term = upperASCII(term)
		}
		builder.AddPattern([]byte(term))
	}
	auto, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("acscan: building automaton: %w", err)
	}
	s.automaton = auto
	return s, nil
}

// Empty reports whether there are no literal patterns to scan for.
func (s *Scanner) Empty() bool { return s == nil || len(s.leaves) == 0 }

// Scan finds every occurrence of every pattern in data (one file's bytes,
// or the whole concatenated stream in -S stream mode) and records each hit
// as a region.Region at base+matchStart..base+matchEnd on the
// corresponding leaf's RegionList. Overlapping and repeated matches of the
// same pattern are all reported; the region-algebra operators (concat,
// remove_duplicates) handle any resulting duplicates downstream.
func (s *Scanner) Scan(data []byte, base region.Offset, emit func(leaf *ast.Leaf, start, end region.Offset)) {
	if s.Empty() {
		return
	}
	haystack := data
	if s.ignoreCase {
		haystack = bytes.ToUpper(data)
	}
	at := 0
	for at <= len(haystack) {
		m := s.automaton.Find(haystack, at)
		if m == nil {
			break
		}
		if m.PatternID >= 0 && m.PatternID < len(s.leaves) {
			emit(s.leaves[m.PatternID], base+region.Offset(m.Start), base+region.Offset(m.End-1))
		}
		// Advance past the start of this match (not its end) so
		// overlapping occurrences of a shorter pattern inside a longer
		// one are still found.
		at = m.Start + 1
	}
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
