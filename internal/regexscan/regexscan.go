// Package regexscan serves the `regex(...)` phrase type by wrapping
// `github.com/coregx/coregex` instead of hand-rolling pattern matching
// a second time.
//
// The scan loop mirrors the library's own `FindAll`: that method
// itself re-searches from `pos` each time since the library exposes no
// FindAllIndex, so `Scanner.Scan` below follows the identical
// advance-past-match-or-advance-by-one discipline, just reporting offsets
// instead of byte slices.
package regexscan

import (
	"fmt"

	"github.com/coregx/coregex"

	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
)

// Scanner matches one compiled regex PhraseLeaf against raw bytes.
type Scanner struct {
	leaf *ast.Leaf
	re   *coregex.Regex
}

// Build compiles leaf.Term (an `re...` prefixed leaf) as a regular
// expression. Case-insensitivity is expressed as the `(?i)` inline flag
// prefixed onto the pattern, matching `coregex`'s own documented syntax
// rather than a second fold step (the AC scanner's upper-casing approach
// doesn't generalize to arbitrary regex character classes).
func Build(leaf *ast.Leaf) (*Scanner, error) {
	pattern := leaf.Term
	if leaf.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := coregex.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regexscan: compiling %q: %w", leaf.Term, err)
	}
	return &Scanner{leaf: leaf, re: re}, nil
}

// Scan finds every non-overlapping match of s.re in data and emits a
// region for each, offset by base.
func (s *Scanner) Scan(data []byte, base region.Offset, emit func(leaf *ast.Leaf, start, end region.Offset)) {
	pos := 0
	for pos <= len(data) {
		loc := s.re.FindIndex(data[pos:])
		if loc == nil {
			break
		}
		absStart, absEnd := pos+loc[0], pos+loc[1]
		if absEnd > absStart {
			emit(s.leaf, base+region.Offset(absStart), base+region.Offset(absEnd-1))
			pos = absEnd
		} else {
			// Empty match: the region model requires start<=end, so
			// a zero-width regex match still denotes one byte position;
			// advance by one to avoid looping forever, same as the
			// library's own FindAll.
			emit(s.leaf, base+region.Offset(absStart), base+region.Offset(absStart))
			pos++
		}
	}
}
