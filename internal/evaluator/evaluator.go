// Package evaluator walks the optimizer's DAG-shaped *ast.Node tree and
// produces the final RegionList. Each node's result is memoized once and
// released when the last parent that needs it has consumed it, so shared
// subtrees evaluate exactly once and their memory does not outlive the
// DAG walk.
//
// Evaluation recurses; worst-case depth equals the query expression's own
// nesting depth (each recursion step consumes at least one source-level
// operator), so stack use is bounded by query size, not input size.
package evaluator

import (
	"fmt"

	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/regionlist"
)

// IndexReader is consulted for leaves the scanner didn't already fill
// in. A trailing '*' on the term (FilePrefix) requests a range lookup
// over every term with that prefix.
type IndexReader interface {
	Lookup(prefix, term string, rangePrefix bool) (*regionlist.RegionList, error)
}

// Evaluator holds the per-query state needed to resolve and release a
// compiled tree: the input FileList (for #start/#end synthesis) and an
// optional IndexReader. One Evaluator is used per query; it is not safe
// for concurrent use by multiple goroutines evaluating the same tree.
type Evaluator struct {
	files     *region.FileList
	index     IndexReader
	remaining map[*ast.Node]int
}

// New creates an Evaluator. index may be nil when every leaf in the tree
// is pre-filled by a scanner pass.
func New(files *region.FileList, index IndexReader) *Evaluator {
	return &Evaluator{files: files, index: index, remaining: map[*ast.Node]int{}}
}

// Eval evaluates root and returns its RegionList. The evaluator never
// returns an error for a malformed region set; only an unrecognized
// operator or a failed IndexReader lookup surfaces an error.
func (e *Evaluator) Eval(root *ast.Node) (*regionlist.RegionList, error) {
	return e.eval(root)
}

// Concat exposes opConcat for cmd/sgrep's "-d suppresses implicit concat
// of result" CLI behavior: by default a query's top-level
// result is concatenated before display, the same merge `concat()` itself
// performs.
func Concat(a *regionlist.RegionList) *regionlist.RegionList {
	return opConcat(a)
}

func (e *Evaluator) eval(n *ast.Node) (*regionlist.RegionList, error) {
	if n.Result != nil {
		return n.Result, nil
	}

	var result *regionlist.RegionList
	var err error

	switch n.Op {
	case ast.OpLeaf:
		result, err = e.resolveLeaf(n.Leaf)
	case ast.OpCons:
		result, err = e.evalCons(n)
	default:
		result, err = e.evalOperator(n)
	}
	if err != nil {
		return nil, err
	}
	n.Result = result
	return result, nil
}

// evalChild evaluates a child, then marks one use of it consumed; once
// every parent has consumed it, its RegionList is released (set to nil)
// so the memory doesn't live past the DAG's last reference.
func (e *Evaluator) evalChild(n *ast.Node) (*regionlist.RegionList, error) {
	if n == nil {
		return nil, nil
	}
	rl, err := e.eval(n)
	if err != nil {
		return nil, err
	}
	e.release(n)
	return rl, nil
}

func (e *Evaluator) release(n *ast.Node) {
	if n == nil || n.IsConstant() {
		return
	}
	left, ok := e.remaining[n]
	if !ok {
		left = n.Refcount
	}
	left--
	e.remaining[n] = left
	if left <= 0 {
		n.Result = nil
	}
}

func (e *Evaluator) evalCons(n *ast.Node) (*regionlist.RegionList, error) {
	var acc *regionlist.RegionList
	for _, c := range n.Children {
		rl, err := e.evalChild(c)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			acc = rl
			continue
		}
		acc = opOr(acc, rl)
	}
	if acc == nil {
		acc = regionlist.New(regionlist.StartSorted, false)
		acc.Freeze()
	}
	return acc, nil
}

func (e *Evaluator) resolveLeaf(l *ast.Leaf) (*regionlist.RegionList, error) {
	if l.Regions != nil {
		return l.Regions, nil
	}
	switch l.Prefix {
	case ast.PrefixStart:
		rl := regionlist.New(regionlist.StartSorted, false)
		rl.Add(region.Region{Start: 0, End: 0})
		rl.Freeze()
		return rl, nil
	case ast.PrefixEnd:
		total := e.files.TotalBytes()
		last := total - 1
		if last < 0 {
			last = 0
		}
		rl := regionlist.New(regionlist.StartSorted, false)
		rl.Add(region.Region{Start: last, End: last})
		rl.Freeze()
		return rl, nil
	}
	if e.index == nil {
		rl := regionlist.New(regionlist.StartSorted, false)
		rl.Freeze()
		return rl, nil
	}
	return e.index.Lookup(l.Prefix, l.Term, l.FilePrefix)
}

func (e *Evaluator) evalOperator(n *ast.Node) (*regionlist.RegionList, error) {
	switch n.Op {
	case ast.OpOuter, ast.OpInner, ast.OpConcat:
		left, err := e.evalChild(n.Left)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case ast.OpOuter:
			return opOuter(left), nil
		case ast.OpInner:
			return opInner(left), nil
		default:
			return opConcat(left), nil
		}

	case ast.OpJoin, ast.OpFirst, ast.OpLast, ast.OpFirstBytes, ast.OpLastBytes:
		left, err := e.evalChild(n.Left)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case ast.OpJoin:
			return opJoin(left, n.Param), nil
		case ast.OpFirst:
			return opFirst(left, n.Param), nil
		case ast.OpLast:
			return opLast(left, n.Param), nil
		case ast.OpFirstBytes:
			return opFirstBytes(left, n.Param), nil
		default:
			return opLastBytes(left, n.Param), nil
		}
	}

	left, err := e.evalChild(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.evalChild(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case ast.OpOr:
		return opOr(left, right), nil
	case ast.OpDotDot, ast.OpUnderDot, ast.OpDotUnder, ast.OpUnderUnder:
		return opOrderedFamily(n.Op, left, right), nil
	case ast.OpQuote, ast.OpUnderQuote, ast.OpQuoteUnder, ast.OpUnderQuoteUnder:
		return opQuoteFamily(n.Op, left, right), nil
	case ast.OpIn:
		return opIn(left, right), nil
	case ast.OpNotIn:
		return opNotIn(left, right), nil
	case ast.OpContaining:
		return opContaining(left, right), nil
	case ast.OpNotContaining:
		return opNotContaining(left, right), nil
	case ast.OpEqual:
		return opEqual(left, right), nil
	case ast.OpNotEqual:
		return opNotEqual(left, right), nil
	case ast.OpExtracting:
		return opExtracting(left, right), nil
	case ast.OpParenting:
		return opParenting(left, right), nil
	case ast.OpChildrening:
		return opChildrening(left, right), nil
	case ast.OpNear:
		return opNear(left, right, int(n.Param), false), nil
	case ast.OpNearBefore:
		return opNear(left, right, int(n.Param), true), nil
	}

	return nil, errkinds.NewLogicInvariantError(fmt.Sprintf("unknown operator %v", n.Op))
}
