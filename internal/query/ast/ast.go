// Package ast defines the parse tree the parser builds and the optimizer
// and evaluator walk.
//
// Leaves carry the one/two-character type prefix directly
// instead of a separate closed-enum
// LeafKind translated to a string at the index/scanner boundary — the
// prefix+term pair *is* the shared key, matching how the scanner, the
// index dictionary and the evaluator all three need to agree on leaf
// identity. Leaf.Prefix is a plain string holding one of the constants
// below; call sites switch on Prefix the way they would switch on an enum
// (nothing checks that a value is one of the constants or that a switch is
// exhaustive), while the wire-compatible prefix string itself is preserved
// as the dictionary key.
package ast

import "github.com/standardbeagle/sgrep/internal/regionlist"

// Op identifies a region-algebra operator or a leaf.
type Op int

const (
	OpLeaf Op = iota
	OpCons // "[" a, b, c "]" — never merged by the optimizer (LABEL_CONS)

	OpOr
	OpDotDot
	OpUnderDot
	OpDotUnder
	OpUnderUnder
	OpQuote
	OpUnderQuote
	OpQuoteUnder
	OpUnderQuoteUnder
	OpIn
	OpNotIn
	OpContaining
	OpNotContaining
	OpEqual
	OpNotEqual
	OpOuter
	OpInner
	OpConcat
	OpExtracting
	OpJoin
	OpFirst
	OpLast
	OpFirstBytes
	OpLastBytes
	OpParenting
	OpChildrening
	OpNear
	OpNearBefore
)

func (o Op) String() string {
	names := map[Op]string{
		OpLeaf: "leaf", OpCons: "cons", OpOr: "or", OpDotDot: "..", OpUnderDot: "_.",
		OpDotUnder: "._", OpUnderUnder: "__", OpQuote: "quote", OpUnderQuote: "_quote",
		OpQuoteUnder: "quote_", OpUnderQuoteUnder: "_quote_", OpIn: "in", OpNotIn: "not in",
		OpContaining: "containing", OpNotContaining: "not containing", OpEqual: "equal",
		OpNotEqual: "not equal", OpOuter: "outer", OpInner: "inner", OpConcat: "concat",
		OpExtracting: "extracting", OpJoin: "join", OpFirst: "first", OpLast: "last",
		OpFirstBytes: "first_bytes", OpLastBytes: "last_bytes", OpParenting: "parenting",
		OpChildrening: "childrening", OpNear: "near", OpNearBefore: "near_before",
	}
	if s, ok := names[o]; ok {
		return s
	}
	return "?"
}

// Leaf-type prefixes, the alphabet shared by the scanner, the index
// dictionary and the evaluator. Attribute/tag
// leaves carry their GI or attribute name appended to Term, never to the
// prefix itself.
const (
	PrefixLiteral        = "n"
	PrefixWord           = "w"
	PrefixStag           = "s"
	PrefixEtag           = "e"
	PrefixAttr           = "a"
	PrefixAttrValue      = "v"
	PrefixPI             = "?"
	PrefixCommentWord    = "c"
	PrefixEntity         = "&"
	PrefixCDATA          = "[CDATA"
	PrefixComment        = "-"
	PrefixElements       = "@elements"
	PrefixDoctypeName    = "dn"
	PrefixDoctypePID     = "dp"
	PrefixDoctypeSID     = "ds"
	PrefixEntityDeclName = "!ed"
	PrefixEntityLiteral  = "!el"
	PrefixEntityPID      = "!ep"
	PrefixEntitySID      = "!es"
	PrefixEntityNData    = "!en"
	PrefixProlog         = "d!"
	PrefixFile           = "f"
	PrefixStart          = "#start"
	PrefixEnd            = "#end"
	PrefixRegex          = "re" // regex() phrases: scanned directly, never indexed
	PrefixRaw            = "rw" // raw() phrases: byte-exact, never case-folded
)

// Leaf is a PhraseLeaf: a type-prefixed search term plus the RegionList
// the scanner (or index reader) fills in with hits.
type Leaf struct {
	Prefix     string
	Term       string // literal text, GI, attribute name, file prefix, etc.
	FilePrefix bool   // trailing '*' on a file() leaf: prefix match, not exact
	IgnoreCase bool
	Regions    *regionlist.RegionList
}

// Key returns the prefix+term string used as the scanner/indexer/
// optimizer's dedup and dictionary key.
func (l *Leaf) Key() string {
	k := l.Prefix + l.Term
	if l.FilePrefix {
		k += "*"
	}
	return k
}

// Node is one ParseTree node: either a Leaf (Op==OpLeaf) or an operator
// with up to two children and an optional integer parameter (join/first/
// last/first_bytes/last_bytes/near/near_before widths).
type Node struct {
	Op       Op
	Left     *Node
	Right    *Node
	Children []*Node // OpCons only
	Param    int
	Leaf     *Leaf

	// Filled in by the optimizer.
	Label    int
	Refcount int

	// Cached by the evaluator; freed once Refcount hits 0.
	Result *regionlist.RegionList
}

// NewLeaf returns a leaf node for a scanner/indexer-resolved phrase.
func NewLeaf(prefix, term string) *Node {
	return &Node{Op: OpLeaf, Leaf: &Leaf{Prefix: prefix, Term: term}}
}

// NewUnary returns a one-child operator node (outer/inner/concat).
func NewUnary(op Op, child *Node) *Node { return &Node{Op: op, Left: child} }

// NewUnaryParam returns a one-child operator node with an integer
// parameter (join/first/last/first_bytes/last_bytes).
func NewUnaryParam(op Op, child *Node, param int) *Node {
	return &Node{Op: op, Left: child, Param: param}
}

// NewBinary returns a two-child operator node.
func NewBinary(op Op, left, right *Node) *Node { return &Node{Op: op, Left: left, Right: right} }

// NewBinaryParam returns a two-child operator node with an integer
// parameter (near/near_before).
func NewBinaryParam(op Op, left, right *Node, param int) *Node {
	return &Node{Op: op, Left: left, Right: right, Param: param}
}

// NewCons returns an n-ary "[a, b, c]" node. Cons nodes carry the
// special LABEL_CONS and are never merged by common-subtree elimination
// even when structurally identical to another cons node.
func NewCons(children []*Node) *Node { return &Node{Op: OpCons, Children: children} }

// IsConstant reports whether the node is one of the engine's refcount=-1
// singletons (the `#start`/`#end` leaves) which the evaluator never frees.
func (n *Node) IsConstant() bool {
	return n.Op == OpLeaf && n.Leaf != nil && (n.Leaf.Prefix == PrefixStart || n.Leaf.Prefix == PrefixEnd)
}

// Walk calls visit on n and recursively on every child, pre-order. Used by
// the optimizer's parent-link/labeling pass.
func Walk(n *Node, visit func(*Node)) {
	if n == nil {
		return
	}
	visit(n)
	Walk(n.Left, visit)
	Walk(n.Right, visit)
	for _, c := range n.Children {
		Walk(c, visit)
	}
}
