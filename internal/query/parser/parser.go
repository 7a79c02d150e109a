// Package parser implements the recursive-descent parser for the
// region-query language: a hand-written descent over a flat operator chain
// (no precedence climbing needed — the grammar itself is flat and
// requires parentheses to nest), with a cur/peek token pair advanced by
// nextToken.
package parser

import (
	"fmt"
	"strconv"

	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/query/lexer"
	"github.com/standardbeagle/sgrep/internal/query/token"
	"github.com/standardbeagle/sgrep/internal/rawenc"
)

// unescapeLiteral undoes the lexer's printable escape on a STRING token
// so leaf terms hold the raw bytes scanners actually match against. A
// lexer-produced literal is always valid escape output, so a decode
// error can only mean a caller bypassed the lexer; the literal is kept
// as-is in that case.
func unescapeLiteral(lit string) string {
	s, err := rawenc.Unescape(lit)
	if err != nil {
		return lit
	}
	return s
}

// Parser turns a token stream from lexer.Lexer into an *ast.Node tree.
type Parser struct {
	lex   *lexer.Lexer
	input string
	file  string

	cur  token.Token
	peek token.Token

	errs []error
}

// New creates a Parser over a region-query expression.
func New(file, input string) *Parser {
	p := &Parser{lex: lexer.New(file, input), input: input, file: file}
	p.advance()
	p.advance()
	return p
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

// Parse parses a complete reg_expr and requires EOF to follow. On any
// lex or parse error it returns (nil, error): the partial tree is simply
// not returned and the GC reclaims it.
func Parse(file, input string) (*ast.Node, error) {
	p := New(file, input)
	tree, err := p.parseRegExpr()
	if err := p.firstError(err); err != nil {
		return nil, err
	}
	if p.cur.Type != token.EOF {
		return nil, p.errorf("unexpected trailing input %q", p.cur.Literal)
	}
	return tree, nil
}

func (p *Parser) firstError(err error) error {
	if err != nil {
		return err
	}
	if lexErrs := p.lex.Errors(); len(lexErrs) > 0 {
		return lexErrs[0]
	}
	if len(p.errs) > 0 {
		return p.errs[0]
	}
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	file, _, _ := p.lex.Position()
	line, col := p.cur.Line, p.cur.Col
	window := windowAround(p.input, p.cur, col)
	err := errkinds.NewParseError(file, line, col, window, msg)
	p.errs = append(p.errs, err)
	return err
}

// windowAround extracts a +/-5 character slice of the source around the
// current token for the diagnostic.
func windowAround(input string, tok token.Token, col int) string {
	lineStart := 0
	line := 1
	for i, r := range input {
		if line == tok.Line {
			break
		}
		if r == '\n' {
			line++
			lineStart = i + 1
		}
	}
	pos := lineStart + (col - 1)
	if pos < 0 {
		pos = 0
	}
	if pos > len(input) {
		pos = len(input)
	}
	lo := pos - 5
	if lo < 0 {
		lo = 0
	}
	hi := pos + 5
	if hi > len(input) {
		hi = len(input)
	}
	return input[lo:hi]
}

// reg_expr := basic_expr ( oper basic_expr )*
func (p *Parser) parseRegExpr() (*ast.Node, error) {
	left, err := p.parseBasicExpr()
	if err != nil {
		return nil, err
	}
	for p.curIsOperStart() {
		op, param, err := p.parseOper()
		if err != nil {
			return nil, err
		}
		right, err := p.parseBasicExpr()
		if err != nil {
			return nil, err
		}
		switch op {
		case ast.OpNear, ast.OpNearBefore:
			left = ast.NewBinaryParam(op, left, right, param)
		default:
			left = ast.NewBinary(op, left, right)
		}
	}
	return left, nil
}

func (p *Parser) curIsOperStart() bool {
	switch p.cur.Type {
	case token.DOTDOT, token.UNDERDOT, token.DOTUNDER, token.UNDERUNDER:
		return true
	case token.IDENT:
		return token.BinaryOperatorWords[p.cur.Literal]
	}
	return false
}

var simpleOpWords = map[string]ast.Op{
	"in": ast.OpIn, "containing": ast.OpContaining, "equal": ast.OpEqual, "or": ast.OpOr,
	"quote": ast.OpQuote, "_quote": ast.OpUnderQuote, "quote_": ast.OpQuoteUnder,
	"_quote_": ast.OpUnderQuoteUnder, "parenting": ast.OpParenting,
	"childrening": ast.OpChildrening, "extracting": ast.OpExtracting,
}

var negatedOpWords = map[string]ast.Op{
	"in": ast.OpNotIn, "containing": ast.OpNotContaining, "equal": ast.OpNotEqual,
}

var symbolicOps = map[token.Type]ast.Op{
	token.DOTDOT: ast.OpDotDot, token.UNDERDOT: ast.OpUnderDot,
	token.DOTUNDER: ast.OpDotUnder, token.UNDERUNDER: ast.OpUnderUnder,
}

// parseOper consumes one `oper` production, returning its Op and (for
// near/near_before) the parenthesized integer parameter.
func (p *Parser) parseOper() (ast.Op, int, error) {
	if op, ok := symbolicOps[p.cur.Type]; ok {
		p.advance()
		return op, 0, nil
	}
	word := p.cur.Literal
	if word == "not" {
		p.advance()
		if p.cur.Type != token.IDENT {
			return 0, 0, p.errorf("expected an operator word after \"not\", got %q", p.cur.Literal)
		}
		op, ok := negatedOpWords[p.cur.Literal]
		if !ok {
			return 0, 0, p.errorf("\"not\" cannot combine with %q", p.cur.Literal)
		}
		p.advance()
		return op, 0, nil
	}
	if word == "near" || word == "near_before" {
		p.advance()
		if err := p.expect(token.LPAREN); err != nil {
			return 0, 0, err
		}
		if p.cur.Type != token.INTEGER {
			return 0, 0, p.errorf("expected an integer argument to %q", word)
		}
		n, err := strconv.Atoi(p.cur.Literal)
		if err != nil {
			return 0, 0, p.errorf("malformed integer %q", p.cur.Literal)
		}
		p.advance()
		if err := p.expect(token.RPAREN); err != nil {
			return 0, 0, err
		}
		if word == "near" {
			return ast.OpNear, n, nil
		}
		return ast.OpNearBefore, n, nil
	}
	if op, ok := simpleOpWords[word]; ok {
		p.advance()
		return op, 0, nil
	}
	return 0, 0, p.errorf("unknown operator %q", word)
}

func (p *Parser) expect(t token.Type) error {
	if p.cur.Type != t {
		return p.errorf("expected %v, got %v (%q)", t, p.cur.Type, p.cur.Literal)
	}
	p.advance()
	return nil
}

// phrasePrefix maps a PhraseType function name to the
// internal leaf-type-prefix alphabet.
var phrasePrefix = map[string]string{
	"file": ast.PrefixFile, "string": ast.PrefixLiteral, "regex": ast.PrefixRegex,
	"pi": ast.PrefixPI, "attribute": ast.PrefixAttr, "attvalue": ast.PrefixAttrValue,
	"stag": ast.PrefixStag, "etag": ast.PrefixEtag, "element": ast.PrefixElements,
	"doctype": ast.PrefixDoctypeName, "doctype_pid": ast.PrefixDoctypePID,
	"doctype_sid": ast.PrefixDoctypeSID, "entity_declaration": ast.PrefixEntityDeclName,
	"entity_literal": ast.PrefixEntityLiteral, "entity_pid": ast.PrefixEntityPID,
	"entity_sid": ast.PrefixEntitySID, "entity_ndata": ast.PrefixEntityNData,
	"comment_word": ast.PrefixCommentWord, "word": ast.PrefixWord,
	"entity": ast.PrefixEntity, "raw": ast.PrefixRaw,
}

var identityOps = map[string]ast.Op{"outer": ast.OpOuter, "inner": ast.OpInner, "concat": ast.OpConcat}

var integerOps = map[string]ast.Op{
	"join": ast.OpJoin, "first": ast.OpFirst, "last": ast.OpLast,
	"first_bytes": ast.OpFirstBytes, "last_bytes": ast.OpLastBytes,
}

// basic_expr := STRING | PHRASE-func "(" STRING ")" | IDENT-func "(" reg_expr ")"
//             | INT-func "(" INTEGER "," reg_expr ")" | "[" cons_list "]"
//             | "(" reg_expr ")" | builtin-ident
func (p *Parser) parseBasicExpr() (*ast.Node, error) {
	switch p.cur.Type {
	case token.STRING:
		lit := unescapeLiteral(p.cur.Literal)
		p.advance()
		return ast.NewLeaf(ast.PrefixLiteral, lit), nil

	case token.LPAREN:
		p.advance()
		inner, err := p.parseRegExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return inner, nil

	case token.LBRACKET:
		return p.parseConsList()

	case token.IDENT:
		return p.parseIdentExpr()
	}
	return nil, p.errorf("unexpected token %v (%q) in expression", p.cur.Type, p.cur.Literal)
}

func (p *Parser) parseIdentExpr() (*ast.Node, error) {
	name := p.cur.Literal

	if token.BuiltinIdents[name] {
		p.advance()
		if name == "start" {
			return ast.NewLeaf(ast.PrefixStart, ""), nil
		}
		return ast.NewLeaf(ast.PrefixEnd, ""), nil
	}

	if prefix, ok := phrasePrefix[name]; ok {
		p.advance()
		if err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		if p.cur.Type != token.STRING {
			return nil, p.errorf("expected a string argument to %s(...)", name)
		}
		term := unescapeLiteral(p.cur.Literal)
		filePrefix := false
		if name == "file" && len(term) > 0 && term[len(term)-1] == '*' {
			filePrefix = true
			term = term[:len(term)-1]
		}
		p.advance()
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		leaf := ast.NewLeaf(prefix, term)
		leaf.Leaf.FilePrefix = filePrefix
		return leaf, nil
	}

	if op, ok := identityOps[name]; ok {
		p.advance()
		if err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		inner, err := p.parseRegExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return ast.NewUnary(op, inner), nil
	}

	if op, ok := integerOps[name]; ok {
		p.advance()
		if err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		if p.cur.Type != token.INTEGER {
			return nil, p.errorf("expected an integer as the first argument to %s(...)", name)
		}
		n, err := strconv.Atoi(p.cur.Literal)
		if err != nil {
			return nil, p.errorf("malformed integer %q", p.cur.Literal)
		}
		p.advance()
		if err := p.expect(token.COMMA); err != nil {
			return nil, err
		}
		inner, err := p.parseRegExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return ast.NewUnaryParam(op, inner, n), nil
	}

	return nil, p.errorf("unknown identifier %q", name)
}

// cons_list is a comma-separated, non-empty list of reg_expr inside
// brackets: "[" a, b, c "]". Marked with OpCons so the optimizer's
// common-subtree elimination never merges it.
func (p *Parser) parseConsList() (*ast.Node, error) {
	if err := p.expect(token.LBRACKET); err != nil {
		return nil, err
	}
	var children []*ast.Node
	for {
		child, err := p.parseRegExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		if p.cur.Type == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}
	return ast.NewCons(children), nil
}
