// Package sgmlscan implements the byte-driven SGML/XML/plain-text
// scanner: a single forward pass over a decoded character
// stream that emits type-prefixed PhraseLeaf regions (literal words, tag
// and attribute names/values, comments, processing instructions, marked
// sections, doctype/entity declarations) and maintains the element stack
// that synthesizes `@elements` full-element regions.
//
// The one-rune-pushback dispatch loop below follows the general shape
// of Go's own encoding/xml decoder (markup dispatched on '<' followed
// by a one-character lookahead), adapted to emit the leaf alphabet
// instead of building a DOM. DOCTYPE internal-subset and entity
// declarations are scanned for their DOCTYPE/ENTITY-visible pieces
// (name, public/system ids, literal value, NDATA) rather than fully
// validated against the DTD productions — the evaluator only ever
// consults the emitted leaf spans, never a parsed DTD, so a complete DTD
// grammar would be unexercised code.
package sgmlscan

import (
	"strings"

	"github.com/standardbeagle/sgrep/internal/diag"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/textenc"

	"github.com/bits-and-blooms/bitset"
)

// Mode selects the scanner's markup discipline.
type Mode int

const (
	ModeSGML Mode = iota
	ModeXML
	ModePlainText
)

// Config configures one Scanner.
type Config struct {
	Mode                  Mode
	IgnoreCase            bool
	WordChars             *bitset.BitSet
	NameStart             *bitset.BitSet
	NameCont              *bitset.BitSet
	IncludeSystemEntities bool
}

// DefaultConfig returns mode's default character-class configuration.
func DefaultConfig(mode Mode) Config {
	cfg := Config{Mode: mode, WordChars: defaultWordChars()}
	switch mode {
	case ModeXML:
		cfg.NameStart = defaultXMLNameStart()
		cfg.NameCont = defaultXMLNameCont()
	case ModeSGML:
		cfg.NameStart = defaultSGMLNameStart()
		cfg.NameCont = defaultSGMLNameCont()
	}
	return cfg
}

// Emit reports one recognized leaf occurrence: a type-prefix, its tagged
// term (possibly empty for untyped structural leaves like comments), and
// the inclusive byte span in the concatenated input.
type Emit func(prefix, term string, start, end region.Offset)

// Scanner runs one configured scan over arbitrarily many files.
type Scanner struct {
	cfg Config
}

// New returns a Scanner for cfg.
func New(cfg Config) *Scanner { return &Scanner{cfg: cfg} }

func (s *Scanner) fold(str string) string {
	if s.cfg.IgnoreCase {
		return strings.ToLower(str)
	}
	return str
}

type elementFrame struct {
	gi        string
	stagStart int
	stagEnd   int
}

// scanState holds the mutable cursor for one Scan call: the decoder, a
// one-rune pushback slot (all of this scanner's lookahead needs fit in a
// single character of backtrack), the pending word span, and the open
// element stack.
type scanState struct {
	s    *Scanner
	dec  *textenc.Decoder
	data []byte
	base region.Offset
	sink *diag.Sink
	emit Emit

	havePending bool
	pendR       rune
	pendStart   int
	pendEnd     int

	wordStart int
	wordEnd   int
	wordBuf   strings.Builder

	stack []elementFrame

	// sysids collects resolved SYSTEM identifiers when the configuration
	// asks for system-entity inclusion; the caller appends them to its
	// file list and scans them too.
	sysids []string
}

// Scan decodes data (attributed to file for diagnostics) and emits every
// recognized leaf, offsetting regions by base so multiple files can be
// scanned into one concatenated address space. When the configuration
// enables system-entity inclusion, the returned slice holds every
// resolved SYSTEM identifier seen, in document order, for the caller to
// append to its file list; otherwise it is nil.
func (s *Scanner) Scan(file string, data []byte, base region.Offset, sink *diag.Sink, emit Emit) []string {
	if sink == nil {
		sink = diag.NewSink(nil)
	}
	sc := &scanState{s: s, dec: textenc.NewDecoder(file, data, textenc.AutoDetect, sink), data: data, base: base, sink: sink, emit: emit, wordStart: -1}
	sc.run()
	return sc.sysids
}

func (sc *scanState) nextRune() (rune, int, int, bool) {
	if sc.havePending {
		sc.havePending = false
		return sc.pendR, sc.pendStart, sc.pendEnd, true
	}
	return sc.dec.Next()
}

func (sc *scanState) pushback(r rune, start, end int) {
	sc.pendR, sc.pendStart, sc.pendEnd, sc.havePending = r, start, end, true
}

func (sc *scanState) emitAt(prefix, term string, start, end int) {
	sc.emit(prefix, term, sc.base+region.Offset(start), sc.base+region.Offset(end))
}

func (sc *scanState) text(start, end int) string { return string(sc.data[start : end+1]) }

func (sc *scanState) run() {
	for {
		r, start, end, ok := sc.nextRune()
		if !ok {
			break
		}
		if sc.s.cfg.Mode != ModePlainText && r == '<' {
			sc.flushWord()
			sc.scanMarkup(start)
			continue
		}
		if sc.s.cfg.Mode != ModePlainText && r == '&' {
			// scanEntityRef decides for itself whether this reference ends
			// the in-progress word (a named entity, or a character
			// reference that isn't a word char) or splices into it (a
			// character reference that decodes to a word char) — flushing
			// here unconditionally would wrongly split a word straddling a
			// character reference.
			sc.scanEntityRef(start)
			continue
		}
		if test(sc.s.cfg.WordChars, r) {
			sc.appendWordRune(r, start, end)
			continue
		}
		sc.flushWord()
	}
	sc.flushWord()
	sc.closeUnclosed()
}

func (sc *scanState) appendWordRune(r rune, start, end int) {
	if sc.wordStart < 0 {
		sc.wordStart = start
	}
	sc.wordEnd = end
	sc.wordBuf.WriteRune(r)
}

func (sc *scanState) flushWord() {
	if sc.wordStart < 0 {
		return
	}
	sc.emitAt(ast.PrefixWord, sc.s.fold(sc.wordBuf.String()), sc.wordStart, sc.wordEnd)
	sc.wordStart = -1
	sc.wordBuf.Reset()
}

// collectSystemID records a resolved SYSTEM identifier for the caller's
// file list when system-entity inclusion is enabled.
func (sc *scanState) collectSystemID(sid string) {
	if !sc.s.cfg.IncludeSystemEntities || sid == "" {
		return
	}
	for _, have := range sc.sysids {
		if have == sid {
			return
		}
	}
	sc.sysids = append(sc.sysids, sid)
}

// closeUnclosed synthesizes empty-element regions for any start-tags left
// open when the input ends.
func (sc *scanState) closeUnclosed() {
	for _, f := range sc.stack {
		sc.emitAt(ast.PrefixElements, f.gi, f.stagStart, f.stagEnd)
	}
	sc.stack = nil
}

func (sc *scanState) skipWhitespace() (r rune, start, end int, ok bool) {
	for {
		r, start, end, ok = sc.nextRune()
		if !ok || !isSpace(r) {
			return
		}
	}
}

// scanMarkup handles everything that can follow '<' (ltStart is the
// offset of '<' itself).
func (sc *scanState) scanMarkup(ltStart int) {
	r, start, _, ok := sc.nextRune()
	if !ok {
		sc.sink.CountParseError()
		return
	}
	switch r {
	case '/':
		sc.scanETag(ltStart)
	case '?':
		sc.scanPI(ltStart)
	case '!':
		sc.scanDecl(ltStart)
	default:
		sc.scanSTag(ltStart, r, start)
	}
}

// readName consumes a NameStart char (already read as first) followed by
// NameCont chars, leaving the first non-name rune pushed back.
func (sc *scanState) readName(first rune, firstStart int) (name string, lastEnd int) {
	lastEnd = firstStart
	var b strings.Builder
	b.WriteRune(first)
	for {
		r, start, end, ok := sc.nextRune()
		if !ok || !test(sc.s.cfg.NameCont, r) {
			if ok {
				sc.pushback(r, start, end)
			}
			return b.String(), lastEnd
		}
		b.WriteRune(r)
		lastEnd = end
	}
}

func (sc *scanState) scanSTag(ltStart int, first rune, firstStart int) {
	if !test(sc.s.cfg.NameStart, first) {
		sc.sink.CountParseError()
		sc.skipToGT()
		return
	}
	gi, _ := sc.readName(first, firstStart)
	gi = sc.s.fold(gi)

	selfClosing, tagEnd := sc.scanAttrs(ltStart)
	sc.emitAt(ast.PrefixStag, gi, ltStart, tagEnd)

	if selfClosing {
		sc.emitAt(ast.PrefixEtag, gi, ltStart, tagEnd)
		sc.emitAt(ast.PrefixElements, gi, ltStart, tagEnd)
		return
	}
	sc.stack = append(sc.stack, elementFrame{gi: gi, stagStart: ltStart, stagEnd: tagEnd})
}

// scanAttrs consumes "attr=value"* up to the tag's closing '>' or '/>',
// emitting "a"+name and "v"+value leaves per attribute.
// Returns whether the tag self-closed and the byte offset of '>'.
func (sc *scanState) scanAttrs(ltStart int) (selfClosing bool, tagEnd int) {
	r, start, end, ok := sc.skipWhitespace()
	for ok {
		switch {
		case r == '/':
			r2, s2, e2, ok2 := sc.nextRune()
			if ok2 && r2 == '>' {
				return true, e2
			}
			if ok2 {
				sc.pushback(r2, s2, e2)
			}
			r, start, end, ok = sc.skipWhitespace()
			continue
		case r == '>':
			return false, end
		case test(sc.s.cfg.NameStart, r):
			name, nameEnd := sc.readName(r, start)
			name = sc.s.fold(name)
			sc.emitAt(ast.PrefixAttr, name, start, nameEnd)
			sc.scanAttrValue()
			r, start, end, ok = sc.skipWhitespace()
		default:
			// Unrecognized character inside a tag: best-effort recovery,
			// consume it and keep scanning for the closing '>'.
			sc.sink.CountParseError()
			r, start, end, ok = sc.nextRune()
		}
	}
	sc.sink.CountParseError()
	return false, start
}

func (sc *scanState) scanAttrValue() {
	r, start, end, ok := sc.skipWhitespace()
	if !ok || r != '=' {
		if ok {
			sc.pushback(r, start, end)
		}
		return
	}
	r, start, end, ok = sc.skipWhitespace()
	if !ok {
		return
	}
	if r == '"' || r == '\'' {
		quote := r
		valStart := -1
		valEnd := -1
		for {
			r, start, end, ok = sc.nextRune()
			if !ok || r == quote {
				break
			}
			if valStart < 0 {
				valStart = start
			}
			valEnd = end
		}
		if valStart >= 0 {
			sc.emitAt(ast.PrefixAttrValue, sc.s.fold(sc.text(valStart, valEnd)), valStart, valEnd)
		}
		return
	}
	// Unquoted SGML-style value: runs until whitespace or a tag delimiter.
	valStart, valEnd := start, end
	for {
		r, start, end, ok = sc.nextRune()
		if !ok || isSpace(r) || r == '>' || r == '/' {
			if ok {
				sc.pushback(r, start, end)
			}
			break
		}
		valEnd = end
	}
	sc.emitAt(ast.PrefixAttrValue, sc.s.fold(sc.text(valStart, valEnd)), valStart, valEnd)
}

func (sc *scanState) scanETag(ltStart int) {
	r, start, _, ok := sc.skipWhitespace()
	if !ok || !test(sc.s.cfg.NameStart, r) {
		sc.sink.CountParseError()
		sc.skipToGT()
		return
	}
	gi, _ := sc.readName(r, start)
	gi = sc.s.fold(gi)

	_, tagEnd := sc.scanAttrs(ltStart)
	sc.emitAt(ast.PrefixEtag, gi, ltStart, tagEnd)

	for i := len(sc.stack) - 1; i >= 0; i-- {
		if sc.stack[i].gi == gi {
			frame := sc.stack[i]
			sc.stack = sc.stack[:i]
			sc.emitAt(ast.PrefixElements, gi, frame.stagStart, tagEnd)
			return
		}
	}
	sc.sink.CountParseError()
}

func (sc *scanState) scanPI(ltStart int) {
	r, start, _, ok := sc.nextRune()
	if !ok || !test(sc.s.cfg.NameStart, r) {
		sc.skipPastQuestionGT()
		return
	}
	target, _ := sc.readName(r, start)
	if target == "xml" {
		sc.scanXMLDecl(ltStart)
		return
	}
	gtEnd := sc.skipPastQuestionGT()
	sc.emitAt(ast.PrefixPI, target, ltStart, gtEnd)
}

// scanXMLDecl handles "<?xml version=... encoding=...?>": the declaration
// is emitted both as a PI (target "xml") and as the document-prolog leaf,
// and a recognized encoding pseudo-attribute switches the decoder for the
// rest of the file. Unknown encodings warn and keep the current decoding.
func (sc *scanState) scanXMLDecl(ltStart int) {
	var body strings.Builder
	prevWasQuestion := false
	gtEnd := ltStart
	for {
		r, _, end, ok := sc.nextRune()
		if !ok {
			sc.sink.CountParseError()
			return
		}
		gtEnd = end
		if r == '>' && prevWasQuestion {
			break
		}
		prevWasQuestion = r == '?'
		body.WriteRune(r)
	}
	sc.emitAt(ast.PrefixPI, "xml", ltStart, gtEnd)
	sc.emitAt(ast.PrefixProlog, "", ltStart, gtEnd)

	if enc, ok := pseudoAttr(body.String(), "encoding"); ok {
		switch strings.ToLower(enc) {
		case "iso-8859-1", "us-ascii":
			sc.dec.SetMode(textenc.EightBit)
		case "utf-8":
			sc.dec.SetMode(textenc.UTF8)
		case "utf-16":
			// A real UTF-16 stream was already caught by its BOM before the
			// first '<' decoded; a declaration alone cannot say which
			// endianness to use, so nothing to switch here.
		default:
			sc.sink.WarnEncoding("unknown encoding %q, keeping default", enc)
		}
	}
}

// pseudoAttr extracts a name="value" / name='value' pseudo-attribute from
// an XML declaration body.
func pseudoAttr(body, name string) (string, bool) {
	rest := body
	for {
		i := strings.Index(rest, name)
		if i < 0 {
			return "", false
		}
		rest = rest[i+len(name):]
		j := 0
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t' || rest[j] == '\n' || rest[j] == '\r') {
			j++
		}
		if j >= len(rest) || rest[j] != '=' {
			continue
		}
		j++
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t' || rest[j] == '\n' || rest[j] == '\r') {
			j++
		}
		if j >= len(rest) || (rest[j] != '"' && rest[j] != '\'') {
			continue
		}
		quote := rest[j]
		j++
		k := strings.IndexByte(rest[j:], quote)
		if k < 0 {
			return "", false
		}
		return rest[j : j+k], true
	}
}

// skipPastQuestionGT consumes up to and including the first "?>" and
// returns the byte offset of '>'.
func (sc *scanState) skipPastQuestionGT() int {
	prevWasQuestion := false
	for {
		r, _, end, ok := sc.nextRune()
		if !ok {
			sc.sink.CountParseError()
			return end
		}
		if r == '>' && prevWasQuestion {
			return end
		}
		prevWasQuestion = r == '?'
	}
}

// skipToGT is the lenient recovery path for markup this scanner couldn't
// parse: consume through the next unquoted '>'.
func (sc *scanState) skipToGT() {
	var quote rune
	for {
		r, _, _, ok := sc.nextRune()
		if !ok {
			return
		}
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		if r == '"' || r == '\'' {
			quote = r
			continue
		}
		if r == '>' {
			return
		}
	}
}

func (sc *scanState) scanDecl(ltStart int) {
	r, start, _, ok := sc.nextRune()
	if !ok {
		sc.sink.CountParseError()
		return
	}
	if r == '-' {
		r2, _, _, ok2 := sc.nextRune()
		if ok2 && r2 == '-' {
			sc.scanComment(ltStart)
			return
		}
		sc.skipToGT()
		return
	}
	if r == '[' {
		if sc.matchLiteral("CDATA[") {
			sc.scanCDATA(ltStart)
			return
		}
		sc.skipMarkedSection()
		return
	}
	if !isAsciiAlpha(r) {
		sc.skipToGT()
		return
	}
	keyword, _ := sc.readAsciiIdent(r, start)
	if strings.EqualFold(keyword, "DOCTYPE") {
		sc.scanDoctype(ltStart)
		return
	}
	sc.skipToGT()
}

// matchLiteral consumes len(lit) more runes and reports whether they spell
// lit exactly; on mismatch the consumed runes are NOT un-read (markup
// that starts "<![" but isn't a CDATA section falls through to the
// generic marked-section skip instead, which needs no further
// disambiguation).
func (sc *scanState) matchLiteral(lit string) bool {
	for _, want := range lit {
		r, _, _, ok := sc.nextRune()
		if !ok || r != want {
			return false
		}
	}
	return true
}

func (sc *scanState) readAsciiIdent(first rune, firstStart int) (string, int) {
	lastEnd := firstStart
	var b strings.Builder
	b.WriteRune(first)
	for {
		r, start, end, ok := sc.nextRune()
		if !ok || !(isAsciiAlpha(r) || r == '-') {
			if ok {
				sc.pushback(r, start, end)
			}
			return b.String(), lastEnd
		}
		b.WriteRune(r)
		lastEnd = end
	}
}

func (sc *scanState) scanComment(ltStart int) {
	var last2 [2]rune
	wordStart := -1
	wordEnd := -1
	for {
		r, start, end, ok := sc.nextRune()
		if !ok {
			sc.sink.CountParseError()
			return
		}
		if r == '>' && last2[0] == '-' && last2[1] == '-' {
			if wordStart >= 0 {
				sc.emitAt(ast.PrefixCommentWord, sc.s.fold(sc.text(wordStart, wordEnd)), wordStart, wordEnd)
			}
			sc.emitAt(ast.PrefixComment, "", ltStart, end)
			return
		}
		if test(sc.s.cfg.WordChars, r) {
			if wordStart < 0 {
				wordStart = start
			}
			wordEnd = end
		} else if wordStart >= 0 {
			sc.emitAt(ast.PrefixCommentWord, sc.s.fold(sc.text(wordStart, wordEnd)), wordStart, wordEnd)
			wordStart = -1
		}
		last2[0] = last2[1]
		last2[1] = r
	}
}

func (sc *scanState) scanCDATA(ltStart int) {
	var last2 [2]rune
	for {
		r, _, end, ok := sc.nextRune()
		if !ok {
			sc.sink.CountParseError()
			return
		}
		if r == '>' && last2[0] == ']' && last2[1] == ']' {
			sc.emitAt(ast.PrefixCDATA, "", ltStart, end)
			return
		}
		last2[0] = last2[1]
		last2[1] = r
	}
}

// skipMarkedSection handles "<![INCLUDE[...]]>"/"<![IGNORE[...]]>" and any
// other unrecognized marked-section keyword: consumed but not emitted, a
// deliberate scope cut.
func (sc *scanState) skipMarkedSection() {
	var last2 [2]rune
	for {
		r, _, _, ok := sc.nextRune()
		if !ok {
			return
		}
		if r == '>' && last2[0] == ']' && last2[1] == ']' {
			return
		}
		last2[0] = last2[1]
		last2[1] = r
	}
}

func (sc *scanState) scanDoctype(ltStart int) {
	r, start, _, ok := sc.skipWhitespace()
	if !ok {
		return
	}
	if test(sc.s.cfg.NameStart, r) {
		name, end := sc.readName(r, start)
		sc.emitAt(ast.PrefixDoctypeName, sc.s.fold(name), start, end)
	}
	r, start, _, ok = sc.skipWhitespace()
	for ok {
		switch {
		case r == '[':
			sc.scanInternalSubset()
			r, start, _, ok = sc.skipWhitespace()
		case r == '>':
			return
		case isAsciiAlpha(r):
			kw, _ := sc.readAsciiIdent(r, start)
			switch strings.ToUpper(kw) {
			case "PUBLIC":
				if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
					sc.emitAt(ast.PrefixDoctypePID, lit, ls, le)
				}
				if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
					sc.emitAt(ast.PrefixDoctypeSID, lit, ls, le)
					sc.collectSystemID(lit)
				}
			case "SYSTEM":
				if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
					sc.emitAt(ast.PrefixDoctypeSID, lit, ls, le)
					sc.collectSystemID(lit)
				}
			}
			r, start, _, ok = sc.skipWhitespace()
		default:
			r, start, _, ok = sc.nextRune()
		}
	}
}

// scanQuotedLiteral skips leading whitespace and reads a "…" or '…'
// literal, returning its content and inclusive content span.
func (sc *scanState) scanQuotedLiteral() (string, int, int, bool) {
	r, qStart, qEnd, ok := sc.skipWhitespace()
	if !ok || (r != '"' && r != '\'') {
		if ok {
			sc.pushback(r, qStart, qEnd)
		}
		return "", 0, 0, false
	}
	quote := r
	start, end := -1, -1
	for {
		r, s, e, ok := sc.nextRune()
		if !ok || r == quote {
			break
		}
		if start < 0 {
			start = s
		}
		end = e
	}
	if start < 0 {
		return "", 0, 0, false
	}
	return sc.text(start, end), start, end, true
}

// scanInternalSubset consumes a DOCTYPE's "[...]" internal subset,
// dispatching "<!ENTITY ...>" declarations to scanEntityDecl and skipping
// every other declaration/PI/comment it finds inside.
func (sc *scanState) scanInternalSubset() {
	for {
		r, start, _, ok := sc.nextRune()
		if !ok {
			sc.sink.CountParseError()
			return
		}
		switch {
		case r == ']':
			return
		case isSpace(r):
			continue
		case r == '<':
			sc.scanSubsetMarkup(start)
		}
	}
}

func (sc *scanState) scanSubsetMarkup(ltStart int) {
	r, start, _, ok := sc.nextRune()
	if !ok {
		return
	}
	if r == '?' {
		sc.scanPI(ltStart)
		return
	}
	if r != '!' {
		sc.skipToGT()
		return
	}
	r, start, _, ok = sc.nextRune()
	if !ok {
		return
	}
	if r == '-' {
		r2, _, _, ok2 := sc.nextRune()
		if ok2 && r2 == '-' {
			sc.scanComment(ltStart)
		} else {
			sc.skipToGT()
		}
		return
	}
	if !isAsciiAlpha(r) {
		sc.skipToGT()
		return
	}
	kw, _ := sc.readAsciiIdent(r, start)
	if strings.EqualFold(kw, "ENTITY") {
		sc.scanEntityDecl(ltStart)
		return
	}
	sc.skipToGT()
}

// scanEntityDecl handles "<!ENTITY name 'literal'>" /
// "<!ENTITY name PUBLIC '…' '…'>" / "<!ENTITY name SYSTEM '…' [NDATA
// name]>".
func (sc *scanState) scanEntityDecl(ltStart int) {
	r, start, _, ok := sc.skipWhitespace()
	if !ok {
		return
	}
	if r == '%' {
		r, start, _, ok = sc.skipWhitespace()
		if !ok {
			return
		}
	}
	if !test(sc.s.cfg.NameStart, r) {
		sc.skipToGT()
		return
	}
	name, end := sc.readName(r, start)
	sc.emitAt(ast.PrefixEntityDeclName, sc.s.fold(name), start, end)

	r, start, _, ok = sc.skipWhitespace()
	if !ok {
		return
	}
	if r == '"' || r == '\'' {
		sc.pushback(r, start, start)
		if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
			sc.emitAt(ast.PrefixEntityLiteral, lit, ls, le)
		}
		sc.skipToGT()
		return
	}
	if isAsciiAlpha(r) {
		kw, _ := sc.readAsciiIdent(r, start)
		switch strings.ToUpper(kw) {
		case "PUBLIC":
			if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
				sc.emitAt(ast.PrefixEntityPID, lit, ls, le)
			}
			if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
				sc.emitAt(ast.PrefixEntitySID, lit, ls, le)
				sc.collectSystemID(lit)
			}
		case "SYSTEM":
			if lit, ls, le, ok2 := sc.scanQuotedLiteral(); ok2 {
				sc.emitAt(ast.PrefixEntitySID, lit, ls, le)
				sc.collectSystemID(lit)
			}
		}
		r, start, _, ok = sc.skipWhitespace()
		if ok && isAsciiAlpha(r) {
			kw2, _ := sc.readAsciiIdent(r, start)
			if strings.EqualFold(kw2, "NDATA") {
				if r2, s2, _, ok2 := sc.skipWhitespace(); ok2 && test(sc.s.cfg.NameStart, r2) {
					ndata, nend := sc.readName(r2, s2)
					sc.emitAt(ast.PrefixEntityNData, sc.s.fold(ndata), s2, nend)
				}
			}
		}
	}
	sc.skipToGT()
}

// scanEntityRef handles "&...;" (ampStart is the offset of '&' itself).
// A numeric character reference ("&#..." / "&#x...") is handed to
// scanCharacterRef, which may splice its decoded scalar into the
// in-progress word instead of ending it. Anything else is
// a named entity reference, which always ends the current word and
// emits an "entity" leaf.
func (sc *scanState) scanEntityRef(ampStart int) {
	r, _, _, ok := sc.nextRune()
	if !ok {
		sc.flushWord()
		sc.sink.CountParseError()
		return
	}
	if r == '#' {
		sc.scanCharacterRef(ampStart)
		return
	}

	sc.flushWord()
	var b strings.Builder
	b.WriteRune(r)
	for {
		r, _, end, ok := sc.nextRune()
		if !ok {
			sc.sink.CountParseError()
			return
		}
		if r == ';' {
			sc.emitAt(ast.PrefixEntity, b.String(), ampStart, end)
			return
		}
		if isSpace(r) || r == '<' || r == '&' {
			// Malformed reference (no terminating ';'): give up on this
			// one and reprocess r from the top-level loop.
			sc.sink.CountParseError()
			sc.pushback(r, end, end)
			return
		}
		b.WriteRune(r)
	}
}

// scanCharacterRef handles "&#DDD;" and "&#xHHH;" numeric character
// references: the reference is decoded to a scalar, and if that scalar is a
// word char it is spliced into the in-progress word (starting a new one
// if none was open) rather than ending it, so a word may straddle a
// character reference. A decoded scalar that isn't a word char, or a
// malformed reference, simply ends whatever word preceded it; neither
// case emits an "entity" leaf — only named entity references do that.
func (sc *scanState) scanCharacterRef(ampStart int) {
	r, _, end, ok := sc.nextRune()
	if !ok {
		sc.flushWord()
		sc.sink.CountParseError()
		return
	}
	hex := false
	if r == 'x' || r == 'X' {
		hex = true
		r, _, end, ok = sc.nextRune()
		if !ok {
			sc.flushWord()
			sc.sink.CountParseError()
			return
		}
	}

	value := 0
	digits := 0
	for {
		d, isDigit := digitValue(r, hex)
		if !isDigit {
			break
		}
		radix := 10
		if hex {
			radix = 16
		}
		value = value*radix + d
		digits++
		r, _, end, ok = sc.nextRune()
		if !ok {
			sc.flushWord()
			sc.sink.CountParseError()
			return
		}
	}

	if digits == 0 || r != ';' {
		sc.flushWord()
		sc.sink.CountParseError()
		sc.pushback(r, end, end)
		return
	}

	scalar := rune(value)
	if value > 0 && test(sc.s.cfg.WordChars, scalar) {
		if sc.wordStart < 0 {
			sc.wordStart = ampStart
		}
		sc.wordEnd = end
		sc.wordBuf.WriteRune(scalar)
		return
	}
	sc.flushWord()
}

// digitValue reports the numeric value of r as a decimal or hex digit.
func digitValue(r rune, hex bool) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case hex && r >= 'a' && r <= 'f':
		return int(r-'a') + 10, true
	case hex && r >= 'A' && r <= 'F':
		return int(r-'A') + 10, true
	default:
		return 0, false
	}
}
