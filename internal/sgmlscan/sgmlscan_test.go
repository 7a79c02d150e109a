package sgmlscan

import (
	"testing"

	"github.com/standardbeagle/sgrep/internal/diag"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
)

type hit struct {
	prefix, term string
	start, end   region.Offset
}

func scanAll(t *testing.T, mode Mode, src string) []hit {
	t.Helper()
	s := New(DefaultConfig(mode))
	var hits []hit
	s.Scan("test", []byte(src), 0, diag.NewSink(nil), func(prefix, term string, start, end region.Offset) {
		hits = append(hits, hit{prefix, term, start, end})
	})
	return hits
}

func findAll(hits []hit, prefix string) []hit {
	var out []hit
	for _, h := range hits {
		if h.prefix == prefix {
			out = append(out, h)
		}
	}
	return out
}

func TestScanStagEtagWordAndElements(t *testing.T) {
	src := `<p>hello</p>`
	hits := scanAll(t, ModeXML, src)

	stags := findAll(hits, ast.PrefixStag)
	if len(stags) != 1 || stags[0].term != "p" || stags[0].start != 0 || stags[0].end != 2 {
		t.Fatalf("stag: %+v", stags)
	}
	etags := findAll(hits, ast.PrefixEtag)
	if len(etags) != 1 || etags[0].term != "p" {
		t.Fatalf("etag: %+v", etags)
	}
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 1 || words[0].term != "hello" {
		t.Fatalf("words: %+v", words)
	}
	elems := findAll(hits, ast.PrefixElements)
	if len(elems) != 1 || elems[0].term != "p" || elems[0].start != 0 || elems[0].end != region.Offset(len(src)-1) {
		t.Fatalf("elements: %+v", elems)
	}
}

func TestScanAttribute(t *testing.T) {
	src := `<a href="x">y</a>`
	hits := scanAll(t, ModeXML, src)
	attrs := findAll(hits, ast.PrefixAttr)
	if len(attrs) != 1 || attrs[0].term != "href" {
		t.Fatalf("attrs: %+v", attrs)
	}
	vals := findAll(hits, ast.PrefixAttrValue)
	if len(vals) != 1 || vals[0].term != "x" {
		t.Fatalf("vals: %+v", vals)
	}
}

func TestScanSelfClosingTag(t *testing.T) {
	src := `<br/>`
	hits := scanAll(t, ModeXML, src)
	elems := findAll(hits, ast.PrefixElements)
	if len(elems) != 1 || elems[0].term != "br" {
		t.Fatalf("elements: %+v", elems)
	}
	etags := findAll(hits, ast.PrefixEtag)
	if len(etags) != 1 {
		t.Fatalf("expected synthesized etag for self-closing tag: %+v", etags)
	}
}

func TestScanNestedElements(t *testing.T) {
	src := `<a><b>x</b></a>`
	hits := scanAll(t, ModeXML, src)
	elems := findAll(hits, ast.PrefixElements)
	if len(elems) != 2 {
		t.Fatalf("elements: %+v", elems)
	}
	// b closes before a.
	if elems[0].term != "b" || elems[1].term != "a" {
		t.Fatalf("elements order: %+v", elems)
	}
	if elems[0].start != 3 || elems[1].start != 0 {
		t.Fatalf("elements spans: %+v", elems)
	}
}

func TestScanUnclosedTagSynthesizesElement(t *testing.T) {
	src := `<a>text`
	hits := scanAll(t, ModeXML, src)
	elems := findAll(hits, ast.PrefixElements)
	if len(elems) != 1 || elems[0].term != "a" || elems[0].start != 0 || elems[0].end != 2 {
		t.Fatalf("elements: %+v", elems)
	}
}

func TestScanComment(t *testing.T) {
	src := `<!-- hello world -->`
	hits := scanAll(t, ModeXML, src)
	comments := findAll(hits, ast.PrefixComment)
	if len(comments) != 1 || comments[0].start != 0 || comments[0].end != region.Offset(len(src)-1) {
		t.Fatalf("comments: %+v", comments)
	}
	cwords := findAll(hits, ast.PrefixCommentWord)
	if len(cwords) != 2 || cwords[0].term != "hello" || cwords[1].term != "world" {
		t.Fatalf("comment words: %+v", cwords)
	}
}

func TestScanCDATA(t *testing.T) {
	src := `<![CDATA[<not a tag>]]>`
	hits := scanAll(t, ModeXML, src)
	cdata := findAll(hits, ast.PrefixCDATA)
	if len(cdata) != 1 || cdata[0].start != 0 || cdata[0].end != region.Offset(len(src)-1) {
		t.Fatalf("cdata: %+v", cdata)
	}
	// Nothing inside the marked section should have been scanned as markup.
	if stags := findAll(hits, ast.PrefixStag); len(stags) != 0 {
		t.Fatalf("unexpected stag inside CDATA: %+v", stags)
	}
}

func TestScanProcessingInstruction(t *testing.T) {
	src := `<?xml version="1.0" encoding="UTF-8"?>`
	hits := scanAll(t, ModeXML, src)
	pis := findAll(hits, ast.PrefixPI)
	if len(pis) != 1 || pis[0].term != "xml" {
		t.Fatalf("pi: %+v", pis)
	}
}

func TestScanEntityReference(t *testing.T) {
	src := `a &amp; b`
	hits := scanAll(t, ModeXML, src)
	ents := findAll(hits, ast.PrefixEntity)
	if len(ents) != 1 || ents[0].term != "amp" {
		t.Fatalf("entity: %+v", ents)
	}
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 2 || words[0].term != "a" || words[1].term != "b" {
		t.Fatalf("words: %+v", words)
	}
}

// TestScanWordStraddlesDecimalCharacterReference checks that
// a decimal character reference that decodes to a word char splices into
// the surrounding word instead of splitting it into separate emissions.
func TestScanWordStraddlesDecimalCharacterReference(t *testing.T) {
	src := `wo&#114;d`
	hits := scanAll(t, ModeXML, src)
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 1 || words[0].term != "word" {
		t.Fatalf("words: %+v", words)
	}
	if got := findAll(hits, ast.PrefixEntity); len(got) != 0 {
		t.Fatalf("expected no entity leaf for a numeric character reference, got %+v", got)
	}
}

// TestScanWordStraddlesHexCharacterReference is the hex-form counterpart
// ("&#x...;").
func TestScanWordStraddlesHexCharacterReference(t *testing.T) {
	src := `wo&#x72;d`
	hits := scanAll(t, ModeXML, src)
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 1 || words[0].term != "word" {
		t.Fatalf("words: %+v", words)
	}
}

// TestScanCharacterReferenceStartsWord covers a reference at the very
// start of a word, with no preceding word chars to splice into.
func TestScanCharacterReferenceStartsWord(t *testing.T) {
	src := `&#119;ord`
	hits := scanAll(t, ModeXML, src)
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 1 || words[0].term != "word" {
		t.Fatalf("words: %+v", words)
	}
}

// TestScanNonWordCharacterReferenceEndsWord covers a decoded scalar that
// is not a word char: it ends the preceding word without gluing in and
// without emitting an entity leaf.
func TestScanNonWordCharacterReferenceEndsWord(t *testing.T) {
	src := `wo&#46;rd`
	hits := scanAll(t, ModeXML, src)
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 2 || words[0].term != "wo" || words[1].term != "rd" {
		t.Fatalf("words: %+v", words)
	}
	if got := findAll(hits, ast.PrefixEntity); len(got) != 0 {
		t.Fatalf("expected no entity leaf for a numeric character reference, got %+v", got)
	}
}

func TestScanDoctype(t *testing.T) {
	src := `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0//EN" "xhtml1.dtd">`
	hits := scanAll(t, ModeXML, src)
	names := findAll(hits, ast.PrefixDoctypeName)
	if len(names) != 1 || names[0].term != "html" {
		t.Fatalf("doctype name: %+v", names)
	}
	pids := findAll(hits, ast.PrefixDoctypePID)
	if len(pids) != 1 || pids[0].term != "-//W3C//DTD XHTML 1.0//EN" {
		t.Fatalf("doctype pid: %+v", pids)
	}
	sids := findAll(hits, ast.PrefixDoctypeSID)
	if len(sids) != 1 || sids[0].term != "xhtml1.dtd" {
		t.Fatalf("doctype sid: %+v", sids)
	}
}

func TestScanDoctypeInternalSubsetEntity(t *testing.T) {
	src := `<!DOCTYPE root [<!ENTITY foo "bar">]>`
	hits := scanAll(t, ModeXML, src)
	names := findAll(hits, ast.PrefixEntityDeclName)
	if len(names) != 1 || names[0].term != "foo" {
		t.Fatalf("entity decl name: %+v", names)
	}
	lits := findAll(hits, ast.PrefixEntityLiteral)
	if len(lits) != 1 || lits[0].term != "bar" {
		t.Fatalf("entity literal: %+v", lits)
	}
}

func TestScanIgnoreCaseFoldsNamesAndWords(t *testing.T) {
	cfg := DefaultConfig(ModeXML)
	cfg.IgnoreCase = true
	s := New(cfg)
	var hits []hit
	s.Scan("test", []byte(`<P>Hello</P>`), 0, diag.NewSink(nil), func(prefix, term string, start, end region.Offset) {
		hits = append(hits, hit{prefix, term, start, end})
	})
	stags := findAll(hits, ast.PrefixStag)
	if len(stags) != 1 || stags[0].term != "p" {
		t.Fatalf("expected folded stag name: %+v", stags)
	}
	words := findAll(hits, ast.PrefixWord)
	if len(words) != 1 || words[0].term != "hello" {
		t.Fatalf("expected folded word: %+v", words)
	}
}

func TestScanPlainTextModeEmitsNoMarkup(t *testing.T) {
	hits := scanAll(t, ModePlainText, `<p>hello</p> world`)
	if stags := findAll(hits, ast.PrefixStag); len(stags) != 0 {
		t.Fatalf("unexpected stag in plain text mode: %+v", stags)
	}
	words := findAll(hits, ast.PrefixWord)
	if len(words) == 0 {
		t.Fatalf("expected word leaves in plain text mode")
	}
}

func TestScanBaseOffsetShiftsRegions(t *testing.T) {
	s := New(DefaultConfig(ModeXML))
	var hits []hit
	s.Scan("test", []byte(`<a/>`), 100, diag.NewSink(nil), func(prefix, term string, start, end region.Offset) {
		hits = append(hits, hit{prefix, term, start, end})
	})
	elems := findAll(hits, ast.PrefixElements)
	if len(elems) != 1 || elems[0].start != 100 {
		t.Fatalf("expected base-shifted region: %+v", elems)
	}
}

func TestScanXMLDeclEmitsPIAndProlog(t *testing.T) {
	src := `<?xml version="1.0" encoding="utf-8"?><p>hi</p>`
	hits := scanAll(t, ModeXML, src)

	pis := findAll(hits, ast.PrefixPI)
	if len(pis) != 1 || pis[0].term != "xml" || pis[0].start != 0 {
		t.Fatalf("pi: %+v", pis)
	}
	prologs := findAll(hits, ast.PrefixProlog)
	if len(prologs) != 1 || prologs[0].start != 0 || prologs[0].end != 37 {
		t.Fatalf("prolog: %+v", prologs)
	}
}

func TestScanXMLDeclUnknownEncodingWarns(t *testing.T) {
	s := New(DefaultConfig(ModeXML))
	sink := diag.NewSink(nil)
	s.Scan("test", []byte(`<?xml version="1.0" encoding="ebcdic"?><p/>`), 0, sink,
		func(string, string, region.Offset, region.Offset) {})
	if sink.EncodingWarnings() != 1 {
		t.Fatalf("got %d encoding warnings, want 1", sink.EncodingWarnings())
	}
}

func TestScanCollectsSystemEntitiesWhenEnabled(t *testing.T) {
	cfg := DefaultConfig(ModeXML)
	cfg.IncludeSystemEntities = true
	s := New(cfg)
	src := `<!DOCTYPE doc SYSTEM "doc.dtd" [<!ENTITY chap SYSTEM "chap1.xml">]><doc/>`
	sysids := s.Scan("test", []byte(src), 0, diag.NewSink(nil),
		func(string, string, region.Offset, region.Offset) {})
	if len(sysids) != 2 || sysids[0] != "doc.dtd" || sysids[1] != "chap1.xml" {
		t.Fatalf("sysids: %v", sysids)
	}
}

func TestScanIgnoresSystemEntitiesByDefault(t *testing.T) {
	s := New(DefaultConfig(ModeXML))
	sysids := s.Scan("test", []byte(`<!DOCTYPE doc SYSTEM "doc.dtd"><doc/>`), 0,
		diag.NewSink(nil), func(string, string, region.Offset, region.Offset) {})
	if sysids != nil {
		t.Fatalf("expected no collected system ids, got %v", sysids)
	}
}
