package sgmlscan

import "github.com/bits-and-blooms/bitset"

// charClass returns a 65536-bit bitmap flagging every scalar value in
// [0,65535] matched by fn, materialized once per configuration rather
// than re-testing a range chain per character.
func charClass(fn func(rune) bool) *bitset.BitSet {
	b := bitset.New(0x10000)
	for r := rune(0); r <= 0xFFFF; r++ {
		if fn(r) {
			b.Set(uint(r))
		}
	}
	return b
}

func test(b *bitset.BitSet, r rune) bool {
	if r < 0 || r > 0xFFFF {
		// Astral-plane scalars: treat as name/word characters, matching
		// the permissive default every XML NameChar production extends to.
		return true
	}
	return b.Test(uint(r))
}

func isAsciiAlpha(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isAsciiDigit(r rune) bool { return r >= '0' && r <= '9' }

// defaultXMLNameStart / defaultXMLNameCont approximate the XML 1.0
// NameStartChar/NameChar productions: ASCII letters/underscore/colon to
// start, plus digits/hyphen/period/combining marks to continue, and any
// codepoint at or above Latin-1 Supplement treated as a name character.
func defaultXMLNameStart() *bitset.BitSet {
	return charClass(func(r rune) bool {
		return isAsciiAlpha(r) || r == '_' || r == ':' || r >= 0x00C0
	})
}

func defaultXMLNameCont() *bitset.BitSet {
	return charClass(func(r rune) bool {
		return isAsciiAlpha(r) || isAsciiDigit(r) || r == '_' || r == ':' ||
			r == '-' || r == '.' || r >= 0x00C0
	})
}

// defaultSGMLNameStart / defaultSGMLNameCont are narrower, matching
// classic SGML's ASCII-only default naming rules.
func defaultSGMLNameStart() *bitset.BitSet {
	return charClass(func(r rune) bool { return isAsciiAlpha(r) })
}

func defaultSGMLNameCont() *bitset.BitSet {
	return charClass(func(r rune) bool {
		return isAsciiAlpha(r) || isAsciiDigit(r) || r == '-' || r == '.'
	})
}

// defaultWordChars matches ASCII letters and digits, the apostrophe, and
// every scalar at or above U+00C0 — the word-boundary rule for the `word()`/`comment_word()` phrase types; user
// configuration may override it.
func defaultWordChars() *bitset.BitSet {
	return charClass(func(r rune) bool {
		return isAsciiAlpha(r) || isAsciiDigit(r) || r == '\'' || r >= 0x00C0
	})
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
