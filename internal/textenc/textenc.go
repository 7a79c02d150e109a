// Package textenc implements the scanner's character-encoding front
// end: a byte-level automaton that turns an input byte slice into a
// stream of (rune, byteStart, byteEnd) triples, with automatic
// BOM-driven switching between UTF-16 big- and little-endian, UTF-8 when
// no BOM is found, and an 8-bit passthrough mode a caller can select. The
// byte-to-rune math itself is done with unicode/utf8 and unicode/utf16;
// what this package adds is the mode-dispatch/BOM-switch state machine and
// the inclusive per-rune byte spans that let callers end regions on
// decoded-character boundaries.
package textenc

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/standardbeagle/sgrep/internal/diag"
)

// Mode selects the decoding discipline for one scan.
type Mode int

const (
	// AutoDetect inspects the first bytes for a UTF-16 BOM and otherwise
	// assumes UTF-8.
	AutoDetect Mode = iota
	EightBit
	UTF8
	UTF16BE
	UTF16LE
)

// ReplacementRune is substituted for any byte sequence the decoder cannot
// make sense of; the decoder warns and the scan continues.
const ReplacementRune = utf8.RuneError

// Decoder turns a byte slice into a sequence of decoded runes, tracking
// byte offsets so callers can build Region values directly.
type Decoder struct {
	data []byte
	mode Mode
	pos  int // next unread byte

	// prevStart is the byte offset at which the most recently returned
	// rune began, exposed through PrevStart. The SGML scanner takes its
	// spans from Next's start/end instead.
	prevStart int

	sink *diag.Sink
	file string
}

// NewDecoder builds a Decoder over data. If mode is AutoDetect, the first
// two bytes are inspected for a UTF-16 BOM (FE FF big-endian, FF FE
// little-endian); otherwise UTF-8 is assumed. sink receives counted,
// non-fatal EncodingError reports; sink may be nil to discard them.
func NewDecoder(file string, data []byte, mode Mode, sink *diag.Sink) *Decoder {
	d := &Decoder{data: data, mode: mode, sink: sink, file: file}
	if mode == AutoDetect {
		d.mode = detectMode(data)
		if d.mode == UTF16BE || d.mode == UTF16LE {
			d.pos = 2 // skip BOM
		}
	}
	return d
}

func detectMode(data []byte) Mode {
	if len(data) >= 2 {
		if data[0] == 0xFE && data[1] == 0xFF {
			return UTF16BE
		}
		if data[0] == 0xFF && data[1] == 0xFE {
			return UTF16LE
		}
	}
	return UTF8
}

// Mode returns the (possibly autodetected) mode in effect.
func (d *Decoder) Mode() Mode { return d.mode }

// SetMode switches the decoding discipline for all bytes not yet read.
// The scanner uses this when an XML declaration names an encoding other
// than the one assumed so far; bytes already decoded are not revisited.
func (d *Decoder) SetMode(m Mode) {
	if m == AutoDetect {
		return
	}
	d.mode = m
}

// Len is the total byte length of the underlying buffer.
func (d *Decoder) Len() int { return len(d.data) }

// Pos is the next unread byte offset.
func (d *Decoder) Pos() int { return d.pos }

// PrevStart is the byte offset the previously returned rune started at.
func (d *Decoder) PrevStart() int { return d.prevStart }

// Next decodes and returns the next rune along with its inclusive
// [start,end] byte span. ok is false at end of input.
func (d *Decoder) Next() (r rune, start, end int, ok bool) {
	if d.pos >= len(d.data) {
		return 0, 0, 0, false
	}
	start = d.pos
	switch d.mode {
	case EightBit:
		r = rune(d.data[d.pos])
		d.pos++
	case UTF8:
		var size int
		r, size = utf8.DecodeRune(d.data[d.pos:])
		if r == utf8.RuneError && size <= 1 {
			d.warn(start, "invalid UTF-8 sequence")
			size = 1
		}
		d.pos += size
	case UTF16BE, UTF16LE:
		r, ok = d.nextUTF16()
		if !ok {
			return 0, 0, 0, false
		}
	default:
		r = rune(d.data[d.pos])
		d.pos++
	}
	end = d.pos - 1
	d.prevStart = start
	return r, start, end, true
}

func (d *Decoder) nextUTF16() (rune, bool) {
	readUnit := func(i int) (uint16, bool) {
		if i+1 >= len(d.data) {
			return 0, false
		}
		if d.mode == UTF16BE {
			return uint16(d.data[i])<<8 | uint16(d.data[i+1]), true
		}
		return uint16(d.data[i+1])<<8 | uint16(d.data[i]), true
	}
	if len(d.data)-d.pos == 1 {
		// Odd terminal byte: reportable, non-fatal.
		d.warn(d.pos, "truncated UTF-16 sequence (odd trailing byte)")
		d.pos++
		return ReplacementRune, true
	}
	hi, ok := readUnit(d.pos)
	if !ok {
		return 0, false
	}
	if utf16.IsSurrogate(rune(hi)) {
		lo, ok2 := readUnit(d.pos + 2)
		if ok2 {
			r := utf16.DecodeRune(rune(hi), rune(lo))
			if r != utf8.RuneError {
				d.pos += 4
				return r, true
			}
		}
		d.warn(d.pos, "unpaired UTF-16 surrogate")
		d.pos += 2
		return ReplacementRune, true
	}
	d.pos += 2
	return rune(hi), true
}

func (d *Decoder) warn(offset int, msg string) {
	if d.sink != nil {
		d.sink.WarnEncodingAt(d.file, offset, "%s", msg)
	}
}
