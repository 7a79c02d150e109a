package textenc

import (
	"testing"

	"github.com/standardbeagle/sgrep/internal/diag"
)

func decodeAll(t *testing.T, data []byte, mode Mode) []rune {
	t.Helper()
	d := NewDecoder("test", data, mode, diag.NewSink(nil))
	var out []rune
	for {
		r, _, _, ok := d.Next()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

func TestEightBitPassthrough(t *testing.T) {
	got := decodeAll(t, []byte{0x41, 0xFF, 0x00}, EightBit)
	want := []rune{0x41, 0xFF, 0x00}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rune %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestUTF8Basic(t *testing.T) {
	got := decodeAll(t, []byte("aé中"), UTF8)
	want := []rune{'a', 'é', '中'}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestAutoDetectUTF16BE(t *testing.T) {
	data := []byte{0xFE, 0xFF, 0x00, 'a', 0x00, 'b'}
	d := NewDecoder("test", data, AutoDetect, diag.NewSink(nil))
	if d.Mode() != UTF16BE {
		t.Fatalf("expected UTF16BE, got %v", d.Mode())
	}
	r1, s1, e1, ok := d.Next()
	if !ok || r1 != 'a' || s1 != 2 || e1 != 3 {
		t.Fatalf("unexpected first rune: %v %d %d %v", r1, s1, e1, ok)
	}
}

func TestAutoDetectUTF16LE(t *testing.T) {
	data := []byte{0xFF, 0xFE, 'a', 0x00, 'b', 0x00}
	d := NewDecoder("test", data, AutoDetect, diag.NewSink(nil))
	if d.Mode() != UTF16LE {
		t.Fatalf("expected UTF16LE, got %v", d.Mode())
	}
	r1, _, _, ok := d.Next()
	if !ok || r1 != 'a' {
		t.Fatalf("unexpected first rune: %v %v", r1, ok)
	}
}

func TestUTF16OddTrailingByteWarnsNotFatal(t *testing.T) {
	sink := diag.NewSink(nil)
	data := []byte{0x00, 'a', 0x00} // BE, one full unit then a dangling byte
	d := NewDecoder("test", data, UTF16BE, sink)
	r1, _, _, ok := d.Next()
	if !ok || r1 != 'a' {
		t.Fatalf("first unit: %v %v", r1, ok)
	}
	r2, _, _, ok := d.Next()
	if !ok || r2 != ReplacementRune {
		t.Fatalf("expected replacement rune for dangling byte, got %v %v", r2, ok)
	}
	if sink.EncodingWarnings() != 1 {
		t.Fatalf("expected 1 encoding warning, got %d", sink.EncodingWarnings())
	}
	// Decoder must not abort: Next() returns false cleanly at true EOF.
	if _, _, _, ok := d.Next(); ok {
		t.Fatalf("expected EOF after dangling byte consumed")
	}
}

func TestInvalidUTF8WarnsAndSubstitutes(t *testing.T) {
	sink := diag.NewSink(nil)
	data := []byte{'a', 0xFF, 'b'}
	d := NewDecoder("test", data, UTF8, sink)
	var got []rune
	for {
		r, _, _, ok := d.Next()
		if !ok {
			break
		}
		got = append(got, r)
	}
	if len(got) != 3 || got[1] != ReplacementRune {
		t.Fatalf("got %v", got)
	}
	if sink.EncodingWarnings() == 0 {
		t.Fatalf("expected encoding warning for invalid UTF-8 byte")
	}
}
