package lexer

import (
	"testing"

	"github.com/standardbeagle/sgrep/internal/query/token"
)

func tokens(t *testing.T, input string) []token.Token {
	t.Helper()
	l := New("test", input)
	var out []token.Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	if len(l.Errors()) != 0 {
		t.Fatalf("unexpected lex errors: %v", l.Errors())
	}
	return out
}

func types(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tk := range toks {
		out[i] = tk.Type
	}
	return out
}

func TestBasicTokens(t *testing.T) {
	toks := tokens(t, `stag("a") .. etag("a")`)
	want := []token.Type{token.IDENT, token.LPAREN, token.STRING, token.RPAREN, token.DOTDOT, token.IDENT, token.LPAREN, token.STRING, token.RPAREN, token.EOF}
	got := types(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestUnderscoreOperators(t *testing.T) {
	toks := tokens(t, `a _. b __ c ._ d`)
	var ops []token.Type
	for _, tk := range toks {
		if tk.Type == token.UNDERDOT || tk.Type == token.UNDERUNDER || tk.Type == token.DOTUNDER {
			ops = append(ops, tk.Type)
		}
	}
	want := []token.Type{token.UNDERDOT, token.UNDERUNDER, token.DOTUNDER}
	if len(ops) != len(want) {
		t.Fatalf("got %v want %v", ops, want)
	}
}

func TestIdentifierLikeOperatorWords(t *testing.T) {
	toks := tokens(t, `_quote quote_ _quote_ near_before`)
	for _, tk := range toks {
		if tk.Type != token.IDENT && tk.Type != token.EOF {
			t.Fatalf("expected IDENT, got %v (%q)", tk.Type, tk.Literal)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	toks := tokens(t, `"a\nb\tc\\d\"e"`)
	if toks[0].Type != token.STRING {
		t.Fatalf("expected STRING, got %v", toks[0].Type)
	}
	want := "a\nb\tc\\d\"e"
	if toks[0].Literal != want {
		t.Fatalf("got %q want %q", toks[0].Literal, want)
	}
}

func TestNumericCharRef(t *testing.T) {
	toks := tokens(t, `"\#x41;\#65;"`)
	if toks[0].Literal != "AA" {
		t.Fatalf("got %q want %q", toks[0].Literal, "AA")
	}
}

func TestLineDirectiveIsTransparent(t *testing.T) {
	l := New("orig.sg", "a\n#line 10 \"included.sg\"\nb")
	tok1 := l.NextToken()
	if tok1.Literal != "a" {
		t.Fatalf("expected 'a', got %q", tok1.Literal)
	}
	tok2 := l.NextToken()
	if tok2.Literal != "b" {
		t.Fatalf("expected 'b' (directive should be invisible), got %q", tok2.Literal)
	}
	file, line, _ := l.Position()
	if file != "included.sg" {
		t.Fatalf("expected file retargeted to included.sg, got %s", file)
	}
	if line != 10 {
		t.Fatalf("expected line 10, got %d", line)
	}
}

func TestIntegerAndBrackets(t *testing.T) {
	toks := tokens(t, `[1, 2, 3]`)
	want := []token.Type{token.LBRACKET, token.INTEGER, token.COMMA, token.INTEGER, token.COMMA, token.INTEGER, token.RBRACKET, token.EOF}
	got := types(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUnterminatedStringIsLexError(t *testing.T) {
	l := New("test", `"abc`)
	l.NextToken()
	if len(l.Errors()) == 0 {
		t.Fatal("expected a lex error for unterminated string")
	}
}
