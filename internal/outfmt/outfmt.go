// Package outfmt implements the output templating: the
// `%f %s %e %i %j %l %n %r %%` / `\n \t \\ \" \r \f \b` formatter that
// turns the engine's result iterator into text. Nothing here is
// reachable from the region-algebra evaluator, only from `cmd/sgrep`.
//
// `-O <stylefile>` loads a TOML style file via
// `github.com/pelletier/go-toml/v2`; `-o <style>` takes a bare template
// string with no named-field structure to parse.
package outfmt

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/region"
)

// Style is one named output style: a template string plus a couple of
// booleans tracked outside the template itself.
type Style struct {
	Template string `toml:"template"`
	// ImplicitNewline emits a trailing newline once, after the whole
	// result, iff the last character actually written was not already
	// '\n'.
	ImplicitNewline bool `toml:"implicit_newline"`
	// NULSeparated terminates every region's output with a NUL byte
	// instead of relying on the template to add its own separator,
	// for consumption by tools that split on NUL (e.g. `xargs -0`).
	NULSeparated bool `toml:"nul_separated"`
}

// LongStyle and ShortStyle are `-l`/`-s`'s built-in presets.
var (
	LongStyle = Style{
		Template:        `------------- #%n %f: %l (%s,%e : %i,%j)\n%r\n`,
		ImplicitNewline: true,
	}
	ShortStyle = Style{
		Template:        `%r`,
		ImplicitNewline: true,
	}
)

// NamedStyle resolves `-o <style>` to a built-in Style.
func NamedStyle(name string) (Style, bool) {
	switch name {
	case "long":
		return LongStyle, true
	case "short":
		return ShortStyle, true
	default:
		return Style{}, false
	}
}

// LoadStyleFile loads `-O <stylefile>`'s TOML-encoded style.
func LoadStyleFile(path string) (Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Style{}, errkinds.NewIOError("read", path, err)
	}
	var s Style
	if err := toml.Unmarshal(data, &s); err != nil {
		return Style{}, errkinds.NewConfigError("style file", path, err)
	}
	return s, nil
}

// Result is one entry of the engine's result iterator: a region plus its
// already-extracted bytes. The evaluator, not outfmt, owns reading region
// bytes back out of the scanned/indexed corpus.
type Result struct {
	Region region.Region
	Bytes  []byte
}

// ResultSource is the engine-exposed enumerator outfmt consumes:
// one (region, region-bytes) row at a time, as a
// pull-style Next so outfmt never needs the whole result set materialized
// at once.
type ResultSource interface {
	Next() (Result, bool, error)
}

// sliceSource adapts a pre-materialized []Result to ResultSource, for
// callers (and tests) that already have the full result set in hand.
type sliceSource struct {
	results []Result
	i       int
}

// NewSliceSource wraps a materialized result slice as a ResultSource.
func NewSliceSource(results []Result) ResultSource { return &sliceSource{results: results} }

func (s *sliceSource) Next() (Result, bool, error) {
	if s.i >= len(s.results) {
		return Result{}, false, nil
	}
	r := s.results[s.i]
	s.i++
	return r, true, nil
}

// tracker wraps a bufio.Writer so Write (below) can learn the last byte
// actually emitted across the whole run.
type tracker struct {
	w    *bufio.Writer
	last byte
}

func (t *tracker) WriteByte(b byte) error {
	t.last = b
	return t.w.WriteByte(b)
}

func (t *tracker) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.last = p[len(p)-1]
	}
	return t.w.Write(p)
}

// Write renders every result from src into w per style, numbering
// regions from 1.
func Write(w io.Writer, style Style, files *region.FileList, src ResultSource) error {
	t := &tracker{w: bufio.NewWriter(w)}
	n := 1
	for {
		res, ok, err := src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := writeOne(t, style, files, res, n); err != nil {
			return errkinds.NewIOError("write", "<output>", err)
		}
		if style.NULSeparated {
			if err := t.WriteByte(0); err != nil {
				return errkinds.NewIOError("write", "<output>", err)
			}
		}
		n++
	}
	if style.ImplicitNewline && t.last != '\n' {
		if err := t.WriteByte('\n'); err != nil {
			return errkinds.NewIOError("write", "<output>", err)
		}
	}
	return t.w.Flush()
}

// writeOne expands one result's template onto t.
func writeOne(t *tracker, style Style, files *region.FileList, res Result, n int) error {
	tmpl := style.Template
	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		if (ch == '%' || ch == '\\') && i+1 < len(tmpl) {
			i++
			next := tmpl[i]
			var err error
			if ch == '%' {
				err = expand(t, files, res, n, next)
			} else {
				err = escape(t, next)
			}
			if err != nil {
				return err
			}
			continue
		}
		if err := t.WriteByte(ch); err != nil {
			return err
		}
	}
	return nil
}

// expand handles the `%` command dispatch for one result row.
func expand(t *tracker, files *region.FileList, res Result, n int, ch byte) error {
	r := res.Region
	switch ch {
	case 'f':
		if files == nil {
			_, err := io.WriteString(t, "<stdin>")
			return err
		}
		f, _, ok := files.Lookup(r.Start)
		if !ok {
			_, err := io.WriteString(t, "<input exceeded>")
			return err
		}
		_, err := io.WriteString(t, f.Name)
		return err
	case 's':
		_, err := io.WriteString(t, fmt.Sprintf("%d", r.Start))
		return err
	case 'e':
		_, err := io.WriteString(t, fmt.Sprintf("%d", r.End))
		return err
	case 'l':
		_, err := io.WriteString(t, fmt.Sprintf("%d", r.Len()))
		return err
	case 'i':
		local := r.Start
		if files != nil {
			if _, l, ok := files.Lookup(r.Start); ok {
				local = l
			}
		}
		_, err := io.WriteString(t, fmt.Sprintf("%d", local))
		return err
	case 'j':
		local := r.End
		if files != nil {
			if _, l, ok := files.Lookup(r.End); ok {
				local = l
			}
		}
		_, err := io.WriteString(t, fmt.Sprintf("%d", local))
		return err
	case 'r':
		_, err := t.Write(res.Bytes)
		return err
	case 'n':
		_, err := io.WriteString(t, fmt.Sprintf("%d", n))
		return err
	case '%':
		return t.WriteByte('%')
	default:
		if err := t.WriteByte('%'); err != nil {
			return err
		}
		return t.WriteByte(ch)
	}
}

// escape handles the `\` command dispatch.
func escape(t *tracker, ch byte) error {
	switch ch {
	case 'n':
		return t.WriteByte('\n')
	case 't':
		return t.WriteByte('\t')
	case '\\':
		return t.WriteByte('\\')
	case '"':
		return t.WriteByte('"')
	case 'r':
		return t.WriteByte('\r')
	case 'f':
		return t.WriteByte('\f')
	case 'b':
		return t.WriteByte('\b')
	case '%':
		return t.WriteByte('%')
	default:
		return t.WriteByte(ch)
	}
}
