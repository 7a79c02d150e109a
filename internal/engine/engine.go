// Package engine is the facade over the whole pipeline: it owns every
// piece of per-query mutable state (the FileList, the diagnostics sink,
// open index/mmap handles) as fields on one constructed value, with no
// package-level mutable state anywhere under internal/. It wires
// internal/query/parser, internal/query/optimizer, internal/phrasedriver
// or internal/index/reader, and internal/evaluator into the two
// operations cmd/sgrep drives: Query (query mode) and BuildIndex (index
// mode).
// The shape is compile once, resolve leaves, evaluate, release;
// statistics and open handles are bound to the instance so two engines
// in one process never interfere.
package engine

import (
	"os"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/sgrep/internal/config"
	"github.com/standardbeagle/sgrep/internal/diag"
	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/evaluator"
	"github.com/standardbeagle/sgrep/internal/index/reader"
	"github.com/standardbeagle/sgrep/internal/index/writer"
	"github.com/standardbeagle/sgrep/internal/phrasedriver"
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/query/optimizer"
	"github.com/standardbeagle/sgrep/internal/query/parser"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/regionlist"
	"github.com/standardbeagle/sgrep/internal/sgmlscan"
)

// Engine is one query or index-build session. It is not safe for
// concurrent use by multiple goroutines; independent Engines may run in
// parallel goroutines with no shared state.
type Engine struct {
	opts  config.Options
	files *region.FileList

	sink     *diag.Sink
	progress diag.ProgressFunc

	openIndexes []*reader.Index
	closed      bool

	fileCache map[string][]byte
}

// New constructs an Engine for opts. The returned Engine owns no files or
// index handles yet; callers add files with AddFiles and/or an index with
// opts.IndexFile before calling Query.
func New(opts config.Options) *Engine {
	return &Engine{
		opts:     opts,
		files:    region.NewFileList(),
		sink:     diag.NewSink(os.Stderr),
		progress: diag.NoProgress,
	}
}

// SetErrorWriter redirects diagnostic output; nil discards it.
func (e *Engine) SetErrorWriter(w *os.File) {
	if w == nil {
		e.sink.SetWriter(nil)
		return
	}
	e.sink.SetWriter(w)
}

// SetProgress installs the `-v` progress callback.
func (e *Engine) SetProgress(fn diag.ProgressFunc) {
	if fn == nil {
		fn = diag.NoProgress
	}
	e.progress = fn
}

// Sink exposes the engine's diagnostics sink so a caller can report
// parse/lex errors through the same counters `-T` later reads.
func (e *Engine) Sink() *diag.Sink { return e.sink }

// AddFiles stats and registers each path, in order, as part of the
// concatenated input corpus. Glob expansion and `-F` listfile reading are
// cmd/sgrep's job; by the time a
// path reaches here it names one concrete file.
func (e *Engine) AddFiles(paths []string) error {
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return errkinds.NewIOError("stat", p, err)
		}
		if fi.Size() == 0 {
			continue // region.FileList rejects zero-length files outright
		}
		if err := e.files.Add(p, region.Offset(fi.Size())); err != nil {
			return errkinds.NewResourceExhaustedError("input size", err.Error())
		}
	}
	return nil
}

// Files returns the engine's FileList (for outfmt's %f/%i/%j resolution).
func (e *Engine) Files() *region.FileList { return e.files }

func (e *Engine) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errkinds.NewIOError("read", name, err)
	}
	return data, nil
}

// fileBytes returns (and caches) the full contents of a registered file.
func (e *Engine) fileBytes(name string) ([]byte, error) {
	if e.fileCache == nil {
		e.fileCache = make(map[string][]byte)
	}
	if data, ok := e.fileCache[name]; ok {
		return data, nil
	}
	data, err := e.readFile(name)
	if err != nil {
		return nil, err
	}
	e.fileCache[name] = data
	return data, nil
}

// ReadRegion returns the raw bytes r denotes, for the output formatter's
// `%r` placeholder. r is assumed to lie within a single registered file.
func (e *Engine) ReadRegion(r region.Region) ([]byte, error) {
	f, local, ok := e.files.Lookup(r.Start)
	if !ok {
		return nil, errkinds.NewLogicInvariantError("ReadRegion: offset out of range")
	}
	data, err := e.fileBytes(f.Name)
	if err != nil {
		return nil, err
	}
	end := local + r.Len()
	if end > region.Offset(len(data)) {
		end = region.Offset(len(data))
	}
	out := make([]byte, end-local)
	copy(out, data[local:end])
	return out, nil
}

// scanConfig derives the SGML/XML/plain-text scanner configuration from
// opts.ScannerOpt (`-g`, a comma-separated option list) and
// opts.WordChars (`-w`). An empty ScannerOpt keeps the SGML default.
func (e *Engine) scanConfig() sgmlscan.Config {
	mode := sgmlscan.ModeSGML
	includeSys := false
	for _, opt := range strings.Split(e.opts.ScannerOpt, ",") {
		switch strings.TrimSpace(opt) {
		case "xml":
			mode = sgmlscan.ModeXML
		case "sgml":
			mode = sgmlscan.ModeSGML
		case "text", "plain":
			mode = sgmlscan.ModePlainText
		case "include_system_entities":
			includeSys = true
		}
	}
	cfg := sgmlscan.DefaultConfig(mode)
	cfg.IgnoreCase = e.opts.IgnoreCase
	cfg.IncludeSystemEntities = includeSys
	if e.opts.WordChars != "" {
		cfg.WordChars = charsetBitset(e.opts.WordChars)
	}
	return cfg
}

// Compile parses and optimizes exprText into an evaluation-ready tree,
// without resolving any leaf.
func (e *Engine) Compile(file, exprText string) (*ast.Node, error) {
	tree, err := parser.Parse(file, exprText)
	if err != nil {
		e.sink.CountParseError()
		return nil, err
	}
	tree = optimizer.Optimize(tree)
	optimizer.AssignRefcounts(tree)
	return tree, nil
}

// Query compiles exprText, resolves every leaf (via opts.IndexFile's
// on-disk dictionary when set, or by scanning e.files otherwise), and
// evaluates the compiled tree, returning the final result RegionList.
func (e *Engine) Query(file, exprText string) (*ast.Node, *regionlist.RegionList, error) {
	tree, err := e.Compile(file, exprText)
	if err != nil {
		return nil, nil, err
	}

	var idx evaluator.IndexReader
	if e.opts.IndexFile != "" {
		r, err := reader.Open(e.opts.IndexFile)
		if err != nil {
			return nil, nil, err
		}
		e.openIndexes = append(e.openIndexes, r)
		idx = r
		// -x implies -S: when no files are registered, the index's own
		// embedded file list is used; files already registered are kept.
		if len(e.files.Files()) == 0 {
			for _, f := range r.Files() {
				if err := e.files.Add(f.Name, f.Length); err != nil {
					return nil, nil, err
				}
			}
		}
	} else {
		filesDone := 0
		var bytesDone int64
		read := func(name string) ([]byte, error) {
			data, err := e.readFile(name)
			if err == nil {
				filesDone++
				bytesDone += int64(len(data))
				e.progress(filesDone, len(e.files.Files()), bytesDone, int64(e.files.TotalBytes()))
			}
			return data, err
		}
		if err := phrasedriver.Run(tree, e.files, read, e.scanConfig(), e.sink); err != nil {
			return nil, nil, err
		}
	}

	rl, err := evaluator.New(e.files, idx).Eval(tree)
	if err != nil {
		return nil, nil, err
	}
	return tree, rl, nil
}

// BuildIndex scans every registered file with the SGML/XML/plain-text
// scanner configured to emit every indexable term family and writes the resulting dictionary+postings to path. When
// stopWordPercent > 0, it also returns the dictionary keys whose postings
// exceed that fraction of the final index's byte size.
func (e *Engine) BuildIndex(path string, memoryBudgetBytes int64, stopWords map[string]bool, stopWordPercent float64) ([]string, error) {
	w := writer.New(writer.Config{
		MemoryBudgetBytes: memoryBudgetBytes,
		TempDir:           os.TempDir(),
		StopWords:         stopWords,
		HashSize:          e.opts.HashSize,
	})

	cfg := e.scanConfig()
	scanner := sgmlscan.New(cfg)

	// Read-ahead: fetch the next file's bytes while the scanner chews on
	// the current one. Scanning itself stays on this goroutine.
	load := func(path string) func() ([]byte, error) {
		var data []byte
		g := new(errgroup.Group)
		g.Go(func() error {
			var err error
			data, err = e.readFile(path)
			return err
		})
		return func() ([]byte, error) { return data, g.Wait() }
	}

	var pending func() ([]byte, error)
	if len(e.files.Files()) > 0 {
		pending = load(e.files.Files()[0].Name)
	}
	for i := 0; i < len(e.files.Files()); i++ {
		f := e.files.Files()[i]
		data, err := pending()
		if err != nil {
			w.Abort()
			return nil, err
		}
		sysids := scanner.Scan(f.Name, data, f.Start, e.sink, func(prefix, term string, start, end region.Offset) {
			if addErr := w.AddPosting(prefix+term, start, end); addErr != nil {
				e.sink.Errorf("indexing %s: %v", f.Name, addErr)
			}
		})
		// Resolved SYSTEM ids join the corpus and are scanned in turn.
		for _, sid := range sysids {
			if e.files.IndexOf(sid) >= 0 {
				continue
			}
			fi, serr := os.Stat(sid)
			if serr != nil || fi.Size() == 0 {
				e.sink.Errorf("system entity %s: cannot include: %v", sid, serr)
				continue
			}
			if aerr := e.files.Add(sid, region.Offset(fi.Size())); aerr != nil {
				e.sink.Errorf("system entity %s: %v", sid, aerr)
			}
		}
		e.progress(i+1, len(e.files.Files()), int64(f.Start+f.Length), int64(e.files.TotalBytes()))
		if i+1 < len(e.files.Files()) {
			pending = load(e.files.Files()[i+1].Name)
		}
	}

	if err := w.Finalize(path, e.files); err != nil {
		return nil, err
	}

	if stopWordPercent <= 0 {
		return nil, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return w.OversizedTerms(fi.Size(), stopWordPercent), nil
}

// Close releases every mmap/file handle this Engine opened. Idempotent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	var first error
	for _, idx := range e.openIndexes {
		if err := idx.Close(); err != nil && first == nil {
			first = err
		}
	}
	e.openIndexes = nil
	return first
}

// charsetBitset builds a word-character bitmap from a `-w <charlist>`
// literal character list, overriding the scanner's default word-char
// class.
func charsetBitset(charlist string) *bitset.BitSet {
	b := bitset.New(0x10000)
	for _, r := range charlist {
		if r >= 0 && r <= 0xFFFF {
			b.Set(uint(r))
		}
	}
	return b
}
