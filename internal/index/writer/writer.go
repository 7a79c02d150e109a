// Package writer implements the index writer: a hash-buffered postings
// spool with memory-load overflow and a final merge into the bit-exact
// on-disk index layout. The pipeline is scan -> per-term delta-encoded
// buffer -> spool overflow to a memory-load temp file -> final
// merge-sort + LCP dictionary compression.
package writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/index/spool"
	"github.com/standardbeagle/sgrep/internal/index/varint"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/version"
)

// Magic is the fixed index-file signature.
const Magic = version.IndexMagic

const (
	headerSize      = 512
	fieldsBlockSize = 1024 // header text (512) + fixed fields block (512)
	termArrayOffset = fieldsBlockSize
)

// Config tunes one Writer's resource limits and stop-word handling.
type Config struct {
	// MemoryBudgetBytes is the buffered-postings threshold above which the
	// writer spills the current hash table to a memory-load temp file.
	// Zero means "never spill" (suitable for small in-process test
	// corpora).
	MemoryBudgetBytes int64
	// TempDir is where memory-load spill files are created; "" uses
	// os.TempDir().
	TempDir string
	// StopWords marks dictionary keys (the scanner/indexer's
	// prefix+term alphabet) to keep in the dictionary with zero
	// postings.
	StopWords map[string]bool
	// HashSize pre-sizes the term table for an expected dictionary size.
	// Zero lets the table grow from empty.
	HashSize int
}

// spillChunk records one already-persisted slice of a term's postings
// bytes inside a memory-load temp file.
type spillChunk struct {
	path   string
	offset int64
	length int64
}

// termState is one per-term posting buffer:
// a single struct whose `buf` is the "inline" variant and `spills` is the
// "chained external" variant, both readable through the same byte-stream
// accumulation during Finalize rather than two separate consumer
// interfaces — spool.Pool plays the role of the shared block spool.
type termState struct {
	buf        []byte
	spills     []spillChunk
	hasPosting bool
	lastStart  int64
	lastLen    int64
	totalBytes int64
	stopWord   bool
}

// Writer accumulates postings for an in-progress index build.
type Writer struct {
	cfg           Config
	pool          *spool.Pool
	terms         map[string]*termState
	bufferedBytes int64
	tempFiles     []string
	aborted       bool
}

// New returns a Writer ready to accept AddPosting calls.
func New(cfg Config) *Writer {
	return &Writer{cfg: cfg, pool: spool.New(), terms: make(map[string]*termState, cfg.HashSize)}
}

func (w *Writer) stateFor(key string) *termState {
	ts, ok := w.terms[key]
	if !ok {
		ts = &termState{buf: w.pool.Get(), stopWord: w.cfg.StopWords[key]}
		w.terms[key] = ts
	}
	return ts
}

// AddPosting records one (term key, region) occurrence emitted by the
// scanner. Postings for a given key usually arrive in nondecreasing start
// order; an out-of-order start is accepted and stored in the explicit
// signed-delta form described below.
//
// Wire format per term: each posting is a "control" varint followed
// conditionally by more fields.
//   - control == 0: an explicit record follows — varint(deltaStart),
//     varint(length) — used for the very first posting (delta from 0)
//     and any time the length changes from the previous posting.
//   - control == deltaStart+1 (always >= 1): an implicit record — same
//     length as the previous posting, only the start delta is stored.
//     Encoding deltaStart as deltaStart+1 is the "escaped tag" that keeps
//     a genuine zero-delta (two postings with an identical start) from
//     colliding with the control==0 explicit-record marker.
//
// Most term families arrive in nondecreasing start order, but full-element
// postings arrive in end-tag order, so a nested element's successor can
// start earlier than it. A negative delta always takes the explicit form
// (the implicit control encoding can't express it), relying on the varint
// codec's signed representation.
func (w *Writer) AddPosting(key string, start, end region.Offset) error {
	if w.aborted {
		return errkinds.NewLogicInvariantError("writer: AddPosting called after Abort")
	}
	ts := w.stateFor(key)
	if ts.stopWord {
		return nil
	}
	length := int64(end) - int64(start) + 1
	if length <= 0 {
		return errkinds.NewLogicInvariantError(fmt.Sprintf("writer: non-positive region length for %q", key))
	}
	before := len(ts.buf)
	if !ts.hasPosting {
		ts.buf = varint.Append(ts.buf, 0)
		ts.buf = varint.Append(ts.buf, int64(start))
		ts.buf = varint.Append(ts.buf, length)
		ts.hasPosting = true
	} else {
		delta := int64(start) - ts.lastStart
		if length == ts.lastLen && delta >= 0 {
			ts.buf = varint.Append(ts.buf, delta+1)
		} else {
			ts.buf = varint.Append(ts.buf, 0)
			ts.buf = varint.Append(ts.buf, delta)
			ts.buf = varint.Append(ts.buf, length)
		}
	}
	ts.lastStart = int64(start)
	ts.lastLen = length
	added := int64(len(ts.buf) - before)
	ts.totalBytes += added
	w.bufferedBytes += added

	if w.cfg.MemoryBudgetBytes > 0 && w.bufferedBytes > w.cfg.MemoryBudgetBytes {
		if err := w.flush(); err != nil {
			return err
		}
	}
	return nil
}

// flush sorts the current hash table by term key and appends a
// (term,length,bytes) triple per buffered term to a fresh memory-load
// temp file, then empties every in-memory buffer.
// Per-term delta-encoding state (lastStart/lastLen) is retained so a
// later AddPosting continues the same compression state uninterrupted.
func (w *Writer) flush() error {
	keys := make([]string, 0, len(w.terms))
	for k, ts := range w.terms {
		if len(ts.buf) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	f, err := os.CreateTemp(w.cfg.TempDir, "sgrep-memload-*")
	if err != nil {
		return errkinds.NewResourceExhaustedError("temp file", err.Error())
	}
	w.tempFiles = append(w.tempFiles, f.Name())
	bw := bufio.NewWriter(f)
	var offset int64
	for _, k := range keys {
		ts := w.terms[k]
		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(k)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return w.rollbackOnIOError(f, err)
		}
		if _, err := bw.WriteString(k); err != nil {
			return w.rollbackOnIOError(f, err)
		}
		binary.BigEndian.PutUint32(hdr[:], uint32(len(ts.buf)))
		if _, err := bw.Write(hdr[:]); err != nil {
			return w.rollbackOnIOError(f, err)
		}
		if _, err := bw.Write(ts.buf); err != nil {
			return w.rollbackOnIOError(f, err)
		}
		chunkOffset := offset + 4 + int64(len(k)) + 4
		ts.spills = append(ts.spills, spillChunk{path: f.Name(), offset: chunkOffset, length: int64(len(ts.buf))})
		offset = chunkOffset + int64(len(ts.buf))

		w.pool.Put(ts.buf)
		ts.buf = w.pool.Get()
	}
	if err := bw.Flush(); err != nil {
		return w.rollbackOnIOError(f, err)
	}
	if err := f.Close(); err != nil {
		return w.rollbackOnIOError(nil, err)
	}
	w.bufferedBytes = 0
	return nil
}

func (w *Writer) rollbackOnIOError(f *os.File, err error) error {
	if f != nil {
		f.Close()
	}
	w.Abort()
	return errkinds.NewIOError("write", "memory-load temp file", err)
}

// Abort deletes every memory-load temp file created so far. Safe to call more than once.
func (w *Writer) Abort() {
	for _, p := range w.tempFiles {
		os.Remove(p)
	}
	w.tempFiles = nil
	w.aborted = true
}

// OversizedTerms reports dictionary keys whose postings exceed
// thresholdPercent of totalIndexBytes.
func (w *Writer) OversizedTerms(totalIndexBytes int64, thresholdPercent float64) []string {
	if totalIndexBytes <= 0 || thresholdPercent <= 0 {
		return nil
	}
	limit := float64(totalIndexBytes) * thresholdPercent / 100.0
	var out []string
	for k, ts := range w.terms {
		if float64(ts.totalBytes) > limit {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Finalize merges every buffered/spilled term's postings, sorts the
// dictionary, computes per-term LCP against its lexicographic
// predecessor, and writes the complete index file at path. On any I/O error the partial output
// file and every temp file are removed before the error is returned.
func (w *Writer) Finalize(path string, files *region.FileList) (err error) {
	keys := make([]string, 0, len(w.terms))
	for k := range w.terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out, ferr := os.Create(path)
	if ferr != nil {
		return errkinds.NewIOError("create", path, ferr)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(path)
			w.Abort()
		} else {
			w.Abort() // spill temps are no longer needed once merged
		}
	}()

	// Assemble the strings-and-postings section in memory first so term
	// array byte offsets (relative to the start of this section) are
	// known before anything is written to disk.
	var strings []byte
	offsets := make([]uint32, len(keys))
	prev := ""
	for i, k := range keys {
		offsets[i] = uint32(len(strings))
		lcp := commonPrefixLen(prev, k)
		if lcp > 255 {
			lcp = 255
		}
		strings = append(strings, byte(lcp))
		strings = append(strings, k[lcp:]...)
		strings = append(strings, 0x00)

		postings, merr := w.mergePostings(w.terms[k])
		if merr != nil {
			return merr
		}
		strings = append(strings, postings...)
		strings = append(strings, varint.EoPTag)
		prev = k
	}

	var fileListBuf []byte
	if files != nil && len(files.Files()) > 0 {
		fileListBuf = encodeFileList(files)
	}

	nTerms := uint32(len(keys))
	stringsOffset := uint32(termArrayOffset) + 4*nTerms
	filelistOffset := uint32(0)
	if len(fileListBuf) > 0 {
		filelistOffset = stringsOffset + uint32(len(strings))
	}

	bw := bufio.NewWriter(out)
	if werr := writeHeader(bw, nTerms, uint32(termArrayOffset), stringsOffset, filelistOffset); werr != nil {
		return errkinds.NewIOError("write", path, werr)
	}
	for _, off := range offsets {
		if werr := binary.Write(bw, binary.BigEndian, off); werr != nil {
			return errkinds.NewIOError("write", path, werr)
		}
	}
	if _, werr := bw.Write(strings); werr != nil {
		return errkinds.NewIOError("write", path, werr)
	}
	if _, werr := bw.Write(fileListBuf); werr != nil {
		return errkinds.NewIOError("write", path, werr)
	}
	if werr := bw.Flush(); werr != nil {
		return errkinds.NewIOError("write", path, werr)
	}
	return nil
}

// mergePostings concatenates a term's persisted spill chunks (in the
// order they were flushed) followed by its remaining in-memory tail.
func (w *Writer) mergePostings(ts *termState) ([]byte, error) {
	if ts == nil {
		return nil, nil
	}
	var out []byte
	for _, ch := range ts.spills {
		f, err := os.Open(ch.path)
		if err != nil {
			return nil, errkinds.NewIOError("open", ch.path, err)
		}
		buf := make([]byte, ch.length)
		_, err = f.ReadAt(buf, ch.offset)
		f.Close()
		if err != nil {
			return nil, errkinds.NewIOError("read", ch.path, err)
		}
		out = append(out, buf...)
	}
	out = append(out, ts.buf...)
	return out, nil
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func writeHeader(w *bufio.Writer, nTerms, termArrayOff, stringsOff, filelistOff uint32) error {
	var header [headerSize]byte
	copy(header[:], Magic+"\n\n")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	var fields [headerSize]byte
	binary.BigEndian.PutUint32(fields[0:4], nTerms)
	binary.BigEndian.PutUint32(fields[4:8], termArrayOff)
	binary.BigEndian.PutUint32(fields[8:12], stringsOff)
	binary.BigEndian.PutUint32(fields[12:16], filelistOff)
	_, err := w.Write(fields[:])
	return err
}

func encodeFileList(files *region.FileList) []byte {
	fs := files.Files()
	var buf []byte
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(fs)))
	buf = append(buf, n[:]...)
	for _, f := range fs {
		binary.BigEndian.PutUint32(n[:], uint32(len(f.Name)))
		buf = append(buf, n[:]...)
		buf = append(buf, f.Name...)
		buf = append(buf, 0x00)
		binary.BigEndian.PutUint32(n[:], uint32(f.Length))
		buf = append(buf, n[:]...)
	}
	return buf
}
