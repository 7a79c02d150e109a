// Package reader implements the index reader: mmap-backed lookup with
// binary search over a prefix-compressed term dictionary and a
// sorted-merge read for range/prefix queries. One
// `golang.org/x/exp/mmap.ReaderAt` is held for the lifetime of the
// reader value and released by an explicit, idempotent Close.
package reader

import (
	"container/heap"
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/mmap"

	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/index/varint"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/regionlist"
	"github.com/standardbeagle/sgrep/internal/version"
)

// Index is one opened, mmap-backed on-disk index. It implements evaluator.IndexReader.
type Index struct {
	path string
	r    *mmap.ReaderAt

	nTerms       int
	termArrayOff uint32
	stringsOff   uint32
	filelistOff  uint32

	mu         sync.Mutex
	termCache  map[int]string
	postOffset map[int]int64

	files []region.File
}

// Open validates and mmaps the index file at path.
func Open(path string) (*Index, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errkinds.NewIOError("mmap", path, err)
	}
	idx := &Index{path: path, r: r, termCache: map[int]string{}, postOffset: map[int]int64{}}

	magic := make([]byte, len(version.IndexMagic))
	if _, err := r.ReadAt(magic, 0); err != nil || string(magic) != version.IndexMagic {
		r.Close()
		return nil, errkinds.NewIndexCorruptionError(path, "bad magic")
	}

	nTerms, err := idx.readU32(512)
	if err != nil {
		r.Close()
		return nil, err
	}
	termArrayOff, err := idx.readU32(516)
	if err != nil {
		r.Close()
		return nil, err
	}
	stringsOff, err := idx.readU32(520)
	if err != nil {
		r.Close()
		return nil, err
	}
	filelistOff, err := idx.readU32(524)
	if err != nil {
		r.Close()
		return nil, err
	}
	if termArrayOff != 1024 || stringsOff < termArrayOff {
		r.Close()
		return nil, errkinds.NewIndexCorruptionError(path, "bad section offsets")
	}
	idx.nTerms = int(nTerms)
	idx.termArrayOff = termArrayOff
	idx.stringsOff = stringsOff
	idx.filelistOff = filelistOff

	if filelistOff != 0 {
		files, err := idx.readFileList(int64(filelistOff))
		if err != nil {
			r.Close()
			return nil, err
		}
		idx.files = files
	}
	return idx, nil
}

// Close unmaps the index file. Idempotent.
func (idx *Index) Close() error {
	if idx.r == nil {
		return nil
	}
	err := idx.r.Close()
	idx.r = nil
	return err
}

// Files returns the file-list section, if the index was built with one.
func (idx *Index) Files() []region.File { return idx.files }

// NTerms returns the number of terms in the dictionary.
func (idx *Index) NTerms() int { return idx.nTerms }

// TermAt returns the i'th dictionary term in sort order, for dictionary
// dump/iteration callers (e.g. `-q terms first [last]`).
func (idx *Index) TermAt(i int) (string, error) {
	t, _, err := idx.termRecord(i)
	return t, err
}

// DumpTerms returns every dictionary term t with first <= t and, if last
// is non-empty, t <= last. An empty last means "through the end of the
// dictionary".
func (idx *Index) DumpTerms(first, last string) ([]string, error) {
	lo := sort.Search(idx.nTerms, func(i int) bool { return idx.cmp(i, first) >= 0 })
	var out []string
	for i := lo; i < idx.nTerms; i++ {
		t, err := idx.TermAt(i)
		if err != nil {
			return nil, err
		}
		if last != "" && t > last {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

func (idx *Index) readU32(off int64) (uint32, error) {
	var b [4]byte
	if _, err := idx.r.ReadAt(b[:], off); err != nil {
		return 0, errkinds.NewIOError("read", idx.path, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (idx *Index) readFileList(off int64) ([]region.File, error) {
	n, err := idx.readU32(off)
	if err != nil {
		return nil, err
	}
	off += 4
	out := make([]region.File, 0, n)
	var start region.Offset
	for i := uint32(0); i < n; i++ {
		nameLen, err := idx.readU32(off)
		if err != nil {
			return nil, err
		}
		off += 4
		nameBuf := make([]byte, nameLen)
		if _, err := idx.r.ReadAt(nameBuf, off); err != nil {
			return nil, errkinds.NewIOError("read", idx.path, err)
		}
		off += int64(nameLen) + 1 // + trailing NUL
		length, err := idx.readU32(off)
		if err != nil {
			return nil, err
		}
		off += 4
		out = append(out, region.File{Name: string(nameBuf), Start: start, Length: region.Offset(length)})
		start += region.Offset(length)
	}
	return out, nil
}

// termArrayEntry returns the strings-section-relative byte offset of
// term i's dictionary record.
func (idx *Index) termArrayEntry(i int) (uint32, error) {
	return idx.readU32(int64(idx.termArrayOff) + 4*int64(i))
}

// termRecord reconstructs term i's full key string from the
// front-coded dictionary: its record stores only an LCP byte against its
// lexicographically preceding term plus its own
// suffix. Reconstruction recurses on the predecessor as needed and is
// memoized so a given index is only decoded once per open Index.
func (idx *Index) termRecord(i int) (term string, postingsOff int64, err error) {
	idx.mu.Lock()
	if t, ok := idx.termCache[i]; ok {
		off := idx.postOffset[i]
		idx.mu.Unlock()
		return t, off, nil
	}
	idx.mu.Unlock()

	rel, err := idx.termArrayEntry(i)
	if err != nil {
		return "", 0, err
	}
	recOff := int64(idx.stringsOff) + int64(rel)
	var lcpByte [1]byte
	if _, err := idx.r.ReadAt(lcpByte[:], recOff); err != nil {
		return "", 0, errkinds.NewIOError("read", idx.path, err)
	}
	lcp := int(lcpByte[0])

	suffix, nulAt, err := idx.readUntilNUL(recOff + 1)
	if err != nil {
		return "", 0, err
	}
	var full string
	if lcp == 0 {
		full = suffix
	} else {
		if i == 0 {
			return "", 0, errkinds.NewIndexCorruptionError(idx.path, "first term has nonzero LCP")
		}
		parent, _, perr := idx.termRecord(i - 1)
		if perr != nil {
			return "", 0, perr
		}
		if lcp > len(parent) {
			return "", 0, errkinds.NewIndexCorruptionError(idx.path, "LCP exceeds predecessor length")
		}
		full = parent[:lcp] + suffix
	}

	idx.mu.Lock()
	idx.termCache[i] = full
	idx.postOffset[i] = nulAt + 1
	idx.mu.Unlock()
	return full, nulAt + 1, nil
}

// readUntilNUL reads bytes starting at off up to (not including) the
// first NUL, returning the string and the absolute offset of the NUL
// byte itself.
func (idx *Index) readUntilNUL(off int64) (string, int64, error) {
	const window = 256
	var buf []byte
	pos := off
	for {
		chunk := make([]byte, window)
		n, err := idx.r.ReadAt(chunk, pos)
		if n == 0 && err != nil {
			return "", 0, errkinds.NewIOError("read", idx.path, err)
		}
		chunk = chunk[:n]
		if j := indexByte(chunk, 0x00); j >= 0 {
			buf = append(buf, chunk[:j]...)
			return string(buf), pos + int64(j), nil
		}
		buf = append(buf, chunk...)
		pos += int64(n)
		if n < window {
			return "", 0, errkinds.NewIndexCorruptionError(idx.path, "unterminated dictionary suffix")
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func (idx *Index) cmp(i int, key string) int {
	t, _, err := idx.termRecord(i)
	if err != nil {
		return 0
	}
	return strings.Compare(t, key)
}

// exactIndex returns the dictionary index of key via binary search, or
// ok=false if absent.
func (idx *Index) exactIndex(key string) (int, bool) {
	i := sort.Search(idx.nTerms, func(i int) bool { return idx.cmp(i, key) >= 0 })
	if i < idx.nTerms && idx.cmp(i, key) == 0 {
		return i, true
	}
	return 0, false
}

// prefixRange returns the half-open [lo,hi) dictionary index range whose
// terms start with prefix.
func (idx *Index) prefixRange(prefix string) (lo, hi int) {
	lo = sort.Search(idx.nTerms, func(i int) bool { return idx.cmp(i, prefix) >= 0 })
	hi = lo
	for hi < idx.nTerms {
		t, _, err := idx.termRecord(hi)
		if err != nil || !strings.HasPrefix(t, prefix) {
			break
		}
		hi++
	}
	return lo, hi
}

// decodePostings reads term i's posting stream and reconstructs the
// absolute regions it encodes.
func (idx *Index) decodePostings(i int) (*regionlist.RegionList, error) {
	_, off, err := idx.termRecord(i)
	if err != nil {
		return nil, err
	}
	window := 4096
	for {
		remaining := idx.r.Len() - int(off)
		if remaining <= 0 {
			return nil, errkinds.NewIndexCorruptionError(idx.path, "truncated postings stream")
		}
		size := window
		if size > remaining {
			size = remaining
		}
		buf := make([]byte, size)
		if _, err := idx.r.ReadAt(buf, off); err != nil {
			return nil, errkinds.NewIOError("read", idx.path, err)
		}
		// Each attempt decodes into a fresh list: a partial decode from a
		// too-small window must not leave its already-appended regions
		// behind when the window grows and the whole buffer is re-decoded.
		rl := regionlist.New(regionlist.StartSorted, false)
		ok, _, derr := decodePostingsFrom(buf, rl)
		if derr != nil {
			return nil, errkinds.NewIndexCorruptionError(idx.path, derr.Error())
		}
		if ok {
			rl.Freeze()
			return rl, nil
		}
		if size == remaining {
			return nil, errkinds.NewIndexCorruptionError(idx.path, "missing end-of-postings tag")
		}
		window *= 2
	}
}

// decodePostingsFrom decodes as many complete posting records as fit in
// buf, appending each to rl. ok reports whether the EoP tag was reached
// (a full decode); if not, the caller should retry with a larger window.
func decodePostingsFrom(buf []byte, rl *regionlist.RegionList) (ok bool, consumed int, err error) {
	pos := 0
	hasPosting := false
	var lastStart, lastLen int64
	for {
		if pos >= len(buf) {
			return false, pos, nil
		}
		if buf[pos] == varint.EoPTag {
			return true, pos + 1, nil
		}
		control, n, derr := varint.Decode(buf[pos:])
		if derr != nil {
			return false, pos, derr
		}
		pos += n
		var start, length int64
		if control == 0 {
			if pos >= len(buf) {
				return false, pos, nil
			}
			delta, n2, derr := varint.Decode(buf[pos:])
			if derr != nil {
				return false, pos, derr
			}
			pos += n2
			if pos >= len(buf) {
				return false, pos, nil
			}
			l, n3, derr := varint.Decode(buf[pos:])
			if derr != nil {
				return false, pos, derr
			}
			pos += n3
			length = l
			if !hasPosting {
				start = delta
			} else {
				start = lastStart + delta
			}
			hasPosting = true
		} else {
			start = lastStart + (control - 1)
			length = lastLen
		}
		lastStart, lastLen = start, length
		rl.Add(region.Region{Start: region.Offset(start), End: region.Offset(start + length - 1)})
	}
}

// Lookup implements evaluator.IndexReader.
func (idx *Index) Lookup(prefix, term string, rangePrefix bool) (*regionlist.RegionList, error) {
	key := prefix + term
	if !rangePrefix {
		i, ok := idx.exactIndex(key)
		if !ok {
			rl := regionlist.New(regionlist.StartSorted, false)
			rl.Freeze()
			return rl, nil
		}
		return idx.decodePostings(i)
	}

	lo, hi := idx.prefixRange(key)
	if lo >= hi {
		rl := regionlist.New(regionlist.StartSorted, false)
		rl.Freeze()
		return rl, nil
	}
	lists := make([]*regionlist.RegionList, 0, hi-lo)
	for i := lo; i < hi; i++ {
		rl, err := idx.decodePostings(i)
		if err != nil {
			return nil, err
		}
		if rl.Len() > 0 {
			lists = append(lists, rl)
		}
	}
	return sizeClassMerge(lists), nil
}

// sizeClassMerge merges the postings of many matched terms into a
// single sorted RegionList by size class: lists are bucketed by the next
// power of two of their length (single-region lists share bucket 1),
// heap-merged within each bucket, then the bucket results are themselves
// heap-merged into one final start-sorted list.
func sizeClassMerge(lists []*regionlist.RegionList) *regionlist.RegionList {
	if len(lists) == 0 {
		rl := regionlist.New(regionlist.StartSorted, false)
		rl.Freeze()
		return rl
	}
	if len(lists) == 1 {
		return lists[0]
	}

	buckets := map[int][]*regionlist.RegionList{}
	for _, l := range lists {
		buckets[nextPow2(l.Len())] = append(buckets[nextPow2(l.Len())], l)
	}
	classes := make([]int, 0, len(buckets))
	for c := range buckets {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	merged := make([]*regionlist.RegionList, 0, len(classes))
	for _, c := range classes {
		merged = append(merged, heapMerge(buckets[c]))
	}
	return heapMerge(merged)
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

type mergeCursor struct {
	it  *regionlist.Iterator
	cur region.Region
}

type cursorHeap []*mergeCursor

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	return h[i].cur.Less(h[j].cur)
}
func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)   { *h = append(*h, x.(*mergeCursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// heapMerge performs a k-way merge of already-sorted RegionLists into one
// fresh start-sorted RegionList.
func heapMerge(lists []*regionlist.RegionList) *regionlist.RegionList {
	out := regionlist.New(regionlist.StartSorted, false)
	h := &cursorHeap{}
	heap.Init(h)
	for _, l := range lists {
		it := l.EnsureStartSorted().Iter()
		if r, ok := it.Next(); ok {
			heap.Push(h, &mergeCursor{it: it, cur: r})
		}
	}
	for h.Len() > 0 {
		top := heap.Pop(h).(*mergeCursor)
		out.Add(top.cur)
		if r, ok := top.it.Next(); ok {
			top.cur = r
			heap.Push(h, top)
		}
	}
	out.Freeze()
	return out
}
