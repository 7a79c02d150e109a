// Package region defines the core byte-offset types the engine is built on:
// a Region is an inclusive interval over the concatenation of every input
// file, and a FileList maps offsets back to (file, local offset).
package region

import (
	"fmt"
	"sort"
)

// Offset is a byte position within the concatenated input stream. The
// engine addresses at most 2^31-1 bytes: a stream whose
// total length would not fit in a non-negative int32 is rejected rather
// than silently widened. A 64-bit variant is a compatible extension that
// would require an index-magic bump.
type Offset int32

// MaxOffset is the largest byte offset the engine can address.
const MaxOffset = Offset(1<<31 - 1)

// Region is the inclusive interval [Start,End] within the concatenated
// input. Start <= End is required; a region of length 1 has Start == End.
type Region struct {
	Start Offset
	End   Offset
}

// Len returns the number of bytes the region spans.
func (r Region) Len() Offset { return r.End - r.Start + 1 }

// Before reports whether r ends strictly before o begins.
func (r Region) Before(o Region) bool { return r.End < o.Start }

// Contains reports whether r properly contains o (r != o, o entirely
// inside r).
func (r Region) Contains(o Region) bool {
	if r == o {
		return false
	}
	return r.Start <= o.Start && o.End <= r.End
}

// AdjacentOrOverlaps reports whether r and o share at least one byte, or are
// adjacent (o starts no later than one byte past r's end) — the predicate
// used by concat's merge rule.
func (r Region) AdjacentOrOverlaps(o Region) bool {
	return o.Start <= r.End+1
}

// Less orders by (Start,End) — the StartSorted key.
func (r Region) Less(o Region) bool {
	if r.Start != o.Start {
		return r.Start < o.Start
	}
	return r.End < o.End
}

// LessByEnd orders by (End,Start) — the EndSorted key.
func (r Region) LessByEnd(o Region) bool {
	if r.End != o.End {
		return r.End < o.End
	}
	return r.Start < o.Start
}

func (r Region) String() string { return fmt.Sprintf("(%d,%d)", r.Start, r.End) }

// File is one entry of a FileList: name, starting offset in the
// concatenated stream, and byte length.
type File struct {
	Name   string
	Start  Offset
	Length Offset
}

// FileList is an ordered, append-only sequence of File entries with
// start_i = sum of earlier lengths. Supports O(log n) offset lookup.
type FileList struct {
	files []File
	total Offset
}

// NewFileList returns an empty file list.
func NewFileList() *FileList { return &FileList{} }

// Add appends a file. Zero-length files are rejected; the new file's Start
// is derived, not taken from the caller.
func (fl *FileList) Add(name string, length Offset) error {
	if length <= 0 {
		return fmt.Errorf("region: zero-length file %q rejected", name)
	}
	if fl.total > MaxOffset-length {
		return fmt.Errorf("region: concatenated input would exceed %d bytes", MaxOffset)
	}
	fl.files = append(fl.files, File{Name: name, Start: fl.total, Length: length})
	fl.total += length
	return nil
}

// Files returns the underlying slice (read-only use expected).
func (fl *FileList) Files() []File { return fl.files }

// TotalBytes is the length of the concatenated stream.
func (fl *FileList) TotalBytes() Offset { return fl.total }

// Lookup returns the file containing offset off via binary search, and the
// offset local to that file.
func (fl *FileList) Lookup(off Offset) (File, Offset, bool) {
	i := sort.Search(len(fl.files), func(i int) bool {
		return fl.files[i].Start+fl.files[i].Length > off
	})
	if i == len(fl.files) || off < fl.files[i].Start {
		return File{}, 0, false
	}
	return fl.files[i], off - fl.files[i].Start, true
}

// IndexOf returns the position of name in the list, or -1.
func (fl *FileList) IndexOf(name string) int {
	for i, f := range fl.files {
		if f.Name == name {
			return i
		}
	}
	return -1
}
