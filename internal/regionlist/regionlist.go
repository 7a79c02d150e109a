// Package regionlist implements the engine's central data structure: an
// append-only, then-frozen sequence of Regions carrying a sortedness flag,
// a conservative "nested" flag, and a lazily materialized complementary
// sort view.
//
// The list is slice-backed with an explicit sortedness enum, a lazy
// secondary view cached on the primary, and an Iterator with a
// one-element PushBack; the primary view owns its buffer and the
// secondary view is a clone, so the two sort orders never share
// mutable storage.
package regionlist

import (
	"sort"

	"github.com/standardbeagle/sgrep/internal/errkinds"
	"github.com/standardbeagle/sgrep/internal/region"
)

// SortOrder describes which key a RegionList's regions are currently
// ordered by.
type SortOrder int

const (
	NotSorted SortOrder = iota
	StartSorted
	EndSorted
)

func (s SortOrder) String() string {
	switch s {
	case StartSorted:
		return "StartSorted"
	case EndSorted:
		return "EndSorted"
	default:
		return "NotSorted"
	}
}

// RegionList is a semantic multiset of Regions. The Refcount field is not
// maintained by this package or by the evaluator: the evaluator's release
// walk counts references on ast.Node, where `#start`/`#end` leaves carry -1.
type RegionList struct {
	regions  []region.Region
	sorted   SortOrder
	nested   bool
	complete bool
	Refcount int

	// secondary caches the complementary sort order once materialized, so
	// a second call asking for the same order is free.
	secondary *RegionList

	// Compact chars form: when charsWidth > 0 the list denotes every
	// region of exactly that width over [0, charsEnd] without storing
	// them; Materialize expands it on first real use.
	charsWidth region.Offset
	charsEnd   region.Offset
}

// New returns an empty, mutable RegionList declared to have the given
// sort order and nesting. Add only ever demotes these flags (to NotSorted
// and/or nested) when a region violates them and never promotes them, so
// callers declare the order they expect (e.g. or's merge-sweep asserts
// StartSorted, non-nested) and a list declared NotSorted stays so.
func New(sorted SortOrder, nested bool) *RegionList {
	return &RegionList{sorted: sorted, nested: nested}
}

// Sorted reports the list's current sort order.
func (rl *RegionList) Sorted() SortOrder { return rl.sorted }

// Nested reports the conservative nesting flag: false is a guarantee that
// no region properly contains another; true means "maybe".
func (rl *RegionList) Nested() bool { return rl.nested }

// Complete reports whether the list has been frozen.
func (rl *RegionList) Complete() bool { return rl.complete }

// Len returns the number of regions.
func (rl *RegionList) Len() int {
	rl.Materialize()
	return len(rl.regions)
}

// At returns the region at rank i.
func (rl *RegionList) At(i int) region.Region {
	rl.Materialize()
	return rl.regions[i]
}

// Add appends r, demoting the list's declared sort/nesting flags in place
// if r would violate them rather than failing: an operator whose output
// genuinely is unordered or nested gets the flags it deserves instead of
// an error. Panics with a LogicInvariantError if
// called after Freeze: that is a bug in the caller, not a data condition.
func (rl *RegionList) Add(r region.Region) {
	if rl.complete {
		panic(errkinds.NewLogicInvariantError("RegionList.Add called after Freeze"))
	}
	if n := len(rl.regions); n > 0 {
		last := rl.regions[n-1]
		switch rl.sorted {
		case StartSorted:
			if !last.Less(r) {
				rl.sorted = NotSorted
				rl.nested = true
			} else if !rl.nested && last.End >= r.End {
				rl.nested = true
			}
		case EndSorted:
			if !last.LessByEnd(r) {
				rl.sorted = NotSorted
				rl.nested = true
			}
		}
	}
	rl.regions = append(rl.regions, r)
	rl.secondary = nil
}

// Freeze marks the list complete; no further Add calls are permitted.
func (rl *RegionList) Freeze() { rl.complete = true }

// Iterator walks a RegionList in its current order, forward only except
// for a single-element PushBack used by the ordered/quote-family sweeps.
type Iterator struct {
	rl  *RegionList
	idx int
}

// Iter returns a fresh Iterator over rl in its current order.
func (rl *RegionList) Iter() *Iterator {
	rl.Materialize()
	return &Iterator{rl: rl}
}

// Next returns the next region, or ok=false at the end.
func (it *Iterator) Next() (region.Region, bool) {
	if it.idx >= len(it.rl.regions) {
		return region.Region{}, false
	}
	r := it.rl.regions[it.idx]
	it.idx++
	return r, true
}

// PushBack rewinds the iterator by one element so the last region
// returned by Next will be returned again. It panics when nothing has been
// consumed yet; a second call without an intervening Next is not detected
// and rewinds one element further.
func (it *Iterator) PushBack() {
	if it.idx == 0 {
		panic(errkinds.NewLogicInvariantError("Iterator.PushBack with nothing to push back"))
	}
	it.idx--
}

// Peek returns the next region without consuming it.
func (it *Iterator) Peek() (region.Region, bool) {
	r, ok := it.Next()
	if ok {
		it.PushBack()
	}
	return r, ok
}

// cloneSorted returns a fresh, frozen RegionList holding the same regions
// as rl but reordered by less.
func (rl *RegionList) cloneSorted(order SortOrder, less func(a, b region.Region) bool) *RegionList {
	clone := make([]region.Region, len(rl.regions))
	copy(clone, rl.regions)
	sort.Slice(clone, func(i, j int) bool { return less(clone[i], clone[j]) })
	out := &RegionList{regions: clone, sorted: order, nested: rl.nested, complete: true}
	return out
}

// EnsureStartSorted returns a RegionList holding the same regions ordered
// by (Start,End). If rl is already StartSorted it is returned unchanged;
// otherwise a cached or freshly cloned+sorted copy is returned.
func (rl *RegionList) EnsureStartSorted() *RegionList {
	rl.Materialize()
	if rl.sorted == StartSorted {
		return rl
	}
	if rl.secondary != nil && rl.secondary.sorted == StartSorted {
		return rl.secondary
	}
	clone := rl.cloneSorted(StartSorted, region.Region.Less)
	rl.secondary = clone
	return clone
}

// EnsureEndSorted returns a RegionList holding the same regions ordered by
// (End,Start). A non-nested StartSorted list is already end-sorted and is
// returned unchanged.
func (rl *RegionList) EnsureEndSorted() *RegionList {
	rl.Materialize()
	if rl.sorted == EndSorted {
		return rl
	}
	if rl.sorted == StartSorted && !rl.nested {
		return rl
	}
	if rl.secondary != nil && rl.secondary.sorted == EndSorted {
		return rl.secondary
	}
	clone := rl.cloneSorted(EndSorted, region.Region.LessByEnd)
	rl.secondary = clone
	return clone
}

// NewChars returns the compact "chars list" form: every region of width
// consecutive bytes over [0,end], represented by its parameters alone
// until materialized. The list is born frozen.
func NewChars(width, end region.Offset) *RegionList {
	rl := &RegionList{sorted: StartSorted, complete: true, charsWidth: width, charsEnd: end}
	return rl
}

// IsChars reports whether the list is in the compact chars form.
func (rl *RegionList) IsChars() bool { return rl.charsWidth > 0 }

// CharsWidth returns the fixed region width of a chars-form list, or 0.
func (rl *RegionList) CharsWidth() region.Offset { return rl.charsWidth }

// Materialize expands a chars-form list into an ordinary region slice in
// place; for any other list it is a no-op.
func (rl *RegionList) Materialize() {
	if !rl.IsChars() {
		return
	}
	w := rl.charsWidth
	for s := region.Offset(0); s+w-1 <= rl.charsEnd; s++ {
		rl.regions = append(rl.regions, region.Region{Start: s, End: s + w - 1})
	}
	rl.charsWidth = 0
	rl.charsEnd = 0
}

// ToChars collapses a list whose regions all share one width into the
// compact chars form covering [0, last end]. Lists with mixed widths (or
// no regions) are left untouched and reported false.
func (rl *RegionList) ToChars() bool {
	if rl.IsChars() {
		return true
	}
	if len(rl.regions) == 0 {
		return false
	}
	w := rl.regions[0].Len()
	var maxEnd region.Offset
	for _, r := range rl.regions {
		if r.Len() != w {
			return false
		}
		if r.End > maxEnd {
			maxEnd = r.End
		}
	}
	rl.regions = nil
	rl.secondary = nil
	rl.sorted = StartSorted
	rl.nested = false
	rl.charsWidth = w
	rl.charsEnd = maxEnd
	return true
}

// RemoveDuplicates drops adjacent equal regions from a start-sorted
// list in place.
func (rl *RegionList) RemoveDuplicates() {
	sorted := rl.EnsureStartSorted()
	if sorted != rl {
		*rl = *sorted
	}
	out := rl.regions[:0]
	for i, r := range rl.regions {
		if i == 0 || r != rl.regions[i-1] {
			out = append(out, r)
		}
	}
	rl.regions = out
	rl.secondary = nil
}

// ToSlice exposes the regions in the list's current order for read-only
// iteration (e.g. by the output formatter).
func (rl *RegionList) ToSlice() []region.Region {
	rl.Materialize()
	return rl.regions
}
