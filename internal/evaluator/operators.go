package evaluator

import (
	"github.com/standardbeagle/sgrep/internal/query/ast"
	"github.com/standardbeagle/sgrep/internal/region"
	"github.com/standardbeagle/sgrep/internal/regionlist"
)

func minOffset(a, b region.Offset) region.Offset {
	if a < b {
		return a
	}
	return b
}

func maxOffset(a, b region.Offset) region.Offset {
	if a > b {
		return a
	}
	return b
}

// opOr merges two sorted streams, dropping exact duplicates. RegionList.Add's own self-demoting invariant logic widens the
// declared sort order to NotSorted/nested automatically if the merge ever
// produces an out-of-order or nesting result, so the output is seeded
// optimistically as StartSorted/non-nested.
func opOr(a, b *regionlist.RegionList) *regionlist.RegionList {
	as := a.EnsureStartSorted()
	bs := b.EnsureStartSorted()
	ia, ib := as.Iter(), bs.Iter()
	out := regionlist.New(regionlist.StartSorted, false)

	ra, oka := ia.Next()
	rb, okb := ib.Next()
	for oka || okb {
		switch {
		case oka && okb:
			switch {
			case ra == rb:
				out.Add(ra)
				ra, oka = ia.Next()
				rb, okb = ib.Next()
			case ra.Less(rb):
				out.Add(ra)
				ra, oka = ia.Next()
			default:
				out.Add(rb)
				rb, okb = ib.Next()
			}
		case oka:
			out.Add(ra)
			ra, oka = ia.Next()
		default:
			out.Add(rb)
			rb, okb = ib.Next()
		}
	}
	out.Freeze()
	return out
}

// orderedEndpoints computes the emitted span's (start,end) for a matched
// (a,b) pair. The quote operators share the ordered family's four
// endpoint rules: a leading underscore excludes the left match, a
// trailing one excludes the right.
func orderedEndpoints(op ast.Op, a, b region.Region) region.Region {
	start, end := a.Start, b.End
	switch op {
	case ast.OpUnderDot, ast.OpUnderQuote:
		start = a.End + 1
	case ast.OpDotUnder, ast.OpQuoteUnder:
		end = b.Start - 1
	case ast.OpUnderUnder, ast.OpUnderQuoteUnder:
		start = a.End + 1
		end = b.Start - 1
	}
	return region.Region{Start: start, End: end}
}

// opOrderedFamily implements "A .. B" / "A _. B" / "A ._ B" / "A __ B"
//: for each B in start order, every A that ends before B starts is pushed
// on a stack, and B pairs with the most recently pushed A not yet matched
// (A.end < B.start); each A pairs at most once, so a family of nested A's
// pair with different B's, producing nested output.
func opOrderedFamily(op ast.Op, a, b *regionlist.RegionList) *regionlist.RegionList {
	as := a.EnsureEndSorted()
	bs := b.EnsureStartSorted()
	ia, ib := as.Iter(), bs.Iter()
	out := regionlist.New(regionlist.NotSorted, true)

	// The output is seeded NotSorted/nested=true: a family of nested A's
	// each matched against a different B produces nested spans, so there
	// is no cheaper true claim to make up front.
	var stack []region.Region

	rb, okb := ib.Next()
	for okb {
		ra, oka := ia.Peek()
		for oka && ra.End < rb.Start {
			stack = append(stack, ra)
			ia.Next()
			ra, oka = ia.Peek()
		}
		if len(stack) == 0 {
			rb, okb = ib.Next()
			continue
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Add(orderedEndpoints(op, top, rb))
		rb, okb = ib.Next()
	}
	out.Freeze()
	return out
}

// opQuoteFamily implements the quote operator family: same endpoint rule
// as the ordered family, but inputs are assumed non-nesting, so a
// start-quote simply matches the earliest following end-quote and both
// iterators advance past the match.
func opQuoteFamily(op ast.Op, a, b *regionlist.RegionList) *regionlist.RegionList {
	as := a.EnsureStartSorted()
	bs := b.EnsureStartSorted()
	ia, ib := as.Iter(), bs.Iter()
	out := regionlist.New(regionlist.StartSorted, false)

	ra, oka := ia.Next()
	rb, okb := ib.Next()
	for oka {
		for okb && rb.Start <= ra.End {
			rb, okb = ib.Next()
		}
		if !okb {
			break
		}
		out.Add(orderedEndpoints(op, ra, rb))
		// Both iterators advance past the whole match, so when both sides
		// are the same occurrence list the matched end-quote can't start
		// the next pair.
		matchEnd := rb.End
		for ra, oka = ia.Next(); oka && ra.Start <= matchEnd; ra, oka = ia.Next() {
		}
		rb, okb = ib.Next()
	}
	out.Freeze()
	return out
}

func properlyIn(a, b region.Region) bool {
	return (b.Start < a.Start && a.End <= b.End) || (b.Start <= a.Start && a.End < b.End)
}

// opIn implements "A in B": A properly contained by some region of
// outer(B).
func opIn(a, b *regionlist.RegionList) *regionlist.RegionList {
	bo := opOuter(b).ToSlice()
	out := regionlist.New(regionlist.StartSorted, false)
	for _, ra := range a.EnsureStartSorted().ToSlice() {
		for _, rb := range bo {
			if rb.Start > ra.Start {
				break
			}
			if properlyIn(ra, rb) {
				out.Add(ra)
				break
			}
		}
	}
	out.Freeze()
	return out
}

// opNotIn is the complement of opIn over the same left-hand set.
func opNotIn(a, b *regionlist.RegionList) *regionlist.RegionList {
	bo := opOuter(b).ToSlice()
	out := regionlist.New(regionlist.StartSorted, false)
	for _, ra := range a.EnsureStartSorted().ToSlice() {
		matched := false
		for _, rb := range bo {
			if rb.Start > ra.Start {
				break
			}
			if properlyIn(ra, rb) {
				matched = true
				break
			}
		}
		if !matched {
			out.Add(ra)
		}
	}
	out.Freeze()
	return out
}

// opContaining / opNotContaining are the dual of in/not-in: right side is
// reduced to inner(C) instead of outer(B).
func opContaining(a, c *regionlist.RegionList) *regionlist.RegionList {
	ci := opInner(c).ToSlice()
	out := regionlist.New(regionlist.StartSorted, false)
	for _, ra := range a.EnsureStartSorted().ToSlice() {
		for _, rc := range ci {
			if rc.Start > ra.End {
				break
			}
			if properlyIn(rc, ra) {
				out.Add(ra)
				break
			}
		}
	}
	out.Freeze()
	return out
}

func opNotContaining(a, c *regionlist.RegionList) *regionlist.RegionList {
	ci := opInner(c).ToSlice()
	out := regionlist.New(regionlist.StartSorted, false)
	for _, ra := range a.EnsureStartSorted().ToSlice() {
		matched := false
		for _, rc := range ci {
			if rc.Start > ra.End {
				break
			}
			if properlyIn(rc, ra) {
				matched = true
				break
			}
		}
		if !matched {
			out.Add(ra)
		}
	}
	out.Freeze()
	return out
}

// opEqual / opNotEqual are set intersection / left-difference by exact
// region equality.
func opEqual(a, b *regionlist.RegionList) *regionlist.RegionList {
	bset := map[region.Region]bool{}
	for _, rb := range b.ToSlice() {
		bset[rb] = true
	}
	out := regionlist.New(regionlist.StartSorted, false)
	var last *region.Region
	for _, ra := range a.EnsureStartSorted().ToSlice() {
		if bset[ra] && (last == nil || *last != ra) {
			out.Add(ra)
			r := ra
			last = &r
		}
	}
	out.Freeze()
	return out
}

func opNotEqual(a, b *regionlist.RegionList) *regionlist.RegionList {
	bset := map[region.Region]bool{}
	for _, rb := range b.ToSlice() {
		bset[rb] = true
	}
	out := regionlist.New(regionlist.StartSorted, false)
	var last *region.Region
	for _, ra := range a.EnsureStartSorted().ToSlice() {
		if !bset[ra] && (last == nil || *last != ra) {
			out.Add(ra)
			r := ra
			last = &r
		}
	}
	out.Freeze()
	return out
}

// opOuter keeps the longest region among those sharing a start, dropping
// any region properly contained in an earlier-starting one.
// Sorting by (Start asc, End desc) makes this a single linear sweep: a
// region survives iff its End exceeds every End seen so far.
func opOuter(a *regionlist.RegionList) *regionlist.RegionList {
	regs := append([]region.Region(nil), a.EnsureStartSorted().ToSlice()...)
	// EnsureStartSorted breaks (Start,End) ties ascending; opOuter wants
	// descending End on ties so the longest of a tie group is seen first.
	for i := 1; i < len(regs); i++ {
		j := i
		for j > 0 && regs[j-1].Start == regs[j].Start && regs[j-1].End < regs[j].End {
			regs[j-1], regs[j] = regs[j], regs[j-1]
			j--
		}
	}
	out := regionlist.New(regionlist.StartSorted, false)
	runningMax := region.Offset(-1)
	for _, r := range regs {
		if r.End > runningMax {
			out.Add(r)
			runningMax = r.End
		}
	}
	out.Freeze()
	return out
}

// opInner keeps only regions that do not themselves properly contain any
// other region in the list.
func opInner(a *regionlist.RegionList) *regionlist.RegionList {
	regs := a.EnsureStartSorted().ToSlice()
	keep := make([]bool, len(regs))
	for i := range keep {
		keep[i] = true
	}
	for i := range regs {
		for j := i + 1; j < len(regs) && regs[j].Start <= regs[i].End; j++ {
			if regs[i].Contains(regs[j]) {
				keep[i] = false
			}
			if regs[j].Contains(regs[i]) {
				keep[j] = false
			}
		}
	}
	out := regionlist.New(regionlist.StartSorted, false)
	for i, r := range regs {
		if keep[i] {
			out.Add(r)
		}
	}
	out.Freeze()
	return out
}

// opConcat merges overlapping or byte-adjacent regions.
func opConcat(a *regionlist.RegionList) *regionlist.RegionList {
	regs := a.EnsureStartSorted().ToSlice()
	out := regionlist.New(regionlist.StartSorted, false)
	if len(regs) == 0 {
		out.Freeze()
		return out
	}
	cur := regs[0]
	for _, r := range regs[1:] {
		if cur.AdjacentOrOverlaps(r) {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out.Add(cur)
		cur = r
	}
	out.Add(cur)
	out.Freeze()
	return out
}

// opExtracting removes every cutter-covered byte from each region of a,
// preserving a's own order.
func opExtracting(a, cutter *regionlist.RegionList) *regionlist.RegionList {
	merged := opConcat(cutter).ToSlice()
	out := regionlist.New(regionlist.NotSorted, true)
	for _, ar := range a.ToSlice() {
		start := ar.Start
		for _, c := range merged {
			if c.End < ar.Start {
				continue
			}
			if c.Start > ar.End {
				break
			}
			cs := maxOffset(c.Start, ar.Start)
			if cs > start {
				out.Add(region.Region{Start: start, End: cs - 1})
			}
			ce := minOffset(c.End, ar.End)
			if ce+1 > start {
				start = ce + 1
			}
		}
		if start <= ar.End {
			out.Add(region.Region{Start: start, End: ar.End})
		}
	}
	out.Freeze()
	return out
}

// opJoin emits the k-gram span over a in start order, deduplicating
// adjacent coincidences.
func opJoin(a *regionlist.RegionList, k int) *regionlist.RegionList {
	out := regionlist.New(regionlist.StartSorted, false)
	if k < 1 {
		out.Freeze()
		return out
	}
	regs := a.EnsureStartSorted().ToSlice()
	var last *region.Region
	for i := 0; i+k <= len(regs); i++ {
		r := region.Region{Start: regs[i].Start, End: regs[i+k-1].End}
		if last == nil || *last != r {
			out.Add(r)
			rcopy := r
			last = &rcopy
		}
	}
	out.Freeze()
	return out
}

// opFirst / opLast truncate to the first/last k regions in start order.
func opFirst(a *regionlist.RegionList, k int) *regionlist.RegionList {
	regs := a.EnsureStartSorted().ToSlice()
	if k < 0 {
		k = 0
	}
	if k > len(regs) {
		k = len(regs)
	}
	out := regionlist.New(regionlist.StartSorted, false)
	for i := 0; i < k; i++ {
		out.Add(regs[i])
	}
	out.Freeze()
	return out
}

func opLast(a *regionlist.RegionList, k int) *regionlist.RegionList {
	regs := a.EnsureStartSorted().ToSlice()
	if k < 0 {
		k = 0
	}
	if k > len(regs) {
		k = len(regs)
	}
	out := regionlist.New(regionlist.StartSorted, false)
	for i := len(regs) - k; i < len(regs); i++ {
		out.Add(regs[i])
	}
	out.Freeze()
	return out
}

// opFirstBytes / opLastBytes emit a k-byte prefix/suffix of each region at
// least k bytes long. The result is seeded NotSorted, carries the
// input's nested flag as-is rather than asserting non-nested, and is
// deduplicated with a real RemoveDuplicates pass — first_bytes/last_bytes
// don't flatten a nested input, so claiming StartSorted/non-nested up
// front would let a later composed query (e.g. `first_bytes(A,5) in B`)
// skip work it still needs to do.
func opFirstBytes(a *regionlist.RegionList, k int) *regionlist.RegionList {
	out := regionlist.New(regionlist.NotSorted, a.Nested())
	kk := region.Offset(k)
	for _, r := range a.EnsureStartSorted().ToSlice() {
		if r.Len() < kk {
			continue
		}
		out.Add(region.Region{Start: r.Start, End: r.Start + kk - 1})
	}
	out.RemoveDuplicates()
	out.Freeze()
	return out
}

func opLastBytes(a *regionlist.RegionList, k int) *regionlist.RegionList {
	out := regionlist.New(regionlist.NotSorted, a.Nested())
	kk := region.Offset(k)
	for _, r := range a.EnsureStartSorted().ToSlice() {
		if r.Len() < kk {
			continue
		}
		out.Add(region.Region{Start: r.End - kk + 1, End: r.End})
	}
	out.RemoveDuplicates()
	out.Freeze()
	return out
}

// opParenting: for each child in r, output the innermost region of l that
// properly contains it, deduplicated.
func opParenting(l, r *regionlist.RegionList) *regionlist.RegionList {
	ls := l.EnsureStartSorted().ToSlice()
	out := regionlist.New(regionlist.NotSorted, true)
	seen := map[region.Region]bool{}
	for _, c := range r.EnsureStartSorted().ToSlice() {
		var best *region.Region
		for i := range ls {
			lr := ls[i]
			if lr.Contains(c) && (best == nil || lr.Len() < best.Len()) {
				b := lr
				best = &b
			}
		}
		if best != nil && !seen[*best] {
			seen[*best] = true
			out.Add(*best)
		}
	}
	out.Freeze()
	return out
}

// opChildrening: for each parent in p, walk its contained children
// left-to-right, emitting every one (not just one per parent) and
// skipping past a child's end before looking for the next.
// Overlapping/nested parents that a first pass can't fully resolve are
// saved and replayed in a second pass: find the leftmost child
// candidate at or after `first`, keep the longest same-start candidate
// still contained in the parent, emit it and advance `first` past its
// end; when no candidate is contained, this parent is exhausted so move
// to the next, stashing any parent whose start is still within the
// just-finished parent's span for a second pass over `saved_parents`.
func opChildrening(c, p *regionlist.RegionList) *regionlist.RegionList {
	children := c.EnsureStartSorted().ToSlice()
	parents := p.EnsureStartSorted().ToSlice()
	out := regionlist.New(regionlist.StartSorted, false)

	loops := 0
	for len(parents) > 0 {
		var savedParents []region.Region
		parentIdx := 0
		parent := parents[0]
		childNumber := 0
		first := parent.Start
		haveFirst := true

		for haveFirst {
			for childNumber < len(children) && children[childNumber].Start < first {
				childNumber++
			}
			if childNumber >= len(children) {
				haveFirst = false
				break
			}
			child := children[childNumber]

			if child == parent {
				// The parent region is itself a child candidate; skip
				// past it and keep looking.
				first++
				continue
			}

			for parent.Contains(child) && childNumber+1 < len(children) {
				next := children[childNumber+1]
				if next.Start == child.Start && parent.Contains(next) {
					childNumber++
					child = next
				} else {
					break
				}
			}

			if parent.Contains(child) {
				out.Add(child)
				first = child.End + 1
				continue
			}

			// This parent is handled; advance to the next one, saving
			// any overlapping/nested parents for a second pass.
			lastParentEnd := parent.End
			parentIdx++
			if parentIdx >= len(parents) {
				haveFirst = false
				break
			}
			parent = parents[parentIdx]
			for parentIdx < len(parents) && parent.Start <= lastParentEnd {
				savedParents = append(savedParents, parent)
				parentIdx++
				if parentIdx < len(parents) {
					parent = parents[parentIdx]
				}
			}
			if parentIdx >= len(parents) {
				haveFirst = false
				break
			}
			first = parent.Start
		}

		if len(savedParents) == 0 {
			break
		}
		loops++
		parents = savedParents
	}

	if loops > 0 {
		// A second pass over saved parents can revisit a child already
		// emitted by the first pass.
		out.RemoveDuplicates()
	}
	out.Freeze()
	return out
}

// opNear implements near(k)/near_before(k) after reducing both sides to
// outer(). near_before requires L to strictly precede R;
// plain near accepts either order.
func opNear(l, r *regionlist.RegionList, k int, before bool) *regionlist.RegionList {
	ls := opOuter(l).ToSlice()
	rs := opOuter(r).ToSlice()
	out := regionlist.New(regionlist.NotSorted, true)
	seen := map[region.Region]bool{}
	for _, a := range ls {
		for _, b := range rs {
			var gap region.Offset
			switch {
			case a.End < b.Start:
				gap = b.Start - a.End - 1
			case !before && b.End < a.Start:
				gap = a.Start - b.End - 1
			case before:
				continue
			default:
				gap = 0
			}
			if gap > region.Offset(k) {
				continue
			}
			merged := region.Region{Start: minOffset(a.Start, b.Start), End: maxOffset(a.End, b.End)}
			if !seen[merged] {
				seen[merged] = true
				out.Add(merged)
			}
		}
	}
	out.Freeze()
	return out
}
