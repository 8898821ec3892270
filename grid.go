/*
Copyright © 2013 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

package ca2d

import "fmt"

// border is the width, in cells, of the ghost ring surrounding the interior
// of every buffer allocated against a Grid.
const border = 1

// Grid is the immutable description of a regular rectangular raster: its
// dimensions, cell size, and south-west corner. A Grid never changes after
// construction; everything that varies during a run (computational domain,
// mask, water depth, ...) is held in buffers allocated against it.
type Grid struct {
	Nx, Ny      int     // interior dimensions, in cells
	CellLength  float64 // m
	Xll, Yll    float64 // SW corner, world coordinates
}

// NewGrid constructs a Grid. It panics if nx, ny, or cellLength are
// non-positive, since a degenerate grid has no valid indexing.
func NewGrid(nx, ny int, cellLength, xll, yll float64) *Grid {
	if nx <= 0 || ny <= 0 {
		panic(fmt.Sprintf("ca2d: invalid grid dimensions %dx%d", nx, ny))
	}
	if cellLength <= 0 {
		panic(fmt.Sprintf("ca2d: invalid cell length %g", cellLength))
	}
	return &Grid{Nx: nx, Ny: ny, CellLength: cellLength, Xll: xll, Yll: yll}
}

// Area returns the area of a single cell, ℓ².
func (g *Grid) Area() float64 { return g.CellLength * g.CellLength }

// bufNx and bufNy are the allocated (bordered) buffer dimensions.
func (g *Grid) bufNx() int { return g.Nx + 2*border }
func (g *Grid) bufNy() int { return g.Ny + 2*border }

// FullBox returns a Box covering the entire interior of the grid.
func (g *Grid) FullBox() Box { return Box{X: 0, Y: 0, W: g.Nx, H: g.Ny} }

// Box is a rectangular region given in interior grid-index coordinates, with
// an optional efficiency score used by domain-decomposition heuristics.
// A Box with W==0 or H==0 is Empty.
type Box struct {
	X, Y, W, H int
	Eff        float64 // efficiency score in [0,1]; decomposition-only, not geometry
}

// Empty reports whether b covers zero cells.
func (b Box) Empty() bool { return b.W <= 0 || b.H <= 0 }

// X1/Y1 return the exclusive upper bound of the box on each axis.
func (b Box) X1() int { return b.X + b.W }
func (b Box) Y1() int { return b.Y + b.H }

// Intersect returns the overlap of b and o. The result is Empty if they do
// not overlap.
func (b Box) Intersect(o Box) Box {
	x0, y0 := max(b.X, o.X), max(b.Y, o.Y)
	x1, y1 := min(b.X1(), o.X1()), min(b.Y1(), o.Y1())
	if x1 <= x0 || y1 <= y0 {
		return Box{}
	}
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Union returns the smallest Box enclosing both b and o. If either is
// Empty, the other is returned unchanged.
func (b Box) Union(o Box) Box {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	x0, y0 := min(b.X, o.X), min(b.Y, o.Y)
	x1, y1 := max(b.X1(), o.X1()), max(b.Y1(), o.Y1())
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Inside reports whether b lies entirely within o.
func (b Box) Inside(o Box) bool {
	if b.Empty() {
		return true
	}
	return b.X >= o.X && b.Y >= o.Y && b.X1() <= o.X1() && b.Y1() <= o.Y1()
}

// Interior reports whether b is strictly interior to o — inside o and not
// touching any of o's four edges.
func (b Box) Interior(o Box) bool {
	if b.Empty() {
		return true
	}
	return b.X > o.X && b.Y > o.Y && b.X1() < o.X1() && b.Y1() < o.Y1()
}

// Include returns the smallest Box containing b and the single point (x,y).
func (b Box) Include(x, y int) Box {
	return b.Union(Box{X: x, Y: y, W: 1, H: 1})
}

// Limit clips b to lie within o.
func (b Box) Limit(o Box) Box { return b.Intersect(o) }

// Grow returns b expanded by n cells on every side, clipped to limit.
func (b Box) Grow(n int, limit Box) Box {
	if b.Empty() {
		return b
	}
	grown := Box{X: b.X - n, Y: b.Y - n, W: b.W + 2*n, H: b.H + 2*n}
	return grown.Limit(limit)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// BoxList is a set of boxes whose union equals the list's logical region and
// whose members are pairwise disjoint. Overlapping insertions trigger a
// 9-subregion decomposition that preserves disjointness (see add).
type BoxList struct {
	boxes  []Box
	extent Box // cached tightest enclosing box; Empty when boxes is empty
}

// NewBoxList returns an empty BoxList.
func NewBoxList() *BoxList { return &BoxList{} }

// Boxes returns the list's current members. The caller must not mutate the
// returned slice.
func (l *BoxList) Boxes() []Box { return l.boxes }

// Extent returns the tightest Box enclosing every member.
func (l *BoxList) Extent() Box { return l.extent }

// Empty reports whether the list has no boxes.
func (l *BoxList) Empty() bool { return len(l.boxes) == 0 }

// Add inserts b into the list, splitting any existing box it overlaps so
// that membership remains pairwise disjoint and the union of all members is
// unchanged except for the newly covered area.
//
// For every existing box O that intersects the incoming box I, the four
// sorted distinct x-extremes a<b<c<d and y-extremes e<f<g<h of O and I
// induce a 3x3 partition into 9 regions. Region 5 (the intersection of O and
// I) replaces O. Regions 2, 4, 6, 8 (the edge-adjacent strips) are always
// queued for (re-)insertion. Regions 1, 3, 7, 9 (the corners) are queued
// only when interior to O or to I — a corner region exterior to both boxes
// belongs to neither and must not be invented out of thin air.
func (l *BoxList) Add(in Box) {
	if in.Empty() {
		return
	}
	worklist := []Box{in}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if cur.Empty() {
			continue
		}
		split := false
		for i, o := range l.boxes {
			isect := cur.Intersect(o)
			if isect.Empty() {
				continue
			}
			// cur overlaps an existing box: remove O, replace with the
			// 9-region decomposition of (O, cur), excluding the exact
			// duplicate (region 5, which is already `isect`).
			l.boxes[i] = l.boxes[len(l.boxes)-1]
			l.boxes = l.boxes[:len(l.boxes)-1]

			regions := nineRegions(o, cur)
			l.boxes = append(l.boxes, isect)
			for _, r := range regions {
				if !r.Empty() {
					worklist = append(worklist, r)
				}
			}
			split = true
			break
		}
		if !split {
			l.boxes = append(l.boxes, cur)
		}
	}
	l.recomputeExtent()
}

// nineRegions returns the 8 non-intersection regions of the 3x3 partition
// of o and cur induced by their combined x/y extremes, filtering out the
// corner regions that are exterior to both o and cur.
func nineRegions(o, cur Box) []Box {
	xs := sortedUnique(o.X, o.X1(), cur.X, cur.X1())
	ys := sortedUnique(o.Y, o.Y1(), cur.Y, cur.Y1())

	var out []Box
	for yi := 0; yi < len(ys)-1; yi++ {
		for xi := 0; xi < len(xs)-1; xi++ {
			r := Box{X: xs[xi], Y: ys[yi], W: xs[xi+1] - xs[xi], H: ys[yi+1] - ys[yi]}
			if r.Empty() {
				continue
			}
			if r.Intersect(o) == r && r.Intersect(cur) == r {
				// the intersection region; already added by the caller.
				continue
			}
			// edge-adjacent strips touch one of the boxes along a full
			// side; corner regions touch neither fully. Include a region
			// unconditionally if it lies inside either box (covers the
			// edge strips), or if it is strictly interior to either box's
			// complement-bridging strip. Corners strictly outside both
			// boxes are dropped; edges are always kept.
			inO := r.Inside(o)
			inCur := r.Inside(cur)
			if inO || inCur {
				out = append(out, r)
				continue
			}
			// Neither fully inside either source box: this is a true
			// "corner" cell of the 3x3 partition. Keep it only if it is
			// interior to one of the two original boxes' extended span,
			// which for axis-aligned rectangles never happens once inO
			// and inCur both fail, so it is correctly dropped.
		}
	}
	return out
}

func sortedUnique(vals ...int) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	// simple insertion sort; len is at most 4
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (l *BoxList) recomputeExtent() {
	var e Box
	for _, b := range l.boxes {
		e = e.Union(b)
	}
	l.extent = e
}

// Contains reports whether the point (x,y) falls within any member box.
func (l *BoxList) Contains(x, y int) bool {
	for _, b := range l.boxes {
		if x >= b.X && x < b.X1() && y >= b.Y && y < b.Y1() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of l.
func (l *BoxList) Clone() *BoxList {
	c := &BoxList{extent: l.extent}
	c.boxes = append(c.boxes, l.boxes...)
	return c
}

// ActivePredicate reports whether (x,y) counts as an active cell for
// load-balancing purposes — it is consulted purely to estimate work, not to
// decide simulation membership.
type ActivePredicate func(x, y int) bool

// SplitBlockDecomposition recursively bisects box along its longer side to
// produce a set of sub-boxes with a more even distribution of active cells
// across dispatch workers than one box covering the whole domain. At each
// level it searches a window of candidate split lines around the midpoint
// for the one crossing the fewest active cells, preferring a line with no
// active cells that sits next to one that does have them (so a box boundary
// falls in dry terrain rather than through a wet run). Recursion stops on a
// box when splitting it further would leave either side with fewer than
// nlmin lines, or when the box's active fraction is already at or above
// threshold (it's dense enough not to be worth balancing further) or
// exactly zero (nothing to balance).
func SplitBlockDecomposition(box Box, active ActivePredicate, nlmin int, window int, threshold float64) []Box {
	if box.Empty() {
		return nil
	}
	if nlmin < 1 {
		nlmin = 1
	}
	return splitBlock(box, active, nlmin, window, threshold)
}

func splitBlock(box Box, active ActivePredicate, nlmin, window int, threshold float64) []Box {
	frac := activeFraction(box, active)
	if frac == 0 || frac >= threshold {
		return []Box{box}
	}

	horiz := box.W >= box.H
	long := box.W
	if !horiz {
		long = box.H
	}
	if long < 2*nlmin {
		return []Box{box}
	}

	split := bestSplitLine(box, active, horiz, long, nlmin, window)
	if split <= 0 || split >= long {
		return []Box{box}
	}

	var b1, b2 Box
	if horiz {
		b1 = Box{X: box.X, Y: box.Y, W: split, H: box.H}
		b2 = Box{X: box.X + split, Y: box.Y, W: box.W - split, H: box.H}
	} else {
		b1 = Box{X: box.X, Y: box.Y, W: box.W, H: split}
		b2 = Box{X: box.X, Y: box.Y + split, W: box.W, H: box.H - split}
	}
	out := splitBlock(b1, active, nlmin, window, threshold)
	return append(out, splitBlock(b2, active, nlmin, window, threshold)...)
}

// activeFraction returns the proportion of box's cells for which active
// reports true.
func activeFraction(box Box, active ActivePredicate) float64 {
	n := 0
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if active(x, y) {
				n++
			}
		}
	}
	return float64(n) / float64(box.W*box.H)
}

// lineActiveCount counts active cells on the line offset cells in from
// box's origin, perpendicular to the split axis.
func lineActiveCount(box Box, active ActivePredicate, horiz bool, offset int) int {
	n := 0
	if horiz {
		x := box.X + offset
		for y := box.Y; y < box.Y1(); y++ {
			if active(x, y) {
				n++
			}
		}
	} else {
		y := box.Y + offset
		for x := box.X; x < box.X1(); x++ {
			if active(x, y) {
				n++
			}
		}
	}
	return n
}

// bestSplitLine searches offsets within window of the midpoint of a long
// (the long side's line count) for the split with fewest active cells,
// preferring a zero-active line adjacent to a line that does have active
// cells. Candidates that would leave either side below nlmin lines are
// rejected.
func bestSplitLine(box Box, active ActivePredicate, horiz bool, long, nlmin, window int) int {
	mid := long / 2
	best := -1
	bestCount := -1
	bestPreferred := false
	for d := -window; d <= window; d++ {
		offset := mid + d
		if offset < nlmin || long-offset < nlmin {
			continue
		}
		count := lineActiveCount(box, active, horiz, offset)
		preferred := count == 0 && ((offset > 0 && lineActiveCount(box, active, horiz, offset-1) > 0) ||
			(offset < long && lineActiveCount(box, active, horiz, offset+1) > 0))
		switch {
		case best < 0:
			best, bestCount, bestPreferred = offset, count, preferred
		case preferred && !bestPreferred:
			best, bestCount, bestPreferred = offset, count, preferred
		case preferred == bestPreferred && count < bestCount:
			best, bestCount, bestPreferred = offset, count, preferred
		}
	}
	if best < 0 {
		return mid
	}
	return best
}
