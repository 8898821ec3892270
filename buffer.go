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

import (
	"math"

	"github.com/ctessum/sparse"
)

// CellBuffer is a dense, bordered raster of float64 values, one per cell of
// a Grid plus a one-cell ghost ring on every side. Index (0,0) is the
// south-west interior cell; indices -1 and Nx/Ny address the border ring.
type CellBuffer struct {
	g    *Grid
	data *sparse.DenseArray
}

// NewCellBuffer allocates a zero-filled buffer sized to g, including its
// border ring.
func NewCellBuffer(g *Grid) *CellBuffer {
	return &CellBuffer{g: g, data: sparse.ZerosDense(g.bufNy(), g.bufNx())}
}

// idx converts interior cell coordinates to the underlying array's indices.
func (b *CellBuffer) idx(x, y int) (row, col int) {
	return y + border, x + border
}

// Get returns the value at interior coordinates (x,y). x and y may range
// over [-1, Nx] / [-1, Ny] to read the border ring.
func (b *CellBuffer) Get(x, y int) float64 {
	row, col := b.idx(x, y)
	return b.data.Get(row, col)
}

// Set stores v at interior coordinates (x,y).
func (b *CellBuffer) Set(x, y int, v float64) {
	row, col := b.idx(x, y)
	b.data.Set(v, row, col)
}

// Add adds v to the current value at (x,y) and returns the new value.
func (b *CellBuffer) Add(x, y int, v float64) float64 {
	nv := b.Get(x, y) + v
	b.Set(x, y, nv)
	return nv
}

// Fill sets every interior cell (not the border ring) to v.
func (b *CellBuffer) Fill(v float64) {
	for y := 0; y < b.g.Ny; y++ {
		for x := 0; x < b.g.Nx; x++ {
			b.Set(x, y, v)
		}
	}
}

// FillBox sets every cell within box to v.
func (b *CellBuffer) FillBox(box Box, v float64) {
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			b.Set(x, y, v)
		}
	}
}

// Grid returns the Grid this buffer was allocated against.
func (b *CellBuffer) Grid() *Grid { return b.g }

// SumBox returns the sum of all cell values within box.
func (b *CellBuffer) SumBox(box Box) float64 {
	var s float64
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			s += b.Get(x, y)
		}
	}
	return s
}

// MaxAbsBox returns the largest absolute value within box, used by the DT
// controller's CFL reductions.
func (b *CellBuffer) MaxAbsBox(box Box) float64 {
	var m float64
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if v := math.Abs(b.Get(x, y)); v > m {
				m = v
			}
		}
	}
	return m
}

// Clone returns a deep copy of b.
func (b *CellBuffer) Clone() *CellBuffer {
	nb := &CellBuffer{g: b.g, data: sparse.ZerosDense(b.g.bufNy(), b.g.bufNx())}
	copy(nb.data.Elements, b.data.Elements)
	return nb
}

// InsertData writes src — a row-major sw x sh slab of values — into box.
// When box is exactly sw x sh, the slab is copied cell for cell. Otherwise
// box must be a clean integer multiple of the slab in both dimensions
// (box.W % sw == 0 and box.H % sh == 0); InsertData then performs a clean
// upsampling, replicating each source cell across the resulting scale_x x
// scale_y block of destination cells. A mismatched, non-multiple shape is
// silently refused: the buffer is left unmodified and InsertData reports
// false.
func (b *CellBuffer) InsertData(box Box, src []float64, sw, sh int) bool {
	if sw <= 0 || sh <= 0 || len(src) != sw*sh {
		return false
	}
	if box.W == sw && box.H == sh {
		for j := 0; j < sh; j++ {
			for i := 0; i < sw; i++ {
				b.Set(box.X+i, box.Y+j, src[j*sw+i])
			}
		}
		return true
	}
	if box.W < sw || box.H < sh || box.W%sw != 0 || box.H%sh != 0 {
		return false
	}
	scaleX, scaleY := box.W/sw, box.H/sh
	for j := 0; j < sh; j++ {
		for i := 0; i < sw; i++ {
			v := src[j*sw+i]
			for dy := 0; dy < scaleY; dy++ {
				for dx := 0; dx < scaleX; dx++ {
					b.Set(box.X+i*scaleX+dx, box.Y+j*scaleY+dy, v)
				}
			}
		}
	}
	return true
}

// RetrieveData reads box out into a row-major box.W x box.H slice. It never
// downsamples: the caller gets exactly one value per cell in box.
func (b *CellBuffer) RetrieveData(box Box) []float64 {
	out := make([]float64, box.W*box.H)
	for j := 0; j < box.H; j++ {
		for i := 0; i < box.W; i++ {
			out[j*box.W+i] = b.Get(box.X+i, box.Y+j)
		}
	}
	return out
}

// ReduceOp names a sequentialOp reduction kernel.
type ReduceOp int

const (
	OpAdd ReduceOp = iota
	OpMul
	OpMin
	OpMinAbs
	OpMax
	OpMaxAbs
)

// initialAcc returns op's identity accumulator: the value sequentialOp seeds
// the reduction with before visiting any cell.
func initialAcc(op ReduceOp) float64 {
	switch op {
	case OpMul:
		return 1
	case OpMin, OpMinAbs:
		return math.Inf(1)
	case OpMax:
		return math.Inf(-1)
	case OpMaxAbs:
		return 0
	default: // OpAdd
		return 0
	}
}

func applyOp(acc, v float64, op ReduceOp) float64 {
	switch op {
	case OpAdd:
		return acc + v
	case OpMul:
		return acc * v
	case OpMin:
		if v < acc {
			return v
		}
	case OpMinAbs:
		if av := math.Abs(v); av < acc {
			return av
		}
	case OpMax:
		if v > acc {
			return v
		}
	case OpMaxAbs:
		if av := math.Abs(v); av > acc {
			return av
		}
	}
	return acc
}

// SequentialOp folds every interior cell addressed by bl through op, in box
// order, starting from op's identity accumulator.
func (b *CellBuffer) SequentialOp(bl *BoxList, op ReduceOp) float64 {
	acc := initialAcc(op)
	for _, box := range bl.Boxes() {
		for y := box.Y; y < box.Y1(); y++ {
			for x := box.X; x < box.X1(); x++ {
				acc = applyOp(acc, b.Get(x, y), op)
			}
		}
	}
	return acc
}

// BorderSide identifies one of the four sides of the grid's ghost ring.
type BorderSide int

const (
	BorderEast BorderSide = iota
	BorderWest
	BorderNorth
	BorderSouth
)

// BorderSegment addresses a contiguous run of border cells along one side,
// spanning the interior coordinate range [Start, End).
type BorderSegment struct {
	Side       BorderSide
	Start, End int
}

func (s BorderSegment) cells(g *Grid) [][2]int {
	var out [][2]int
	switch s.Side {
	case BorderEast:
		for y := s.Start; y < s.End; y++ {
			out = append(out, [2]int{g.Nx, y})
		}
	case BorderWest:
		for y := s.Start; y < s.End; y++ {
			out = append(out, [2]int{-1, y})
		}
	case BorderNorth:
		for x := s.Start; x < s.End; x++ {
			out = append(out, [2]int{x, g.Ny})
		}
	case BorderSouth:
		for x := s.Start; x < s.End; x++ {
			out = append(out, [2]int{x, -1})
		}
	}
	return out
}

// interiorNeighbor returns the innermost interior cell adjacent to the
// border cell (x,y).
func interiorNeighbor(g *Grid, x, y int) (int, int) {
	if x == g.Nx {
		x = g.Nx - 1
	} else if x == -1 {
		x = 0
	}
	if y == g.Ny {
		y = g.Ny - 1
	} else if y == -1 {
		y = 0
	}
	return x, y
}

// Borders is a set of BorderSegments addressed together by BordersValue and
// BordersShift — e.g. "every cell along the north edge" or a single corner.
type Borders struct {
	Segments []BorderSegment
}

// BorderOp names the arithmetic BordersValue applies at each addressed
// cell.
type BorderOp int

const (
	BorderEqual BorderOp = iota
	BorderAdd
	BorderSub
	BorderMul
	BorderDiv
)

// BordersValue applies op with operand v to every cell addressed by
// borders. BorderEqual overwrites; the others combine with the cell's
// current value.
func (b *CellBuffer) BordersValue(borders Borders, v float64, op BorderOp) {
	for _, seg := range borders.Segments {
		for _, c := range seg.cells(b.g) {
			switch op {
			case BorderEqual:
				b.Set(c[0], c[1], v)
			case BorderAdd:
				b.Add(c[0], c[1], v)
			case BorderSub:
				b.Add(c[0], c[1], -v)
			case BorderMul:
				b.Set(c[0], c[1], b.Get(c[0], c[1])*v)
			case BorderDiv:
				if v != 0 {
					b.Set(c[0], c[1], b.Get(c[0], c[1])/v)
				}
			}
		}
	}
}

// BordersShift copies each addressed border cell's adjacent innermost
// interior cell value into it, the open-boundary "water flows off the edge
// of the world and the edge just mirrors what's next to it" condition. It
// never touches any interior cell.
func (b *CellBuffer) BordersShift(borders Borders) {
	for _, seg := range borders.Segments {
		for _, c := range seg.cells(b.g) {
			ix, iy := interiorNeighbor(b.g, c[0], c[1])
			b.Set(c[0], c[1], b.Get(ix, iy))
		}
	}
}

// Direction identifies one of the four edges of a cell, used to index
// EdgeBuffer and to orient stencil kernels.
type Direction int

const (
	East Direction = iota
	West
	North
	South
)

// edgeOffsets gives the (dx, dy) of the neighbor across an edge.
var edgeOffsets = map[Direction][2]int{
	East:  {1, 0},
	West:  {-1, 0},
	North: {0, 1},
	South: {0, -1},
}

// Neighbor returns the coordinates of the cell adjacent to (x,y) across dir.
func (d Direction) Neighbor(x, y int) (int, int) {
	o := edgeOffsets[d]
	return x + o[0], y + o[1]
}

// Opposite returns the direction pointing back across the same edge.
func (d Direction) Opposite() Direction {
	switch d {
	case East:
		return West
	case West:
		return East
	case North:
		return South
	default:
		return North
	}
}

// EdgeBuffer holds one float64 per cell per direction — outflow discharges
// and interface velocities, which live on edges rather than cell centers.
type EdgeBuffer struct {
	g    *Grid
	data [4]*sparse.DenseArray
}

// NewEdgeBuffer allocates a zero-filled edge buffer sized to g.
func NewEdgeBuffer(g *Grid) *EdgeBuffer {
	eb := &EdgeBuffer{g: g}
	for i := range eb.data {
		eb.data[i] = sparse.ZerosDense(g.bufNy(), g.bufNx())
	}
	return eb
}

// Get returns the value on the dir edge of cell (x,y).
func (eb *EdgeBuffer) Get(x, y int, dir Direction) float64 {
	return eb.data[dir].Get(y+border, x+border)
}

// Set stores v on the dir edge of cell (x,y).
func (eb *EdgeBuffer) Set(x, y int, dir Direction, v float64) {
	eb.data[dir].Set(v, y+border, x+border)
}

// Add adds v to the current value on the dir edge of cell (x,y).
func (eb *EdgeBuffer) Add(x, y int, dir Direction, v float64) float64 {
	nv := eb.Get(x, y, dir) + v
	eb.Set(x, y, dir, nv)
	return nv
}

// Fill sets every edge of every interior cell to v.
func (eb *EdgeBuffer) Fill(v float64) {
	for y := 0; y < eb.g.Ny; y++ {
		for x := 0; x < eb.g.Nx; x++ {
			for d := East; d <= South; d++ {
				eb.Set(x, y, d, v)
			}
		}
	}
}

// Grid returns the Grid this buffer was allocated against.
func (eb *EdgeBuffer) Grid() *Grid { return eb.g }

// Reduce5 folds every edge of every cell in box through op, returning the
// conventional 5-value layout: index 0 is an unused placeholder, indices 1
// and 3 both carry the East/West statistic, indices 2 and 4 both carry the
// North/South statistic — the two directions sharing an axis share one
// logical reduction.
func (eb *EdgeBuffer) Reduce5(box Box, op ReduceOp) [5]float64 {
	we := initialAcc(op)
	ns := initialAcc(op)
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			we = applyOp(we, eb.Get(x, y, East), op)
			we = applyOp(we, eb.Get(x, y, West), op)
			ns = applyOp(ns, eb.Get(x, y, North), op)
			ns = applyOp(ns, eb.Get(x, y, South), op)
		}
	}
	return [5]float64{0, we, ns, we, ns}
}
