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

// CellClass classifies a single cell for purposes of stencil dispatch and
// boundary handling.
type CellClass int

const (
	// ClassInactive cells never compute and never receive flow; they mark
	// NODATA/outside-domain terrain.
	ClassInactive CellClass = iota
	// ClassActive cells compute the full stencil every step.
	ClassActive
	// ClassBoundary cells sit on the active domain's perimeter: they receive
	// inflow/outflow from interior neighbors but their own elevation is
	// overridden by the boundary condition rather than read from the DEM.
	ClassBoundary
)

// Mask records, per cell, whether it participates in the simulation and how.
// It is the authoritative record of the active domain: a cell is part of the
// computational domain if and only if its class is not ClassInactive.
type Mask struct {
	g      *Grid
	cls    []CellClass // row-major over the bordered buffer, same indexing as CellBuffer
	NoData float64     // the elevation sentinel DeriveBoundary/Expand use to recognize NODATA cells
}

// NewMask allocates a Mask with every cell ClassInactive.
func NewMask(g *Grid) *Mask {
	return &Mask{g: g, cls: make([]CellClass, g.bufNx()*g.bufNy())}
}

func (m *Mask) at(x, y int) int {
	row := y + border
	col := x + border
	return row*m.g.bufNx() + col
}

// Class returns the classification of cell (x,y).
func (m *Mask) Class(x, y int) CellClass { return m.cls[m.at(x, y)] }

// SetClass sets the classification of cell (x,y).
func (m *Mask) SetClass(x, y int, c CellClass) { m.cls[m.at(x, y)] = c }

// Active reports whether (x,y) is part of the computational domain.
func (m *Mask) Active(x, y int) bool { return m.Class(x, y) != ClassInactive }

// Grid returns the Grid this mask was allocated against.
func (m *Mask) Grid() *Grid { return m.g }

// ActiveBoxes scans the mask and returns a BoxList whose union is exactly
// the set of active cells, built one box per maximal run of active cells in
// a scanline, then merged via BoxList.Add so the result satisfies the
// disjointness invariant.
func (m *Mask) ActiveBoxes() *BoxList {
	bl := NewBoxList()
	for y := 0; y < m.g.Ny; y++ {
		runStart := -1
		for x := 0; x < m.g.Nx; x++ {
			if m.Active(x, y) {
				if runStart < 0 {
					runStart = x
				}
			} else if runStart >= 0 {
				bl.Add(Box{X: runStart, Y: y, W: x - runStart, H: 1})
				runStart = -1
			}
		}
		if runStart >= 0 {
			bl.Add(Box{X: runStart, Y: y, W: m.g.Nx - runStart, H: 1})
		}
	}
	return bl
}

// DeriveBoundary classifies every cell of the grid from elv against nodata,
// implementing the mask-consistency invariant: a cell holding data
// (elv != nodata) is ClassActive; a NODATA cell with at least one
// data-holding neighbor is ClassBoundary (it never computes its own
// stencil, but it does receive flux and forcing from the interior); every
// other NODATA cell is ClassInactive. It also records nodata as m.NoData so
// Expand recognizes the same sentinel later.
func (m *Mask) DeriveBoundary(elv *CellBuffer, nodata float64) {
	m.NoData = nodata
	for y := 0; y < m.g.Ny; y++ {
		for x := 0; x < m.g.Nx; x++ {
			if elv.Get(x, y) != nodata {
				m.SetClass(x, y, ClassActive)
				continue
			}
			boundary := false
			for d := East; d <= South; d++ {
				nx, ny := d.Neighbor(x, y)
				if nx < 0 || ny < 0 || nx >= m.g.Nx || ny >= m.g.Ny {
					continue
				}
				if elv.Get(nx, ny) != nodata {
					boundary = true
					break
				}
			}
			if boundary {
				m.SetClass(x, y, ClassBoundary)
			} else {
				m.SetClass(x, y, ClassInactive)
			}
		}
	}
}

// ApplyBoundaryElevation overwrites ELV at every ClassBoundary cell with the
// supplied still-water level: boundary cells do not use the DEM elevation,
// they use the prescribed boundary condition so that outflow stencils see
// the right head difference against the open edge.
func (m *Mask) ApplyBoundaryElevation(elv *CellBuffer, level float64) {
	for y := 0; y < m.g.Ny; y++ {
		for x := 0; x < m.g.Nx; x++ {
			if m.Class(x, y) == ClassBoundary {
				elv.Set(x, y, level)
			}
		}
	}
}

// RestrictActiveTo demotes every ClassActive cell outside bl back to
// ClassInactive. DeriveBoundary marks every data-holding cell active; when
// dynamic expansion is enabled, the run instead starts from a small seed
// region (the event areas) and grows outward, so the data cells outside the
// seed must begin inactive — still holding valid terrain, just not yet part
// of the computation. Boundary cells are left untouched.
func (m *Mask) RestrictActiveTo(bl *BoxList) {
	for y := 0; y < m.g.Ny; y++ {
		for x := 0; x < m.g.Nx; x++ {
			if m.Class(x, y) == ClassActive && !bl.Contains(x, y) {
				m.SetClass(x, y, ClassInactive)
			}
		}
	}
}

// Expand promotes every data-holding ClassInactive cell within box to
// ClassActive. The caller passes the one-ring-grown extension of a
// computational-domain box, so a single active cell grows to the full
// surrounding block, corners included, not just its orthogonal neighbors.
// It returns the set of newly activated cells as a Box-covering BoxList,
// which the caller unions into the running active BoxList. Cells at
// m.NoData elevation never activate.
func (m *Mask) Expand(box Box, elv *CellBuffer) *BoxList {
	grown := NewBoxList()
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if m.Class(x, y) != ClassInactive {
				continue
			}
			if elv.Get(x, y) == m.NoData {
				continue // NODATA terrain never activates
			}
			m.SetClass(x, y, ClassActive)
			grown.Add(Box{X: x, Y: y, W: 1, H: 1})
		}
	}
	return grown
}
