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

import "testing"

func TestMaskActiveBoxesConsistency(t *testing.T) {
	g := NewGrid(5, 5, 1, 0, 0)
	m := NewMask(g)
	for y := 1; y < 4; y++ {
		for x := 1; x < 4; x++ {
			m.SetClass(x, y, ClassActive)
		}
	}
	bl := m.ActiveBoxes()

	var active int
	for y := 0; y < g.Ny; y++ {
		for x := 0; x < g.Nx; x++ {
			if m.Active(x, y) {
				active++
			}
		}
	}

	var boxed int
	for _, b := range bl.Boxes() {
		boxed += b.W * b.H
	}
	if boxed != active {
		t.Errorf("ActiveBoxes covers %d cells, mask has %d active cells", boxed, active)
	}

	// every cell the mask calls active must fall inside some box, and vice
	// versa: the box list and the mask must agree exactly.
	for y := 0; y < g.Ny; y++ {
		for x := 0; x < g.Nx; x++ {
			if m.Active(x, y) != bl.Contains(x, y) {
				t.Fatalf("mask/boxlist disagree at (%d,%d): mask=%v boxlist=%v", x, y, m.Active(x, y), bl.Contains(x, y))
			}
		}
	}
}

func TestApplyBoundaryElevation(t *testing.T) {
	g := NewGrid(3, 1, 1, 0, 0)
	m := NewMask(g)
	elv := NewCellBuffer(g)
	elv.Set(0, 0, 10)
	elv.Set(1, 0, 20)
	elv.Set(2, 0, 30)
	m.SetClass(0, 0, ClassBoundary)
	m.SetClass(1, 0, ClassActive)
	m.SetClass(2, 0, ClassBoundary)

	m.ApplyBoundaryElevation(elv, 5)

	if got := elv.Get(0, 0); got != 5 {
		t.Errorf("boundary cell elevation = %v, want 5", got)
	}
	if got := elv.Get(1, 0); got != 20 {
		t.Errorf("active cell elevation should be untouched: got %v, want 20", got)
	}
	if got := elv.Get(2, 0); got != 5 {
		t.Errorf("boundary cell elevation = %v, want 5", got)
	}
}

func TestMaskExpand(t *testing.T) {
	g := NewGrid(5, 5, 1, 0, 0)
	m := NewMask(g)
	m.NoData = -9999
	elv := NewCellBuffer(g)
	m.SetClass(2, 2, ClassActive)

	// one ring around {2,2,1,1}: the active cell grows to the full 3x3
	// block, corners included.
	ring := Box{X: 1, Y: 1, W: 3, H: 3}
	grown := m.Expand(ring, elv)
	if grown.Empty() {
		t.Fatalf("expected at least one newly-activated cell")
	}
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			if !m.Active(x, y) {
				t.Errorf("expected ring cell (%d,%d) to become active", x, y)
			}
		}
	}
	if m.Active(0, 0) {
		t.Errorf("cell outside the ring should not have activated")
	}
}

func TestMaskRestrictActiveTo(t *testing.T) {
	const nodata = -9999.0
	g := NewGrid(4, 4, 1, 0, 0)
	m := NewMask(g)
	elv := NewCellBuffer(g)
	elv.Fill(10)
	elv.Set(3, 3, nodata)
	m.DeriveBoundary(elv, nodata)

	seed := NewBoxList()
	seed.Add(Box{X: 1, Y: 1, W: 1, H: 1})
	m.RestrictActiveTo(seed)

	if !m.Active(1, 1) {
		t.Errorf("the seed cell must stay active")
	}
	if m.Class(0, 0) != ClassInactive {
		t.Errorf("data cell outside the seed should have been demoted to inactive")
	}
	if m.Class(3, 3) != ClassBoundary {
		t.Errorf("boundary cells must be left untouched, got %v", m.Class(3, 3))
	}
	// the demoted cell still holds terrain data, so expansion can later
	// promote it back.
	if elv.Get(0, 0) == m.NoData {
		t.Fatalf("demoted cell lost its data-holding status")
	}
}

func TestMaskExpandSkipsNoData(t *testing.T) {
	g := NewGrid(3, 1, 1, 0, 0)
	m := NewMask(g)
	m.NoData = -9999
	elv := NewCellBuffer(g)
	elv.Set(1, 0, -9999)
	m.SetClass(0, 0, ClassActive)

	m.Expand(g.FullBox(), elv)
	if m.Active(1, 0) {
		t.Errorf("NODATA neighbor must not be activated regardless of adjacency")
	}
}

// TestDeriveBoundaryMatchesConsistencyInvariant is property 2: a cell's
// boundary bit is set if and only if it is NODATA and has at least one
// data-holding neighbor.
func TestDeriveBoundaryMatchesConsistencyInvariant(t *testing.T) {
	const nodata = -9999.0
	g := NewGrid(4, 1, 1, 0, 0)
	m := NewMask(g)
	elv := NewCellBuffer(g)
	// Use a 5-wide row instead: data, NODATA (touches data -> boundary),
	// NODATA with no data-holding neighbor (-> inactive), NODATA (touches
	// data -> boundary), data.
	g = NewGrid(5, 1, 1, 0, 0)
	m = NewMask(g)
	elv = NewCellBuffer(g)
	elv.Set(0, 0, 10)
	elv.Set(1, 0, nodata)
	elv.Set(2, 0, nodata)
	elv.Set(3, 0, nodata)
	elv.Set(4, 0, 20)

	m.DeriveBoundary(elv, nodata)

	want := []CellClass{ClassActive, ClassBoundary, ClassInactive, ClassBoundary, ClassActive}
	for x, w := range want {
		if got := m.Class(x, 0); got != w {
			t.Errorf("Class(%d,0) = %v, want %v", x, got, w)
		}
	}
}
