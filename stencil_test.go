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
	"testing"
)

func flatState(n int, depth float64) *State {
	g := NewGrid(n, n, 1, 0, 0)
	s := NewState(g)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			s.Mask.SetClass(x, y, ClassActive)
			s.Mann.Set(x, y, 0.03)
		}
	}
	s.WD.FillBox(g.FullBox(), depth)
	return s
}

func totalVolume(s *State, box Box) float64 {
	return s.WD.SumBox(box) * cellArea(s)
}

// TestOutflowConservesVolume is the S1 scenario: a flat pond with no
// elevation gradient should exchange zero net discharge, since there is no
// head difference to drive outflow, so volume is exactly conserved.
func TestOutflowConservesVolume(t *testing.T) {
	s := flatState(5, 1.0)
	before := totalVolume(s, s.Elv.Grid().FullBox())

	box := s.Elv.Grid().FullBox()
	OutflowWCA2D(s, box, VariantWCA2Dv1, 1.0, 0, nil)
	ApplyDischarge(s, box, 1.0)

	after := totalVolume(s, box)
	if math.Abs(after-before) > 1e-9 {
		t.Errorf("flat pond volume changed: before=%v after=%v", before, after)
	}
}

// TestOutflowSlopedColumn is the S2 scenario: a column of cells with a
// monotonically decreasing elevation should only ever discharge downhill,
// never uphill.
func TestOutflowSlopedColumn(t *testing.T) {
	g := NewGrid(5, 1, 1, 0, 0)
	s := NewState(g)
	for x := 0; x < 5; x++ {
		s.Mask.SetClass(x, 0, ClassActive)
		s.Elv.Set(x, 0, float64(5-x))
		s.WD.Set(x, 0, 1.0)
		s.Mann.Set(x, 0, 0.03)
	}
	box := g.FullBox()
	OutflowWCA2D(s, box, VariantWCA2Dv1, 0.1, 0, nil)

	for x := 0; x < 4; x++ {
		if q := s.Q.Get(x, 0, East); q < 0 {
			t.Errorf("cell %d discharges uphill to the east: Q=%v", x, q)
		}
		if q := s.Q.Get(x, 0, West); q != 0 {
			t.Errorf("cell %d should not discharge uphill to the west: Q=%v", x, q)
		}
	}
}

func TestOutflowConservesVolumeWithSlope(t *testing.T) {
	g := NewGrid(5, 1, 1, 0, 0)
	s := NewState(g)
	for x := 0; x < 5; x++ {
		s.Mask.SetClass(x, 0, ClassActive)
		s.Elv.Set(x, 0, float64(5-x))
		s.WD.Set(x, 0, 1.0)
		s.Mann.Set(x, 0, 0.03)
	}
	box := g.FullBox()
	before := totalVolume(s, box)

	OutflowWCA2D(s, box, VariantWCA2Dv1, 0.1, 0, nil)
	ApplyDischarge(s, box, 0.1)

	after := totalVolume(s, box)
	if math.Abs(after-before) > 1e-9 {
		t.Errorf("sloped column volume not conserved: before=%v after=%v", before, after)
	}
}

func TestOutflowDryCellNoDischarge(t *testing.T) {
	s := flatState(3, 0)
	box := s.Elv.Grid().FullBox()
	OutflowWCA2D(s, box, VariantWCA2Dv1, 1.0, 0, nil)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			for d := East; d <= South; d++ {
				if q := s.Q.Get(x, y, d); q != 0 {
					t.Fatalf("dry cell (%d,%d) discharged: Q[%v]=%v", x, y, d, q)
				}
			}
		}
	}
}

func TestVariantsBothConserveVolume(t *testing.T) {
	for _, v := range []Variant{VariantWCA2Dv1, VariantWCA2Dv2} {
		g := NewGrid(4, 4, 1, 0, 0)
		s := NewState(g)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				s.Mask.SetClass(x, y, ClassActive)
				s.Elv.Set(x, y, float64(4-x-y))
				s.WD.Set(x, y, 0.5)
				s.Mann.Set(x, y, 0.03)
			}
		}
		box := g.FullBox()
		before := totalVolume(s, box)
		OutflowWCA2D(s, box, v, 0.05, 0.05, nil)
		ApplyDischarge(s, box, 0.05)
		after := totalVolume(s, box)
		if math.Abs(after-before) > 1e-9 {
			t.Errorf("variant %v: volume not conserved: before=%v after=%v", v, before, after)
		}
	}
}

// TestIgnoreWDSuppressesOutflow checks that a cell at or below the IgnoreWD
// tolerance never discharges even with a steep downhill neighbor.
func TestIgnoreWDSuppressesOutflow(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Tol.IgnoreWD = 0.01
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 10)
	s.Elv.Set(1, 0, 0)
	s.WD.Set(0, 0, 0.005)
	s.Mann.Set(0, 0, 0.03)
	s.Mann.Set(1, 0, 0.03)

	OutflowWCA2D(s, g.FullBox(), VariantWCA2Dv1, 0.1, 0, nil)
	if q := s.Q.Get(0, 0, East); q != 0 {
		t.Errorf("cell below IgnoreWD discharged: Q=%v", q)
	}
}

// TestTolDelWLTreatsSmallHeadDifferenceAsFlat checks that a water-surface
// difference under TolDelWL produces no outflow toward that neighbor, even
// though it is nominally downhill.
func TestTolDelWLTreatsSmallHeadDifferenceAsFlat(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Tol.TolDelWL = 0.01
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 1.0)
	s.Elv.Set(1, 0, 1.0-0.001) // head difference well under TolDelWL
	s.WD.Set(0, 0, 1.0)
	s.WD.Set(1, 0, 1.0)
	s.Mann.Set(0, 0, 0.03)
	s.Mann.Set(1, 0, 0.03)

	OutflowWCA2D(s, g.FullBox(), VariantWCA2Dv1, 0.1, 0, nil)
	if q := s.Q.Get(0, 0, East); q != 0 {
		t.Errorf("head difference below TolDelWL should not drive outflow: Q=%v", q)
	}
}

// TestOutflowClippedAtCriticalVelocity checks that even an enormous head
// difference cannot push more volume across an edge in one step than the
// critical velocity sqrt(g*depth) allows.
func TestOutflowClippedAtCriticalVelocity(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 1000)
	s.Elv.Set(1, 0, 0)
	s.WD.Set(0, 0, 1.0)
	s.Mann.Set(0, 0, 0.03)
	s.Mann.Set(1, 0, 0.03)

	dt := 0.1
	OutflowWCA2D(s, g.FullBox(), VariantWCA2Dv1, dt, 0, nil)

	depth := 1.0
	critical := math.Sqrt(gravity * depth)
	maxQ := critical * g.CellLength * depth
	if q := s.Q.Get(0, 0, East); q > maxQ+1e-9 {
		t.Errorf("outflow exceeded critical-velocity bound: Q=%v, max=%v", q, maxQ)
	}
}

// TestOutflowV1AccumulatesPTOT checks that repeated v1 outflow calls
// accumulate into the period-total buffer rather than overwriting it.
func TestOutflowV1AccumulatesPTOT(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 1)
	s.Elv.Set(1, 0, 0)
	s.WD.Set(0, 0, 1.0)
	s.Mann.Set(0, 0, 0.03)
	s.Mann.Set(1, 0, 0.03)

	box := g.FullBox()
	OutflowWCA2D(s, box, VariantWCA2Dv1, 0.01, 0, nil)
	first := s.PTOT.Get(0, 0, East)
	if first <= 0 {
		t.Fatalf("expected positive period total after first call, got %v", first)
	}
	OutflowWCA2D(s, box, VariantWCA2Dv1, 0.01, 0, nil)
	second := s.PTOT.Get(0, 0, East)
	if second <= first {
		t.Errorf("PTOT did not accumulate: first=%v second=%v", first, second)
	}
	s.ResetPeriodTotals()
	if got := s.PTOT.Get(0, 0, East); got != 0 {
		t.Errorf("ResetPeriodTotals left PTOT=%v, want 0", got)
	}
}

// TestOutflowV2CarriesInertiaAndSwaps checks the double-buffer carry: v2's
// current-iteration outflow includes ratio_dt times the previous iteration's
// outflow, and SwapOutflowBuffers rotates which buffer is "current" for the
// next call.
func TestOutflowV2CarriesInertiaAndSwaps(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 1)
	s.Elv.Set(1, 0, 0)
	s.WD.Set(0, 0, 1.0)
	s.Mann.Set(0, 0, 0.03)
	s.Mann.Set(1, 0, 0.03)

	box := g.FullBox()
	dt := 0.01
	OutflowWCA2D(s, box, VariantWCA2Dv2, dt, dt, nil)
	firstQ := s.Q.Get(0, 0, East)
	s.SwapOutflowBuffers()

	OutflowWCA2D(s, box, VariantWCA2Dv2, dt, dt, nil)
	secondQ := s.Q.Get(0, 0, East)
	if secondQ <= firstQ {
		t.Errorf("expected v2's inertia carry to increase outflow across iterations: first=%v second=%v", firstQ, secondQ)
	}
}

// TestOutflowRaisesBorderAlarmOnBoundaryCrossing checks that outflow toward
// an inactive but data-holding neighbor raises the latch.
func TestOutflowRaisesBorderAlarmOnBoundaryCrossing(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.NoData = -9999
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassInactive)
	s.Elv.Set(0, 0, 1)
	s.Elv.Set(1, 0, 0) // data-holding, not NODATA
	s.WD.Set(0, 0, 1.0)
	s.Mann.Set(0, 0, 0.03)

	alarm := NewBorderAlarm()
	alarm.DeactivateAll()
	alarm.Set()
	OutflowWCA2D(s, g.FullBox(), VariantWCA2Dv1, 0.1, 0, alarm)
	if !alarm.Get() {
		t.Errorf("expected border alarm to be raised by outflow toward data-holding inactive neighbor")
	}
}

func TestInfiltrationNeverNegative(t *testing.T) {
	s := flatState(2, 0.01)
	box := s.Elv.Grid().FullBox()
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			s.InfRate.Set(x, y, 1.0) // far larger than available depth over dt
		}
	}
	Infiltrate(s, box, 1.0)
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			if d := s.WD.Get(x, y); d < 0 {
				t.Errorf("depth went negative at (%d,%d): %v", x, y, d)
			}
		}
	}
}

func TestUpdatePeaksMonotone(t *testing.T) {
	s := flatState(2, 1.0)
	box := s.Elv.Grid().FullBox()
	UpdatePeaks(s, box)
	s.WD.FillBox(box, 0.2)
	UpdatePeaks(s, box)
	if got := s.PeakD.Get(0, 0); got != 1.0 {
		t.Errorf("peak depth dropped after depth decreased: got %v, want 1.0", got)
	}
}

// TestRemoveUpstreamPrunesOnlyCellsAboveElevation is the elevation-based
// pruning rule: only active cells whose terrain elevation lies above
// upstrElv are demoted, regardless of their current water depth.
func TestRemoveUpstreamPrunesOnlyCellsAboveElevation(t *testing.T) {
	s := flatState(2, 0)
	box := s.Elv.Grid().FullBox()
	s.Elv.Set(0, 0, 100)
	s.Elv.Set(1, 1, 5)
	s.WD.Set(1, 1, 5.0) // low elevation cell holds water; only elevation decides pruning

	shrink := RemoveUpstream(s, box, 50)
	if s.Mask.Class(0, 0) != ClassInactive {
		t.Errorf("cell above upstrElv should be pruned regardless of depth")
	}
	if s.Mask.Class(1, 1) != ClassActive {
		t.Errorf("cell at or below upstrElv must not be pruned")
	}
	if shrink.Empty() {
		t.Errorf("expected a non-empty shrink region")
	}
}

// TestVelocityWCA2DRaisesAlarmOnUpstreamMotion checks that nonzero velocity
// at or above the upstream-pruning elevation raises the latch, so pruning
// can be deferred while that cell is still draining.
func TestVelocityWCA2DRaisesAlarmOnUpstreamMotion(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 100)
	s.WD.Set(0, 0, 1.0)
	s.PTOT.Set(0, 0, East, 10)

	alarm := NewBorderAlarm()
	alarm.DeactivateAll()
	alarm.Set()
	VelocityWCA2D(s, g.FullBox(), 1.0, 50, alarm)
	if !alarm.Get() {
		t.Errorf("expected alarm raised for motion at a cell above upstrElv")
	}
}

func TestVelocityDiffusiveWritesFinitePDTOnWetCell(t *testing.T) {
	g := NewGrid(2, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.SetClass(0, 0, ClassActive)
	s.Mask.SetClass(1, 0, ClassActive)
	s.Elv.Set(0, 0, 1)
	s.Elv.Set(1, 0, 0)
	s.WD.Set(0, 0, 1.0)
	s.Mann.Set(0, 0, 0.03)

	VelocityDiffusive(s, g.FullBox())
	if pdt := s.PDT.Get(0, 0); math.IsInf(pdt, 1) || pdt <= 0 {
		t.Errorf("expected a finite positive diffusive dt for a wet sloped cell, got %v", pdt)
	}
}

func TestVelocityDiffusiveDryCellHasInfinitePDT(t *testing.T) {
	g := NewGrid(1, 1, 1, 0, 0)
	s := NewState(g)
	s.Mask.SetClass(0, 0, ClassActive)
	VelocityDiffusive(s, g.FullBox())
	if pdt := s.PDT.Get(0, 0); !math.IsInf(pdt, 1) {
		t.Errorf("expected an unconstrained (infinite) dt for a dry cell, got %v", pdt)
	}
}
