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

// TestDTQuantizationIsMultiple is the S3 scenario: time_maxdt=60,
// time_mindt=0.1, and a CFL candidate of dtn1=7.3 must quantize to
// dtfrac=9 (the smallest fraction of time_maxdt no greater than dtn1),
// giving dt=60/9.
func TestDTQuantizationIsMultiple(t *testing.T) {
	c := NewDTController(VariantWCA2Dv1, 0.1, 60, 0.7, 0)

	got := c.quantizeFraction(7.3)
	if c.prevFrac != 9 {
		t.Errorf("dtfrac = %v, want 9", c.prevFrac)
	}
	want := 60.0 / 9.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("dt = %v, want %v", got, want)
	}
}

// TestDTQuantizationNeverExceedsCandidate is property 5: the quantized step
// is never greater than the CFL candidate it was derived from.
func TestDTQuantizationNeverExceedsCandidate(t *testing.T) {
	c := NewDTController(VariantWCA2Dv1, 0.1, 60, 0.7, 0)
	for _, dtn1 := range []float64{7.3, 1.0, 59.9, 0.2, 30} {
		got := c.quantizeFraction(dtn1)
		if got > dtn1+1e-9 {
			t.Errorf("quantizeFraction(%v) = %v, want <= candidate", dtn1, got)
		}
	}
}

func TestDTControllerClampsToBounds(t *testing.T) {
	c := NewDTController(VariantWCA2Dv1, 1, 5, 1.0, 0)
	s := flatState(2, 0) // no velocity, no depth: wave speed is zero
	box := s.Elv.Grid().FullBox()
	if got := c.cfl(s, box); got != c.Max {
		t.Errorf("zero-wave-speed cfl should saturate at Max: got %v, want %v", got, c.Max)
	}
}

func TestDTControllerTickHoldsBetweenUpdates(t *testing.T) {
	c := NewDTController(VariantWCA2Dv1, 1, 5, 1.0, 100)
	s := flatState(2, 0)
	box := s.Elv.Grid().FullBox()
	first := c.Current()
	got := c.Tick(s, box, 1)
	if got != first {
		t.Errorf("dt should not change before a full update period elapses: got %v, want %v", got, first)
	}
}

func TestCandidateBoundedByEventPotentialVA(t *testing.T) {
	c := NewDTController(VariantWCA2Dv1, 0.1, 60, 0.5, 0)
	s := flatState(2, 0) // still water: the flow-field CFL saturates at Max
	box := s.Elv.Grid().FullBox()

	if got := c.candidate(s, box); got != c.Max {
		t.Fatalf("candidate with no events = %v, want %v", got, c.Max)
	}

	c.PotentialVA = func() float64 { return 1.0 }
	// alpha * cellLength / va = 0.5 * 1 / 1
	if got := c.candidate(s, box); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("candidate with potential va = %v, want 0.5", got)
	}
}

func TestCandidateUsesDiffusivePDTMinimum(t *testing.T) {
	c := NewDTController(VariantWCA2Dv2, 0.1, 60, 0.5, 0)
	s := flatState(2, 0)
	box := s.Elv.Grid().FullBox()
	s.PDT.FillBox(box, 2.5)
	s.PDT.Set(1, 1, 1.7)

	if got := c.candidate(s, box); math.Abs(got-1.7) > 1e-12 {
		t.Errorf("v2 candidate = %v, want the PDT minimum 1.7", got)
	}
}

func TestCandidateResistsTransientPDTSpike(t *testing.T) {
	c := NewDTController(VariantWCA2Dv2, 0.1, 60, 0.5, 0)
	s := flatState(2, 0)
	box := s.Elv.Grid().FullBox()

	s.PDT.FillBox(box, 5.0)
	if got := c.candidate(s, box); math.Abs(got-5.0) > 1e-12 {
		t.Fatalf("first v2 candidate = %v, want 5", got)
	}

	// a PDT collapse below Min while the previous estimate was comfortably
	// larger is treated as a transient and the previous value is kept.
	s.PDT.FillBox(box, 0.01)
	if got := c.candidate(s, box); math.Abs(got-5.0) > 1e-12 {
		t.Errorf("candidate after a transient collapse = %v, want the held 5", got)
	}
}
