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

import "math"

// DTController adapts the simulation time step once per update period,
// recomputing a stable step from the current flow field rather than fixing
// it once at startup, and holding that step in between.
type DTController struct {
	Variant  Variant
	Min, Max float64 // hard floor/ceiling on dt, seconds
	Alpha    float64 // Courant safety factor, 0 < Alpha <= 1

	// PotentialVA, when non-nil, supplies the largest velocity any active
	// event manager could imply over the coming update period; the
	// controller folds alpha*cellLength/PotentialVA() into its candidate
	// step so a forcing about to dump a large volume can't outrun the CFL
	// bound before the next re-evaluation.
	PotentialVA func() float64

	updatePeriod float64 // seconds between controller re-evaluations
	sinceUpdate  float64
	current      float64
	prevFrac     int     // last fraction dt was quantized to: Max/prevFrac
	prevPossible float64 // previous diffusive Min(PDT) candidate (v2)
}

// NewDTController returns a controller seeded at its minimum step.
func NewDTController(variant Variant, min, max, alpha, updatePeriod float64) *DTController {
	return &DTController{
		Variant:      variant,
		Min:          min,
		Max:          max,
		Alpha:        alpha,
		updatePeriod: updatePeriod,
		current:      min,
		prevFrac:     1,
	}
}

// Current returns the step the controller last computed.
func (c *DTController) Current() float64 { return c.current }

// UpdatePeriod returns the controller's re-evaluation period in seconds.
func (c *DTController) UpdatePeriod() float64 { return c.updatePeriod }

// Advance accumulates the step just taken against the internal update-period
// clock and reports whether a full period has now elapsed — the signal that
// the caller should run its period-boundary work (velocity kernels,
// infiltration, event re-preparation) and then call Update.
func (c *DTController) Advance(dtTaken float64) bool {
	c.sinceUpdate += dtTaken
	if c.sinceUpdate < c.updatePeriod {
		return false
	}
	c.sinceUpdate = 0
	return true
}

// Update recomputes dt from the current flow field, to be called at a
// period boundary after the velocity kernels have refreshed V (and, for
// v2, PDT). It returns the step to use until the next boundary.
func (c *DTController) Update(s *State, box Box) float64 {
	c.current = c.quantizeFraction(c.candidate(s, box))
	return c.current
}

// Tick advances the controller's internal update-period clock by the step
// just taken, and recomputes dt from state if a full update period has
// elapsed. It returns the step to use for the *next* iteration.
//
// This is the "update-period state machine" of the main loop: re-deriving
// dt from a CFL scan every single iteration is wasteful, so the controller
// only re-evaluates every updatePeriod seconds of simulation time and holds
// its last value in between.
func (c *DTController) Tick(s *State, box Box, dtTaken float64) float64 {
	if !c.Advance(dtTaken) {
		return c.current
	}
	return c.Update(s, box)
}

// candidate forms the unquantized next-step candidate dtn1: the CFL bound
// from the flow field, tightened by the event managers' potential velocity
// and, for v2, by the diffusive stable-dt field PDT. A PDT minimum that
// collapses below Min while the previous one was comfortably larger is
// treated as a transient spike and the previous value is kept instead.
func (c *DTController) candidate(s *State, box Box) float64 {
	dtn1 := c.cfl(s, box)
	cl := s.Elv.Grid().CellLength
	if c.PotentialVA != nil {
		if va := c.PotentialVA(); va > 0 {
			if bound := c.Alpha * cl / va; bound < dtn1 {
				dtn1 = bound
			}
		}
	}
	if c.Variant == VariantWCA2Dv2 {
		possible := minPDT(s, box)
		if possible <= 0 {
			// PDT not yet populated for some visited cell; no diffusive bound.
			return dtn1
		}
		if possible < c.Min && c.prevPossible > 0 && c.prevPossible*c.Alpha > possible {
			possible = c.prevPossible
		} else {
			c.prevPossible = possible
		}
		if possible < dtn1 {
			dtn1 = possible
		}
	}
	return dtn1
}

// minPDT reduces the per-cell diffusive stable-dt field over box.
func minPDT(s *State, box Box) float64 {
	m := math.Inf(1)
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			if v := s.PDT.Get(x, y); v < m {
				m = v
			}
		}
	}
	return m
}

// cfl computes the Courant-limited step from the fastest edge velocity and
// the largest water depth currently present in box.
func (c *DTController) cfl(s *State, box Box) float64 {
	vmax := 0.0
	dmax := 0.0
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			if d := s.WD.Get(x, y); d > dmax {
				dmax = d
			}
			for d := East; d <= South; d++ {
				if v := math.Abs(s.V.Get(x, y, d)); v > vmax {
					vmax = v
				}
			}
		}
	}
	cl := s.Elv.Grid().CellLength
	wave := vmax + math.Sqrt(gravity*dmax)
	if wave <= 0 {
		return c.Max
	}
	step := c.Alpha * cl / wave
	if step < c.Min {
		step = c.Min
	}
	if step > c.Max {
		step = c.Max
	}
	return step
}

// quantizeFraction rounds the CFL-derived candidate step dtn1 to time_maxdt
// divided by an integer fraction: dt = c.Max / dtfrac, with dtfrac searched
// monotonically out from the previous call's fraction (c.prevFrac) rather
// than recomputed from scratch, so dt changes by the smallest fraction step
// that restores the "largest dt no greater than dtn1" property instead of
// jumping arbitrarily between re-evaluations. dtfrac is always clamped to
// [1, time_maxdt/time_mindt], matching the controller's own [Min, Max]
// bounds.
func (c *DTController) quantizeFraction(dtn1 float64) float64 {
	if dtn1 <= 0 {
		return c.Min
	}
	maxFrac := int(math.Ceil(c.Max / c.Min))
	if maxFrac < 1 {
		maxFrac = 1
	}
	frac := c.prevFrac
	if frac < 1 {
		frac = 1
	}
	if frac > maxFrac {
		frac = maxFrac
	}
	target := c.Max / dtn1
	if float64(frac) < target {
		for float64(frac) < target && frac < maxFrac {
			frac++
		}
	} else {
		for frac > 1 && float64(frac-1) >= target {
			frac--
		}
	}
	c.prevFrac = frac
	dt := c.Max / float64(frac)
	if dt < c.Min {
		dt = c.Min
	}
	if dt > c.Max {
		dt = c.Max
	}
	return dt
}
