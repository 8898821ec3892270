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

// Variant selects between the two weighted-cellular-automaton outflow
// formulations (model_type 1 and 2). Both distribute a cell's outflow
// across its downhill edges in proportion to roughness-weighted
// water-level difference; v2 additionally carries a double-buffered,
// ratio_dt-scaled memory of the previous iteration's flux, which damps
// oscillation on steep terrain that v1's single-buffer scheme can ring on.
type Variant int

const (
	// VariantWCA2Dv1 accumulates outflow into a single buffer and into the
	// period-total PTOT, used later to derive end-of-period velocity.
	VariantWCA2Dv1 Variant = iota
	// VariantWCA2Dv2 reads inertia from the previous iteration's outflow
	// (POUTF2) and writes the current iteration's outflow to POUTF1; the two
	// are swapped at the end of every iteration.
	VariantWCA2Dv2
)

const gravity = 9.81

// Tolerances collects the small numeric guards the stencils use to avoid
// chattering on near-dry or near-flat cells.
type Tolerances struct {
	IgnoreWD float64 // water depth at/below which a cell produces no outflow
	TolDelWL float64 // water-level differences below this magnitude are treated as zero
	TolVA    float64 // velocities below this magnitude are clamped to zero
	TolSlope float64 // slope magnitudes below this are treated as TolSlope in the diffusive dt estimate
}

// State holds the per-cell raster fields a stencil kernel reads and writes.
// It groups the buffers so kernel signatures don't balloon as fields are
// added.
type State struct {
	Elv     *CellBuffer // terrain elevation, m
	WD      *CellBuffer // water depth, m
	Mann    *CellBuffer // Manning's roughness coefficient
	Inf     *CellBuffer // cumulative infiltration depth, m
	InfRate *CellBuffer // infiltration rate parameter, m/s
	PeakE   *CellBuffer // peak water surface elevation (Elv+WD) ever observed
	PeakD   *CellBuffer // peak water depth ever observed
	PDT     *CellBuffer // per-cell diffusive stable-dt estimate (v2 only); math.Inf(1) where unconstrained

	Q     *EdgeBuffer    // discharge actually applied this iteration, m^3/s, positive = outflow
	POutf [2]*EdgeBuffer // double-buffered outflow for v2 (POUTF1/POUTF2, selected by cur)
	cur   int            // index of the buffer stencils write this iteration; 1-cur is last iteration's
	PTOT  *EdgeBuffer     // period-total accumulated outflow volume (v1), reset each update period

	V    *EdgeBuffer // velocity across each edge, m/s
	Mask *Mask

	Tol Tolerances
}

// NewState allocates a State sized to g with every classification inactive.
func NewState(g *Grid) *State {
	return &State{
		Elv:     NewCellBuffer(g),
		WD:      NewCellBuffer(g),
		Mann:    NewCellBuffer(g),
		Inf:     NewCellBuffer(g),
		InfRate: NewCellBuffer(g),
		PeakE:   NewCellBuffer(g),
		PeakD:   NewCellBuffer(g),
		PDT:     NewCellBuffer(g),
		Q:       NewEdgeBuffer(g),
		POutf:   [2]*EdgeBuffer{NewEdgeBuffer(g), NewEdgeBuffer(g)},
		PTOT:    NewEdgeBuffer(g),
		V:       NewEdgeBuffer(g),
		Mask:    NewMask(g),
	}
}

// waterSurface returns the water-surface elevation (terrain + depth) of
// cell (x,y).
func (s *State) waterSurface(x, y int) float64 {
	return s.Elv.Get(x, y) + s.WD.Get(x, y)
}

// POutfCur returns the outflow buffer stencils write this iteration.
func (s *State) POutfCur() *EdgeBuffer { return s.POutf[s.cur] }

// POutfPrev returns the outflow buffer stencils read as inertia/velocity
// history (POUTF2): the buffer written in the previous iteration, before
// the next SwapOutflowBuffers call rotates it back to current.
func (s *State) POutfPrev() *EdgeBuffer { return s.POutf[1-s.cur] }

// SwapOutflowBuffers rotates the v2 double-buffer index. This is the
// pointer-swap-via-index pattern: POutf holds two allocated buffers for the
// life of the run, and only the index identifying "current" ever changes.
func (s *State) SwapOutflowBuffers() { s.cur = 1 - s.cur }

// ResetPeriodTotals zeroes PTOT at the start of a new update period.
func (s *State) ResetPeriodTotals() { s.PTOT.Fill(0) }

// OutflowWCA2D computes discharge across every edge of every active cell in
// box for the given model variant, storing it in s.Q (and, per variant, in
// s.PTOT or s.POutf). alarms, if non-nil, is raised when flow tries to
// cross from an active cell into a not-yet-active but data-holding
// neighbor — the signal ExpandActiveDomain and PruneUpstream gate on.
func OutflowWCA2D(s *State, box Box, variant Variant, dt, previousDT float64, alarms *BorderAlarm) {
	switch variant {
	case VariantWCA2Dv1:
		outflowV1(s, box, dt, alarms)
	case VariantWCA2Dv2:
		ratio := 1.0
		if previousDT > 0 {
			ratio = dt / previousDT
		}
		outflowV2(s, box, dt, ratio, alarms)
	}
}

func outflowV1(s *State, box Box, dt float64, alarms *BorderAlarm) {
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			for d := East; d <= South; d++ {
				s.Q.Set(x, y, d, 0)
			}
			for _, f := range weightedOutflow(s, x, y, dt) {
				s.Q.Set(x, y, f.dir, f.q)
				s.PTOT.Add(x, y, f.dir, f.q*dt)
			}
			raiseBorderAlarm(s, x, y, alarms)
		}
	}
}

func outflowV2(s *State, box Box, dt, ratio float64, alarms *BorderAlarm) {
	cur := s.POutfCur()
	prev := s.POutfPrev()
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			for d := East; d <= South; d++ {
				cur.Set(x, y, d, 0)
				s.Q.Set(x, y, d, 0)
			}
			for _, f := range weightedOutflow(s, x, y, dt) {
				q := f.q + ratio*prev.Get(x, y, f.dir)
				cur.Set(x, y, f.dir, q)
				s.Q.Set(x, y, f.dir, q)
			}
			raiseBorderAlarm(s, x, y, alarms)
		}
	}
}

type edgeFlow struct {
	dir Direction
	q   float64
}

// weightedOutflow computes the discharge leaving cell (x,y) on each
// downhill edge: a cell at or below IgnoreWD depth produces nothing; a
// neighbor whose water-surface difference is below TolDelWL is treated as
// flat and excluded; the remaining candidates split the cell's available
// volume in proportion to (water-level difference / Manning's n), and each
// edge's share is capped so its implied velocity never exceeds the
// critical velocity sqrt(g*depth).
func weightedOutflow(s *State, x, y int, dt float64) []edgeFlow {
	depth := s.WD.Get(x, y)
	if depth <= s.Tol.IgnoreWD {
		return nil
	}
	wsCenter := s.waterSurface(x, y)
	mann := s.Mann.Get(x, y)
	if mann <= 0 {
		mann = 0.03
	}
	roughnessWeight := 1 / mann

	type candidate struct {
		dir    Direction
		weight float64
		diff   float64
	}
	var cands []candidate
	var weightSum, maxDiff float64
	for d := East; d <= South; d++ {
		nx, ny := d.Neighbor(x, y)
		if !s.Mask.Active(nx, ny) {
			continue
		}
		diff := wsCenter - s.waterSurface(nx, ny)
		if diff <= s.Tol.TolDelWL {
			continue
		}
		w := diff * roughnessWeight
		cands = append(cands, candidate{d, w, diff})
		weightSum += w
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	if weightSum <= 0 {
		return nil
	}

	cl := s.Elv.Grid().CellLength
	area := cl * cl
	available := depth * area
	totalVolume := 0.5 * maxDiff * area
	if totalVolume > available {
		totalVolume = available
	}
	if totalVolume <= 0 {
		return nil
	}

	critical := math.Sqrt(gravity * depth)
	maxEdgeVolume := critical * cl * depth * dt

	flows := make([]edgeFlow, 0, len(cands))
	for _, c := range cands {
		vol := totalVolume * (c.weight / weightSum)
		if vol > maxEdgeVolume {
			vol = maxEdgeVolume
		}
		flows = append(flows, edgeFlow{c.dir, vol / dt})
	}
	return flows
}

// raiseBorderAlarm raises alarms when cell (x,y) would discharge into a
// neighbor that holds valid terrain data but has not yet been promoted into
// the active domain — the "outflow crossed the computational domain's
// border" condition that should trigger ExpandActiveDomain.
func raiseBorderAlarm(s *State, x, y int, alarms *BorderAlarm) {
	if alarms == nil {
		return
	}
	wsCenter := s.waterSurface(x, y)
	for d := East; d <= South; d++ {
		nx, ny := d.Neighbor(x, y)
		if s.Mask.Class(nx, ny) != ClassInactive {
			continue
		}
		if s.Elv.Get(nx, ny) == s.Mask.NoData {
			continue
		}
		if wsCenter-s.waterSurface(nx, ny) > s.Tol.TolDelWL {
			alarms.Raise()
			return
		}
	}
}

func cellArea(s *State) float64 { return s.Elv.Grid().Area() }

// ApplyDischarge integrates every edge's discharge into WD over box for
// time step dt: each active cell loses volume on its outflow edges and
// gains the corresponding volume through its neighbors' matching inflow
// edges. Because Q is antisymmetric by construction (a neighbor's inflow
// on a shared edge is read directly from the edge's owner, never
// recomputed), total volume is conserved up to floating-point error.
func ApplyDischarge(s *State, box Box, dt float64) {
	area := cellArea(s)
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			var net float64
			for d := East; d <= South; d++ {
				net -= s.Q.Get(x, y, d)
			}
			for d := East; d <= South; d++ {
				nx, ny := d.Neighbor(x, y)
				if s.Mask.Active(nx, ny) {
					net += s.Q.Get(nx, ny, d.Opposite())
				}
			}
			newDepth := s.WD.Get(x, y) + net*dt/area
			if newDepth < 0 {
				newDepth = 0
			}
			s.WD.Set(x, y, newDepth)
		}
	}
}

// VelocityWCA2D derives end-of-period edge velocity from the
// period-accumulated outflow volume PTOT (v1): average discharge over the
// period is Qavg = PTOT/periodTimeDt, and velocity is Qavg/(depth*cellLength),
// clipped to the critical velocity sqrt(g*depth) and clamped to zero below
// TolVA. If any cell at or above upstrElv shows nonzero velocity, alarms is
// raised — PruneUpstream must not discard a cell that is still draining.
func VelocityWCA2D(s *State, box Box, periodTimeDt, upstrElv float64, alarms *BorderAlarm) {
	cl := s.Elv.Grid().CellLength
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			depth := s.WD.Get(x, y)
			critical := math.Sqrt(gravity * depth)
			for d := East; d <= South; d++ {
				if depth <= 0 || periodTimeDt <= 0 {
					s.V.Set(x, y, d, 0)
					continue
				}
				qAvg := s.PTOT.Get(x, y, d) / periodTimeDt
				v := qAvg / (depth * cl)
				if v > critical {
					v = critical
				} else if v < -critical {
					v = -critical
				}
				if math.Abs(v) < s.Tol.TolVA {
					v = 0
				}
				s.V.Set(x, y, d, v)
				if v != 0 && alarms != nil && s.Elv.Get(x, y) >= upstrElv {
					alarms.Raise()
				}
			}
		}
	}
}

// VelocityDiffusive derives per-edge velocity from the previous iteration's
// flux (POUTF2, v2) and a Hunter-style diffusive-wave stable time step
// keyed on local slope, Manning's roughness, and depth:
//
//	dt_stable = (cellLength * n) / (depth^(5/3) * sqrt(slope))
//
// writing the per-cell minimum into PDT for the DT controller's v2
// candidate step. Slope magnitudes below TolSlope are treated as TolSlope,
// since near-flat terrain would otherwise imply an unbounded stable dt.
func VelocityDiffusive(s *State, box Box) {
	cl := s.Elv.Grid().CellLength
	prev := s.POutfPrev()
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			depth := s.WD.Get(x, y)
			if depth <= 0 {
				s.PDT.Set(x, y, math.Inf(1))
				for d := East; d <= South; d++ {
					s.V.Set(x, y, d, 0)
				}
				continue
			}
			mann := s.Mann.Get(x, y)
			if mann <= 0 {
				mann = 0.03
			}
			minDT := math.Inf(1)
			for d := East; d <= South; d++ {
				q := prev.Get(x, y, d)
				v := q / (depth * cl)
				s.V.Set(x, y, d, v)

				nx, ny := d.Neighbor(x, y)
				slope := math.Abs(s.waterSurface(x, y)-s.waterSurface(nx, ny)) / cl
				if slope < s.Tol.TolSlope {
					slope = s.Tol.TolSlope
				}
				stable := (cl * mann) / (math.Pow(depth, 5.0/3.0) * math.Sqrt(slope))
				if stable < minDT {
					minDT = stable
				}
			}
			s.PDT.Set(x, y, minDT)
		}
	}
}

// Infiltrate reduces water depth in box by the Green-Ampt-style constant
// rate in s.InfRate, accumulating the removed depth in s.Inf. It never
// drives depth below zero and never infiltrates more than is present.
func Infiltrate(s *State, box Box, dt float64) {
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			rate := s.InfRate.Get(x, y)
			if rate <= 0 {
				continue
			}
			depth := s.WD.Get(x, y)
			loss := rate * dt
			if loss > depth {
				loss = depth
			}
			s.WD.Set(x, y, depth-loss)
			s.Inf.Add(x, y, loss)
		}
	}
}

// UpdatePeaks records, per cell in box, the highest water depth and water
// surface elevation observed over the run so far.
func UpdatePeaks(s *State, box Box) {
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			d := s.WD.Get(x, y)
			if d > s.PeakD.Get(x, y) {
				s.PeakD.Set(x, y, d)
			}
			e := s.waterSurface(x, y)
			if e > s.PeakE.Get(x, y) {
				s.PeakE.Set(x, y, e)
			}
		}
	}
}

// RemoveUpstream demotes to ClassInactive every active cell in box whose
// elevation is above upstrElv, permanently removing it from computation.
// It is only meaningful once the run's events have finished and the
// velocity pass has confirmed no cell above upstrElv is still in motion
// (see PruneUpstream), since pruning too early could strand a cell
// that is merely between two inflow pulses.
func RemoveUpstream(s *State, box Box, upstrElv float64) Box {
	var shrink Box
	for y := box.Y; y < box.Y1(); y++ {
		for x := box.X; x < box.X1(); x++ {
			if s.Mask.Class(x, y) != ClassActive {
				continue
			}
			if s.Elv.Get(x, y) <= upstrElv {
				continue
			}
			s.Mask.SetClass(x, y, ClassInactive)
			shrink = shrink.Include(x, y)
		}
	}
	return shrink
}
