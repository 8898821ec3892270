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
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DomainManipulator is one step of engine setup, the per-iteration loop, or
// teardown. It receives the running Engine so it can read or mutate shared
// state (active boxes, dt, simulation clock) before the next step runs.
type DomainManipulator func(e *Engine) error

// BoxManipulator applies a stencil kernel to a single Box, the unit of work
// dispatch spreads across workers.
type BoxManipulator func(box Box)

// Engine owns the simulation state and the three manipulator pipelines that
// make up a run: Init runs once, Step runs every iteration until Done is
// set, Cleanup runs once after the loop exits.
type Engine struct {
	Init    []DomainManipulator
	Step    []DomainManipulator
	Cleanup []DomainManipulator

	State  *State
	DT     *DTController
	Alarm  *Alarms
	Border *BorderAlarm

	Variant      Variant
	Active       *BoxList
	T            float64 // simulation clock, seconds
	PreviousDT   float64 // dt used on the prior iteration, for v2's ratio_dt carry
	Iteration    int
	EndTime      float64
	Done         bool
	ExpandDomain bool

	// PeriodDue is set by AdvanceTime on the iteration that crosses an
	// update-period boundary; the composed Step pipeline gates its
	// boundary-only work (infiltration, velocity kernels, dt re-evaluation,
	// upstream pruning) on it.
	PeriodDue bool

	// UpstreamPruneAfter is the simulation time after which RemoveUpstream
	// may run; zero disables pruning. UpstrElv is the elevation above which
	// a cell is pruned; it decays by UpstreamReduction each time pruning
	// actually removes at least one cell, letting the upstream boundary
	// creep downhill as the flood recedes.
	UpstreamPruneAfter float64
	UpstrElv           float64
	UpstreamReduction  float64

	Workers int

	Log *logrus.Logger
}

// NewEngine wires a State, DT controller, and Alarms into a ready-to-run
// Engine with empty pipelines; callers append DomainManipulators to Init/
// Step/Cleanup to compose a concrete run.
func NewEngine(s *State, dt *DTController, alarms *Alarms, variant Variant) *Engine {
	return &Engine{
		State:   s,
		DT:      dt,
		Alarm:   alarms,
		Border:  NewBorderAlarm(),
		Variant: variant,
		Active:  NewBoxList(),
		Workers: runtime.GOMAXPROCS(0),
		Log:     logrus.StandardLogger(),
	}
}

// run executes each DomainManipulator in fns in order, stopping at the
// first error.
func run(e *Engine, fns []DomainManipulator) error {
	for _, f := range fns {
		if err := f(e); err != nil {
			return err
		}
	}
	return nil
}

// Run executes Init once, then Step repeatedly until Done is set or ctx is
// cancelled, then Cleanup once. A context cancellation surfaces as a
// CancellationError, not a failure: callers should treat it as a normal
// stop rather than propagate it as a run-breaking error.
func (e *Engine) Run(ctx context.Context) error {
	if err := run(e, e.Init); err != nil {
		return err
	}
	for !e.Done {
		select {
		case <-ctx.Done():
			e.Done = true
			if cerr := run(e, e.Cleanup); cerr != nil {
				return cerr
			}
			return &CancellationError{Reason: ctx.Err().Error()}
		default:
		}
		if err := run(e, e.Step); err != nil {
			return err
		}
	}
	return run(e, e.Cleanup)
}

// dispatch applies fn to every box in boxes, fanned out across a fixed pool
// of nworkers goroutines synchronized by a sync.WaitGroup barrier.
func dispatch(boxes []Box, nworkers int, fn BoxManipulator) {
	if nworkers < 1 {
		nworkers = 1
	}
	if nworkers > len(boxes) {
		nworkers = len(boxes)
	}
	if nworkers <= 1 {
		for _, b := range boxes {
			fn(b)
		}
		return
	}
	var wg sync.WaitGroup
	ch := make(chan Box)
	for i := 0; i < nworkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range ch {
				fn(b)
			}
		}()
	}
	for _, b := range boxes {
		ch <- b
	}
	close(ch)
	wg.Wait()
}

// Dispatch applies fn to every box of the engine's active domain, in
// parallel across e.Workers goroutines.
func (e *Engine) Dispatch(fn BoxManipulator) {
	dispatch(e.Active.Boxes(), e.Workers, fn)
}

// AdvanceTime applies the next step size from e.DT and advances the
// simulation clock and iteration counter. The dt actually used is quantized
// and clamped by the controller, so repeated calls with the same state
// always produce the same sequence of steps — the monotone-quantisation
// property. When the accumulated steps cross an update-period boundary,
// PeriodDue is set and the clock is snapped onto the period grid, so
// floating-point drift never accumulates across periods.
func (e *Engine) AdvanceTime() float64 {
	dt := e.DT.Current()
	e.T += dt
	e.Iteration++
	e.PeriodDue = e.DT.Advance(dt)
	e.snapToPeriodGrid()
	return dt
}

// CommitDT records the step just taken as PreviousDT, for the next
// iteration's ratio_dt carry. It runs after the iteration's kernels and
// events, so that during them PreviousDT still holds the prior iteration's
// step.
func (e *Engine) CommitDT() { e.PreviousDT = e.DT.Current() }

// snapToPeriodGrid rounds the clock to the nearest centisecond and, if that
// rounded value sits within 0.01 s of a multiple of the update period,
// adopts it — the rebase that keeps period boundaries exact multiples of
// the period despite repeated floating-point addition.
func (e *Engine) snapToPeriodGrid() {
	period := e.DT.UpdatePeriod()
	if period <= 0 {
		return
	}
	rounded := math.Round(e.T*100) / 100
	if math.Mod(rounded, period) < 0.01 {
		e.T = rounded
	}
}

// RebaseTime shifts the simulation clock (and every alarm's bookkeeping) by
// delta. Rebasing twice by delta1 then delta2 is equivalent to rebasing
// once by delta1+delta2, and rebasing by zero is a no-op — the idempotence
// property tested in engine_test.go.
func (e *Engine) RebaseTime(delta float64) {
	e.T += delta
	e.Alarm.Rebase(delta)
}

// LogProgress is a DomainManipulator that prints one structured
// iteration/walltime/timestep line per iteration when the console-log
// alarm is due.
func LogProgress(logger *logrus.Logger) DomainManipulator {
	start := time.Now()
	return func(e *Engine) error {
		if !e.Alarm.Due(AlarmConsoleLog, e.T) {
			return nil
		}
		e.Alarm.Fire(AlarmConsoleLog, e.T)
		logger.WithFields(logrus.Fields{
			"iteration": e.Iteration,
			"time_s":    e.T,
			"dt_s":      e.PreviousDT,
			"elapsed":   time.Since(start).Round(time.Millisecond).String(),
		}).Info("step")
		return nil
	}
}

// CheckEndTime is a DomainManipulator that sets e.Done once the simulation
// clock reaches e.EndTime.
func CheckEndTime() DomainManipulator {
	return func(e *Engine) error {
		if e.EndTime > 0 && e.T >= e.EndTime {
			e.Done = true
		}
		return nil
	}
}

// ExpandActiveDomain is a DomainManipulator that, when e.ExpandDomain is
// set, extends every computational-domain box by one ring clipped to the
// grid, promoting the ring's data-holding cells to ClassActive — but only
// when e.Border latched a border-crossing flux this iteration. Without that
// gate every step would pay the cost of a ring scan for an expansion that
// almost never happens.
func ExpandActiveDomain() DomainManipulator {
	return func(e *Engine) error {
		if !e.ExpandDomain || !e.Border.Get() {
			return nil
		}
		full := e.State.Elv.Grid().FullBox()
		boxes := append([]Box(nil), e.Active.Boxes()...)
		for _, b := range boxes {
			ring := b.Grow(1, full)
			grown := e.State.Mask.Expand(ring, e.State.Elv)
			for _, nb := range grown.Boxes() {
				e.Active.Add(nb)
			}
		}
		return nil
	}
}

// PruneUpstream is a DomainManipulator implementing the upstream-pruning
// end-time gate: RemoveUpstream only runs at an update-period boundary, once
// e.T has passed e.UpstreamPruneAfter (the latest event end time), and only
// when e.Border shows no upstream motion this period — pruning while a cell
// above UpstrElv is still draining would strand water that hasn't finished
// moving. Each pass that actually removes a cell, UpstrElv steps down by
// UpstreamReduction so the upstream boundary follows the flood as it
// recedes.
func PruneUpstream() DomainManipulator {
	return func(e *Engine) error {
		if !e.PeriodDue || e.UpstreamPruneAfter <= 0 || e.T < e.UpstreamPruneAfter || e.Border.Get() {
			return nil
		}
		var pruned bool
		for _, b := range e.Active.Boxes() {
			if shrink := RemoveUpstream(e.State, b, e.UpstrElv); !shrink.Empty() {
				pruned = true
			}
		}
		if pruned && e.UpstreamReduction > 0 {
			e.UpstrElv -= e.UpstreamReduction
		}
		return nil
	}
}
