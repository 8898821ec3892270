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

// AlarmKind enumerates the recurring, time-triggered actions the main loop
// must consider performing on any given iteration: writing a raster,
// logging to the console, updating peak trackers, and re-evaluating the
// update period. Each kind has its own period and its own latch bit so that, e.g.,
// a raster-output alarm and a console-log alarm firing on the same
// iteration don't interfere with each other's bookkeeping.
type AlarmKind int

const (
	AlarmRasterOutput AlarmKind = iota
	AlarmConsoleLog
	AlarmPeakUpdate
	AlarmUpdatePeriod
	numAlarmKinds
)

// Alarms tracks, for each AlarmKind, the last simulation time it fired and
// its configured period. An Alarms from NewAlarms has every period at zero,
// which Due treats as "never fires" rather than "fires every step" — a
// period must be explicitly set.
type Alarms struct {
	period []float64
	last   []float64
	armed  []bool
}

// NewAlarms returns an Alarms with no periods configured and no kind fired
// yet.
func NewAlarms() *Alarms {
	a := &Alarms{
		period: make([]float64, numAlarmKinds),
		last:   make([]float64, numAlarmKinds),
		armed:  make([]bool, numAlarmKinds),
	}
	for i := range a.last {
		a.last[i] = math.Inf(-1)
	}
	return a
}

// SetPeriod configures the recurrence period, in simulation seconds, of
// kind. A period of zero disarms the alarm.
func (a *Alarms) SetPeriod(kind AlarmKind, period float64) {
	a.period[kind] = period
	a.armed[kind] = period > 0
}

// Armed reports whether kind has a nonzero period configured.
func (a *Alarms) Armed(kind AlarmKind) bool { return a.armed[kind] }

// Due reports whether kind should fire at simulation time t: it is armed,
// and at least one full period has elapsed since it last fired (or it has
// never fired).
func (a *Alarms) Due(kind AlarmKind, t float64) bool {
	if !a.armed[kind] {
		return false
	}
	return t-a.last[kind] >= a.period[kind]
}

// Fire latches kind as having fired at simulation time t. Callers should
// call Fire only after actually performing the alarm's action, mirroring
// the "latch on completion, not on scheduling" discipline the main loop
// uses for every periodic action.
func (a *Alarms) Fire(kind AlarmKind, t float64) {
	a.last[kind] = t
}

// Rebase shifts every alarm's last-fired timestamp by delta. This keeps
// alarm cadence correct across a simulation-time rebase (e.g. restarting a
// run whose clock was reset to zero): firing exactly once more at the
// rebased time is equivalent to having fired at the original time, making
// rebase idempotent with respect to alarm scheduling.
func (a *Alarms) Rebase(delta float64) {
	for i := range a.last {
		a.last[i] += delta
	}
}

// BorderAlarm is a single latch bit, raised (write-OR only) by stencils
// that detect flow crossing the computational domain's border or motion at
// a cell above the upstream-pruning elevation threshold. A scheduler
// consults it once per DeactivateAll/Set/.../Get cycle: DeactivateAll
// prepares a clear, Set commits it, the stencils that run in between may
// only raise the latch, and Get reads the outcome.
type BorderAlarm struct {
	active  bool
	pending bool
}

// NewBorderAlarm returns a deactivated latch.
func NewBorderAlarm() *BorderAlarm { return &BorderAlarm{} }

// DeactivateAll prepares the latch to be cleared by the next Set call.
func (a *BorderAlarm) DeactivateAll() { a.pending = false }

// Set commits the deactivation DeactivateAll prepared.
func (a *BorderAlarm) Set() { a.active = a.pending }

// Raise OR's the latch true. Stencils must only ever call Raise, never Set
// or DeactivateAll.
func (a *BorderAlarm) Raise() { a.active = true }

// Get returns the currently latched state.
func (a *BorderAlarm) Get() bool { return a.active }
