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
	"fmt"
	"io"
)

// RasterWriter is satisfied by any external collaborator capable of writing
// a CellBuffer snapshot somewhere — a file, an object store, a network
// socket. The core engine never implements one directly against a
// filesystem path; see the caio subpackage for concrete ESRI ASCII writers.
type RasterWriter interface {
	WriteRaster(name string, buf *CellBuffer) error
}

// PeakAccumulator is satisfied by a collaborator that wants to know about
// every new peak value the engine observes, without polling PeakD/PeakE
// itself. RasterOutput (below) does not use it: it writes whichever buffers
// it is given, such as State's PeakD/PeakE; PeakAccumulator exists for collaborators
// that need push notification, e.g. streaming peak rasters to a remote
// dashboard mid-run.
type PeakAccumulator interface {
	ObservePeak(x, y int, depth, elevation float64)
}

// RasterOutput is a DomainManipulator that calls w.WriteRaster for every
// field named in fields when the raster-output alarm is due.
func RasterOutput(w RasterWriter, fields map[string]*CellBuffer) DomainManipulator {
	return func(e *Engine) error {
		if !e.Alarm.Due(AlarmRasterOutput, e.T) {
			return nil
		}
		e.Alarm.Fire(AlarmRasterOutput, e.T)
		for name, buf := range fields {
			if err := w.WriteRaster(name, buf); err != nil {
				return err
			}
		}
		return nil
	}
}

// TimestepCSVWriter appends one row per engine iteration to an underlying
// writer in "<base>_ts.csv" form: iteration, simulation time, and the time
// step taken. Unlike raster and peak output — which belong to an external
// collaborator — this one piece of scalar telemetry is produced by the core
// itself, even though richer reporting lives outside the core.
type TimestepCSVWriter struct {
	w       io.Writer
	wrote   bool
}

// NewTimestepCSVWriter wraps w; the header row is written lazily on the
// first Write call.
func NewTimestepCSVWriter(w io.Writer) *TimestepCSVWriter {
	return &TimestepCSVWriter{w: w}
}

// Write emits one row for the given iteration/time/dt.
func (t *TimestepCSVWriter) Write(iteration int, simTime, dt float64) error {
	if !t.wrote {
		if _, err := fmt.Fprintln(t.w, "iteration,time_s,dt_s"); err != nil {
			return err
		}
		t.wrote = true
	}
	_, err := fmt.Fprintf(t.w, "%d,%g,%g\n", iteration, simTime, dt)
	return err
}

// TimestepLog returns a DomainManipulator that writes a row to w every
// iteration. It reads PreviousDT rather than the controller's current step,
// since by the time it runs a period boundary may already have selected the
// next period's dt; PreviousDT is the step this iteration actually took.
func TimestepLog(w *TimestepCSVWriter) DomainManipulator {
	return func(e *Engine) error {
		return w.Write(e.Iteration, e.T, e.PreviousDT)
	}
}
