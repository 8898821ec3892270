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

package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/caflood/ca2d"
	"github.com/caflood/ca2d/caio"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a flood simulation.",
	Long:  "run reads the configured DEM and event files and runs the simulation to completion.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelErr(Run(Config))
	},
}

// Run builds an Engine from c and runs it to completion.
func Run(c *ConfigData) error {
	s, nodata, err := loadState(c)
	if err != nil {
		return err
	}

	dt := ca2d.NewDTController(c.Variant(), c.DTMin, c.DTMax, c.DTAlpha, c.DTUpdatePeriod)
	alarms := ca2d.NewAlarms()
	alarms.SetPeriod(ca2d.AlarmConsoleLog, c.ConsoleLogPeriod)
	alarms.SetPeriod(ca2d.AlarmRasterOutput, c.RasterOutputPeriod)
	alarms.SetPeriod(ca2d.AlarmPeakUpdate, c.PeakUpdatePeriod)

	e := ca2d.NewEngine(s, dt, alarms, c.Variant())
	e.EndTime = c.EndTime
	e.ExpandDomain = c.ExpandDomain
	e.UpstrElv = c.UpstrElv
	e.UpstreamReduction = c.UpstreamReduction
	if c.Workers > 0 {
		e.Workers = c.Workers
	}

	events, err := loadEvents(c, s.Elv.Grid())
	if err != nil {
		return err
	}

	// Upstream pruning may only begin once every forcing with a finite end
	// time has stopped: a cell above the threshold that looks still could
	// merely be between two inflow pulses. An event still positive at its
	// last sample (EndTime +Inf) does not hold pruning back.
	if c.UpstreamPruneAfter > 0 {
		e.UpstreamPruneAfter = c.UpstreamPruneAfter
		for _, eb := range events {
			if end := eb.ev.EndTime(); !math.IsInf(end, 1) && end > e.UpstreamPruneAfter {
				e.UpstreamPruneAfter = end
			}
		}
	}

	// The CFL candidate must anticipate volume the events are about to
	// inject, not just the water already moving.
	dt.PotentialVA = func() float64 {
		var va float64
		for _, eb := range events {
			if v := ca2d.PotentialVA(s, eb.ev, e.T, c.DTUpdatePeriod); v > va {
				va = v
			}
		}
		return va
	}

	outDir := os.ExpandEnv(c.OutputDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	tsFile, err := os.Create(filepath.Join(outDir, "run_ts.csv"))
	if err != nil {
		return err
	}
	defer tsFile.Close()
	tsWriter := ca2d.NewTimestepCSVWriter(tsFile)

	writer := &rasterWriter{dir: outDir, nodata: nodata}

	e.Init = []ca2d.DomainManipulator{
		func(eng *ca2d.Engine) error {
			// With dynamic expansion, the computational domain starts as just
			// the event areas and grows outward as water reaches its border;
			// the data cells outside the seed stay inactive until then.
			// Without it, every data cell computes from the start.
			if eng.ExpandDomain {
				seed := ca2d.NewBoxList()
				for _, eb := range events {
					seed.Add(eb.ev.Area)
				}
				if !seed.Empty() {
					eng.State.Mask.RestrictActiveTo(seed)
				}
			}
			eng.Active = eng.State.Mask.ActiveBoxes()
			return nil
		},
	}
	e.Step = buildSteps(e, events, tsWriter, writer)
	e.Cleanup = []ca2d.DomainManipulator{
		// the final raster write-out runs whether the loop finished or was
		// cancelled, so peak rasters and final extents always persist.
		func(eng *ca2d.Engine) error {
			return writer.WriteRaster("peak_depth", eng.State.PeakD)
		},
		func(eng *ca2d.Engine) error {
			return writer.WriteRaster("peak_elevation", eng.State.PeakE)
		},
		func(eng *ca2d.Engine) error {
			return writer.WriteRaster("final_depth", eng.State.WD)
		},
	}

	err = e.Run(context.Background())
	if ca2d.IsCancellation(err) {
		return nil
	}
	return err
}

// buildSteps composes the per-iteration pipeline: advance the clock, move
// water (outflow, expansion, discharge), inject the forcings in fixed
// rain/inflow/water-level order, then — only on iterations crossing an
// update-period boundary — infiltrate, refresh velocities, re-evaluate dt,
// and consider upstream pruning, before the trailing bookkeeping (peaks,
// rasters, logs, stop check).
func buildSteps(e *ca2d.Engine, events []eventBinding, tsWriter *ca2d.TimestepCSVWriter, writer *rasterWriter) []ca2d.DomainManipulator {
	steps := []ca2d.DomainManipulator{
		func(eng *ca2d.Engine) error {
			if eng.ExpandDomain {
				eng.Border.DeactivateAll()
				eng.Border.Set()
			}
			return nil
		},
		func(eng *ca2d.Engine) error { eng.AdvanceTime(); return nil },
		func(eng *ca2d.Engine) error {
			dt := eng.DT.Current()
			eng.Dispatch(func(b ca2d.Box) {
				ca2d.OutflowWCA2D(eng.State, b, eng.Variant, dt, eng.PreviousDT, eng.Border)
			})
			return nil
		},
		ca2d.ExpandActiveDomain(),
		func(eng *ca2d.Engine) error {
			eng.Dispatch(func(b ca2d.Box) { ca2d.ApplyDischarge(eng.State, b, eng.DT.Current()) })
			if eng.Variant == ca2d.VariantWCA2Dv2 {
				eng.State.SwapOutflowBuffers()
			}
			return nil
		},
	}
	for _, eb := range events {
		eb := eb
		steps = append(steps, func(eng *ca2d.Engine) error {
			switch eb.ev.Kind {
			case ca2d.EventRain:
				ca2d.ApplyRain(eng.State, eb.ev, eb.st, eng.T, eng.DT.Current())
			case ca2d.EventInflow:
				ca2d.ApplyInflow(eng.State, eb.ev, eb.st, eng.T, eng.DT.Current())
			case ca2d.EventWaterLevel:
				ca2d.ApplyWaterLevel(eng.State, eb.ev, eb.st, eng.T)
			}
			return nil
		})
	}
	steps = append(steps,
		func(eng *ca2d.Engine) error {
			eng.CommitDT()
			if !eng.PeriodDue {
				return nil
			}
			period := eng.DT.UpdatePeriod()
			full := eng.State.Elv.Grid().FullBox()
			ca2d.Infiltrate(eng.State, full, period)
			if eng.UpstreamPruneAfter > 0 {
				// clear the latch so the velocity pass alone decides whether
				// anything above the threshold is still moving.
				eng.Border.DeactivateAll()
				eng.Border.Set()
			}
			switch eng.Variant {
			case ca2d.VariantWCA2Dv1:
				eng.Dispatch(func(b ca2d.Box) {
					ca2d.VelocityWCA2D(eng.State, b, period, eng.UpstrElv, eng.Border)
				})
			case ca2d.VariantWCA2Dv2:
				eng.Dispatch(func(b ca2d.Box) { ca2d.VelocityDiffusive(eng.State, b) })
			}
			eng.DT.Update(eng.State, eng.Active.Extent())
			eng.State.ResetPeriodTotals()
			return nil
		},
		ca2d.PruneUpstream(),
		func(eng *ca2d.Engine) error {
			if eng.Alarm.Armed(ca2d.AlarmPeakUpdate) && !eng.Alarm.Due(ca2d.AlarmPeakUpdate, eng.T) {
				return nil
			}
			eng.Alarm.Fire(ca2d.AlarmPeakUpdate, eng.T)
			eng.Dispatch(func(b ca2d.Box) { ca2d.UpdatePeaks(eng.State, b) })
			return nil
		},
		func(eng *ca2d.Engine) error {
			if !eng.Alarm.Due(ca2d.AlarmRasterOutput, eng.T) {
				return nil
			}
			eng.Alarm.Fire(ca2d.AlarmRasterOutput, eng.T)
			return writer.WriteRaster(fmt.Sprintf("wd_%010.2f", eng.T), eng.State.WD)
		},
		ca2d.LogProgress(e.Log),
		ca2d.TimestepLog(tsWriter),
		ca2d.CheckEndTime(),
	)
	return steps
}

type eventBinding struct {
	ev *ca2d.TimeSeriesEvent
	st *ca2d.EventRunState
}

func loadState(c *ConfigData) (*ca2d.State, float64, error) {
	f, err := os.Open(os.ExpandEnv(c.DEMFile))
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	g, elv, nodata, err := caio.ReadASCIIGrid(f)
	if err != nil {
		return nil, 0, err
	}
	s := ca2d.NewState(g)
	s.Tol = ca2d.Tolerances{
		IgnoreWD: c.IgnoreWD,
		TolDelWL: c.TolDelWL,
		TolVA:    c.TolVA,
		TolSlope: c.TolSlope,
	}
	for y := 0; y < g.Ny; y++ {
		for x := 0; x < g.Nx; x++ {
			s.Elv.Set(x, y, elv.Get(x, y))
			s.Mann.Set(x, y, c.ManningDefault)
		}
	}
	s.Mask.DeriveBoundary(elv, nodata)
	s.Mask.ApplyBoundaryElevation(s.Elv, c.BoundaryElevation)
	if c.ManningFile != "" {
		mf, err := os.Open(os.ExpandEnv(c.ManningFile))
		if err != nil {
			return nil, 0, err
		}
		defer mf.Close()
		_, mann, _, err := caio.ReadASCIIGrid(mf)
		if err != nil {
			return nil, 0, err
		}
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				s.Mann.Set(x, y, mann.Get(x, y))
			}
		}
	}
	if c.InfiltrationFile != "" {
		inf, err := os.Open(os.ExpandEnv(c.InfiltrationFile))
		if err != nil {
			return nil, 0, err
		}
		defer inf.Close()
		_, rate, _, err := caio.ReadASCIIGrid(inf)
		if err != nil {
			return nil, 0, err
		}
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				s.InfRate.Set(x, y, rate.Get(x, y))
			}
		}
	}
	return s, nodata, nil
}

func loadEvents(c *ConfigData, g *ca2d.Grid) ([]eventBinding, error) {
	var out []eventBinding
	load := func(files []string, kind ca2d.EventKind) error {
		for _, file := range files {
			f, err := os.Open(os.ExpandEnv(file))
			if err != nil {
				return err
			}
			ev, err := caio.ReadEventCSV(f, kind, g)
			f.Close()
			if err != nil {
				return err
			}
			out = append(out, eventBinding{ev: ev, st: ca2d.NewEventRunState()})
		}
		return nil
	}
	if err := load(c.RainEvents, ca2d.EventRain); err != nil {
		return nil, err
	}
	if err := load(c.InflowEvents, ca2d.EventInflow); err != nil {
		return nil, err
	}
	if err := load(c.WaterLevelEvents, ca2d.EventWaterLevel); err != nil {
		return nil, err
	}
	return out, nil
}

type rasterWriter struct {
	dir    string
	nodata float64
}

func (w *rasterWriter) WriteRaster(name string, buf *ca2d.CellBuffer) error {
	f, err := os.Create(filepath.Join(w.dir, name+".asc"))
	if err != nil {
		return err
	}
	defer f.Close()
	return caio.WriteASCIIGrid(f, buf.Grid(), buf, w.nodata)
}
