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
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caflood/ca2d"
)

// ConfigData holds the contents of the TOML configuration file that drives
// a caflood run. Every field mirrors a configuration knob of the core
// engine or one of its external collaborators; os.ExpandEnv is applied to
// every path-valued field so configs can reference $CAFLOOD_DATA-style
// environment variables.
type ConfigData struct {
	// ModelType selects the outflow-partitioning formulation: 1 for
	// WCA2Dv1 or 2 for WCA2Dv2. Both weight edges by roughness-weighted
	// water-level difference; WCA2Dv2 also carries the previous period's
	// outflow forward as inertia.
	ModelType int

	// DEMFile is the path to the ARC/INFO ASCII GRID elevation raster that
	// defines the simulation domain.
	DEMFile string

	// ManningFile is the path to an ASCII GRID of Manning's roughness
	// coefficients. Optional; if empty, every cell uses ManningDefault.
	ManningFile    string
	ManningDefault float64

	// InfiltrationFile is the path to an ASCII GRID of infiltration rates,
	// m/s. Optional; if empty, infiltration is disabled.
	InfiltrationFile string

	// RainEvents, InflowEvents, and WaterLevelEvents list the event CSV
	// files driving each forcing mechanism. Each file carries its own
	// "Area" or "Zone" row locating the forcing on the grid.
	RainEvents       []string
	InflowEvents     []string
	WaterLevelEvents []string

	// DTMin, DTMax bound the adaptive time step, seconds. DTMax doubles as
	// time_maxdt, the numerator of the fractional quantization rule.
	DTMin float64
	DTMax float64
	// DTAlpha is the Courant safety factor, 0 < DTAlpha <= 1.
	DTAlpha float64
	// DTUpdatePeriod is how often, in simulation seconds, the DT controller
	// re-evaluates from the flow field.
	DTUpdatePeriod float64

	// EndTime is the simulation time, in seconds, at which the run stops.
	EndTime float64

	// IgnoreWD is the water depth, m, at or below which a cell produces no
	// outflow. TolDelWL treats smaller water-level differences as flat,
	// TolVA clamps smaller velocities to zero, and TolSlope floors the
	// slope magnitude in the diffusive stable-dt estimate.
	IgnoreWD float64
	TolDelWL float64
	TolVA    float64
	TolSlope float64

	// BoundaryElevation is the still-water level written into every
	// ClassBoundary cell's elevation at load time, so outflow stencils see
	// the prescribed open-boundary head rather than the DEM's NODATA value.
	BoundaryElevation float64

	// ExpandDomain enables dynamic growth of the active domain into
	// previously dry terrain as water spreads.
	ExpandDomain bool

	// UpstreamPruneAfter is the simulation time after which cells whose
	// elevation lies above UpstrElv are demoted back out of the active
	// domain. Zero disables pruning. UpstreamReduction lowers UpstrElv each
	// time a prune pass actually removes a cell, letting the upstream
	// boundary follow the flood as it recedes.
	UpstreamPruneAfter float64
	UpstrElv           float64
	UpstreamReduction  float64

	// ConsoleLogPeriod, RasterOutputPeriod, and PeakUpdatePeriod are alarm
	// periods, in simulation seconds. A zero PeakUpdatePeriod updates the
	// peak trackers every iteration.
	ConsoleLogPeriod   float64
	RasterOutputPeriod float64
	PeakUpdatePeriod   float64

	// OutputDir is where raster snapshots and the timestep CSV log are
	// written.
	OutputDir string

	// Workers bounds the number of goroutines used to dispatch stencil
	// kernels across the active domain. Zero means use GOMAXPROCS.
	Workers int
}

// ReadConfigFile reads and decodes the TOML configuration file at path.
func ReadConfigFile(path string) (*ConfigData, error) {
	if path == "" {
		return nil, &ca2d.ConfigError{Field: "config", Msg: "no configuration file specified"}
	}
	var c ConfigData
	if _, err := toml.DecodeFile(os.ExpandEnv(path), &c); err != nil {
		return nil, &ca2d.ConfigError{Field: "config", Msg: err.Error()}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *ConfigData) validate() error {
	if c.ModelType != 1 && c.ModelType != 2 {
		return &ca2d.ConfigError{Field: "ModelType", Msg: "must be 1 or 2"}
	}
	if c.DEMFile == "" {
		return &ca2d.ConfigError{Field: "DEMFile", Msg: "required"}
	}
	if c.DTMin <= 0 || c.DTMax < c.DTMin {
		return &ca2d.ConfigError{Field: "DTMin/DTMax", Msg: "must satisfy 0 < DTMin <= DTMax"}
	}
	if c.DTAlpha <= 0 || c.DTAlpha > 1 {
		return &ca2d.ConfigError{Field: "DTAlpha", Msg: "must be in (0, 1]"}
	}
	return nil
}

// Variant returns the ca2d.Variant corresponding to c.ModelType.
func (c *ConfigData) Variant() ca2d.Variant {
	if c.ModelType == 2 {
		return ca2d.VariantWCA2Dv2
	}
	return ca2d.VariantWCA2Dv1
}
