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

package caio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/caflood/ca2d"
)

// ReadEventCSV parses an event file in the token-row format: each row leads
// with a case-insensitive token naming what the rest of the row holds.
//
//	Event Name, storm-2012
//	Inflow, 0, 12.5, 0
//	Time, 0, 600, 1200
//	Area, 4, 4, 2, 2
//	Analytical Solution U, 0.1
//	Analytical Solution N, 0.03
//
// The value row's token must match kind ("Rain", "Inflow", or "Water
// Level"). "Area" gives the event's rectangle in grid indices; "Zone" gives
// it in world coordinates, converted against g with widths rounded up to
// whole cells. A row with an unrecognized leading token is an error, as is
// a series shorter than two samples or a non-increasing time row.
func ReadEventCSV(r io.Reader, kind ca2d.EventKind, g *ca2d.Grid) (*ca2d.TimeSeriesEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &ca2d.InputFormatError{Source: "event csv", Msg: err.Error()}
	}

	ev := &ca2d.TimeSeriesEvent{Kind: kind}
	var haveArea, haveValues, haveTimes bool
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		line := i + 1
		token := strings.ToLower(strings.TrimSpace(row[0]))
		switch token {
		case "event name":
			// informational only; the engine identifies events by position.
		case "rain", "inflow", "water level", "waterlevel":
			if !tokenMatchesKind(token, kind) {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line,
					Msg: fmt.Sprintf("value token %q does not match the expected event type", row[0])}
			}
			vals, err := parseFloats(row[1:])
			if err != nil {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line, Msg: err.Error()}
			}
			ev.Value = vals
			haveValues = true
		case "time":
			vals, err := parseFloats(row[1:])
			if err != nil {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line, Msg: err.Error()}
			}
			for j := 1; j < len(vals); j++ {
				if vals[j] <= vals[j-1] {
					return nil, &ca2d.InputFormatError{Source: "event csv", Line: line,
						Msg: "time row must be strictly increasing"}
				}
			}
			ev.Time = vals
			haveTimes = true
		case "area":
			vals, err := parseFloats(row[1:])
			if err != nil {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line, Msg: err.Error()}
			}
			if len(vals) != 4 {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line,
					Msg: "area row needs exactly x, y, w, h"}
			}
			ev.Area = ca2d.Box{X: int(vals[0]), Y: int(vals[1]), W: int(vals[2]), H: int(vals[3])}
			haveArea = true
		case "zone":
			vals, err := parseFloats(row[1:])
			if err != nil {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line, Msg: err.Error()}
			}
			if len(vals) != 4 {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line,
					Msg: "zone row needs exactly x, y, w, h"}
			}
			box, err := zoneToBox(g, vals[0], vals[1], vals[2], vals[3])
			if err != nil {
				return nil, err
			}
			ev.Area = box
			haveArea = true
		case "analytical solution u":
			v, err := parseOneFloat(row[1:])
			if err != nil {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line, Msg: err.Error()}
			}
			ev.Analytic.U = v
			ev.Analytic.Enabled = ev.Analytic.U != 0
		case "analytical solution n":
			v, err := parseOneFloat(row[1:])
			if err != nil {
				return nil, &ca2d.InputFormatError{Source: "event csv", Line: line, Msg: err.Error()}
			}
			ev.Analytic.N = v
		default:
			return nil, &ca2d.InputFormatError{Source: "event csv", Line: line,
				Msg: fmt.Sprintf("unrecognized token %q", row[0])}
		}
	}

	if !ev.Analytic.Enabled {
		if !haveValues || !haveTimes {
			return nil, &ca2d.InputFormatError{Source: "event csv", Msg: "missing value or time row"}
		}
		if len(ev.Time) != len(ev.Value) || len(ev.Time) < 2 {
			return nil, &ca2d.InputFormatError{Source: "event csv",
				Msg: fmt.Sprintf("need matching time/value rows of at least 2 samples, got %d/%d",
					len(ev.Time), len(ev.Value))}
		}
	}
	if !haveArea {
		return nil, &ca2d.GeometryError{Msg: "event has no area or zone row"}
	}
	return ev, nil
}

func tokenMatchesKind(token string, kind ca2d.EventKind) bool {
	switch kind {
	case ca2d.EventRain:
		return token == "rain"
	case ca2d.EventInflow:
		return token == "inflow"
	case ca2d.EventWaterLevel:
		return token == "water level" || token == "waterlevel"
	}
	return false
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseOneFloat(fields []string) (float64, error) {
	vals, err := parseFloats(fields)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("expected exactly one value, got %d", len(vals))
	}
	return vals[0], nil
}

// zoneToBox converts a world-coordinate rectangle to grid indices: the
// origin is floored onto the cell containing it, and the extent is rounded
// up to whole cells so a zone never loses area to truncation. A zone
// entirely outside the grid is a GeometryError.
func zoneToBox(g *ca2d.Grid, x, y, w, h float64) (ca2d.Box, error) {
	cl := g.CellLength
	box := ca2d.Box{
		X: int(math.Floor((x - g.Xll) / cl)),
		Y: int(math.Floor((y - g.Yll) / cl)),
		W: int(math.Ceil(w / cl)),
		H: int(math.Ceil(h / cl)),
	}
	box = box.Limit(g.FullBox())
	if box.Empty() {
		return ca2d.Box{}, &ca2d.GeometryError{
			Msg: fmt.Sprintf("zone (%g, %g, %g, %g) maps to no grid cells", x, y, w, h)}
	}
	return box, nil
}
