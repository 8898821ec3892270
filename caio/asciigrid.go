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

// Package caio holds the external-collaborator implementations that the
// core engine never depends on directly: ARC/INFO ASCII GRID I/O, the
// preprocessed-domain binary artifact, and the event time-series CSV
// reader.
package caio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/caflood/ca2d"
)

// headerField pairs the ASCII GRID tokens naming one header value with
// where to store it. Two dialects share the header layout: the ARC/INFO
// names (xllcorner, cellsize, nodata_value) and the shorter names used by
// the hex variant (xll, side, no_data); either is accepted per field.
type headerField struct {
	tokens []string
	set    func(string) error
}

// ReadASCIIGrid parses an ARC/INFO ASCII GRID file (ncols/nrows/xllcorner/
// yllcorner/cellsize/nodata_value header followed by nrows rows of ncols
// values, north row first) into a Grid and a populated CellBuffer. Cells
// equal to the file's NODATA value are returned verbatim in the buffer;
// callers use nodata to build the Mask, since NODATA has no universal
// numeric meaning to the core engine.
func ReadASCIIGrid(r io.Reader) (*ca2d.Grid, *ca2d.CellBuffer, float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var ncols, nrows int
	var xll, yll, cellsize, nodata float64

	fields := []headerField{
		{[]string{"ncols"}, func(s string) error { v, err := strconv.Atoi(s); ncols = v; return err }},
		{[]string{"nrows"}, func(s string) error { v, err := strconv.Atoi(s); nrows = v; return err }},
		{[]string{"xllcorner", "xll"}, func(s string) error { v, err := strconv.ParseFloat(s, 64); xll = v; return err }},
		{[]string{"yllcorner", "yll"}, func(s string) error { v, err := strconv.ParseFloat(s, 64); yll = v; return err }},
		{[]string{"cellsize", "side"}, func(s string) error { v, err := strconv.ParseFloat(s, 64); cellsize = v; return err }},
		{[]string{"nodata_value", "no_data"}, func(s string) error { v, err := strconv.ParseFloat(s, 64); nodata = v; return err }},
	}

	line := 0
	for _, f := range fields {
		if !sc.Scan() {
			return nil, nil, 0, &ca2d.InputFormatError{Source: "asciigrid", Line: line, Msg: "unexpected end of file in header"}
		}
		line++
		parts := strings.Fields(sc.Text())
		matched := false
		if len(parts) == 2 {
			for _, tok := range f.tokens {
				if strings.EqualFold(parts[0], tok) {
					matched = true
					break
				}
			}
		}
		if !matched {
			return nil, nil, 0, &ca2d.InputFormatError{Source: "asciigrid", Line: line, Msg: fmt.Sprintf("expected header token %q", f.tokens[0])}
		}
		if err := f.set(parts[1]); err != nil {
			return nil, nil, 0, &ca2d.InputFormatError{Source: "asciigrid", Line: line, Msg: err.Error()}
		}
	}

	g := ca2d.NewGrid(ncols, nrows, cellsize, xll, yll)
	buf := ca2d.NewCellBuffer(g)

	for row := 0; row < nrows; row++ {
		if !sc.Scan() {
			return nil, nil, 0, &ca2d.InputFormatError{Source: "asciigrid", Line: line, Msg: "unexpected end of file in data"}
		}
		line++
		vals := strings.Fields(sc.Text())
		if len(vals) != ncols {
			return nil, nil, 0, &ca2d.InputFormatError{Source: "asciigrid", Line: line, Msg: fmt.Sprintf("row has %d values, want %d", len(vals), ncols)}
		}
		// ASCII GRID rows run north to south; Grid indexes y south to north.
		y := nrows - 1 - row
		for col, s := range vals {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, nil, 0, &ca2d.InputFormatError{Source: "asciigrid", Line: line, Msg: err.Error()}
			}
			buf.Set(col, y, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, 0, err
	}
	return g, buf, nodata, nil
}

// WriteASCIIGrid writes buf out in ARC/INFO ASCII GRID format, the
// counterpart to ReadASCIIGrid. Cells are written north row first, each
// formatted with %g.
func WriteASCIIGrid(w io.Writer, g *ca2d.Grid, buf *ca2d.CellBuffer, nodata float64) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", g.Nx)
	fmt.Fprintf(bw, "nrows %d\n", g.Ny)
	fmt.Fprintf(bw, "xllcorner %g\n", g.Xll)
	fmt.Fprintf(bw, "yllcorner %g\n", g.Yll)
	fmt.Fprintf(bw, "cellsize %g\n", g.CellLength)
	fmt.Fprintf(bw, "nodata_value %g\n", nodata)
	for row := 0; row < g.Ny; row++ {
		y := g.Ny - 1 - row
		for x := 0; x < g.Nx; x++ {
			if x > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%g", buf.Get(x, y))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
