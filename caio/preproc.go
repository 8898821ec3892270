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
	"encoding/gob"
	"fmt"
	"io"

	"github.com/caflood/ca2d"
)

// preprocMagic identifies a preprocessed-domain artifact (.GD/.CB/.EB),
// written before the gob-encoded payload so a stray file of the wrong kind
// is rejected immediately instead of failing deep inside gob decoding.
const preprocMagic uint32 = 0xFFFA

// preprocVersion is bumped whenever the wire layout of domainPayload
// changes, so a stale artifact is rejected instead of silently
// misinterpreted.
const preprocVersion = 1

// domainPayload is the gob-serializable snapshot of a preprocessed domain:
// the grid geometry, per-cell elevation/Manning/infiltration-rate fields,
// and the mask classification that preprocessing computed once so a run
// doesn't have to re-derive it from the raw DEM every time.
type domainPayload struct {
	Version  int
	Nx, Ny   int
	CellLen  float64
	Xll, Yll float64

	Elv     []float64
	Mann    []float64
	InfRate []float64
	Class   []int8
}

// WriteDomain serializes a State's static fields (elevation, Manning,
// infiltration rate, mask) to w as a preprocessed-domain artifact.
// Water-depth and other transient fields are not part of this artifact;
// preprocessing only ever runs once, before any simulation time exists.
func WriteDomain(w io.Writer, s *ca2d.State) error {
	g := s.Elv.Grid()
	p := domainPayload{
		Version: preprocVersion,
		Nx:      g.Nx,
		Ny:      g.Ny,
		CellLen: g.CellLength,
		Xll:     g.Xll,
		Yll:     g.Yll,
	}
	for y := 0; y < g.Ny; y++ {
		for x := 0; x < g.Nx; x++ {
			p.Elv = append(p.Elv, s.Elv.Get(x, y))
			p.Mann = append(p.Mann, s.Mann.Get(x, y))
			p.InfRate = append(p.InfRate, s.InfRate.Get(x, y))
			p.Class = append(p.Class, int8(s.Mask.Class(x, y)))
		}
	}
	if err := writeMagic(w, preprocMagic); err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(&p)
}

// ReadDomain reads a preprocessed-domain artifact written by WriteDomain
// and reconstructs a fresh State from it.
func ReadDomain(r io.Reader) (*ca2d.State, error) {
	magic, err := readMagic(r)
	if err != nil {
		return nil, err
	}
	if magic != preprocMagic {
		return nil, &ca2d.InputFormatError{Source: "preproc", Msg: fmt.Sprintf("bad magic 0x%X", magic)}
	}
	var p domainPayload
	if err := gob.NewDecoder(r).Decode(&p); err != nil {
		return nil, &ca2d.InputFormatError{Source: "preproc", Msg: err.Error()}
	}
	if p.Version != preprocVersion {
		return nil, &ca2d.InputFormatError{Source: "preproc", Msg: fmt.Sprintf("unsupported artifact version %d", p.Version)}
	}
	g := ca2d.NewGrid(p.Nx, p.Ny, p.CellLen, p.Xll, p.Yll)
	s := ca2d.NewState(g)
	i := 0
	for y := 0; y < g.Ny; y++ {
		for x := 0; x < g.Nx; x++ {
			s.Elv.Set(x, y, p.Elv[i])
			s.Mann.Set(x, y, p.Mann[i])
			s.InfRate.Set(x, y, p.InfRate[i])
			s.Mask.SetClass(x, y, ca2d.CellClass(p.Class[i]))
			i++
		}
	}
	return s, nil
}

func writeMagic(w io.Writer, magic uint32) error {
	b := []byte{byte(magic >> 24), byte(magic >> 16), byte(magic >> 8), byte(magic)}
	_, err := w.Write(b)
	return err
}

func readMagic(r io.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}
