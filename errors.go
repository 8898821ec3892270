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
	"errors"
	"fmt"
)

// ConfigError reports a problem with a configuration value: missing,
// out-of-range, or mutually inconsistent with another setting.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ca2d: config error in %s: %s", e.Field, e.Msg)
}

// InputFormatError reports malformed input: a grid header that doesn't
// parse, a preprocessed artifact with a bad magic number, an event CSV row
// with the wrong column count.
type InputFormatError struct {
	Source string
	Line   int
	Msg    string
}

func (e *InputFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ca2d: input format error in %s line %d: %s", e.Source, e.Line, e.Msg)
	}
	return fmt.Sprintf("ca2d: input format error in %s: %s", e.Source, e.Msg)
}

// GeometryError reports an inconsistency in grid or box geometry: mismatched
// dimensions between two rasters, a box outside the grid extent, overlapping
// boxes where disjointness is required.
type GeometryError struct {
	Msg string
}

func (e *GeometryError) Error() string { return fmt.Sprintf("ca2d: geometry error: %s", e.Msg) }

// CancellationError indicates the run stopped because of an external
// force-stop request, not a failure. Callers that receive it from
// Engine.Run should treat it as a normal, successful shutdown.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string { return fmt.Sprintf("ca2d: run cancelled: %s", e.Reason) }

// IsCancellation reports whether err is (or wraps) a CancellationError.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}
