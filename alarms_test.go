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

import "testing"

func TestAlarmDueRequiresArm(t *testing.T) {
	a := NewAlarms()
	if a.Due(AlarmConsoleLog, 100) {
		t.Errorf("an alarm with no configured period must never fire")
	}
}

func TestAlarmFireLatches(t *testing.T) {
	a := NewAlarms()
	a.SetPeriod(AlarmConsoleLog, 10)
	if !a.Due(AlarmConsoleLog, 0) {
		t.Errorf("a freshly-armed alarm should be due immediately")
	}
	a.Fire(AlarmConsoleLog, 0)
	if a.Due(AlarmConsoleLog, 5) {
		t.Errorf("alarm should not be due again before a full period elapses")
	}
	if !a.Due(AlarmConsoleLog, 10) {
		t.Errorf("alarm should be due exactly at one period")
	}
}

func TestAlarmRebaseIdempotence(t *testing.T) {
	a := NewAlarms()
	a.SetPeriod(AlarmConsoleLog, 10)
	a.Fire(AlarmConsoleLog, 50)

	b := NewAlarms()
	b.SetPeriod(AlarmConsoleLog, 10)
	b.Fire(AlarmConsoleLog, 50)

	a.Rebase(5)
	a.Rebase(5)
	b.Rebase(10)

	if a.Due(AlarmConsoleLog, 65) != b.Due(AlarmConsoleLog, 65) {
		t.Errorf("two small rebases should equal one large rebase")
	}

	a.Rebase(0)
	if !a.Due(AlarmConsoleLog, 70) {
		t.Errorf("rebasing by zero must be a no-op")
	}
}

func TestAlarmKindsIndependent(t *testing.T) {
	a := NewAlarms()
	a.SetPeriod(AlarmConsoleLog, 5)
	a.SetPeriod(AlarmRasterOutput, 20)
	a.Fire(AlarmConsoleLog, 0)
	if !a.Due(AlarmRasterOutput, 0) {
		t.Errorf("firing one alarm kind must not affect another kind's due state")
	}
}
