// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package machine

import "fmt"

// semihost services an EBREAK. The guest places the operation code in a0 and
// its operand in a1 immediately before the trap; nothing is returned to the
// guest.
//
//	a0 = 0  write the low byte of a1 to the display
//	a0 = 1  stop, reporting a1 as a signed exit status
//
// Any other a0 is handled according to mc.Unknown.
func (mc *Machine) semihost(pc uint64) error {
	op := mc.State.Registers[REG_A0]
	arg := mc.State.Registers[REG_A1]

	if mc.Debugger != nil {
		mc.Debugger.Trap(op, arg, mc)
	}

	switch op {
	case SEMIHOST_PUTCHAR:
		if err := mc.display(byte(arg & 0xFF)); err != nil {
			return fmt.Errorf("semihost putchar: %w", err)
		}

	case SEMIHOST_HALT:
		mc.halted = true
		mc.status = int64(arg)

	default:
		if mc.Unknown != UnknownIgnore {
			return &UnknownOperationError{pc, op, arg}
		}
	}

	return nil
}
