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

import (
	"bufio"
	"fmt"
	"log"
	"strings"
)

type DeviceHandler struct {
	Keyboard *bufio.Reader
	Display  *bufio.Writer
}

// UnknownPolicy selects what the host does with a semihost request whose
// operation code is neither SEMIHOST_PUTCHAR nor SEMIHOST_HALT.
type UnknownPolicy uint

const (
	// Stop the machine with an *UnknownOperationError. The program counter
	// stays on the trap.
	UnknownFault UnknownPolicy = iota

	// Treat the request as a no-op and resume after the trap.
	UnknownIgnore
)

func (p UnknownPolicy) String() string {
	switch p {
	case UnknownFault:
		return "fault"
	case UnknownIgnore:
		return "ignore"
	}

	return fmt.Sprintf("UnknownPolicy(%d)", uint(p))
}

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fault", "error":
		return UnknownFault, nil
	case "ignore", "nop":
		return UnknownIgnore, nil
	}

	return UnknownFault, fmt.Errorf("invalid unknown-operation policy '%s'", s)
}

type MachineState struct {
	Registers [32]uint64
	Program   uint64
	Base      uint64
	Memory    []byte
	CSR       [CSR_COUNT]uint64
	UART      [UART_SIZE]uint8
}

type MachineDebugger interface {
	Step(mc *Machine)
	Read(addr uint64, mc *Machine)
	Write(addr uint64, mc *Machine)
	Trap(op, arg uint64, mc *Machine)
}

type Machine struct {
	Devices  *DeviceHandler
	State    MachineState
	Debugger MachineDebugger
	Unknown  UnknownPolicy
	Trace    *log.Logger

	halted bool
	idle   bool
	status int64
	steps  uint64
}

// Halted reports whether the guest issued a halt request.
func (mc *Machine) Halted() bool {
	return mc.halted
}

// ExitStatus is the operand of the halt request, as a signed integer.
func (mc *Machine) ExitStatus() int64 {
	return mc.status
}

// Idle reports whether the last instruction executed was a jump to itself.
func (mc *Machine) Idle() bool {
	return mc.idle
}

func (mc *Machine) Steps() uint64 {
	return mc.steps
}
