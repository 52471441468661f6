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

package debugger

import (
	"fmt"
	"io"

	"github.com/lassandro/rvtrap/pkg/assembler"
	"github.com/lassandro/rvtrap/pkg/machine"
)

type WatchpointType uint

const (
	ReadWatch WatchpointType = iota
	WriteWatch
	ReadWriteWatch
)

func (t WatchpointType) String() string {
	switch t {
	case ReadWatch:
		return "read"
	case WriteWatch:
		return "write"
	case ReadWriteWatch:
		return "rwrite"
	}

	return "<invalid>"
}

type Watchpoint struct {
	Addr uint64
	Type WatchpointType
}

type Breakpoint struct {
	Addr uint64
}

// TrapRecord is one semihost request as seen at the EBREAK.
type TrapRecord struct {
	Addr uint64
	Op   uint64
	Arg  uint64
}

func (r TrapRecord) String() string {
	switch r.Op {
	case machine.SEMIHOST_PUTCHAR:
		return fmt.Sprintf("%#08x: putchar %q", r.Addr, rune(byte(r.Arg)))
	case machine.SEMIHOST_HALT:
		return fmt.Sprintf("%#08x: halt %d", r.Addr, int64(r.Arg))
	}

	return fmt.Sprintf("%#08x: op %d arg %d", r.Addr, r.Op, int64(r.Arg))
}

type Debugger struct {
	Break bool

	Breakpoints []Breakpoint
	Watchpoints []Watchpoint
	Traps       []TrapRecord

	// Stop at every semihost request
	BreakOnTrap bool

	Out      io.Writer
	Source   io.ReadSeeker
	SymTable *assembler.SymTable

	HandleBreak func(*Debugger, *machine.Machine)
	HandleRead  func(uint64, *Debugger, *machine.Machine)
	HandleWrite func(uint64, *Debugger, *machine.Machine)
	HandleTrap  func(TrapRecord, *Debugger, *machine.Machine)
}
