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
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lassandro/rvtrap/pkg/machine"
)

func (dbg *Debugger) out() io.Writer {
	if dbg.Out == nil {
		return os.Stdout
	}

	return dbg.Out
}

func (dbg *Debugger) Step(mc *machine.Machine) {
	if dbg.HandleBreak == nil {
		return
	}

	if dbg.Break {
		dbg.HandleBreak(dbg, mc)
		return
	}

	for _, breakpoint := range dbg.Breakpoints {
		if mc.State.Program == breakpoint.Addr {
			dbg.HandleBreak(dbg, mc)
			break
		}
	}
}

func (dbg *Debugger) Read(addr uint64, mc *machine.Machine) {
	if dbg.HandleRead == nil {
		return
	}

	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Type == WriteWatch {
			continue
		}

		if addr == watchpoint.Addr {
			dbg.HandleRead(addr, dbg, mc)
			break
		}
	}
}

func (dbg *Debugger) Write(addr uint64, mc *machine.Machine) {
	if dbg.HandleWrite == nil {
		return
	}

	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Type == ReadWatch {
			continue
		}

		if addr == watchpoint.Addr {
			dbg.HandleWrite(addr, dbg, mc)
			break
		}
	}
}

// Trap records every semihost request before the host services it
func (dbg *Debugger) Trap(op, arg uint64, mc *machine.Machine) {
	record := TrapRecord{mc.State.Program, op, arg}
	dbg.Traps = append(dbg.Traps, record)

	if dbg.BreakOnTrap && dbg.HandleTrap != nil {
		dbg.HandleTrap(record, dbg, mc)
	}
}

// Label returns the address of a label from the symbol table
func (dbg *Debugger) Label(name string) (uint64, bool) {
	if dbg.SymTable == nil {
		return 0, false
	}

	for addr, label := range dbg.SymTable.Labels {
		if label == name {
			return addr, true
		}
	}

	return 0, false
}

func (dbg *Debugger) PrintSource(addr uint64, count uint) {
	out := dbg.out()

	if dbg.Source == nil {
		fmt.Fprintln(out, "No source file loaded")
		return
	}

	if dbg.SymTable == nil {
		fmt.Fprintln(out, "No symbol table loaded")
		return
	}

	offset, exists := dbg.SymTable.Symbols[addr]

	if !exists {
		fmt.Fprintf(out, "No instruction found at %#08x\n", addr)
		return
	}

	if _, err := dbg.Source.Seek(offset, io.SeekStart); err != nil {
		fmt.Fprintln(out, err)
		return
	}

	scanner := bufio.NewScanner(dbg.Source)
	scanner.Split(bufio.ScanLines)

	for i := uint(0); i < count; i++ {
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()

		foundaddr := false
		for lineaddr, linebyte := range dbg.SymTable.Symbols {
			if linebyte == offset {
				fmt.Fprintf(out, "\033[1m[%#08x]\033[0m ", lineaddr)
				foundaddr = true
				break
			}
		}

		if !foundaddr {
			fmt.Fprint(out, "\033[1;30m~~~~~~~~~~~~\033[0m ")
		}

		fmt.Fprintln(out, line)

		offset += int64(len(line) + 1)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(out, err)
	}
}

// PrintMem dumps count bytes of RAM starting at addr, eight per row
func (dbg *Debugger) PrintMem(mc *machine.MachineState, addr, count uint64) {
	out := dbg.out()
	end := mc.Base + uint64(len(mc.Memory))

	for i := addr; i < addr+count; i++ {
		if i == addr {
			fmt.Fprintf(out, "\033[1m[%#08x]\033[0m ", i)
		} else if (i-addr)%8 == 0 {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "\033[1m[%#08x]\033[0m ", i)
		}

		if i < mc.Base || i >= end {
			fmt.Fprint(out, "\033[1;30m--\033[0m ")
			continue
		}

		result := mc.Memory[i-mc.Base]

		if result == 0 {
			fmt.Fprintf(out, "\033[1;30m%02x\033[0m ", result)
		} else {
			fmt.Fprintf(out, "%02x ", result)
		}
	}

	fmt.Fprintln(out)
}

func (dbg *Debugger) PrintTraps() {
	out := dbg.out()

	if len(dbg.Traps) == 0 {
		fmt.Fprintln(out, "No semihost requests")
		return
	}

	for i, record := range dbg.Traps {
		fmt.Fprintf(out, "#%d: %s\n", i, record)
	}
}

func (dbg *Debugger) PrintLabels() {
	out := dbg.out()

	if dbg.SymTable == nil {
		fmt.Fprintln(out, "No symbol table loaded")
		return
	}

	keys := make([]uint64, 0, len(dbg.SymTable.Labels))
	for addr := range dbg.SymTable.Labels {
		keys = append(keys, addr)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, addr := range keys {
		fmt.Fprintf(
			out, "\033[1m[%#08x]\033[0m %s\n", addr, dbg.SymTable.Labels[addr],
		)
	}
}
